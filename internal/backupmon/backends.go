package backupmon

import (
	"io"

	"github.com/go-redis/redis"
	"github.com/mitchellh/go-homedir"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/backupmon/backupmon/internal/aggregate"
	"github.com/backupmon/backupmon/internal/backend/clientdb"
	"github.com/backupmon/backupmon/internal/backend/invoker"
	"github.com/backupmon/backupmon/internal/backend/queue"
	"github.com/backupmon/backupmon/internal/backend/storage"
	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/common/database"
	"github.com/backupmon/backupmon/internal/ingester"
	"github.com/backupmon/backupmon/internal/ingester/configuration"
)

// ClientStore is a client directory that can also report the metrics recorded against a client.
type ClientStore interface {
	ingester.ClientDirectory
	io.Closer
	GetClientMetrics(ctx *bmcontext.Context, clientId string) (*aggregate.Aggregation, error)
}

// NewQueue connects to the redis instance holding the queue.
func NewQueue(config configuration.QueueConfig) (*queue.RedisQueue, redis.UniversalClient, error) {
	db := redis.NewClient(config.Redis.AsOptions())
	if err := db.Ping().Err(); err != nil {
		return nil, nil, errors.Wrapf(err, "error connecting to redis at %s", config.Redis.Addr)
	}
	return queue.NewRedisQueue(db, config), db, nil
}

// NewContentStore creates the content store selected by config.Type. A leading ~ in a filesystem root is expanded.
func NewContentStore(ctx *bmcontext.Context, config configuration.StorageConfig) (ingester.ContentStore, error) {
	switch config.Type {
	case configuration.StorageFilesystem:
		root, err := homedir.Expand(config.Filesystem.Root)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return storage.NewFilesystemStore(root)
	case configuration.StorageS3:
		client, err := storage.NewS3Client(ctx, config.S3)
		if err != nil {
			return nil, err
		}
		return storage.NewS3Store(client, config.S3.Bucket, config.S3.Prefix), nil
	default:
		return nil, errors.Errorf("unknown storage type %q", config.Type)
	}
}

// NewClientStore opens the client database selected by config.Type. Postgres schemas are not migrated here.
func NewClientStore(ctx *bmcontext.Context, config configuration.ClientDbConfig) (ClientStore, error) {
	switch config.Type {
	case configuration.ClientDbSqlite:
		path, err := homedir.Expand(config.Sqlite.Path)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return clientdb.NewSqliteClientDirectory(ctx, path)
	case configuration.ClientDbPostgres:
		pool, err := database.OpenPgxPool(ctx, config.Postgres)
		if err != nil {
			return nil, err
		}
		return clientdb.NewPostgresClientDirectory(pool), nil
	default:
		return nil, errors.Errorf("unknown client database type %q", config.Type)
	}
}

// workerInvoker starts queue workers for the consumer. Local workers run worker under ctx, so they stop when the
// consumer does. The returned function releases the invoker once the consumer has stopped.
func workerInvoker(ctx *bmcontext.Context, config configuration.InvokerConfig, worker invoker.WorkerFunc) (ingester.WorkerInvoker, func(), error) {
	switch config.Type {
	case configuration.InvokerLocal:
		local := invoker.NewLocalInvoker(ctx, worker)
		return local, local.Wait, nil
	case configuration.InvokerNats:
		conn, err := nats.Connect(config.Nats.Url)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "error connecting to nats at %s", config.Nats.Url)
		}
		return invoker.NewNatsInvoker(conn, config.Nats.Subject, config.Nats.Timeout), conn.Close, nil
	default:
		return nil, nil, errors.Errorf("unknown invoker type %q", config.Type)
	}
}
