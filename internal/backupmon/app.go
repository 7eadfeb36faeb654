// Package backupmon wires the backends selected by configuration into the processes that make up the pipeline:
// the HTTP receiver, the queue consumer, remote queue workers and the orphan sweeper.
package backupmon

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/backupmon/backupmon/internal/aggregate"
	"github.com/backupmon/backupmon/internal/backend/clientdb"
	"github.com/backupmon/backupmon/internal/backend/invoker"
	"github.com/backupmon/backupmon/internal/backend/queue"
	"github.com/backupmon/backupmon/internal/common"
	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/common/database"
	"github.com/backupmon/backupmon/internal/common/health"
	"github.com/backupmon/backupmon/internal/common/logging"
	"github.com/backupmon/backupmon/internal/common/serve"
	"github.com/backupmon/backupmon/internal/common/util"
	"github.com/backupmon/backupmon/internal/ingester"
	"github.com/backupmon/backupmon/internal/ingester/configuration"
	"github.com/backupmon/backupmon/internal/ingester/metrics"
	"github.com/backupmon/backupmon/internal/receiver"
)

type components struct {
	queue   *queue.RedisQueue
	redis   redis.UniversalClient
	store   ingester.ContentStore
	clients ClientStore
}

func openComponents(ctx *bmcontext.Context, config configuration.BackupMonConfiguration) (*components, error) {
	q, db, err := NewQueue(config.Queue)
	if err != nil {
		return nil, err
	}
	store, err := NewContentStore(ctx, config.Storage)
	if err != nil {
		util.CloseResource("redis", db)
		return nil, err
	}
	clients, err := NewClientStore(ctx, config.ClientDb)
	if err != nil {
		util.CloseResource("redis", db)
		return nil, err
	}
	return &components{queue: q, redis: db, store: store, clients: clients}, nil
}

func (c *components) close() {
	util.CloseResource("client database", c.clients)
	util.CloseResource("redis", c.redis)
}

func (c *components) healthChecker() health.Checker {
	return health.NewMultiChecker(health.CheckerFunc(func() error {
		return errors.Wrap(c.redis.Ping().Err(), "redis unavailable")
	}))
}

func (c *components) newIngester(config configuration.BackupMonConfiguration, inv ingester.WorkerInvoker, reg prometheus.Registerer) *ingester.Ingester {
	return ingester.New(
		c.queue, c.store, c.clients, inv, config.Worker, config.Receiving,
		ingester.WithMetrics(metrics.NewMetrics(metrics.MetricsPrefix, reg)),
	)
}

func serveMetrics(config configuration.BackupMonConfiguration, checker health.Checker) func() {
	if config.MetricsPort == 0 {
		return func() {}
	}
	return common.ServeMetrics(config.MetricsPort, prometheus.DefaultGatherer, checker)
}

// RunConsumer checks the queue backlog every poll interval and invokes workers for it until ctx is cancelled.
func RunConsumer(ctx *bmcontext.Context, config configuration.BackupMonConfiguration) error {
	c, err := openComponents(ctx, config)
	if err != nil {
		return err
	}
	defer c.close()

	var ing *ingester.Ingester
	inv, release, err := workerInvoker(ctx, config.Invoker, func(ctx *bmcontext.Context, payload []byte) error {
		return ing.RunQueueWorker(ctx, payload)
	})
	if err != nil {
		return err
	}
	defer release()
	ing = c.newIngester(config, inv, prometheus.DefaultRegisterer)

	defer serveMetrics(config, c.healthChecker())()

	ctx.Log.WithField("invoker", config.Invoker.Type).
		WithField("pollInterval", config.Worker.PollInterval).
		Info("Starting queue consumer")
	return ing.RunQueueConsumerLoop(ctx, config.Worker.PollInterval)
}

// RunWorkers serves queue workers invoked over NATS until ctx is cancelled.
func RunWorkers(ctx *bmcontext.Context, config configuration.BackupMonConfiguration) error {
	if config.Invoker.Type != configuration.InvokerNats {
		return errors.Errorf("queue workers are only served for the %s invoker", configuration.InvokerNats)
	}
	c, err := openComponents(ctx, config)
	if err != nil {
		return err
	}
	defer c.close()

	conn, err := nats.Connect(config.Invoker.Nats.Url)
	if err != nil {
		return errors.Wrapf(err, "error connecting to nats at %s", config.Invoker.Nats.Url)
	}
	defer conn.Close()

	ing := c.newIngester(config, nil, prometheus.DefaultRegisterer)
	defer serveMetrics(config, c.healthChecker())()

	ctx.Log.WithField("subject", config.Invoker.Nats.Subject).Info("Serving queue workers")
	return invoker.ServeQueueWorkers(ctx, conn, config.Invoker.Nats.Subject, config.Invoker.Nats.QueueGroup, ing.RunQueueWorker)
}

// RunReceiver serves the receiving endpoints until ctx is cancelled.
func RunReceiver(ctx *bmcontext.Context, config configuration.BackupMonConfiguration) error {
	c, err := openComponents(ctx, config)
	if err != nil {
		return err
	}
	defer c.close()

	m := metrics.NewMetrics(metrics.MetricsPrefix, prometheus.DefaultRegisterer)
	service := ingester.NewReceivingService(c.queue, c.store, c.clients, config.Receiving, m)
	checker := c.healthChecker()
	defer serveMetrics(config, checker)()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Receiving.Port),
		Handler:           receiver.NewServer(service, checker, config.Receiving.MaxBodyBytes),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serve.ListenAndServe(ctx, server)
}

// SweepOrphans reports orphaned content once, or every sweep interval until ctx is cancelled.
func SweepOrphans(ctx *bmcontext.Context, config configuration.BackupMonConfiguration, once bool) error {
	c, err := openComponents(ctx, config)
	if err != nil {
		return err
	}
	defer c.close()

	ing := c.newIngester(config, nil, prometheus.DefaultRegisterer)
	sweep := func() error {
		orphans, err := ing.FindOrphanedBackupResults(ctx, config.Orphans.SweptDeliveryTypes(), config.Orphans.MinimumAge)
		if err != nil {
			return err
		}
		for deliveryType, found := range orphans {
			ctx.Log.WithField("deliveryType", deliveryType).Infof("Found %d orphaned backup results", len(found))
		}
		return nil
	}
	if once {
		return sweep()
	}

	defer serveMetrics(config, c.healthChecker())()
	ticker := time.NewTicker(config.Orphans.Interval)
	defer ticker.Stop()
	for {
		if err := sweep(); err != nil {
			logging.WithStacktrace(ctx.Log, err).Error("Error sweeping orphaned backup results")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// AddClient provisions a client and returns its key. A key is generated when clientKey is empty.
func AddClient(ctx *bmcontext.Context, config configuration.ClientDbConfig, clientId string, clientKey string) (string, error) {
	if clientKey == "" {
		clientKey = util.NewClientKey()
	}
	clients, err := NewClientStore(ctx, config)
	if err != nil {
		return "", err
	}
	defer util.CloseResource("client database", clients)

	if err := clients.AddClient(ctx, clientId, clientKey); err != nil {
		return "", err
	}
	return clientKey, nil
}

// ClientMetrics returns the metrics recorded against a client.
func ClientMetrics(ctx *bmcontext.Context, config configuration.ClientDbConfig, clientId string) (*aggregate.Aggregation, error) {
	clients, err := NewClientStore(ctx, config)
	if err != nil {
		return nil, err
	}
	defer util.CloseResource("client database", clients)
	return clients.GetClientMetrics(ctx, clientId)
}

// Migrate brings the client database schema up to date, retrying the connection until ctx is done.
func Migrate(ctx *bmcontext.Context, config configuration.ClientDbConfig, retryInterval time.Duration) error {
	if config.Type != configuration.ClientDbPostgres {
		clients, err := NewClientStore(ctx, config)
		if err != nil {
			return err
		}
		return clients.Close()
	}

	return util.RetryUntilSuccess(ctx, retryInterval, func() error {
		pool, err := database.OpenPgxPool(ctx, config.Postgres)
		if err != nil {
			return err
		}
		defer pool.Close()
		return clientdb.MigratePostgres(ctx, pool)
	}, func(err error) {
		ctx.Log.WithError(err).Warn("Error migrating client database; retrying")
	})
}
