package configuration

import (
	"time"

	"github.com/backupmon/backupmon/internal/common/config"
	"github.com/backupmon/backupmon/internal/common/logging"
	"github.com/backupmon/backupmon/internal/model"
)

type BackupMonConfiguration struct {
	Logging logging.Config
	// Port on which prometheus metrics are served
	MetricsPort uint16
	Receiving   ReceivingConfig
	Worker      WorkerConfig
	Queue       QueueConfig
	Storage     StorageConfig
	ClientDb    ClientDbConfig
	Invoker     InvokerConfig
	Orphans     OrphansConfig
}

type ReceivingConfig struct {
	// Port the HTTP receiver listens on
	Port uint16 `validate:"required"`
	// Local part before the '+' of receiving e-mail addresses. Empty accepts any prefix.
	EmailPrefix string
	// Domain of receiving e-mail addresses. Empty accepts any domain.
	EmailDomain string
	// Largest request body the receiver accepts
	MaxBodyBytes int64 `validate:"gt=0"`
}

// WorkerConfig drives how many queue workers are invoked for a backlog and how much each of them does.
type WorkerConfig struct {
	// Upper bound on workers invoked by one consumer run
	MaxWorkers int `validate:"gte=1"`
	// Longest a worker may run
	MaxTime time.Duration `validate:"gt=0"`
	// Time a worker needs before it can ingest its first result
	StartupTime time.Duration `validate:"gte=0"`
	// Expected time to ingest one result
	TimePerResult time.Duration `validate:"gt=0"`
	// Backlog size that justifies one more worker regardless of throughput
	MinIncrement int `validate:"gte=1"`
	// Cap on the workers added by MinIncrement
	MinLimit int `validate:"gte=0"`
	// Messages a worker dequeues. Zero means as many as fit in MaxTime.
	BatchSize int `validate:"gte=0"`
	// Deliveries after which a message failing for reasons other than its payload is resolved anyway, leaving
	// its content behind as an orphan. Zero redelivers forever.
	MaxReceiveCount int64 `validate:"gte=0"`
	// How often the consumer checks the backlog
	PollInterval time.Duration `validate:"gt=0"`
}

// MaxPerWorker is the number of results one worker can ingest within MaxTime, and never less than one.
func (c WorkerConfig) MaxPerWorker() float64 {
	perWorker := float64(c.MaxTime-c.StartupTime) / float64(c.TimePerResult)
	if perWorker < 1 {
		return 1
	}
	return perWorker
}

// DequeueSize is the number of messages a worker should dequeue.
func (c WorkerConfig) DequeueSize() int {
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return int(c.MaxPerWorker())
}

type QueueConfig struct {
	Redis config.RedisConfig
	// Prefix of every key the queue writes
	KeyPrefix string `validate:"required"`
	// Time after which a dequeued message that was not resolved becomes available again
	VisibilityTimeout time.Duration `validate:"gt=0"`
}

const (
	StorageFilesystem = "filesystem"
	StorageS3         = "s3"
)

type StorageConfig struct {
	Type       string `validate:"oneof=filesystem s3"`
	Filesystem FilesystemConfig
	S3         S3Config
}

type FilesystemConfig struct {
	Root string
}

type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyId     string
	SecretAccessKey string
	UsePathStyle    bool
}

const (
	ClientDbSqlite   = "sqlite"
	ClientDbPostgres = "postgres"
)

type ClientDbConfig struct {
	Type     string `validate:"oneof=sqlite postgres"`
	Sqlite   SqliteConfig
	Postgres config.PostgresConfig
}

type SqliteConfig struct {
	Path string
}

const (
	InvokerLocal = "local"
	InvokerNats  = "nats"
)

type InvokerConfig struct {
	Type string `validate:"oneof=local nats"`
	Nats NatsConfig
}

type NatsConfig struct {
	Url        string
	Subject    string
	QueueGroup string
	Timeout    time.Duration
}

type OrphansConfig struct {
	// Content younger than this is never reported
	MinimumAge time.Duration `validate:"gt=0"`
	// How often the sweeper runs
	Interval time.Duration `validate:"gt=0"`
	// Delivery types swept. Empty sweeps all of them.
	DeliveryTypes []model.DeliveryType
}
