package configuration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/backupmon/backupmon/internal/common/config"
	"github.com/backupmon/backupmon/internal/model"
)

func TestWorkerConfig_MaxPerWorker(t *testing.T) {
	defaults := WorkerConfig{MaxTime: 60 * time.Second, StartupTime: 4 * time.Second, TimePerResult: 4 * time.Second}
	assert.Equal(t, 14.0, defaults.MaxPerWorker())
	assert.Equal(t, 14, defaults.DequeueSize())

	slow := WorkerConfig{MaxTime: 10 * time.Second, StartupTime: 8 * time.Second, TimePerResult: 5 * time.Second}
	assert.Equal(t, 1.0, slow.MaxPerWorker())

	fixed := defaults
	fixed.BatchSize = 3
	assert.Equal(t, 3, fixed.DequeueSize())
}

func validConfig() BackupMonConfiguration {
	return BackupMonConfiguration{
		Receiving: ReceivingConfig{Port: 8080, MaxBodyBytes: 1 << 20},
		Worker: WorkerConfig{
			MaxWorkers:    10,
			MaxTime:       60 * time.Second,
			StartupTime:   4 * time.Second,
			TimePerResult: 4 * time.Second,
			MinIncrement:  10,
			MinLimit:      3,
			PollInterval:  time.Minute,
		},
		Queue: QueueConfig{
			Redis:             config.RedisConfig{Addr: "localhost:6379"},
			KeyPrefix:         "BackupResults",
			VisibilityTimeout: 2 * time.Minute,
		},
		Storage:  StorageConfig{Type: StorageFilesystem, Filesystem: FilesystemConfig{Root: "/var/lib/backupmon"}},
		ClientDb: ClientDbConfig{Type: ClientDbSqlite, Sqlite: SqliteConfig{Path: "/var/lib/backupmon/clients.db"}},
		Invoker:  InvokerConfig{Type: InvokerLocal},
		Orphans:  OrphansConfig{MinimumAge: time.Hour, Interval: time.Hour},
	}
}

func TestBackupMonConfiguration_Validate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	tests := map[string]func(c *BackupMonConfiguration){
		"no workers":            func(c *BackupMonConfiguration) { c.Worker.MaxWorkers = 0 },
		"unknown storage":       func(c *BackupMonConfiguration) { c.Storage.Type = "ftp" },
		"s3 without bucket":     func(c *BackupMonConfiguration) { c.Storage.Type = StorageS3 },
		"filesystem no root":    func(c *BackupMonConfiguration) { c.Storage.Filesystem.Root = "" },
		"postgres without conn": func(c *BackupMonConfiguration) { c.ClientDb.Type = ClientDbPostgres },
		"nats without url":      func(c *BackupMonConfiguration) { c.Invoker.Type = InvokerNats },
		"no redis address":      func(c *BackupMonConfiguration) { c.Queue.Redis.Addr = "" },
		"no receiving port":     func(c *BackupMonConfiguration) { c.Receiving.Port = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := validConfig()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestOrphansConfig_SweptDeliveryTypes(t *testing.T) {
	assert.Equal(t, model.DeliveryTypes, OrphansConfig{}.SweptDeliveryTypes())
	assert.Equal(t,
		[]model.DeliveryType{model.DeliveryTypeEmail},
		OrphansConfig{DeliveryTypes: []model.DeliveryType{model.DeliveryTypeEmail}}.SweptDeliveryTypes())
}
