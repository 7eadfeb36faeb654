package configuration

import (
	"github.com/pkg/errors"

	"github.com/backupmon/backupmon/internal/common/config"
	"github.com/backupmon/backupmon/internal/model"
)

func (c BackupMonConfiguration) Validate() error {
	if err := config.Validate(c); err != nil {
		return err
	}
	if c.Storage.Type == StorageFilesystem && c.Storage.Filesystem.Root == "" {
		return errors.New("storage.filesystem.root is required for filesystem storage")
	}
	if c.Storage.Type == StorageS3 && c.Storage.S3.Bucket == "" {
		return errors.New("storage.s3.bucket is required for s3 storage")
	}
	if c.ClientDb.Type == ClientDbSqlite && c.ClientDb.Sqlite.Path == "" {
		return errors.New("clientDb.sqlite.path is required for the sqlite client database")
	}
	if c.ClientDb.Type == ClientDbPostgres && len(c.ClientDb.Postgres.Connection) == 0 {
		return errors.New("clientDb.postgres.connection is required for the postgres client database")
	}
	if c.Invoker.Type == InvokerNats && (c.Invoker.Nats.Url == "" || c.Invoker.Nats.Subject == "") {
		return errors.New("invoker.nats.url and invoker.nats.subject are required for the nats invoker")
	}
	return nil
}

// SweptDeliveryTypes returns the delivery types the orphan sweeper checks.
func (c OrphansConfig) SweptDeliveryTypes() []model.DeliveryType {
	if len(c.DeliveryTypes) == 0 {
		return model.DeliveryTypes
	}
	return c.DeliveryTypes
}
