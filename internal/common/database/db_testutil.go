package database

import (
	"context"
	"os"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/backupmon/backupmon/internal/common/util"
)

// TestPostgresEnvVar names the variable holding the connection string of the Postgres server used by tests.
const TestPostgresEnvVar = "BACKUPMON_TEST_POSTGRES"

// TestConnectionString returns the connection string tests should use, or "" if no test server is configured.
func TestConnectionString() string {
	return os.Getenv(TestPostgresEnvVar)
}

// WithTestDb creates a dedicated database on the test server, applies migrations to it and passes it to action.
// The database is dropped afterwards.
func WithTestDb(connectionString string, migrations []Migration, action func(db *pgxpool.Pool) error) error {
	ctx := context.Background()

	db, err := pgx.Connect(ctx, connectionString)
	if err != nil {
		return errors.WithStack(err)
	}
	defer db.Close(ctx)

	dbName := "test_" + util.NewULID()
	if _, err := db.Exec(ctx, "CREATE DATABASE "+dbName); err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		_, err := db.Exec(ctx,
			`SELECT pg_terminate_backend(pg_stat_activity.pid)
			 FROM pg_stat_activity WHERE pg_stat_activity.datname = $1`, dbName)
		if err != nil {
			log.Warnf("Failed to disconnect users of %s: %v", dbName, err)
		}
		if _, err := db.Exec(ctx, "DROP DATABASE "+dbName); err != nil {
			log.Warnf("Failed to drop database %s: %v", dbName, err)
		}
	}()

	testDbPool, err := pgxpool.Connect(ctx, connectionString+" dbname="+dbName)
	if err != nil {
		return errors.WithStack(err)
	}
	defer testDbPool.Close()

	if err := UpdateDatabase(ctx, testDbPool, migrations); err != nil {
		return err
	}
	return action(testDbPool)
}
