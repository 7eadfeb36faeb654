package clientdb

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/backupmon/backupmon/internal/aggregate"
	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/model"
)

var sqliteSetupStmts = []string{
	`PRAGMA journal_mode=WAL`,
	`PRAGMA foreign_keys=ON`,
	`CREATE TABLE IF NOT EXISTS clients (
		client_id  TEXT PRIMARY KEY,
		client_key TEXT NOT NULL,
		created_at INTEGER NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS backup_results (
		client_id      TEXT NOT NULL REFERENCES clients (client_id),
		backup_id      TEXT NOT NULL,
		delivery_type  TEXT NOT NULL,
		backup_type    TEXT NOT NULL,
		backup_date    INTEGER NOT NULL,
		duration       INTEGER NOT NULL,
		total_items    INTEGER NOT NULL,
		total_bytes    INTEGER NOT NULL,
		error_count    INTEGER NOT NULL,
		error_messages TEXT NOT NULL DEFAULT '[]',
		PRIMARY KEY (client_id, backup_id))`,
	`CREATE INDEX IF NOT EXISTS idx_backup_results_backup_date ON backup_results (client_id, backup_date)`,
	`CREATE TABLE IF NOT EXISTS client_metrics (
		client_id    TEXT PRIMARY KEY REFERENCES clients (client_id),
		backup_count INTEGER NOT NULL,
		total_bytes  INTEGER NOT NULL,
		total_items  INTEGER NOT NULL,
		error_count  INTEGER NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS client_weekly_metrics (
		client_id TEXT NOT NULL REFERENCES clients (client_id),
		year      INTEGER NOT NULL,
		week      INTEGER NOT NULL,
		count     INTEGER NOT NULL,
		bytes     INTEGER NOT NULL,
		items     INTEGER NOT NULL,
		errors    INTEGER NOT NULL,
		PRIMARY KEY (client_id, year, week))`,
	`CREATE TABLE IF NOT EXISTS client_monthly_metrics (
		client_id TEXT NOT NULL REFERENCES clients (client_id),
		year      INTEGER NOT NULL,
		month     INTEGER NOT NULL,
		count     INTEGER NOT NULL,
		bytes     INTEGER NOT NULL,
		items     INTEGER NOT NULL,
		errors    INTEGER NOT NULL,
		PRIMARY KEY (client_id, year, month))`,
}

// SqliteClientDirectory keeps clients in a single SQLite file. Times are stored as Unix milliseconds.
type SqliteClientDirectory struct {
	db  *sql.DB
	now func() time.Time
}

// NewSqliteClientDirectory opens, creating if necessary, the database at path and its tables.
func NewSqliteClientDirectory(ctx context.Context, path string) (*SqliteClientDirectory, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "could not make directory for sqlite db %s", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening sqlite db %s", path)
	}
	// One connection serialises writers and keeps the per-connection pragmas in force.
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteSetupStmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "error setting up sqlite db")
		}
	}
	return &SqliteClientDirectory{db: db, now: time.Now}, nil
}

func (s *SqliteClientDirectory) Close() error {
	return s.db.Close()
}

func (s *SqliteClientDirectory) GetClient(ctx *bmcontext.Context, clientId string, attributes []model.ClientAttribute) (*model.ClientRecord, error) {
	attributes, columns, err := clientColumns(attributes)
	if err != nil {
		return nil, err
	}

	record := &model.ClientRecord{}
	var createdAt int64
	dest := make([]interface{}, len(attributes))
	for i, attribute := range attributes {
		switch attribute {
		case model.ClientAttributeId:
			dest[i] = &record.ClientId
		case model.ClientAttributeKey:
			dest[i] = &record.ClientKey
		case model.ClientAttributeCreatedAt:
			dest[i] = &createdAt
		}
	}

	err = s.db.QueryRowContext(ctx, "SELECT "+columns+" FROM clients WHERE client_id = ?", clientId).Scan(dest...)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "error reading client %s", clientId)
	}
	if createdAt != 0 {
		record.CreatedAt = time.UnixMilli(createdAt).UTC()
	}
	return record, nil
}

func (s *SqliteClientDirectory) AddClient(ctx *bmcontext.Context, clientId string, clientKey string) error {
	if err := validateNewClient(clientId, clientKey); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO clients (client_id, client_key, created_at) VALUES (?, ?, ?) ON CONFLICT (client_id) DO NOTHING`,
		clientId, clientKey, s.now().UnixMilli())
	if err != nil {
		return errors.Wrapf(err, "error adding client %s", clientId)
	}
	if n, err := result.RowsAffected(); err != nil {
		return errors.WithStack(err)
	} else if n == 0 {
		return clientExists(clientId)
	}
	ctx.Log.WithField("clientId", clientId).Info("Added client")
	return nil
}

func (s *SqliteClientDirectory) AddBackupResult(ctx *bmcontext.Context, meta *model.BackupResultMeta, metrics *model.BackupResultMetrics) error {
	errorMessages, err := marshalErrorMessages(metrics.ErrorMessages)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, insertBackupResultSql,
			meta.ClientId, meta.BackupId, string(meta.DeliveryType), meta.BackupType, metrics.BackupDate.UnixMilli(),
			metrics.Duration, metrics.TotalItems, metrics.TotalBytes, metrics.ErrorCount, errorMessages)
		if err != nil {
			return errors.Wrapf(err, "error adding backup result %s", meta.BackupId)
		}
		if n, err := result.RowsAffected(); err != nil {
			return errors.WithStack(err)
		} else if n == 0 {
			ctx.Log.WithField("backupId", meta.BackupId).Info("Backup result already recorded")
			return nil
		}
		return incrementSqlMetrics(ctx, tx, meta.ClientId, []*model.BackupResultMetrics{metrics})
	})
}

func (s *SqliteClientDirectory) IncrementBackupResultMetrics(ctx *bmcontext.Context, clientId string, batch []*model.BackupResultMetrics) error {
	if len(batch) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return incrementSqlMetrics(ctx, tx, clientId, batch)
	})
}

// GetClientMetrics returns the stored totals of clientId. A client with no backup results has zero totals.
func (s *SqliteClientDirectory) GetClientMetrics(ctx *bmcontext.Context, clientId string) (*aggregate.Aggregation, error) {
	agg := newAggregation()
	err := s.db.QueryRowContext(ctx, selectClientMetricsSql, clientId).Scan(
		&agg.ByClient.BackupCount, &agg.ByClient.TotalBytes, &agg.ByClient.TotalItems, &agg.ByClient.ErrorCount)
	if err == sql.ErrNoRows {
		return agg, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "error reading metrics of client %s", clientId)
	}
	if err := s.readPeriods(ctx, selectWeeklyMetricsSql, clientId, agg.ByYearWeek); err != nil {
		return nil, err
	}
	if err := s.readPeriods(ctx, selectMonthlyMetricsSql, clientId, agg.ByYearMonth); err != nil {
		return nil, err
	}
	return agg, nil
}

func (s *SqliteClientDirectory) readPeriods(ctx context.Context, query string, clientId string, buckets map[int]map[int]*aggregate.PeriodTotals) error {
	rows, err := s.db.QueryContext(ctx, query, clientId)
	if err != nil {
		return errors.WithStack(err)
	}
	defer rows.Close()
	for rows.Next() {
		var year, period int
		totals := &aggregate.PeriodTotals{}
		if err := rows.Scan(&year, &period, &totals.Count, &totals.Bytes, &totals.Items, &totals.Errors); err != nil {
			return errors.WithStack(err)
		}
		addPeriod(buckets, year, period, totals)
	}
	return errors.WithStack(rows.Err())
}

func (s *SqliteClientDirectory) withTx(ctx context.Context, action func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := action(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.WithStack(tx.Commit())
}

func incrementSqlMetrics(ctx context.Context, tx *sql.Tx, clientId string, batch []*model.BackupResultMetrics) error {
	for _, stmt := range metricsUpserts(clientId, aggregate.AggregateBackupResultMetrics(batch)) {
		if _, err := tx.ExecContext(ctx, stmt.sql, stmt.args...); err != nil {
			return errors.Wrapf(err, "error incrementing metrics of client %s", clientId)
		}
	}
	return nil
}
