package clientdb

import (
	"context"
	"embed"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype/pgxtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"

	"github.com/backupmon/backupmon/internal/aggregate"
	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/common/database"
	"github.com/backupmon/backupmon/internal/model"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the schema migrations of the Postgres client directory.
func Migrations() ([]database.Migration, error) {
	return database.ReadMigrations(migrationFiles, "migrations")
}

// MigratePostgres brings the schema of db up to date.
func MigratePostgres(ctx context.Context, db pgxtype.Querier) error {
	migrations, err := Migrations()
	if err != nil {
		return err
	}
	return database.UpdateDatabase(ctx, db, migrations)
}

type PostgresClientDirectory struct {
	db *pgxpool.Pool
}

func NewPostgresClientDirectory(db *pgxpool.Pool) *PostgresClientDirectory {
	return &PostgresClientDirectory{db: db}
}

func (p *PostgresClientDirectory) Close() error {
	p.db.Close()
	return nil
}

func (p *PostgresClientDirectory) GetClient(ctx *bmcontext.Context, clientId string, attributes []model.ClientAttribute) (*model.ClientRecord, error) {
	attributes, columns, err := clientColumns(attributes)
	if err != nil {
		return nil, err
	}

	record := &model.ClientRecord{}
	dest := make([]interface{}, len(attributes))
	for i, attribute := range attributes {
		switch attribute {
		case model.ClientAttributeId:
			dest[i] = &record.ClientId
		case model.ClientAttributeKey:
			dest[i] = &record.ClientKey
		case model.ClientAttributeCreatedAt:
			dest[i] = &record.CreatedAt
		}
	}

	err = p.db.QueryRow(ctx, "SELECT "+columns+" FROM clients WHERE client_id = $1", clientId).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "error reading client %s", clientId)
	}
	record.CreatedAt = record.CreatedAt.UTC()
	return record, nil
}

func (p *PostgresClientDirectory) AddClient(ctx *bmcontext.Context, clientId string, clientKey string) error {
	if err := validateNewClient(clientId, clientKey); err != nil {
		return err
	}
	tag, err := p.db.Exec(ctx,
		`INSERT INTO clients (client_id, client_key) VALUES ($1, $2) ON CONFLICT (client_id) DO NOTHING`,
		clientId, clientKey)
	if err != nil {
		return errors.Wrapf(err, "error adding client %s", clientId)
	}
	if tag.RowsAffected() == 0 {
		return clientExists(clientId)
	}
	ctx.Log.WithField("clientId", clientId).Info("Added client")
	return nil
}

func (p *PostgresClientDirectory) AddBackupResult(ctx *bmcontext.Context, meta *model.BackupResultMeta, metrics *model.BackupResultMetrics) error {
	errorMessages, err := marshalErrorMessages(metrics.ErrorMessages)
	if err != nil {
		return err
	}
	return p.db.BeginTxFunc(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, rebind(insertBackupResultSql),
			meta.ClientId, meta.BackupId, string(meta.DeliveryType), meta.BackupType, metrics.BackupDate.UTC(),
			metrics.Duration, metrics.TotalItems, metrics.TotalBytes, metrics.ErrorCount, errorMessages)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return unknownClient(meta.ClientId)
		} else if err != nil {
			return errors.Wrapf(err, "error adding backup result %s", meta.BackupId)
		}
		if tag.RowsAffected() == 0 {
			ctx.Log.WithField("backupId", meta.BackupId).Info("Backup result already recorded")
			return nil
		}
		return incrementPgMetrics(ctx, tx, meta.ClientId, []*model.BackupResultMetrics{metrics})
	})
}

func (p *PostgresClientDirectory) IncrementBackupResultMetrics(ctx *bmcontext.Context, clientId string, batch []*model.BackupResultMetrics) error {
	if len(batch) == 0 {
		return nil
	}
	return p.db.BeginTxFunc(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}, func(tx pgx.Tx) error {
		return incrementPgMetrics(ctx, tx, clientId, batch)
	})
}

// GetClientMetrics returns the stored totals of clientId. A client with no backup results has zero totals.
func (p *PostgresClientDirectory) GetClientMetrics(ctx *bmcontext.Context, clientId string) (*aggregate.Aggregation, error) {
	agg := newAggregation()
	err := p.db.QueryRow(ctx, rebind(selectClientMetricsSql), clientId).Scan(
		&agg.ByClient.BackupCount, &agg.ByClient.TotalBytes, &agg.ByClient.TotalItems, &agg.ByClient.ErrorCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return agg, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "error reading metrics of client %s", clientId)
	}
	if err := p.readPeriods(ctx, selectWeeklyMetricsSql, clientId, agg.ByYearWeek); err != nil {
		return nil, err
	}
	if err := p.readPeriods(ctx, selectMonthlyMetricsSql, clientId, agg.ByYearMonth); err != nil {
		return nil, err
	}
	return agg, nil
}

func (p *PostgresClientDirectory) readPeriods(ctx context.Context, query string, clientId string, buckets map[int]map[int]*aggregate.PeriodTotals) error {
	rows, err := p.db.Query(ctx, rebind(query), clientId)
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

func incrementPgMetrics(ctx context.Context, tx pgx.Tx, clientId string, batch []*model.BackupResultMetrics) error {
	for _, stmt := range metricsUpserts(clientId, aggregate.AggregateBackupResultMetrics(batch)) {
		if _, err := tx.Exec(ctx, rebind(stmt.sql), stmt.args...); err != nil {
			return errors.Wrapf(err, "error incrementing metrics of client %s", clientId)
		}
	}
	return nil
}
