// Package clientdb stores clients and the metrics of their backup results.
//
// Each ingested backup result is recorded once, keyed by client and backup id, and rolled up into per-client
// totals plus ISO weekly and calendar monthly buckets. Recording a backup result that is already present is a
// no-op, so a message redelivered after a partial ingest does not count twice.
package clientdb

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/backupmon/backupmon/internal/aggregate"
	"github.com/backupmon/backupmon/internal/common/bmerrors"
	"github.com/backupmon/backupmon/internal/identity"
	"github.com/backupmon/backupmon/internal/model"
)

var attributeColumns = map[model.ClientAttribute]string{
	model.ClientAttributeId:        "client_id",
	model.ClientAttributeKey:       "client_key",
	model.ClientAttributeCreatedAt: "created_at",
}

var allAttributes = []model.ClientAttribute{
	model.ClientAttributeId,
	model.ClientAttributeKey,
	model.ClientAttributeCreatedAt,
}

// clientColumns returns the columns to select for attributes, or every column when attributes is empty.
func clientColumns(attributes []model.ClientAttribute) ([]model.ClientAttribute, string, error) {
	if len(attributes) == 0 {
		attributes = allAttributes
	}
	columns := make([]string, 0, len(attributes))
	for _, attribute := range attributes {
		column, ok := attributeColumns[attribute]
		if !ok {
			return nil, "", &bmerrors.ErrInvalidArgument{Name: "attributes", Value: attribute, Message: "unknown client attribute"}
		}
		columns = append(columns, column)
	}
	return attributes, strings.Join(columns, ", "), nil
}

func validateNewClient(clientId string, clientKey string) error {
	if !identity.IsValidClientId(clientId) {
		return &bmerrors.ErrInvalidArgument{Name: "clientId", Value: clientId, Message: "must be 4-51 letters, digits, hyphens or underscores"}
	}
	if !identity.IsValidClientKey(clientKey) {
		return &bmerrors.ErrInvalidArgument{Name: "clientKey", Value: "<redacted>", Message: "must be 3-50 letters or digits"}
	}
	return nil
}

func clientExists(clientId string) error {
	return &bmerrors.ErrInvalidArgument{Name: "clientId", Value: clientId, Message: "client already exists"}
}

func unknownClient(clientId string) error {
	return &bmerrors.ErrNotFound{Type: "Client", Value: clientId}
}

func marshalErrorMessages(messages []string) (string, error) {
	if messages == nil {
		messages = []string{}
	}
	b, err := json.Marshal(messages)
	return string(b), errors.WithStack(err)
}

type periodRow struct {
	year   int
	period int
	totals *aggregate.PeriodTotals
}

// periodRows flattens a year/period bucket map, ordered by year then period.
func periodRows(buckets map[int]map[int]*aggregate.PeriodTotals) []periodRow {
	var rows []periodRow
	for year, periods := range buckets {
		for period, totals := range periods {
			rows = append(rows, periodRow{year: year, period: period, totals: totals})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].year != rows[j].year {
			return rows[i].year < rows[j].year
		}
		return rows[i].period < rows[j].period
	})
	return rows
}

func addPeriod(buckets map[int]map[int]*aggregate.PeriodTotals, year int, period int, totals *aggregate.PeriodTotals) {
	if buckets[year] == nil {
		buckets[year] = map[int]*aggregate.PeriodTotals{}
	}
	buckets[year][period] = totals
}

func newAggregation() *aggregate.Aggregation {
	return &aggregate.Aggregation{
		ByYearWeek:  map[int]map[int]*aggregate.PeriodTotals{},
		ByYearMonth: map[int]map[int]*aggregate.PeriodTotals{},
	}
}

const (
	insertBackupResultSql = `
		INSERT INTO backup_results (
			client_id, backup_id, delivery_type, backup_type, backup_date,
			duration, total_items, total_bytes, error_count, error_messages
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (client_id, backup_id) DO NOTHING`

	upsertClientMetricsSql = `
		INSERT INTO client_metrics (client_id, backup_count, total_bytes, total_items, error_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (client_id) DO UPDATE SET
			backup_count = client_metrics.backup_count + excluded.backup_count,
			total_bytes = client_metrics.total_bytes + excluded.total_bytes,
			total_items = client_metrics.total_items + excluded.total_items,
			error_count = client_metrics.error_count + excluded.error_count`

	upsertWeeklyMetricsSql = `
		INSERT INTO client_weekly_metrics (client_id, year, week, count, bytes, items, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (client_id, year, week) DO UPDATE SET
			count = client_weekly_metrics.count + excluded.count,
			bytes = client_weekly_metrics.bytes + excluded.bytes,
			items = client_weekly_metrics.items + excluded.items,
			errors = client_weekly_metrics.errors + excluded.errors`

	upsertMonthlyMetricsSql = `
		INSERT INTO client_monthly_metrics (client_id, year, month, count, bytes, items, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (client_id, year, month) DO UPDATE SET
			count = client_monthly_metrics.count + excluded.count,
			bytes = client_monthly_metrics.bytes + excluded.bytes,
			items = client_monthly_metrics.items + excluded.items,
			errors = client_monthly_metrics.errors + excluded.errors`

	selectClientMetricsSql  = `SELECT backup_count, total_bytes, total_items, error_count FROM client_metrics WHERE client_id = ?`
	selectWeeklyMetricsSql  = `SELECT year, week, count, bytes, items, errors FROM client_weekly_metrics WHERE client_id = ?`
	selectMonthlyMetricsSql = `SELECT year, month, count, bytes, items, errors FROM client_monthly_metrics WHERE client_id = ?`
)

// rebind replaces each ? placeholder in query with $1, $2, ... in order.
func rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// metricsUpserts returns the statements and arguments that add agg to the stored totals of clientId.
func metricsUpserts(clientId string, agg *aggregate.Aggregation) []statement {
	statements := []statement{{
		sql: upsertClientMetricsSql,
		args: []interface{}{
			clientId, agg.ByClient.BackupCount, agg.ByClient.TotalBytes, agg.ByClient.TotalItems, agg.ByClient.ErrorCount,
		},
	}}
	for _, row := range periodRows(agg.ByYearWeek) {
		statements = append(statements, statement{
			sql:  upsertWeeklyMetricsSql,
			args: []interface{}{clientId, row.year, row.period, row.totals.Count, row.totals.Bytes, row.totals.Items, row.totals.Errors},
		})
	}
	for _, row := range periodRows(agg.ByYearMonth) {
		statements = append(statements, statement{
			sql:  upsertMonthlyMetricsSql,
			args: []interface{}{clientId, row.year, row.period, row.totals.Count, row.totals.Bytes, row.totals.Items, row.totals.Errors},
		})
	}
	return statements
}

type statement struct {
	sql  string
	args []interface{}
}
