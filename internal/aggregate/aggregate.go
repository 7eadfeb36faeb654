// Package aggregate rolls batches of backup result metrics up into per-client totals and per-period buckets.
package aggregate

import (
	"time"

	"github.com/backupmon/backupmon/internal/model"
)

// ClientTotals are the totals for a client across a whole batch.
type ClientTotals struct {
	BackupCount int64 `json:"backupCount"`
	TotalBytes  int64 `json:"totalBytes"`
	TotalItems  int64 `json:"totalItems"`
	ErrorCount  int64 `json:"errorCount"`
}

// PeriodTotals are the totals of the backup results that fall in one week or month.
type PeriodTotals struct {
	Count  int64 `json:"count"`
	Bytes  int64 `json:"bytes"`
	Items  int64 `json:"items"`
	Errors int64 `json:"errors"`
}

func (p *PeriodTotals) add(metrics *model.BackupResultMetrics) {
	p.Count++
	p.Bytes += metrics.TotalBytes
	p.Items += metrics.TotalItems
	p.Errors += metrics.ErrorCount
}

// Aggregation is the result of AggregateBackupResultMetrics.
// ByYearWeek is keyed by ISO week-numbering year then ISO week (1-53).
// ByYearMonth is keyed by UTC calendar year then month (1-12).
type Aggregation struct {
	ByClient    ClientTotals                  `json:"byClient"`
	ByYearWeek  map[int]map[int]*PeriodTotals `json:"byYearWeek"`
	ByYearMonth map[int]map[int]*PeriodTotals `json:"byYearMonth"`
}

// AggregateBackupResultMetrics sums a batch in a single pass.
func AggregateBackupResultMetrics(batch []*model.BackupResultMetrics) *Aggregation {
	result := &Aggregation{
		ByClient:    ClientTotals{BackupCount: int64(len(batch))},
		ByYearWeek:  map[int]map[int]*PeriodTotals{},
		ByYearMonth: map[int]map[int]*PeriodTotals{},
	}

	for _, metrics := range batch {
		result.ByClient.TotalBytes += metrics.TotalBytes
		result.ByClient.TotalItems += metrics.TotalItems
		result.ByClient.ErrorCount += metrics.ErrorCount

		backupDate := metrics.BackupDate.UTC()

		bucket(result.ByYearMonth, backupDate.Year(), int(backupDate.Month())).add(metrics)

		weekYear, week := ISOWeekUTC(backupDate)
		bucket(result.ByYearWeek, weekYear, week).add(metrics)
	}

	return result
}

// ISOWeekUTC returns the ISO-8601 week-numbering year and week of t in UTC.
// Weeks start on Monday and week 1 is the week holding the year's first Thursday.
func ISOWeekUTC(t time.Time) (year, week int) {
	return t.UTC().ISOWeek()
}

func bucket(periods map[int]map[int]*PeriodTotals, outer, inner int) *PeriodTotals {
	byInner, ok := periods[outer]
	if !ok {
		byInner = map[int]*PeriodTotals{}
		periods[outer] = byInner
	}
	totals, ok := byInner[inner]
	if !ok {
		totals = &PeriodTotals{}
		byInner[inner] = totals
	}
	return totals
}
