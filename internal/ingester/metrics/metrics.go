package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/backupmon/backupmon/internal/common/bmerrors"
	"github.com/backupmon/backupmon/internal/model"
)

const MetricsPrefix = "backupmon_"

const (
	outcomeIngested  = "ingested"
	outcomeRejected  = "rejected"
	outcomeRetryable = "retryable"
)

type Metrics struct {
	backlog              prometheus.Gauge
	workersInvoked       prometheus.Counter
	workerInvokeErrors   prometheus.Counter
	ingested             *prometheus.CounterVec
	ingestErrors         *prometheus.CounterVec
	ingestDuration       prometheus.Histogram
	received             *prometheus.CounterVec
	orphanedContent      *prometheus.GaugeVec
	queueMessageOutcomes *prometheus.CounterVec
}

// NewMetrics registers the ingestion metrics with reg, or the default registerer when reg is nil.
func NewMetrics(prefix string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		backlog: factory.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "queue_backlog",
			Help: "Number of received backup results waiting in the queue at the last consumer run",
		}),
		workersInvoked: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "workers_invoked",
			Help: "Number of queue workers invoked by the consumer",
		}),
		workerInvokeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "worker_invoke_errors",
			Help: "Number of queue worker invocations that failed",
		}),
		ingested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "backup_results_ingested",
			Help: "Number of backup results ingested grouped by delivery type and backup type",
		}, []string{"deliveryType", "backupType"}),
		ingestErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "ingest_errors",
			Help: "Number of failed ingestions grouped by error code",
		}, []string{"code"}),
		ingestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    prefix + "ingest_duration_seconds",
			Help:    "Time taken to ingest a single queued backup result",
			Buckets: prometheus.DefBuckets,
		}),
		received: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "backup_results_received",
			Help: "Number of backup results received grouped by delivery type and verification status",
		}, []string{"deliveryType", "status"}),
		orphanedContent: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "orphaned_content",
			Help: "Number of stored backup results that were never ingested, grouped by delivery type",
		}, []string{"deliveryType"}),
		queueMessageOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "queue_messages",
			Help: "Number of dequeued messages grouped by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) RecordBacklog(available int) {
	m.backlog.Set(float64(available))
}

func (m *Metrics) RecordWorkerInvoked() {
	m.workersInvoked.Inc()
}

func (m *Metrics) RecordWorkerInvokeError() {
	m.workerInvokeErrors.Inc()
}

func (m *Metrics) RecordIngested(meta *model.BackupResultMeta, seconds float64) {
	m.ingested.With(map[string]string{
		"deliveryType": string(meta.DeliveryType),
		"backupType":   meta.BackupType,
	}).Inc()
	m.ingestDuration.Observe(seconds)
	m.queueMessageOutcomes.With(map[string]string{"outcome": outcomeIngested}).Inc()
}

// RecordIngestError counts a failed ingestion. Errors that are not payload errors are counted as "BACKEND".
func (m *Metrics) RecordIngestError(err error) {
	code := "BACKEND"
	outcome := outcomeRetryable
	if payloadErr, ok := bmerrors.IsPayloadError(err); ok {
		code = string(payloadErr.Code)
		outcome = outcomeRejected
	}
	m.ingestErrors.With(map[string]string{"code": code}).Inc()
	m.queueMessageOutcomes.With(map[string]string{"outcome": outcome}).Inc()
}

func (m *Metrics) RecordReceived(deliveryType model.DeliveryType, status model.VerifyStatus) {
	m.received.With(map[string]string{
		"deliveryType": string(deliveryType),
		"status":       string(status),
	}).Inc()
}

func (m *Metrics) RecordOrphanedContent(deliveryType model.DeliveryType, count int) {
	m.orphanedContent.With(map[string]string{"deliveryType": string(deliveryType)}).Set(float64(count))
}
