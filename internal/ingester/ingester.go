// Package ingester turns queued notifications of received backup results into stored metrics.
//
// A consumer periodically checks the queue backlog and invokes enough workers to drain it. Each worker
// dequeues a batch of messages and ingests them one at a time: the client is verified, the stored content is
// fetched, metrics are extracted by the parser registered for the backup type, the metrics are recorded
// against the client and finally the content is archived.
package ingester

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/backupmon/backupmon/internal/common/util"
	"github.com/backupmon/backupmon/internal/extract"
	"github.com/backupmon/backupmon/internal/identity"
	"github.com/backupmon/backupmon/internal/ingester/configuration"
	"github.com/backupmon/backupmon/internal/ingester/metrics"
)

type Ingester struct {
	queue          QueueBackend
	store          ContentStore
	clients        ClientDirectory
	invoker        WorkerInvoker
	registry       *extract.Registry
	metaExtractors []MetaExtractor
	config         configuration.WorkerConfig
	metrics        *metrics.Metrics
	newIngestId    func() string
}

type Option func(*Ingester)

// WithMetaExtractor adds a queue payload format, tried after the built in ones.
func WithMetaExtractor(name string, extract MetaExtractFunc) Option {
	return func(i *Ingester) {
		i.metaExtractors = append(i.metaExtractors, MetaExtractor{Name: name, Extract: extract})
	}
}

func WithRegistry(registry *extract.Registry) Option {
	return func(i *Ingester) {
		i.registry = registry
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Ingester) {
		i.metrics = m
	}
}

// WithIngestIdGenerator replaces the ULID generator used for ingest ids.
func WithIngestIdGenerator(generate func() string) Option {
	return func(i *Ingester) {
		i.newIngestId = generate
	}
}

// New creates an Ingester. E-mail notifications are only accepted for recipients matching the prefix and
// domain in receivingConfig.
func New(
	queue QueueBackend,
	store ContentStore,
	clients ClientDirectory,
	invoker WorkerInvoker,
	workerConfig configuration.WorkerConfig,
	receivingConfig configuration.ReceivingConfig,
	opts ...Option,
) *Ingester {
	i := &Ingester{
		queue:   queue,
		store:   store,
		clients: clients,
		invoker: invoker,
		config:  workerConfig,
		metaExtractors: []MetaExtractor{
			EmailMetaExtractor(recipientConstraints(receivingConfig)),
			HttpPostMetaExtractor(),
		},
		newIngestId: util.NewULID,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.registry == nil {
		i.registry = extract.DefaultRegistry()
	}
	if i.metrics == nil {
		i.metrics = metrics.NewMetrics(metrics.MetricsPrefix, prometheus.NewRegistry())
	}
	return i
}

func recipientConstraints(c configuration.ReceivingConfig) *identity.RecipientConstraints {
	return &identity.RecipientConstraints{
		Prefix: c.EmailPrefix,
		Domain: c.EmailDomain,
	}
}
