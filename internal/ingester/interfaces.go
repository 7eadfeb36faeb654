package ingester

import (
	"time"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/model"
)

// QueueBackend holds notifications of received backup results until a worker ingests them.
type QueueBackend interface {
	// GetAvailableReceivedBackupResults returns the number of messages waiting to be dequeued.
	GetAvailableReceivedBackupResults(ctx *bmcontext.Context) (int, error)
	QueueReceivedBackupResult(ctx *bmcontext.Context, payload []byte) error
	// DequeueReceivedBackupResults returns at most max messages. Messages that are never resolved are redelivered.
	DequeueReceivedBackupResults(ctx *bmcontext.Context, max int) ([]*model.QueueMessage, error)
	ResolveReceivedBackupResult(ctx *bmcontext.Context, msg *model.QueueMessage) error
	// ExtractPayload unwraps the payload that was originally queued from a dequeued message.
	ExtractPayload(ingestId string, msg *model.QueueMessage) ([]byte, error)
}

// ContentStore holds the raw content of received backup results, keyed by backup id.
type ContentStore interface {
	PutBackupResultContent(ctx *bmcontext.Context, deliveryType model.DeliveryType, backupId string, content []byte) error
	GetBackupResultContent(ctx *bmcontext.Context, backupId string) ([]byte, error)
	ArchiveBackupResultContent(ctx *bmcontext.Context, backupId string, ingestId string) error
	FindOrphanedBackupResultContent(ctx *bmcontext.Context, deliveryType model.DeliveryType, minimumAge time.Duration) ([]*model.OrphanedBackupResultContent, error)
}

// ClientDirectory is the store of clients and their backup results.
type ClientDirectory interface {
	// GetClient returns nil and no error when the client does not exist.
	GetClient(ctx *bmcontext.Context, clientId string, attributes []model.ClientAttribute) (*model.ClientRecord, error)
	AddClient(ctx *bmcontext.Context, clientId string, clientKey string) error
	AddBackupResult(ctx *bmcontext.Context, meta *model.BackupResultMeta, metrics *model.BackupResultMetrics) error
	IncrementBackupResultMetrics(ctx *bmcontext.Context, clientId string, batch []*model.BackupResultMetrics) error
}

// WorkerInvoker starts a queue worker, possibly in another process.
type WorkerInvoker interface {
	InvokeQueueWorker(ctx *bmcontext.Context, payload []byte) error
}
