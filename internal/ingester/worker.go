package ingester

import (
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/common/bmerrors"
	"github.com/backupmon/backupmon/internal/common/logging"
	"github.com/backupmon/backupmon/internal/model"
)

// RunQueueWorker dequeues a batch of messages and ingests each of them in turn, stopping early when the worker
// time limit is reached. A message is resolved once ingested, or when its payload can never be ingested;
// messages that failed for any other reason are left on the queue for redelivery until they have been received
// MaxReceiveCount times. The time limit only stops further messages from being started.
// The returned error holds one entry per message that failed.
func (i *Ingester) RunQueueWorker(ctx *bmcontext.Context, payload []byte) error {
	request, err := ParseWorkerRequest(payload)
	if err != nil {
		return err
	}
	if request.RequestId != "" {
		ctx = bmcontext.WithLogField(ctx, "requestId", request.RequestId)
	}
	maxResults := request.MaxResults
	if maxResults <= 0 {
		maxResults = i.config.DequeueSize()
	}

	deadline := time.Now().Add(i.config.MaxTime)

	messages, err := i.queue.DequeueReceivedBackupResults(ctx, maxResults)
	if err != nil {
		return errors.WithMessage(err, "error dequeuing backup results")
	}
	ctx.Log.Debugf("Dequeued %d backup results", len(messages))

	var result *multierror.Error
	for _, msg := range messages {
		if !time.Now().Before(deadline) {
			ctx.Log.Warnf("Worker time limit reached; leaving message %s for redelivery", msg.Id)
			continue
		}
		if err := i.ingestMessage(ctx, msg); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (i *Ingester) ingestMessage(ctx *bmcontext.Context, msg *model.QueueMessage) error {
	ingestId := i.newIngestId()
	ctx = bmcontext.WithLogFields(ctx, map[string]interface{}{
		"ingestId":     ingestId,
		"messageId":    msg.Id,
		"receiveCount": msg.ReceiveCount,
	})

	start := time.Now()
	meta, err := i.IngestQueuedBackupResult(ctx, ingestId, msg)
	if err == nil {
		i.metrics.RecordIngested(meta, time.Since(start).Seconds())
		ctx.Log.WithField("backupId", meta.BackupId).Info("Ingested backup result")
		return i.resolve(ctx, msg)
	}

	i.metrics.RecordIngestError(err)
	if payloadErr, ok := bmerrors.IsPayloadError(err); ok {
		ctx.Log.WithField("code", payloadErr.Code).
			WithField("backupId", payloadErr.BackupId).
			WithField("context", payloadErr.Context).
			Error(payloadErr.Message)
		if resolveErr := i.resolve(ctx, msg); resolveErr != nil {
			return multierror.Append(err, resolveErr)
		}
		return err
	}

	if limit := i.config.MaxReceiveCount; limit > 0 && msg.ReceiveCount >= limit {
		logging.WithStacktrace(ctx.Log, err).Errorf("Error ingesting backup result; giving up after %d deliveries", msg.ReceiveCount)
		if resolveErr := i.resolve(ctx, msg); resolveErr != nil {
			return multierror.Append(err, resolveErr)
		}
		return err
	}
	logging.WithStacktrace(ctx.Log, err).Error("Error ingesting backup result; leaving it for redelivery")
	return err
}

func (i *Ingester) resolve(ctx *bmcontext.Context, msg *model.QueueMessage) error {
	if err := i.queue.ResolveReceivedBackupResult(ctx, msg); err != nil {
		logging.WithStacktrace(ctx.Log, err).Errorf("Error resolving message %s", msg.Id)
		return errors.WithMessagef(err, "error resolving message %s", msg.Id)
	}
	return nil
}
