package ingester

import (
	"github.com/pkg/errors"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/common/bmerrors"
	"github.com/backupmon/backupmon/internal/model"
)

// IngestQueuedBackupResult ingests the backup result referenced by a dequeued message and returns its metadata.
func (i *Ingester) IngestQueuedBackupResult(ctx *bmcontext.Context, ingestId string, msg *model.QueueMessage) (*model.BackupResultMeta, error) {
	ctx.Log.Debug("Extract queue message payload")
	payload, err := i.queue.ExtractPayload(ingestId, msg)
	if err != nil {
		return nil, err
	}

	ctx.Log.Debug("Extract backup result meta")
	meta, err := i.ExtractBackupResultMeta(ctx, ingestId, payload)
	if err != nil {
		return nil, err
	}

	if err := i.IngestBackupResult(ctx, ingestId, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// IngestBackupResult verifies the client, extracts and records the metrics of the stored content, then archives
// the content. Steps run in order and the first failure is returned.
func (i *Ingester) IngestBackupResult(ctx *bmcontext.Context, ingestId string, meta *model.BackupResultMeta) error {
	ctx = bmcontext.WithLogFields(ctx, map[string]interface{}{
		"backupId":     meta.BackupId,
		"clientId":     meta.ClientId,
		"deliveryType": meta.DeliveryType,
		"backupType":   meta.BackupType,
	})
	ctx.Log.Debug("Ingesting backup result")

	ctx.Log.Debug("Verify client")
	match, err := VerifyClient(ctx, i.clients, meta.ClientId, meta.ClientKey)
	if err != nil {
		return err
	}
	switch match {
	case model.ClientNotFound:
		return payloadError(ingestId, meta, bmerrors.CodeClientNotFound,
			"Client not found: "+meta.ClientId,
			map[string]interface{}{"clientId": meta.ClientId})
	case model.ClientKeyMismatch:
		return payloadError(ingestId, meta, bmerrors.CodeClientKeyMismatch,
			"Client key mismatch for "+meta.ClientId,
			map[string]interface{}{"clientId": meta.ClientId})
	}

	content, err := i.store.GetBackupResultContent(ctx, meta.BackupId)
	if err != nil {
		return errors.WithMessagef(err, "error fetching content of backup %s", meta.BackupId)
	}

	metrics, err := i.extractMetrics(ctx, ingestId, meta, content)
	if err != nil {
		return err
	}

	ctx.Log.WithField("backupDate", model.FormatIso(metrics.BackupDate)).Debug("Add backup result to DB")
	if err := i.clients.AddBackupResult(ctx, meta, metrics); err != nil {
		return errors.WithMessagef(err, "error adding backup %s", meta.BackupId)
	}

	ctx.Log.Debug("Archive backup result content")
	if err := i.store.ArchiveBackupResultContent(ctx, meta.BackupId, ingestId); err != nil {
		return errors.WithMessagef(err, "error archiving backup %s", meta.BackupId)
	}
	return nil
}

func (i *Ingester) extractMetrics(ctx *bmcontext.Context, ingestId string, meta *model.BackupResultMeta, content []byte) (*model.BackupResultMetrics, error) {
	var metrics *model.BackupResultMetrics
	var err error

	switch meta.DeliveryType {
	case model.DeliveryTypeEmail:
		ctx.Log.Debugf("Extract metrics from %s delivery", meta.DeliveryType)
		metrics, err = i.registry.ExtractEmailMetrics(ctx, meta.BackupType, content)
	case model.DeliveryTypeHttpPost:
		ctx.Log.Debugf("Extract metrics from %s delivery", meta.DeliveryType)
		metrics, err = i.registry.ExtractHttpPostMetrics(ctx, meta.BackupType, content)
	default:
		return nil, payloadError(ingestId, meta, bmerrors.CodeUnsupportedDeliveryType,
			"Unsupported delivery type: "+string(meta.DeliveryType),
			map[string]interface{}{"deliveryType": meta.DeliveryType})
	}

	if err != nil {
		return nil, payloadError(ingestId, meta, bmerrors.CodeExtractMetrics,
			"Extract metrics failed",
			map[string]interface{}{"extractMetricsError": err})
	}
	return metrics, nil
}

func payloadError(ingestId string, meta *model.BackupResultMeta, code bmerrors.PayloadErrorCode, message string, context map[string]interface{}) error {
	return &bmerrors.InvalidBackupPayloadError{
		Message:  message,
		Code:     code,
		IngestId: ingestId,
		BackupId: meta.BackupId,
		Context:  context,
	}
}
