package ingester

import (
	"time"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/model"
)

// FindOrphanedBackupResults reports stored content older than minimumAge that was never ingested, per delivery
// type. Each orphan is logged as a warning.
func (i *Ingester) FindOrphanedBackupResults(
	ctx *bmcontext.Context,
	deliveryTypes []model.DeliveryType,
	minimumAge time.Duration,
) (map[model.DeliveryType][]*model.OrphanedBackupResultContent, error) {
	result := map[model.DeliveryType][]*model.OrphanedBackupResultContent{}
	for _, deliveryType := range deliveryTypes {
		orphans, err := i.store.FindOrphanedBackupResultContent(ctx, deliveryType, minimumAge)
		if err != nil {
			return nil, err
		}
		i.metrics.RecordOrphanedContent(deliveryType, len(orphans))
		for _, orphan := range orphans {
			ctx.Log.WithField("deliveryType", orphan.DeliveryType).
				WithField("backupId", orphan.BackupId).
				WithField("createDate", model.FormatIso(orphan.CreateDate)).
				Warn("Found orphaned backup result content")
		}
		result[deliveryType] = orphans
	}
	return result, nil
}
