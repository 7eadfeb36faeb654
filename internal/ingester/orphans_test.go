package ingester

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/model"
)

func TestFindOrphanedBackupResults(t *testing.T) {
	env := newTestEnv()
	orphan := &model.OrphanedBackupResultContent{
		DeliveryType: model.DeliveryTypeEmail,
		BackupId:     "msg-1",
		CreateDate:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	env.store.orphans[model.DeliveryTypeEmail] = []*model.OrphanedBackupResultContent{orphan}

	result, err := env.ingester.FindOrphanedBackupResults(bmcontext.Background(), model.DeliveryTypes, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []*model.OrphanedBackupResultContent{orphan}, result[model.DeliveryTypeEmail])
	assert.Empty(t, result[model.DeliveryTypeHttpPost])
	assert.Len(t, result, 2)
}
