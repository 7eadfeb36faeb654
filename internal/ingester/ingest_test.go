package ingester

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/common/bmerrors"
	"github.com/backupmon/backupmon/internal/model"
)

func TestIngestBackupResult_Email(t *testing.T) {
	env := newTestEnv()
	env.store.content["msg-1"] = arqEmail()

	err := env.ingester.IngestBackupResult(bmcontext.Background(), testIngestId, emailMeta("msg-1"))
	require.NoError(t, err)

	require.Len(t, env.clients.added, 1)
	added := env.clients.added[0]
	assert.Equal(t, "msg-1", added.meta.BackupId)
	assert.Equal(t, int64(2621440), added.metrics.TotalBytes)
	assert.Equal(t, int64(300000), added.metrics.Duration)
	assert.Equal(t, time.Date(2017, 3, 3, 21, 35, 4, 0, time.UTC), added.metrics.BackupDate)

	assert.Equal(t, map[string]string{"msg-1": testIngestId}, env.store.archived)
	assert.Equal(t, [][]model.ClientAttribute{{model.ClientAttributeId, model.ClientAttributeKey}}, env.clients.lookups)
}

func TestIngestBackupResult_HttpPost(t *testing.T) {
	env := newTestEnv()
	env.store.content["backup-1"] = httpPostEnvelope(t, `{"totalBytes": 1024, "totalItems": 3}`)
	meta := &model.BackupResultMeta{
		DeliveryType: model.DeliveryTypeHttpPost,
		ClientId:     testClientId,
		ClientKey:    testClientKey,
		BackupType:   "json",
		BackupId:     "backup-1",
	}

	err := env.ingester.IngestBackupResult(bmcontext.Background(), testIngestId, meta)
	require.NoError(t, err)

	require.Len(t, env.clients.added, 1)
	assert.Equal(t, int64(1024), env.clients.added[0].metrics.TotalBytes)
	assert.Equal(t, int64(3), env.clients.added[0].metrics.TotalItems)
	assert.Contains(t, env.store.archived, "backup-1")
}

func TestIngestBackupResult_ClientNotFoundNeverFetchesContent(t *testing.T) {
	env := newTestEnv()
	meta := emailMeta("msg-1")
	meta.ClientId = "unknown"

	err := env.ingester.IngestBackupResult(bmcontext.Background(), testIngestId, meta)

	payloadErr, ok := bmerrors.IsPayloadError(err)
	require.True(t, ok)
	assert.Equal(t, bmerrors.CodeClientNotFound, payloadErr.Code)
	assert.Equal(t, testIngestId, payloadErr.IngestId)
	assert.Equal(t, "msg-1", payloadErr.BackupId)
	assert.Equal(t, "unknown", payloadErr.Context["clientId"])
	assert.Equal(t, 0, env.store.getCalls)
	assert.Empty(t, env.clients.added)
	assert.Empty(t, env.store.archived)
}

func TestIngestBackupResult_ClientKeyMismatch(t *testing.T) {
	env := newTestEnv()
	meta := emailMeta("msg-1")
	meta.ClientKey = "wrong"

	err := env.ingester.IngestBackupResult(bmcontext.Background(), testIngestId, meta)

	payloadErr, ok := bmerrors.IsPayloadError(err)
	require.True(t, ok)
	assert.Equal(t, bmerrors.CodeClientKeyMismatch, payloadErr.Code)
	assert.NotContains(t, payloadErr.Error(), "wrong")
	assert.Equal(t, 0, env.store.getCalls)
}

func TestIngestBackupResult_UnsupportedDeliveryType(t *testing.T) {
	env := newTestEnv()
	env.store.content["msg-1"] = arqEmail()
	meta := emailMeta("msg-1")
	meta.DeliveryType = "carrier-pigeon"

	err := env.ingester.IngestBackupResult(bmcontext.Background(), testIngestId, meta)

	payloadErr, ok := bmerrors.IsPayloadError(err)
	require.True(t, ok)
	assert.Equal(t, bmerrors.CodeUnsupportedDeliveryType, payloadErr.Code)
	assert.Equal(t, model.DeliveryType("carrier-pigeon"), payloadErr.Context["deliveryType"])
	assert.Empty(t, env.clients.added)
}

func TestIngestBackupResult_ExtractMetricsFailure(t *testing.T) {
	env := newTestEnv()
	env.store.content["msg-1"] = []byte("Subject: hi\r\nContent-Type: text/html\r\n\r\n<html><body>nothing here</body></html>")

	err := env.ingester.IngestBackupResult(bmcontext.Background(), testIngestId, emailMeta("msg-1"))

	payloadErr, ok := bmerrors.IsPayloadError(err)
	require.True(t, ok)
	assert.Equal(t, bmerrors.CodeExtractMetrics, payloadErr.Code)
	assert.Equal(t, "Extract metrics failed", payloadErr.Message)
	require.NotNil(t, payloadErr.Unwrap())
	assert.Equal(t, "Missing log entries for uploaded bytes", payloadErr.Unwrap().Error())
	assert.Empty(t, env.clients.added)
	assert.Empty(t, env.store.archived)
}

func TestIngestBackupResult_UnknownBackupTypeIsExtractFailure(t *testing.T) {
	env := newTestEnv()
	env.store.content["msg-1"] = arqEmail()
	meta := emailMeta("msg-1")
	meta.BackupType = "borg"

	err := env.ingester.IngestBackupResult(bmcontext.Background(), testIngestId, meta)

	payloadErr, ok := bmerrors.IsPayloadError(err)
	require.True(t, ok)
	assert.Equal(t, bmerrors.CodeExtractMetrics, payloadErr.Code)
	assert.Equal(t, `Parser not available for "borg"`, payloadErr.Unwrap().Error())
}

func TestIngestBackupResult_BackendErrorsPropagate(t *testing.T) {
	backendErr := errors.New("connection reset")

	env := newTestEnv()
	env.clients.getErr = backendErr
	err := env.ingester.IngestBackupResult(bmcontext.Background(), testIngestId, emailMeta("msg-1"))
	assert.Equal(t, backendErr, errors.Cause(err))

	env = newTestEnv()
	env.store.getErr = backendErr
	err = env.ingester.IngestBackupResult(bmcontext.Background(), testIngestId, emailMeta("msg-1"))
	assert.Equal(t, backendErr, errors.Cause(err))
	_, isPayloadErr := bmerrors.IsPayloadError(err)
	assert.False(t, isPayloadErr)

	env = newTestEnv()
	env.store.content["msg-1"] = arqEmail()
	env.clients.addErr = backendErr
	err = env.ingester.IngestBackupResult(bmcontext.Background(), testIngestId, emailMeta("msg-1"))
	assert.Equal(t, backendErr, errors.Cause(err))
	assert.Empty(t, env.store.archived)
}

func TestIngestQueuedBackupResult(t *testing.T) {
	env := newTestEnv()
	env.store.content["msg-1"] = arqEmail()
	msg := &model.QueueMessage{Id: "q1", Body: emailPayload(t, "msg-1", "backups+arq.client1.s3cr3t@example.com")}

	meta, err := env.ingester.IngestQueuedBackupResult(bmcontext.Background(), testIngestId, msg)
	require.NoError(t, err)
	assert.Equal(t, emailMeta("msg-1"), meta)
	assert.Len(t, env.clients.added, 1)
}

func TestIngestQueuedBackupResult_InvalidPayload(t *testing.T) {
	env := newTestEnv()
	msg := &model.QueueMessage{Id: "q1", Body: []byte("garbage")}

	meta, err := env.ingester.IngestQueuedBackupResult(bmcontext.Background(), testIngestId, msg)
	assert.Nil(t, meta)
	payloadErr, ok := bmerrors.IsPayloadError(err)
	require.True(t, ok)
	assert.Equal(t, bmerrors.CodeInvalidQueueJson, payloadErr.Code)
	assert.Equal(t, 0, env.store.getCalls)
}
