package ingester

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/backupmon/backupmon/internal/ingester/configuration"
	"github.com/backupmon/backupmon/internal/model"
)

const (
	testClientId  = "client1"
	testClientKey = "s3cr3t"
	testIngestId  = "01hingest"
)

var defaultWorkerConfig = configuration.WorkerConfig{
	MaxWorkers:    10,
	MaxTime:       60 * time.Second,
	StartupTime:   4 * time.Second,
	TimePerResult: 4 * time.Second,
	MinIncrement:  10,
	MinLimit:      3,
	PollInterval:  time.Minute,
}

var testReceivingConfig = configuration.ReceivingConfig{
	Port:         8080,
	EmailPrefix:  "backups",
	EmailDomain:  "example.com",
	MaxBodyBytes: 1 << 20,
}

type testEnv struct {
	queue    *fakeQueue
	store    *fakeStore
	clients  *fakeClients
	invoker  *fakeInvoker
	ingester *Ingester
}

func newTestEnv(opts ...Option) *testEnv {
	env := &testEnv{
		queue:   &fakeQueue{},
		store:   newFakeStore(),
		clients: newFakeClients(map[string]string{testClientId: testClientKey}),
		invoker: &fakeInvoker{},
	}
	opts = append([]Option{WithIngestIdGenerator(func() string { return testIngestId })}, opts...)
	env.ingester = New(env.queue, env.store, env.clients, env.invoker, defaultWorkerConfig, testReceivingConfig, opts...)
	return env
}

func arqEmail() []byte {
	return []byte(strings.Join([]string{
		"Date: Fri, 3 Mar 2017 16:35:30 -0500",
		"Subject: Arq backup report",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<html><body>Uploaded 2.5 MB<br>" +
			"Arq Agent version 7.0.1 started backup session for Macintosh HD on March 3, 2017 at 4:30:04 PM EST<br>" +
			"Backup session for Macintosh HD ended on March 3, 2017 at 4:35:04 PM EST</body></html>",
		"",
	}, "\r\n"))
}

func httpPostEnvelope(t *testing.T, body string) []byte {
	t.Helper()
	content, err := json.Marshal(model.ContentEnvelope{
		Type:         model.ContentEnvelopeType,
		ReceivedDate: "2024-05-01T10:00:00.000Z",
		Body:         body,
	})
	require.NoError(t, err)
	return content
}

func emailPayload(t *testing.T, messageId string, destination ...string) []byte {
	t.Helper()
	payload, err := NewEmailNotificationPayload(messageId, destination)
	require.NoError(t, err)
	return payload
}

func httpPostPayload(t *testing.T, identifier string, backupId string) []byte {
	t.Helper()
	payload, err := NewHttpPostNotificationPayload(identifier, backupId)
	require.NoError(t, err)
	return payload
}

func emailMeta(backupId string) *model.BackupResultMeta {
	return &model.BackupResultMeta{
		DeliveryType: model.DeliveryTypeEmail,
		ClientId:     testClientId,
		ClientKey:    testClientKey,
		BackupType:   "arq",
		BackupId:     backupId,
	}
}
