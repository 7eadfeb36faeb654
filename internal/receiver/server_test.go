package receiver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/common/bmerrors"
	"github.com/backupmon/backupmon/internal/common/health"
	"github.com/backupmon/backupmon/internal/common/requestid"
	"github.com/backupmon/backupmon/internal/model"
)

type received struct {
	identifier *model.BackupResultIdentifier
	backupId   string
	body       []byte
	isBinary   bool
}

type fakeService struct {
	verifyStatus model.VerifyStatus
	emailStatus  model.VerifyStatus
	verifyErr    error
	receiveErr   error
	received     []received
	emails       map[string][]byte
	recipients   []string
}

func (f *fakeService) VerifyBackupResultIdentifier(_ *bmcontext.Context, identifier string) (*model.VerifyIdentifierResult, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	parts := strings.Split(identifier, ".")
	if len(parts) != 3 {
		return &model.VerifyIdentifierResult{Status: model.VerifyInvalidIdentifier}, nil
	}
	return &model.VerifyIdentifierResult{
		Status: f.verifyStatus,
		Identifier: &model.BackupResultIdentifier{
			Original:   identifier,
			BackupType: parts[0],
			ClientId:   parts[1],
			ClientKey:  parts[2],
		},
	}, nil
}

func (f *fakeService) ReceiveBackupResult(_ *bmcontext.Context, identifier *model.BackupResultIdentifier, backupId string, body []byte, isBinary bool) error {
	if f.receiveErr != nil {
		return f.receiveErr
	}
	f.received = append(f.received, received{identifier: identifier, backupId: backupId, body: body, isBinary: isBinary})
	return nil
}

func (f *fakeService) ReceiveEmail(_ *bmcontext.Context, messageId string, recipients []string, content []byte) (*model.VerifyEmailRecipientsResult, error) {
	f.recipients = recipients
	result := &model.VerifyEmailRecipientsResult{Status: f.emailStatus, Matching: []*model.EmailRecipient{}, NonMatching: []string{}}
	for _, recipient := range recipients {
		if strings.Contains(recipient, "+") {
			result.Matching = append(result.Matching, &model.EmailRecipient{BackupResultIdentifier: model.BackupResultIdentifier{Original: recipient}})
		} else {
			result.NonMatching = append(result.NonMatching, recipient)
		}
	}
	if f.emailStatus == model.VerifyClientKeyMatched {
		if f.emails == nil {
			f.emails = map[string][]byte{}
		}
		f.emails[messageId] = content
	}
	return result, nil
}

func newTestServer(service Service) *Server {
	s := NewServer(service, health.CheckerFunc(func() error { return nil }), 64)
	s.newId = func() string { return "backup-1" }
	return s
}

func post(t *testing.T, s *Server, target string, body []byte) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	recorder := httptest.NewRecorder()
	s.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body)))
	response := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	return recorder, response
}

func TestPostBackupResult_Accepted(t *testing.T) {
	service := &fakeService{verifyStatus: model.VerifyClientKeyMatched}
	recorder, response := post(t, newTestServer(service), "/backupresult/arq.client-1.key1", []byte(`{"totalBytes":1024}`))

	assert.Equal(t, http.StatusAccepted, recorder.Code)
	assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))
	assert.Equal(t, "backup-1", response["backupId"])
	assert.Equal(t, string(model.VerifyClientKeyMatched), response["status"])

	require.Len(t, service.received, 1)
	assert.Equal(t, "client-1", service.received[0].identifier.ClientId)
	assert.Equal(t, "backup-1", service.received[0].backupId)
	assert.Equal(t, `{"totalBytes":1024}`, string(service.received[0].body))
	assert.False(t, service.received[0].isBinary)
}

func TestPostBackupResult_BinaryBody(t *testing.T) {
	service := &fakeService{verifyStatus: model.VerifyClientKeyMatched}
	recorder, _ := post(t, newTestServer(service), "/backupresult/arq.client-1.key1", []byte{0xff, 0xfe, 0x00})

	assert.Equal(t, http.StatusAccepted, recorder.Code)
	require.Len(t, service.received, 1)
	assert.True(t, service.received[0].isBinary)
}

func TestPostBackupResult_Rejected(t *testing.T) {
	tests := map[string]struct {
		identifier string
		status     model.VerifyStatus
		expected   int
	}{
		"invalid identifier": {identifier: "not-an-identifier", status: model.VerifyClientKeyMatched, expected: http.StatusBadRequest},
		"unknown client":     {identifier: "arq.client-1.key1", status: model.VerifyClientNotFound, expected: http.StatusNotFound},
		"key mismatch":       {identifier: "arq.client-1.key1", status: model.VerifyClientKeyMismatch, expected: http.StatusForbidden},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			service := &fakeService{verifyStatus: tc.status}
			recorder, response := post(t, newTestServer(service), "/backupresult/"+tc.identifier, []byte("body"))

			assert.Equal(t, tc.expected, recorder.Code)
			assert.NotContains(t, response, "backupId")
			assert.Empty(t, service.received)
		})
	}
}

func TestPostBackupResult_BodyTooLarge(t *testing.T) {
	service := &fakeService{verifyStatus: model.VerifyClientKeyMatched}
	recorder, response := post(t, newTestServer(service), "/backupresult/arq.client-1.key1", bytes.Repeat([]byte("a"), 65))

	assert.Equal(t, http.StatusRequestEntityTooLarge, recorder.Code)
	assert.Equal(t, "request body exceeds 64 bytes", response["error"])
	assert.Empty(t, service.received)
}

func TestPostBackupResult_BackendErrors(t *testing.T) {
	service := &fakeService{verifyErr: errors.New("database is down")}
	recorder, response := post(t, newTestServer(service), "/backupresult/arq.client-1.key1", []byte("body"))
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), response["error"])

	service = &fakeService{
		verifyStatus: model.VerifyClientKeyMatched,
		receiveErr:   errors.WithMessage(&bmerrors.ErrInvalidArgument{Name: "backupId", Value: ".."}, "error storing backup"),
	}
	recorder, _ = post(t, newTestServer(service), "/backupresult/arq.client-1.key1", []byte("body"))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestPostEmail_Accepted(t *testing.T) {
	service := &fakeService{emailStatus: model.VerifyClientKeyMatched}
	target := "/email?recipient=backups%2Barq.client-1.key1@example.com&recipient=ops@example.com"
	recorder, response := post(t, newTestServer(service), target, []byte("Subject: Backup\r\n\r\nbody"))

	assert.Equal(t, http.StatusAccepted, recorder.Code)
	assert.Equal(t, "backup-1", response["messageId"])
	assert.Equal(t, []interface{}{"backups+arq.client-1.key1@example.com"}, response["matching"])
	assert.Equal(t, []interface{}{"ops@example.com"}, response["nonMatching"])
	assert.Equal(t, []string{"backups+arq.client-1.key1@example.com", "ops@example.com"}, service.recipients)
	assert.Equal(t, "Subject: Backup\r\n\r\nbody", string(service.emails["backup-1"]))
}

func TestPostEmail_NoMatches(t *testing.T) {
	service := &fakeService{emailStatus: model.VerifyNoMatches}
	recorder, response := post(t, newTestServer(service), "/email?recipient=ops@example.com", []byte("body"))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, string(model.VerifyNoMatches), response["status"])
	assert.NotContains(t, response, "messageId")
	assert.Empty(t, service.emails)
}

func TestPostEmail_MissingRecipient(t *testing.T) {
	service := &fakeService{emailStatus: model.VerifyClientKeyMatched}
	recorder, _ := post(t, newTestServer(service), "/email", []byte("body"))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Nil(t, service.recipients)
}

func TestHealth(t *testing.T) {
	recorder := httptest.NewRecorder()
	newTestServer(&fakeService{}).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusNoContent, recorder.Code)
}

func TestUnknownRoute(t *testing.T) {
	recorder := httptest.NewRecorder()
	newTestServer(&fakeService{}).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/backupresult/arq.client-1.key1", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}

func TestRequestIdEchoed(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/backupresult/bad", bytes.NewReader(nil))
	r.Header.Set(requestid.HeaderKey, "relay-42")
	recorder := httptest.NewRecorder()

	newTestServer(&fakeService{}).ServeHTTP(recorder, r)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "relay-42", recorder.Header().Get(requestid.HeaderKey))
}
