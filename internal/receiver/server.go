// Package receiver exposes the receiving service over HTTP.
//
// Backup results are posted to /backupresult/{identifier} and raw e-mails, as forwarded by a mail relay, to
// /email. Both are verified against the client directory before anything is stored.
package receiver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/common/bmerrors"
	"github.com/backupmon/backupmon/internal/common/health"
	"github.com/backupmon/backupmon/internal/common/logging"
	"github.com/backupmon/backupmon/internal/common/requestid"
	"github.com/backupmon/backupmon/internal/common/util"
	"github.com/backupmon/backupmon/internal/model"
)

const (
	backupResultPath = "/backupresult/{identifier}"
	emailPath        = "/email"
	healthPath       = "/health"

	recipientParam = "recipient"
)

// Service is the part of the receiving service the HTTP endpoints call.
type Service interface {
	VerifyBackupResultIdentifier(ctx *bmcontext.Context, identifier string) (*model.VerifyIdentifierResult, error)
	ReceiveBackupResult(ctx *bmcontext.Context, identifier *model.BackupResultIdentifier, backupId string, body []byte, isBinary bool) error
	ReceiveEmail(ctx *bmcontext.Context, messageId string, recipients []string, content []byte) (*model.VerifyEmailRecipientsResult, error)
}

type Server struct {
	service      Service
	maxBodyBytes int64
	newId        func() string
	router       *mux.Router
	handler      http.Handler
}

type backupResultResponse struct {
	Status   model.VerifyStatus `json:"status"`
	BackupId string             `json:"backupId,omitempty"`
}

type emailResponse struct {
	Status      model.VerifyStatus `json:"status"`
	MessageId   string             `json:"messageId,omitempty"`
	Matching    []string           `json:"matching"`
	NonMatching []string           `json:"nonMatching"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer routes the receiving endpoints to service. Request bodies larger than maxBodyBytes are rejected.
func NewServer(service Service, checker health.Checker, maxBodyBytes int64) *Server {
	s := &Server{
		service:      service,
		maxBodyBytes: maxBodyBytes,
		newId:        util.NewBackupId,
		router:       mux.NewRouter(),
	}
	s.router.HandleFunc(backupResultPath, s.postBackupResult).Methods(http.MethodPost)
	s.router.HandleFunc(emailPath, s.postEmail).Methods(http.MethodPost)
	if checker != nil {
		s.router.Handle(healthPath, health.NewHealthCheckHttpHandler(checker)).Methods(http.MethodGet)
	}
	s.handler = requestid.Middleware(s.router)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) postBackupResult(w http.ResponseWriter, r *http.Request) {
	ctx := s.requestContext(r)
	identifier := mux.Vars(r)["identifier"]

	verified, err := s.service.VerifyBackupResultIdentifier(ctx, identifier)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	if verified.Status != model.VerifyClientKeyMatched {
		ctx.Log.WithField("status", verified.Status).Info("Rejected backup result")
		writeJson(ctx, w, statusCode(verified.Status), backupResultResponse{Status: verified.Status})
		return
	}

	body, err := s.readBody(w, r)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}

	backupId := s.newId()
	ctx = bmcontext.WithLogField(ctx, "backupId", backupId)
	if err := s.service.ReceiveBackupResult(ctx, verified.Identifier, backupId, body, !utf8.Valid(body)); err != nil {
		s.writeError(ctx, w, err)
		return
	}
	ctx.Log.WithField("clientId", verified.Identifier.ClientId).Info("Received backup result")
	writeJson(ctx, w, http.StatusAccepted, backupResultResponse{Status: verified.Status, BackupId: backupId})
}

func (s *Server) postEmail(w http.ResponseWriter, r *http.Request) {
	ctx := s.requestContext(r)
	recipients := r.URL.Query()[recipientParam]
	if len(recipients) == 0 {
		s.writeError(ctx, w, &bmerrors.ErrInvalidArgument{Name: recipientParam, Value: "", Message: "at least one recipient is required"})
		return
	}

	content, err := s.readBody(w, r)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}

	messageId := s.newId()
	ctx = bmcontext.WithLogField(ctx, "backupId", messageId)
	result, err := s.service.ReceiveEmail(ctx, messageId, recipients, content)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}

	response := emailResponse{Status: result.Status, Matching: []string{}, NonMatching: result.NonMatching}
	for _, recipient := range result.Matching {
		response.Matching = append(response.Matching, recipient.Original)
	}
	if result.Status != model.VerifyClientKeyMatched {
		ctx.Log.WithField("status", result.Status).Info("Rejected e-mail")
		writeJson(ctx, w, statusCode(result.Status), response)
		return
	}
	response.MessageId = messageId
	ctx.Log.Info("Received e-mail")
	writeJson(ctx, w, http.StatusAccepted, response)
}

func (s *Server) requestContext(r *http.Request) *bmcontext.Context {
	return bmcontext.WithLogFields(bmcontext.FromContext(r.Context()), logrus.Fields{
		"requestId": requestid.FromContextOrMissing(r.Context()),
		"path":      r.URL.Path,
	})
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &bodyTooLargeError{limit: tooLarge.Limit}
		}
		return nil, errors.Wrap(err, "error reading request body")
	}
	return body, nil
}

type bodyTooLargeError struct {
	limit int64
}

func (err *bodyTooLargeError) Error() string {
	return fmt.Sprintf("request body exceeds %d bytes", err.limit)
}

// statusCode maps a failed verification to the status returned to the sender.
func statusCode(status model.VerifyStatus) int {
	switch status {
	case model.VerifyClientKeyMatched:
		return http.StatusAccepted
	case model.VerifyClientNotFound:
		return http.StatusNotFound
	case model.VerifyClientKeyMismatch:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) writeError(ctx *bmcontext.Context, w http.ResponseWriter, err error) {
	code := bmerrors.HTTPStatusFromError(err)
	var tooLarge *bodyTooLargeError
	if errors.As(err, &tooLarge) {
		code = http.StatusRequestEntityTooLarge
	}
	if code >= http.StatusInternalServerError {
		logging.WithStacktrace(ctx.Log, err).Error("Error receiving backup result")
		writeJson(ctx, w, code, errorResponse{Error: http.StatusText(code)})
		return
	}
	ctx.Log.WithError(err).Info("Rejected request")
	writeJson(ctx, w, code, errorResponse{Error: err.Error()})
}

func writeJson(ctx *bmcontext.Context, w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		ctx.Log.WithError(err).Warn("Error writing response")
	}
}
