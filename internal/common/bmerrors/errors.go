// Package bmerrors contains the error taxonomy shared by the ingestion pipeline and its backends.
//
// Three kinds of errors are distinguished:
//   - PayloadExtractError is an internal signal raised by a metadata extractor that does not recognise a
//     queue payload. It is always consumed by the dispatcher and never surfaced to operators.
//   - InvalidBackupPayloadError is a terminal, operator-facing failure to ingest a backup result. Callers should
//     branch only on its Code.
//   - InvalidClientError is reserved for identity failures outside of ingestion.
//
// Generic resource errors (ErrNotFound, ErrInvalidArgument) are returned by backends and mapped to HTTP status
// codes by HTTPStatusFromError.
package bmerrors

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// PayloadErrorCode is the stable set of codes carried by InvalidBackupPayloadError.
type PayloadErrorCode string

const (
	CodeClientNotFound          PayloadErrorCode = "CLIENT_NOT_FOUND"
	CodeClientKeyMismatch       PayloadErrorCode = "CLIENT_KEY_MISMATCH"
	CodeUnsupportedDeliveryType PayloadErrorCode = "UNSUPPORTED_DELIVERY_TYPE"
	CodeExtractMetrics          PayloadErrorCode = "EXTRACT_METRICS"
	CodeInvalidQueueJson        PayloadErrorCode = "INVALID_QUEUE_JSON"
)

// PayloadExtractError signals that an extractor does not recognise the payload it was given.
type PayloadExtractError struct {
	Message string
}

func NewPayloadExtractError(format string, args ...interface{}) *PayloadExtractError {
	return &PayloadExtractError{Message: fmt.Sprintf(format, args...)}
}

func (err *PayloadExtractError) Error() string {
	return err.Message
}

// InvalidBackupPayloadError is returned when a backup result can never be ingested.
// BackupId is empty when the failure happened before the backup id was known.
type InvalidBackupPayloadError struct {
	Message  string
	Code     PayloadErrorCode
	IngestId string
	BackupId string
	Context  map[string]interface{}
}

func (err *InvalidBackupPayloadError) Error() string {
	if err.BackupId == "" {
		return fmt.Sprintf("%s: %s (ingest %s)", err.Code, err.Message, err.IngestId)
	}
	return fmt.Sprintf("%s: %s (ingest %s, backup %s)", err.Code, err.Message, err.IngestId, err.BackupId)
}

// Unwrap returns the extractor failure carried by EXTRACT_METRICS errors.
func (err *InvalidBackupPayloadError) Unwrap() error {
	if cause, ok := err.Context["extractMetricsError"].(error); ok {
		return cause
	}
	return nil
}

// InvalidClientError is reserved for failures identifying a client outside of the ingestion path.
type InvalidClientError struct {
	Message  string
	Code     string
	ClientId string
}

func (err *InvalidClientError) Error() string {
	return fmt.Sprintf("%s: %s (client %s)", err.Code, err.Message, err.ClientId)
}

// ErrNotFound is a generic error to be returned whenever some resource isn't found.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrNotFound struct {
	Type    string
	Value   string
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q does not exist", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	} else {
		return s
	}
}

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "identifier"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message to include with the error message, e.g., explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %q is invalid for field %q", err.Value, err.Name)
	} else {
		return fmt.Sprintf("value %q is invalid for field %q; %s", err.Value, err.Name, err.Message)
	}
}

// IsPayloadError reports whether err is, or wraps, a terminal payload error, and returns it if so.
func IsPayloadError(err error) (*InvalidBackupPayloadError, bool) {
	var e *InvalidBackupPayloadError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatusFromError maps error types to HTTP status codes.
// Uses errors.As to look through the chain of errors, as opposed to just considering the topmost error in the chain.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	{
		var e *ErrNotFound
		if errors.As(err, &e) {
			return http.StatusNotFound
		}
	}
	{
		var e *ErrInvalidArgument
		if errors.As(err, &e) {
			return http.StatusBadRequest
		}
	}
	{
		var e *InvalidClientError
		if errors.As(err, &e) {
			return http.StatusForbidden
		}
	}
	{
		var e *InvalidBackupPayloadError
		if errors.As(err, &e) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}
