// Package httppost extracts backup metrics from results that agents post as JSON.
package httppost

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/pkg/errors"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/common/util"
	"github.com/backupmon/backupmon/internal/model"
)

// numericFields are the optional whole number fields of a posted result, in the order they are checked.
var numericFields = []string{"duration", "totalBytes", "totalItems", "errorCount"}

type envelope struct {
	Body         json.RawMessage `json:"body"`
	IsBase64     bool            `json:"isBase64"`
	ReceivedDate string          `json:"receivedDate"`
}

// ExtractMetrics validates a stored content envelope and the JSON result in its body.
func ExtractMetrics(ctx *bmcontext.Context, content []byte) (*model.BackupResultMetrics, error) {
	var env envelope
	if err := json.Unmarshal(content, &env); err != nil {
		return nil, errors.Errorf("Invalid JSON (%s)", err)
	}

	var body string
	if !bytes.HasPrefix(bytes.TrimSpace(env.Body), []byte(`"`)) || json.Unmarshal(env.Body, &body) != nil {
		return nil, errors.New(`Expected "body" to be a string`)
	}

	raw := []byte(body)
	if env.IsBase64 {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, errors.Errorf("Invalid JSON (%s)", err)
		}
		raw = decoded
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var parsed interface{}
	if err := decoder.Decode(&parsed); err != nil {
		return nil, errors.Errorf("Invalid JSON (%s)", err)
	}
	fields, ok := parsed.(map[string]interface{})
	if !ok {
		return nil, errors.New("Invalid JSON (non-object)")
	}

	metrics := &model.BackupResultMetrics{ErrorMessages: []string{}}

	if value, ok := fields["backupDate"]; ok {
		date, isString := value.(string)
		if !isString {
			return nil, errors.Errorf(`Invalid "backupDate": %s`, stringify(value))
		}
		backupDate, err := util.ParseTimestamp(date)
		if err != nil {
			return nil, errors.Errorf(`Invalid "backupDate": %s`, stringify(value))
		}
		metrics.BackupDate = backupDate.UTC()
	} else {
		receivedDate, err := util.ParseTimestamp(env.ReceivedDate)
		if err != nil {
			return nil, errors.Errorf(`Invalid "receivedDate": %s`, stringify(env.ReceivedDate))
		}
		metrics.BackupDate = receivedDate.UTC()
	}

	for _, field := range numericFields {
		value, ok := fields[field]
		if !ok {
			continue
		}
		n, err := wholeNumber(field, value)
		if err != nil {
			return nil, err
		}
		switch field {
		case "duration":
			metrics.Duration = n
		case "totalBytes":
			metrics.TotalBytes = n
		case "totalItems":
			metrics.TotalItems = n
		case "errorCount":
			metrics.ErrorCount = n
		}
	}

	if value, ok := fields["errorMessages"]; ok {
		messages, isArray := value.([]interface{})
		if !isArray {
			return nil, errors.New(`Expected "errorMessages" to be an array`)
		}
		for _, message := range messages {
			s, isString := message.(string)
			if !isString {
				return nil, errors.New(`Expected "errorMessages" to only have strings`)
			}
			metrics.ErrorMessages = append(metrics.ErrorMessages, s)
		}
	}

	ctx.Log.WithField("backupDate", model.FormatIso(metrics.BackupDate)).Debug("Extracted posted metrics")
	return metrics, nil
}

// wholeNumber checks that value is a finite, non-negative integer.
func wholeNumber(field string, value interface{}) (int64, error) {
	number, ok := value.(json.Number)
	if !ok {
		return 0, fieldError(field, "a number", value)
	}
	f, err := strconv.ParseFloat(number.String(), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fieldError(field, "a number", value)
	}
	if f < 0 {
		return 0, fieldError(field, "a positive number", value)
	}
	if f != math.Trunc(f) {
		return 0, fieldError(field, "a whole number", value)
	}
	if f >= math.MaxInt64 {
		return 0, fieldError(field, "a number", value)
	}
	if n, err := number.Int64(); err == nil {
		return n, nil
	}
	return int64(f), nil
}

func fieldError(field string, expected string, value interface{}) error {
	return errors.Errorf("Expected %q to be %s: %s", field, expected, stringify(value))
}

func stringify(value interface{}) string {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(b)
}
