// Package mail decodes the raw RFC 5322 messages that backup agents send into the parts the extractors need.
package mail

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Message is a decoded e-mail. Html and Text are empty when the message has no part of that type.
type Message struct {
	Subject      string
	Date         *time.Time
	ReceivedDate *time.Time
	Html         string
	Text         string
	HasHtml      bool
}

// maxDepth bounds the nesting of multipart bodies.
const maxDepth = 10

var wordDecoder = &mime.WordDecoder{}

// Parse decodes a raw message.
func Parse(content []byte) (*Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(content))
	if err != nil {
		return nil, errors.Wrap(err, "error reading e-mail")
	}

	result := &Message{}

	if subject := msg.Header.Get("Subject"); subject != "" {
		if decoded, err := wordDecoder.DecodeHeader(subject); err == nil {
			result.Subject = decoded
		} else {
			result.Subject = subject
		}
	}

	if date, err := msg.Header.Date(); err == nil {
		result.Date = &date
	}
	result.ReceivedDate = receivedDate(msg.Header["Received"])

	err = readPart(result, msg.Header, msg.Body, 0)
	if err != nil {
		return nil, err
	}
	return result, nil
}

type headerGetter interface {
	Get(key string) string
}

// receivedDate returns the timestamp of the most recent Received header, which follows its final ';'.
func receivedDate(received []string) *time.Time {
	if len(received) == 0 {
		return nil
	}
	idx := strings.LastIndex(received[0], ";")
	if idx < 0 {
		return nil
	}
	date, err := mail.ParseDate(strings.TrimSpace(received[0][idx+1:]))
	if err != nil {
		return nil
	}
	return &date
}

func readPart(result *Message, header headerGetter, body io.Reader, depth int) error {
	if depth > maxDepth {
		return errors.Errorf("e-mail is nested deeper than %d parts", maxDepth)
	}

	mediaType, params, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		reader := multipart.NewReader(body, params["boundary"])
		for {
			part, err := reader.NextRawPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return errors.Wrap(err, "error reading multipart e-mail")
			}
			if err := readPart(result, part.Header, part, depth+1); err != nil {
				return err
			}
		}
	}

	if strings.EqualFold(header.Get("Content-Disposition"), "attachment") ||
		strings.HasPrefix(strings.ToLower(header.Get("Content-Disposition")), "attachment;") {
		return nil
	}

	switch mediaType {
	case "text/html":
		if result.HasHtml {
			return nil
		}
		decoded, err := decodeBody(header.Get("Content-Transfer-Encoding"), body)
		if err != nil {
			return err
		}
		result.Html = string(decoded)
		result.HasHtml = true
	case "text/plain":
		if result.Text != "" {
			return nil
		}
		decoded, err := decodeBody(header.Get("Content-Transfer-Encoding"), body)
		if err != nil {
			return err
		}
		result.Text = string(decoded)
	}
	return nil
}

func decodeBody(encoding string, body io.Reader) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		body = quotedprintable.NewReader(body)
	case "base64":
		body = base64.NewDecoder(base64.StdEncoding, body)
	}
	decoded, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Wrapf(err, "error decoding %s e-mail body", encoding)
	}
	return decoded, nil
}
