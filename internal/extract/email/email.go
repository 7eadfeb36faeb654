// Package email extracts backup metrics from the HTML log that Arq agents e-mail when a backup session ends.
//
// The HTML body is walked as a token stream while tracking the dotted path of open tags. Every text node
// directly below "html.body" is offered to an ordered list of line grammars; the first grammar to match
// consumes the line.
package email

import (
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/html"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/extract/mail"
	"github.com/backupmon/backupmon/internal/model"
)

const bodyPath = "html.body"

// maxDateDriftMillis is compared against the difference between the e-mail date and the end of the backup.
const maxDateDriftMillis = 300

var byteMultipliers = map[string]float64{
	"byte":  1,
	"bytes": 1,
	"kb":    1 << 10,
	"mb":    1 << 20,
	"gb":    1 << 30,
	"tb":    1 << 40,
}

var subjectErrorCount = regexp.MustCompile(` \(([\d,]+) errors?\)$`)

// result is the state built up while walking the log.
type result struct {
	backupDate         *time.Time
	foundUploadedBytes bool
	totalBytes         int64
	startDate          *time.Time
	endDate            *time.Time
	errorCount         int64
	errorMessages      []string
}

// ExtractMetrics decodes a raw e-mail and extracts its metrics.
func ExtractMetrics(ctx *bmcontext.Context, content []byte) (*model.BackupResultMetrics, error) {
	msg, err := mail.Parse(content)
	if err != nil {
		return nil, err
	}
	return ExtractMessageMetrics(ctx, msg)
}

// ExtractMessageMetrics extracts metrics from an already decoded e-mail.
func ExtractMessageMetrics(ctx *bmcontext.Context, msg *mail.Message) (*model.BackupResultMetrics, error) {
	if !msg.HasHtml {
		return nil, errors.New("Expected e-mail to contain HTML body")
	}

	res := &result{errorMessages: []string{}}

	if match := subjectErrorCount.FindStringSubmatch(msg.Subject); match != nil {
		res.errorCount = parseCount(match[1])
		ctx.Log.Debugf("Error count in subject: %d", res.errorCount)
	}

	if msg.ReceivedDate != nil {
		res.backupDate = msg.ReceivedDate
		ctx.Log.Debugf("E-mail received date: %s", model.FormatIso(*msg.ReceivedDate))
	} else if msg.Date != nil {
		res.backupDate = msg.Date
		ctx.Log.Debugf("E-mail date: %s", model.FormatIso(*msg.Date))
	}

	if err := walk(ctx, res, msg.Html); err != nil {
		return nil, err
	}

	return res.finish(ctx)
}

func (res *result) finish(ctx *bmcontext.Context) (*model.BackupResultMetrics, error) {
	if !res.foundUploadedBytes {
		return nil, errors.New("Missing log entries for uploaded bytes")
	}

	switch {
	case res.startDate == nil && res.endDate == nil:
		return nil, errors.New("Invalid or no matching start and end time")
	case res.startDate == nil:
		return nil, errors.New("Invalid or no matching start time")
	case res.endDate == nil:
		return nil, errors.New("Invalid or no matching end time")
	}

	duration := res.endDate.Sub(*res.startDate).Milliseconds()
	if duration < 0 {
		ctx.Log.WithField("startDate", model.FormatIso(*res.startDate)).
			WithField("endDate", model.FormatIso(*res.endDate)).
			Warn("Negative duration")
	}

	if res.backupDate != nil {
		drift := res.backupDate.Sub(*res.endDate).Milliseconds()
		if drift < 0 {
			drift = -drift
		}
		if drift > maxDateDriftMillis {
			ctx.Log.WithField("receivedDate", model.FormatIso(*res.backupDate)).
				WithField("endDate", model.FormatIso(*res.endDate)).
				Warn("E-mail received over 5 minutes after backup completed")
		}
	}

	return &model.BackupResultMetrics{
		BackupDate:    res.endDate.UTC(),
		Duration:      duration,
		TotalItems:    0,
		TotalBytes:    res.totalBytes,
		ErrorCount:    res.errorCount,
		ErrorMessages: res.errorMessages,
	}, nil
}

// voidElements never have a closing tag, so they are not pushed onto the path.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true, "img": true,
	"input": true, "link": true, "meta": true, "param": true, "source": true, "track": true, "wbr": true,
}

func walk(ctx *bmcontext.Context, res *result, body string) error {
	tokenizer := html.NewTokenizer(strings.NewReader(body))
	var pathParts []string
	path := ""

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if err := tokenizer.Err(); err != io.EOF {
				return errors.Wrap(err, "error reading e-mail HTML")
			}
			return nil
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if voidElements[string(name)] {
				continue
			}
			pathParts = append(pathParts, string(name))
			path = strings.Join(pathParts, ".")
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if voidElements[string(name)] {
				continue
			}
			if len(pathParts) == 0 {
				ctx.Log.Debugf("Found %s close tag but path is empty", name)
				continue
			}
			popped := pathParts[len(pathParts)-1]
			pathParts = pathParts[:len(pathParts)-1]
			path = strings.Join(pathParts, ".")
			if popped != string(name) {
				ctx.Log.Debugf("Popped %s tag but expected %s", name, popped)
			}
		case html.TextToken:
			text := strings.TrimSpace(string(tokenizer.Text()))
			if text == "" {
				continue
			}
			for _, g := range grammars {
				if g(ctx, res, path, text) {
					break
				}
			}
		}
	}
}

// parseCount parses a comma grouped integer such as "1,024".
func parseCount(value string) int64 {
	n, _ := strconv.ParseInt(strings.ReplaceAll(value, ",", ""), 10, 64)
	return n
}

// leadingFloat parses the longest numeric prefix of value, ignoring anything after it.
func leadingFloat(value string) (float64, bool) {
	end := 0
	seenDot := false
	for end < len(value) {
		c := value[end]
		if c == '.' && !seenDot {
			seenDot = true
		} else if c < '0' || c > '9' {
			break
		}
		end++
	}
	f, err := strconv.ParseFloat(value[:end], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func toBytes(quantity string, unit string) (int64, bool) {
	f, ok := leadingFloat(strings.ReplaceAll(quantity, ",", ""))
	if !ok {
		return 0, false
	}
	multiplier, ok := byteMultipliers[strings.ToLower(unit)]
	if !ok {
		return 0, false
	}
	return int64(math.Floor(f*multiplier + 0.5)), true
}
