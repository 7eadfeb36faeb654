package email

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/common/util"
	"github.com/backupmon/backupmon/internal/model"
)

// grammar consumes a log line and reports whether it matched.
type grammar func(ctx *bmcontext.Context, res *result, path string, text string) bool

// grammars are tried in order; the first to match a line wins.
var grammars = []grammar{
	uploadedBytes,
	sessionStart,
	sessionEnd,
	legacyStart,
	legacyEnd,
	errorLine,
}

var (
	uploadedRegex = regexp.MustCompile(`(?i)Uploaded ([0-9,.]+) (bytes?|[KMGT]B)`)

	// Arq Agent version 7.0.1 started backup session for Macintosh HD on March 3, 2017 at 4:30:04 PM EST
	sessionStartRegex = regexp.MustCompile(`^Arq Agent version [\d.]+ started backup session for .+ on ((\w+ \d{1,2}, \d{4}) at (\d{1,2}:\d{2}:\d{2} (?:AM|PM)) ([^ ]+))$`)

	// Backup session for Macintosh HD ended on March 3, 2017 at 3:30:35 PM EST (1 error)
	sessionEndRegex = regexp.MustCompile(`^Backup session for .+ ended on ((\w+ \d{1,2}, \d{4}) at (\d{1,2}:\d{2}:\d{2} (?:AM|PM)) ([^ ]+))\s*(?:\(([\d,]+) errors?\))?$`)

	// Arq Agent version 5.5.0 started backup to Amazon S3 on 3/2/2017 7:00:04 AM
	legacyStartRegex = regexp.MustCompile(`^Arq Agent version [\d.]+ started backup to .+ on ((\d+)/(\d+)/(\d{4}) (\d+):(\d+):(\d+) (AM|PM))$`)

	// Ended backup to Amazon S3 on 2/28/2017 8:00:12 PM
	legacyEndRegex = regexp.MustCompile(`^Ended backup to .+ on ((\d+)/(\d+)/(\d{4}) (\d+):(\d+):(\d+) (AM|PM))$`)
)

const errorPrefix = "Error: "

func uploadedBytes(ctx *bmcontext.Context, res *result, path string, text string) bool {
	if path != bodyPath {
		return false
	}
	match := uploadedRegex.FindStringSubmatch(text)
	if match == nil {
		return false
	}
	bytes, ok := toBytes(match[1], match[2])
	if !ok {
		return false
	}
	res.totalBytes += bytes
	res.foundUploadedBytes = true
	ctx.Log.Debugf("Uploaded %s %s (%d)", match[1], match[2], bytes)
	return true
}

func sessionStart(ctx *bmcontext.Context, res *result, path string, text string) bool {
	if path != bodyPath {
		return false
	}
	match := sessionStartRegex.FindStringSubmatch(text)
	if match == nil {
		return false
	}
	res.startDate = parseSessionDate(match[2], match[3], match[4])
	logDate(ctx, "Start time", match[1], res.startDate)
	return true
}

func sessionEnd(ctx *bmcontext.Context, res *result, path string, text string) bool {
	if path != bodyPath {
		return false
	}
	match := sessionEndRegex.FindStringSubmatch(text)
	if match == nil {
		return false
	}
	res.endDate = parseSessionDate(match[2], match[3], match[4])
	logDate(ctx, "End time", match[1], res.endDate)
	if match[5] != "" {
		res.errorCount = parseCount(match[5])
		ctx.Log.WithField("errorCount", res.errorCount).Debug("Error count from end time line")
	}
	return true
}

func legacyStart(ctx *bmcontext.Context, res *result, path string, text string) bool {
	if path != bodyPath {
		return false
	}
	match := legacyStartRegex.FindStringSubmatch(text)
	if match == nil {
		return false
	}
	res.startDate = parseLegacyDate(match[2:9])
	logDate(ctx, "Start time", match[1], res.startDate)
	return true
}

func legacyEnd(ctx *bmcontext.Context, res *result, path string, text string) bool {
	if path != bodyPath {
		return false
	}
	match := legacyEndRegex.FindStringSubmatch(text)
	if match == nil {
		return false
	}
	res.endDate = parseLegacyDate(match[2:9])
	logDate(ctx, "End time", match[1], res.endDate)
	return true
}

func errorLine(_ *bmcontext.Context, res *result, path string, text string) bool {
	if path != bodyPath || !strings.HasPrefix(text, errorPrefix) {
		return false
	}
	res.errorMessages = append(res.errorMessages, strings.TrimPrefix(text, errorPrefix))
	return true
}

func logDate(ctx *bmcontext.Context, msg string, original string, parsed *time.Time) {
	entry := ctx.Log.WithField("timeOrig", original)
	if parsed != nil {
		entry = entry.WithField("timeParsed", model.FormatIso(*parsed))
	}
	entry.Debug(msg)
}

// parseSessionDate parses e.g. "March 3, 2017", "4:30:04 PM" and "EST". It returns nil when any part is invalid.
func parseSessionDate(date string, clock string, zone string) *time.Time {
	loc, err := util.ParseZone(zone)
	if err != nil {
		return nil
	}
	t, err := time.ParseInLocation("January 2, 2006 3:04:05 PM", date+" "+clock, loc)
	if err != nil {
		return nil
	}
	return &t
}

// parseLegacyDate builds a UTC time from the month, day, year, hour, minute, second and AM/PM captures of
// the legacy log lines. It returns nil when any component is out of range.
func parseLegacyDate(parts []string) *time.Time {
	var n [6]int
	for i := 0; i < 6; i++ {
		v, err := strconv.Atoi(parts[i])
		if err != nil {
			return nil
		}
		n[i] = v
	}
	month, day, year, hour, minute, second := n[0], n[1], n[2], n[3], n[4], n[5]
	if month < 1 || month > 12 || day < 1 || hour < 1 || hour > 12 || minute > 59 || second > 59 {
		return nil
	}
	hour = hour % 12
	if parts[6] == "PM" {
		hour += 12
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	if t.Day() != day {
		return nil
	}
	return &t
}
