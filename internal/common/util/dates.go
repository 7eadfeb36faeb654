package util

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// zoneOffsets are the time zone abbreviations accepted by ParseZone, in seconds east of UTC.
var zoneOffsets = map[string]int{
	"UTC": 0,
	"UT":  0,
	"GMT": 0,
	"Z":   0,
	"EST": -5 * 3600,
	"EDT": -4 * 3600,
	"CST": -6 * 3600,
	"CDT": -5 * 3600,
	"MST": -7 * 3600,
	"MDT": -6 * 3600,
	"PST": -8 * 3600,
	"PDT": -7 * 3600,
}

// ParseZone resolves a time zone abbreviation or a numeric offset such as "+0100" or "-05:00".
func ParseZone(zone string) (*time.Location, error) {
	if offset, ok := zoneOffsets[strings.ToUpper(zone)]; ok {
		return time.FixedZone(strings.ToUpper(zone), offset), nil
	}

	numeric := strings.Replace(zone, ":", "", 1)
	if len(numeric) == 5 && (numeric[0] == '+' || numeric[0] == '-') {
		hours, errHours := strconv.Atoi(numeric[1:3])
		minutes, errMinutes := strconv.Atoi(numeric[3:5])
		if errHours == nil && errMinutes == nil && hours < 24 && minutes < 60 {
			offset := hours*3600 + minutes*60
			if numeric[0] == '-' {
				offset = -offset
			}
			return time.FixedZone(zone, offset), nil
		}
	}

	return nil, errors.Errorf("unknown time zone %q", zone)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
}

// ParseTimestamp parses the timestamp formats that reporting agents are known to send.
// Timestamps without an offset are taken to be UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unable to parse timestamp %q", value)
}
