package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseZone(t *testing.T) {
	tests := map[string]int{
		"UTC":    0,
		"GMT":    0,
		"Z":      0,
		"EST":    -5 * 3600,
		"edt":    -4 * 3600,
		"PST":    -8 * 3600,
		"+0100":  3600,
		"-05:30": -(5*3600 + 30*60),
	}
	for zone, expected := range tests {
		loc, err := ParseZone(zone)
		require.NoError(t, err, zone)
		_, offset := time.Date(2020, 1, 1, 0, 0, 0, 0, loc).Zone()
		assert.Equal(t, expected, offset, zone)
	}
}

func TestParseZone_Unknown(t *testing.T) {
	for _, zone := range []string{"", "XYZ", "+99", "+2500", "Europe/London"} {
		_, err := ParseZone(zone)
		assert.Error(t, err, zone)
	}
}

func TestParseTimestamp(t *testing.T) {
	expected := time.Date(2017, 3, 3, 21, 35, 4, 0, time.UTC)
	for _, value := range []string{
		"2017-03-03T21:35:04Z",
		"2017-03-03T21:35:04.000Z",
		"2017-03-03T16:35:04-05:00",
		"2017-03-03T21:35:04",
		"Fri, 03 Mar 2017 16:35:04 -0500",
	} {
		parsed, err := ParseTimestamp(value)
		require.NoError(t, err, value)
		assert.True(t, expected.Equal(parsed), value)
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, value := range []string{"", "yesterday", "2017-13-03T21:35:04Z"} {
		_, err := ParseTimestamp(value)
		assert.Error(t, err, value)
	}
}
