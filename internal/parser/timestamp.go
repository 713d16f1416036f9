package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sdpower/fleetlog-go/internal/types"
)

// Layouts tried in order. The fractional part is optional in each.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00", // Z or +HH:MM
	"2006-01-02T15:04:05.999999999Z0700",  // +HHMM
}

const bareLayout = "2006-01-02T15:04:05"

// ParseTimestamp normalizes the timestamp encodings found in device logs.
// A timestamp without an offset is read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	if len(s) >= len(bareLayout) {
		if t, err := time.ParseInLocation(bareLayout, s[:len(bareLayout)], time.UTC); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: timestamp %q", types.ErrInvalidFormat, s)
}

var nameWindowPattern = regexp.MustCompile(`(\d{8})_(\d{6})-(\d{8})_(\d{6})`)

// ParseNameWindow extracts the start/end pair encoded in a log file name
// (YYYYMMDD_HHMMSS-YYYYMMDD_HHMMSS). Missing or invalid parts yield nil.
func ParseNameWindow(name string) (start, end *time.Time) {
	m := nameWindowPattern.FindStringSubmatch(name)
	if m == nil {
		return nil, nil
	}
	return nameTime(m[1], m[2]), nameTime(m[3], m[4])
}

func nameTime(date, clock string) *time.Time {
	t, err := time.ParseInLocation("20060102150405", date+clock, time.UTC)
	if err != nil {
		return nil
	}
	return &t
}
