package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sdpower/fleetlog-go/internal/types"
)

// Status is the outcome of running one extractor against a line
type Status int

const (
	// StatusSkip means the line carries no event for this extractor
	StatusSkip Status = iota
	// StatusMatched means an event was recognized and decoded
	StatusMatched
	// StatusMalformed means the marker matched but its payload could not be decoded
	StatusMalformed
)

// EventKind identifies what an extracted event reports
type EventKind int

const (
	EventSessionBytes EventKind = iota + 1
	EventSessionDuration
	EventAttempt
	EventProgress
	EventTLSError
	EventHTTPError
	EventDestination
)

// UnknownContentKey is used for progress lines that name no content file
const UnknownContentKey = "_unknown_"

// Event is one operational fact recognized in the remainder of a log line
type Event struct {
	Kind EventKind

	SentBytes     int64
	ReceivedBytes int64
	Minutes       float64

	FileKey   string
	CurrentMB float64
	TotalMB   float64
	Percent   int

	Destination string
}

// Extractor recognizes one kind of event
type Extractor func(rest string) (Event, Status)

var (
	sessionBytesPattern    = regexp.MustCompile(`(?i)pppd.*Sent\s+(\d+)\s+bytes,\s+received\s+(\d+)\s+bytes`)
	sessionDurationPattern = regexp.MustCompile(`(?i)pppd.*Connect time\s+([0-9.]+)\s+minutes`)
	attemptPatterns        = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Attempting to download manifest`),
		regexp.MustCompile(`(?i)Using azure to download`),
	}
	progressPattern = regexp.MustCompile(`\[(\d+(?:\.\d+)?)\s+of\s+(\d+(?:\.\d+)?)\s+MB\]\s+(\d+)%`)
	fileHintPattern = regexp.MustCompile(`([A-Za-z0-9_\-.]+\.zip)`)
	httpCodePattern = regexp.MustCompile(`\b[45]\d\d\b`)
	adsbPattern     = regexp.MustCompile(`ADSB_WS: Sent data to socket:\s+(\{.*\})`)
	flcPattern      = regexp.MustCompile(`FLC created event.*"d":"([A-Z]{3})"`)
)

// ExtractSessionBytes recognizes "pppd ... Sent N bytes, received M bytes"
func ExtractSessionBytes(rest string) (Event, Status) {
	m := sessionBytesPattern.FindStringSubmatch(rest)
	if m == nil {
		return Event{}, StatusSkip
	}
	sent, err1 := strconv.ParseInt(m[1], 10, 64)
	recv, err2 := strconv.ParseInt(m[2], 10, 64)
	if err1 != nil || err2 != nil {
		return Event{}, StatusMalformed
	}
	return Event{Kind: EventSessionBytes, SentBytes: sent, ReceivedBytes: recv}, StatusMatched
}

// ExtractSessionDuration recognizes "pppd ... Connect time X minutes"
func ExtractSessionDuration(rest string) (Event, Status) {
	m := sessionDurationPattern.FindStringSubmatch(rest)
	if m == nil {
		return Event{}, StatusSkip
	}
	minutes, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Event{}, StatusMalformed
	}
	return Event{Kind: EventSessionDuration, Minutes: minutes}, StatusMatched
}

// ExtractAttempt recognizes either download-attempt announcement
func ExtractAttempt(rest string) (Event, Status) {
	for _, p := range attemptPatterns {
		if p.MatchString(rest) {
			return Event{Kind: EventAttempt}, StatusMatched
		}
	}
	return Event{}, StatusSkip
}

// ExtractProgress recognizes "[X of Y MB] P%" and the content file it refers to
func ExtractProgress(rest string) (Event, Status) {
	m := progressPattern.FindStringSubmatch(rest)
	if m == nil {
		return Event{}, StatusSkip
	}
	cur, err1 := strconv.ParseFloat(m[1], 64)
	total, err2 := strconv.ParseFloat(m[2], 64)
	pct, err3 := strconv.Atoi(m[3])
	if err1 != nil || err2 != nil || err3 != nil {
		return Event{}, StatusMalformed
	}

	key := UnknownContentKey
	if hint := fileHintPattern.FindStringSubmatch(rest); hint != nil {
		key = hint[1]
	}

	return Event{Kind: EventProgress, FileKey: key, CurrentMB: cur, TotalMB: total, Percent: pct}, StatusMatched
}

// ExtractTLSError flags lines mentioning TLS together with an error or failure
func ExtractTLSError(rest string) (Event, Status) {
	lower := strings.ToLower(rest)
	if strings.Contains(lower, "tls") && (strings.Contains(lower, "error") || strings.Contains(lower, "fail")) {
		return Event{Kind: EventTLSError}, StatusMatched
	}
	return Event{}, StatusSkip
}

// ExtractHTTPError flags lines mentioning HTTP together with a 4xx/5xx looking
// token. This is a heuristic: any three-digit number starting with 4 or 5
// counts, so it over-matches on sizes, ports and the like.
func ExtractHTTPError(rest string) (Event, Status) {
	if !strings.Contains(strings.ToLower(rest), "http") {
		return Event{}, StatusSkip
	}
	if httpCodePattern.MatchString(rest) {
		return Event{Kind: EventHTTPError}, StatusMatched
	}
	return Event{}, StatusSkip
}

// ExtractDestination recognizes a JSON payload with a destination field or
// an FLC event carrying a three-letter airport code
func ExtractDestination(rest string) (Event, Status) {
	ev, status := Event{}, StatusSkip

	if m := adsbPattern.FindStringSubmatch(rest); m != nil {
		var payload struct {
			Destination string `json:"destination"`
		}
		if err := json.Unmarshal([]byte(m[1]), &payload); err != nil {
			status = StatusMalformed
		} else if payload.Destination != "" {
			ev, status = Event{Kind: EventDestination, Destination: payload.Destination}, StatusMatched
		}
	}

	// FLC events win over a JSON payload on the same line
	if m := flcPattern.FindStringSubmatch(rest); m != nil {
		return Event{Kind: EventDestination, Destination: m[1]}, StatusMatched
	}

	return ev, status
}

// Extract runs the extractors over one line remainder in precedence order.
// Session lines and progress lines end the scan; attempt markers do not.
// The returned error is non-nil when some marker matched with a payload that
// could not be decoded.
func Extract(rest string) ([]Event, error) {
	var events []Event
	var malformed []string

	for _, step := range []struct {
		name     string
		extract  Extractor
		terminal bool
	}{
		{"session bytes", ExtractSessionBytes, true},
		{"session duration", ExtractSessionDuration, true},
		{"attempt", ExtractAttempt, false},
		{"progress", ExtractProgress, true},
		{"tls error", ExtractTLSError, false},
		{"http error", ExtractHTTPError, false},
		{"destination", ExtractDestination, false},
	} {
		ev, status := step.extract(rest)
		switch status {
		case StatusMatched:
			events = append(events, ev)
			if step.terminal {
				return events, joinMalformed(malformed)
			}
		case StatusMalformed:
			malformed = append(malformed, step.name)
			if step.terminal {
				return events, joinMalformed(malformed)
			}
		}
	}

	return events, joinMalformed(malformed)
}

func joinMalformed(names []string) error {
	if len(names) == 0 {
		return nil
	}
	return fmt.Errorf("%w: malformed %s marker", types.ErrInvalidFormat, strings.Join(names, ", "))
}
