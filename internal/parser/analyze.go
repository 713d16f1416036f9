package parser

import (
	"io"
	"log/slog"
	"time"

	"github.com/sdpower/fleetlog-go/internal/types"
)

const bytesPerMB = 1024.0 * 1024.0

// Options identifies the file being analyzed
type Options struct {
	Device  string
	LogFile string
	// FallbackDate dates the cycle when neither a line nor the file name carries a timestamp
	FallbackDate time.Time
	Logger       *slog.Logger
}

// Stats counts what happened to the lines of one file
type Stats struct {
	Lines     int
	Parsed    int
	Discarded int
	Malformed int
}

// Analyze scans one log file and folds it into a single CycleRecord. Lines
// that cannot be parsed are skipped. A read error ends the scan early; the
// record built so far is still returned together with the error.
func Analyze(r io.Reader, opts Options) (types.CycleRecord, Stats, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var (
		stats    Stats
		first    *time.Time
		attempt  bool
		upBytes  int64
		dnBytes  int64
		minutes  float64
		sessions int
		tlsErrs  int
		httpErrs int
		dest     string
		tracker  = NewProgressTracker()
	)

	lines := newLineReader(r)
	var readErr error

	for {
		raw, tooLong, err := lines.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			readErr = err
			break
		}
		stats.Lines++
		if tooLong {
			stats.Discarded++
			logger.Debug("discarding overlong line", "file", opts.LogFile, "line", stats.Lines)
			continue
		}
		line, ok := ParseLine(raw)
		if !ok {
			stats.Discarded++
			continue
		}
		stats.Parsed++
		if first == nil {
			ts := line.Timestamp
			first = &ts
		}

		events, err := Extract(line.Rest)
		if err != nil {
			stats.Malformed++
			logger.Debug("malformed marker", "file", opts.LogFile, "line", stats.Lines, "error", err)
		}

		for _, ev := range events {
			switch ev.Kind {
			case EventSessionBytes:
				upBytes += ev.SentBytes
				dnBytes += ev.ReceivedBytes
			case EventSessionDuration:
				minutes += ev.Minutes
				sessions++
			case EventAttempt:
				attempt = true
			case EventProgress:
				tracker.Observe(ev.FileKey, line.Timestamp, ev.CurrentMB, ev.TotalMB)
			case EventTLSError:
				tlsErrs++
			case EventHTTPError:
				httpErrs++
			case EventDestination:
				dest = ev.Destination
			}
		}
	}

	record := types.CycleRecord{
		Device:            opts.Device,
		LogFile:           opts.LogFile,
		Date:              cycleDate(first, opts),
		GSMDownMB:         float64(dnBytes) / bytesPerMB,
		GSMUpMB:           float64(upBytes) / bytesPerMB,
		GSMMinutes:        minutes,
		GSMSessions:       sessions,
		ContentMB:         tracker.ContentMB,
		FilesCompleted:    tracker.FilesCompleted,
		AvgContentKBps:    tracker.AvgKBps(),
		DestLast:          dest,
		PendingMBEnd:      tracker.PendingMB,
		PendingFiles:      tracker.PendingFiles(),
		PendingFilesKnown: true,
		ContentSeconds:    tracker.ContentSeconds,
		StepRateSum:       tracker.StepRateSum,
		StepCount:         tracker.StepCount,
		TLSErrors:         tlsErrs,
		HTTPErrors:        httpErrs,
	}
	record.AnyContentAttempted = attempt || record.ContentMB > 0 || record.FilesCompleted > 0

	if readErr != nil {
		return record, stats, types.ParseError{File: opts.LogFile, Line: stats.Lines + 1, Err: readErr}
	}

	return record, stats, nil
}

func cycleDate(first *time.Time, opts Options) string {
	if first != nil {
		return first.Format("2006-01-02")
	}
	if start, _ := ParseNameWindow(opts.LogFile); start != nil {
		return start.Format("2006-01-02")
	}
	if !opts.FallbackDate.IsZero() {
		return opts.FallbackDate.UTC().Format("2006-01-02")
	}
	return ""
}
