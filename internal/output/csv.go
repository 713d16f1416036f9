package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/sdpower/fleetlog-go/internal/codec"
	"github.com/sdpower/fleetlog-go/internal/types"
)

// Round2 rounds half away from zero to two decimals. It is applied only
// when values leave the engine.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(Round2(v), 'f', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

type column[T any] struct {
	name string
	text bool
	get  func(*T) string
	set  func(*T, string) error
}

func floatCol[T any](name string, field func(*T) *float64) column[T] {
	return column[T]{
		name: name,
		get:  func(r *T) string { return formatFloat(*field(r)) },
		set: func(r *T, s string) error {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return err
			}
			*field(r) = v
			return nil
		},
	}
}

func intCol[T any](name string, field func(*T) *int) column[T] {
	return column[T]{
		name: name,
		get:  func(r *T) string { return strconv.Itoa(*field(r)) },
		set: func(r *T, s string) error {
			// older tables wrote counts as floats
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return err
			}
			*field(r) = int(v)
			return nil
		},
	}
}

func stringCol[T any](name string, field func(*T) *string) column[T] {
	return column[T]{
		name: name,
		text: true,
		get:  func(r *T) string { return *field(r) },
		set: func(r *T, s string) error {
			*field(r) = s
			return nil
		},
	}
}

func boolCol[T any](name string, field func(*T) *bool) column[T] {
	return column[T]{
		name: name,
		get:  func(r *T) string { return formatBool(*field(r)) },
		set: func(r *T, s string) error {
			switch strings.ToLower(s) {
			case "1", "true", "yes":
				*field(r) = true
			case "0", "false", "no":
				*field(r) = false
			default:
				v, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return err
				}
				*field(r) = v != 0
			}
			return nil
		},
	}
}

var cycleColumns = []column[types.CycleRecord]{
	stringCol("box_ip", func(r *types.CycleRecord) *string { return &r.Device }),
	stringCol("log_file", func(r *types.CycleRecord) *string { return &r.LogFile }),
	stringCol("date", func(r *types.CycleRecord) *string { return &r.Date }),
	floatCol("gsm_down_mb", func(r *types.CycleRecord) *float64 { return &r.GSMDownMB }),
	floatCol("gsm_up_mb", func(r *types.CycleRecord) *float64 { return &r.GSMUpMB }),
	floatCol("gsm_minutes", func(r *types.CycleRecord) *float64 { return &r.GSMMinutes }),
	intCol("gsm_sessions", func(r *types.CycleRecord) *int { return &r.GSMSessions }),
	floatCol("content_mb_processed", func(r *types.CycleRecord) *float64 { return &r.ContentMB }),
	intCol("files_completed", func(r *types.CycleRecord) *int { return &r.FilesCompleted }),
	floatCol("avg_content_kBps", func(r *types.CycleRecord) *float64 { return &r.AvgContentKBps }),
	boolCol("any_content_attempted", func(r *types.CycleRecord) *bool { return &r.AnyContentAttempted }),
	stringCol("dest_airport_last", func(r *types.CycleRecord) *string { return &r.DestLast }),
	floatCol("pending_mb_end", func(r *types.CycleRecord) *float64 { return &r.PendingMBEnd }),
	{
		name: "pending_files",
		get:  func(r *types.CycleRecord) string { return strconv.Itoa(r.PendingFiles) },
		set: func(r *types.CycleRecord, s string) error {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return err
			}
			r.PendingFiles = int(v)
			r.PendingFilesKnown = true
			return nil
		},
	},
	floatCol("content_seconds", func(r *types.CycleRecord) *float64 { return &r.ContentSeconds }),
	floatCol("step_rate_sum", func(r *types.CycleRecord) *float64 { return &r.StepRateSum }),
	intCol("step_count", func(r *types.CycleRecord) *int { return &r.StepCount }),
	intCol("tls_errors", func(r *types.CycleRecord) *int { return &r.TLSErrors }),
	intCol("http_4xx_5xx", func(r *types.CycleRecord) *int { return &r.HTTPErrors }),
}

var dayColumns = []column[types.DayRecord]{
	stringCol("date", func(r *types.DayRecord) *string { return &r.Date }),
	stringCol("box_ip", func(r *types.DayRecord) *string { return &r.Device }),
	floatCol("gsm_down_mb", func(r *types.DayRecord) *float64 { return &r.GSMDownMB }),
	floatCol("gsm_up_mb", func(r *types.DayRecord) *float64 { return &r.GSMUpMB }),
	floatCol("gsm_minutes", func(r *types.DayRecord) *float64 { return &r.GSMMinutes }),
	intCol("gsm_sessions", func(r *types.DayRecord) *int { return &r.GSMSessions }),
	floatCol("gsm_eff_mb_per_min", func(r *types.DayRecord) *float64 { return &r.GSMEffMBPerMin }),
	floatCol("content_mb_processed", func(r *types.DayRecord) *float64 { return &r.ContentMB }),
	intCol("files_completed", func(r *types.DayRecord) *int { return &r.FilesCompleted }),
	floatCol("avg_content_kBps", func(r *types.DayRecord) *float64 { return &r.AvgContentKBps }),
	floatCol("avg_step_MB_per_30s", func(r *types.DayRecord) *float64 { return &r.AvgStepMBPer30s }),
	intCol("tls_errors", func(r *types.DayRecord) *int { return &r.TLSErrors }),
	intCol("http_4xx_5xx", func(r *types.DayRecord) *int { return &r.HTTPErrors }),
	stringCol("dest_airport_last", func(r *types.DayRecord) *string { return &r.DestLast }),
	floatCol("pending_mb", func(r *types.DayRecord) *float64 { return &r.PendingMB }),
}

var summaryColumns = []column[types.BoxSummary]{
	stringCol("box_ip", func(r *types.BoxSummary) *string { return &r.Device }),
	intCol("cycles", func(r *types.BoxSummary) *int { return &r.Cycles }),
	intCol("acdc_cycles", func(r *types.BoxSummary) *int { return &r.AttemptedCycles }),
	floatCol("gsm_down_mb", func(r *types.BoxSummary) *float64 { return &r.GSMDownMB }),
	floatCol("gsm_minutes", func(r *types.BoxSummary) *float64 { return &r.GSMMinutes }),
	floatCol("gsm_eff_mb_per_min", func(r *types.BoxSummary) *float64 { return &r.GSMEffMBPerMin }),
	floatCol("content_mb", func(r *types.BoxSummary) *float64 { return &r.ContentMB }),
	intCol("files_completed", func(r *types.BoxSummary) *int { return &r.FilesCompleted }),
	floatCol("avg_content_kBps", func(r *types.BoxSummary) *float64 { return &r.AvgContentKBps }),
	floatCol("avg_gsm_down_per_session_mb", func(r *types.BoxSummary) *float64 { return &r.AvgGSMDownPerSessionMB }),
	floatCol("avg_gsm_minutes_per_session", func(r *types.BoxSummary) *float64 { return &r.AvgGSMMinutesPerSession }),
	floatCol("avg_content_per_acdc_cycle_mb", func(r *types.BoxSummary) *float64 { return &r.AvgContentPerAttemptedCycleMB }),
	intCol("pending_files_window", func(r *types.BoxSummary) *int { return &r.PendingFilesWindow }),
	stringCol("state", func(r *types.BoxSummary) *string { return &r.State }),
	stringCol("last_dest", func(r *types.BoxSummary) *string { return &r.LastDest }),
	floatCol("gsm_up_mb", func(r *types.BoxSummary) *float64 { return &r.GSMUpMB }),
	intCol("gsm_sessions", func(r *types.BoxSummary) *int { return &r.GSMSessions }),
	intCol("tls_errors", func(r *types.BoxSummary) *int { return &r.TLSErrors }),
	intCol("http_4xx_5xx", func(r *types.BoxSummary) *int { return &r.HTTPErrors }),
}

func header[T any](cols []column[T]) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names
}

func encodeRows[T any](w io.Writer, cols []column[T], rows []T) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header(cols)); err != nil {
		return err
	}
	record := make([]string, len(cols))
	for i := range rows {
		for j, c := range cols {
			record[j] = c.get(&rows[i])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// decodeRows reads rows by header name. Columns absent from the header
// keep their zero value; cells that do not parse keep the zero value and
// are reported in warnings. Only a broken CSV stream is an error.
func decodeRows[T any](r io.Reader, cols []column[T], source string) ([]T, []error, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, types.ParseError{File: source, Line: 1, Err: err}
	}
	position := make(map[string]int, len(head))
	for i, name := range head {
		position[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}

	var rows []T
	var warnings []error
	line := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return rows, warnings, types.ParseError{File: source, Line: line, Err: err}
		}

		var row T
		for _, c := range cols {
			i, ok := position[c.name]
			if !ok || i >= len(record) {
				continue
			}
			cell := strings.TrimSpace(record[i])
			if cell == "" {
				continue
			}
			if err := c.set(&row, cell); err != nil {
				warnings = append(warnings, types.ParseError{
					File: source,
					Line: line,
					Err:  fmt.Errorf("%w: column %s: %q", types.ErrInvalidFormat, c.name, cell),
				})
			}
		}
		rows = append(rows, row)
	}
	return rows, warnings, nil
}

func WriteCycles(w io.Writer, rows []types.CycleRecord) error {
	return encodeRows(w, cycleColumns, rows)
}

func WriteDays(w io.Writer, rows []types.DayRecord) error {
	return encodeRows(w, dayColumns, rows)
}

func WriteSummaries(w io.Writer, rows []types.BoxSummary) error {
	return encodeRows(w, summaryColumns, rows)
}

// ReadCycles decodes a per_cycle table. Rows without a log_file are
// dropped with a warning since they have no identity.
func ReadCycles(r io.Reader, source string) ([]types.CycleRecord, []error, error) {
	rows, warnings, err := decodeRows(r, cycleColumns, source)
	kept := rows[:0]
	for i, row := range rows {
		if row.LogFile == "" {
			warnings = append(warnings, types.ParseError{File: source, Line: i + 2, Err: fmt.Errorf("%w: row without log_file", types.ErrInvalidFormat)})
			continue
		}
		kept = append(kept, row)
	}
	return kept, warnings, err
}

func ReadSummaries(r io.Reader, source string) ([]types.BoxSummary, []error, error) {
	return decodeRows(r, summaryColumns, source)
}

// ReadCyclesFile is ReadCycles on a file; a missing file yields no rows and os.ErrNotExist
func ReadCyclesFile(path string) ([]types.CycleRecord, []error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ReadCycles(f, path)
}

// ReadSummariesFile is ReadSummaries on a file
func ReadSummariesFile(path string) ([]types.BoxSummary, []error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ReadSummaries(f, path)
}

// writeFile renders into memory and replaces path atomically
func writeFile(path string, render func(io.Writer) error) error {
	var buf strings.Builder
	if err := render(&buf); err != nil {
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	return codec.WriteAtomic(path, []byte(buf.String()))
}
