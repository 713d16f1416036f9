package output

import (
	"encoding/json"
	"fmt"

	"github.com/sdpower/fleetlog-go/internal/types"
)

// Stdout formats for the fleet report
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatNone  = "none"
)

type Formatter struct {
	options FormatterOptions
}

type FormatterOptions struct {
	Format  string // "table", "json", "none"
	NoColor bool
}

func NewFormatter(opts FormatterOptions) *Formatter {
	if opts.Format == "" {
		opts.Format = FormatTable
	}
	return &Formatter{options: opts}
}

// ValidFormat reports whether name is a known stdout format
func ValidFormat(name string) bool {
	switch name {
	case FormatTable, FormatJSON, FormatNone:
		return true
	}
	return false
}

// FormatFleetReport renders the fleet report for stdout. Numbers in the
// JSON form are rounded like every other emitted artifact.
func (f *Formatter) FormatFleetReport(report types.FleetReport) (string, error) {
	switch f.options.Format {
	case FormatJSON:
		return f.FormatJSON(RoundFleet(report))
	case FormatNone:
		return "", nil
	case FormatTable:
		return NewTableWriterFormatter(f.options.NoColor).FormatFleetReport(report), nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", types.ErrInvalidConfig, f.options.Format)
	}
}

func (f *Formatter) FormatJSON(data interface{}) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData) + "\n", nil
}

// RoundSummary returns a copy with every float rounded to two decimals
func RoundSummary(b types.BoxSummary) types.BoxSummary {
	b.GSMDownMB = Round2(b.GSMDownMB)
	b.GSMUpMB = Round2(b.GSMUpMB)
	b.GSMMinutes = Round2(b.GSMMinutes)
	b.GSMEffMBPerMin = Round2(b.GSMEffMBPerMin)
	b.ContentMB = Round2(b.ContentMB)
	b.AvgContentKBps = Round2(b.AvgContentKBps)
	b.AvgGSMDownPerSessionMB = Round2(b.AvgGSMDownPerSessionMB)
	b.AvgGSMMinutesPerSession = Round2(b.AvgGSMMinutesPerSession)
	b.AvgContentPerAttemptedCycleMB = Round2(b.AvgContentPerAttemptedCycleMB)
	return b
}

// RoundFleet returns a copy with every float rounded to two decimals
func RoundFleet(r types.FleetReport) types.FleetReport {
	r.GSMDownMB = Round2(r.GSMDownMB)
	r.GSMMinutes = Round2(r.GSMMinutes)
	r.AvgGSMEff = Round2(r.AvgGSMEff)
	r.ContentMB = Round2(r.ContentMB)
	r.AvgContentKBps = Round2(r.AvgContentKBps)
	r.AvgGSMDownPerCycle = Round2(r.AvgGSMDownPerCycle)
	r.AvgContentPerAttemptedCycle = Round2(r.AvgContentPerAttemptedCycle)
	boxes := make([]types.BoxSummary, len(r.Boxes))
	for i, b := range r.Boxes {
		boxes[i] = RoundSummary(b)
	}
	r.Boxes = boxes
	return r
}
