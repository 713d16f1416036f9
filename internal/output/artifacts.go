package output

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sdpower/fleetlog-go/internal/codec"
	"github.com/sdpower/fleetlog-go/internal/types"
)

// Artifact file names
const (
	CycleFile        = "per_cycle.csv"
	DayFile          = "per_day.csv"
	SummaryFile      = "summary.csv"
	FleetSummaryFile = "per_box_summary.csv"
	FleetMarkdown    = "fleet.md"
	FleetHTML        = "fleet.html"
	FleetWorkbook    = "fleet.xlsx"
	RunManifestFile  = "run.json"
)

// DeviceDir is the per-device output directory; dots in the device
// identifier become dashes
func DeviceDir(outDir, device string) string {
	return filepath.Join(outDir, "boxes", strings.ReplaceAll(device, ".", "-"))
}

// WriteDevice writes the cycle, day and summary tables of one device
func WriteDevice(outDir string, res types.DeviceResult) error {
	dir := DeviceDir(outDir, res.Device)

	if err := writeFile(filepath.Join(dir, CycleFile), func(w io.Writer) error {
		return WriteCycles(w, res.Cycles)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, DayFile), func(w io.Writer) error {
		return WriteDays(w, res.Days)
	}); err != nil {
		return err
	}

	var summaries []types.BoxSummary
	if res.Summary != nil {
		summaries = append(summaries, *res.Summary)
	}
	return writeFile(filepath.Join(dir, SummaryFile), func(w io.Writer) error {
		return WriteSummaries(w, summaries)
	})
}

// UpdateFleetSummary rewrites per_box_summary.csv: rows of devices in this
// run replace earlier ones, rows of other devices are kept. It returns the
// rows written, sorted by device, and any warnings from reading the
// existing table.
func UpdateFleetSummary(outDir string, current []types.BoxSummary) ([]types.BoxSummary, []error, error) {
	path := filepath.Join(outDir, FleetSummaryFile)
	existing, warnings, err := ReadSummariesFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		warnings = append(warnings, fmt.Errorf("reading %s: %w", path, err))
	}

	byDevice := make(map[string]types.BoxSummary, len(existing)+len(current))
	for _, row := range existing {
		if row.Device != "" {
			byDevice[row.Device] = row
		}
	}
	for _, row := range current {
		byDevice[row.Device] = row
	}

	rows := make([]types.BoxSummary, 0, len(byDevice))
	for _, row := range byDevice {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Device < rows[j].Device })

	if err := writeFile(path, func(w io.Writer) error { return WriteSummaries(w, rows) }); err != nil {
		return nil, warnings, err
	}
	return rows, warnings, nil
}

// FleetDocuments selects the optional fleet artifacts
type FleetDocuments struct {
	Chart    bool
	Workbook bool
}

// WriteFleet writes fleet.md, fleet.html and, when enabled, the content
// chart and the workbook. days holds the day tables of the run's devices.
func WriteFleet(outDir string, report types.FleetReport, days map[string][]types.DayRecord, docs FleetDocuments) error {
	chartFile := ""
	if docs.Chart && HasChart(report) {
		if err := writeFile(filepath.Join(outDir, ChartFile), func(w io.Writer) error {
			return WriteContentChart(w, report)
		}); err != nil {
			return err
		}
		chartFile = ChartFile
	}

	var md bytes.Buffer
	if err := WriteFleetMarkdown(&md, report, chartFile); err != nil {
		return err
	}
	if err := codec.WriteAtomic(filepath.Join(outDir, FleetMarkdown), md.Bytes()); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(outDir, FleetHTML), func(w io.Writer) error {
		return RenderHTML(w, md.Bytes(), report)
	}); err != nil {
		return err
	}

	if docs.Workbook {
		if err := writeFile(filepath.Join(outDir, FleetWorkbook), func(w io.Writer) error {
			return WriteWorkbook(w, report, days)
		}); err != nil {
			return err
		}
	}
	return nil
}

// DeviceRun is the manifest entry of one device
type DeviceRun struct {
	Device   string   `json:"box_ip"`
	Missing  bool     `json:"missing,omitempty"`
	Parsed   int      `json:"parsed"`
	Skipped  int      `json:"skipped"`
	Seeded   int      `json:"seeded"`
	Cycles   int      `json:"cycles"`
	State    string   `json:"state,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// RunManifest describes one run; it is the only artifact that differs
// between otherwise identical runs
type RunManifest struct {
	RunID      string      `json:"run_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Start      string      `json:"start"`
	End        string      `json:"end"`
	ForceScan  bool        `json:"force_rescan"`
	ReuseFrom  string      `json:"reuse_from,omitempty"`
	Devices    []DeviceRun `json:"devices"`
}

// NewRunManifest starts a manifest with a fresh run ID
func NewRunManifest(start, end string, startedAt time.Time) *RunManifest {
	return &RunManifest{
		RunID:     uuid.NewString(),
		StartedAt: startedAt.UTC(),
		Start:     start,
		End:       end,
	}
}

// WriteRunManifest writes run.json
func WriteRunManifest(outDir string, m *RunManifest) error {
	sort.Slice(m.Devices, func(i, j int) bool { return m.Devices[i].Device < m.Devices[j].Device })
	text, err := NewFormatter(FormatterOptions{Format: FormatJSON}).FormatJSON(m)
	if err != nil {
		return err
	}
	return codec.WriteAtomic(filepath.Join(outDir, RunManifestFile), []byte(text))
}
