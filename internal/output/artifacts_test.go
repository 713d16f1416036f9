package output

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sdpower/fleetlog-go/internal/types"
)

func sampleReport() types.FleetReport {
	return types.FleetReport{
		Start:          "2025-03-01",
		End:            "2025-03-31",
		Devices:        2,
		Cycles:         5,
		ContentMB:      400.126,
		AvgContentKBps: 350.555,
		ReadyDevices:   1,
		Boxes: []types.BoxSummary{
			{Device: "10.0.0.1", Cycles: 2, ContentMB: 300, State: types.StateReady, LastDest: "LHR"},
			{Device: "10.0.0.2", Cycles: 3, ContentMB: 100.126, State: types.StateNotReady, PendingFilesWindow: 2},
		},
		NotReadyDevices: 1,
	}
}

func TestWriteDevice(t *testing.T) {
	out := t.TempDir()
	summary := types.BoxSummary{Device: "10.0.0.1", Cycles: 1, State: types.StateReady}
	res := types.DeviceResult{
		Device:  "10.0.0.1",
		Cycles:  []types.CycleRecord{{Device: "10.0.0.1", LogFile: "logfile-a.gz", Date: "2025-03-01"}},
		Days:    []types.DayRecord{{Device: "10.0.0.1", Date: "2025-03-01"}},
		Summary: &summary,
	}
	require.NoError(t, WriteDevice(out, res))

	dir := filepath.Join(out, "boxes", "10-0-0-1")
	for _, name := range []string{CycleFile, DayFile, SummaryFile} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 2, name)
	}
}

func TestUpdateFleetSummaryKeepsOtherDevices(t *testing.T) {
	out := t.TempDir()
	_, _, err := UpdateFleetSummary(out, []types.BoxSummary{
		{Device: "10.0.0.2", Cycles: 1, State: types.StateReady},
		{Device: "10.0.0.1", Cycles: 1, State: types.StateReady},
	})
	require.NoError(t, err)

	rows, warnings, err := UpdateFleetSummary(out, []types.BoxSummary{
		{Device: "10.0.0.1", Cycles: 7, State: types.StateNotReady},
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, rows, 2)
	assert.Equal(t, "10.0.0.1", rows[0].Device)
	assert.Equal(t, 7, rows[0].Cycles)
	assert.Equal(t, "10.0.0.2", rows[1].Device)

	onDisk, _, err := ReadSummariesFile(filepath.Join(out, FleetSummaryFile))
	require.NoError(t, err)
	assert.Equal(t, rows, onDisk)
}

func TestWriteFleetDocuments(t *testing.T) {
	out := t.TempDir()
	report := sampleReport()
	days := map[string][]types.DayRecord{
		"10.0.0.1": {{Device: "10.0.0.1", Date: "2025-03-01", ContentMB: 300}},
	}
	require.NoError(t, WriteFleet(out, report, days, FleetDocuments{Chart: true, Workbook: true}))

	md, err := os.ReadFile(filepath.Join(out, FleetMarkdown))
	require.NoError(t, err)
	assert.Contains(t, string(md), "| Content (MB) | 400.13 |")
	assert.Contains(t, string(md), "![Content MB per box](fleet_content.svg)")

	page, err := os.ReadFile(filepath.Join(out, FleetHTML))
	require.NoError(t, err)
	html := string(page)
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, `<span class="badge ready">Ready</span>`)
	assert.Contains(t, html, `<span class="badge notready">Not Ready</span>`)
	assert.Contains(t, html, "2025-03-01 → 2025-03-31")

	svg, err := os.ReadFile(filepath.Join(out, ChartFile))
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")

	wb, err := excelize.OpenFile(filepath.Join(out, FleetWorkbook))
	require.NoError(t, err)
	defer wb.Close()
	assert.Equal(t, []string{"Fleet", "10.0.0.1", "10.0.0.2"}, wb.GetSheetList())
	rows, err := wb.GetRows("Fleet")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "box_ip", rows[0][0])
	assert.Equal(t, "10.0.0.2", rows[2][0])
	dayRows, err := wb.GetRows("10.0.0.1")
	require.NoError(t, err)
	assert.Len(t, dayRows, 2)
}

func TestFleetHTMLEscapesLogText(t *testing.T) {
	report := types.FleetReport{
		Start:   "2025-03-01",
		End:     "2025-03-31",
		Devices: 1,
		Boxes: []types.BoxSummary{{
			Device:   "<b>box</b>|1",
			State:    types.StateReady,
			LastDest: `<img src=x onerror=alert(1)><script>alert(2)</script> [x](javascript:alert(3))`,
		}},
	}

	var md strings.Builder
	require.NoError(t, WriteFleetMarkdown(&md, report, ""))
	var page strings.Builder
	require.NoError(t, RenderHTML(&page, []byte(md.String()), report))

	html := page.String()
	assert.NotContains(t, html, "<img")
	assert.NotContains(t, html, "<script>")
	assert.NotContains(t, html, "<b>")
	assert.NotContains(t, html, `href="javascript`)
	assert.Contains(t, html, "&lt;script&gt;alert(2)&lt;/script&gt;")
	assert.Contains(t, html, "&lt;b&gt;box&lt;/b&gt;|1")
	assert.Contains(t, html, `<span class="badge ready">Ready</span>`)
}

func TestWriteFleetWithoutContentSkipsChart(t *testing.T) {
	out := t.TempDir()
	report := types.FleetReport{Start: "a", End: "b"}
	require.NoError(t, WriteFleet(out, report, nil, FleetDocuments{Chart: true}))

	_, err := os.Stat(filepath.Join(out, ChartFile))
	assert.True(t, os.IsNotExist(err))
	md, err := os.ReadFile(filepath.Join(out, FleetMarkdown))
	require.NoError(t, err)
	assert.Contains(t, string(md), "No devices were processed")
}

func TestRunManifest(t *testing.T) {
	out := t.TempDir()
	m := NewRunManifest("2025-03-01", "2025-03-31", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	m.Devices = append(m.Devices, DeviceRun{Device: "10.0.0.2", Missing: true}, DeviceRun{Device: "10.0.0.1", Parsed: 3})
	require.NoError(t, WriteRunManifest(out, m))

	data, err := os.ReadFile(filepath.Join(out, RunManifestFile))
	require.NoError(t, err)
	var got RunManifest
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Len(t, got.RunID, 36)
	require.Len(t, got.Devices, 2)
	assert.Equal(t, "10.0.0.1", got.Devices[0].Device)
	assert.True(t, got.Devices[1].Missing)
}

func TestExportSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.db")
	export := SQLiteExport{
		Cycles: []types.CycleRecord{
			{Device: "10.0.0.1", LogFile: "logfile-a.gz", Date: "2025-03-01", ContentMB: 1.234},
			{Device: "10.0.0.1", LogFile: "logfile-b.gz", Date: "2025-03-01"},
		},
		Days:      []types.DayRecord{{Device: "10.0.0.1", Date: "2025-03-01"}},
		Summaries: []types.BoxSummary{{Device: "10.0.0.1", State: types.StateReady}},
	}
	ctx := context.Background()
	require.NoError(t, ExportSQLite(ctx, path, export))
	require.NoError(t, ExportSQLite(ctx, path, export), "re-export upserts")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM cycles").Scan(&count))
	assert.Equal(t, 2, count)

	var content float64
	require.NoError(t, db.QueryRow("SELECT content_mb_processed FROM cycles WHERE log_file = 'logfile-a.gz'").Scan(&content))
	assert.InDelta(t, 1.23, content, 1e-9)

	var state string
	require.NoError(t, db.QueryRow("SELECT state FROM summaries WHERE box_ip = '10.0.0.1'").Scan(&state))
	assert.Equal(t, types.StateReady, state)
}

func TestExportSQLiteOddPath(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run?v=1#a")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "fleet%20.db")
	export := SQLiteExport{Summaries: []types.BoxSummary{{Device: "10.0.0.1", State: types.StateReady}}}
	require.NoError(t, ExportSQLite(context.Background(), path, export))

	_, err := os.Stat(path)
	require.NoError(t, err, "database lands at the literal path")

	db, err := openDB(path)
	require.NoError(t, err)
	defer db.Close()
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM summaries").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestFormatter(t *testing.T) {
	report := sampleReport()

	table, err := NewFormatter(FormatterOptions{Format: FormatTable, NoColor: true}).FormatFleetReport(report)
	require.NoError(t, err)
	assert.Contains(t, table, "10.0.0.2")
	assert.Contains(t, table, "Not Ready")
	assert.Contains(t, table, "1/2 ready")
	assert.NotContains(t, table, "\033[")

	text, err := NewFormatter(FormatterOptions{Format: FormatJSON}).FormatFleetReport(report)
	require.NoError(t, err)
	var decoded types.FleetReport
	require.NoError(t, json.Unmarshal([]byte(text), &decoded))
	assert.Equal(t, 400.13, decoded.ContentMB)
	assert.Equal(t, 100.13, decoded.Boxes[1].ContentMB)

	none, err := NewFormatter(FormatterOptions{Format: FormatNone}).FormatFleetReport(report)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = NewFormatter(FormatterOptions{Format: "yaml"}).FormatFleetReport(report)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
	assert.True(t, ValidFormat("json"))
	assert.False(t, ValidFormat("yaml"))
}

func TestFormatCacheIndex(t *testing.T) {
	f := NewTableWriterFormatter(true)
	out := f.FormatCacheIndex("10.0.0.1", []string{"/logs/a.gz"}, map[string]types.FileSignature{"/logs/a.gz": {Size: 12345, ModTime: 42}}, 1)
	assert.Contains(t, out, "/logs/a.gz")
	assert.Contains(t, out, "12,345")

	empty := f.FormatCacheIndex("10.0.0.1", nil, nil, 0)
	assert.Contains(t, empty, "Index is empty")
}

func TestFormatMB(t *testing.T) {
	assert.Equal(t, "-", formatMB(0))
	assert.Equal(t, "1,234.50", formatMB(1234.5))
	assert.Equal(t, "0.13", formatMB(0.126))
	assert.Equal(t, "12.00", formatMB(12))
}
