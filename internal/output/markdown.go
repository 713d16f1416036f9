package output

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/sdpower/fleetlog-go/internal/types"
)

var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func markdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			// badges are inline spans; every other cell goes through mdCell
			goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		)
	})
	return markdownInstance
}

var fleetColumns = []string{
	"Box", "Cycles", "ACDC cycles", "GSM Down (MB)", "GSM Minutes", "GSM Eff (MB/min)",
	"Content (MB)", "Files Completed", "Avg Content Speed (kB/s)",
	"Avg GSM Down / session (MB)", "Avg GSM Minutes / session",
	"Avg Content / ACDC (MB)", "Pending Files", "State", "Last Dest",
}

func badge(state string) string {
	class := "notready"
	if state == types.StateReady {
		class = "ready"
	}
	return fmt.Sprintf(`<span class="badge %s">%s</span>`, class, html.EscapeString(state))
}

// cell text comes from device names and log payloads, so markup and link
// syntax is backslash-escaped and renders as literal text
var mdEscaper = strings.NewReplacer(
	`\`, `\\`, "|", `\|`, "<", `\<`, ">", `\>`, "&", `\&`,
	"[", `\[`, "]", `\]`, "`", "\\`", "*", `\*`, "_", `\_`, "!", `\!`,
)

func mdCell(s string) string {
	return mdEscaper.Replace(s)
}

// WriteFleetMarkdown writes the human-readable fleet roll-up. chartFile,
// when not empty, is referenced as an image relative to the document.
func WriteFleetMarkdown(w io.Writer, report types.FleetReport, chartFile string) error {
	var b strings.Builder
	f := formatFloat

	fmt.Fprintf(&b, "# Fleet Report\n\n")
	fmt.Fprintf(&b, "## Fleet Summary\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	rows := [][2]string{
		{"Window", report.Start + " → " + report.End},
		{"Boxes", strconv.Itoa(report.Devices)},
		{"Ready boxes", fmt.Sprintf("%d of %d", report.ReadyDevices, report.Devices)},
		{"Included cycles", strconv.Itoa(report.Cycles)},
		{"GSM Down (MB)", f(report.GSMDownMB)},
		{"GSM Minutes", f(report.GSMMinutes)},
		{"Avg GSM Eff (MB/min)", f(report.AvgGSMEff)},
		{"Content (MB)", f(report.ContentMB)},
		{"Files Completed", strconv.Itoa(report.FilesCompleted)},
		{"Avg Content Speed (kB/s)", f(report.AvgContentKBps)},
		{"Avg GSM Down / cycle (MB)", f(report.AvgGSMDownPerCycle)},
		{"Avg Content / ACDC cycle (MB)", f(report.AvgContentPerAttemptedCycle)},
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "| %s | %s |\n", r[0], mdCell(r[1]))
	}

	b.WriteString("\n## Per-box summaries\n\n")
	if len(report.Boxes) == 0 {
		b.WriteString("No devices were processed in this run.\n")
	} else {
		b.WriteString("| " + strings.Join(fleetColumns, " | ") + " |\n")
		b.WriteString("|" + strings.Repeat("---|", len(fleetColumns)) + "\n")
		for _, s := range report.Boxes {
			cells := []string{
				mdCell(s.Device),
				strconv.Itoa(s.Cycles),
				strconv.Itoa(s.AttemptedCycles),
				f(s.GSMDownMB),
				f(s.GSMMinutes),
				f(s.GSMEffMBPerMin),
				f(s.ContentMB),
				strconv.Itoa(s.FilesCompleted),
				f(s.AvgContentKBps),
				f(s.AvgGSMDownPerSessionMB),
				f(s.AvgGSMMinutesPerSession),
				f(s.AvgContentPerAttemptedCycleMB),
				strconv.Itoa(s.PendingFilesWindow),
				badge(s.State),
				mdCell(s.LastDest),
			}
			b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
	}

	if chartFile != "" {
		fmt.Fprintf(&b, "\n## Content per box\n\n![Content MB per box](%s)\n", chartFile)
	}

	b.WriteString("\nRe-runs skip already-indexed logs; use `--no-cache` to force a rescan.\n")

	_, err := io.WriteString(w, b.String())
	return err
}

const pageHead = `<!DOCTYPE html>
<html lang="en"><head><meta charset="utf-8"/>
<title>Fleet Report %s → %s</title>
<style>
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Roboto,Inter,Helvetica,Arial,sans-serif;line-height:1.4;color:#111;padding:24px;background:#fafafa}
h1,h2{margin:0 0 12px}
table{width:100%%;border-collapse:collapse;margin:8px 0 16px;background:#fff}
th,td{border-bottom:1px solid #eee;padding:8px 10px;font-size:13px;text-align:left}
th{background:#f9fafb;font-weight:600}
.badge{display:inline-block;padding:2px 8px;border-radius:999px;font-size:12px;border:1px solid #d1d5db}
.badge.ready{background:#ecfdf5;border-color:#10b981;color:#065f46}
.badge.notready{background:#fef2f2;border-color:#ef4444;color:#7f1d1d}
</style>
</head><body>
`

// RenderHTML converts the Markdown roll-up into a standalone page
func RenderHTML(w io.Writer, markdownSource []byte, report types.FleetReport) error {
	var body bytes.Buffer
	if err := markdown().Convert(markdownSource, &body); err != nil {
		return fmt.Errorf("rendering markdown: %w", err)
	}
	if _, err := fmt.Fprintf(w, pageHead, html.EscapeString(report.Start), html.EscapeString(report.End)); err != nil {
		return err
	}
	if _, err := w.Write(body.Bytes()); err != nil {
		return err
	}
	_, err := io.WriteString(w, "</body></html>\n")
	return err
}
