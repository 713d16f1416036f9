package output

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/sdpower/fleetlog-go/internal/types"
)

// TableWriterFormatter renders fleet figures as terminal tables
type TableWriterFormatter struct {
	noColor bool
}

func NewTableWriterFormatter(noColor bool) *TableWriterFormatter {
	return &TableWriterFormatter{noColor: noColor}
}

// formatNumberWithCommas formats a number with thousand separators
func formatNumberWithCommas(n int) string {
	if n < 0 {
		return "-" + formatNumberWithCommas(-n)
	}
	if n < 1000 {
		return strconv.Itoa(n)
	}
	return formatNumberWithCommas(n/1000) + "," + fmt.Sprintf("%03d", n%1000)
}

// formatMB prints a rounded value, or "-" for zero
func formatMB(v float64) string {
	v = Round2(v)
	if v == 0 {
		return "-"
	}
	whole := int(v)
	frac := fmt.Sprintf("%.2f", v-float64(whole))
	return formatNumberWithCommas(whole) + strings.TrimPrefix(frac, "0")
}

func (f *TableWriterFormatter) title(text string) string {
	style := lipgloss.NewStyle().Bold(true).Padding(0, 2)
	if !f.noColor {
		style = style.
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Foreground(lipgloss.Color("205"))
	} else {
		style = style.Border(lipgloss.RoundedBorder())
	}
	return style.Render(text) + "\n\n"
}

func newTable(buf *bytes.Buffer) *tablewriter.Table {
	return tablewriter.NewTable(buf,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Settings: tw.Settings{Separators: tw.Separators{BetweenRows: tw.Off}},
		})),
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignRight},
			},
		}),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
}

// FormatFleetReport renders the per-device table with a fleet total footer
func (f *TableWriterFormatter) FormatFleetReport(report types.FleetReport) string {
	var output strings.Builder
	output.WriteString("\n")
	output.WriteString(f.title(fmt.Sprintf("Fleet Report  %s → %s", report.Start, report.End)))

	if len(report.Boxes) == 0 {
		output.WriteString("No devices were processed.\n")
		return output.String()
	}

	var buf bytes.Buffer
	table := newTable(&buf)
	table.Header([]string{
		"Box\n",
		"Cycles\n",
		"ACDC\ncycles",
		"GSM Down\n(MB)",
		"GSM\nMinutes",
		"GSM Eff\n(MB/min)",
		"Content\n(MB)",
		"Files\nDone",
		"Speed\n(kB/s)",
		"Pending\nFiles",
		"State\n",
		"Last\nDest",
	})

	for _, b := range report.Boxes {
		dest := b.LastDest
		if dest == "" {
			dest = "-"
		}
		table.Append([]string{
			b.Device,
			formatNumberWithCommas(b.Cycles),
			formatNumberWithCommas(b.AttemptedCycles),
			formatMB(b.GSMDownMB),
			formatMB(b.GSMMinutes),
			formatMB(b.GSMEffMBPerMin),
			formatMB(b.ContentMB),
			formatNumberWithCommas(b.FilesCompleted),
			formatMB(b.AvgContentKBps),
			strconv.Itoa(b.PendingFilesWindow),
			b.State,
			dest,
		})
	}

	table.Footer([]string{
		"Total",
		formatNumberWithCommas(report.Cycles),
		formatNumberWithCommas(report.AttemptedCycles),
		formatMB(report.GSMDownMB),
		formatMB(report.GSMMinutes),
		formatMB(report.AvgGSMEff),
		formatMB(report.ContentMB),
		formatNumberWithCommas(report.FilesCompleted),
		formatMB(report.AvgContentKBps),
		"",
		fmt.Sprintf("%d/%d ready", report.ReadyDevices, report.Devices),
		"",
	})
	table.Render()

	output.WriteString(f.colorize(buf.String()))
	return output.String()
}

// FormatCacheIndex renders the indexed files of one device
func (f *TableWriterFormatter) FormatCacheIndex(device string, paths []string, sigs map[string]types.FileSignature, processed int) string {
	var output strings.Builder
	output.WriteString(f.title("Cache index  " + device))

	if len(paths) == 0 {
		output.WriteString("Index is empty.\n")
		return output.String()
	}

	var buf bytes.Buffer
	table := newTable(&buf)
	table.Header([]string{"File", "Size (bytes)", "Modified (unix ns)"})
	for _, p := range paths {
		sig := sigs[p]
		table.Append([]string{p, formatNumberWithCommas(int(sig.Size)), strconv.FormatInt(sig.ModTime, 10)})
	}
	table.Footer([]string{"Total", formatNumberWithCommas(len(paths)), fmt.Sprintf("%d names processed", processed)})
	table.Render()

	output.WriteString(f.colorize(buf.String()))
	return output.String()
}

// colorize paints borders gray, header rows cyan, the total row yellow and
// readiness states green or red
func (f *TableWriterFormatter) colorize(tableOutput string) string {
	if f.noColor {
		return tableOutput
	}

	gray := "\033[90m"
	cyan := "\033[36m"
	yellow := "\033[33m"
	reset := "\033[0m"
	ready := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	notReady := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	lines := strings.Split(tableOutput, "\n")
	var colored strings.Builder

	for i, line := range lines {
		switch {
		case line == "":
		case strings.HasPrefix(line, "┌") || strings.HasPrefix(line, "├") || strings.HasPrefix(line, "└"):
			colored.WriteString(gray + line + reset)
		case strings.Contains(line, "│"):
			parts := strings.Split(line, "│")
			for j, part := range parts {
				if j > 0 {
					colored.WriteString(gray + "│" + reset)
				}
				trimmed := strings.TrimSpace(part)
				switch {
				case trimmed == "":
					colored.WriteString(part)
				case i <= 2:
					colored.WriteString(cyan + part + reset)
				case strings.Contains(line, "Total"):
					colored.WriteString(yellow + part + reset)
				case trimmed == types.StateNotReady:
					colored.WriteString(strings.Replace(part, trimmed, notReady.Render(trimmed), 1))
				case trimmed == types.StateReady:
					colored.WriteString(strings.Replace(part, trimmed, ready.Render(trimmed), 1))
				default:
					colored.WriteString(part)
				}
			}
		default:
			colored.WriteString(line)
		}

		if i < len(lines)-1 {
			colored.WriteString("\n")
		}
	}
	return colored.String()
}
