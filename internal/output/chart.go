package output

import (
	"io"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/sdpower/fleetlog-go/internal/types"
)

// ChartFile is the name of the content chart next to the fleet document
const ChartFile = "fleet_content.svg"

// readiness hues; lightness steps per bar so neighbours stay distinguishable
const (
	readyHue    = 150.0
	notReadyHue = 15.0
)

func barColor(state string, index int) drawing.Color {
	hue := notReadyHue
	if state == types.StateReady {
		hue = readyHue
	}
	lightness := 0.55 + 0.08*float64(index%3)
	r, g, b := colorful.Hcl(hue, 0.45, lightness).Clamped().RGB255()
	return drawing.Color{R: r, G: g, B: b, A: 255}
}

// HasChart reports whether the report has anything worth plotting
func HasChart(report types.FleetReport) bool {
	for _, b := range report.Boxes {
		if Round2(b.ContentMB) > 0 {
			return true
		}
	}
	return false
}

// WriteContentChart renders an SVG bar chart of content MB per device,
// coloured by readiness
func WriteContentChart(w io.Writer, report types.FleetReport) error {
	bars := make([]chart.Value, 0, len(report.Boxes))
	maxMB := 0.0
	for i, b := range report.Boxes {
		mb := Round2(b.ContentMB)
		if mb > maxMB {
			maxMB = mb
		}
		col := barColor(b.State, i)
		bars = append(bars, chart.Value{
			Label: b.Device,
			Value: mb,
			Style: chart.Style{FillColor: col, StrokeColor: col, StrokeWidth: 1},
		})
	}

	width := 120 + 70*len(bars)
	if width < 480 {
		width = 480
	}

	graph := chart.BarChart{
		Title:      "Content (MB) per box",
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 28}},
		Width:      width,
		Height:     360,
		BarWidth:   40,
		YAxis: chart.YAxis{
			Name:  "MB",
			Range: &chart.ContinuousRange{Min: 0, Max: maxMB * 1.1},
		},
		Bars: bars,
	}
	return graph.Render(chart.SVG, w)
}
