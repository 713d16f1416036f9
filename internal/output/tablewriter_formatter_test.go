package output

import (
	"strings"
	"testing"

	"github.com/sdpower/fleetlog-go/internal/types"
)

func TestFormatNumberWithCommas(t *testing.T) {
	testCases := []struct {
		input    int
		expected string
		desc     string
	}{
		{0, "0", "zero"},
		{999, "999", "below a thousand"},
		{1000, "1,000", "exact thousand"},
		{1234567, "1,234,567", "millions"},
		{-45210, "-45,210", "negative"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			result := formatNumberWithCommas(tc.input)
			if result != tc.expected {
				t.Errorf("input %d: expected %s, got %s", tc.input, tc.expected, result)
			}
		})
	}
}

func TestFleetTableHighlightsReadiness(t *testing.T) {
	report := types.FleetReport{
		Start:        "2025-03-01",
		End:          "2025-03-02",
		Devices:      1,
		ReadyDevices: 1,
		Boxes:        []types.BoxSummary{{Device: "10.0.0.9", State: types.StateReady}},
	}

	plain := NewTableWriterFormatter(true).FormatFleetReport(report)
	if !strings.Contains(plain, "Ready") || !strings.Contains(plain, "Total") {
		t.Fatalf("missing state or footer:\n%s", plain)
	}
	if !strings.Contains(plain, "10.0.0.9") {
		t.Errorf("missing device row:\n%s", plain)
	}

	empty := NewTableWriterFormatter(true).FormatFleetReport(types.FleetReport{})
	if !strings.Contains(empty, "No devices were processed.") {
		t.Errorf("unexpected empty report:\n%s", empty)
	}
}
