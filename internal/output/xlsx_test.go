package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sdpower/fleetlog-go/internal/types"
)

func TestSheetNamesAreDistinct(t *testing.T) {
	longA := strings.Repeat("a", 31) + "1"
	longB := strings.Repeat("a", 31) + "2"
	accented := strings.Repeat("é", 40)

	names := sheetNames([]string{"box[1]", "box(1)", "Fleet", "FLEET", longA, longB, accented, "box[1]"})

	assert.Equal(t, "box(1)", names["box[1]"])
	assert.Equal(t, "box(1)~2", names["box(1)"])
	assert.Equal(t, "Fleet~2", names["Fleet"])
	assert.Equal(t, "FLEET~3", names["FLEET"])
	assert.Equal(t, strings.Repeat("a", 31), names[longA])
	assert.Equal(t, strings.Repeat("a", 29)+"~2", names[longB])
	assert.True(t, utf8.ValidString(names[accented]))
	assert.Equal(t, 31, utf8.RuneCountInString(names[accented]))
	assert.Len(t, names, 7)
}

func TestWorkbookKeepsCollidingDevicesApart(t *testing.T) {
	out := t.TempDir()
	report := types.FleetReport{
		Start: "2025-03-01",
		End:   "2025-03-31",
		Boxes: []types.BoxSummary{
			{Device: "Fleet", State: types.StateReady},
			{Device: "box(1)", State: types.StateReady},
			{Device: "box[1]", State: types.StateReady},
		},
	}
	days := map[string][]types.DayRecord{
		"Fleet":  {{Device: "Fleet", Date: "2025-03-01"}},
		"box(1)": {{Device: "box(1)", Date: "2025-03-01"}, {Device: "box(1)", Date: "2025-03-02"}},
		"box[1]": {{Device: "box[1]", Date: "2025-03-03"}},
	}

	path := filepath.Join(out, FleetWorkbook)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteWorkbook(f, report, days))
	require.NoError(t, f.Close())

	wb, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer wb.Close()
	assert.Equal(t, []string{"Fleet", "Fleet~2", "box(1)", "box(1)~2"}, wb.GetSheetList())

	summary, err := wb.GetRows("Fleet")
	require.NoError(t, err)
	assert.Len(t, summary, 4)
	first, err := wb.GetRows("box(1)")
	require.NoError(t, err)
	assert.Len(t, first, 3)
	second, err := wb.GetRows("box(1)~2")
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, "box[1]", second[1][1])
}
