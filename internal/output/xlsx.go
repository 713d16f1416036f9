package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"

	"github.com/sdpower/fleetlog-go/internal/types"
)

const fleetSheet = "Fleet"

const maxSheetName = 31

var sheetNameReplacer = strings.NewReplacer(":", "-", `\`, "-", "/", "-", "?", "-", "*", "-", "[", "(", "]", ")", "'", "-")

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// sheetNames maps every device to a distinct sheet name. Sheet names are
// compared case-insensitively and the fleet sheet name is reserved.
func sheetNames(devices []string) map[string]string {
	taken := map[string]bool{strings.ToLower(fleetSheet): true}
	names := make(map[string]string, len(devices))
	for _, device := range devices {
		if _, ok := names[device]; ok {
			continue
		}
		base := sheetNameReplacer.Replace(device)
		if base == "" {
			base = "box"
		}
		name := truncateRunes(base, maxSheetName)
		for n := 2; taken[strings.ToLower(name)]; n++ {
			suffix := "~" + strconv.Itoa(n)
			name = truncateRunes(base, maxSheetName-len(suffix)) + suffix
		}
		taken[strings.ToLower(name)] = true
		names[device] = name
	}
	return names
}

func rowOf[T any](cols []column[T], rec *T) []interface{} {
	row := make([]interface{}, len(cols))
	for i, c := range cols {
		cell := c.get(rec)
		row[i] = cell
		if !c.text {
			if v, err := strconv.ParseFloat(cell, 64); err == nil {
				row[i] = v
			}
		}
	}
	return row
}

func headerRow[T any](cols []column[T]) []interface{} {
	row := make([]interface{}, len(cols))
	for i, c := range cols {
		row[i] = c.name
	}
	return row
}

func writeSheet[T any](wb *excelize.File, sheet string, cols []column[T], rows []T) error {
	head := headerRow(cols)
	if err := wb.SetSheetRow(sheet, "A1", &head); err != nil {
		return err
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := rowOf(cols, &rows[i])
		if err := wb.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return nil
}

// WriteWorkbook writes a workbook with the fleet summary on the first sheet
// and the day table of every device on its own sheet
func WriteWorkbook(w io.Writer, report types.FleetReport, days map[string][]types.DayRecord) error {
	wb := excelize.NewFile()
	defer wb.Close()

	wb.SetSheetName(wb.GetSheetName(0), fleetSheet)
	if err := writeSheet(wb, fleetSheet, summaryColumns, report.Boxes); err != nil {
		return fmt.Errorf("writing fleet sheet: %w", err)
	}

	names := sheetNames(lo.Map(report.Boxes, func(b types.BoxSummary, _ int) string { return b.Device }))
	for _, b := range report.Boxes {
		name := names[b.Device]
		if _, err := wb.NewSheet(name); err != nil {
			return fmt.Errorf("adding sheet %s: %w", name, err)
		}
		if err := writeSheet(wb, name, dayColumns, days[b.Device]); err != nil {
			return fmt.Errorf("writing sheet %s: %w", name, err)
		}
	}

	_, err := wb.WriteTo(w)
	return err
}
