// Package store persists each device's full-precision cycle table between
// runs. The emitted per_cycle.csv is only a rounded rendering of this
// table; it is read back only when the state file is missing or corrupt.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sdpower/fleetlog-go/internal/codec"
	"github.com/sdpower/fleetlog-go/internal/output"
	"github.com/sdpower/fleetlog-go/internal/types"
)

const tableVersion = 1

// Table is the on-disk form of one device's cycle table
type Table struct {
	Version int                 `cbor:"version"`
	Device  string              `cbor:"device"`
	Cycles  []types.CycleRecord `cbor:"cycles"`
}

// Source says where a loaded table came from
type Source int

const (
	SourceNone Source = iota
	SourceState
	SourceCSV
)

func (s Source) String() string {
	switch s {
	case SourceState:
		return "state"
	case SourceCSV:
		return "csv"
	default:
		return "none"
	}
}

// StatePath is the location of a device's persisted table
func StatePath(outDir, device string) string {
	return filepath.Join(outDir, "state", device+"_cycles.cbor")
}

// Load returns the device's persisted cycles. It prefers the state file
// and falls back to the previously emitted per_cycle.csv. Problems with
// either are returned as warnings, never as an error: a device with no
// usable history simply starts empty.
func Load(outDir, device string) ([]types.CycleRecord, Source, []error) {
	var warnings []error

	var table Table
	err := codec.ReadFile(StatePath(outDir, device), &table)
	switch {
	case err == nil && table.Device == device:
		return table.Cycles, SourceState, nil
	case err == nil:
		warnings = append(warnings, fmt.Errorf("%w: state file belongs to %q", types.ErrInvalidFormat, table.Device))
	case !errors.Is(err, os.ErrNotExist):
		warnings = append(warnings, fmt.Errorf("reading cycle state for %s: %w", device, err))
	}

	csvPath := filepath.Join(output.DeviceDir(outDir, device), output.CycleFile)
	rows, rowWarnings, err := output.ReadCyclesFile(csvPath)
	warnings = append(warnings, rowWarnings...)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			warnings = append(warnings, fmt.Errorf("importing %s: %w", csvPath, err))
		}
		if len(rows) == 0 {
			return nil, SourceNone, warnings
		}
	}

	// the rendered table carries the device only per row
	rows = filterDevice(rows, device)
	if len(rows) == 0 {
		return nil, SourceNone, warnings
	}
	return rows, SourceCSV, warnings
}

func filterDevice(rows []types.CycleRecord, device string) []types.CycleRecord {
	kept := rows[:0]
	for _, r := range rows {
		if r.Device == "" {
			r.Device = device
		}
		if r.Device == device {
			kept = append(kept, r)
		}
	}
	return kept
}

// Save atomically replaces the device's persisted table
func Save(outDir, device string, cycles []types.CycleRecord) error {
	table := Table{Version: tableVersion, Device: device, Cycles: cycles}
	if err := codec.WriteFile(StatePath(outDir, device), table); err != nil {
		return fmt.Errorf("saving cycle state for %s: %w", device, err)
	}
	return nil
}
