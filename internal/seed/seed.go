// Package seed imports the cycle table of an earlier run so its files are
// not parsed again.
package seed

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sdpower/fleetlog-go/internal/output"
	"github.com/sdpower/fleetlog-go/internal/types"
)

// Seed is what a previous run contributes for one device
type Seed struct {
	Rows  []types.CycleRecord
	Names []string
}

// Path is the previous run's cycle table for a device
func Path(reuseDir, device string) string {
	return filepath.Join(output.DeviceDir(reuseDir, device), output.CycleFile)
}

// Load reads the seed rows of one device. Seed data is trusted as is:
// unparsable cells take their defaults and are reported as warnings. A
// missing table is an empty seed.
func Load(reuseDir, device string) (Seed, []error) {
	var s Seed
	if reuseDir == "" {
		return s, nil
	}

	rows, warnings, err := output.ReadCyclesFile(Path(reuseDir, device))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		warnings = append(warnings, fmt.Errorf("reading seed for %s: %w", device, err))
	}

	for _, r := range rows {
		if r.Device == "" {
			r.Device = device
		}
		if r.Device != device {
			continue
		}
		s.Rows = append(s.Rows, r)
		s.Names = append(s.Names, r.LogFile)
	}
	return s, warnings
}
