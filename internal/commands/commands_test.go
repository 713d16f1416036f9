package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdpower/fleetlog-go/internal/cache"
	"github.com/sdpower/fleetlog-go/internal/types"
)

const boxLog = `2025-03-01T06:00:00.000Z 10.0.0.1 pppd[1]: Connect time 3 minutes.
2025-03-01T06:01:00.000Z 10.0.0.1 cd: a.zip [1 of 2 MB] 50%
2025-03-01T06:02:00.000Z 10.0.0.1 cd: a.zip [2 of 2 MB] 100%
`

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func fleetRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "10.0.0.1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logfile-20250301_060000-20250301_180000.log"), []byte(boxLog), 0o644))
	return root
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 2, ExitCode(types.ErrNoDevices))
	assert.Equal(t, 3, ExitCode(types.ErrMissingDevice))
	assert.Equal(t, 1, ExitCode(types.ValidationError{Field: "start", Message: "bad"}))
	assert.Equal(t, 1, ExitCode(os.ErrPermission))
}

func TestScanWritesReport(t *testing.T) {
	root, out := fleetRoot(t), t.TempDir()

	stdout, _, err := execute(t, "scan", "--root", root, "--boxes", "10.0.0.1",
		"--start", "2025-03-01", "--end", "20250331", "--out", out, "--format", "json")
	require.NoError(t, err)

	var report types.FleetReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, 1, report.Devices)
	assert.Equal(t, 1, report.ReadyDevices)
	assert.Equal(t, 1.0, report.ContentMB)
	assert.FileExists(t, filepath.Join(out, "per_box_summary.csv"))
	assert.FileExists(t, cache.IndexPath(out, "10.0.0.1"))
}

func TestScanMissingDeviceExitCode(t *testing.T) {
	root, out := fleetRoot(t), t.TempDir()
	list := filepath.Join(t.TempDir(), "boxes.txt")
	require.NoError(t, os.WriteFile(list, []byte("# fleet\n10.0.0.1\n\n10.0.0.7  # retired\n"), 0o644))

	stdout, stderr, err := execute(t, "scan", "--root", root, "--boxes-file", list,
		"--start", "2025-03-01", "--end", "2025-03-31", "--out", out, "--format", "table", "--no-color")
	require.Error(t, err)
	assert.Equal(t, ExitMissingDevice, ExitCode(err))
	assert.Contains(t, err.Error(), "10.0.0.7")
	assert.Contains(t, stdout, "10.0.0.1")
	assert.Contains(t, stderr, "device directory does not exist")
}

func TestScanArgumentErrors(t *testing.T) {
	root, out := fleetRoot(t), t.TempDir()

	_, _, err := execute(t, "scan", "--root", root, "--start", "2025-03-01", "--end", "2025-03-31", "--out", out)
	assert.Equal(t, ExitNoDevices, ExitCode(err))

	_, _, err = execute(t, "scan", "--root", root, "--boxes", "10.0.0.1", "--start", "March", "--end", "2025-03-31", "--out", out)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
	assert.Equal(t, ExitFailure, ExitCode(err))

	_, _, err = execute(t, "scan", "--root", root, "--boxes", "10.0.0.1", "--start", "2025-03-01", "--end", "2025-03-31", "--out", out, "--format", "xml")
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	_, _, err = execute(t, "scan", "--root", root, "--boxes", "10.0.0.1", "--start", "2025-03-01", "--end", "2025-03-31", "--out", out, "--config", filepath.Join(out, "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestScanUsesConfigFile(t *testing.T) {
	root, out := fleetRoot(t), t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "fleetlog.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("output:\n  format: none\n  workbook: false\n  metrics: false\n"), 0o644))

	stdout, _, err := execute(t, "scan", "--root", root, "--boxes", "10.0.0.1",
		"--start", "2025-03-01", "--end", "2025-03-31", "--out", out, "--config", cfgPath)
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.NoFileExists(t, filepath.Join(out, "fleet.xlsx"))
	assert.NoFileExists(t, filepath.Join(out, "metrics.prom"))
	assert.FileExists(t, filepath.Join(out, "fleet.html"))
}

func TestCacheShowAndClear(t *testing.T) {
	root, out := fleetRoot(t), t.TempDir()
	_, _, err := execute(t, "scan", "--root", root, "--boxes", "10.0.0.1",
		"--start", "2025-03-01", "--end", "2025-03-31", "--out", out, "--format", "none")
	require.NoError(t, err)

	stdout, _, err := execute(t, "cache", "show", "--out", out, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, stdout, "10.0.0.1")
	assert.Contains(t, stdout, "logfile-20250301_060000-20250301_180000.log")

	_, _, err = execute(t, "cache", "clear", "--out", out)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	stdout, _, err = execute(t, "cache", "clear", "--out", out, "--box", "10.0.0.1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Cleared cache index of 10.0.0.1")
	assert.NoFileExists(t, cache.IndexPath(out, "10.0.0.1"))

	stdout, _, err = execute(t, "cache", "show", "--out", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "No cache index found.")
}

func TestReadDeviceList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boxes")
	require.NoError(t, os.WriteFile(path, []byte(" 10.0.0.1 \n#skip\n10.0.0.2#x\n"), 0o644))

	devices, err := readDeviceList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, devices)
}
