package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sdpower/fleetlog-go/internal/types"
)

// Process exit codes
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitNoDevices     = 2
	ExitMissingDevice = 3
)

// ExitCode maps a command error to the process exit status
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, types.ErrNoDevices):
		return ExitNoDevices
	case errors.Is(err, types.ErrMissingDevice):
		return ExitMissingDevice
	default:
		return ExitFailure
	}
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// parseDate accepts YYYY-MM-DD or YYYYMMDD
func parseDate(flag, value string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "20060102"} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, types.ValidationError{Field: flag, Message: fmt.Sprintf("invalid date %q, use YYYY-MM-DD", value)}
}

// readDeviceList reads one device per line; blank lines and # comments are ignored
func readDeviceList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading device list: %w", err)
	}
	defer f.Close()

	var devices []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line != "" {
			devices = append(devices, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading device list: %w", err)
	}
	return devices, nil
}
