// Package config loads the optional YAML file that sets scan defaults.
//
// The file is read once at startup. Values it sets replace the built-in
// defaults; command-line flags in turn override the file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sdpower/fleetlog-go/internal/cache"
	"github.com/sdpower/fleetlog-go/internal/output"
	"github.com/sdpower/fleetlog-go/internal/types"
)

// Config is the complete scan configuration
type Config struct {
	// Scan controls which files of a device directory are candidates.
	Scan ScanConfig `yaml:"scan"`

	// Workers sizes the two levels of parallelism.
	Workers WorkersConfig `yaml:"workers"`

	// Output toggles optional artifacts.
	Output OutputConfig `yaml:"output"`

	// Progress configures advisory progress reporting.
	Progress ProgressConfig `yaml:"progress"`
}

type ScanConfig struct {
	// Prefix is the log file name prefix.
	// Default: logfile-
	Prefix string `yaml:"prefix"`

	// Extensions lists accepted file extensions, matched case-insensitively.
	// Default: [.gz, .log, .txt]
	Extensions []string `yaml:"extensions"`
}

type WorkersConfig struct {
	// Files is the number of files parsed concurrently per device.
	// Default: 4
	Files int `yaml:"files"`

	// Devices is the number of devices processed concurrently.
	// Default: 1
	Devices int `yaml:"devices"`
}

type OutputConfig struct {
	// Format is the stdout rendering: table, json or none.
	// Default: table
	Format string `yaml:"format"`

	// Chart enables the SVG content chart next to the fleet document.
	// Default: true
	Chart bool `yaml:"chart"`

	// Workbook enables fleet.xlsx.
	// Default: true
	Workbook bool `yaml:"workbook"`

	// Metrics enables the metrics.prom textfile.
	// Default: true
	Metrics bool `yaml:"metrics"`

	// SQLite is a database path the run's tables are exported to. Empty disables it.
	SQLite string `yaml:"sqlite"`
}

type ProgressConfig struct {
	// Enabled turns on progress reporting on stderr.
	Enabled bool `yaml:"enabled"`

	// Every is the interval between status lines, e.g. "10s".
	// Default: 10s
	Every string `yaml:"every"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			Prefix:     cache.DefaultPrefix,
			Extensions: append([]string(nil), cache.DefaultExtensions...),
		},
		Workers: WorkersConfig{
			Files:   4,
			Devices: 1,
		},
		Output: OutputConfig{
			Format:   output.FormatTable,
			Chart:    true,
			Workbook: true,
			Metrics:  true,
		},
		Progress: ProgressConfig{
			Every: "10s",
		},
	}
}

// LoadFile reads path on top of the defaults and validates the result
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrInvalidConfig, path, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize makes extensions dot-prefixed and lower case
func (c *Config) normalize() {
	for i, ext := range c.Scan.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Scan.Extensions[i] = ext
	}
}

// ProgressInterval is the parsed Progress.Every
func (c *Config) ProgressInterval() time.Duration {
	d, err := time.ParseDuration(c.Progress.Every)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// Validate reports the first invalid field
func (c *Config) Validate() error {
	if c.Scan.Prefix == "" {
		return types.ValidationError{Field: "scan.prefix", Message: "must not be empty"}
	}
	if len(c.Scan.Extensions) == 0 {
		return types.ValidationError{Field: "scan.extensions", Message: "at least one extension is required"}
	}
	for _, ext := range c.Scan.Extensions {
		if ext == "" || ext == "." {
			return types.ValidationError{Field: "scan.extensions", Message: "empty extension"}
		}
	}
	if c.Workers.Files < 1 {
		return types.ValidationError{Field: "workers.files", Message: fmt.Sprintf("must be at least 1, got %d", c.Workers.Files)}
	}
	if c.Workers.Devices < 1 {
		return types.ValidationError{Field: "workers.devices", Message: fmt.Sprintf("must be at least 1, got %d", c.Workers.Devices)}
	}
	if !output.ValidFormat(c.Output.Format) {
		return types.ValidationError{Field: "output.format", Message: fmt.Sprintf("unknown format %q, want table, json or none", c.Output.Format)}
	}
	d, err := time.ParseDuration(c.Progress.Every)
	if err != nil || d <= 0 {
		return types.ValidationError{Field: "progress.every", Message: fmt.Sprintf("%q is not a positive duration", c.Progress.Every)}
	}
	return nil
}
