package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sdpower/fleetlog-go/internal/config"
	"github.com/sdpower/fleetlog-go/internal/monitor"
	"github.com/sdpower/fleetlog-go/internal/output"
	"github.com/sdpower/fleetlog-go/internal/pipeline"
	"github.com/sdpower/fleetlog-go/internal/types"
)

func NewScanCommand() *cobra.Command {
	var (
		root          string
		boxes         []string
		boxesFile     string
		start         string
		end           string
		outDir        string
		reuseFrom     string
		noCache       bool
		progress      bool
		progressEvery int
		workers       int
		parallel      int
		format        string
		sqlitePath    string
		configPath    string
		noColor       bool
		debug         bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan device logs and build fleet reports",
		Long: `Scan the log directory of every device under --root, fold each new or
changed log file into per-cycle, per-day and per-box tables, and write the
fleet report. Files already indexed with an unchanged size and mtime are
skipped; --no-cache rescans everything without touching the index.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				var err error
				if cfg, err = config.LoadFile(configPath); err != nil {
					return err
				}
			}

			flags := cmd.Flags()
			if flags.Changed("workers") {
				cfg.Workers.Files = workers
			}
			if flags.Changed("parallel") {
				cfg.Workers.Devices = parallel
			}
			if flags.Changed("format") {
				cfg.Output.Format = format
			}
			if flags.Changed("sqlite") {
				cfg.Output.SQLite = sqlitePath
			}
			if flags.Changed("progress") {
				cfg.Progress.Enabled = progress
			}
			if flags.Changed("progress-every") {
				cfg.Progress.Every = (time.Duration(progressEvery) * time.Second).String()
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			devices := append([]string(nil), boxes...)
			if boxesFile != "" {
				listed, err := readDeviceList(boxesFile)
				if err != nil {
					return err
				}
				devices = append(devices, listed...)
			}
			if len(devices) == 0 {
				return types.ErrNoDevices
			}
			if root == "" {
				return types.ValidationError{Field: "root", Message: "is required"}
			}
			if outDir == "" {
				return types.ValidationError{Field: "out", Message: "is required"}
			}
			startDate, err := parseDate("start", start)
			if err != nil {
				return err
			}
			endDate, err := parseDate("end", end)
			if err != nil {
				return err
			}

			logger := newLogger(cmd.ErrOrStderr(), debug)
			runner := pipeline.New(pipeline.Options{
				Root:          root,
				Devices:       devices,
				Start:         startDate,
				End:           endDate,
				OutDir:        outDir,
				ReuseFrom:     reuseFrom,
				Force:         noCache,
				Prefix:        cfg.Scan.Prefix,
				Extensions:    cfg.Scan.Extensions,
				FileWorkers:   cfg.Workers.Files,
				DeviceWorkers: cfg.Workers.Devices,
				Documents:     output.FleetDocuments{Chart: cfg.Output.Chart, Workbook: cfg.Output.Workbook},
				Metrics:       cfg.Output.Metrics,
				SQLitePath:    cfg.Output.SQLite,
			}, logger)

			if cfg.Progress.Enabled {
				mon := monitor.New(monitor.Options{
					Interval:    cfg.ProgressInterval(),
					NoColor:     noColor,
					Output:      cmd.ErrOrStderr(),
					Interactive: monitor.IsTerminal(os.Stderr) && cmd.ErrOrStderr() == os.Stderr,
				})
				runner.SetProgress(mon)
				mon.Start(cmd.Context())
				defer mon.Stop()
			}

			report, runErr := runner.Run(cmd.Context())
			if report == nil {
				return runErr
			}

			text, err := output.NewFormatter(output.FormatterOptions{
				Format:  cfg.Output.Format,
				NoColor: noColor,
			}).FormatFleetReport(report.Fleet)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), text)

			if runErr != nil {
				return runErr
			}
			if len(report.Missing) > 0 {
				return fmt.Errorf("%w: %s", types.ErrMissingDevice, strings.Join(report.Missing, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Directory holding one log directory per box")
	cmd.Flags().StringSliceVar(&boxes, "boxes", nil, "Box identifiers (comma separated)")
	cmd.Flags().StringVar(&boxesFile, "boxes-file", "", "File listing one box per line")
	cmd.Flags().StringVar(&start, "start", "", "First day of the analysis window (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "Last day of the analysis window (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory")
	cmd.Flags().StringVar(&reuseFrom, "reuse-from", "", "Earlier output directory whose cycle tables seed this run")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Rescan every file, ignoring the cache index")
	cmd.Flags().BoolVar(&progress, "progress", false, "Report progress on stderr")
	cmd.Flags().IntVar(&progressEvery, "progress-every", 10, "Progress interval in seconds")
	cmd.Flags().IntVar(&workers, "workers", 4, "Files parsed concurrently per box")
	cmd.Flags().IntVar(&parallel, "parallel", 1, "Boxes processed concurrently")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Stdout format (table, json, none)")
	cmd.Flags().StringVar(&sqlitePath, "sqlite", "", "Also export tables to this SQLite database")
	cmd.Flags().StringVar(&configPath, "config", "", "YAML configuration file")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	return cmd
}
