// Package pipeline runs one scan over a fleet of device directories.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/sdpower/fleetlog-go/internal/cache"
	"github.com/sdpower/fleetlog-go/internal/calculator"
	"github.com/sdpower/fleetlog-go/internal/loader"
	"github.com/sdpower/fleetlog-go/internal/metrics"
	"github.com/sdpower/fleetlog-go/internal/output"
	"github.com/sdpower/fleetlog-go/internal/seed"
	"github.com/sdpower/fleetlog-go/internal/store"
	"github.com/sdpower/fleetlog-go/internal/types"
)

const dateLayout = "2006-01-02"

// Options is the complete, explicit configuration of a run
type Options struct {
	Root    string
	Devices []string
	Start   time.Time
	End     time.Time
	OutDir  string
	// ReuseFrom is an earlier output directory whose cycle tables seed this run
	ReuseFrom string
	// Force ignores the cache index for this run without touching it
	Force bool

	Prefix     string
	Extensions []string

	FileWorkers   int
	DeviceWorkers int

	Documents  output.FleetDocuments
	Metrics    bool
	SQLitePath string
}

// Progress receives advisory progress from device goroutines
type Progress interface {
	DeviceStarted(device string, files int)
	FileParsed(device string, rec types.CycleRecord)
	DeviceDone(res types.DeviceResult)
}

type noProgress struct{}

func (noProgress) DeviceStarted(string, int)             {}
func (noProgress) FileParsed(string, types.CycleRecord) {}
func (noProgress) DeviceDone(types.DeviceResult)        {}

// Report is the outcome of a completed run
type Report struct {
	Fleet    types.FleetReport
	Devices  []types.DeviceResult
	Missing  []string
	Manifest *output.RunManifest
}

type Runner struct {
	opts     Options
	logger   *slog.Logger
	loader   *loader.Loader
	progress Progress
	metrics  *metrics.Recorder
	now      func() time.Time
}

func New(opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.DeviceWorkers < 1 {
		opts.DeviceWorkers = 1
	}
	l := loader.New(logger)
	l.SetWorkers(opts.FileWorkers)
	return &Runner{
		opts:     opts,
		logger:   logger,
		loader:   l,
		progress: noProgress{},
		metrics:  metrics.New(),
		now:      time.Now,
	}
}

func (r *Runner) SetProgress(p Progress) {
	if p != nil {
		r.progress = p
	}
}

// Metrics exposes the run's recorder
func (r *Runner) Metrics() *metrics.Recorder {
	return r.metrics
}

// devices returns the trimmed, de-duplicated device list in input order
func (r *Runner) devices() []string {
	names := lo.FilterMap(r.opts.Devices, func(d string, _ int) (string, bool) {
		d = strings.TrimSpace(d)
		return d, d != ""
	})
	return lo.Uniq(names)
}

// Run scans every device and writes all artifacts. Missing device
// directories do not fail the run; they are listed in Report.Missing.
// Artifact write failures are returned joined, after every other device
// has been processed.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	devices := r.devices()
	if len(devices) == 0 {
		return nil, types.ErrNoDevices
	}
	if r.opts.End.Before(r.opts.Start) {
		return nil, types.ValidationError{Field: "end", Message: "end date is before start date"}
	}

	started := r.now()
	start, end := r.opts.Start.Format(dateLayout), r.opts.End.Format(dateLayout)
	calc := calculator.New(types.Window{Start: r.opts.Start, End: r.opts.End})

	results := make([]types.DeviceResult, len(devices))
	failures := make([]error, len(devices))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.DeviceWorkers)
	for i, device := range devices {
		g.Go(func() error {
			res, err := r.runDevice(gctx, calc, device)
			results[i] = res
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if err != nil {
				r.logger.Error("device failed", "device", device, "error", err)
				r.progress.DeviceDone(res)
			}
			failures[i] = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Device < results[j].Device })

	report := &Report{Manifest: output.NewRunManifest(start, end, started)}
	report.Manifest.ForceScan = r.opts.Force
	report.Manifest.ReuseFrom = r.opts.ReuseFrom

	failed := make(map[string]error)
	for i, err := range failures {
		if err != nil {
			failed[devices[i]] = err
		}
	}

	var summaries []types.BoxSummary
	days := make(map[string][]types.DayRecord)
	var export output.SQLiteExport
	for _, res := range results {
		r.metrics.ObserveDevice(res)
		report.Manifest.Devices = append(report.Manifest.Devices, deviceRun(res, failed[res.Device]))
		if res.Missing {
			report.Missing = append(report.Missing, res.Device)
			continue
		}
		if failed[res.Device] != nil || res.Summary == nil {
			continue
		}
		report.Devices = append(report.Devices, res)
		summaries = append(summaries, *res.Summary)
		days[res.Device] = res.Days
		export.Cycles = append(export.Cycles, res.Cycles...)
		export.Days = append(export.Days, res.Days...)
	}

	report.Fleet = calculator.Fleet(start, end, summaries)
	writeErrs := r.writeFleet(ctx, report.Fleet, days, export)
	for _, device := range devices {
		if err := failed[device]; err != nil {
			writeErrs = append(writeErrs, err)
		}
	}

	finished := r.now()
	report.Manifest.FinishedAt = finished.UTC()
	r.metrics.Finish(started, finished)
	if r.opts.Metrics {
		if err := r.metrics.WriteTextfile(filepath.Join(r.opts.OutDir, metrics.FileName)); err != nil {
			writeErrs = append(writeErrs, fmt.Errorf("writing metrics: %w", err))
		}
	}
	if err := output.WriteRunManifest(r.opts.OutDir, report.Manifest); err != nil {
		writeErrs = append(writeErrs, fmt.Errorf("writing run manifest: %w", err))
	}

	r.logger.Info("run finished",
		"devices", len(devices),
		"missing", len(report.Missing),
		"failed", len(failed),
		"ready", report.Fleet.ReadyDevices,
		"duration", finished.Sub(started).Round(time.Millisecond))
	return report, errors.Join(writeErrs...)
}

func (r *Runner) writeFleet(ctx context.Context, fleet types.FleetReport, days map[string][]types.DayRecord, export output.SQLiteExport) []error {
	var errs []error

	rows, warnings, err := output.UpdateFleetSummary(r.opts.OutDir, fleet.Boxes)
	for _, w := range warnings {
		r.logger.Warn("fleet summary row ignored", "error", w)
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("writing %s: %w", output.FleetSummaryFile, err))
	}

	if err := output.WriteFleet(r.opts.OutDir, fleet, days, r.opts.Documents); err != nil {
		errs = append(errs, fmt.Errorf("writing fleet documents: %w", err))
	}

	if r.opts.SQLitePath != "" {
		export.Summaries = rows
		if err := output.ExportSQLite(ctx, r.opts.SQLitePath, export); err != nil {
			errs = append(errs, fmt.Errorf("sqlite export: %w", err))
		}
	}
	return errs
}

// runDevice processes one device. It owns the device's index, table and
// output directory for the duration of the call.
func (r *Runner) runDevice(ctx context.Context, calc *calculator.Calculator, device string) (types.DeviceResult, error) {
	res := types.DeviceResult{Device: device}
	logger := r.logger.With("device", device)
	dir := filepath.Join(r.opts.Root, device)

	ctrl := cache.NewController(cache.Config{
		Prefix:     r.opts.Prefix,
		Extensions: r.opts.Extensions,
		Window:     types.Window{Start: r.opts.Start, End: r.opts.End},
		Force:      r.opts.Force,
	}, cache.IndexPath(r.opts.OutDir, device), logger)
	if err := ctrl.Load(); err != nil {
		res.Warnings = append(res.Warnings, err)
	}

	sd, warnings := seed.Load(r.opts.ReuseFrom, device)
	for _, w := range warnings {
		logger.Warn("seed row defaulted", "error", w)
	}
	res.Warnings = append(res.Warnings, warnings...)
	ctrl.AddSeed(sd.Names...)

	sel, err := ctrl.Select(dir)
	if errors.Is(err, types.ErrMissingDevice) {
		logger.Warn("device directory does not exist", "dir", dir)
		res.Missing = true
		r.progress.DeviceDone(res)
		return res, nil
	}
	if err != nil {
		return res, types.DeviceError{Device: device, Err: err}
	}

	persisted, source, warnings := store.Load(r.opts.OutDir, device)
	for _, w := range warnings {
		logger.Warn("cycle history degraded", "source", source, "error", w)
	}
	res.Warnings = append(res.Warnings, warnings...)

	logger.Debug("scan selection",
		"parse", len(sel.Parse),
		"unchanged", sel.Unchanged,
		"seeded", sel.Seeded,
		"out_of_window", sel.OutOfWindow,
		"history", source)
	r.progress.DeviceStarted(device, len(sel.Parse))

	parsed, err := r.loader.ParseAll(ctx, device, sel.Parse, func(pr loader.Result) {
		if pr.Err == nil {
			r.progress.FileParsed(device, pr.Record)
		}
	})
	if err != nil {
		return res, err
	}

	fresh := make([]types.CycleRecord, 0, len(parsed))
	for _, pr := range parsed {
		if pr.Err != nil {
			// left out of the index so the next run retries it
			logger.Warn("log file unreadable", "file", pr.Candidate.Name, "error", pr.Err)
			res.Warnings = append(res.Warnings, pr.Err)
			continue
		}
		if pr.Warning != nil {
			res.Warnings = append(res.Warnings, pr.Warning)
		}
		r.metrics.LinesDiscarded(device, pr.Stats.Discarded)
		fresh = append(fresh, pr.Record)
		ctrl.MarkParsed(pr.Candidate)
	}

	res.Parsed = len(fresh)
	res.Skipped = sel.Skipped()
	res.Seeded = sel.Seeded
	res.Cycles = calculator.MergeCycles(persisted, sd.Rows, fresh)
	res.Days = calculator.BuildDays(device, res.Cycles)
	summary := calc.Summarize(device, res.Cycles)
	res.Summary = &summary

	// the index goes last so a failed write is retried on the next run
	if err := store.Save(r.opts.OutDir, device, res.Cycles); err != nil {
		return res, types.DeviceError{Device: device, Err: err}
	}
	if err := output.WriteDevice(r.opts.OutDir, res); err != nil {
		return res, types.DeviceError{Device: device, Err: err}
	}
	if err := ctrl.Save(); err != nil {
		return res, types.DeviceError{Device: device, Err: fmt.Errorf("saving cache index: %w", err)}
	}

	logger.Info("device processed",
		"parsed", res.Parsed,
		"skipped", res.Skipped,
		"cycles", len(res.Cycles),
		"state", summary.State)
	r.progress.DeviceDone(res)
	return res, nil
}

func deviceRun(res types.DeviceResult, failure error) output.DeviceRun {
	run := output.DeviceRun{
		Device:  res.Device,
		Missing: res.Missing,
		Parsed:  res.Parsed,
		Skipped: res.Skipped,
		Seeded:  res.Seeded,
		Cycles:  len(res.Cycles),
	}
	if res.Summary != nil {
		run.State = res.Summary.State
	}
	for _, w := range res.Warnings {
		run.Warnings = append(run.Warnings, w.Error())
	}
	if failure != nil {
		run.Error = failure.Error()
	}
	return run
}
