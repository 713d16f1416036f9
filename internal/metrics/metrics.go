// Package metrics records per-run counters and writes them in the
// Prometheus textfile format for a node exporter to pick up.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sdpower/fleetlog-go/internal/types"
)

// FileName is the textfile written next to the fleet artifacts
const FileName = "metrics.prom"

// Recorder is safe for concurrent use by device goroutines
type Recorder struct {
	registry *prometheus.Registry

	filesParsed    *prometheus.CounterVec
	filesSkipped   *prometheus.CounterVec
	linesDiscarded *prometheus.CounterVec
	warnings       *prometheus.CounterVec
	cycles         *prometheus.GaugeVec
	ready          *prometheus.GaugeVec
	missing        prometheus.Gauge
	runSeconds     prometheus.Gauge
	lastRun        prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		filesParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleetlog",
			Name:      "files_parsed_total",
			Help:      "Log files parsed in this run.",
		}, []string{"box"}),
		filesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleetlog",
			Name:      "files_skipped_total",
			Help:      "Candidate log files not parsed, by reason.",
		}, []string{"box", "reason"}),
		linesDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleetlog",
			Name:      "lines_discarded_total",
			Help:      "Lines without a parseable prefix.",
		}, []string{"box"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleetlog",
			Name:      "warnings_total",
			Help:      "Recoverable problems such as corrupt archives or indexes.",
		}, []string{"box"}),
		cycles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fleetlog",
			Name:      "window_cycles",
			Help:      "Cycles inside the analysis window.",
		}, []string{"box"}),
		ready: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fleetlog",
			Name:      "box_ready",
			Help:      "1 when the box's last cycle ended with no pending files.",
		}, []string{"box"}),
		missing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fleetlog",
			Name:      "boxes_missing",
			Help:      "Requested boxes without a log directory.",
		}),
		runSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fleetlog",
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fleetlog",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
	r.registry.MustRegister(
		r.filesParsed, r.filesSkipped, r.linesDiscarded, r.warnings,
		r.cycles, r.ready, r.missing, r.runSeconds, r.lastRun,
	)
	return r
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// LinesDiscarded adds n unparseable lines for device
func (r *Recorder) LinesDiscarded(device string, n int) {
	if n > 0 {
		r.linesDiscarded.WithLabelValues(device).Add(float64(n))
	}
}

// ObserveDevice records the outcome of one device
func (r *Recorder) ObserveDevice(res types.DeviceResult) {
	if res.Missing {
		r.missing.Inc()
		return
	}
	r.filesParsed.WithLabelValues(res.Device).Add(float64(res.Parsed))
	r.filesSkipped.WithLabelValues(res.Device, "unchanged").Add(float64(res.Skipped - res.Seeded))
	r.filesSkipped.WithLabelValues(res.Device, "seeded").Add(float64(res.Seeded))
	r.warnings.WithLabelValues(res.Device).Add(float64(len(res.Warnings)))

	if res.Summary != nil {
		r.cycles.WithLabelValues(res.Device).Set(float64(res.Summary.Cycles))
		ready := 0.0
		if res.Summary.Ready() {
			ready = 1
		}
		r.ready.WithLabelValues(res.Device).Set(ready)
	}
}

// Finish stamps the run duration and completion time
func (r *Recorder) Finish(started, finished time.Time) {
	r.runSeconds.Set(finished.Sub(started).Seconds())
	r.lastRun.Set(float64(finished.Unix()))
}

// WriteTextfile writes every metric to path atomically
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
