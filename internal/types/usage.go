package types

import (
	"time"
)

// Readiness states reported per device
const (
	StateReady    = "Ready"
	StateNotReady = "Not Ready"
)

// FileSignature is the change-detection fingerprint of a log file
type FileSignature struct {
	Size    int64 `cbor:"size" json:"size"`
	ModTime int64 `cbor:"mtime" json:"mtime"` // unix nanoseconds
}

// CycleRecord is one row per processed log file (one operational window of a device)
type CycleRecord struct {
	Device              string  `cbor:"box_ip" json:"box_ip"`
	LogFile             string  `cbor:"log_file" json:"log_file"`
	Date                string  `cbor:"date" json:"date"` // YYYY-MM-DD
	GSMDownMB           float64 `cbor:"gsm_down_mb" json:"gsm_down_mb"`
	GSMUpMB             float64 `cbor:"gsm_up_mb" json:"gsm_up_mb"`
	GSMMinutes          float64 `cbor:"gsm_minutes" json:"gsm_minutes"`
	GSMSessions         int     `cbor:"gsm_sessions" json:"gsm_sessions"`
	ContentMB           float64 `cbor:"content_mb_processed" json:"content_mb_processed"`
	FilesCompleted      int     `cbor:"files_completed" json:"files_completed"`
	AvgContentKBps      float64 `cbor:"avg_content_kBps" json:"avg_content_kBps"`
	AnyContentAttempted bool    `cbor:"any_content_attempted" json:"any_content_attempted"`
	DestLast            string  `cbor:"dest_airport_last" json:"dest_airport_last"`
	PendingMBEnd        float64 `cbor:"pending_mb_end" json:"pending_mb_end"`
	PendingFiles        int     `cbor:"pending_files" json:"pending_files"`

	// PendingFilesKnown is false only for seed rows imported without a
	// pending_files column.
	PendingFilesKnown bool `cbor:"pending_files_known" json:"-"`

	// Accumulators kept so day and box figures can be recomputed exactly
	ContentSeconds float64 `cbor:"content_seconds" json:"content_seconds"`
	StepRateSum    float64 `cbor:"step_rate_sum" json:"step_rate_sum"`
	StepCount      int     `cbor:"step_count" json:"step_count"`
	TLSErrors      int     `cbor:"tls_errors" json:"tls_errors"`
	HTTPErrors     int     `cbor:"http_4xx_5xx" json:"http_4xx_5xx"`
}

// Key returns the identity key of the record within a device table
func (c CycleRecord) Key() CycleKey {
	return CycleKey{Device: c.Device, LogFile: c.LogFile}
}

// Attempted reports whether any content delivery was attempted in the cycle
func (c CycleRecord) Attempted() bool {
	return c.AnyContentAttempted || c.ContentMB > 0 || c.FilesCompleted > 0
}

// EffectivePendingFiles returns the pending-file count used for readiness.
// Seed rows that predate the pending_files column infer it from pending MB.
func (c CycleRecord) EffectivePendingFiles() int {
	if c.PendingFilesKnown {
		return c.PendingFiles
	}
	if c.PendingMBEnd > 0 {
		return 1
	}
	return 0
}

// CycleKey identifies a cycle inside a device's persisted table
type CycleKey struct {
	Device  string
	LogFile string
}

// DayRecord aggregates all cycles of one device on one calendar date
type DayRecord struct {
	Date            string  `json:"date"`
	Device          string  `json:"box_ip"`
	GSMDownMB       float64 `json:"gsm_down_mb"`
	GSMUpMB         float64 `json:"gsm_up_mb"`
	GSMMinutes      float64 `json:"gsm_minutes"`
	GSMSessions     int     `json:"gsm_sessions"`
	GSMEffMBPerMin  float64 `json:"gsm_eff_mb_per_min"`
	ContentMB       float64 `json:"content_mb_processed"`
	FilesCompleted  int     `json:"files_completed"`
	AvgContentKBps  float64 `json:"avg_content_kBps"`
	AvgStepMBPer30s float64 `json:"avg_step_MB_per_30s"`
	TLSErrors       int     `json:"tls_errors"`
	HTTPErrors      int     `json:"http_4xx_5xx"`
	DestLast        string  `json:"dest_airport_last"`
	PendingMB       float64 `json:"pending_mb"`

	ContentSeconds float64 `json:"-"`
	StepRateSum    float64 `json:"-"`
	StepCount      int     `json:"-"`
}

// BoxSummary aggregates all cycles of one device inside the analysis window
type BoxSummary struct {
	Device                        string  `json:"box_ip"`
	Cycles                        int     `json:"cycles"`
	AttemptedCycles               int     `json:"acdc_cycles"`
	GSMDownMB                     float64 `json:"gsm_down_mb"`
	GSMUpMB                       float64 `json:"gsm_up_mb"`
	GSMMinutes                    float64 `json:"gsm_minutes"`
	GSMSessions                   int     `json:"gsm_sessions"`
	GSMEffMBPerMin                float64 `json:"gsm_eff_mb_per_min"`
	ContentMB                     float64 `json:"content_mb"`
	FilesCompleted                int     `json:"files_completed"`
	AvgContentKBps                float64 `json:"avg_content_kBps"`
	AvgGSMDownPerSessionMB        float64 `json:"avg_gsm_down_per_session_mb"`
	AvgGSMMinutesPerSession       float64 `json:"avg_gsm_minutes_per_session"`
	AvgContentPerAttemptedCycleMB float64 `json:"avg_content_per_acdc_cycle_mb"`
	PendingFilesWindow            int     `json:"pending_files_window"`
	State                         string  `json:"state"`
	LastDest                      string  `json:"last_dest"`
	TLSErrors                     int     `json:"tls_errors"`
	HTTPErrors                    int     `json:"http_4xx_5xx"`
}

// Ready reports whether the device's last cycle in the window ended with no pending files
func (b BoxSummary) Ready() bool {
	return b.State == StateReady
}

// FleetReport is derived from the BoxSummary rows of one run; it is only rendered
type FleetReport struct {
	Start                       string       `json:"start"`
	End                         string       `json:"end"`
	Devices                     int          `json:"boxes_count"`
	Cycles                      int          `json:"included_cycles"`
	AttemptedCycles             int          `json:"acdc_cycles"`
	GSMDownMB                   float64      `json:"gsm_down_mb"`
	GSMMinutes                  float64      `json:"gsm_minutes"`
	AvgGSMEff                   float64      `json:"avg_gsm_eff"`
	ContentMB                   float64      `json:"content_mb"`
	FilesCompleted              int          `json:"files_completed"`
	AvgContentKBps              float64      `json:"avg_content_kBps"`
	AvgGSMDownPerCycle          float64      `json:"avg_gsm_down_per_cycle"`
	AvgContentPerAttemptedCycle float64      `json:"avg_content_per_acdc_cycle"`
	ReadyDevices                int          `json:"ready_boxes"`
	NotReadyDevices             int          `json:"not_ready_boxes"`
	Boxes                       []BoxSummary `json:"boxes"`
}

// Window is the inclusive calendar analysis window
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the calendar date of t lies inside the window
func (w Window) Contains(t time.Time) bool {
	d := t.Format("2006-01-02")
	return d >= w.Start.Format("2006-01-02") && d <= w.End.Format("2006-01-02")
}

// ContainsDate is Contains for a YYYY-MM-DD string
func (w Window) ContainsDate(date string) bool {
	return date >= w.Start.Format("2006-01-02") && date <= w.End.Format("2006-01-02")
}

// DeviceResult is what one device contributes to a run
type DeviceResult struct {
	Device   string
	Missing  bool
	Cycles   []CycleRecord
	Days     []DayRecord
	Summary  *BoxSummary
	Parsed   int
	Skipped  int
	Seeded   int
	Warnings []error
}
