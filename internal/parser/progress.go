package parser

import (
	"sort"
	"time"
)

// CompletionRatio is the downloaded/total ratio at which a content file counts as delivered
const CompletionRatio = 0.99

// StepSeconds normalizes instantaneous rate samples to a fixed step
const StepSeconds = 30.0

// ContentProgress is the last observation for one content file within one log file
type ContentProgress struct {
	DownloadedMB float64
	TotalMB      float64
	LastSeen     time.Time
	Complete     bool

	counted bool
}

// Ratio returns downloaded/total, or 0 when the total is unknown
func (p ContentProgress) Ratio() float64 {
	if p.TotalMB <= 0 {
		return 0
	}
	return p.DownloadedMB / p.TotalMB
}

// ProgressTracker reconstructs content delivery from successive progress
// lines of a single log file. It is discarded once the file is folded into
// its CycleRecord.
type ProgressTracker struct {
	files map[string]*ContentProgress

	ContentMB      float64
	ContentSeconds float64
	StepRateSum    float64
	StepCount      int
	FilesCompleted int
	PendingMB      float64
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{files: make(map[string]*ContentProgress)}
}

// Observe folds one progress line for the given content key
func (t *ProgressTracker) Observe(key string, ts time.Time, currentMB, totalMB float64) {
	if prev, ok := t.files[key]; ok {
		dmb := currentMB - prev.DownloadedMB
		dt := ts.Sub(prev.LastSeen).Seconds()
		if dmb > 0 && dt > 0 {
			t.ContentMB += dmb
			t.ContentSeconds += dt
			t.StepRateSum += dmb / dt * StepSeconds
			t.StepCount++
		}
	}

	state, ok := t.files[key]
	if !ok {
		state = &ContentProgress{}
		t.files[key] = state
	}
	state.DownloadedMB = currentMB
	state.TotalMB = totalMB
	state.LastSeen = ts
	state.Complete = totalMB > 0 && currentMB/totalMB >= CompletionRatio

	// a file is counted once, the first time it crosses the threshold
	if state.Complete && !state.counted {
		state.counted = true
		t.FilesCompleted++
	}

	t.recomputePending()
}

// recomputePending rebuilds pending MB from the latest observation of every key
func (t *ProgressTracker) recomputePending() {
	pending := 0.0
	for _, p := range t.files {
		if p.TotalMB <= 0 || p.Complete {
			continue
		}
		if diff := p.TotalMB - p.DownloadedMB; diff > 0 {
			pending += diff
		}
	}
	t.PendingMB = pending
}

// PendingFiles counts tracked content files whose last ratio is below the completion threshold
func (t *ProgressTracker) PendingFiles() int {
	n := 0
	for _, p := range t.files {
		if p.TotalMB > 0 && p.Ratio() < CompletionRatio {
			n++
		}
	}
	return n
}

// AvgKBps is content throughput in kB/s over the seconds that carried progress
func (t *ProgressTracker) AvgKBps() float64 {
	if t.ContentSeconds <= 0 {
		return 0
	}
	return t.ContentMB * 1024 / t.ContentSeconds
}

// Keys returns the tracked content keys in sorted order
func (t *ProgressTracker) Keys() []string {
	keys := make([]string, 0, len(t.files))
	for k := range t.files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// State returns the last observation for a key
func (t *ProgressTracker) State(key string) (ContentProgress, bool) {
	p, ok := t.files[key]
	if !ok {
		return ContentProgress{}, false
	}
	return *p, true
}
