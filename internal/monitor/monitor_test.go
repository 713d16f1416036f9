package monitor

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdpower/fleetlog-go/internal/types"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSnapshotTallies(t *testing.T) {
	m := New(Options{})
	m.DeviceStarted("10.0.0.2", 2)
	m.DeviceStarted("10.0.0.1", 1)
	m.FileParsed("10.0.0.2", types.CycleRecord{GSMSessions: 2, ContentMB: 10.5})
	m.FileParsed("10.0.0.2", types.CycleRecord{GSMSessions: 1, ContentMB: 0.25})

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "10.0.0.1", snap[0].Device)
	assert.Equal(t, DeviceProgress{Device: "10.0.0.2", Total: 2, Parsed: 2, Sessions: 3, ContentMB: 10.75}, snap[1])
}

func TestStatusLine(t *testing.T) {
	assert.Equal(t, "[10.0.0.1] 3 files, sessions=2, contentMB=41.50",
		statusLine(DeviceProgress{Device: "10.0.0.1", Parsed: 3, Sessions: 2, ContentMB: 41.5}))
	assert.Equal(t, "[10.0.0.1] missing", statusLine(DeviceProgress{Device: "10.0.0.1", Done: true, Missing: true}))
	assert.Equal(t, "[10.0.0.1] 0 files, sessions=0, contentMB=0.00, Ready",
		statusLine(DeviceProgress{Device: "10.0.0.1", Done: true, State: types.StateReady}))
}

func TestPlainReporterPrintsPeriodically(t *testing.T) {
	out := &syncBuffer{}
	m := New(Options{Interval: 5 * time.Millisecond, Output: out})
	m.DeviceStarted("10.0.0.1", 4)
	m.FileParsed("10.0.0.1", types.CycleRecord{GSMSessions: 1, ContentMB: 2})

	m.Start(context.Background())
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[10.0.0.1] 1 files, sessions=1, contentMB=2.00")
	}, time.Second, 5*time.Millisecond)

	summary := &types.BoxSummary{Device: "10.0.0.1", State: types.StateNotReady}
	m.DeviceDone(types.DeviceResult{Device: "10.0.0.1", Summary: summary})
	m.Stop()

	assert.Contains(t, out.String(), "contentMB=2.00, Not Ready")
}

func TestStopWithoutStart(t *testing.T) {
	m := New(Options{})
	assert.NotPanics(t, m.Stop)
}

func TestModelView(t *testing.T) {
	mon := New(Options{NoColor: true})
	mon.DeviceStarted("10.0.0.1", 4)
	mon.FileParsed("10.0.0.1", types.CycleRecord{ContentMB: 1})
	mon.FileParsed("10.0.0.1", types.CycleRecord{ContentMB: 1})
	mon.DeviceDone(types.DeviceResult{Device: "10.0.0.9", Missing: true})

	m := model{monitor: mon, interval: time.Second, noColor: true}
	updated, cmd := m.Update(tickMsg(time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)))
	require.NotNil(t, cmd)

	view := updated.View()
	assert.Contains(t, view, "Scanning fleet logs")
	assert.Contains(t, view, "["+strings.Repeat("█", 12)+strings.Repeat("░", 12)+"]")
	assert.Contains(t, view, "2 files, sessions=0, contentMB=2.00")
	assert.Contains(t, view, "missing")
	assert.Contains(t, view, "1/2 boxes done · 12:30:00")
}
