package monitor

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/sdpower/fleetlog-go/internal/types"
)

// DeviceProgress is the running tally of one device
type DeviceProgress struct {
	Device    string
	Total     int
	Parsed    int
	Sessions  int
	ContentMB float64
	Done      bool
	Missing   bool
	State     string
}

type Options struct {
	Interval time.Duration
	NoColor  bool
	Output   io.Writer
	// Interactive selects the live view instead of status lines
	Interactive bool
}

// Monitor collects progress from device goroutines and reports it
// periodically. Reporting is advisory and never blocks the pipeline.
type Monitor struct {
	options Options

	mu      sync.Mutex
	devices map[string]*DeviceProgress

	stop    context.CancelFunc
	done    chan struct{}
	program *tea.Program
}

type tickMsg time.Time

// IsTerminal reports whether f is attached to a terminal
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func New(opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	return &Monitor{
		options: opts,
		devices: make(map[string]*DeviceProgress),
	}
}

func (m *Monitor) device(name string) *DeviceProgress {
	d, ok := m.devices[name]
	if !ok {
		d = &DeviceProgress{Device: name}
		m.devices[name] = d
	}
	return d
}

// DeviceStarted registers a device with the number of files it will parse
func (m *Monitor) DeviceStarted(device string, files int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.device(device).Total = files
}

// FileParsed folds one parsed cycle into the device tally
func (m *Monitor) FileParsed(device string, rec types.CycleRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.device(device)
	d.Parsed++
	d.Sessions += rec.GSMSessions
	d.ContentMB += rec.ContentMB
}

// DeviceDone marks a device finished
func (m *Monitor) DeviceDone(res types.DeviceResult) {
	m.mu.Lock()
	d := m.device(res.Device)
	d.Done = true
	d.Missing = res.Missing
	if res.Summary != nil {
		d.State = res.Summary.State
	}
	snap := *d
	m.mu.Unlock()

	if !m.options.Interactive && m.stop != nil {
		fmt.Fprintln(m.options.Output, statusLine(snap))
	}
}

// Snapshot returns the tallies sorted by device
func (m *Monitor) Snapshot() []DeviceProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DeviceProgress, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Device < out[j].Device })
	return out
}

// Start begins reporting in the background until Stop
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.stop = context.WithCancel(ctx)
	m.done = make(chan struct{})

	if m.options.Interactive {
		m.program = tea.NewProgram(
			model{monitor: m, interval: m.options.Interval, noColor: m.options.NoColor},
			tea.WithContext(ctx),
			tea.WithOutput(m.options.Output),
			tea.WithInput(nil),
			tea.WithoutSignalHandler(),
		)
		go func() {
			defer close(m.done)
			m.program.Run()
		}()
		return
	}

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.options.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.printStatus()
			}
		}
	}()
}

// Stop ends reporting and waits for the reporter to exit
func (m *Monitor) Stop() {
	if m.stop == nil {
		return
	}
	if m.program != nil {
		m.program.Quit()
	}
	m.stop()
	<-m.done
}

func (m *Monitor) printStatus() {
	for _, d := range m.Snapshot() {
		if d.Done {
			continue
		}
		fmt.Fprintln(m.options.Output, statusLine(d))
	}
}

// statusLine is the plain progress line, e.g. "[10.0.0.1] 3 files, sessions=2, contentMB=41.50"
func statusLine(d DeviceProgress) string {
	return "[" + d.Device + "] " + tally(d)
}

func tally(d DeviceProgress) string {
	switch {
	case d.Missing:
		return "missing"
	case d.Done && d.State != "":
		return fmt.Sprintf("%d files, sessions=%d, contentMB=%.2f, %s", d.Parsed, d.Sessions, d.ContentMB, d.State)
	default:
		return fmt.Sprintf("%d files, sessions=%d, contentMB=%.2f", d.Parsed, d.Sessions, d.ContentMB)
	}
}

type model struct {
	monitor    *Monitor
	interval   time.Duration
	noColor    bool
	devices    []DeviceProgress
	lastUpdate time.Time
}

func (m model) Init() tea.Cmd {
	return tickCmd(m.interval)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.lastUpdate = time.Time(msg)
		m.devices = m.monitor.Snapshot()
		return m, tickCmd(m.interval)
	}
	return m, nil
}

func (m model) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	doneStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	if m.noColor {
		headerStyle = lipgloss.NewStyle()
		doneStyle = lipgloss.NewStyle()
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("Scanning fleet logs"))
	b.WriteString("\n\n")

	finished := 0
	for _, d := range m.devices {
		mark := " "
		if d.Done {
			finished++
			mark = doneStyle.Render("✓")
		}
		fmt.Fprintf(&b, "%s %-16s %s %s\n", mark, d.Device, m.progressBar(d, 24), tally(d))
	}
	fmt.Fprintf(&b, "\n%d/%d boxes done", finished, len(m.devices))
	if !m.lastUpdate.IsZero() {
		fmt.Fprintf(&b, " · %s", m.lastUpdate.Format("15:04:05"))
	}
	b.WriteString("\n")
	return b.String()
}

// progressBar renders parsed/total files; an unknown total renders empty
func (m model) progressBar(d DeviceProgress, width int) string {
	filled := 0
	switch {
	case d.Done:
		filled = width
	case d.Total > 0:
		filled = d.Parsed * width / d.Total
	}
	if filled > width {
		filled = width
	}

	color := lipgloss.Color("51")
	if d.Missing {
		color = lipgloss.Color("196")
	}
	filledStyle := lipgloss.NewStyle().Foreground(color)
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	if m.noColor {
		filledStyle = lipgloss.NewStyle()
		emptyStyle = lipgloss.NewStyle()
	}
	return "[" + filledStyle.Render(strings.Repeat("█", filled)) + emptyStyle.Render(strings.Repeat("░", width-filled)) + "]"
}

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
