package calculator

import (
	"sort"

	"github.com/samber/lo"

	"github.com/sdpower/fleetlog-go/internal/parser"
	"github.com/sdpower/fleetlog-go/internal/types"
)

// Calculator folds cycle tables into day, device and fleet figures for one
// analysis window. All values stay at full precision.
type Calculator struct {
	window types.Window
}

func New(window types.Window) *Calculator {
	return &Calculator{window: window}
}

// MergeCycles merges cycle layers by identity key. A record in a later
// layer replaces one with the same key from an earlier layer. The result
// is sorted by (date, log file).
func MergeCycles(layers ...[]types.CycleRecord) []types.CycleRecord {
	byKey := make(map[types.CycleKey]types.CycleRecord)
	for _, layer := range layers {
		for _, rec := range layer {
			byKey[rec.Key()] = rec
		}
	}
	merged := lo.Values(byKey)
	SortCycles(merged)
	return merged
}

// SortCycles orders cycles chronologically by (date, log file)
func SortCycles(cycles []types.CycleRecord) {
	sort.Slice(cycles, func(i, j int) bool {
		if cycles[i].Date != cycles[j].Date {
			return cycles[i].Date < cycles[j].Date
		}
		if cycles[i].LogFile != cycles[j].LogFile {
			return cycles[i].LogFile < cycles[j].LogFile
		}
		return cycles[i].Device < cycles[j].Device
	})
}

// BuildDays recomputes every DayRecord from the full cycle table. Cycles
// without a date are left out.
func BuildDays(device string, cycles []types.CycleRecord) []types.DayRecord {
	dated := lo.Filter(cycles, func(c types.CycleRecord, _ int) bool { return c.Date != "" })
	groups := lo.GroupBy(dated, func(c types.CycleRecord) string { return c.Date })

	days := make([]types.DayRecord, 0, len(groups))
	for date, group := range groups {
		days = append(days, buildDay(device, date, group))
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days
}

func buildDay(device, date string, group []types.CycleRecord) types.DayRecord {
	group = append([]types.CycleRecord(nil), group...)
	SortCycles(group)

	day := types.DayRecord{Date: date, Device: device}
	for _, c := range group {
		day.GSMDownMB += c.GSMDownMB
		day.GSMUpMB += c.GSMUpMB
		day.GSMMinutes += c.GSMMinutes
		day.GSMSessions += c.GSMSessions
		day.ContentMB += c.ContentMB
		day.FilesCompleted += c.FilesCompleted
		day.ContentSeconds += c.ContentSeconds
		day.StepRateSum += c.StepRateSum
		day.StepCount += c.StepCount
		day.TLSErrors += c.TLSErrors
		day.HTTPErrors += c.HTTPErrors
		if c.DestLast != "" {
			day.DestLast = c.DestLast
		}
	}
	// pending at the end of the day is what the day's last cycle left behind
	day.PendingMB = group[len(group)-1].PendingMBEnd

	day.GSMEffMBPerMin = ratio(day.GSMDownMB, day.GSMMinutes)
	if day.ContentMB > 0 {
		day.AvgContentKBps = ratio(day.ContentMB*1024, day.ContentSeconds)
	}
	day.AvgStepMBPer30s = ratio(day.StepRateSum, float64(day.StepCount))
	return day
}

// InWindow reports whether a cycle belongs to the analysis window. The
// start encoded in the log file name decides; the record date is used
// when the name carries none.
func (c *Calculator) InWindow(rec types.CycleRecord) bool {
	if start, _ := parser.ParseNameWindow(rec.LogFile); start != nil {
		return c.window.Contains(*start)
	}
	return c.window.ContainsDate(rec.Date)
}

// Summarize computes the BoxSummary of one device over the cycles of its
// table that fall inside the window
func (c *Calculator) Summarize(device string, cycles []types.CycleRecord) types.BoxSummary {
	inWindow := lo.Filter(cycles, func(rec types.CycleRecord, _ int) bool { return c.InWindow(rec) })
	SortCycles(inWindow)

	s := types.BoxSummary{Device: device, Cycles: len(inWindow)}
	s.AttemptedCycles = lo.CountBy(inWindow, types.CycleRecord.Attempted)
	s.GSMDownMB = lo.SumBy(inWindow, func(r types.CycleRecord) float64 { return r.GSMDownMB })
	s.GSMUpMB = lo.SumBy(inWindow, func(r types.CycleRecord) float64 { return r.GSMUpMB })
	s.GSMMinutes = lo.SumBy(inWindow, func(r types.CycleRecord) float64 { return r.GSMMinutes })
	s.GSMSessions = lo.SumBy(inWindow, func(r types.CycleRecord) int { return r.GSMSessions })
	s.ContentMB = lo.SumBy(inWindow, func(r types.CycleRecord) float64 { return r.ContentMB })
	s.FilesCompleted = lo.SumBy(inWindow, func(r types.CycleRecord) int { return r.FilesCompleted })
	s.TLSErrors = lo.SumBy(inWindow, func(r types.CycleRecord) int { return r.TLSErrors })
	s.HTTPErrors = lo.SumBy(inWindow, func(r types.CycleRecord) int { return r.HTTPErrors })

	// throughput weighted by the seconds each cycle spent moving content
	var num, den float64
	for _, r := range inWindow {
		if r.ContentMB > 0 && r.ContentSeconds > 0 {
			num += r.ContentMB * 1024
			den += r.ContentSeconds
		}
	}
	s.AvgContentKBps = ratio(num, den)

	s.GSMEffMBPerMin = ratio(s.GSMDownMB, s.GSMMinutes)
	s.AvgGSMDownPerSessionMB = ratio(s.GSMDownMB, float64(s.GSMSessions))
	s.AvgGSMMinutesPerSession = ratio(s.GSMMinutes, float64(s.GSMSessions))
	s.AvgContentPerAttemptedCycleMB = ratio(s.ContentMB, float64(s.AttemptedCycles))

	if len(inWindow) > 0 {
		last := inWindow[len(inWindow)-1]
		s.PendingFilesWindow = last.EffectivePendingFiles()
		s.LastDest = last.DestLast
	}
	s.State = types.StateReady
	if s.PendingFilesWindow > 0 {
		s.State = types.StateNotReady
	}
	return s
}

// Fleet rolls BoxSummary rows into the fleet report. It never looks at cycles.
func Fleet(start, end string, boxes []types.BoxSummary) types.FleetReport {
	boxes = append([]types.BoxSummary(nil), boxes...)
	sort.Slice(boxes, func(i, j int) bool { return boxes[i].Device < boxes[j].Device })

	f := types.FleetReport{Start: start, End: end, Devices: len(boxes), Boxes: boxes}
	var num, den float64
	for _, b := range boxes {
		f.Cycles += b.Cycles
		f.AttemptedCycles += b.AttemptedCycles
		f.GSMDownMB += b.GSMDownMB
		f.GSMMinutes += b.GSMMinutes
		f.ContentMB += b.ContentMB
		f.FilesCompleted += b.FilesCompleted
		if b.Ready() {
			f.ReadyDevices++
		} else {
			f.NotReadyDevices++
		}
		if b.AvgContentKBps > 0 && b.ContentMB > 0 {
			num += b.AvgContentKBps * b.ContentMB
			den += b.ContentMB
		}
	}
	f.AvgGSMEff = ratio(f.GSMDownMB, f.GSMMinutes)
	f.AvgContentKBps = ratio(num, den)
	f.AvgGSMDownPerCycle = f.GSMDownMB / float64(max(1, f.Cycles))
	f.AvgContentPerAttemptedCycle = f.ContentMB / float64(max(1, f.AttemptedCycles))
	return f
}

func ratio(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}
