// Package stats accumulates fault-detection and recovery statistics and
// derives the diagnostic coverage figures reported by the supervisor.
// All arithmetic is integer; coverage and rates are percentages 0..100.
package stats

import (
	"time"

	"faultguard/common"
	"faultguard/fault"
)

// DefaultTickPeriod matches the supervisor's periodic task.
const DefaultTickPeriod = 10 * time.Millisecond

// Recorder is owned by the periodic task and is not safe for concurrent
// use; readers get value copies through Snapshot.
type Recorder struct {
	period            time.Duration
	ticks             common.Sat32
	detected          [fault.NumSources]common.Sat16
	undetected        [fault.NumSources]common.Sat16
	recoverySuccesses common.Sat16
	recoveryFailures  common.Sat16
}

// NewRecorder builds a recorder for the given tick period; zero or
// negative falls back to DefaultTickPeriod.
func NewRecorder(period time.Duration) *Recorder {
	if period <= 0 {
		period = DefaultTickPeriod
	}
	return &Recorder{period: period}
}

// Tick advances uptime by one period.
func (r *Recorder) Tick() {
	r.ticks.Inc()
}

// Detected records a fault caught by a monitoring mechanism.
func (r *Recorder) Detected(src fault.Source) {
	if src.Valid() {
		r.detected[src].Inc()
	}
}

// Undetected records a fault that slipped past monitoring. These come
// from fault-injection audits, not normal operation, and exist so the
// coverage figures reflect measurements instead of assumptions.
func (r *Recorder) Undetected(src fault.Source) {
	if src.Valid() {
		r.undetected[src].Inc()
	}
}

// RecoverySuccess records one confirmed recovery.
func (r *Recorder) RecoverySuccess() {
	r.recoverySuccesses.Inc()
}

// RecoveryFailure records one timed-out or abandoned recovery.
func (r *Recorder) RecoveryFailure() {
	r.recoveryFailures.Inc()
}

// Coverage returns the diagnostic coverage for src as an integer
// percentage: detected / (detected + undetected). With no observed
// faults it returns 0, not 100; coverage is measured, never assumed.
func (r *Recorder) Coverage(src fault.Source) uint8 {
	if !src.Valid() {
		return 0
	}
	det := uint32(r.detected[src].Value())
	total := det + uint32(r.undetected[src].Value())
	if total == 0 {
		return 0
	}
	dc := det * 100 / total
	if dc > 100 {
		dc = 100
	}
	return uint8(dc)
}

// OverallCoverage averages the per-source coverage figures.
func (r *Recorder) OverallCoverage() uint8 {
	var total uint16
	for _, src := range fault.Sources() {
		total += uint16(r.Coverage(src))
	}
	return uint8(total / uint16(fault.NumSources))
}

// RecoverySuccessRate returns successes over all recovery outcomes as a
// percentage, 0 when nothing has been attempted.
func (r *Recorder) RecoverySuccessRate() uint8 {
	succ := uint32(r.recoverySuccesses.Value())
	total := succ + uint32(r.recoveryFailures.Value())
	if total == 0 {
		return 0
	}
	rate := succ * 100 / total
	if rate > 100 {
		rate = 100
	}
	return uint8(rate)
}

// TotalDetected sums detected faults across sources.
func (r *Recorder) TotalDetected() uint32 {
	var total uint32
	for _, src := range fault.Sources() {
		total += uint32(r.detected[src].Value())
	}
	return total
}

// Uptime converts the tick count into operating time.
func (r *Recorder) Uptime() time.Duration {
	return time.Duration(r.ticks.Value()) * r.period
}

// Ticks returns the raw uptime tick count.
func (r *Recorder) Ticks() uint32 {
	return r.ticks.Value()
}

// FaultsPerHour normalizes the detected-fault count for reliability
// analysis. It reports 0 until a full hour of uptime has accumulated.
func (r *Recorder) FaultsPerHour() uint16 {
	hours := uint64(r.Uptime() / time.Hour)
	if hours == 0 {
		return 0
	}
	fph := uint64(r.TotalDetected()) / hours
	if fph > 0xFFFF {
		fph = 0xFFFF
	}
	return uint16(fph)
}

// Reset clears every counter, uptime included. Called at the start of a
// new diagnostic session.
func (r *Recorder) Reset() {
	r.ticks.Reset()
	for i := range r.detected {
		r.detected[i].Reset()
		r.undetected[i].Reset()
	}
	r.recoverySuccesses.Reset()
	r.recoveryFailures.Reset()
}

// Snapshot is the exported statistics view.
type Snapshot struct {
	Detected            [fault.NumSources]uint16
	Undetected          [fault.NumSources]uint16
	Coverage            [fault.NumSources]uint8
	OverallCoverage     uint8
	RecoverySuccesses   uint16
	RecoveryFailures    uint16
	RecoverySuccessRate uint8
	FaultsPerHour       uint16
	Uptime              time.Duration
}

// Snapshot copies the current figures.
func (r *Recorder) Snapshot() Snapshot {
	var s Snapshot
	for _, src := range fault.Sources() {
		s.Detected[src] = r.detected[src].Value()
		s.Undetected[src] = r.undetected[src].Value()
		s.Coverage[src] = r.Coverage(src)
	}
	s.OverallCoverage = r.OverallCoverage()
	s.RecoverySuccesses = r.recoverySuccesses.Value()
	s.RecoveryFailures = r.recoveryFailures.Value()
	s.RecoverySuccessRate = r.RecoverySuccessRate()
	s.FaultsPerHour = r.FaultsPerHour()
	s.Uptime = r.Uptime()
	return s
}
