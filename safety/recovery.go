package safety

import (
	"fmt"

	"faultguard/common"
)

// SubState is the per-source recovery validation state.
type SubState int

const (
	// SubIdle means no fault episode is in progress.
	SubIdle SubState = iota
	// SubFaultActive means the raw signal is asserted and the timeout
	// counter is running.
	SubFaultActive
	// SubRecoveryPending means the raw signal has deasserted and the
	// stability dwell is being counted.
	SubRecoveryPending
	// SubRecoveryConfirmed means the dwell completed; the episode stays
	// latched here until the owner consumes it.
	SubRecoveryConfirmed
)

func (s SubState) String() string {
	switch s {
	case SubIdle:
		return "idle"
	case SubFaultActive:
		return "fault-active"
	case SubRecoveryPending:
		return "recovery-pending"
	case SubRecoveryConfirmed:
		return "recovery-confirmed"
	default:
		return "unknown"
	}
}

// SubEvent is what one tick of a sub-machine reports upward. The machine
// itself never escalates; it hands the event to the supervisor, which
// owns remediation.
type SubEvent int

const (
	// SubEventNone: nothing to report.
	SubEventNone SubEvent = iota
	// SubEventTimeout: the raw signal stayed asserted for the whole
	// timeout window; the machine reset itself to SubIdle.
	SubEventTimeout
	// SubEventConfirmed: the stability dwell completed.
	SubEventConfirmed
	// SubEventReasserted: the raw signal came back during the dwell;
	// both counters were reset. This is the flap hysteresis working.
	SubEventReasserted
	// SubEventAnomalousReassert: the raw signal came back after the
	// recovery had already been confirmed. Handled like a new fault
	// episode, but reported separately because it should not happen.
	SubEventAnomalousReassert
)

func (e SubEvent) String() string {
	switch e {
	case SubEventNone:
		return "none"
	case SubEventTimeout:
		return "timeout"
	case SubEventConfirmed:
		return "confirmed"
	case SubEventReasserted:
		return "reasserted"
	case SubEventAnomalousReassert:
		return "anomalous-reassert"
	default:
		return "unknown"
	}
}

// SubConfig bounds one source's recovery validation.
type SubConfig struct {
	// TimeoutTicks is how long the raw signal may stay asserted before
	// the episode is abandoned and reported as a timeout.
	TimeoutTicks uint32
	// StabilityTicks is the dwell: consecutive clear ticks required
	// before a recovery is trusted.
	StabilityTicks uint32
}

// DefaultSubConfig is 10 timeout ticks and a 5 tick dwell, i.e. 100ms and
// 50ms at the 10ms periodic rate.
func DefaultSubConfig() SubConfig {
	return SubConfig{TimeoutTicks: 10, StabilityTicks: 5}
}

// Validate rejects windows that could never elapse.
func (c SubConfig) Validate() error {
	if c.TimeoutTicks == 0 {
		return fmt.Errorf("timeout ticks must be at least 1")
	}
	if c.StabilityTicks == 0 {
		return fmt.Errorf("stability ticks must be at least 1")
	}
	return nil
}

// SubMachine validates that one source's raw signal has genuinely
// recovered: first a bounded wait for deassertion, then a stability dwell
// that flapping resets. One instance per source, advanced once per tick
// by the supervisor; never called from event context.
type SubMachine struct {
	cfg       SubConfig
	state     SubState
	timeout   uint32
	stability uint32
	attempts  common.Sat32
}

// NewSubMachine builds a machine in SubIdle.
func NewSubMachine(cfg SubConfig) (*SubMachine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SubMachine{cfg: cfg}, nil
}

// Tick advances the machine one period. flagSet is the source's latched
// dual-rail flag from the tick's snapshot; raw is the instantaneous
// signal level sampled this tick. The episode opens on the flag, so a
// glitch that latched the flag and vanished before the first poll still
// gets a full recovery cycle. Timeout and dwell then track the raw level.
func (m *SubMachine) Tick(flagSet, raw bool) SubEvent {
	switch m.state {
	case SubIdle:
		if flagSet {
			m.state = SubFaultActive
			m.timeout = 0
			m.attempts.Inc()
		}
		return SubEventNone

	case SubFaultActive:
		if !raw {
			m.state = SubRecoveryPending
			m.stability = 0
			return SubEventNone
		}
		m.timeout++
		if m.timeout >= m.cfg.TimeoutTicks {
			// Give up and report; re-arming is the caller's call.
			// With the raw signal still asserted, the next tick
			// starts a fresh episode from SubIdle.
			m.state = SubIdle
			m.timeout = 0
			return SubEventTimeout
		}
		return SubEventNone

	case SubRecoveryPending:
		if raw {
			m.state = SubFaultActive
			m.timeout = 0
			m.stability = 0
			return SubEventReasserted
		}
		m.stability++
		if m.stability >= m.cfg.StabilityTicks {
			m.state = SubRecoveryConfirmed
			return SubEventConfirmed
		}
		return SubEventNone

	case SubRecoveryConfirmed:
		if raw {
			m.state = SubFaultActive
			m.timeout = 0
			m.stability = 0
			m.attempts.Inc()
			return SubEventAnomalousReassert
		}
		return SubEventNone

	default:
		return SubEventNone
	}
}

// Consume acknowledges a confirmed recovery and returns the machine to
// SubIdle. Only legal in SubRecoveryConfirmed.
func (m *SubMachine) Consume() error {
	if m.state != SubRecoveryConfirmed {
		return fmt.Errorf("%s: %w", m.state, ErrNotConfirmed)
	}
	m.state = SubIdle
	m.timeout = 0
	m.stability = 0
	return nil
}

// State returns the current validation state.
func (m *SubMachine) State() SubState {
	return m.state
}

// Attempts returns the saturating count of fault episodes since boot.
// It is monotonic: nothing, counter resets included, decrements it.
func (m *SubMachine) Attempts() uint32 {
	return m.attempts.Value()
}

// Counters returns the live timeout and stability counter values, for
// the diagnostics snapshot.
func (m *SubMachine) Counters() (timeout, stability uint32) {
	return m.timeout, m.stability
}

// Reconfigure swaps the validation windows. Rejected unless the machine
// is SubIdle; changing windows mid-episode would make the bounds
// meaningless.
func (m *SubMachine) Reconfigure(cfg SubConfig) error {
	if m.state != SubIdle {
		return fmt.Errorf("%s: %w", m.state, ErrBusy)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.cfg = cfg
	return nil
}

// Config returns the windows in use.
func (m *SubMachine) Config() SubConfig {
	return m.cfg
}
