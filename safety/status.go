package safety

import (
	"fmt"
	"time"

	"faultguard/ecc"
	"faultguard/fault"
	"faultguard/power"
	"faultguard/stats"
)

// RecoveryOutcome is the immediate result of a recovery request.
type RecoveryOutcome int

const (
	// OutcomePending: the request was accepted; the validation
	// sub-machine has not confirmed stability yet.
	OutcomePending RecoveryOutcome = iota
	// OutcomeSuccess: the sub-machine had already confirmed; the fault
	// flag has been cleared.
	OutcomeSuccess
)

func (o RecoveryOutcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// EscalationPolicy decides what a recovery timeout escalates to.
type EscalationPolicy int

const (
	// EscalateSafeState forces safe-state when a recovery times out.
	// The default.
	EscalateSafeState EscalationPolicy = iota
	// EscalateReArm leaves the system state alone. The sub-machine
	// re-arms by itself on the next tick while the flag stays latched,
	// so the source keeps getting bounded recovery windows.
	EscalateReArm
)

func (p EscalationPolicy) String() string {
	switch p {
	case EscalateSafeState:
		return "safe-state"
	case EscalateReArm:
		return "re-arm"
	default:
		return "unknown"
	}
}

// Valid reports whether p is a defined policy.
func (p EscalationPolicy) Valid() bool {
	return p == EscalateSafeState || p == EscalateReArm
}

// ParseEscalationPolicy converts a configuration string to a policy.
func ParseEscalationPolicy(s string) (EscalationPolicy, error) {
	switch s {
	case "safe-state":
		return EscalateSafeState, nil
	case "re-arm":
		return EscalateReArm, nil
	default:
		return EscalateSafeState, fmt.Errorf("unknown escalation policy %q", s)
	}
}

// SourceStatus is one source's slice of the status snapshot.
type SourceStatus struct {
	// Flag is the latched dual-rail flag from the last tick's snapshot.
	Flag bool
	// Raw is the instantaneous signal level sampled last tick.
	Raw bool
	// Corrupted reports a dual-rail mismatch on the flag.
	Corrupted bool
	Sub       SubState
	Attempts  uint32
	// Timeout and Stability are the live sub-machine counter values.
	Timeout   uint32
	Stability uint32
}

// SafetyStatus is the view published after every tick: the current state,
// the tick's arbitration result, per-source detail, and the diagnostic
// counters. Reading it is safe from any goroutine; all fields come from
// one coherent tick.
type SafetyStatus struct {
	State             State
	Active            fault.Active
	Sources           [fault.NumSources]SourceStatus
	PowerMode         power.Mode
	FaultCount        uint32
	CorruptionEvents  uint32
	RecoveryTimeouts  uint32
	AggregationPasses uint32
	Ticks             uint32
}

// Params configures a Supervisor at initialization. The zero value is not
// usable; start from DefaultParams and override.
type Params struct {
	// Priorities is the static arbitration table.
	Priorities fault.PriorityTable
	// Recovery holds the per-source validation windows.
	Recovery [fault.NumSources]SubConfig
	// Escalation holds the per-source timeout escalation policies.
	Escalation [fault.NumSources]EscalationPolicy
	// ECC configures the memory checker service.
	ECC ecc.ServiceConfig
	// TickPeriod is the periodic task interval, fixed for the lifetime
	// of the supervisor. Zero means stats.DefaultTickPeriod.
	TickPeriod time.Duration
}

// DefaultParams mirrors the boot configuration: default priorities,
// 10-tick timeout and 5-tick dwell everywhere, safe-state escalation,
// ECC enabled with a single-bit error threshold of 10.
func DefaultParams() Params {
	p := Params{
		Priorities: fault.DefaultPriorities(),
		ECC:        ecc.ServiceConfig{Enabled: true, SBEThreshold: 10},
		TickPeriod: stats.DefaultTickPeriod,
	}
	for i := range p.Recovery {
		p.Recovery[i] = DefaultSubConfig()
	}
	return p
}

// Validate checks every sub-config; the first problem wins.
func (p Params) Validate() error {
	if err := p.Priorities.Validate(); err != nil {
		return fmt.Errorf("priorities: %w", err)
	}
	for _, src := range fault.Sources() {
		if err := p.Recovery[src].Validate(); err != nil {
			return fmt.Errorf("recovery %s: %w", src, err)
		}
		if !p.Escalation[src].Valid() {
			return fmt.Errorf("escalation %s: unknown policy %d", src, p.Escalation[src])
		}
	}
	if err := p.ECC.Validate(); err != nil {
		return fmt.Errorf("ecc: %w", err)
	}
	if p.TickPeriod < 0 {
		return fmt.Errorf("tick period must not be negative")
	}
	return nil
}
