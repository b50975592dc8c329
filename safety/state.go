// Package safety implements the top-level safety state machine, the
// per-source recovery validation machines, and the supervisor core that
// drives one observe/arbitrate/advance cycle per periodic tick.
package safety

// State is the supervisor's operating state. The encodings are sparse bit
// patterns with pairwise Hamming distance of at least four, so a single
// or double bit upset on a stored state never yields another legal state.
type State uint8

const (
	// StateInit is the boot state; the only way out is Normal.
	StateInit State = 0x55
	// StateNormal is fault-free operation.
	StateNormal State = 0xAA
	// StateFault means at least one aggregated fault is active.
	StateFault State = 0xCC
	// StateSafe is the degraded safe-state the machine escalates into.
	StateSafe State = 0x33
	// StateRecovery means a recovery request is being validated.
	StateRecovery State = 0x99
	// StateInvalid is the diagnostics sentinel forced by a rejected
	// transition or an unrecoverable state-cell corruption. Terminal.
	StateInvalid State = 0xFF
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateNormal:
		return "normal"
	case StateFault:
		return "fault"
	case StateSafe:
		return "safe-state"
	case StateRecovery:
		return "recovery"
	case StateInvalid:
		return "invalid"
	default:
		return "undefined"
	}
}

// Known reports whether s is one of the defined encodings, StateInvalid
// included.
func (s State) Known() bool {
	switch s {
	case StateInit, StateNormal, StateFault, StateSafe, StateRecovery, StateInvalid:
		return true
	default:
		return false
	}
}

// allowedTransition is the fixed transition table. Self-loops are legal
// wherever listed; everything absent here is rejected and forces
// StateInvalid so the illegal request stays observable.
func allowedTransition(from, to State) bool {
	switch from {
	case StateInit:
		return to == StateNormal
	case StateNormal:
		return to == StateNormal || to == StateFault || to == StateSafe
	case StateFault:
		return to == StateFault || to == StateSafe || to == StateRecovery
	case StateSafe:
		return to == StateSafe || to == StateRecovery
	case StateRecovery:
		return to == StateNormal || to == StateFault || to == StateSafe || to == StateRecovery
	default:
		return false
	}
}
