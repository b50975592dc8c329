package safety

import (
	"errors"
	"fmt"

	"faultguard/common"
	"faultguard/dualrail"
	"faultguard/fault"
)

// Sentinel errors for the state machine and supervisor surfaces.
var (
	// ErrTransitionRejected reports an illegal transition request. The
	// machine is already in StateInvalid by the time callers see this.
	ErrTransitionRejected = errors.New("illegal state transition")
	// ErrStateCorrupted reports a dual-rail mismatch on the state cell.
	ErrStateCorrupted = errors.New("state cell corrupted")
	// ErrNotConfirmed reports a consume of a recovery that has not
	// reached RecoveryConfirmed.
	ErrNotConfirmed = errors.New("recovery not confirmed")
	// ErrRecoveryUnavailable reports a recovery request made outside
	// StateFault and StateSafe. Unlike an illegal transition, a refused
	// request leaves the state machine untouched.
	ErrRecoveryUnavailable = errors.New("recovery unavailable in current state")
	// ErrBusy reports a reconfigure aimed at a source whose recovery
	// cycle is in flight.
	ErrBusy = errors.New("recovery cycle in flight")
	// ErrFaultActive reports a counter reset attempted while a fault is
	// active.
	ErrFaultActive = errors.New("fault currently active")
)

// FSM is the top-level safety state machine. The current state lives in a
// dual-rail cell, so a corrupted state is detected on read instead of
// being acted on. Mutation happens only in the periodic task; reads are
// safe from anywhere.
type FSM struct {
	state dualrail.Word

	lastActive fault.Active
	prevSnap   fault.Snapshot
	faults     common.Sat32
}

// NewFSM boots the machine in StateInit.
func NewFSM() *FSM {
	f := &FSM{}
	f.state.Store(uint8(StateInit))
	return f
}

// State returns the current state. A rail mismatch comes back as
// StateInvalid with ErrStateCorrupted; the caller decides remediation.
func (f *FSM) State() (State, error) {
	v, ok := f.state.Load()
	if !ok {
		return StateInvalid, ErrStateCorrupted
	}
	s := State(v)
	if !s.Known() {
		return StateInvalid, fmt.Errorf("%w: undefined encoding %#02x", ErrStateCorrupted, v)
	}
	return s, nil
}

// Transition requests a move to next. Illegal requests force the machine
// into StateInvalid and return ErrTransitionRejected: a misbehaving
// caller is made visible, never silently ignored. A corrupted state cell
// likewise forces StateInvalid.
func (f *FSM) Transition(next State) error {
	cur, err := f.State()
	if err != nil {
		f.state.Store(uint8(StateInvalid))
		return err
	}
	if !allowedTransition(cur, next) {
		f.state.Store(uint8(StateInvalid))
		return fmt.Errorf("%s -> %s: %w", cur, next, ErrTransitionRejected)
	}
	f.state.Store(uint8(next))
	return nil
}

// OnAggregatedFault records the arbitration result of the current tick
// and, when a fault is active in StateNormal, moves the machine to
// StateFault. It returns whether a transition happened and which sources
// were newly observed set this tick, for the caller's detection stats.
//
// The occurrence counter counts rising edges per source, not polls: a
// fault asserted across a hundred ticks is one occurrence. The snapshot
// comparison against the previous tick is what makes that edge-triggered.
func (f *FSM) OnAggregatedFault(active fault.Active, snap fault.Snapshot) (bool, fault.Snapshot, error) {
	var edges fault.Snapshot
	for _, src := range fault.Sources() {
		if snap[src] && !f.prevSnap[src] {
			edges[src] = true
			f.faults.Inc()
		}
	}
	f.prevSnap = snap
	f.lastActive = active

	if !active.Set {
		return false, edges, nil
	}
	cur, err := f.State()
	if err != nil {
		return false, edges, err
	}
	if cur != StateNormal {
		return false, edges, nil
	}
	if err := f.Transition(StateFault); err != nil {
		return false, edges, err
	}
	return true, edges, nil
}

// LastAggregated returns the most recently recorded arbitration result.
func (f *FSM) LastAggregated() fault.Active {
	return f.lastActive
}

// FaultCount returns the saturating count of fault occurrences.
func (f *FSM) FaultCount() uint32 {
	return f.faults.Value()
}

// ResetFaultCount clears the occurrence counter. The supervisor gates
// this on "no fault active".
func (f *FSM) ResetFaultCount() {
	f.faults.Reset()
}

// forceState bypasses the transition table. Tests and the corruption
// remediation path only.
func (f *FSM) forceState(s State) {
	f.state.Store(uint8(s))
}

// corruptState forces a rail mismatch on the state cell, for fault
// injection.
func (f *FSM) corruptState() {
	f.state.Corrupt()
}
