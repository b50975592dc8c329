package safety

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"faultguard/fault"
)

func TestFSMBootsInInit(t *testing.T) {
	f := NewFSM()
	s, err := f.State()
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if s != StateInit {
		t.Errorf("State() = %v, want %v", s, StateInit)
	}
}

func TestFSMLegalPath(t *testing.T) {
	f := NewFSM()
	for _, next := range []State{StateNormal, StateFault, StateRecovery, StateNormal, StateSafe, StateRecovery, StateFault, StateSafe} {
		if err := f.Transition(next); err != nil {
			t.Fatalf("Transition(%v) error = %v", next, err)
		}
		s, err := f.State()
		if err != nil {
			t.Fatalf("State() error = %v", err)
		}
		if s != next {
			t.Fatalf("State() = %v, want %v", s, next)
		}
	}
}

func TestFSMRejectedTransitionForcesInvalid(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
	}{
		{"InitToFault", StateInit, StateFault},
		{"NormalToRecovery", StateNormal, StateRecovery},
		{"NormalToInit", StateNormal, StateInit},
		{"FaultToNormal", StateFault, StateNormal},
		{"SafeToNormal", StateSafe, StateNormal},
		{"SafeToFault", StateSafe, StateFault},
		{"AnythingToInvalid", StateNormal, StateInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFSM()
			f.forceState(tt.from)

			err := f.Transition(tt.to)
			if !errors.Is(err, ErrTransitionRejected) {
				t.Fatalf("Transition(%v) error = %v, want %v", tt.to, err, ErrTransitionRejected)
			}
			s, serr := f.State()
			if serr != nil {
				t.Fatalf("State() error = %v", serr)
			}
			if s != StateInvalid {
				t.Errorf("state after rejection = %v, want %v", s, StateInvalid)
			}

			// Invalid is terminal: nothing transitions out.
			if err := f.Transition(StateNormal); !errors.Is(err, ErrTransitionRejected) {
				t.Errorf("Transition out of invalid error = %v, want %v", err, ErrTransitionRejected)
			}
		})
	}
}

func TestFSMCorruptedStateCell(t *testing.T) {
	f := NewFSM()
	f.forceState(StateNormal)
	f.corruptState()

	s, err := f.State()
	if !errors.Is(err, ErrStateCorrupted) {
		t.Fatalf("State() error = %v, want %v", err, ErrStateCorrupted)
	}
	if s != StateInvalid {
		t.Errorf("State() = %v, want %v", s, StateInvalid)
	}

	// A transition attempt on a corrupted cell pins the machine Invalid.
	if err := f.Transition(StateFault); !errors.Is(err, ErrStateCorrupted) {
		t.Fatalf("Transition() error = %v, want %v", err, ErrStateCorrupted)
	}
	s, err = f.State()
	if err != nil {
		t.Fatalf("State() after pinning error = %v", err)
	}
	if s != StateInvalid {
		t.Errorf("State() = %v, want %v", s, StateInvalid)
	}
}

func TestFSMUndefinedEncodingReadsCorrupted(t *testing.T) {
	f := NewFSM()
	f.forceState(State(0x42)) // rail-consistent but not a defined state

	s, err := f.State()
	if !errors.Is(err, ErrStateCorrupted) {
		t.Fatalf("State() error = %v, want %v", err, ErrStateCorrupted)
	}
	if s != StateInvalid {
		t.Errorf("State() = %v, want %v", s, StateInvalid)
	}
}

func TestFSMOnAggregatedFault(t *testing.T) {
	f := NewFSM()
	f.forceState(StateNormal)

	clock := fault.Active{Set: true, Source: fault.Clock, Priority: 2}
	snapClock := fault.Snapshot{}
	snapClock[fault.Clock] = true

	transitioned, edges, err := f.OnAggregatedFault(clock, snapClock)
	if err != nil {
		t.Fatalf("OnAggregatedFault() error = %v", err)
	}
	if !transitioned {
		t.Fatal("OnAggregatedFault() transitioned = false, want true")
	}
	wantEdges := snapClock
	if diff := cmp.Diff(wantEdges, edges); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
	if s, _ := f.State(); s != StateFault {
		t.Errorf("State() = %v, want %v", s, StateFault)
	}
	if got := f.LastAggregated(); got != clock {
		t.Errorf("LastAggregated() = %v, want %v", got, clock)
	}
	if f.FaultCount() != 1 {
		t.Errorf("FaultCount() = %d, want 1", f.FaultCount())
	}
}

func TestFSMFaultCountIsEdgeTriggered(t *testing.T) {
	f := NewFSM()
	f.forceState(StateNormal)

	clock := fault.Active{Set: true, Source: fault.Clock, Priority: 2}
	snap := fault.Snapshot{}
	snap[fault.Clock] = true

	// The same fault observed across many polls is one occurrence.
	for i := 0; i < 5; i++ {
		if _, _, err := f.OnAggregatedFault(clock, snap); err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
	}
	if f.FaultCount() != 1 {
		t.Fatalf("FaultCount() = %d, want 1", f.FaultCount())
	}

	// A second source appearing mid-stream is a second occurrence.
	snap[fault.Power] = true
	power := fault.Active{Set: true, Source: fault.Power, Priority: 3}
	_, edges, err := f.OnAggregatedFault(power, snap)
	if err != nil {
		t.Fatalf("OnAggregatedFault() error = %v", err)
	}
	if !edges[fault.Power] || edges[fault.Clock] {
		t.Errorf("edges = %v, want power only", edges)
	}
	if f.FaultCount() != 2 {
		t.Errorf("FaultCount() = %d, want 2", f.FaultCount())
	}

	// Deassert and reassert: a genuine new edge counts again.
	if _, _, err := f.OnAggregatedFault(fault.Active{}, fault.Snapshot{}); err != nil {
		t.Fatalf("clear poll: %v", err)
	}
	if _, _, err := f.OnAggregatedFault(power, snap); err != nil {
		t.Fatalf("reassert poll: %v", err)
	}
	if f.FaultCount() != 4 {
		t.Errorf("FaultCount() = %d, want 4", f.FaultCount())
	}

	f.ResetFaultCount()
	if f.FaultCount() != 0 {
		t.Errorf("FaultCount() after reset = %d, want 0", f.FaultCount())
	}
}

func TestFSMOnAggregatedFaultOutsideNormal(t *testing.T) {
	for _, from := range []State{StateInit, StateFault, StateSafe, StateRecovery} {
		f := NewFSM()
		f.forceState(from)

		active := fault.Active{Set: true, Source: fault.Power, Priority: 3}
		snap := fault.Snapshot{}
		snap[fault.Power] = true

		transitioned, _, err := f.OnAggregatedFault(active, snap)
		if err != nil {
			t.Fatalf("from %v: error = %v", from, err)
		}
		if transitioned {
			t.Errorf("from %v: transitioned = true, want false", from)
		}
		if s, _ := f.State(); s != from {
			t.Errorf("from %v: state moved to %v", from, s)
		}
	}
}
