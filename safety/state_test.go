package safety

import (
	"math/bits"
	"testing"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateInit, "init"},
		{StateNormal, "normal"},
		{StateFault, "fault"},
		{StateSafe, "safe-state"},
		{StateRecovery, "recovery"},
		{StateInvalid, "invalid"},
		{State(0x00), "undefined"},
		{State(0x42), "undefined"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%#02x).String() = %q, want %q", uint8(tt.state), got, tt.want)
		}
	}
}

func TestStateKnown(t *testing.T) {
	known := []State{StateInit, StateNormal, StateFault, StateSafe, StateRecovery, StateInvalid}
	for _, s := range known {
		if !s.Known() {
			t.Errorf("State(%#02x).Known() = false", uint8(s))
		}
	}
	for _, s := range []State{0x00, 0x01, 0x54, 0xAB} {
		if s.Known() {
			t.Errorf("State(%#02x).Known() = true", uint8(s))
		}
	}
}

// The encodings are chosen so no single or double bit upset turns one
// legal state into another.
func TestStateEncodingDistance(t *testing.T) {
	states := []State{StateInit, StateNormal, StateFault, StateSafe, StateRecovery, StateInvalid}
	for i, a := range states {
		for _, b := range states[i+1:] {
			if d := bits.OnesCount8(uint8(a) ^ uint8(b)); d < 4 {
				t.Errorf("distance(%v, %v) = %d, want >= 4", a, b, d)
			}
		}
	}
}

func TestAllowedTransition(t *testing.T) {
	type pair struct{ from, to State }
	allowed := map[pair]bool{
		{StateInit, StateNormal}:       true,
		{StateNormal, StateNormal}:     true,
		{StateNormal, StateFault}:      true,
		{StateNormal, StateSafe}:       true,
		{StateFault, StateFault}:       true,
		{StateFault, StateSafe}:        true,
		{StateFault, StateRecovery}:    true,
		{StateSafe, StateSafe}:         true,
		{StateSafe, StateRecovery}:     true,
		{StateRecovery, StateNormal}:   true,
		{StateRecovery, StateFault}:    true,
		{StateRecovery, StateSafe}:     true,
		{StateRecovery, StateRecovery}: true,
	}

	all := []State{StateInit, StateNormal, StateFault, StateSafe, StateRecovery, StateInvalid}
	for _, from := range all {
		for _, to := range all {
			want := allowed[pair{from, to}]
			if got := allowedTransition(from, to); got != want {
				t.Errorf("allowedTransition(%v, %v) = %v, want %v", from, to, got, want)
			}
		}
	}
}

// Nothing may reach StateFault from StateInit without passing through
// StateNormal; Init's only exit is Normal.
func TestNoDirectInitToFault(t *testing.T) {
	for _, to := range []State{StateFault, StateSafe, StateRecovery, StateInvalid, StateInit} {
		if allowedTransition(StateInit, to) {
			t.Errorf("allowedTransition(init, %v) = true", to)
		}
	}

	f := NewFSM()
	if err := f.Transition(StateFault); err == nil {
		t.Fatal("Transition(init -> fault) accepted")
	}
	s, err := f.State()
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if s != StateInvalid {
		t.Errorf("state after rejected transition = %v, want %v", s, StateInvalid)
	}
}
