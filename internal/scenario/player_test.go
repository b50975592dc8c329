package scenario

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"faultguard/fault"
	"faultguard/safety"
)

func u32(v uint32) *uint32 { return &v }

func TestPlayerSingleFaultArc(t *testing.T) {
	sc := &Scenario{
		Name: "clock loss and recovery",
		Steps: []Step{
			{Tick: 1, Set: []string{"clock"}, Expect: &Expect{
				State:     "fault",
				Aggregate: "clock",
				Substates: map[string]string{"clock": "fault-active"},
			}},
			{Tick: 2, Clear: []string{"clock"}, Expect: &Expect{
				Substates: map[string]string{"clock": "recovery-pending"},
			}},
			{Tick: 7, Expect: &Expect{
				State:     "fault",
				Substates: map[string]string{"clock": "recovery-confirmed"},
			}},
			{Tick: 8, RequestRecovery: "clock", Expect: &Expect{
				State:      "normal",
				Aggregate:  "none",
				Substates:  map[string]string{"clock": "idle"},
				Power:      "normal",
				FaultCount: u32(1),
			}},
		},
	}

	p := NewPlayer(safety.DefaultParams(), nil)
	res, err := p.Run(sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Failed() {
		for _, f := range res.Failures {
			t.Errorf("unexpected failure: %s", f)
		}
	}
	if got, want := len(res.Trace), 8; got != want {
		t.Fatalf("trace length = %d, want %d", got, want)
	}
	if got := res.Trace[0].State; got != safety.StateFault {
		t.Errorf("tick 1 state = %s, want %s", got, safety.StateFault)
	}
	if got := res.Trace[0].Subs[fault.Clock]; got != safety.SubFaultActive {
		t.Errorf("tick 1 clock substate = %s, want %s", got, safety.SubFaultActive)
	}
	if got := res.Trace[7].State; got != safety.StateNormal {
		t.Errorf("tick 8 state = %s, want %s", got, safety.StateNormal)
	}
}

func TestPlayerRecordsFailures(t *testing.T) {
	sc := &Scenario{
		Name: "deliberately wrong expectations",
		Steps: []Step{
			{Tick: 1, Set: []string{"power"}, Expect: &Expect{
				State:      "normal",
				FaultCount: u32(5),
			}},
		},
	}

	res, err := NewPlayer(safety.DefaultParams(), nil).Run(sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []Failure{
		{Tick: 1, Field: "state", Got: "fault", Want: "normal"},
		{Tick: 1, Field: "fault_count", Got: "1", Want: "5"},
	}
	if diff := cmp.Diff(want, res.Failures); diff != "" {
		t.Errorf("failures mismatch (-want +got):\n%s", diff)
	}
}

func TestPlayerTickErrorExpectation(t *testing.T) {
	sc := &Scenario{
		Name: "corruption fails the tick",
		Steps: []Step{
			{Tick: 1, Corrupt: []string{"memory"}, Expect: &Expect{
				TickError: true,
				State:     "safe-state",
				Power:     "safe-state",
			}},
		},
	}

	res, err := NewPlayer(safety.DefaultParams(), nil).Run(sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Failed() {
		for _, f := range res.Failures {
			t.Errorf("unexpected failure: %s", f)
		}
	}
	if res.Trace[0].Err == nil {
		t.Error("trace did not record the tick error")
	}
}

func TestPlayerMissingTickErrorIsFailure(t *testing.T) {
	sc := &Scenario{
		Name: "expects an error that never happens",
		Steps: []Step{
			{Tick: 1, Expect: &Expect{TickError: true}},
		},
	}

	res, err := NewPlayer(safety.DefaultParams(), nil).Run(sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []Failure{{Tick: 1, Field: "tick", Got: "no error", Want: "error"}}
	if diff := cmp.Diff(want, res.Failures); diff != "" {
		t.Errorf("failures mismatch (-want +got):\n%s", diff)
	}
}

func TestPlayerRefusedRecoveryIsFailure(t *testing.T) {
	sc := &Scenario{
		Name: "recovery request with nothing to recover",
		Steps: []Step{
			{Tick: 1, RequestRecovery: "clock"},
		},
	}

	res, err := NewPlayer(safety.DefaultParams(), nil).Run(sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Failed() {
		t.Fatal("refused recovery request did not register as a failure")
	}
	f := res.Failures[0]
	if f.Field != "request_recovery" || f.Want != "accepted" {
		t.Errorf("failure = %+v, want field request_recovery", f)
	}
}

func TestPlayerRejectsInvalidScenario(t *testing.T) {
	if _, err := NewPlayer(safety.DefaultParams(), nil).Run(&Scenario{}); err == nil {
		t.Fatal("Run accepted a scenario with no name and no steps")
	}
}

func TestPlayerRunsAreIndependent(t *testing.T) {
	sc := &Scenario{
		Name: "latched fault left behind",
		Steps: []Step{
			{Tick: 1, Set: []string{"memory"}, Expect: &Expect{
				State:      "fault",
				FaultCount: u32(1),
			}},
		},
	}

	p := NewPlayer(safety.DefaultParams(), nil)
	for run := 0; run < 2; run++ {
		res, err := p.Run(sc)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if res.Failed() {
			t.Errorf("run %d: fault state leaked across runs: %v", run, res.Failures)
		}
	}
}
