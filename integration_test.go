package faultguard_test

import (
	"path/filepath"
	"testing"

	"faultguard/config"
	"faultguard/internal/scenario"
)

// Each bundled scenario file carries its own expectations; a run passes
// when every expectation holds on the tick it is scheduled for.
func TestBundledScenarios(t *testing.T) {
	testDataRoot := filepath.Join("internal", "scenario", "testdata")

	tests := []struct {
		name string
		file string
	}{
		{
			name: "single clock fault and recovery",
			file: "single_fault_recovery.yaml",
		},
		{
			name: "simultaneous faults arbitrate by priority",
			file: "priority_preemption.yaml",
		},
		{
			name: "glitching signal rides out hysteresis",
			file: "glitch_hysteresis.yaml",
		},
		{
			name: "recovery timeout escalates to safe-state",
			file: "timeout_escalation.yaml",
		},
		{
			name: "flag corruption fails closed",
			file: "corruption_failsafe.yaml",
		},
		{
			name: "multi-bit ecc raises a memory fault",
			file: "ecc_memory_fault.yaml",
		},
	}

	params, err := config.Default().Params()
	if err != nil {
		t.Fatalf("default parameters: %v", err)
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sc, err := scenario.Load(filepath.Join(testDataRoot, tc.file))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}

			res, err := scenario.NewPlayer(params, nil).Run(sc)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			for _, f := range res.Failures {
				t.Errorf("%s", f)
			}

			if len(res.Trace) == 0 {
				t.Fatal("replay produced an empty trace")
			}
			last := res.Trace[len(res.Trace)-1]
			if want := sc.Steps[len(sc.Steps)-1].Tick; last.Tick != want {
				t.Errorf("final trace tick = %d, want %d", last.Tick, want)
			}
		})
	}
}
