// Package scenario loads fault-injection scenario files and replays them
// against a fresh supervisor, one step per tick. Scenario files are the
// integration surface: the simulate command and the module-level tests
// both run through this package.
package scenario

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"faultguard/fault"
	"faultguard/power"
	"faultguard/safety"
)

// Step is one scheduled tick of a scenario. Actions are applied before
// the tick runs; expectations are checked against the status published
// after it. Ticks without a step still run.
type Step struct {
	Tick int `yaml:"tick"`

	// Set asserts the raw signal and latches the flag for each named
	// source, the way the event handler does on a rising edge.
	Set []string `yaml:"set,omitempty"`
	// Clear deasserts the raw signal only. The latched flag stays until
	// the recovery machinery clears it.
	Clear []string `yaml:"clear,omitempty"`
	// Corrupt forces a dual-rail mismatch on each named source's flag.
	Corrupt []string `yaml:"corrupt,omitempty"`
	// Repair reinitializes each named source's flag cell to a valid
	// clear pair, standing in for the diagnostics that handle a
	// corruption.
	Repair []string `yaml:"repair,omitempty"`
	// RequestRecovery issues a recovery request for the named source. A
	// refused request is recorded as a failure.
	RequestRecovery string `yaml:"request_recovery,omitempty"`
	// InjectSBE and InjectMBE push that many single- or multi-bit
	// corrupted words through the ECC checker.
	InjectSBE int `yaml:"inject_sbe,omitempty"`
	InjectMBE int `yaml:"inject_mbe,omitempty"`
	// RecordUndetected books an undetected fault against the named
	// source, as a fault-injection audit would.
	RecordUndetected string `yaml:"record_undetected,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect lists the checks run after the step's tick completes. Absent
// fields are not checked.
type Expect struct {
	// State is the expected supervisor state name.
	State string `yaml:"state,omitempty"`
	// Aggregate is the winning source name, or "none".
	Aggregate string `yaml:"aggregate,omitempty"`
	// Substates maps source names to expected recovery machine states.
	Substates map[string]string `yaml:"substates,omitempty"`
	// Power is the expected power mode name.
	Power string `yaml:"power,omitempty"`
	// FaultCount is the expected fault occurrence count.
	FaultCount *uint32 `yaml:"fault_count,omitempty"`
	// TickError marks ticks that must fail, for corruption runs.
	TickError bool `yaml:"tick_error,omitempty"`
}

// Scenario is one replayable fault sequence.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`
}

// Load reads and validates a scenario file. Unknown keys are rejected so
// a misspelled action cannot silently become a no-op.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read scenario")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, errors.Wrapf(err, "parse scenario %s", path)
	}
	if err := sc.Validate(); err != nil {
		return nil, errors.Wrapf(err, "scenario %s", path)
	}
	return &sc, nil
}

func nameSet(vals ...fmt.Stringer) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v.String()] = true
	}
	return m
}

var (
	stateNames = nameSet(
		safety.StateInit, safety.StateNormal, safety.StateFault,
		safety.StateSafe, safety.StateRecovery, safety.StateInvalid,
	)
	subNames = nameSet(
		safety.SubIdle, safety.SubFaultActive,
		safety.SubRecoveryPending, safety.SubRecoveryConfirmed,
	)
	powerNames = nameSet(power.ModeNormal, power.ModeSafeState, power.ModeShutdown)
)

// Validate checks the scenario for structural problems: missing name or
// steps, non-increasing tick numbers, unknown sources, states, or modes.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return errors.New("missing name")
	}
	if len(s.Steps) == 0 {
		return errors.New("no steps")
	}
	prev := 0
	for i, st := range s.Steps {
		if st.Tick <= prev {
			return errors.Errorf("step %d: tick %d does not follow tick %d", i, st.Tick, prev)
		}
		prev = st.Tick
		if err := st.validate(); err != nil {
			return errors.Wrapf(err, "tick %d", st.Tick)
		}
	}
	return nil
}

func (st *Step) validate() error {
	for _, group := range [][]string{st.Set, st.Clear, st.Corrupt, st.Repair} {
		for _, name := range group {
			if _, err := fault.ParseSource(name); err != nil {
				return err
			}
		}
	}
	if st.RequestRecovery != "" {
		if _, err := fault.ParseSource(st.RequestRecovery); err != nil {
			return errors.Wrap(err, "request_recovery")
		}
	}
	if st.RecordUndetected != "" {
		if _, err := fault.ParseSource(st.RecordUndetected); err != nil {
			return errors.Wrap(err, "record_undetected")
		}
	}
	if st.InjectSBE < 0 || st.InjectMBE < 0 {
		return errors.New("negative injection count")
	}
	e := st.Expect
	if e == nil {
		return nil
	}
	if e.State != "" && !stateNames[e.State] {
		return errors.Errorf("unknown state %q", e.State)
	}
	if e.Aggregate != "" && e.Aggregate != "none" {
		if _, err := fault.ParseSource(e.Aggregate); err != nil {
			return errors.Wrap(err, "aggregate")
		}
	}
	for name, sub := range e.Substates {
		if _, err := fault.ParseSource(name); err != nil {
			return errors.Wrap(err, "substates")
		}
		if !subNames[sub] {
			return errors.Errorf("unknown substate %q", sub)
		}
	}
	if e.Power != "" && !powerNames[e.Power] {
		return errors.Errorf("unknown power mode %q", e.Power)
	}
	return nil
}
