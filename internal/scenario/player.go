package scenario

import (
	"fmt"

	"faultguard/common"
	"faultguard/ecc"
	"faultguard/fault"
	"faultguard/power"
	"faultguard/safety"
)

// injectWord is the data pattern the ECC injection actions corrupt.
const injectWord uint64 = 0xA5A5F00DDEADBEEF

// TickRecord is one tick's observation in a replay trace.
type TickRecord struct {
	Tick      int
	State     safety.State
	Aggregate fault.Active
	Subs      [fault.NumSources]safety.SubState
	Power     power.Mode
	Err       error
}

// Failure is one unmet expectation.
type Failure struct {
	Tick  int
	Field string
	Got   string
	Want  string
}

func (f Failure) String() string {
	return fmt.Sprintf("tick %d: %s = %s, want %s", f.Tick, f.Field, f.Got, f.Want)
}

// Result is a completed replay: the full trace plus every unmet
// expectation.
type Result struct {
	Scenario string
	Trace    []TickRecord
	Failures []Failure
}

// Failed reports whether any expectation went unmet.
func (r *Result) Failed() bool {
	return len(r.Failures) > 0
}

// Player replays scenarios. Each Run builds a fresh supervisor from the
// player's parameters, so runs are independent and deterministic.
type Player struct {
	params safety.Params
	log    common.Logger
}

// NewPlayer builds a player. A nil logger disables logging.
func NewPlayer(params safety.Params, logger common.Logger) *Player {
	if logger == nil {
		logger = common.NewNoOpLogger()
	}
	return &Player{params: params, log: logger}
}

// Run drives sc from tick 1 through its last scheduled tick and collects
// the trace and expectation failures. The returned error covers setup
// problems only; unmet expectations and failing ticks land in the Result.
func (p *Player) Run(sc *Scenario) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	signals := fault.NewSignals()
	sup, err := safety.NewSupervisor(p.params, signals, p.log)
	if err != nil {
		return nil, err
	}
	if err := sup.Start(); err != nil {
		return nil, err
	}

	steps := make(map[int]*Step, len(sc.Steps))
	last := 0
	for i := range sc.Steps {
		steps[sc.Steps[i].Tick] = &sc.Steps[i]
		last = sc.Steps[i].Tick
	}

	res := &Result{Scenario: sc.Name}
	for tick := 1; tick <= last; tick++ {
		step := steps[tick]
		if step != nil {
			p.apply(res, sup, signals, step)
		}

		tickErr := sup.Tick()
		st := sup.Status()
		rec := TickRecord{
			Tick:      tick,
			State:     st.State,
			Aggregate: st.Active,
			Power:     st.PowerMode,
			Err:       tickErr,
		}
		for _, src := range fault.Sources() {
			rec.Subs[src] = st.Sources[src].Sub
		}
		res.Trace = append(res.Trace, rec)

		if step != nil && step.Expect != nil {
			check(res, step, st, tickErr)
		}
	}
	return res, nil
}

func (p *Player) apply(res *Result, sup *safety.Supervisor, signals *fault.Signals, step *Step) {
	for _, name := range step.Set {
		src, _ := fault.ParseSource(name)
		signals.Assert(src)
		sup.Store().Set(src)
	}
	for _, name := range step.Clear {
		src, _ := fault.ParseSource(name)
		signals.Deassert(src)
	}
	for _, name := range step.Corrupt {
		src, _ := fault.ParseSource(name)
		sup.Store().Corrupt(src)
	}
	for _, name := range step.Repair {
		src, _ := fault.ParseSource(name)
		sup.Store().Clear(src)
	}

	check := ecc.Encode(injectWord)
	for i := 0; i < step.InjectSBE; i++ {
		sup.ECC().Process(injectWord^(1<<(i%64)), check)
	}
	for i := 0; i < step.InjectMBE; i++ {
		sup.ECC().Process(injectWord^(3<<(i%63)), check)
	}

	if step.RecordUndetected != "" {
		src, _ := fault.ParseSource(step.RecordUndetected)
		sup.Recorder().Undetected(src)
	}
	if step.RequestRecovery != "" {
		src, _ := fault.ParseSource(step.RequestRecovery)
		outcome, err := sup.RequestRecovery(src)
		if err != nil {
			res.Failures = append(res.Failures, Failure{
				Tick: step.Tick, Field: "request_recovery",
				Got: err.Error(), Want: "accepted",
			})
			return
		}
		p.log.Logf(common.SeverityDebug, "recovery requested for %s: %s", src, outcome)
	}
}

func check(res *Result, step *Step, st safety.SafetyStatus, tickErr error) {
	e := step.Expect
	fail := func(field, got, want string) {
		res.Failures = append(res.Failures, Failure{Tick: step.Tick, Field: field, Got: got, Want: want})
	}

	if e.TickError != (tickErr != nil) {
		got, want := "no error", "no error"
		if tickErr != nil {
			got = tickErr.Error()
		}
		if e.TickError {
			want = "error"
		}
		fail("tick", got, want)
	}
	if e.State != "" && st.State.String() != e.State {
		fail("state", st.State.String(), e.State)
	}
	if e.Aggregate != "" {
		got := "none"
		if st.Active.Set {
			got = st.Active.Source.String()
		}
		if got != e.Aggregate {
			fail("aggregate", got, e.Aggregate)
		}
	}
	for name, want := range e.Substates {
		src, _ := fault.ParseSource(name)
		if got := st.Sources[src].Sub.String(); got != want {
			fail("substate "+name, got, want)
		}
	}
	if e.Power != "" && st.PowerMode.String() != e.Power {
		fail("power", st.PowerMode.String(), e.Power)
	}
	if e.FaultCount != nil && st.FaultCount != *e.FaultCount {
		fail("fault_count", fmt.Sprint(st.FaultCount), fmt.Sprint(*e.FaultCount))
	}
}
