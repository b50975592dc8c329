package safety

import (
	"fmt"
	"sync/atomic"
	"time"

	"faultguard/common"
	"faultguard/ecc"
	"faultguard/fault"
	"faultguard/power"
	"faultguard/stats"
)

// RawSignals samples the instantaneous per-source fault signal levels.
// The sensing hardware behind them is out of scope; fault.Signals is the
// in-memory implementation used by simulation and tests.
type RawSignals interface {
	Raw(src fault.Source) bool
}

// Supervisor owns the periodic safety task. One Tick samples the raw
// levels, snapshots the fault flags once, arbitrates once, advances the
// state machine by at most one transition, advances every recovery
// sub-machine, and publishes a fresh status snapshot. Nothing re-reads
// flags mid-tick.
//
// Tick, RequestRecovery, ResetCounters and Reconfigure belong to the
// single goroutine driving the task. Status is safe from any goroutine.
// The flag store's Set and the signal bank's Assert/Deassert are the only
// inputs safe to call concurrently with the task.
type Supervisor struct {
	log     common.Logger
	signals RawSignals
	store   *fault.Store
	agg     *fault.Aggregator
	fsm     *FSM
	subs    [fault.NumSources]*SubMachine
	esc     [fault.NumSources]EscalationPolicy
	rec     *stats.Recorder
	pwr     *power.Controller
	checker *ecc.Service

	period time.Duration

	recovering    fault.Source
	hasRecovering bool

	corruptions common.Sat32
	timeouts    common.Sat32

	status atomic.Pointer[SafetyStatus]
}

// NewSupervisor builds a supervisor with its own flag store, state
// machine, power controller and ECC checker. A multi-bit ECC detection,
// or the single-bit count crossing its threshold, latches the Memory
// flag through the store. A nil logger disables logging.
func NewSupervisor(params Params, signals RawSignals, logger common.Logger) (*Supervisor, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	if signals == nil {
		return nil, fmt.Errorf("nil raw signal source")
	}
	if logger == nil {
		logger = common.NewNoOpLogger()
	}
	if params.TickPeriod == 0 {
		params.TickPeriod = stats.DefaultTickPeriod
	}

	store := fault.NewStore()
	agg, err := fault.NewAggregator(store, params.Priorities)
	if err != nil {
		return nil, err
	}

	s := &Supervisor{
		log:     logger,
		signals: signals,
		store:   store,
		agg:     agg,
		fsm:     NewFSM(),
		rec:     stats.NewRecorder(params.TickPeriod),
		pwr:     power.NewController(),
		period:  params.TickPeriod,
	}
	for _, src := range fault.Sources() {
		sub, err := NewSubMachine(params.Recovery[src])
		if err != nil {
			return nil, fmt.Errorf("recovery %s: %w", src, err)
		}
		s.subs[src] = sub
		s.esc[src] = params.Escalation[src]
	}
	s.checker, err = ecc.NewService(params.ECC, func() { store.Set(fault.Memory) })
	if err != nil {
		return nil, fmt.Errorf("ecc: %w", err)
	}

	s.publish(s.sample(), fault.Snapshot{}, fault.Active{}, [fault.NumSources]bool{})
	return s, nil
}

// Start moves the machine out of StateInit. Call once, before the first
// Tick.
func (s *Supervisor) Start() error {
	cur, err := s.fsm.State()
	if err != nil {
		return err
	}
	if cur != StateInit {
		return fmt.Errorf("already started: %s", cur)
	}
	if err := s.fsm.Transition(StateNormal); err != nil {
		return err
	}
	s.log.Info("supervisor online")
	snap, _ := s.store.Snapshot()
	s.publish(s.sample(), snap, fault.Active{}, [fault.NumSources]bool{})
	return nil
}

func (s *Supervisor) sample() [fault.NumSources]bool {
	var raw [fault.NumSources]bool
	for _, src := range fault.Sources() {
		raw[src] = s.signals.Raw(src)
	}
	return raw
}

// Tick runs one period of the safety task. At most one state transition
// happens per tick; when causes compete, a freshly asserted fault
// outranks a concurrent timeout escalation, and the losing timeout stays
// counted and reported. Corruption anywhere fails the tick closed:
// safe-state is forced and the error is returned.
func (s *Supervisor) Tick() error {
	s.rec.Tick()
	raw := s.sample()

	snap, err := s.store.Snapshot()
	if err != nil {
		return s.failClosed(raw, fault.Snapshot{}, fmt.Errorf("flag snapshot: %w", err))
	}

	active := s.agg.Arbitrate(snap)
	transitioned, edges, ferr := s.fsm.OnAggregatedFault(active, snap)
	for _, src := range fault.Sources() {
		if edges[src] {
			s.rec.Detected(src)
			s.log.Logf(common.SeverityWarning, "fault detected: %s", src)
		}
	}
	if ferr != nil {
		return s.failClosed(raw, snap, ferr)
	}
	if transitioned {
		s.log.Logf(common.SeverityWarning, "entering fault state on %s", active)
	}

	// Advance every recovery machine with this tick's observation.
	wantSafe := false
	for _, src := range fault.Sources() {
		switch s.subs[src].Tick(snap[src], raw[src]) {
		case SubEventTimeout:
			s.timeouts.Inc()
			s.rec.RecoveryFailure()
			s.log.Logf(common.SeverityWarning, "%s recovery timed out (policy %s)", src, s.esc[src])
			if s.esc[src] == EscalateSafeState {
				wantSafe = true
			}
		case SubEventConfirmed:
			s.log.Logf(common.SeverityInfo, "%s stable for the full dwell", src)
		case SubEventReasserted:
			s.log.Logf(common.SeverityDebug, "%s reasserted during dwell", src)
		case SubEventAnomalousReassert:
			s.log.Logf(common.SeverityWarning, "%s reasserted after confirmation", src)
		}
	}

	cur, err := s.fsm.State()
	if err != nil {
		return s.failClosed(raw, snap, err)
	}

	// Complete an in-flight recovery the moment its machine confirms. Not
	// a transition: the state stays Recovery until the next tick observes
	// the cleaned flags.
	var doneSrc fault.Source
	done := false
	if cur == StateRecovery && s.hasRecovering &&
		s.subs[s.recovering].State() == SubRecoveryConfirmed {
		doneSrc = s.recovering
		s.finish(doneSrc)
		done = true
	}

	// One transition per tick, most urgent cause first.
	switch {
	case transitioned:
		// Normal -> Fault already happened above.

	case cur == StateRecovery && active.Set &&
		!(done && active.Source == doneSrc) &&
		(!s.hasRecovering || active.Source != s.recovering):
		// Strict preemption: a fault other than the one being recovered
		// wins arbitration, so the recovery session is over.
		s.hasRecovering = false
		if err := s.fsm.Transition(StateFault); err != nil {
			s.publish(raw, snap, active, [fault.NumSources]bool{})
			return err
		}
		s.log.Logf(common.SeverityWarning, "recovery preempted by %s", active)

	case wantSafe:
		if err := s.escalateSafe("recovery timeout"); err != nil {
			s.publish(raw, snap, active, [fault.NumSources]bool{})
			return err
		}

	case cur == StateRecovery && !active.Set:
		if err := s.fsm.Transition(StateNormal); err != nil {
			s.publish(raw, snap, active, [fault.NumSources]bool{})
			return err
		}
		s.hasRecovering = false
		if m, _ := s.pwr.Mode(); m == power.ModeSafeState {
			if err := s.pwr.RequestRecovery(); err != nil {
				s.log.Error(err)
			}
		}
		s.log.Info("recovery complete, back to normal")
	}

	s.publish(raw, snap, active, [fault.NumSources]bool{})
	return nil
}

// failClosed is the corruption path: count the event, force safe-state,
// publish what is known, and hand the error up.
func (s *Supervisor) failClosed(raw [fault.NumSources]bool, snap fault.Snapshot, err error) error {
	s.corruptions.Inc()
	s.log.Error(err)
	if eerr := s.escalateSafe("corruption"); eerr != nil {
		s.log.Error(eerr)
	}
	var corr [fault.NumSources]bool
	for _, src := range fault.Sources() {
		if _, rerr := s.store.Read(src); rerr != nil {
			corr[src] = true
		}
	}
	s.publish(raw, snap, fault.Active{}, corr)
	return err
}

// escalateSafe forces safe-state. The power controller goes first: it is
// never refused, even when the state machine is too broken to follow.
func (s *Supervisor) escalateSafe(reason string) error {
	if err := s.pwr.EnterSafeState(); err != nil {
		s.log.Error(err)
	}
	s.hasRecovering = false
	if err := s.fsm.Transition(StateSafe); err != nil {
		return fmt.Errorf("safe-state escalation (%s): %w", reason, err)
	}
	s.log.Logf(common.SeverityWarning, "forced safe-state: %s", reason)
	return nil
}

// finish consumes a confirmed recovery: the sub-machine returns to idle,
// the latched flag is cleared, and the success is recorded.
func (s *Supervisor) finish(src fault.Source) {
	if err := s.subs[src].Consume(); err != nil {
		s.log.Error(err)
		return
	}
	s.store.Clear(src)
	s.rec.RecoverySuccess()
	s.hasRecovering = false
	s.log.Logf(common.SeverityInfo, "%s recovery confirmed, flag cleared", src)
}

// RequestRecovery starts or continues recovery for src. Legal only in
// StateFault or StateSafe; an out-of-state request is refused with
// ErrRecoveryUnavailable and leaves the machine untouched. If the
// sub-machine has already confirmed stability, the flag is cleared
// immediately and the outcome is OutcomeSuccess; the return to
// StateNormal happens on the next tick, once arbitration sees the clean
// flags.
func (s *Supervisor) RequestRecovery(src fault.Source) (RecoveryOutcome, error) {
	if !src.Valid() {
		return OutcomePending, fmt.Errorf("%w: %d", fault.ErrUnknownSource, int(src))
	}
	cur, err := s.fsm.State()
	if err != nil {
		return OutcomePending, err
	}
	if cur != StateFault && cur != StateSafe {
		return OutcomePending, fmt.Errorf("%s: %w", cur, ErrRecoveryUnavailable)
	}
	if err := s.fsm.Transition(StateRecovery); err != nil {
		return OutcomePending, err
	}
	s.recovering, s.hasRecovering = src, true
	s.log.Logf(common.SeverityInfo, "recovery requested for %s", src)

	if s.subs[src].State() == SubRecoveryConfirmed {
		s.finish(src)
		return OutcomeSuccess, nil
	}
	return OutcomePending, nil
}

// ResetCounters clears the diagnostic counters: fault occurrences,
// corruption events, recovery timeouts, ECC counters and statistics.
// Recovery attempt counters are monotonic and stay. Rejected while any
// fault is active; a corrupted flag counts as active.
func (s *Supervisor) ResetCounters() error {
	snap, err := s.store.Snapshot()
	if err != nil {
		return fmt.Errorf("flag store corrupted: %w", ErrFaultActive)
	}
	if n := snap.CountSet(); n > 0 {
		return fmt.Errorf("%d source(s) set: %w", n, ErrFaultActive)
	}
	s.fsm.ResetFaultCount()
	s.corruptions.Reset()
	s.timeouts.Reset()
	s.rec.Reset()
	s.checker.ResetCounters()
	s.log.Info("diagnostic counters reset")
	return nil
}

// Reconfigure applies a new parameter set. Per-source windows and
// escalation policies change only while that source's recovery machine is
// idle; a busy source rejects the whole call before anything is applied.
// Priority changes require every machine idle, since arbitration order
// affects all of them. The tick period is fixed at initialization.
func (s *Supervisor) Reconfigure(params Params) error {
	if params.TickPeriod == 0 {
		params.TickPeriod = s.period
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	if params.TickPeriod != s.period {
		return fmt.Errorf("tick period is fixed at initialization")
	}

	prioChange := params.Priorities != s.agg.Priorities()
	for _, src := range fault.Sources() {
		if s.subs[src].State() == SubIdle {
			continue
		}
		if prioChange ||
			params.Recovery[src] != s.subs[src].Config() ||
			params.Escalation[src] != s.esc[src] {
			return fmt.Errorf("%s: %w", src, ErrBusy)
		}
	}

	if err := s.agg.SetPriorities(params.Priorities); err != nil {
		return err
	}
	for _, src := range fault.Sources() {
		if params.Recovery[src] != s.subs[src].Config() {
			if err := s.subs[src].Reconfigure(params.Recovery[src]); err != nil {
				return err
			}
		}
		s.esc[src] = params.Escalation[src]
	}
	if err := s.checker.Reconfigure(params.ECC); err != nil {
		return err
	}
	s.log.Info("configuration applied")
	return nil
}

func (s *Supervisor) publish(raw [fault.NumSources]bool, snap fault.Snapshot, active fault.Active, corrupted [fault.NumSources]bool) {
	st := &SafetyStatus{
		Active:            active,
		FaultCount:        s.fsm.FaultCount(),
		CorruptionEvents:  s.corruptions.Value(),
		RecoveryTimeouts:  s.timeouts.Value(),
		AggregationPasses: s.agg.Passes(),
		Ticks:             s.rec.Ticks(),
	}
	st.State, _ = s.fsm.State()
	st.PowerMode, _ = s.pwr.Mode()
	for _, src := range fault.Sources() {
		timeout, stability := s.subs[src].Counters()
		st.Sources[src] = SourceStatus{
			Flag:      snap[src],
			Raw:       raw[src],
			Corrupted: corrupted[src],
			Sub:       s.subs[src].State(),
			Attempts:  s.subs[src].Attempts(),
			Timeout:   timeout,
			Stability: stability,
		}
	}
	s.status.Store(st)
}

// Status returns the snapshot published by the most recent tick.
func (s *Supervisor) Status() SafetyStatus {
	return *s.status.Load()
}

// Store exposes the flag store for the event-context producers.
func (s *Supervisor) Store() *fault.Store {
	return s.store
}

// ECC exposes the memory checker; data-path reads run through it.
func (s *Supervisor) ECC() *ecc.Service {
	return s.checker
}

// Power exposes the power-mode controller.
func (s *Supervisor) Power() *power.Controller {
	return s.pwr
}

// Stats returns the statistics snapshot.
func (s *Supervisor) Stats() stats.Snapshot {
	return s.rec.Snapshot()
}

// Recorder exposes the statistics recorder for fault-injection audits,
// which report undetected faults from outside the periodic task's view.
func (s *Supervisor) Recorder() *stats.Recorder {
	return s.rec
}
