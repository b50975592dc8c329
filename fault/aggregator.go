package fault

import (
	"fmt"

	"faultguard/common"
)

// Active identifies the winning fault of one aggregation pass. The zero
// Active means no fault; check Set before using Source or Priority.
type Active struct {
	Set      bool
	Source   Source
	Priority Priority
}

func (a Active) String() string {
	if !a.Set {
		return "none"
	}
	return fmt.Sprintf("%s(rank %d)", a.Source, a.Priority)
}

// Aggregator reduces the flag store to the single highest-priority active
// fault. Aggregation never mutates flags; its only side effect is a
// saturating count of passes, kept for diagnostics.
//
// Arbitration is strict priority preemption. A higher-priority fault
// asserted while a lower one is in recovery wins the very next pass;
// there is no fairness and no rotation.
type Aggregator struct {
	store  *Store
	prio   PriorityTable
	passes common.Sat32
}

// NewAggregator builds an aggregator over store with the given priority
// table.
func NewAggregator(store *Store, prio PriorityTable) (*Aggregator, error) {
	if err := prio.Validate(); err != nil {
		return nil, fmt.Errorf("priority table: %w", err)
	}
	return &Aggregator{store: store, prio: prio}, nil
}

// Aggregate reads every source exactly once and returns the set source
// with the highest rank, or a zero Active when none is set.
//
// Any corrupted source fails the whole pass closed: the corrupted channel
// could be the one carrying the highest-priority fault, so no result
// built from the remaining sources can be trusted.
func (a *Aggregator) Aggregate() (Active, error) {
	sn, err := a.store.Snapshot()
	if err != nil {
		a.passes.Inc()
		return Active{}, err
	}
	return a.Arbitrate(sn), nil
}

// Arbitrate picks the winner from an already-taken snapshot. The periodic
// task uses this form so one observation feeds both arbitration and the
// recovery machines.
func (a *Aggregator) Arbitrate(sn Snapshot) Active {
	a.passes.Inc()

	var win Active
	for _, src := range Sources() {
		if !sn[src] {
			continue
		}
		if !win.Set || a.prio[src] > win.Priority {
			win = Active{Set: true, Source: src, Priority: a.prio[src]}
		}
	}
	return win
}

// MultipleActive reports whether more than one source is set right now.
// Corruption fails closed like Aggregate.
func (a *Aggregator) MultipleActive() (bool, error) {
	sn, err := a.store.Snapshot()
	if err != nil {
		return false, err
	}
	return sn.MultipleActive(), nil
}

// SetPriorities replaces the arbitration table. The caller is responsible
// for not swapping tables mid-cycle; validation happens here.
func (a *Aggregator) SetPriorities(t PriorityTable) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("priority table: %w", err)
	}
	a.prio = t
	return nil
}

// Priorities returns the table in use.
func (a *Aggregator) Priorities() PriorityTable {
	return a.prio
}

// Passes returns the saturating count of aggregation passes since boot.
func (a *Aggregator) Passes() uint32 {
	return a.passes.Value()
}
