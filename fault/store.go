package fault

import (
	"fmt"

	"faultguard/dualrail"
)

// Store holds one dual-rail flag per source. Set and Clear are the only
// operations in the whole supervisor intended for event context; each is a
// fixed number of atomic operations with no allocation and no logging.
// Everything else runs in the periodic task.
type Store struct {
	flags [NumSources]dualrail.Flag
}

// NewStore returns a store with every flag initialized to the valid clear
// pair.
func NewStore() *Store {
	s := &Store{}
	for i := range s.flags {
		s.flags[i].Reset()
	}
	return s
}

// Set asserts the flag for src on a rising edge of the raw hardware
// signal. Unknown sources are dropped: the event path cannot report an
// error and must not panic.
func (s *Store) Set(src Source) {
	if !src.Valid() {
		return
	}
	s.flags[src].Set()
}

// Clear deasserts the flag for src. Task-context only, called once the
// recovery machinery has confirmed the source stable. Clear also repairs
// a corrupted cell after diagnostics have handled the corruption.
func (s *Store) Clear(src Source) {
	if !src.Valid() {
		return
	}
	s.flags[src].Clear()
}

// Read returns the flag state for src. A dual-rail mismatch comes back as
// ErrCorrupted with the source named; the boolean must then be ignored.
func (s *Store) Read(src Source) (bool, error) {
	if !src.Valid() {
		return false, fmt.Errorf("%w: %d", ErrUnknownSource, int(src))
	}
	set, ok := s.flags[src].Read()
	if !ok {
		return false, fmt.Errorf("source %s: %w", src, ErrCorrupted)
	}
	return set, nil
}

// Snapshot is one coherent observation of every flag, taken at the top of
// a periodic tick. Arbitration and the recovery machines all work from the
// same snapshot; nothing re-reads flags mid-tick.
type Snapshot [NumSources]bool

// CountSet returns how many sources the snapshot holds set.
func (sn Snapshot) CountSet() int {
	n := 0
	for _, set := range sn {
		if set {
			n++
		}
	}
	return n
}

// MultipleActive reports whether more than one source is set.
func (sn Snapshot) MultipleActive() bool {
	return sn.CountSet() > 1
}

// Snapshot reads every source exactly once. Any corrupted source fails
// the whole observation closed; the partial snapshot is discarded.
func (s *Store) Snapshot() (Snapshot, error) {
	var sn Snapshot
	for _, src := range Sources() {
		set, err := s.Read(src)
		if err != nil {
			return Snapshot{}, err
		}
		sn[src] = set
	}
	return sn, nil
}

// Corrupt forces the flag for src into the corrupted state. Fault
// injection for scenario runs and tests.
func (s *Store) Corrupt(src Source) {
	if !src.Valid() {
		return
	}
	s.flags[src].Corrupt()
}

// Reset reinitializes every flag to the valid clear pair. Boot and
// diagnostics only; never called while a recovery cycle is in flight.
func (s *Store) Reset() {
	for i := range s.flags {
		s.flags[i].Reset()
	}
}
