// Package fault defines the monitored fault sources, the dual-rail flag
// store they report through, and the aggregator that reduces them to a
// single highest-priority active fault.
package fault

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the store and aggregator.
var (
	// ErrCorrupted reports a dual-rail mismatch on a flag. Callers must
	// fail closed: a corrupted flag is handled as if the fault were
	// active, never as if it were clear.
	ErrCorrupted = errors.New("dual-rail flag corrupted")
	// ErrUnknownSource reports a source outside the closed enumeration.
	ErrUnknownSource = errors.New("unknown fault source")
)

// Source identifies one monitored fault input.
type Source int

const (
	// Power is the supply-voltage monitor.
	Power Source = iota
	// Clock is the PLL lock / frequency monitor.
	Clock
	// Memory is the uncorrectable-ECC monitor.
	Memory

	numSources
)

// NumSources sizes per-source tables.
const NumSources = int(numSources)

func (s Source) String() string {
	switch s {
	case Power:
		return "power"
	case Clock:
		return "clock"
	case Memory:
		return "memory"
	default:
		return "unknown"
	}
}

// Valid reports whether s names a monitored source.
func (s Source) Valid() bool {
	return s >= 0 && s < numSources
}

// Sources returns every source in declaration order, so callers iterate
// the enumeration exhaustively instead of testing ad hoc bit masks.
func Sources() [NumSources]Source {
	return [NumSources]Source{Power, Clock, Memory}
}

// ParseSource maps a configuration or command-line name to a Source.
func ParseSource(name string) (Source, error) {
	for _, s := range Sources() {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSource, name)
}

// Priority is a strict arbitration rank; a higher value preempts a lower
// one.
type Priority int

// PriorityTable assigns each source its rank. A usable table is total and
// strict: every source ranked at least 1, no two sources tied.
type PriorityTable [NumSources]Priority

// DefaultPriorities ranks Power above Clock above Memory.
func DefaultPriorities() PriorityTable {
	var t PriorityTable
	t[Power] = 3
	t[Clock] = 2
	t[Memory] = 1
	return t
}

// Validate rejects partial or tied tables.
func (t PriorityTable) Validate() error {
	for _, src := range Sources() {
		if t[src] < 1 {
			return fmt.Errorf("source %s has no priority rank", src)
		}
	}
	srcs := Sources()
	for i, src := range srcs {
		for _, other := range srcs[i+1:] {
			if t[src] == t[other] {
				return fmt.Errorf("sources %s and %s tie at rank %d", src, other, t[src])
			}
		}
	}
	return nil
}
