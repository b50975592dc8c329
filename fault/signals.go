package fault

import "sync/atomic"

// Signals is an in-memory raw-signal bank standing in for the sensing
// hardware. The producing side asserts and deasserts levels from any
// goroutine; the periodic task samples each level once per tick. Levels
// are instantaneous, unlike the latched dual-rail flags: a level can come
// and go between polls, which is exactly what the recovery dwell exists
// to tolerate.
type Signals struct {
	levels [NumSources]atomic.Bool
}

// NewSignals returns a bank with every level deasserted.
func NewSignals() *Signals {
	return &Signals{}
}

// Assert raises the raw level for src. Unknown sources are dropped, same
// as Store.Set: the producing path cannot report an error.
func (s *Signals) Assert(src Source) {
	if src.Valid() {
		s.levels[src].Store(true)
	}
}

// Deassert drops the raw level for src.
func (s *Signals) Deassert(src Source) {
	if src.Valid() {
		s.levels[src].Store(false)
	}
}

// Raw samples the current level for src. Unknown sources read deasserted.
func (s *Signals) Raw(src Source) bool {
	return src.Valid() && s.levels[src].Load()
}
