// Package dualrail provides corruption-evident storage cells: every value
// is stored together with its bitwise complement, and every read checks
// that the two rails still complement each other. A single upset on either
// rail turns into a detectable mismatch instead of a silently wrong value.
//
// The accessor is the only way to get a value out, so the validity check
// cannot be forgotten at a call site. Writers publish both rails with one
// atomic store; readers validate instead of locking.
package dualrail

import "sync/atomic"

// Word is an 8-bit dual-rail cell. The zero Word reads as corrupted;
// initialize it with Store before first use, so an uninitialized cell
// fails closed rather than reading as a plausible value.
type Word struct {
	// value in bits 0..7, complement in bits 8..15
	rails atomic.Uint32
}

func pack(v uint8) uint32 {
	return uint32(v) | uint32(^v)<<8
}

// Store writes the value and its complement as one indivisible operation.
// Safe from any context: one atomic store, no allocation.
func (w *Word) Store(v uint8) {
	w.rails.Store(pack(v))
}

// Load returns the stored value. ok is false when the rails no longer
// complement each other, in which case the value must not be trusted.
func (w *Word) Load() (v uint8, ok bool) {
	r := w.rails.Load()
	v = uint8(r)
	return v, v^uint8(r>>8) == 0xFF
}

// Corrupt forces both rails to the same bits so every subsequent Load
// reports a mismatch. Used when an invariant breach must stay visible
// until someone repairs the cell with Store.
func (w *Word) Corrupt() {
	r := w.rails.Load()
	v := uint32(uint8(r))
	w.rails.Store(v | v<<8)
}

// Flag encodings. These are the on-rail byte values, so a dump of the cell
// matches what the supervisor reports.
const (
	flagClear uint8 = 0x00
	flagSet   uint8 = 0x01
)

// ReentryCap bounds how deeply concurrent Set deliveries may nest before
// the cell is declared corrupted. Past the cap the flag can no longer
// promise single-writer ordering, so it stops pretending to.
const ReentryCap = 8

// Flag is a boolean dual-rail cell with a bounded reentry guard. Set is
// the only entry point intended for event context; it performs a fixed
// number of atomic operations and never allocates.
type Flag struct {
	word  Word
	depth atomic.Int32
}

// Reset initializes the flag to the valid clear pair and zeroes the
// reentry depth. Called at boot and by diagnostics.
func (f *Flag) Reset() {
	f.depth.Store(0)
	f.word.Store(flagClear)
}

// Set asserts the flag. When the reentry cap is exceeded the cell is
// corrupted instead of asserted: readers must see the overrun, not a
// clean-looking fault bit.
func (f *Flag) Set() {
	depth := f.depth.Add(1)
	defer f.depth.Add(-1)
	if depth > ReentryCap {
		f.word.Corrupt()
		return
	}
	f.word.Store(flagSet)
}

// Clear deasserts the flag. Task-context only; clearing also repairs a
// corrupted cell, which is how diagnostics re-arm a source after handling
// the corruption.
func (f *Flag) Clear() {
	f.word.Store(flagClear)
}

// Read reports whether the flag is set. ok is false on a rail mismatch
// and also when the rails hold a valid complement pair that is not one of
// the two flag encodings; the cell's writers only ever produce set or
// clear, so anything else is corruption too.
func (f *Flag) Read() (set bool, ok bool) {
	v, ok := f.word.Load()
	if !ok {
		return false, false
	}
	switch v {
	case flagSet:
		return true, true
	case flagClear:
		return false, true
	default:
		return false, false
	}
}

// Corrupt forces the flag into the corrupted state, for fault-injection
// paths and tests.
func (f *Flag) Corrupt() {
	f.word.Corrupt()
}
