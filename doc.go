// Package faultguard is a deterministic fault supervisor core: dual-rail
// latched fault flags, priority aggregation, a redundant safety state
// machine with per-source recovery sub-machines, an ECC codec with a
// service layer, a power-mode controller, and fault statistics.
//
// The supervisor advances on an explicit tick. Sampling, aggregation,
// recovery bookkeeping, and state transitions happen in a fixed order
// within each tick, so any fault sequence can be replayed exactly; the
// internal/scenario package and the faultmon CLI build on that.
package faultguard
