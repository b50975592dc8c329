package common

import "math"

// Sat16 is a 16-bit event counter that clamps at its maximum value instead
// of wrapping. Diagnostic counters must never roll over to zero: a wrapped
// counter reads as "almost no events" at exactly the moment the system has
// seen the most.
type Sat16 uint16

// Inc increments the counter, clamping at math.MaxUint16.
func (c *Sat16) Inc() {
	if *c < math.MaxUint16 {
		*c++
	}
}

// Value returns the current count.
func (c Sat16) Value() uint16 {
	return uint16(c)
}

// Saturated reports whether the counter has reached its maximum.
func (c Sat16) Saturated() bool {
	return c == math.MaxUint16
}

// Reset returns the counter to zero.
func (c *Sat16) Reset() {
	*c = 0
}

// Sat32 is the 32-bit variant of Sat16, used for long-lived counts such as
// tick uptime and attempts-since-boot.
type Sat32 uint32

// Inc increments the counter, clamping at math.MaxUint32.
func (c *Sat32) Inc() {
	if *c < math.MaxUint32 {
		*c++
	}
}

// Value returns the current count.
func (c Sat32) Value() uint32 {
	return uint32(c)
}

// Saturated reports whether the counter has reached its maximum.
func (c Sat32) Saturated() bool {
	return c == math.MaxUint32
}

// Reset returns the counter to zero.
func (c *Sat32) Reset() {
	*c = 0
}
