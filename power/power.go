// Package power models the power-mode side of safe-state handling. The
// commanded mode lives in a dual-rail word so that a corrupted command
// is detected on read rather than acted on. Voltage sensing and the
// register interface behind mode changes are outside this package; it
// tracks intent, which is what the supervisor arbitrates over.
package power

import (
	"errors"
	"fmt"

	"faultguard/dualrail"
)

// Mode is the commanded power mode. Encodings are spread out so a decayed
// cell does not silently read as a neighboring mode.
type Mode uint8

const (
	// ModeNormal: full operation, writes enabled.
	ModeNormal Mode = 0x0A
	// ModeSafeState: critical operations halted, waiting for recovery.
	ModeSafeState Mode = 0x05
	// ModeShutdown: terminal; nothing leaves this mode.
	ModeShutdown Mode = 0x0F
	// ModeInvalid is returned for corrupted or undefined mode cells. It
	// is never stored.
	ModeInvalid Mode = 0xFF
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeSafeState:
		return "safe-state"
	case ModeShutdown:
		return "shutdown"
	case ModeInvalid:
		return "invalid"
	default:
		return "undefined"
	}
}

// Known reports whether m is a storable mode.
func (m Mode) Known() bool {
	switch m {
	case ModeNormal, ModeSafeState, ModeShutdown:
		return true
	}
	return false
}

var (
	// ErrModeCorrupted reports a dual-rail mismatch or an undefined
	// encoding in the mode cell.
	ErrModeCorrupted = errors.New("power mode cell corrupted")
	// ErrShutdown reports an operation on a shut-down controller.
	ErrShutdown = errors.New("controller is shut down")
	// ErrNotSafeState reports a recovery request outside safe-state.
	ErrNotSafeState = errors.New("recovery requires safe-state mode")
)

// Controller tracks the commanded power mode. Mutation belongs to the
// periodic task; Mode is safe to call from anywhere.
type Controller struct {
	mode dualrail.Word
}

// NewController boots the controller in ModeNormal.
func NewController() *Controller {
	c := &Controller{}
	c.mode.Store(uint8(ModeNormal))
	return c
}

// Mode returns the commanded mode. Corruption comes back as ModeInvalid
// with ErrModeCorrupted.
func (c *Controller) Mode() (Mode, error) {
	v, ok := c.mode.Load()
	if !ok {
		return ModeInvalid, ErrModeCorrupted
	}
	m := Mode(v)
	if !m.Known() {
		return ModeInvalid, fmt.Errorf("%w: undefined encoding %#02x", ErrModeCorrupted, v)
	}
	return m, nil
}

// EnterSafeState commands safe-state. This is the supervisor's escalation
// target and is refused only when the controller is already shut down; in
// particular a corrupted mode cell is overwritten, not reported, since the
// entire point of the call is to reach a known-safe configuration.
// Entering safe-state from safe-state is a no-op success.
func (c *Controller) EnterSafeState() error {
	if m, err := c.Mode(); err == nil && m == ModeShutdown {
		return ErrShutdown
	}
	c.mode.Store(uint8(ModeSafeState))
	return nil
}

// RequestRecovery returns the controller to normal mode. Legal only from
// safe-state: recovery is a deliberate step out of a commanded safe-state,
// never a way to paper over a corrupted or shut-down controller.
func (c *Controller) RequestRecovery() error {
	m, err := c.Mode()
	if err != nil {
		return err
	}
	switch m {
	case ModeSafeState:
		c.mode.Store(uint8(ModeNormal))
		return nil
	case ModeShutdown:
		return ErrShutdown
	default:
		return fmt.Errorf("%s: %w", m, ErrNotSafeState)
	}
}

// Shutdown commands the terminal mode. Always accepted; there is no
// stricter place to fail to.
func (c *Controller) Shutdown() {
	c.mode.Store(uint8(ModeShutdown))
}

// WritesEnabled reports whether write operations are permitted. Only
// ModeNormal enables writes; corruption fails closed.
func (c *Controller) WritesEnabled() bool {
	m, err := c.Mode()
	return err == nil && m == ModeNormal
}

// Reset returns the controller to ModeNormal unconditionally. Boot and
// test scenarios only.
func (c *Controller) Reset() {
	c.mode.Store(uint8(ModeNormal))
}

// corrupt forces a rail mismatch on the mode cell, for fault injection.
func (c *Controller) corrupt() {
	c.mode.Corrupt()
}
