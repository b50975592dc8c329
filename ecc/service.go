package ecc

import (
	"fmt"

	"faultguard/common"
)

// MaxSBEThreshold is the largest configurable single-bit error threshold.
const MaxSBEThreshold = 31

// ServiceConfig carries the checker policy.
type ServiceConfig struct {
	// Enabled gates the whole checker. A disabled service passes data
	// through without decoding, counting, or raising faults.
	Enabled bool
	// SBEThreshold is the single-bit error count at which the service
	// raises a memory fault. 0 means single-bit errors are counted but
	// never raised; multi-bit detections always raise.
	SBEThreshold uint8
}

// Validate checks the config against the hardware limits.
func (c ServiceConfig) Validate() error {
	if c.SBEThreshold > MaxSBEThreshold {
		return fmt.Errorf("sbe threshold %d out of range 0..%d", c.SBEThreshold, MaxSBEThreshold)
	}
	return nil
}

// ServiceStatus is a point-in-time snapshot of the checker.
type ServiceStatus struct {
	Enabled      bool
	SBEThreshold uint8
	SBECount     uint16
	MBECount     uint16
	SBESaturated bool
	MBESaturated bool
	Last         Result
}

// Service wraps the codec with error accounting. Single-bit corrections are
// counted; once they cross the configured threshold, or on any multi-bit
// detection, the service raises the memory fault through the supplied hook.
// Not safe for concurrent use; the periodic task owns it.
type Service struct {
	cfg   ServiceConfig
	sbe   common.Sat16
	mbe   common.Sat16
	last  Result
	raise func()
}

// NewService builds a checker with the given policy. raise is invoked to
// assert the memory fault flag and must be safe from the calling context;
// nil means fault raising is wired up later or not at all.
func NewService(cfg ServiceConfig, raise func()) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if raise == nil {
		raise = func() {}
	}
	return &Service{cfg: cfg, raise: raise}, nil
}

// Process runs one word through the checker. With the service disabled the
// word passes through untouched and nothing is recorded.
func (s *Service) Process(data uint64, check uint8) (uint64, Result) {
	if !s.cfg.Enabled {
		return data, Result{Class: ClassNone}
	}

	corrected, res := Decode(data, check)
	s.last = res

	switch res.Class {
	case ClassSingleBit:
		s.sbe.Inc()
		if s.cfg.SBEThreshold > 0 && s.sbe.Value() >= uint16(s.cfg.SBEThreshold) {
			s.raise()
		}
	case ClassMultiBit:
		s.mbe.Inc()
		s.raise()
	}
	return corrected, res
}

// Reconfigure replaces the checker policy. Counters are preserved.
func (s *Service) Reconfigure(cfg ServiceConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}

// Status reports counters, saturation, and the last classification.
func (s *Service) Status() ServiceStatus {
	return ServiceStatus{
		Enabled:      s.cfg.Enabled,
		SBEThreshold: s.cfg.SBEThreshold,
		SBECount:     s.sbe.Value(),
		MBECount:     s.mbe.Value(),
		SBESaturated: s.sbe.Saturated(),
		MBESaturated: s.mbe.Saturated(),
		Last:         s.last,
	}
}

// ResetCounters clears the error counters and the last classification.
// The caller is responsible for gating this on "no fault active".
func (s *Service) ResetCounters() {
	s.sbe.Reset()
	s.mbe.Reset()
	s.last = Result{}
}
