// Package config is the YAML configuration surface for the supervisor.
// A file overrides the defaults key by key; absent keys keep their
// default values. Load gives file and key context to every error, since
// configuration problems surface far from the file that caused them.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"faultguard/ecc"
	"faultguard/fault"
	"faultguard/safety"
)

// SourceConfig is one monitored source's section.
type SourceConfig struct {
	// Priority is the arbitration rank; a higher value preempts a lower
	// one. Every source needs a rank and no two may tie.
	Priority int `yaml:"priority"`
	// TimeoutTicks bounds how long the raw signal may stay asserted
	// before the recovery attempt is abandoned.
	TimeoutTicks uint32 `yaml:"timeout_ticks"`
	// StabilityTicks is the dwell: consecutive clear ticks required
	// before a recovery is trusted.
	StabilityTicks uint32 `yaml:"stability_ticks"`
	// Escalation is what a recovery timeout escalates to: "safe-state"
	// or "re-arm".
	Escalation string `yaml:"escalation"`
}

// ECCConfig is the memory checker section.
type ECCConfig struct {
	Enabled bool `yaml:"enabled"`
	// SBEThreshold is the single-bit error count that raises a memory
	// fault, 0..31; 0 counts without raising.
	SBEThreshold uint8 `yaml:"sbe_threshold"`
}

// Config mirrors the configuration file.
type Config struct {
	Power  SourceConfig `yaml:"power"`
	Clock  SourceConfig `yaml:"clock"`
	Memory SourceConfig `yaml:"memory"`
	ECC    ECCConfig    `yaml:"ecc"`
	// TickPeriod is the periodic task interval as a duration string,
	// for example "10ms".
	TickPeriod string `yaml:"tick_period"`
	// Verbose lowers the log severity floor to debug.
	Verbose bool `yaml:"verbose"`
}

// Default returns the boot configuration: Power > Clock > Memory
// arbitration, a 10-tick timeout and 5-tick dwell everywhere, safe-state
// escalation, ECC enabled at a single-bit threshold of 10, 10ms ticks.
func Default() *Config {
	src := func(prio int) SourceConfig {
		return SourceConfig{
			Priority:       prio,
			TimeoutTicks:   10,
			StabilityTicks: 5,
			Escalation:     safety.EscalateSafeState.String(),
		}
	}
	return &Config{
		Power:      src(3),
		Clock:      src(2),
		Memory:     src(1),
		ECC:        ECCConfig{Enabled: true, SBEThreshold: 10},
		TickPeriod: "10ms",
	}
}

// Load reads a configuration file over the defaults and validates the
// result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	if _, err := cfg.Params(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func (c *Config) source(src fault.Source) SourceConfig {
	switch src {
	case fault.Power:
		return c.Power
	case fault.Clock:
		return c.Clock
	default:
		return c.Memory
	}
}

// Params maps the file surface onto supervisor parameters, validating as
// it goes.
func (c *Config) Params() (safety.Params, error) {
	p := safety.Params{
		ECC: ecc.ServiceConfig{
			Enabled:      c.ECC.Enabled,
			SBEThreshold: c.ECC.SBEThreshold,
		},
	}
	for _, src := range fault.Sources() {
		sc := c.source(src)
		p.Priorities[src] = fault.Priority(sc.Priority)
		p.Recovery[src] = safety.SubConfig{
			TimeoutTicks:   sc.TimeoutTicks,
			StabilityTicks: sc.StabilityTicks,
		}
		pol, err := safety.ParseEscalationPolicy(sc.Escalation)
		if err != nil {
			return safety.Params{}, errors.Wrap(err, src.String())
		}
		p.Escalation[src] = pol
	}
	if c.TickPeriod != "" {
		d, err := time.ParseDuration(c.TickPeriod)
		if err != nil {
			return safety.Params{}, errors.Wrap(err, "tick_period")
		}
		p.TickPeriod = d
	}
	if err := p.Validate(); err != nil {
		return safety.Params{}, err
	}
	return p, nil
}
