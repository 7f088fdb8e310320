package models

import "github.com/pkg/errors"

// GroupConfig holds the tunable parameters that govern admission, ejection,
// and governance for one group. Every field has a default and a validated
// range; SetConfig deltas may only move a key within its range.
type GroupConfig struct {
	MinVouches             uint32  `cbor:"1,keyasint"`
	MaxFlags               uint32  `cbor:"2,keyasint"`
	OpenMembership         bool    `cbor:"3,keyasint"`
	DefaultPollTimeoutSecs uint64  `cbor:"4,keyasint"`
	ConfigChangeThreshold  float32 `cbor:"5,keyasint"`
	MinQuorum              float32 `cbor:"6,keyasint"`
}

// DefaultGroupConfig returns the spec-mandated defaults.
func DefaultGroupConfig() GroupConfig {
	return GroupConfig{
		MinVouches:             2,
		MaxFlags:               3,
		OpenMembership:         false,
		DefaultPollTimeoutSecs: 172800,
		ConfigChangeThreshold:  0.70,
		MinQuorum:              0.50,
	}
}

// ConfigKeyRange describes one GroupConfig key's type and valid range, used
// by both the governance key registry and direct SetConfig validation.
type ConfigKeyRange struct {
	Key    string
	MinU   uint64
	MaxU   uint64
	MinF   float32
	MaxF   float32
	IsBool bool
	IsU64  bool
	IsF32  bool
}

// ConfigKeyRegistry enumerates every mutable GroupConfig key with its valid
// range, per spec.md §3's GroupConfig table and §4.12's governance key
// registry.
var ConfigKeyRegistry = map[string]ConfigKeyRange{
	"min_vouches":                 {Key: "min_vouches", MinU: 1, MaxU: 10, IsU64: true},
	"max_flags":                   {Key: "max_flags", MinU: 1, MaxU: 10, IsU64: true},
	"open_membership":             {Key: "open_membership", IsBool: true},
	"default_poll_timeout_secs":   {Key: "default_poll_timeout_secs", MinU: 3600, MaxU: 604800, IsU64: true},
	"config_change_threshold":     {Key: "config_change_threshold", MinF: 0.50, MaxF: 1.00, IsF32: true},
	"min_quorum":                  {Key: "min_quorum", MinF: 0.25, MaxF: 1.00, IsF32: true},
}

// ValidateUint checks a candidate u64 value against a registered key's range.
func (r ConfigKeyRange) ValidateUint(v uint64) error {
	if !r.IsU64 {
		return errors.Errorf("config key %q is not an integer key", r.Key)
	}
	if v < r.MinU || v > r.MaxU {
		return errors.Errorf("config key %q value %d out of range [%d,%d]", r.Key, v, r.MinU, r.MaxU)
	}
	return nil
}

// ValidateFloat checks a candidate f32 value against a registered key's range.
func (r ConfigKeyRange) ValidateFloat(v float32) error {
	if !r.IsF32 {
		return errors.Errorf("config key %q is not a float key", r.Key)
	}
	if v < r.MinF || v > r.MaxF {
		return errors.Errorf("config key %q value %f out of range [%f,%f]", r.Key, v, r.MinF, r.MaxF)
	}
	return nil
}

// Validate reports whether every field of the config is within its
// registered range — the gate SetConfig deltas must pass before commit.
func (c GroupConfig) Validate() error {
	if r := ConfigKeyRegistry["min_vouches"]; uint64(c.MinVouches) < r.MinU || uint64(c.MinVouches) > r.MaxU {
		return errors.Errorf("min_vouches %d out of range [%d,%d]", c.MinVouches, r.MinU, r.MaxU)
	}
	if r := ConfigKeyRegistry["max_flags"]; uint64(c.MaxFlags) < r.MinU || uint64(c.MaxFlags) > r.MaxU {
		return errors.Errorf("max_flags %d out of range [%d,%d]", c.MaxFlags, r.MinU, r.MaxU)
	}
	if r := ConfigKeyRegistry["default_poll_timeout_secs"]; c.DefaultPollTimeoutSecs < r.MinU || c.DefaultPollTimeoutSecs > r.MaxU {
		return errors.Errorf("default_poll_timeout_secs %d out of range [%d,%d]", c.DefaultPollTimeoutSecs, r.MinU, r.MaxU)
	}
	if r := ConfigKeyRegistry["config_change_threshold"]; c.ConfigChangeThreshold < r.MinF || c.ConfigChangeThreshold > r.MaxF {
		return errors.Errorf("config_change_threshold %f out of range [%f,%f]", c.ConfigChangeThreshold, r.MinF, r.MaxF)
	}
	if r := ConfigKeyRegistry["min_quorum"]; c.MinQuorum < r.MinF || c.MinQuorum > r.MaxF {
		return errors.Errorf("min_quorum %f out of range [%f,%f]", c.MinQuorum, r.MinF, r.MaxF)
	}
	return nil
}
