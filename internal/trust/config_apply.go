package trust

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/roder/stroma/pkg/models"
)

// applyConfigValue parses value against key's declared type and range,
// then writes it into cfg. Parsing and range checks share one path so a
// SetConfig delta and a governance-resolved config change are validated
// identically.
func applyConfigValue(cfg *models.GroupConfig, reg models.ConfigKeyRange, key, value string) error {
	switch {
	case reg.IsBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errors.Wrapf(err, "config key %q: not a bool", key)
		}
		if key == "open_membership" {
			cfg.OpenMembership = b
		}
	case reg.IsU64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "config key %q: not an integer", key)
		}
		if err := reg.ValidateUint(u); err != nil {
			return err
		}
		switch key {
		case "min_vouches":
			cfg.MinVouches = uint32(u)
		case "max_flags":
			cfg.MaxFlags = uint32(u)
		case "default_poll_timeout_secs":
			cfg.DefaultPollTimeoutSecs = u
		}
	case reg.IsF32:
		f, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return errors.Wrapf(err, "config key %q: not a float", key)
		}
		if err := reg.ValidateFloat(float32(f)); err != nil {
			return err
		}
		switch key {
		case "config_change_threshold":
			cfg.ConfigChangeThreshold = float32(f)
		case "min_quorum":
			cfg.MinQuorum = float32(f)
		}
	default:
		return errors.Errorf("config key %q: unrecognized type", key)
	}
	return nil
}
