// Package config holds the settings schema of spec §6: defaults,
// typed parsing/validation for every SETTING_* key, and the
// colon-separated time-value parser used for duration-valued
// settings.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/internal/portalerr"
)

// Defaults holds the value every setting takes before an operator (or
// a prior database) overrides it (spec §6).
var Defaults = map[string]string{
	model.SettingSightingPeriod: "300",
	model.SettingChipType:       string(model.ChipTypeDEC),
	model.SettingReadWindow:     "20",
	model.SettingPlaySound:      "true",
	model.SettingVolume:         "1.0",
	model.SettingVoice:          string(model.VoiceEmily),
	model.SettingAutoRemote:     "false",
	model.SettingUploadInterval: "10",
	model.SettingEnableNtfy:     "false",
}

// DefaultPortalName builds the default portal name for a given host
// suffix byte (spec §6 "Chrono Portal <u8>"), e.g. a device-specific
// nonce stored alongside the install rather than derived at runtime.
func DefaultPortalName(suffix uint8) string {
	return fmt.Sprintf("Chrono Portal %d", suffix)
}

// Validate checks a proposed value for key against its type, per spec
// §6 and Open Question (a). It never partially applies a change: a
// malformed value is rejected outright rather than falling back to
// reusing a previously parsed field.
func Validate(key, value string) error {
	switch key {
	case model.SettingSightingPeriod, model.SettingUploadInterval:
		_, err := ParseTimeValue(value)
		return wrapConfigErr(key, err)
	case model.SettingReadWindow:
		_, err := strconv.ParseUint(value, 10, 8)
		return wrapConfigErr(key, err)
	case model.SettingPlaySound, model.SettingAutoRemote, model.SettingEnableNtfy:
		_, err := strconv.ParseBool(value)
		return wrapConfigErr(key, err)
	case model.SettingVolume:
		_, err := strconv.ParseFloat(value, 64)
		return wrapConfigErr(key, err)
	case model.SettingChipType:
		if value != string(model.ChipTypeDEC) && value != string(model.ChipTypeHEX) {
			return wrapConfigErr(key, fmt.Errorf("must be %q or %q", model.ChipTypeDEC, model.ChipTypeHEX))
		}
		return nil
	default:
		return nil
	}
}

func wrapConfigErr(key string, err error) error {
	if err == nil {
		return nil
	}
	return &portalerr.ConfigError{Key: key, Reason: err.Error()}
}

// ParseTimeValue parses a settings value shaped like a plain integer
// number of seconds, "MM:SS", or "HH:MM:SS" and returns the total
// number of seconds. This resolves Open Question (a): the original
// `change_setting` CLI handler's three-part branch parsed the seconds
// field from the minutes index a second time instead of the seconds
// index, silently reusing a stale value on a genuine parse failure;
// here every field must parse on its own or the whole value is
// rejected.
func ParseTimeValue(value string) (uint64, error) {
	parts := strings.Split(value, ":")
	switch len(parts) {
	case 1:
		seconds, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid seconds value %q", value)
		}
		return seconds, nil
	case 2:
		minutes, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid minutes field in %q", value)
		}
		seconds, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid seconds field in %q", value)
		}
		return minutes*60 + seconds, nil
	case 3:
		hours, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid hours field in %q", value)
		}
		minutes, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid minutes field in %q", value)
		}
		seconds, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid seconds field in %q", value)
		}
		return hours*3600 + minutes*60 + seconds, nil
	default:
		return 0, fmt.Errorf("invalid time value %q: expected SS, MM:SS, or HH:MM:SS", value)
	}
}

// WithDefaults returns a copy of current with any missing key filled
// in from Defaults, used when rendering settings to the control
// protocol so every known key is always present.
func WithDefaults(current map[string]string) map[string]string {
	out := make(map[string]string, len(Defaults))
	for k, v := range Defaults {
		out[k] = v
	}
	for k, v := range current {
		out[k] = v
	}
	return out
}
