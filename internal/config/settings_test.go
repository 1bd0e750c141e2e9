package config

import (
	"testing"

	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeValueAcceptsPlainSeconds(t *testing.T) {
	seconds, err := ParseTimeValue("45")
	require.NoError(t, err)
	assert.Equal(t, uint64(45), seconds)
}

func TestParseTimeValueAcceptsMinutesSeconds(t *testing.T) {
	seconds, err := ParseTimeValue("2:30")
	require.NoError(t, err)
	assert.Equal(t, uint64(150), seconds)
}

func TestParseTimeValueAcceptsHoursMinutesSeconds(t *testing.T) {
	seconds, err := ParseTimeValue("1:02:03")
	require.NoError(t, err)
	assert.Equal(t, uint64(3723), seconds, "hours*3600 + minutes*60 + seconds, each field parsed independently")
}

func TestParseTimeValueRejectsUnparsableSecondsFieldInsteadOfReusingMinutes(t *testing.T) {
	// Regression for the original CLI handler's bug: it parsed the
	// seconds field from the minutes index a second time, so a typo'd
	// seconds field silently fell back to the minutes value instead of
	// failing. "1:02:xx" must be rejected outright.
	_, err := ParseTimeValue("1:02:xx")
	assert.Error(t, err)
}

func TestParseTimeValueRejectsMalformedFields(t *testing.T) {
	_, err := ParseTimeValue("a:b")
	assert.Error(t, err)

	_, err = ParseTimeValue("1:2:3:4")
	assert.Error(t, err)
}

func TestValidateSightingPeriodAndUploadInterval(t *testing.T) {
	assert.NoError(t, Validate(model.SettingSightingPeriod, "5:00"))
	assert.Error(t, Validate(model.SettingSightingPeriod, "not-a-time"))
	assert.NoError(t, Validate(model.SettingUploadInterval, "10"))
}

func TestValidateChipType(t *testing.T) {
	assert.NoError(t, Validate(model.SettingChipType, "DEC"))
	assert.NoError(t, Validate(model.SettingChipType, "HEX"))
	assert.Error(t, Validate(model.SettingChipType, "OCT"))
}

func TestValidateBooleanSettings(t *testing.T) {
	assert.NoError(t, Validate(model.SettingPlaySound, "true"))
	assert.Error(t, Validate(model.SettingAutoRemote, "maybe"))
}

func TestWithDefaultsFillsMissingKeysWithoutOverwritingPresent(t *testing.T) {
	current := map[string]string{model.SettingChipType: "HEX"}
	merged := WithDefaults(current)

	assert.Equal(t, "HEX", merged[model.SettingChipType])
	assert.Equal(t, Defaults[model.SettingSightingPeriod], merged[model.SettingSightingPeriod])
}
