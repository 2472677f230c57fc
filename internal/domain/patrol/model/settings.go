// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"fmt"
	"strconv"
)

// Setting is a process-wide configuration key/value row, stored as text with
// typed accessors applied at the call site.
type Setting struct {
	Key   string
	Value string
}

// SettingsMap is the whole-map view returned by Store.GetSettings.
type SettingsMap map[string]string

// Int returns the integer value for key, or def if absent/unparsable.
func (m SettingsMap) Int(key string, def int) int {
	v, ok := m[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Bool returns the boolean value for key, or def if absent/unparsable.
func (m SettingsMap) Bool(key string, def bool) bool {
	v, ok := m[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Float returns the float value for key, or def if absent/unparsable.
func (m SettingsMap) Float(key string, def float64) float64 {
	v, ok := m[key]
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// String returns the string value for key, or def if absent.
func (m SettingsMap) String(key string, def string) string {
	v, ok := m[key]
	if !ok || v == "" {
		return def
	}
	return v
}

// settingValidators recognizes the configuration keys of §6 and the typed
// effect each one has; a key absent from this map (broker endpoints and
// credentials, any future operator-defined key) is accepted as an opaque
// string. Keys present here must parse to the listed type.
var settingValidators = map[string]func(string) error{
	"lowBatteryPercent":              validateIntRange(0, 100),
	"defaultMovementSpeedTier":       validateSpeedTier,
	"homeBaseWaypoint":               validateAny,
	"arrivalActionDelaySeconds":      validateNonNegativeInt,
	"ttsWaitSeconds":                 validateNonNegativeInt,
	"displayWaitSeconds":             validateNonNegativeInt,
	"webviewCloseDelaySeconds":       validateNonNegativeInt,
	"detectionTimeoutSeconds":        validateNonNegativeInt,
	"noViolationHoldSeconds":         validateNonNegativeInt,
	"highViolationThreshold":         validateNonNegativeInt,
	"patrolStopHomeTimeoutSeconds":   validateNonNegativeInt,
	"patrolStopAlwaysSendHome":       validateBoolString,
	"yoloShutdownTimeoutSeconds":     validateNonNegativeInt,
	"violationDebounceWindowSeconds": validateNonNegativeInt,
	"violationSmoothingFactor":       validateFloatRange(0, 1),
	"outlierZ":                       validatePositiveFloat,
}

// ValidateSetting checks a single key/value pair against the typed effect §6
// assigns to recognized keys. Unrecognized keys (broker endpoints,
// credentials, operator extensions) pass through unvalidated.
func ValidateSetting(key, value string) error {
	if key == "" {
		return fmt.Errorf("empty setting key")
	}
	if validate, known := settingValidators[key]; known {
		if err := validate(value); err != nil {
			return fmt.Errorf("setting %q: %w", key, err)
		}
	}
	return nil
}

func validateAny(string) error { return nil }

func validateIntRange(min, max int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("not an integer: %v", err)
		}
		if n < min || n > max {
			return fmt.Errorf("must be between %d and %d, got %d", min, max, n)
		}
		return nil
	}
}

func validateNonNegativeInt(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("not an integer: %v", err)
	}
	if n < 0 {
		return fmt.Errorf("must be non-negative, got %d", n)
	}
	return nil
}

func validateBoolString(v string) error {
	if _, err := strconv.ParseBool(v); err != nil {
		return fmt.Errorf("not a boolean: %v", err)
	}
	return nil
}

func validateFloatRange(min, max float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("not a number: %v", err)
		}
		if f < min || f > max {
			return fmt.Errorf("must be between %v and %v, got %v", min, max, f)
		}
		return nil
	}
}

func validatePositiveFloat(v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("not a number: %v", err)
	}
	if f <= 0 {
		return fmt.Errorf("must be positive, got %v", f)
	}
	return nil
}

func validateSpeedTier(v string) error {
	switch SpeedTier(v) {
	case SpeedLow, SpeedMedium, SpeedHigh:
		return nil
	default:
		return fmt.Errorf("must be one of low|medium|high, got %q", v)
	}
}
