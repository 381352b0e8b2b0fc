package models

import (
	"fmt"
	"strings"
)

// Mode is the operating state of a thermostat as shown by the portal.
type Mode string

const (
	ModeHeat    Mode = "heat"
	ModeAuxHeat Mode = "aux_heat"
	ModeCool    Mode = "cool"
	ModeAuto    Mode = "auto"
	ModeOff     Mode = "off"

	// ModeUnknown is the sentinel for a mode that could not be read from the
	// page. It is never a valid transition target.
	ModeUnknown Mode = "unknown"
)

// ParseMode normalizes user/portal input to a Mode. "aux" is accepted as the
// portal's shorthand for aux_heat.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "heat":
		return ModeHeat, nil
	case "aux", "aux_heat", "auxheat", "aux heat":
		return ModeAuxHeat, nil
	case "cool":
		return ModeCool, nil
	case "auto":
		return ModeAuto, nil
	case "off":
		return ModeOff, nil
	}
	return ModeUnknown, fmt.Errorf("invalid mode %q: must be one of heat, aux_heat, cool, auto, off", s)
}

// Valid reports whether m is a mode that can be requested.
func (m Mode) Valid() bool {
	switch m {
	case ModeHeat, ModeAuxHeat, ModeCool, ModeAuto, ModeOff:
		return true
	}
	return false
}
