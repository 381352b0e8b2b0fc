package models

import "time"

// HeatingStatus is a fresh scrape of a thermostat's state. Fields the page
// did not yield stay nil (or ModeUnknown); Partial marks such reads so
// callers can tell a degraded result from a complete one. Statuses are never
// cached: the portal is the single source of truth.
type HeatingStatus struct {
	Device      string    `json:"device"`
	CurrentTemp *float64  `json:"current_temp,omitempty"`
	TargetTemp  *float64  `json:"target_temp,omitempty"`
	Mode        Mode      `json:"mode"`
	IsHeating   *bool     `json:"is_heating,omitempty"`
	Partial     bool      `json:"partial"`
	ReadAt      time.Time `json:"read_at"`
}

// Complete reports whether every field was readable.
func (s HeatingStatus) Complete() bool {
	return s.CurrentTemp != nil && s.TargetTemp != nil && s.IsHeating != nil && s.Mode != ModeUnknown
}
