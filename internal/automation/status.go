package automation

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"ecobee_automation/internal/logger"
	"ecobee_automation/internal/models"
)

// NavigatorSource yields the navigator of the live session. Indirection keeps
// readers valid across browser relaunches.
type NavigatorSource interface {
	Navigator() Navigator
}

// StatusReader scrapes a thermostat's state from the portal page. Each field
// degrades independently: a temperature span the portal renamed must not take
// down the mode read. Only when every field is unreadable does the read fail.
type StatusReader struct {
	source NavigatorSource
	log    *logger.Logger
}

func NewStatusReader(source NavigatorSource, log *logger.Logger) *StatusReader {
	return &StatusReader{source: source, log: log}
}

// Read scrapes the currently selected device. The caller is responsible for
// having pointed the session at the right thermostat first.
func (r *StatusReader) Read(ctx context.Context, device string) (models.HeatingStatus, error) {
	nav := r.source.Navigator()
	status := models.HeatingStatus{
		Device: device,
		Mode:   models.ModeUnknown,
		ReadAt: time.Now().UTC(),
	}

	var failed int

	if text, err := nav.ReadText(ctx, "status.current_temp"); err != nil {
		r.log.Warnw("status_field_unreadable", "device", device, "field", "current_temp", "err", err)
		failed++
	} else if v, err := parseTemp(text); err != nil {
		r.log.Warnw("status_field_unparseable", "device", device, "field", "current_temp", "text", text)
		failed++
	} else {
		status.CurrentTemp = &v
	}

	if text, err := nav.ReadText(ctx, "status.target_temp"); err != nil {
		r.log.Warnw("status_field_unreadable", "device", device, "field", "target_temp", "err", err)
		failed++
	} else if v, err := parseTemp(text); err != nil {
		r.log.Warnw("status_field_unparseable", "device", device, "field", "target_temp", "text", text)
		failed++
	} else {
		status.TargetTemp = &v
	}

	if text, err := nav.ReadText(ctx, "status.mode"); err != nil {
		r.log.Warnw("status_field_unreadable", "device", device, "field", "mode", "err", err)
		failed++
	} else if mode, err := models.ParseMode(text); err != nil {
		r.log.Warnw("status_field_unparseable", "device", device, "field", "mode", "text", text)
		failed++
	} else {
		status.Mode = mode
	}

	if text, err := nav.ReadText(ctx, "status.heating_indicator"); err == nil {
		heating := indicatorShowsHeat(text)
		status.IsHeating = &heating
	} else if derived, ok := deriveHeating(status); ok {
		// Indicator missing; fall back to temperatures and mode.
		status.IsHeating = &derived
	} else {
		r.log.Warnw("status_field_unreadable", "device", device, "field", "is_heating", "err", err)
		failed++
	}

	if failed >= 4 {
		return status, newError(KindStatusParse, "read status",
			errors.New("no status field could be read from the page"))
	}

	status.Partial = !status.Complete()
	return status, nil
}

// parseTemp extracts a numeric temperature from portal text like "72°F",
// "68.5 °", or "21 C".
func parseTemp(text string) (float64, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '°', 'F', 'f', 'C', 'c', ' ', '\n', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(text))
	return strconv.ParseFloat(cleaned, 64)
}

// indicatorShowsHeat interprets the portal's call-for-heat indicator text.
func indicatorShowsHeat(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" || t == "idle" || t == "off" {
		return false
	}
	return strings.Contains(t, "heat") || strings.Contains(t, "aux")
}

// deriveHeating infers call-for-heat from temperatures and mode when the
// indicator element is gone: a heating-capable mode with current below target
// means the system should be heating.
func deriveHeating(s models.HeatingStatus) (bool, bool) {
	if s.CurrentTemp == nil || s.TargetTemp == nil {
		return false, false
	}
	switch s.Mode {
	case models.ModeHeat, models.ModeAuxHeat, models.ModeAuto:
		return *s.CurrentTemp < *s.TargetTemp, true
	case models.ModeCool, models.ModeOff:
		return false, true
	}
	return false, false
}
