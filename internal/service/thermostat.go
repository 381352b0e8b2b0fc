package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ecobee_automation/internal/automation"
	"ecobee_automation/internal/logger"
	"ecobee_automation/internal/models"
	"ecobee_automation/internal/repository"
)

// Event types recorded in the audit log.
const (
	EventLogin      = "LOGIN"
	EventModeChange = "MODE_CHANGE"
	EventTempChange = "TEMP_CHANGE"
	EventStatusRead = "STATUS_READ"
	EventRetry      = "RETRY"
	EventError      = "ERROR"
)

// The slices of the automation layer this service consumes. SessionManager,
// ModeController, StatusReader and RetryPolicy satisfy them.
type sessionHandle interface {
	Authenticated() bool
	EnsureSession(ctx context.Context, device string) error
	Navigator() automation.Navigator
	IdleFor() time.Duration
	Close() error
}

type modeSetter interface {
	SetMode(ctx context.Context, device string, mode models.Mode) (models.HeatingStatus, error)
}

type temperatureSetter interface {
	SetTarget(ctx context.Context, device string, target float64) (models.HeatingStatus, error)
}

type statusSource interface {
	Read(ctx context.Context, device string) (models.HeatingStatus, error)
}

type retryRunner interface {
	Execute(ctx context.Context, op string, fn func(context.Context) error, classify func(error) bool) error
}

// ThermostatService runs device commands against the portal. A single mutex
// serializes everything: there is exactly one browser and the portal session
// is a shared mutable resource, so concurrent callers queue and each command
// observes the page state its predecessors left behind.
type ThermostatService struct {
	mu sync.Mutex

	session sessionHandle
	modes   modeSetter
	temps   temperatureSetter
	status  statusSource
	retry   retryRunner
	events  repository.EventRepo
	devices []string
	idleTTL time.Duration
	log     *logger.Logger
}

func NewThermostatService(session sessionHandle, modes modeSetter, temps temperatureSetter,
	status statusSource, retry retryRunner, events repository.EventRepo,
	thermostats map[string]string, idleTTL time.Duration, log *logger.Logger) *ThermostatService {

	devices := make([]string, 0, len(thermostats))
	for name := range thermostats {
		devices = append(devices, name)
	}
	sort.Strings(devices)

	return &ThermostatService{
		session: session,
		modes:   modes,
		temps:   temps,
		status:  status,
		retry:   retry,
		events:  events,
		devices: devices,
		idleTTL: idleTTL,
		log:     log,
	}
}

// Devices lists the configured thermostat names, sorted.
func (s *ThermostatService) Devices() []string {
	out := make([]string, len(s.devices))
	copy(out, s.devices)
	return out
}

// SetMode drives device to mode and returns the verified status.
func (s *ThermostatService) SetMode(ctx context.Context, device string, mode models.Mode) (models.HeatingStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasAuthenticated := s.session.Authenticated()

	status, err := s.modes.SetMode(ctx, device, mode)
	if err != nil {
		s.recordFailure(ctx, "set mode", device, err)
		return models.HeatingStatus{}, err
	}

	if !wasAuthenticated {
		s.record(ctx, models.AutomationEvent{
			Type:        EventLogin,
			Description: "portal session established",
		})
	}
	s.record(ctx, models.AutomationEvent{
		Type:        EventModeChange,
		Device:      device,
		Description: "mode set to " + string(mode),
		Metadata: map[string]any{
			"mode":    string(mode),
			"partial": status.Partial,
		},
	})
	return status, nil
}

// SetTemperature drives device's setpoint to target and returns the verified
// status.
func (s *ThermostatService) SetTemperature(ctx context.Context, device string, target float64) (models.HeatingStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasAuthenticated := s.session.Authenticated()

	status, err := s.temps.SetTarget(ctx, device, target)
	if err != nil {
		s.recordFailure(ctx, "set temperature", device, err)
		return models.HeatingStatus{}, err
	}

	if !wasAuthenticated {
		s.record(ctx, models.AutomationEvent{
			Type:        EventLogin,
			Description: "portal session established",
		})
	}
	s.record(ctx, models.AutomationEvent{
		Type:        EventTempChange,
		Device:      device,
		Description: fmt.Sprintf("setpoint set to %.1f", target),
		Metadata: map[string]any{
			"target":  target,
			"partial": status.Partial,
		},
	})
	return status, nil
}

// GetStatus scrapes a fresh status for device. Nothing is cached; every call
// reads the live page.
func (s *ThermostatService) GetStatus(ctx context.Context, device string) (models.HeatingStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasAuthenticated := s.session.Authenticated()

	var status models.HeatingStatus
	err := s.retry.Execute(ctx, "read status", func(ctx context.Context) error {
		if err := s.session.EnsureSession(ctx, device); err != nil {
			return err
		}
		read, err := s.status.Read(ctx, device)
		if err != nil {
			return err
		}
		status = read
		return nil
	}, nil)
	if err != nil {
		s.recordFailure(ctx, "read status", device, err)
		return models.HeatingStatus{}, err
	}

	if !wasAuthenticated {
		s.record(ctx, models.AutomationEvent{
			Type:        EventLogin,
			Description: "portal session established",
		})
	}
	s.record(ctx, models.AutomationEvent{
		Type:        EventStatusRead,
		Device:      device,
		Description: "status read",
		Metadata:    map[string]any{"partial": status.Partial, "mode": string(status.Mode)},
	})
	return status, nil
}

// ReapIdleSession closes the browser when the session has sat unused past its
// TTL. Runs under the same lock as commands so it can never shut a browser
// mid-operation. The next command relaunches transparently.
func (s *ThermostatService) ReapIdleSession(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.Navigator() == nil || s.session.IdleFor() <= s.idleTTL {
		return
	}
	s.log.Infow("closing_idle_session", "idle", s.session.IdleFor())
	if err := s.session.Close(); err != nil {
		s.log.Warnw("idle_session_close_failed", "err", err)
	}
}

// Close releases the browser. Called on shutdown.
func (s *ThermostatService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Close()
}

// recordFailure appends an ERROR event, plus a RETRY event when the command
// burned more than one attempt before giving up.
func (s *ThermostatService) recordFailure(ctx context.Context, op, device string, err error) {
	attempts := automation.AttemptsOf(err)
	if attempts > 1 {
		s.record(ctx, models.AutomationEvent{
			Type:        EventRetry,
			Device:      device,
			Description: op + " retried",
			Metadata:    map[string]any{"attempts": attempts},
		})
	}
	meta := map[string]any{
		"kind":     string(automation.KindOf(err)),
		"attempts": attempts,
	}
	var ae *automation.Error
	if errors.As(err, &ae) && ae.ArtifactID != "" {
		meta["artifact_id"] = ae.ArtifactID
	}
	s.record(ctx, models.AutomationEvent{
		Type:        EventError,
		Device:      device,
		Description: op + " failed: " + err.Error(),
		Metadata:    meta,
	})
}

// record appends an audit event; audit failures are logged, never surfaced.
func (s *ThermostatService) record(ctx context.Context, e models.AutomationEvent) {
	if err := s.events.Append(ctx, e); err != nil {
		s.log.Warnw("audit_append_failed", "type", e.Type, "err", err)
	}
}
