package service

import (
	"context"
	"time"

	"ecobee_automation/internal/automation"
	"ecobee_automation/internal/config"
	"ecobee_automation/internal/logger"
	"ecobee_automation/internal/models"
	"ecobee_automation/internal/repository"
)

type Authorization interface {
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (string, error)
}

// Thermostat exposes the device commands: mode transitions and status reads.
// Implementations serialize: concurrent callers queue and each command runs
// against the portal alone.
type Thermostat interface {
	SetMode(ctx context.Context, device string, mode models.Mode) (models.HeatingStatus, error)
	SetTemperature(ctx context.Context, device string, target float64) (models.HeatingStatus, error)
	GetStatus(ctx context.Context, device string) (models.HeatingStatus, error)
	Devices() []string
}

// EventLog exposes the append-only command audit with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.AutomationEvent, error)
}

// Diagnostics exposes the captured-artifact index.
type Diagnostics interface {
	List(ctx context.Context) ([]models.DiagnosticArtifact, error)
}

// Maintenance runs the background upkeep loop: diagnostic age sweeps and
// idle-session reaping. Stop via context cancellation in main() for graceful
// shutdown.
type Maintenance interface {
	Run(ctx context.Context, tick time.Duration)
}

//
// Root Service aggregates all sub-services.
//

type Service struct {
	Thermostat
	EventLog
	Diagnostics
	Maintenance
	Authorization
}

// Deps carries everything the sub-services are wired from. The automation
// pieces share one SessionManager; the Service owns its lifecycle.
type Deps struct {
	Repos     *repository.Repository
	Session   *automation.SessionManager
	Modes     *automation.ModeController
	Temps     *automation.TemperatureController
	Status    *automation.StatusReader
	Retry     *automation.RetryPolicy
	Collector *automation.Collector
	Cfg       *config.Config
	Log       *logger.Logger
}

func NewService(d Deps) *Service {
	thermo := NewThermostatService(d.Session, d.Modes, d.Temps, d.Status, d.Retry,
		d.Repos.Events, d.Cfg.Thermostats, d.Cfg.Portal.SessionTTL, d.Log.Named("thermostat"))
	return &Service{
		Thermostat:    thermo,
		EventLog:      NewEventLogService(d.Repos.Events),
		Diagnostics:   NewDiagnosticsService(d.Repos.Artifacts),
		Maintenance:   NewMaintenanceService(d.Collector, thermo, d.Log.Named("maintenance")),
		Authorization: NewAuthService(d.Cfg.API),
	}
}
