package service

import (
	"context"
	"time"

	"ecobee_automation/internal/automation"
	"ecobee_automation/internal/logger"
)

// idleReaper is the slice of ThermostatService the maintenance loop needs.
type idleReaper interface {
	ReapIdleSession(ctx context.Context)
}

// MaintenanceService is the background upkeep loop: it sweeps aged diagnostic
// artifacts and closes the browser when the portal session has been idle past
// its TTL.
type MaintenanceService struct {
	collector *automation.Collector
	reaper    idleReaper
	log       *logger.Logger
}

func NewMaintenanceService(collector *automation.Collector, reaper idleReaper, log *logger.Logger) *MaintenanceService {
	return &MaintenanceService{
		collector: collector,
		reaper:    reaper,
		log:       log,
	}
}

// Run ticks at the given interval until ctx is canceled.
func (s *MaintenanceService) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.collector.Sweep(ctx); n > 0 {
				s.log.Infow("diagnostics_swept", "evicted", n)
			}
			s.reaper.ReapIdleSession(ctx)
		}
	}
}
