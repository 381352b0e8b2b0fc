package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"ecobee_automation/internal/automation"
	"ecobee_automation/internal/logger"
)

type countingReaper struct{ calls int32 }

func (r *countingReaper) ReapIdleSession(ctx context.Context) {
	atomic.AddInt32(&r.calls, 1)
}

func TestMaintenanceRunTicksUntilCanceled(t *testing.T) {
	collector := automation.NewCollector(false, t.TempDir(), 1, time.Hour, nil, logger.New(logger.ErrorLevel))
	reaper := &countingReaper{}
	svc := NewMaintenanceService(collector, reaper, logger.New(logger.ErrorLevel))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&reaper.calls) < 2 {
		select {
		case <-deadline:
			t.Fatalf("maintenance loop never ticked")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("maintenance loop did not stop on cancel")
	}
}
