package automation

import (
	"context"
	"fmt"
	"testing"

	"ecobee_automation/internal/logger"
)

func newTemperatureFixture(t *testing.T) (*fakeNavigator, *TemperatureController) {
	t.Helper()
	fake := newFakeNavigator()
	fake.texts["devices.selected"] = "Home"
	fake.texts["status.current_temp"] = "68°F"
	fake.texts["status.target_temp"] = "72°F"
	fake.texts["status.mode"] = "Heat"
	fake.texts["status.heating_indicator"] = "Heat On"

	session := newTestSession(t, fake)
	log := logger.New(logger.ErrorLevel)
	reader := NewStatusReader(session, log)
	retry, _ := testRetryPolicy(3, nil, nil)
	return fake, NewTemperatureController(session, reader, retry, log)
}

// trackSetpoint makes every up/down click move the fake's setpoint one degree.
func trackSetpoint(fake *fakeNavigator, start float64) {
	setpoint := start
	fake.onClick = func(name string) {
		switch name {
		case "temp.up":
			setpoint++
		case "temp.down":
			setpoint--
		default:
			return
		}
		fake.texts["status.target_temp"] = fmt.Sprintf("%.0f°F", setpoint)
	}
}

func TestSetTargetRejectsOutOfRange(t *testing.T) {
	_, ctrl := newTemperatureFixture(t)
	for _, target := range []float64{12, 150} {
		_, err := ctrl.SetTarget(context.Background(), "home", target)
		if KindOf(err) != KindConfiguration {
			t.Fatalf("target %.0f: expected configuration error, got %v", target, err)
		}
	}
}

func TestSetTargetIsNoOpWithinTolerance(t *testing.T) {
	fake, ctrl := newTemperatureFixture(t)

	status, err := ctrl.SetTarget(context.Background(), "home", 72.4)
	if err != nil {
		t.Fatalf("SetTarget: %v", err)
	}
	if status.TargetTemp == nil || *status.TargetTemp != 72 {
		t.Errorf("unexpected status: %+v", status)
	}
	if fake.count("click:temp.up") != 0 || fake.count("click:temp.down") != 0 {
		t.Errorf("matching setpoint must not touch the controls: %v", fake.calls)
	}
	// The no-op still proved itself with a read.
	if fake.count("read:status.target_temp") == 0 {
		t.Errorf("idempotent call must still verify via a status read")
	}
}

func TestSetTargetStepsUpUntilTarget(t *testing.T) {
	fake, ctrl := newTemperatureFixture(t)
	trackSetpoint(fake, 72)

	status, err := ctrl.SetTarget(context.Background(), "home", 75)
	if err != nil {
		t.Fatalf("SetTarget: %v", err)
	}
	if status.TargetTemp == nil || *status.TargetTemp != 75 {
		t.Errorf("verified setpoint: %+v", status.TargetTemp)
	}
	if got := fake.count("click:temp.up"); got != 3 {
		t.Errorf("expected 3 up clicks, got %d: %v", got, fake.calls)
	}
	if fake.count("click:temp.down") != 0 {
		t.Errorf("wrong direction clicked: %v", fake.calls)
	}
	if fake.count("click:temp.confirm") != 1 {
		t.Errorf("confirm must be clicked exactly once: %v", fake.calls)
	}
}

func TestSetTargetStepsDownUntilTarget(t *testing.T) {
	fake, ctrl := newTemperatureFixture(t)
	trackSetpoint(fake, 72)

	status, err := ctrl.SetTarget(context.Background(), "home", 69)
	if err != nil {
		t.Fatalf("SetTarget: %v", err)
	}
	if status.TargetTemp == nil || *status.TargetTemp != 69 {
		t.Errorf("verified setpoint: %+v", status.TargetTemp)
	}
	if got := fake.count("click:temp.down"); got != 3 {
		t.Errorf("expected 3 down clicks, got %d: %v", got, fake.calls)
	}
	if fake.count("click:temp.up") != 0 {
		t.Errorf("wrong direction clicked: %v", fake.calls)
	}
}

func TestSetTargetToleratesMissingConfirm(t *testing.T) {
	fake, ctrl := newTemperatureFixture(t)
	trackSetpoint(fake, 72)
	fake.errs["wait:temp.confirm"] = newError(KindNavigationTimeout, "wait", nil)

	status, err := ctrl.SetTarget(context.Background(), "home", 74)
	if err != nil {
		t.Fatalf("auto-saving portal variant must still succeed: %v", err)
	}
	if status.TargetTemp == nil || *status.TargetTemp != 74 {
		t.Errorf("verified setpoint: %+v", status.TargetTemp)
	}
	if fake.count("click:temp.confirm") != 0 {
		t.Errorf("absent confirm control must not be clicked")
	}
}

func TestSetTargetVerificationRetriedExactlyOnce(t *testing.T) {
	fake, ctrl := newTemperatureFixture(t)
	// Clicks acknowledge but never commit: the portal keeps showing 72.

	_, err := ctrl.SetTarget(context.Background(), "home", 75)
	if KindOf(err) != KindSetpointVerification {
		t.Fatalf("expected setpoint verification error, got %v", err)
	}
	if got := fake.count("click:temp.up"); got != 6 {
		t.Errorf("verification failure gets exactly one extra pass of 3 clicks, got %d", got)
	}
}

func TestSetTargetFailsWithoutReadableSetpoint(t *testing.T) {
	fake, ctrl := newTemperatureFixture(t)
	fake.errs["read:status.target_temp"] = newError(KindElementNotFound, "read", nil)

	_, err := ctrl.SetTarget(context.Background(), "home", 75)
	if KindOf(err) != KindElementNotFound {
		t.Fatalf("expected element not found, got %v", err)
	}
	if fake.count("click:temp.up") != 0 || fake.count("click:temp.down") != 0 {
		t.Errorf("stepping without a known setpoint: %v", fake.calls)
	}
}
