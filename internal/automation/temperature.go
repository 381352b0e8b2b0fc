package automation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"ecobee_automation/internal/logger"
	"ecobee_automation/internal/models"
)

// Setpoint bounds accepted as transition targets, matching the portal's own
// slider range. The up/down controls step one degree per click, so a setpoint
// within half a degree of the target counts as matching.
const (
	minSetpoint       = 40.0
	maxSetpoint       = 95.0
	setpointTolerance = 0.5
)

// TemperatureController adjusts a thermostat's target temperature by stepping
// the portal's up/down controls. Every call runs the full
// ensure-read-step-verify sequence under the retry policy; a setpoint the
// portal shows but does not hold is retried exactly once before failing for
// good.
type TemperatureController struct {
	session *SessionManager
	reader  *StatusReader
	retry   *RetryPolicy
	log     *logger.Logger
}

func NewTemperatureController(session *SessionManager, reader *StatusReader, retry *RetryPolicy, log *logger.Logger) *TemperatureController {
	return &TemperatureController{session: session, reader: reader, retry: retry, log: log}
}

// SetTarget drives device's setpoint to target and returns the verified
// post-adjustment status. A setpoint already within tolerance of the target
// is a no-op beyond the verifying read.
func (c *TemperatureController) SetTarget(ctx context.Context, device string, target float64) (models.HeatingStatus, error) {
	if target < minSetpoint || target > maxSetpoint {
		return models.HeatingStatus{}, newError(KindConfiguration, "set temperature",
			fmt.Errorf("target %.1f outside supported range %.0f..%.0f", target, minSetpoint, maxSetpoint))
	}

	var result models.HeatingStatus
	attempt := func(ctx context.Context) error {
		status, err := c.transition(ctx, device, target)
		if err != nil {
			return err
		}
		result = status
		return nil
	}

	// Verification failures get one deliberate second pass, as with mode
	// changes: the portal UI occasionally acknowledges clicks without
	// committing them.
	var err error
	for pass := 1; pass <= 2; pass++ {
		err = c.retry.Execute(ctx, fmt.Sprintf("set temperature %.1f", target), attempt, nil)
		if err == nil {
			return result, nil
		}
		if KindOf(err) != KindSetpointVerification || pass == 2 {
			return models.HeatingStatus{}, err
		}
		c.log.Warnw("setpoint_not_held_retrying", "device", device, "target", target)
	}
	return models.HeatingStatus{}, err
}

// transition is a single pass of the sequence: ensure session, read the
// current setpoint, skip or step, verify.
func (c *TemperatureController) transition(ctx context.Context, device string, target float64) (models.HeatingStatus, error) {
	if err := c.session.EnsureSession(ctx, device); err != nil {
		return models.HeatingStatus{}, err
	}

	current, err := c.reader.Read(ctx, device)
	if err != nil {
		return models.HeatingStatus{}, err
	}
	if current.TargetTemp == nil {
		// Unlike a mode change, stepping is relative: without the current
		// setpoint there is no click count to compute.
		return models.HeatingStatus{}, newError(KindElementNotFound, "set temperature",
			errors.New("current setpoint could not be read"))
	}

	diff := target - *current.TargetTemp
	if math.Abs(diff) < setpointTolerance {
		c.log.Infow("setpoint_already_set", "device", device, "target", target)
		return current, nil
	}

	if err := c.step(ctx, diff); err != nil {
		return models.HeatingStatus{}, err
	}

	verified, err := c.reader.Read(ctx, device)
	if err != nil {
		return models.HeatingStatus{}, err
	}
	if verified.TargetTemp == nil || math.Abs(*verified.TargetTemp-target) >= setpointTolerance {
		return models.HeatingStatus{}, newError(KindSetpointVerification, "set temperature",
			fmt.Errorf("portal shows setpoint %s after stepping to %.1f", fmtTemp(verified.TargetTemp), target))
	}

	c.session.Touch()
	c.log.Infow("setpoint_changed", "device", device, "target", target)
	return verified, nil
}

// step clicks the up or down control once per degree of difference. A missing
// confirm control is tolerated, as with mode changes.
func (c *TemperatureController) step(ctx context.Context, diff float64) error {
	nav := c.session.Navigator()

	name := "temp.up"
	if diff < 0 {
		name = "temp.down"
	}
	clicks := int(math.Round(math.Abs(diff)))
	for i := 0; i < clicks; i++ {
		if err := nav.Click(ctx, name); err != nil {
			return err
		}
	}

	if err := nav.WaitFor(ctx, "temp.confirm", confirmProbeTimeout); err == nil {
		return nav.Click(ctx, "temp.confirm")
	}
	c.log.Debugw("no_confirm_control", "clicks", clicks)
	return nil
}

func fmtTemp(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}
