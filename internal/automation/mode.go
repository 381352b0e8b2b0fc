package automation

import (
	"context"
	"fmt"
	"time"

	"ecobee_automation/internal/logger"
	"ecobee_automation/internal/models"
)

// confirmProbeTimeout bounds the check for a confirm/save button. Some portal
// variants apply the mode as soon as the option is clicked and render no
// confirm control at all.
const confirmProbeTimeout = 3 * time.Second

// ModeController performs mode transitions. Every call runs the full
// ensure-read-mutate-verify sequence under the retry policy; a transition
// that the portal reports but does not hold is retried exactly once before
// failing for good.
type ModeController struct {
	session *SessionManager
	reader  *StatusReader
	retry   *RetryPolicy
	log     *logger.Logger
}

func NewModeController(session *SessionManager, reader *StatusReader, retry *RetryPolicy, log *logger.Logger) *ModeController {
	return &ModeController{session: session, reader: reader, retry: retry, log: log}
}

// SetMode drives device to target and returns the verified post-transition
// status. When the portal already shows the target mode the call is a no-op
// beyond the verifying read.
func (c *ModeController) SetMode(ctx context.Context, device string, target models.Mode) (models.HeatingStatus, error) {
	if !target.Valid() {
		return models.HeatingStatus{}, newError(KindConfiguration, "set mode",
			fmt.Errorf("mode %q is not a valid transition target", target))
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

	// Verification failures get one deliberate second pass; the portal UI
	// occasionally acknowledges a click without committing it.
	var err error
	for pass := 1; pass <= 2; pass++ {
		err = c.retry.Execute(ctx, "set mode "+string(target), attempt, nil)
		if err == nil {
			return result, nil
		}
		if KindOf(err) != KindModeVerification || pass == 2 {
			return models.HeatingStatus{}, err
		}
		c.log.Warnw("mode_not_held_retrying", "device", device, "target", target)
	}
	return models.HeatingStatus{}, err
}

// transition is a single pass of the sequence: ensure session, read, skip or
// mutate, verify.
func (c *ModeController) transition(ctx context.Context, device string, target models.Mode) (models.HeatingStatus, error) {
	if err := c.session.EnsureSession(ctx, device); err != nil {
		return models.HeatingStatus{}, err
	}

	current, err := c.reader.Read(ctx, device)
	if err != nil {
		// An unreadable status does not block the transition; the verify
		// step still has to prove the outcome.
		c.log.Warnw("pre_transition_status_unreadable", "device", device, "err", err)
	} else if current.Mode == target {
		c.log.Infow("mode_already_set", "device", device, "mode", target)
		return current, nil
	}

	if err := c.mutate(ctx, target); err != nil {
		return models.HeatingStatus{}, err
	}

	verified, err := c.reader.Read(ctx, device)
	if err != nil {
		return models.HeatingStatus{}, err
	}
	if verified.Mode != target {
		return models.HeatingStatus{}, newError(KindModeVerification, "set mode",
			fmt.Errorf("portal shows %q after selecting %q", verified.Mode, target))
	}

	c.session.Touch()
	c.log.Infow("mode_changed", "device", device, "mode", target)
	return verified, nil
}

// mutate clicks through the mode menu. A missing confirm control is
// tolerated: auto-saving portal variants commit on option click.
func (c *ModeController) mutate(ctx context.Context, target models.Mode) error {
	nav := c.session.Navigator()

	if err := nav.Click(ctx, "mode_menu.open"); err != nil {
		return err
	}
	if err := nav.Click(ctx, ModeOptionSelector(string(target))); err != nil {
		return err
	}
	if err := nav.WaitFor(ctx, "mode_menu.confirm", confirmProbeTimeout); err == nil {
		if err := nav.Click(ctx, "mode_menu.confirm"); err != nil {
			return err
		}
	} else {
		c.log.Debugw("no_confirm_control", "target", target)
	}
	return nil
}
