package automation

import (
	"context"
	"errors"
	"math"
	"time"

	"ecobee_automation/internal/config"
	"ecobee_automation/internal/logger"
)

// CapturerSource yields the capturer for the currently live page, or nil when
// no browser is up. Indirection matters because the session may relaunch the
// browser between attempts.
type CapturerSource interface {
	Capturer() Capturer
}

// RetryPolicy wraps an operation with bounded retry and exponential backoff.
// Classification is injected so retry behavior stays testable apart from any
// navigation logic. The policy never swallows the underlying error kind: it
// only attaches attempt counts and artifact references.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	multiplier  float64
	collector   *Collector
	source      CapturerSource
	log         *logger.Logger

	// sleep is swapped out in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetryPolicy(cfg config.Retry, collector *Collector, source CapturerSource, log *logger.Logger) *RetryPolicy {
	return &RetryPolicy{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		multiplier:  cfg.BackoffMultiplier,
		collector:   collector,
		source:      source,
		log:         log,
		sleep:       sleepCtx,
	}
}

// Execute runs fn up to maxAttempts times. classify decides retryable vs
// fatal (nil means DefaultClassify). Fatal errors propagate immediately,
// without sleeping, with their attempt count attached. A retryable failure
// captures a diagnostic artifact, backs off, and tries again; once attempts
// are exhausted the last retryable error comes back as a terminal error of
// the same kind carrying attempts == maxAttempts.
func (p *RetryPolicy) Execute(ctx context.Context, op string, fn func(ctx context.Context) error, classify func(error) bool) error {
	if classify == nil {
		classify = DefaultClassify
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if !classify(err) {
			return withAttempts(err, attempt, "")
		}

		var artifactID string
		if p.collector != nil && p.source != nil {
			artifactID = p.collector.Capture(ctx, p.source.Capturer(), op, attempt, err)
		}

		if attempt >= p.maxAttempts {
			p.log.Errorw("retries_exhausted", "op", op, "attempts", attempt, "err", err)
			return withAttempts(err, attempt, artifactID)
		}

		delay := p.backoff(attempt)
		p.log.Warnw("attempt_failed", "op", op, "attempt", attempt, "retry_in", delay, "err", err)
		if serr := p.sleep(ctx, delay); serr != nil {
			return withAttempts(err, attempt, artifactID)
		}
	}
}

// backoff computes base_delay x multiplier^(attempt-1).
func (p *RetryPolicy) backoff(attempt int) time.Duration {
	factor := math.Pow(p.multiplier, float64(attempt-1))
	return time.Duration(float64(p.baseDelay) * factor)
}

// withAttempts stamps attempt count and artifact reference onto an
// automation error; foreign errors pass through untouched.
func withAttempts(err error, attempts int, artifactID string) error {
	var ae *Error
	if errors.As(err, &ae) {
		ae.Attempts = attempts
		if artifactID != "" {
			ae.ArtifactID = artifactID
		}
		return err
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
