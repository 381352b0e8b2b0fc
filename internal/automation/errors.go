package automation

import (
	"errors"
	"fmt"
)

// Kind is the machine-distinguishable class of an automation failure. The
// facade maps kinds to HTTP codes; retry logic decides from kinds whether an
// attempt is worth repeating.
type Kind string

const (
	KindAuthentication    Kind = "authentication"     // portal rejected credentials; never retried
	KindConfiguration     Kind = "configuration"      // malformed selectors/thermostats/credentials; startup-fatal
	KindElementNotFound   Kind = "element_not_found"  // retryable until attempts exhausted
	KindNavigationTimeout Kind = "navigation_timeout" // retryable
	KindSessionExpired    Kind = "session_expired"    // resolved by transparent re-login

	KindStatusParse          Kind = "status_parse"          // non-fatal; partial status possible
	KindModeVerification     Kind = "mode_verification"     // retried once, then fatal
	KindSetpointVerification Kind = "setpoint_verification" // retried once, then fatal
)

// Error carries the failure kind plus enough context for the caller to log
// and alert: the operation name, how many attempts were made, and a pointer
// to the diagnostic artifact captured for the final attempt (if any).
type Error struct {
	Kind       Kind
	Op         string
	Attempts   int
	ArtifactID string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" (after %d attempts)", e.Attempts)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// newError builds an automation error with a single attempt recorded.
func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Attempts: 1, Err: err}
}

// KindOf extracts the failure kind, or "" for foreign errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// AttemptsOf reports how many attempts the failed operation consumed.
// Foreign errors count as a single attempt.
func AttemptsOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Attempts
	}
	return 1
}

// DefaultClassify is the stock retryable/fatal split from the error taxonomy:
// element lookups, navigation timeouts and expired sessions are worth another
// attempt; everything else propagates immediately.
func DefaultClassify(err error) bool {
	switch KindOf(err) {
	case KindElementNotFound, KindNavigationTimeout, KindSessionExpired:
		return true
	}
	return false
}
