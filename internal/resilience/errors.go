// Package resilience classifies agent failures and applies the optional
// retry policy used by the fan-out coordinator.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/sells-group/fraud-ensemble/internal/model"
)

// TransientError wraps an error that is safe to retry (timeouts, connection
// failures, 408/429/5xx statuses).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient reports whether err, or any error in its chain, is a
// TransientError. Raw transport errors are classified by the agent client
// before they reach the retry loop.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "i/o timeout")
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}

// IsTransientOutcome reports whether a failed outcome may succeed on retry.
// Protocol failures (malformed body, missing field) never are.
func IsTransientOutcome(o model.ScoreOutcome) bool {
	if o.OK() {
		return false
	}
	switch o.Reason() {
	case model.ReasonTimeout, model.ReasonTransport:
		return true
	case model.ReasonStatus:
		return IsTransientHTTPStatus(o.StatusCode())
	default:
		return false
	}
}

// OutcomeError adapts a failed outcome into an error for DoVal. Transient
// outcomes become *TransientError; successes return nil.
func OutcomeError(o model.ScoreOutcome) error {
	if o.OK() {
		return nil
	}
	err := errors.New(o.String())
	if IsTransientOutcome(o) {
		return NewTransientError(err, o.StatusCode())
	}
	return err
}
