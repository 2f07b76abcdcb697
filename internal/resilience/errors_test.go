package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/sells-group/fraud-ensemble/internal/model"
)

func TestIsTransient_ExplicitTransientError(t *testing.T) {
	err := NewTransientError(errors.New("server overloaded"), 503)
	if !IsTransient(err) {
		t.Error("expected TransientError to be transient")
	}
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	inner := NewTransientError(errors.New("rate limited"), 429)
	wrapped := fmt.Errorf("agent call failed: %w", inner)
	if !IsTransient(wrapped) {
		t.Error("expected wrapped TransientError to be transient")
	}
}

func TestIsTransient_NilError(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_RegularError(t *testing.T) {
	if IsTransient(errors.New("invalid input: missing field")) {
		t.Error("regular error should not be transient")
	}
}

func TestIsTransient_ProtocolFailureMentioningNetwork(t *testing.T) {
	o := model.Failed(model.ReasonMissingField, `field "score" is not numeric: "connection refused"`)
	if IsTransient(OutcomeError(o)) {
		t.Error("protocol failure should not be transient whatever its detail says")
	}
	if !IsTransient(OutcomeError(model.Failed(model.ReasonTransport, "dial tcp: connection refused"))) {
		t.Error("transport failure should be transient")
	}
}

func TestIsTimeout(t *testing.T) {
	if !IsTimeout(context.DeadlineExceeded) {
		t.Error("deadline exceeded should be a timeout")
	}
	if !IsTimeout(fmt.Errorf("post: %w", context.DeadlineExceeded)) {
		t.Error("wrapped deadline exceeded should be a timeout")
	}
	if !IsTimeout(&net.DNSError{IsTimeout: true, Err: "timeout"}) {
		t.Error("network timeout should be a timeout")
	}
	if IsTimeout(context.Canceled) {
		t.Error("cancellation is not a timeout")
	}
	if IsTimeout(nil) {
		t.Error("nil is not a timeout")
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to NOT be transient", code)
		}
	}
}

func TestIsTransientOutcome(t *testing.T) {
	tests := []struct {
		name string
		o    model.ScoreOutcome
		want bool
	}{
		{"success", model.Succeeded(0.3), false},
		{"timeout", model.Failed(model.ReasonTimeout, ""), true},
		{"transport", model.Failed(model.ReasonTransport, "refused"), true},
		{"status 503", model.FailedStatus(503, ""), true},
		{"status 400", model.FailedStatus(400, ""), false},
		{"malformed", model.Failed(model.ReasonMalformed, ""), false},
		{"missing field", model.Failed(model.ReasonMissingField, ""), false},
		{"canceled", model.Failed(model.ReasonCanceled, ""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransientOutcome(tt.o); got != tt.want {
				t.Errorf("IsTransientOutcome(%s) = %v, want %v", tt.o, got, tt.want)
			}
		})
	}
}

func TestOutcomeError(t *testing.T) {
	if err := OutcomeError(model.Succeeded(0.1)); err != nil {
		t.Errorf("expected nil for success, got %v", err)
	}

	err := OutcomeError(model.FailedStatus(502, "bad gateway"))
	var te *TransientError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransientError, got %T", err)
	}
	if te.StatusCode != 502 {
		t.Errorf("expected status 502, got %d", te.StatusCode)
	}

	err = OutcomeError(model.Failed(model.ReasonMalformed, "bad json"))
	if err == nil || IsTransient(err) {
		t.Errorf("malformed outcome should be a permanent error, got %v", err)
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	te := NewTransientError(inner, 500)

	if !errors.Is(te, inner) {
		t.Error("TransientError.Unwrap should return the inner error")
	}
	if te.Error() != "root cause" {
		t.Errorf("expected error message %q, got %q", inner.Error(), te.Error())
	}
}
