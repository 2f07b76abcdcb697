// Package agentclient calls a single scoring agent over HTTP and converts
// every transport or protocol problem into a typed ScoreOutcome.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/fraud-ensemble/internal/model"
	"github.com/sells-group/fraud-ensemble/internal/resilience"
	"github.com/sells-group/fraud-ensemble/internal/telemetry"
)

const (
	defaultMaxBodyBytes = 1 << 20
	maxDetailLen        = 200
)

// Client issues one scoring request to one agent.
type Client interface {
	// Call posts payload to spec.Endpoint, waits at most spec.Timeout, and
	// returns the score found at spec.ScoreField. It never returns an error:
	// failures are encoded in the outcome.
	Call(ctx context.Context, spec model.AgentSpec, payload any) model.ScoreOutcome
}

// Option configures the HTTP agent client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithMaxBodyBytes caps how much of an agent response is read.
func WithMaxBodyBytes(n int64) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

type httpClient struct {
	http    *http.Client
	maxBody int64
}

// New creates an agent client. The default transport is instrumented with
// OpenTelemetry; per-call deadlines come from the AgentSpec, not from the
// http.Client.
func New(opts ...Option) Client {
	c := &httpClient{
		http: &http.Client{
			Transport: telemetry.Transport(&http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			}),
		},
		maxBody: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Call(ctx context.Context, spec model.AgentSpec, payload any) model.ScoreOutcome {
	start := time.Now()
	ctx, span := telemetry.StartAgentSpan(ctx, spec.ID, spec.Endpoint)

	out := c.call(ctx, spec, payload)

	telemetry.EndAgentSpan(span, string(out.Reason()))
	latency := time.Since(start)
	if out.OK() {
		zap.L().Debug("agent call succeeded",
			zap.String("agent", spec.ID),
			zap.Stringer("outcome", out),
			zap.Duration("latency", latency),
		)
	} else {
		zap.L().Warn("agent call failed",
			zap.String("agent", spec.ID),
			zap.String("endpoint", spec.Endpoint),
			zap.String("reason", string(out.Reason())),
			zap.String("detail", out.Detail()),
			zap.Duration("latency", latency),
		)
	}
	return out
}

func (c *httpClient) call(parent context.Context, spec model.AgentSpec, payload any) model.ScoreOutcome {
	body, err := json.Marshal(payload)
	if err != nil {
		return model.Failed(model.ReasonMalformed, "encode payload: "+err.Error())
	}

	ctx := parent
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, spec.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, spec.Endpoint, bytes.NewReader(body))
	if err != nil {
		return model.Failed(model.ReasonTransport, "build request: "+err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return transportFailure(parent, spec, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return transportFailure(parent, spec, err)
	}
	if int64(len(raw)) > c.maxBody {
		return model.Failed(model.ReasonMalformed, fmt.Sprintf("response exceeds %d bytes", c.maxBody))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.FailedStatus(resp.StatusCode, fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(raw))))
	}

	return extractScore(raw, spec.ScoreField)
}

// extractScore reads field from a JSON object body. Numeric strings are
// accepted; out-of-range values are returned unchanged.
func extractScore(raw []byte, field string) model.ScoreOutcome {
	if !gjson.ValidBytes(raw) {
		return model.Failed(model.ReasonMalformed, "invalid JSON body: "+truncate(string(raw)))
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return model.Failed(model.ReasonMalformed, "response body is not a JSON object")
	}

	v := doc.Get(field)
	if !v.Exists() {
		return model.Failed(model.ReasonMissingField, fmt.Sprintf("field %q not present", field))
	}

	switch v.Type {
	case gjson.Number:
		return model.Succeeded(v.Float())
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return model.Failed(model.ReasonMissingField, fmt.Sprintf("field %q is not numeric: %q", field, truncate(v.Str)))
		}
		return model.Succeeded(f)
	default:
		return model.Failed(model.ReasonMissingField, fmt.Sprintf("field %q is not numeric: %s", field, truncate(v.Raw)))
	}
}

func transportFailure(parent context.Context, spec model.AgentSpec, err error) model.ScoreOutcome {
	if errors.Is(parent.Err(), context.Canceled) {
		return model.Failed(model.ReasonCanceled, "request canceled")
	}
	if resilience.IsTimeout(err) {
		return model.Failed(model.ReasonTimeout, fmt.Sprintf("no response within %s", spec.Timeout))
	}
	return model.Failed(model.ReasonTransport, err.Error())
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxDetailLen {
		return s[:maxDetailLen] + "..."
	}
	return s
}
