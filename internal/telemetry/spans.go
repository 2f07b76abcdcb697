// Package telemetry holds the OpenTelemetry spans and HTTP instrumentation
// for fraud checks. Without a configured TracerProvider the global no-op
// provider is used.
package telemetry

import (
	"context"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "fraud-ensemble"

// StartCheckSpan starts a span for one fraud check request.
func StartCheckSpan(ctx context.Context, requestID string, agents int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "fraud.check",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.Int("agents.count", agents),
		),
	)
}

// StartAgentSpan starts a span for one agent call.
func StartAgentSpan(ctx context.Context, agentID, endpoint string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "agent.call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.String("agent.endpoint", endpoint),
		),
	)
}

// EndAgentSpan records the outcome of an agent call and ends the span.
// An empty reason means success.
func EndAgentSpan(span trace.Span, reason string) {
	if reason == "" {
		span.SetAttributes(attribute.String("agent.outcome", "success"))
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetAttributes(attribute.String("agent.outcome", reason))
		span.SetStatus(codes.Error, reason)
	}
	span.End()
}

// HTTPMiddleware returns a chi-compatible middleware that creates spans for
// inbound HTTP requests.
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName)
	}
}

// Transport wraps base with client-side span propagation.
func Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return otelhttp.NewTransport(base)
}
