package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// ShutdownFunc flushes and shuts down the providers installed by Init.
type ShutdownFunc func(ctx context.Context) error

// Init installs SDK trace and meter providers. Finished spans are written
// to the global zap logger at debug level; metric totals are logged once
// on shutdown.
func Init(serviceName string) ShutdownFunc {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(&logExporter{service: serviceName}),
	)
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	zap.L().Info("telemetry enabled", zap.String("service", serviceName))

	return func(ctx context.Context) error {
		if err := logMetrics(ctx, reader); err != nil {
			zap.L().Warn("collect metrics", zap.Error(err))
		}
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}
}

func logMetrics(ctx context.Context, reader sdkmetric.Reader) error {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return err
	}
	log := zap.L()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					log.Info("metric "+m.Name, append(attrFields(dp.Attributes.ToSlice()), zap.Int64("value", dp.Value))...)
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					fields := append(attrFields(dp.Attributes.ToSlice()),
						zap.Uint64("count", dp.Count),
						zap.Float64("sum", dp.Sum),
					)
					if dp.Count > 0 {
						fields = append(fields, zap.Float64("mean", dp.Sum/float64(dp.Count)))
					}
					log.Info("metric "+m.Name, fields...)
				}
			}
		}
	}
	return nil
}

// logExporter is a SpanExporter backed by zap.
type logExporter struct {
	service string
}

func (e *logExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	log := zap.L()
	for _, s := range spans {
		fields := []zap.Field{
			zap.String("service", e.service),
			zap.String("trace_id", s.SpanContext().TraceID().String()),
			zap.String("span_id", s.SpanContext().SpanID().String()),
			zap.Duration("duration", s.EndTime().Sub(s.StartTime())),
			zap.String("status", s.Status().Code.String()),
		}
		if s.Parent().IsValid() {
			fields = append(fields, zap.String("parent_id", s.Parent().SpanID().String()))
		}
		fields = append(fields, attrFields(s.Attributes())...)
		log.Debug("span "+s.Name(), fields...)
	}
	return nil
}

func (e *logExporter) Shutdown(context.Context) error { return nil }

func attrFields(attrs []attribute.KeyValue) []zap.Field {
	fields := make([]zap.Field, 0, len(attrs))
	for _, kv := range attrs {
		fields = append(fields, zap.String(string(kv.Key), kv.Value.Emit()))
	}
	return fields
}
