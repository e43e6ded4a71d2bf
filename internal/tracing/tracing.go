// Package tracing wires one OpenTelemetry span per classify/action job onto
// Action.trace_id, grounded on itsneelabh-gomind's pkg/telemetry.OTELImpl
// (resource + TracerProvider setup pattern), simplified to the single
// always-on stdout exporter named in the domain stack rather than that
// package's OTLP-endpoint auto-detection — Ashford has no collector to
// auto-detect, only a local stdout trace log read off the worker's stderr.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Shutdown flushes and stops the tracer provider, called once at process exit.
type Shutdown func(ctx context.Context) error

// Init installs a stdout-exporting TracerProvider as the global provider and
// returns a Tracer scoped to the given service name plus a Shutdown func.
// serviceName is "ashford-worker" or "ashford-api" depending on the binary.
func Init(serviceName string) (trace.Tracer, Shutdown, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, fmt.Errorf("tracing: create stdout exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceNameKey.String(serviceName),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Tracer("ashford"), tp.Shutdown, nil
}

// JobSpan starts a span for one job-queue handler invocation and returns the
// derived context plus the span's trace ID formatted for Action.trace_id.
// Callers end the span with the returned func once the handler returns.
func JobSpan(ctx context.Context, tracer trace.Tracer, spanName string, attrs ...attribute.KeyValue) (context.Context, string, func(err error)) {
	ctx, span := tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
	traceID := span.SpanContext().TraceID().String()
	return ctx, traceID, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}
