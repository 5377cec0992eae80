// Package observability provides OpenTelemetry tracing for the slot gateway
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "slot-gateway"

// InitTracer initializes the OpenTelemetry tracer. ratio is the parent-based
// sampling ratio; values outside (0,1] sample everything.
func InitTracer(ctx context.Context, serviceName, version, endpoint string, ratio float64) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if ratio > 0 && ratio < 1 {
		sampler = sdktrace.TraceIDRatioBased(ratio)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// Tracer returns the global tracer
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// DispatchAttributes describes a dispatch before any slot is tried.
func DispatchAttributes(class string, candidates int, hint *int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("dispatch.class", class),
		attribute.Int("dispatch.candidates", candidates),
	}
	if hint != nil {
		attrs = append(attrs, attribute.Int("dispatch.hint", *hint))
	}
	return attrs
}

// SlotAttributes identifies the slot an attempt goes through. Credentials are never attached.
func SlotAttributes(slotID int, provider, model string, attempt int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("slot.id", slotID),
		attribute.String("slot.provider", provider),
		attribute.String("slot.model", model),
		attribute.Int("attempt", attempt),
	}
}

// StartDispatchSpan starts the span that wraps a whole dispatch.
func StartDispatchSpan(ctx context.Context, class string, candidates int, hint *int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "dispatch",
		trace.WithAttributes(DispatchAttributes(class, candidates, hint)...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartAttemptSpan starts a client span for one upstream call.
func StartAttemptSpan(ctx context.Context, slotID int, provider, model string, attempt int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "slot.attempt",
		trace.WithAttributes(SlotAttributes(slotID, provider, model, attempt)...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndWithClassification closes a span, marking it failed when classification is non-empty.
func EndWithClassification(span trace.Span, classification string, err error) {
	if classification != "" {
		span.SetAttributes(attribute.String("failure.classification", classification))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, classification)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// RecordTokenUsage records token usage on a span
func RecordTokenUsage(span trace.Span, promptTokens, completionTokens int) {
	if span.IsRecording() {
		span.SetAttributes(
			attribute.Int("prompt.tokens", promptTokens),
			attribute.Int("completion.tokens", completionTokens),
			attribute.Int("total.tokens", promptTokens+completionTokens),
		)
	}
}
