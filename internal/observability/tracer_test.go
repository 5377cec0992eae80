package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestDispatchAndAttemptSpans(t *testing.T) {
	rec := withRecorder(t)

	hint := 4
	ctx, span := StartDispatchSpan(context.Background(), "reserved", 2, &hint)
	_, attempt := StartAttemptSpan(ctx, 2, "groq", "groq/compound", 1)
	EndWithClassification(attempt, "daily_quota_exhausted", errors.New("tokens per day"))
	EndWithClassification(span, "", nil)

	ended := rec.Ended()
	require.Len(t, ended, 2)

	a := ended[0]
	assert.Equal(t, "slot.attempt", a.Name())
	assert.Equal(t, codes.Error, a.Status().Code)
	assert.Equal(t, span.SpanContext().TraceID(), a.Parent().TraceID())

	attrs := map[string]any{}
	for _, kv := range a.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, int64(2), attrs["slot.id"])
	assert.Equal(t, "daily_quota_exhausted", attrs["failure.classification"])

	d := ended[1]
	assert.Equal(t, "dispatch", d.Name())
	assert.Equal(t, codes.Ok, d.Status().Code)
}

func TestDispatchAttributesWithoutHint(t *testing.T) {
	attrs := DispatchAttributes("general", 3, nil)
	assert.Len(t, attrs, 2)
}
