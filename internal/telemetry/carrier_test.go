package telemetry

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestHeaderCarrier_SetReplacesExisting(t *testing.T) {
	headers := []kafka.Header{{Key: "x-event-id", Value: []byte("e-1")}}
	c := HeaderCarrier{Headers: &headers}

	c.Set("traceparent", "a")
	c.Set("traceparent", "b")

	assert.Equal(t, "b", c.Get("traceparent"))
	assert.Equal(t, "e-1", c.Get("x-event-id"))
	assert.Equal(t, "", c.Get("missing"))
	assert.ElementsMatch(t, []string{"x-event-id", "traceparent"}, c.Keys())
}

func TestInjectExtract_RoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := Inject(ctx, nil)
	require.NotEmpty(t, headers)

	got := trace.SpanContextFromContext(Extract(context.Background(), headers))
	assert.Equal(t, traceID, got.TraceID())
	assert.Equal(t, spanID, got.SpanID())
	assert.True(t, got.IsRemote())
}
