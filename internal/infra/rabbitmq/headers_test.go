package rabbitmq

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceContextRoundTripsThroughHeaders(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a, 0x0b, 0x0c, 0x01},
		SpanID:     trace.SpanID{0x01, 0x02},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := injectTrace(ctx, amqp.Table{"x-dlq-reason": "decode"})
	assert.Equal(t, "decode", headers["x-dlq-reason"])
	assert.Contains(t, headerCarrier(headers).Keys(), "traceparent")

	got := trace.SpanContextFromContext(extractTrace(context.Background(), headers))
	assert.Equal(t, sc.TraceID(), got.TraceID())
	assert.Equal(t, sc.SpanID(), got.SpanID())
}

func TestExtractTraceWithoutHeaders(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, extractTrace(ctx, nil))
	assert.Empty(t, headerCarrier(amqp.Table{"n": 3}).Get("n"))
}
