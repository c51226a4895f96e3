package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// setupTestTracer installs a global tracer provider backed by a span recorder
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func TestStartServiceSpan(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartServiceSpan(context.Background(), "ledger", "confirm",
		telemetry.WithAttribute(telemetry.SpanAttrDocumentKind, "GOODS_RECEIPT"),
		telemetry.WithSpanKind(trace.SpanKindServer),
	)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "ledger.confirm", spans[0].Name())
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())
	require.Len(t, spans[0].Attributes(), 1)
	assert.Equal(t, "GOODS_RECEIPT", spans[0].Attributes()[0].Value.AsString())
}

func TestSetAttributes(t *testing.T) {
	tests := []struct {
		name string
		kvs  []interface{}
		want map[string]interface{}
	}{
		{
			name: "mixed types",
			kvs:  []interface{}{"number", "GR-000001", "keys", 3, "backdated", true},
			want: map[string]interface{}{"number": "GR-000001", "keys": int64(3), "backdated": true},
		},
		{
			name: "odd pair dropped",
			kvs:  []interface{}{"a", "1", "orphan"},
			want: map[string]interface{}{"a": "1"},
		},
		{
			name: "non string key skipped",
			kvs:  []interface{}{"a", "1", 42, "x"},
			want: map[string]interface{}{"a": "1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr := setupTestTracer(t)
			_, span := telemetry.StartSpan(context.Background(), "test")
			telemetry.SetAttributes(span, tt.kvs...)
			span.End()

			got := make(map[string]interface{})
			for _, a := range sr.Ended()[0].Attributes() {
				got[string(a.Key)] = a.Value.AsInterface()
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetAttribute_Stringer(t *testing.T) {
	sr := setupTestTracer(t)
	id := uuid.New()

	_, span := telemetry.StartSpan(context.Background(), "test")
	telemetry.SetAttribute(span, telemetry.SpanAttrDocumentID, id)
	span.End()

	attrs := sr.Ended()[0].Attributes()
	require.Len(t, attrs, 1)
	assert.Equal(t, id.String(), attrs[0].Value.AsString())
}

func TestRecordError(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "test")
	telemetry.RecordError(span, errors.New("insufficient stock"))
	span.End()

	s := sr.Ended()[0]
	assert.Equal(t, codes.Error, s.Status().Code)
	assert.Equal(t, "insufficient stock", s.Status().Description)
	require.Len(t, s.Events(), 1)

	t.Run("nil error leaves status unset", func(t *testing.T) {
		sr := setupTestTracer(t)
		_, span := telemetry.StartSpan(context.Background(), "test")
		telemetry.RecordError(span, nil)
		span.End()
		assert.Equal(t, codes.Unset, sr.Ended()[0].Status().Code)
	})
}

func TestAddEvent(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "test")
	telemetry.AddEvent(span, "locks_acquired", telemetry.SpanAttrStockKeys, 2)
	telemetry.SetOK(span)
	span.End()

	s := sr.Ended()[0]
	require.Len(t, s.Events(), 1)
	assert.Equal(t, "locks_acquired", s.Events()[0].Name)
	assert.Equal(t, int64(2), s.Events()[0].Attributes[0].Value.AsInt64())
	assert.Equal(t, codes.Ok, s.Status().Code)
}

func TestGetTraceID(t *testing.T) {
	setupTestTracer(t)

	assert.Empty(t, telemetry.GetTraceID(context.Background()))

	ctx, span := telemetry.StartSpan(context.Background(), "test")
	defer span.End()
	assert.Len(t, telemetry.GetTraceID(ctx), 32)
}

func TestNilSpanHelpers(t *testing.T) {
	assert.NotPanics(t, func() {
		telemetry.SetAttributes(nil, "k", "v")
		telemetry.SetAttribute(nil, "k", "v")
		telemetry.RecordError(nil, errors.New("x"))
		telemetry.SetOK(nil)
		telemetry.AddEvent(nil, "e")
	})
}

func TestNewTracerProvider(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		tp, err := telemetry.NewTracerProvider(telemetry.Config{Enabled: false}, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.False(t, tp.IsEnabled())
		assert.NotNil(t, tp.Tracer("x"))
		assert.NoError(t, tp.ForceFlush(context.Background()))
		assert.NoError(t, tp.Shutdown(context.Background()))
	})

	t.Run("enabled exports to processors", func(t *testing.T) {
		original := otel.GetTracerProvider()
		t.Cleanup(func() { otel.SetTracerProvider(original) })

		sr := tracetest.NewSpanRecorder()
		tp, err := telemetry.NewTracerProvider(telemetry.Config{
			Enabled:       true,
			ServiceName:   "stockledger-test",
			SamplingRatio: 1.0,
		}, zap.NewNop(), sr)
		require.NoError(t, err)
		assert.True(t, tp.IsEnabled())

		_, span := telemetry.StartServiceSpan(context.Background(), "ledger", "replay")
		span.End()
		require.NoError(t, tp.ForceFlush(context.Background()))

		spans := sr.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, "ledger.replay", spans[0].Name())
		assert.NoError(t, tp.Shutdown(context.Background()))
	})
}
