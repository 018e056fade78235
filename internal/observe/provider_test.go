package observe

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

func TestInitProvider_ExportsToRegistry(t *testing.T) {
	origMP, origTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	ctx := context.Background()
	reg := prometheus.NewRegistry()
	p, err := InitProvider(ctx, ProviderConfig{Component: "capture", ServiceVersion: "test", Registerer: reg})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	m, err := NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordCaptureAttempt(ctx, "filipino", "scored")
	m.RecordCaptureAttempt(ctx, "filipino", "scored")
	m.RecordCaptureAttempt(ctx, "math", "nothing_heard")

	totals, err := CounterTotals(reg, "basa_capture_attempts", "outcome")
	if err != nil {
		t.Fatalf("CounterTotals: %v", err)
	}
	if totals["scored"] != 2 || totals["nothing_heard"] != 1 {
		t.Errorf("totals: got %v, want scored=2 nothing_heard=1", totals)
	}

	byProfile, err := CounterTotals(reg, "basa_capture_attempts_total", "profile")
	if err != nil {
		t.Fatalf("CounterTotals: %v", err)
	}
	if byProfile["filipino"] != 2 || byProfile["math"] != 1 {
		t.Errorf("by profile: got %v", byProfile)
	}
}

func TestCounterTotals_UnknownFamily(t *testing.T) {
	totals, err := CounterTotals(prometheus.NewRegistry(), "basa_missing", "outcome")
	if err != nil {
		t.Fatalf("CounterTotals: %v", err)
	}
	if len(totals) != 0 {
		t.Errorf("totals: got %v, want empty", totals)
	}
}
