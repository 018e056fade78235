package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/basa-ph/basa/pkg/provider/stt"
	sttmock "github.com/basa-ph/basa/pkg/provider/stt/mock"
)

type recordedMetric struct {
	provider, status string
}

type fakeProviderMetrics struct {
	mu       sync.Mutex
	requests []recordedMetric
	errors   int
}

func (m *fakeProviderMetrics) RecordProviderRequest(_ context.Context, provider, _, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, recordedMetric{provider, status})
}

func (m *fakeProviderMetrics) RecordProviderError(context.Context, string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

var streamCfg = stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "fil"}

func TestSTTFallback_PrimarySuccess(t *testing.T) {
	sess := sttmock.NewSession()
	primary := &sttmock.Provider{Session: sess}
	secondary := &sttmock.Provider{}
	metrics := &fakeProviderMetrics{}

	fb := NewSTTFallback(primary, "deepgram", FallbackConfig{}, metrics)
	fb.AddFallback("whisper", secondary)

	handle, err := fb.StartStream(context.Background(), streamCfg)
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if handle != sess {
		t.Error("handle is not the primary's session")
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 0 {
		t.Errorf("calls: primary %d, secondary %d; want 1, 0", primary.CallCount(), secondary.CallCount())
	}
	if primary.StartStreamCalls[0].Cfg.Language != "fil" {
		t.Errorf("stream config not forwarded: %+v", primary.StartStreamCalls[0].Cfg)
	}
	if len(metrics.requests) != 1 || metrics.requests[0] != (recordedMetric{"deepgram", "ok"}) {
		t.Errorf("metrics = %+v", metrics.requests)
	}
}

func TestSTTFallback_Failover(t *testing.T) {
	primary := &sttmock.Provider{StartStreamErr: errors.New("dial: connection refused")}
	secondary := &sttmock.Provider{}
	metrics := &fakeProviderMetrics{}

	fb := NewSTTFallback(primary, "deepgram", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	}, metrics)
	fb.AddFallback("whisper", secondary)

	for range 2 {
		if _, err := fb.StartStream(context.Background(), streamCfg); err != nil {
			t.Fatalf("StartStream: %v", err)
		}
	}
	if primary.CallCount() != 1 {
		t.Errorf("primary calls = %d, want 1 (breaker open after first failure)", primary.CallCount())
	}
	if secondary.CallCount() != 2 {
		t.Errorf("secondary calls = %d, want 2", secondary.CallCount())
	}

	want := []recordedMetric{
		{"deepgram", "error"}, {"whisper", "ok"},
		{"deepgram", "skipped"}, {"whisper", "ok"},
	}
	if len(metrics.requests) != len(want) {
		t.Fatalf("metrics = %+v, want %+v", metrics.requests, want)
	}
	for i := range want {
		if metrics.requests[i] != want[i] {
			t.Errorf("metric %d = %+v, want %+v", i, metrics.requests[i], want[i])
		}
	}
	if metrics.errors != 1 {
		t.Errorf("provider errors = %d, want 1", metrics.errors)
	}
}

func TestSTTFallback_AllFail(t *testing.T) {
	primary := &sttmock.Provider{StartStreamErr: errors.New("primary down")}
	secondary := &sttmock.Provider{StartStreamErr: errors.New("secondary down")}

	fb := NewSTTFallback(primary, "deepgram", FallbackConfig{}, nil)
	fb.AddFallback("whisper", secondary)

	if _, err := fb.StartStream(context.Background(), streamCfg); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
