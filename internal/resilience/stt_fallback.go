package resilience

import (
	"context"
	"errors"

	"github.com/basa-ph/basa/pkg/provider/stt"
)

// ProviderMetrics receives per-provider outcomes. [observe.Metrics]
// implements it.
type ProviderMetrics interface {
	RecordProviderRequest(ctx context.Context, provider, kind, status string)
	RecordProviderError(ctx context.Context, provider, kind string)
}

// STTFallback implements [stt.Provider] with automatic failover across STT
// backends. Each backend has its own circuit breaker. Failover happens when
// a stream is opened; a stream that later fails mid-attempt ends the
// recognizer's channels and the capture controller restarts it through
// StartStream again, which then picks the next healthy backend.
type STTFallback struct {
	group   *FallbackGroup[stt.Provider]
	metrics ProviderMetrics
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// backend. metrics may be nil.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig, metrics ProviderMetrics) *STTFallback {
	f := &STTFallback{metrics: metrics}
	user := cfg.OnResult
	cfg.OnResult = func(name string, err error) {
		f.record(name, err)
		if user != nil {
			user(name, err)
		}
	}
	f.group = NewFallbackGroup(primary, primaryName, cfg)
	return f
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// StartStream opens a streaming session against the first healthy provider.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}

func (f *STTFallback) record(name string, err error) {
	if f.metrics == nil {
		return
	}
	ctx := context.Background()
	switch {
	case err == nil:
		f.metrics.RecordProviderRequest(ctx, name, "stt", "ok")
	case errors.Is(err, ErrCircuitOpen):
		f.metrics.RecordProviderRequest(ctx, name, "stt", "skipped")
	default:
		f.metrics.RecordProviderRequest(ctx, name, "stt", "error")
		f.metrics.RecordProviderError(ctx, name, "stt")
	}
}
