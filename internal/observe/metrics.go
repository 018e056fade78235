// Package observe provides application-wide observability primitives for
// basa: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all basa metrics.
const meterName = "github.com/basa-ph/basa"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
//
// *Metrics satisfies capture.Metrics and remedial.Metrics.
type Metrics struct {
	// --- Server ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// SubmissionDuration tracks the latency of a session submission,
	// including its transaction.
	SubmissionDuration metric.Float64Histogram

	// Submissions counts submissions by outcome (ok, invalid, not_found, error).
	Submissions metric.Int64Counter

	// MasteryAwarded counts newly written mastery records by subject.
	MasteryAwarded metric.Int64Counter

	// --- Capture client ---

	// CaptureAttempts counts finished capture attempts by profile and outcome.
	CaptureAttempts metric.Int64Counter

	// CaptureRestarts counts automatic recognizer restarts within an attempt.
	CaptureRestarts metric.Int64Counter

	// SlideScore is the distribution of per-card average scores.
	SlideScore metric.Int64Histogram

	// --- Providers ---

	// ProviderRequests counts provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors by provider and kind.
	ProviderErrors metric.Int64Counter
}

// latencyBuckets defines histogram bucket boundaries (in seconds).
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// scoreBuckets splits 0..100 at the score band thresholds.
var scoreBuckets = []float64{60, 70, 80, 90, 100}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.HTTPRequestDuration, err = m.Float64Histogram("basa.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SubmissionDuration, err = m.Float64Histogram("basa.submission.duration",
		metric.WithDescription("Latency of a remedial session submission."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SlideScore, err = m.Int64Histogram("basa.slide.score",
		metric.WithDescription("Per-card average score by profile."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Submissions, err = m.Int64Counter("basa.submissions",
		metric.WithDescription("Total session submissions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.MasteryAwarded, err = m.Int64Counter("basa.mastery.awarded",
		metric.WithDescription("Total mastery records written by subject."),
	); err != nil {
		return nil, err
	}
	if met.CaptureAttempts, err = m.Int64Counter("basa.capture.attempts",
		metric.WithDescription("Total capture attempts by profile and outcome."),
	); err != nil {
		return nil, err
	}
	if met.CaptureRestarts, err = m.Int64Counter("basa.capture.restarts",
		metric.WithDescription("Total recognizer restarts by profile."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("basa.provider.requests",
		metric.WithDescription("Total provider requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("basa.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// ── Server events ────────────────────────────────────────────────────────────

// RecordSubmission records one submission's outcome and latency.
func (m *Metrics) RecordSubmission(ctx context.Context, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.Submissions.Add(ctx, 1, attrs)
	m.SubmissionDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordMasteryAwarded counts one newly written mastery record.
func (m *Metrics) RecordMasteryAwarded(ctx context.Context, subjectID int64) {
	m.MasteryAwarded.Add(ctx, 1,
		metric.WithAttributes(attribute.String("subject_id", strconv.FormatInt(subjectID, 10))),
	)
}

// ── Capture events ───────────────────────────────────────────────────────────

// RecordCaptureAttempt counts a finished capture attempt.
func (m *Metrics) RecordCaptureAttempt(ctx context.Context, profile, outcome string) {
	m.CaptureAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("profile", profile),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordCaptureRestart counts a recognizer restart.
func (m *Metrics) RecordCaptureRestart(ctx context.Context, profile string) {
	m.CaptureRestarts.Add(ctx, 1, metric.WithAttributes(attribute.String("profile", profile)))
}

// RecordSlideScore records a scored card's average.
func (m *Metrics) RecordSlideScore(ctx context.Context, profile string, score int) {
	m.SlideScore.Record(ctx, int64(score), metric.WithAttributes(attribute.String("profile", profile)))
}

// ── Provider events ──────────────────────────────────────────────────────────

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
