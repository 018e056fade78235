package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/basa-ph/basa"

// Attribute keys shared by spans and log lines.
const (
	KeyStudentID  = "basa.student_id"
	KeyScheduleID = "basa.approved_schedule_id"
)

// Tracer returns the basa tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. The caller ends it, usually with
// [EndSpan].
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// SessionAttrs identifies a remedial session on a span.
func SessionAttrs(studentID, scheduleID int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(KeyStudentID, studentID),
		attribute.Int64(KeyScheduleID, scheduleID),
	}
}

// CorrelationID is the trace ID of the active span in ctx, or "" without
// one. The API echoes it in X-Correlation-ID so a report from a classroom
// can be matched to a server log line.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with correlation_id and span_id added
// when ctx carries a span.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("correlation_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
