package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// TraceHandler decorates a slog.Handler with trace correlation: records
// logged through slog.InfoContext / slog.WarnContext etc. while a span is
// active gain "trace_id" and "span_id" attributes, plus "sampled" when
// the span is exported, so log lines can be joined to traces in the
// backend.
type TraceHandler struct {
	inner slog.Handler
}

// NewTraceHandler wraps inner with trace-context injection.
func NewTraceHandler(inner slog.Handler) *TraceHandler {
	return &TraceHandler{inner: inner}
}

// Enabled defers to the wrapped handler's level filtering.
func (t *TraceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.inner.Enabled(ctx, level)
}

// Handle adds the span correlation attributes before delegating.
func (t *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			r.AddAttrs(slog.Bool("sampled", true))
		}
	}
	return t.inner.Handle(ctx, r)
}

// WithAttrs satisfies slog.Handler; the wrapping survives.
func (t *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{inner: t.inner.WithAttrs(attrs)}
}

// WithGroup satisfies slog.Handler; the wrapping survives.
func (t *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{inner: t.inner.WithGroup(name)}
}
