package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/frontdesk"

// Span attribute keys identifying the call a span belongs to.
const (
	CallIDKey    = attribute.Key("frontdesk.call.id")
	CallPhoneKey = attribute.Key("frontdesk.call.phone")
)

// Tracer returns the frontdesk tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on [Tracer]. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CallAttributes tags a span with the call id and, when known, the caller's
// phone number.
func CallAttributes(callID, phone string) trace.SpanStartEventOption {
	attrs := []attribute.KeyValue{CallIDKey.String(callID)}
	if phone != "" {
		attrs = append(attrs, CallPhoneKey.String(phone))
	}
	return trace.WithAttributes(attrs...)
}

// CorrelationID is the trace id of the span in ctx, or "" outside a span.
// [Middleware] echoes it as X-Correlation-ID.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

type loggerKey struct{}

// WithLogger stores a call-scoped logger (call_id, phone) in ctx so every
// stage of a reply cycle logs with it.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// Logger returns the logger stored by [WithLogger], or [slog.Default], with
// trace_id and span_id added when ctx holds a span.
func Logger(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	if !ok || l == nil {
		l = slog.Default()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
