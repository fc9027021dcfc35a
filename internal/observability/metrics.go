package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
)

type meterContextKey struct{}

// WithMeter returns a context carrying meter, bound to that context.
func WithMeter(ctx context.Context, meter sentry.Meter) context.Context {
	if meter == nil {
		meter = sentry.NewMeter(ctx)
	}
	return context.WithValue(ctx, meterContextKey{}, meter.WithCtx(ctx))
}

// MeterFromContext returns the request-scoped meter or a fresh one.
func MeterFromContext(ctx context.Context) sentry.Meter {
	if meter, ok := ctx.Value(meterContextKey{}).(sentry.Meter); ok && meter != nil {
		return meter.WithCtx(ctx)
	}
	return sentry.NewMeter(ctx).WithCtx(ctx)
}

// RecordHTTPRequest counts a served request and its latency. route should be
// the matched path template so cardinality stays bounded.
func RecordHTTPRequest(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unknown"
	}
	meter := MeterFromContext(ctx)
	attrs := []attribute.Builder{
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	}

	meter.Count("http.server.requests", 1, sentry.WithAttributes(attrs...))
	meter.Distribution("http.server.duration", float64(elapsed.Milliseconds()),
		sentry.WithUnit(sentry.UnitMillisecond),
		sentry.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.String("http.status_class", fmt.Sprintf("%dxx", status/100)),
		),
	)
	if status >= 500 {
		meter.Count("http.server.errors", 1, sentry.WithAttributes(attrs...))
	}
}

// Transition outcomes.
const (
	OutcomeApplied = "applied"
	OutcomeRefused = "refused"
	OutcomeFailed  = "failed"
)

// RecordTransition counts one workflow transition attempt. reason is empty
// for applied transitions.
func RecordTransition(ctx context.Context, action, outcome, reason string) {
	attrs := []attribute.Builder{
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	}
	if reason != "" {
		attrs = append(attrs, attribute.String("reason", reason))
	}
	MeterFromContext(ctx).Count("workflow.transitions", 1, sentry.WithAttributes(attrs...))
}

func RecordNotificationFailure(ctx context.Context, kind string) {
	MeterFromContext(ctx).Count("notification.failed", 1, sentry.WithAttributes(attribute.String("kind", kind)))
}
