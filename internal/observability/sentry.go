package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
)

const flushTimeout = 2 * time.Second

type SentryConfig struct {
	DSN         string
	Environment string
	SampleRate  float64
}

// InitSentry configures the global Sentry client. It is a no-op without a DSN
// and reports whether Sentry is active.
func InitSentry(cfg SentryConfig) (bool, error) {
	if cfg.DSN == "" {
		return false, nil
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		EnableTracing:    true,
		TracesSampleRate: sampleRate,
	}); err != nil {
		return false, fmt.Errorf("failed to initialize sentry: %w", err)
	}
	return true, nil
}

func FlushSentry() {
	sentry.Flush(flushTimeout)
}

// TraceRequests starts a transaction for every request and attaches a hub to
// its context so spans and meters report under it.
func TraceRequests(next http.Handler) http.Handler {
	return sentryhttp.New(sentryhttp.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}).Handle(next)
}
