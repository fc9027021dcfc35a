package observability

import (
	"net/http"
	"time"

	sentryhttpclient "github.com/getsentry/sentry-go/httpclient"
)

// Email APIs that receive sentry-trace and baggage headers so notification
// sends show up under the request that triggered them.
var tracePropagationTargets = []string{
	"api.postmarkapp.com",
	"api.resend.com",
}

// NewHTTPClient returns a client whose requests are recorded as spans.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: sentryhttpclient.NewSentryRoundTripper(
			http.DefaultTransport,
			sentryhttpclient.WithTracePropagationTargets(tracePropagationTargets),
		),
	}
}
