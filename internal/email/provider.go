// Package email sends customer notifications through a transactional email API.
package email

import (
	"context"
	"fmt"
	"time"

	"github.com/restitch/restitch/internal/observability"
)

const (
	ProviderNone     = "none"
	ProviderPostmark = "postmark"
	ProviderResend   = "resend"
	ProviderMailgun  = "mailgun"

	sendTimeout = 30 * time.Second
)

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
	ValidateAPIKey(ctx context.Context) error
}

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Config struct {
	Provider string
	APIKey   string
	From     string
	// Domain is the Mailgun sending domain.
	Domain string
}

// NewProvider builds the configured provider. It returns a nil Provider when
// email is disabled.
func NewProvider(config Config) (Provider, error) {
	switch config.Provider {
	case "", ProviderNone:
		return nil, nil
	case ProviderPostmark:
		return NewPostmarkProvider(config.APIKey, config.From, observability.NewHTTPClient(sendTimeout)), nil
	case ProviderResend:
		return NewResendProvider(config.APIKey, config.From, observability.NewHTTPClient(sendTimeout)), nil
	case ProviderMailgun:
		if config.Domain == "" {
			return nil, fmt.Errorf("a sending domain is required for mailgun")
		}
		return NewMailgunProvider(config.APIKey, config.Domain, config.From, observability.NewHTTPClient(sendTimeout)), nil
	default:
		return nil, fmt.Errorf("EMAIL_PROVIDER must be one of 'none', 'postmark', 'resend', or 'mailgun'")
	}
}
