package email

import (
	"context"
	"fmt"
	"net/http"

	resend "github.com/resend/resend-go/v3"
)

// ResendProvider sends through the Resend SDK.
type ResendProvider struct {
	from   string
	client *resend.Client
}

// NewResendProvider builds a provider on httpClient, or on the SDK's default
// client when httpClient is nil.
func NewResendProvider(apiKey, from string, httpClient *http.Client) *ResendProvider {
	var client *resend.Client
	if httpClient != nil {
		client = resend.NewCustomClient(httpClient, apiKey)
	} else {
		client = resend.NewClient(apiKey)
	}
	return &ResendProvider{
		from:   from,
		client: client,
	}
}

// SendEmail sends one message tagged as a notification.
func (r *ResendProvider) SendEmail(ctx context.Context, email *Email) error {
	if email == nil {
		return fmt.Errorf("email is required")
	}
	if r.client == nil {
		return fmt.Errorf("resend client not configured")
	}

	params := &resend.SendEmailRequest{
		From:    r.from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
		Tags:    []resend.Tag{{Name: "category", Value: "notification"}},
	}
	if params.Html == "" && params.Text == "" {
		return fmt.Errorf("email body is empty")
	}

	if _, err := r.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("failed to send email via resend: %w", err)
	}
	return nil
}

// ValidateAPIKey lists the account's API keys, which fails for a bad key.
func (r *ResendProvider) ValidateAPIKey(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("resend client not configured")
	}
	if _, err := r.client.ApiKeys.ListWithContext(ctx); err != nil {
		return fmt.Errorf("invalid API key: %w", err)
	}
	return nil
}
