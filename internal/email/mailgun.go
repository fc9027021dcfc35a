package email

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const mailgunBaseURL = "https://api.mailgun.net/v3"

// MailgunProvider sends through the Mailgun messages API for one sending
// domain.
type MailgunProvider struct {
	apiKey  string
	from    string
	domain  string
	baseURL string
	client  *http.Client
}

type MailgunResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

func NewMailgunProvider(apiKey, domain, from string, client *http.Client) *MailgunProvider {
	return NewMailgunProviderWithBaseURL(apiKey, domain, from, mailgunBaseURL, client)
}

func NewMailgunProviderWithBaseURL(apiKey, domain, from, baseURL string, client *http.Client) *MailgunProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &MailgunProvider{
		apiKey:  apiKey,
		from:    from,
		domain:  domain,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (m *MailgunProvider) SendEmail(ctx context.Context, email *Email) error {
	if email == nil {
		return fmt.Errorf("email is required")
	}

	data := url.Values{}
	data.Set("from", m.from)
	data.Set("to", email.To)
	data.Set("subject", email.Subject)
	data.Set("o:tag", "restitch-notification")
	if email.Text != "" {
		data.Set("text", email.Text)
	}
	if email.HTML != "" {
		data.Set("html", email.HTML)
	}

	apiURL := fmt.Sprintf("%s/%s/messages", m.baseURL, url.PathEscape(m.domain))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	status, body, err := m.do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if status != http.StatusOK {
		var errResp MailgunResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			return fmt.Errorf("mailgun error: %s", errResp.Message)
		}
		return fmt.Errorf("mailgun API returned status %d: %s", status, string(body))
	}
	return nil
}

// ValidateAPIKey looks up the sending domain, which fails for a bad key or an
// unknown domain.
func (m *MailgunProvider) ValidateAPIKey(ctx context.Context) error {
	apiURL := fmt.Sprintf("%s/domains/%s", m.baseURL, url.PathEscape(m.domain))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	status, body, err := m.do(req)
	if err != nil {
		return fmt.Errorf("failed to validate API key: %w", err)
	}
	if status != http.StatusOK {
		if len(body) > 0 {
			return fmt.Errorf("invalid API key: received status %d: %s", status, string(body))
		}
		return fmt.Errorf("invalid API key: received status %d", status)
	}
	return nil
}

func (m *MailgunProvider) do(req *http.Request) (int, []byte, error) {
	req.SetBasicAuth("api", m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	body, readErr := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if readErr != nil {
		return 0, nil, fmt.Errorf("failed to read mailgun response: %w", readErr)
	}
	if closeErr != nil {
		return 0, nil, fmt.Errorf("failed to close mailgun response body: %w", closeErr)
	}
	return resp.StatusCode, body, nil
}
