package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const postmarkBaseURL = "https://api.postmarkapp.com"

// PostmarkProvider talks to the Postmark HTTP API.
type PostmarkProvider struct {
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
}

type PostmarkResponse struct {
	ErrorCode   int    `json:"ErrorCode"`
	Message     string `json:"Message"`
	MessageID   string `json:"MessageID"`
	SubmittedAt string `json:"SubmittedAt"`
}

func NewPostmarkProvider(apiKey, from string, client *http.Client) *PostmarkProvider {
	return NewPostmarkProviderWithBaseURL(apiKey, from, postmarkBaseURL, client)
}

func NewPostmarkProviderWithBaseURL(apiKey, from, baseURL string, client *http.Client) *PostmarkProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &PostmarkProvider{
		apiKey:  apiKey,
		from:    from,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type postmarkEmail struct {
	From          string `json:"From"`
	To            string `json:"To"`
	Subject       string `json:"Subject"`
	TextBody      string `json:"TextBody,omitempty"`
	HtmlBody      string `json:"HtmlBody,omitempty"`
	Tag           string `json:"Tag,omitempty"`
	MessageStream string `json:"MessageStream"`
}

func (p *PostmarkProvider) SendEmail(ctx context.Context, email *Email) error {
	if email == nil {
		return fmt.Errorf("email is required")
	}

	payload := postmarkEmail{
		From:          p.from,
		To:            email.To,
		Subject:       email.Subject,
		TextBody:      email.Text,
		HtmlBody:      email.HTML,
		Tag:           "restitch-notification",
		MessageStream: "outbound",
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/email", bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	status, body, err := p.do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	var result PostmarkResponse
	parseErr := json.Unmarshal(body, &result)
	if status != http.StatusOK {
		if parseErr == nil && result.ErrorCode != 0 {
			return fmt.Errorf("postmark error (%d): %s", result.ErrorCode, result.Message)
		}
		return fmt.Errorf("postmark API returned status %d: %s", status, string(body))
	}
	if parseErr != nil {
		return fmt.Errorf("failed to parse response: %w", parseErr)
	}
	if result.ErrorCode != 0 {
		return fmt.Errorf("postmark error (%d): %s", result.ErrorCode, result.Message)
	}
	return nil
}

func (p *PostmarkProvider) ValidateAPIKey(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/server", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	status, body, err := p.do(req)
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

func (p *PostmarkProvider) do(req *http.Request) (int, []byte, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	body, readErr := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if readErr != nil {
		return 0, nil, fmt.Errorf("failed to read postmark response: %w", readErr)
	}
	if closeErr != nil {
		return 0, nil, fmt.Errorf("failed to close postmark response body: %w", closeErr)
	}
	return resp.StatusCode, body, nil
}
