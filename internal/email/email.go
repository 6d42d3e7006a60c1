// Package email sends templated transactional mail. Delivery is
// fire-and-forget: failures are logged by callers and never surfaced to
// the request that triggered them.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Pre-existing dynamic templates on the provider side.
const (
	TemplateWelcome       = "d-4f06574d17ee48b4a8dfc3503e8d5d69"
	TemplatePasswordReset = "d-91ab3b1219af4cd5a3fe29b2e4ed3a07"
)

// Recipient identifies where a message goes.
type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Sender is the provider contract.
type Sender interface {
	Send(ctx context.Context, templateID string, to Recipient, data map[string]string) error
}

const sendgridAPI = "https://api.sendgrid.com/v3/mail/send"

// SendGrid posts templated sends to the provider API.
type SendGrid struct {
	token   string
	from    Recipient
	baseURL string
	client  *http.Client
}

var _ Sender = (*SendGrid)(nil)

// NewSendGrid builds a sender authenticated with the API token.
func NewSendGrid(token string, from Recipient) *SendGrid {
	return &SendGrid{
		token:   token,
		from:    from,
		baseURL: sendgridAPI,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// WithBaseURL redirects requests; test hook.
func (s *SendGrid) WithBaseURL(base string) *SendGrid {
	s.baseURL = strings.TrimRight(base, "/")
	return s
}

func (s *SendGrid) Send(ctx context.Context, templateID string, to Recipient, data map[string]string) error {
	payload := map[string]any{
		"from":        s.from,
		"reply_to":    s.from,
		"template_id": templateID,
		"personalizations": []map[string]any{{
			"to":                    []Recipient{to},
			"dynamic_template_data": data,
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("email: send %s: %w", templateID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("email: send %s to %s: status %d: %s", templateID, to.Email, resp.StatusCode, detail)
	}
	return nil
}

// Noop satisfies Sender without a configured provider.
type Noop struct{}

var _ Sender = Noop{}

func (Noop) Send(context.Context, string, Recipient, map[string]string) error { return nil }
