package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const stripeAPI = "https://api.stripe.com/v1"

// Stripe is the real provider client. Requests are form-encoded with
// the provider's bracketed nesting (metadata[users]=3).
type Stripe struct {
	secret  string
	baseURL string
	client  *http.Client
}

var _ Client = (*Stripe)(nil)

// NewStripe builds a client authenticated with the secret key.
func NewStripe(secret string) *Stripe {
	return &Stripe{
		secret:  secret,
		baseURL: stripeAPI,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// WithBaseURL redirects requests; test hook.
func (s *Stripe) WithBaseURL(base string) *Stripe {
	s.baseURL = strings.TrimRight(base, "/")
	return s
}

func (s *Stripe) CreateCustomer(ctx context.Context, email, name string, meta Metadata) (Customer, error) {
	form := url.Values{}
	form.Set("email", email)
	if name != "" {
		form.Set("name", name)
	}
	for k, v := range meta.fields() {
		form.Set(k, v)
	}
	var out Customer
	if err := s.send(ctx, http.MethodPost, "customers", form, &out); err != nil {
		return Customer{}, err
	}
	return out, nil
}

func (s *Stripe) UpdateCustomer(ctx context.Context, customerID string, meta Metadata) (Customer, error) {
	form := url.Values{}
	for k, v := range meta.fields() {
		form.Set(k, v)
	}
	var out Customer
	if err := s.send(ctx, http.MethodPost, "customers/"+customerID, form, &out); err != nil {
		return Customer{}, err
	}
	return out, nil
}

func (s *Stripe) CreateSubscription(ctx context.Context, customerID, priceID string) (Subscription, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("items[0][price]", priceID)
	var out Subscription
	if err := s.send(ctx, http.MethodPost, "subscriptions", form, &out); err != nil {
		return Subscription{}, err
	}
	return out, nil
}

func (s *Stripe) send(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+"/"+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.secret)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("billing: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("billing: %s %s: status %d: %s", method, path, resp.StatusCode, detail)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
