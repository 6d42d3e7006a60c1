// Package billing talks to the payment provider. The service only ever
// mirrors ownership counts into the customer's metadata bag and manages
// plan subscriptions; everything else about the provider is opaque.
package billing

import (
	"context"
	"strconv"
)

// Metadata is the counts bag mirrored onto the customer record after
// every successful ledger sync.
type Metadata struct {
	Users     int
	Spaces    int
	Schemas   int
	Documents int
	OwnerID   string
}

// Customer is the subset of the provider's customer object we read.
type Customer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata"`
}

// Subscription is the subset of the provider's subscription object we read.
type Subscription struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
}

// Client is the provider contract used by the repositories.
type Client interface {
	CreateCustomer(ctx context.Context, email, name string, meta Metadata) (Customer, error)
	UpdateCustomer(ctx context.Context, customerID string, meta Metadata) (Customer, error)
	CreateSubscription(ctx context.Context, customerID, priceID string) (Subscription, error)
}

// fields renders the metadata bag as the provider's bracketed form keys.
func (m Metadata) fields() map[string]string {
	return map[string]string{
		"metadata[users]":     strconv.Itoa(m.Users),
		"metadata[spaces]":    strconv.Itoa(m.Spaces),
		"metadata[schemas]":   strconv.Itoa(m.Schemas),
		"metadata[documents]": strconv.Itoa(m.Documents),
		"metadata[ownerid]":   m.OwnerID,
	}
}

// Noop satisfies Client without a configured provider. Used by tests
// and deployments that run without billing credentials.
type Noop struct{}

var _ Client = Noop{}

func (Noop) CreateCustomer(_ context.Context, email, name string, _ Metadata) (Customer, error) {
	return Customer{ID: "cus_none", Email: email, Name: name}, nil
}

func (Noop) UpdateCustomer(_ context.Context, customerID string, _ Metadata) (Customer, error) {
	return Customer{ID: customerID}, nil
}

func (Noop) CreateSubscription(_ context.Context, customerID, priceID string) (Subscription, error) {
	return Subscription{ID: "sub_none", Customer: customerID, Status: "active"}, nil
}
