package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"contentd.org/internal/auth"
	"contentd.org/internal/billing"
	"contentd.org/internal/email"
	"contentd.org/internal/ids"
	"contentd.org/internal/kv/memory"
)

func newTestRepo(t *testing.T) (*Repo, *memory.Store) {
	t.Helper()
	store := memory.New()
	tokens := auth.NewTokenManager([]byte("test-secret"), time.Hour)
	repo := NewRepo(store, tokens, billing.Noop{}, email.Noop{}, nil)
	return repo, store
}

func TestInsert(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	u, err := repo.Insert(ctx, "a@x.com", "hunter2")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if len(u.ID) != ids.UserLength {
		t.Fatalf("id length = %d, want %d", len(u.ID), ids.UserLength)
	}
	if u.Password == "hunter2" {
		t.Fatal("password stored in the clear")
	}
	if len(u.Password) != auth.HashLength {
		t.Fatalf("hash length = %d", len(u.Password))
	}
	if u.Salt == "" {
		t.Fatal("no salt stored")
	}
	if u.Billing.CustomerID == "" {
		t.Fatal("no billing customer attached")
	}
	if u.Billing.SubscriptionID == "" {
		t.Fatal("no subscription attached")
	}

	// Email index resolves back to the account.
	uid, err := repo.LookupEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("LookupEmail: %v", err)
	}
	if uid != u.ID {
		t.Fatalf("email index points at %q, want %q", uid, u.ID)
	}
}

// planRecorder captures the subscription call made during registration.
type planRecorder struct {
	billing.Noop
	customer string
	price    string
}

func (p *planRecorder) CreateSubscription(_ context.Context, customerID, priceID string) (billing.Subscription, error) {
	p.customer = customerID
	p.price = priceID
	return billing.Subscription{ID: "sub_rec1", Customer: customerID, Status: "active"}, nil
}

func TestInsertSubscribesToPlan(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tokens := auth.NewTokenManager([]byte("test-secret"), time.Hour)
	rec := &planRecorder{}
	repo := NewRepo(store, tokens, rec, email.Noop{}, nil).WithPrice("price_custom")

	u, err := repo.Insert(ctx, "a@x.com", "hunter2")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if u.Billing.SubscriptionID != "sub_rec1" {
		t.Fatalf("subscription id = %q", u.Billing.SubscriptionID)
	}
	if rec.customer != u.Billing.CustomerID {
		t.Fatalf("subscribed customer %q, want %q", rec.customer, u.Billing.CustomerID)
	}
	if rec.price != "price_custom" {
		t.Fatalf("subscribed price %q", rec.price)
	}
}

func TestInsertDefaultPlan(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tokens := auth.NewTokenManager([]byte("test-secret"), time.Hour)
	rec := &planRecorder{}
	repo := NewRepo(store, tokens, rec, email.Noop{}, nil)

	if _, err := repo.Insert(ctx, "a@x.com", "hunter2"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if rec.price != DefaultPriceID {
		t.Fatalf("subscribed price %q, want %q", rec.price, DefaultPriceID)
	}
}

func TestInsertDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	if _, err := repo.Insert(ctx, "a@x.com", "hunter2"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := repo.Insert(ctx, "a@x.com", "other"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate email: %v, want ErrEmailTaken", err)
	}
}

func TestPublicStripsCredentials(t *testing.T) {
	u := User{ID: "id", Email: "a@x.com", Password: "hash", Salt: "salt"}
	p := u.Public()
	if p.ID != "id" || p.Email != "a@x.com" {
		t.Fatalf("public shape lost fields: %+v", p)
	}
}

func TestTokenizeAndIdentify(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	u, err := repo.Insert(ctx, "a@x.com", "hunter2")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	token, err := repo.Tokenize(u)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}

	got, err := repo.Identify(ctx, token)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("Identify resolved %q, want %q", got.ID, u.ID)
	}
}

func TestIdentifyRejectsStaleSalt(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	u, err := repo.Insert(ctx, "a@x.com", "hunter2")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	token, err := repo.Tokenize(u)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}

	// Password change rotates the salt and revokes the old token.
	if _, err := repo.Update(ctx, u, Changes{Password: "rotated"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := repo.Identify(ctx, token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("stale-salt token: %v, want ErrInvalidToken", err)
	}
}

func TestIdentifyUnknownSubject(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	tokens := auth.NewTokenManager([]byte("test-secret"), time.Hour)
	token, err := tokens.Sign("ghost000ghost001", "salt")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := repo.Identify(ctx, token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("unknown subject: %v, want ErrInvalidToken", err)
	}
}

func TestUpdateEmailMovesIndex(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	u, err := repo.Insert(ctx, "a@x.com", "hunter2")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := repo.Update(ctx, u, Changes{Email: "b@x.com"}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, err := repo.LookupEmail(ctx, "a@x.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old address still indexed: %v", err)
	}
	uid, err := repo.LookupEmail(ctx, "b@x.com")
	if err != nil {
		t.Fatalf("LookupEmail: %v", err)
	}
	if uid != u.ID {
		t.Fatalf("new index resolves %q", uid)
	}
}

func TestUpdateEmailAlreadyRegistered(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	a, err := repo.Insert(ctx, "a@x.com", "hunter2")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	b, err := repo.Insert(ctx, "b@x.com", "hunter2")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if _, err := repo.Update(ctx, b, Changes{Email: "a@x.com"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("update onto taken address: %v, want ErrEmailTaken", err)
	}

	// The other account's index entry must survive the attempt.
	uid, err := repo.LookupEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("LookupEmail: %v", err)
	}
	if uid != a.ID {
		t.Fatalf("index for a@x.com resolves %q, want %q", uid, a.ID)
	}

	// Re-submitting the account's own address is not a conflict.
	if _, err := repo.Update(ctx, b, Changes{Email: "b@x.com"}); err != nil {
		t.Fatalf("update with own address: %v", err)
	}
}

func TestUpdateEmptyFieldsUnchanged(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	u, err := repo.Insert(ctx, "a@x.com", "hunter2")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	prevSalt := u.Salt

	u, err = repo.Update(ctx, u, Changes{FirstName: "Ada"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if u.FirstName != "Ada" {
		t.Fatalf("firstname = %q", u.FirstName)
	}
	if u.Email != "a@x.com" {
		t.Fatalf("email changed to %q", u.Email)
	}
	if u.Salt != prevSalt {
		t.Fatal("salt rotated without a password change")
	}
}
