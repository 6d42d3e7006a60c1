// Package user owns the account documents plus the "emails::" login
// index. Passwords never leave the package unhashed, and the stored
// salt is the revocation pivot for every outstanding token.
package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"contentd.org/internal/auth"
	"contentd.org/internal/billing"
	"contentd.org/internal/email"
	"contentd.org/internal/ids"
	"contentd.org/internal/kv"
)

var (
	ErrNotFound   = errors.New("user: not found")
	ErrEmailTaken = errors.New("user: email already registered")
)

// DefaultPriceID is the free plan every new customer starts on.
const DefaultPriceID = "price_free"

// Billing holds the provider-side identifiers attached to the account.
type Billing struct {
	CustomerID     string `json:"customer,omitempty"`
	SubscriptionID string `json:"subscription,omitempty"`
}

// User is the stored account document.
type User struct {
	ID          string  `json:"uid"`
	Email       string  `json:"email"`
	Password    string  `json:"password"` // PBKDF2 hash, hex
	Salt        string  `json:"salt"`
	FirstName   string  `json:"firstname,omitempty"`
	LastName    string  `json:"lastname,omitempty"`
	Billing     Billing `json:"billing"`
	CreatedAt   int64   `json:"created_at"`
	LastUpdated int64   `json:"last_updated,omitempty"`
}

// Public is the outward account shape. Password and salt never leave
// the store.
type Public struct {
	ID          string `json:"uid"`
	Email       string `json:"email"`
	FirstName   string `json:"firstname,omitempty"`
	LastName    string `json:"lastname,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	LastUpdated int64  `json:"last_updated,omitempty"`
}

// Public strips the credential fields for display.
func (u *User) Public() Public {
	return Public{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		CreatedAt:   u.CreatedAt,
		LastUpdated: u.LastUpdated,
	}
}

// IsID is the shape check applied before any store lookup.
func IsID(s string) bool { return len(s) == ids.UserLength }

func userKey(uid string) string    { return kv.Key("users", uid) }
func emailKey(email string) string { return kv.Key("emails", email) }

// Changes carries an account update; empty fields are left alone.
type Changes struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Repo is the account repository.
type Repo struct {
	store   kv.Store
	tokens  *auth.TokenManager
	billing billing.Client
	mail    email.Sender
	logger  *zap.Logger
	priceID string
}

// NewRepo wires the repository with its collaborators.
func NewRepo(store kv.Store, tokens *auth.TokenManager, bill billing.Client, mail email.Sender, logger *zap.Logger) *Repo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{store: store, tokens: tokens, billing: bill, mail: mail, logger: logger, priceID: DefaultPriceID}
}

// WithPrice overrides the plan new registrations are subscribed to.
func (r *Repo) WithPrice(id string) *Repo {
	if id != "" {
		r.priceID = id
	}
	return r
}

// Find loads a user document by id.
func (r *Repo) Find(ctx context.Context, uid string) (*User, error) {
	var u User
	err := kv.GetJSON(ctx, r.store, userKey(uid), &u)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// LookupEmail resolves an email to the user id behind it.
func (r *Repo) LookupEmail(ctx context.Context, addr string) (string, error) {
	var uid string
	err := kv.GetJSON(ctx, r.store, emailKey(addr), &uid)
	if errors.Is(err, kv.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return uid, nil
}

// FindByEmail chains the email index and the user document.
func (r *Repo) FindByEmail(ctx context.Context, addr string) (*User, error) {
	uid, err := r.LookupEmail(ctx, addr)
	if err != nil {
		return nil, err
	}
	return r.Find(ctx, uid)
}

// Save overwrites the user document.
func (r *Repo) Save(ctx context.Context, u *User) error {
	return kv.PutJSON(ctx, r.store, userKey(u.ID), u, 0)
}

// Insert registers a new account: hashes the password, allocates an
// unused id, creates the billing customer, and writes the user document
// plus the email login index. The welcome email is fire-and-forget.
func (r *Repo) Insert(ctx context.Context, addr, password string) (*User, error) {
	if _, err := r.LookupEmail(ctx, addr); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, salt := auth.Prepare(password)
	uid, err := ids.Allocate(ctx,
		func() string { return ids.Random(ids.UserLength) },
		func(ctx context.Context, candidate string) (bool, error) {
			_, err := r.store.Get(ctx, userKey(candidate))
			if errors.Is(err, kv.ErrNotFound) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return true, nil
		})
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:        uid,
		Email:     addr,
		Password:  hash,
		Salt:      salt,
		CreatedAt: time.Now().Unix(),
	}

	customer, err := r.billing.CreateCustomer(ctx, u.Email, "", billing.Metadata{Users: 1, OwnerID: uid})
	if err != nil {
		return nil, err
	}
	u.Billing.CustomerID = customer.ID

	sub, err := r.billing.CreateSubscription(ctx, customer.ID, r.priceID)
	if err != nil {
		return nil, err
	}
	u.Billing.SubscriptionID = sub.ID

	if err := r.Save(ctx, u); err != nil {
		return nil, err
	}
	if err := kv.PutJSON(ctx, r.store, emailKey(u.Email), u.ID, 0); err != nil {
		return nil, err
	}

	r.sendWelcome(u)
	return u, nil
}

// Update applies changes to the account. An email change moves the
// login index and is rejected when another account already holds the
// address; a password change re-salts the credentials, which revokes
// every outstanding token for the account.
func (r *Repo) Update(ctx context.Context, u *User, changes Changes) (*User, error) {
	prevEmail := u.Email

	if v := strings.TrimSpace(changes.FirstName); v != "" {
		u.FirstName = v
	}
	if v := strings.TrimSpace(changes.LastName); v != "" {
		u.LastName = v
	}
	if v := strings.TrimSpace(changes.Email); v != "" && v != prevEmail {
		uid, err := r.LookupEmail(ctx, v)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if err == nil && uid != u.ID {
			return nil, ErrEmailTaken
		}
		u.Email = v
	}
	u.LastUpdated = time.Now().Unix()

	rotated := changes.Password != ""
	if rotated {
		u.Password, u.Salt = auth.Prepare(changes.Password)
	}

	if err := r.Save(ctx, u); err != nil {
		return nil, err
	}

	if u.Email != prevEmail {
		if err := r.store.Delete(ctx, emailKey(prevEmail)); err != nil {
			return nil, err
		}
		if err := kv.PutJSON(ctx, r.store, emailKey(u.Email), u.ID, 0); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// Tokenize issues a fresh bearer token for the account.
func (r *Repo) Tokenize(u *User) (string, error) {
	return r.tokens.Sign(u.ID, u.Salt)
}

// Identify exchanges a bearer token for the account it names. Beyond
// the token checks it enforces salt freshness: a token carrying a salt
// other than the stored one is invalid, which is how a password reset
// revokes outstanding sessions.
func (r *Repo) Identify(ctx context.Context, token string) (*User, error) {
	claims, err := r.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	u, err := r.Find(ctx, claims.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, auth.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if u.Salt != claims.Salt {
		return nil, auth.ErrInvalidToken
	}
	return u, nil
}

func (r *Repo) sendWelcome(u *User) {
	name := u.FirstName
	if name == "" {
		name = "Guest"
	}
	to := email.Recipient{Email: u.Email, Name: name}
	if err := r.mail.Send(context.Background(), email.TemplateWelcome, to, map[string]string{"firstname": name}); err != nil {
		r.logger.Warn("welcome email failed", zap.String("uid", u.ID), zap.Error(err))
	}
}

// SendReset delivers the password-reset email; fire-and-forget.
func (r *Repo) SendReset(u *User, token string) {
	to := email.Recipient{Email: u.Email, Name: u.FirstName}
	if err := r.mail.Send(context.Background(), email.TemplatePasswordReset, to, map[string]string{"token": token}); err != nil {
		r.logger.Warn("reset email failed", zap.String("uid", u.ID), zap.Error(err))
	}
}
