package auth

import (
	"context"
	"errors"
	"time"

	"contentd.org/internal/ids"
	"contentd.org/internal/kv"
)

// resetTTL bounds how long a reset link stays usable.
const resetTTL = 12 * time.Hour

func resetKey(token string) string {
	return kv.Key("reset", token)
}

// Resets manages one-time password-reset tokens. Each token is a
// 100-character random identifier stored under "reset::<token>" and
// mapped to the user id; the document expires on its own, and a
// successful reset deletes it early so the link cannot be replayed.
type Resets struct {
	store kv.Store
	ttl   time.Duration
}

// NewResets builds a reset-token manager over the store.
func NewResets(store kv.Store) *Resets {
	return &Resets{store: store, ttl: resetTTL}
}

// Create allocates an unused token and persists it against userID.
func (r *Resets) Create(ctx context.Context, userID string) (string, error) {
	token, err := ids.Allocate(ctx,
		func() string { return ids.Random(ids.ResetLength) },
		func(ctx context.Context, candidate string) (bool, error) {
			_, err := r.store.Get(ctx, resetKey(candidate))
			if errors.Is(err, kv.ErrNotFound) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return true, nil
		})
	if err != nil {
		return "", err
	}
	if err := kv.PutJSON(ctx, r.store, resetKey(token), userID, r.ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Lookup resolves a token to the user id it was issued for. The shape
// check runs before any store read; a wrong-length token is invalid on
// its face.
func (r *Resets) Lookup(ctx context.Context, token string) (string, error) {
	if len(token) != ids.ResetLength {
		return "", ErrInvalidToken
	}
	var userID string
	err := kv.GetJSON(ctx, r.store, resetKey(token), &userID)
	if errors.Is(err, kv.ErrNotFound) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

// Consume deletes a token after a successful reset.
func (r *Resets) Consume(ctx context.Context, token string) error {
	return r.store.Delete(ctx, resetKey(token))
}
