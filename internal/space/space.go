// Package space owns the space documents and drives the list-tracked
// side of the ownership ledger: every create/destroy rewrites the
// owner's space id-list and derives the count from it.
package space

import (
	"context"
	"errors"
	"strings"
	"time"

	"contentd.org/internal/billing"
	"contentd.org/internal/ids"
	"contentd.org/internal/kv"
	"contentd.org/internal/owner"
	"contentd.org/internal/user"
)

var ErrNotFound = errors.New("space: not found")

// Space is the stored document.
type Space struct {
	ID          string      `json:"uid"`
	Name        string      `json:"name"`
	Owner       owner.Owner `json:"owner"`
	CreatedAt   int64       `json:"created_at"`
	LastUpdated int64       `json:"last_updated,omitempty"`
}

// Public is the outward shape; spaces only ever surface to their
// owner, so the owner reference rides along.
type Public struct {
	ID          string      `json:"uid"`
	Name        string      `json:"name"`
	Owner       owner.Owner `json:"owner"`
	CreatedAt   int64       `json:"created_at"`
	LastUpdated int64       `json:"last_updated,omitempty"`
}

func (s *Space) Public() Public {
	return Public{ID: s.ID, Name: s.Name, Owner: s.Owner, CreatedAt: s.CreatedAt, LastUpdated: s.LastUpdated}
}

// OwnedBy reports whether the space belongs to the user.
func (s *Space) OwnedBy(uid string) bool {
	return s.Owner.Type == "user" && s.Owner.ID == uid
}

// IsID is the shape check applied before any store lookup.
func IsID(s string) bool { return len(s) == ids.SpaceLength }

func spaceKey(uid string) string { return kv.Key("spaces", uid) }

// Repo is the space repository.
type Repo struct {
	store   kv.Store
	ledger  *owner.Ledger
	billing billing.Client
}

// NewRepo wires the repository with its collaborators.
func NewRepo(store kv.Store, ledger *owner.Ledger, bill billing.Client) *Repo {
	return &Repo{store: store, ledger: ledger, billing: bill}
}

// Find loads a space document by id.
func (r *Repo) Find(ctx context.Context, uid string) (*Space, error) {
	var s Space
	err := kv.GetJSON(ctx, r.store, spaceKey(uid), &s)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns the owner's spaces in creation order. Ids whose
// documents have gone missing are skipped, not errored: the ledger list
// may briefly run ahead of the documents under concurrent mutation.
func (r *Repo) List(ctx context.Context, u *user.User) ([]*Space, error) {
	spaceIDs, err := r.ledger.SpaceIDs(ctx, owner.ForUser(u.ID))
	if err != nil {
		return nil, err
	}
	out := make([]*Space, 0, len(spaceIDs))
	for _, id := range spaceIDs {
		s, err := r.Find(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Save overwrites the space document.
func (r *Repo) Save(ctx context.Context, s *Space) error {
	return kv.PutJSON(ctx, r.store, spaceKey(s.ID), s, 0)
}

// Insert creates a space and synchronizes ownership. If the ledger or
// billing step fails the document already exists in the store; the
// operation still reports failure and leaves the next read to observe
// the state (accepted inconsistency window, no rollback).
func (r *Repo) Insert(ctx context.Context, name string, u *user.User) (*Space, error) {
	uid, err := ids.Allocate(ctx,
		func() string { return ids.Random(ids.SpaceLength) },
		func(ctx context.Context, candidate string) (bool, error) {
			_, err := r.store.Get(ctx, spaceKey(candidate))
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

	s := &Space{
		ID:        uid,
		Name:      strings.TrimSpace(name),
		Owner:     owner.ForUser(u.ID),
		CreatedAt: time.Now().Unix(),
	}
	if err := r.Save(ctx, s); err != nil {
		return nil, err
	}

	spaceIDs, err := r.ledger.SpaceIDs(ctx, s.Owner)
	if err != nil {
		return nil, err
	}
	if err := r.sync(ctx, u, append(spaceIDs, s.ID)); err != nil {
		return nil, err
	}
	return s, nil
}

// Update renames the space. Identity and creation time are immutable.
func (r *Repo) Update(ctx context.Context, s *Space, name string) (*Space, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == s.Name {
		return s, nil
	}
	s.Name = name
	s.LastUpdated = time.Now().Unix()
	if err := r.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Destroy removes the space document and synchronizes ownership.
func (r *Repo) Destroy(ctx context.Context, s *Space, u *user.User) error {
	if err := r.store.Delete(ctx, spaceKey(s.ID)); err != nil {
		return err
	}

	spaceIDs, err := r.ledger.SpaceIDs(ctx, s.Owner)
	if err != nil {
		return err
	}
	kept := spaceIDs[:0]
	for _, id := range spaceIDs {
		if id != s.ID {
			kept = append(kept, id)
		}
	}
	return r.sync(ctx, u, kept)
}

// sync writes the full id-list through the ledger and mirrors the
// resulting counts into billing. The two are treated as one logical
// unit: the operation fails unless both complete.
func (r *Repo) sync(ctx context.Context, u *user.User, list []string) error {
	counts, err := r.ledger.Sync(ctx, owner.ForUser(u.ID), owner.KindSpaces, list)
	if err != nil {
		return err
	}
	_, err = r.billing.UpdateCustomer(ctx, u.Billing.CustomerID, counts.Metadata(u.ID))
	return err
}
