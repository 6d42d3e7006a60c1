// Package schema owns the field-definition documents stored under a
// space. Schema counts use the ledger's delta path: no authoritative
// id-list is kept, the prefix listing in the store is the source of
// truth for enumeration.
package schema

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

var ErrNotFound = errors.New("schema: not found")

// Field is one column in a schema definition. Document field values
// are not validated against this today; the definition is advisory.
type Field struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
	// One of: Text, RichText, Integer, Number, Date, Boolean.
	Type string `json:"type"`
}

// Schema is the stored document.
type Schema struct {
	ID          string      `json:"uid"`
	Name        string      `json:"name"`
	Fields      []Field     `json:"fields"`
	SpaceID     string      `json:"spaceid"`
	Owner       owner.Owner `json:"owner"`
	CreatedAt   int64       `json:"created_at"`
	LastUpdated int64       `json:"last_updated,omitempty"`
}

// Public is the outward shape; the owner reference stays private.
type Public struct {
	ID          string  `json:"uid"`
	Name        string  `json:"name"`
	Fields      []Field `json:"fields"`
	CreatedAt   int64   `json:"created_at"`
	LastUpdated int64   `json:"last_updated,omitempty"`
}

func (s *Schema) Public() Public {
	fields := s.Fields
	if fields == nil {
		fields = []Field{}
	}
	return Public{ID: s.ID, Name: s.Name, Fields: fields, CreatedAt: s.CreatedAt, LastUpdated: s.LastUpdated}
}

// OwnedBy reports whether the schema belongs to the user.
func (s *Schema) OwnedBy(uid string) bool {
	return s.Owner.Type == "user" && s.Owner.ID == uid
}

// IsID is the shape check applied before any store lookup.
func IsID(s string) bool { return ids.IsULID(s) }

func schemaKey(spaceID, uid string) string {
	return kv.Key("spaces", spaceID, "types", uid)
}

// Repo is the schema repository.
type Repo struct {
	store   kv.Store
	ledger  *owner.Ledger
	billing billing.Client
}

// NewRepo wires the repository with its collaborators.
func NewRepo(store kv.Store, ledger *owner.Ledger, bill billing.Client) *Repo {
	return &Repo{store: store, ledger: ledger, billing: bill}
}

// Find loads a schema document by space and id.
func (r *Repo) Find(ctx context.Context, spaceID, uid string) (*Schema, error) {
	var s Schema
	err := kv.GetJSON(ctx, r.store, schemaKey(spaceID, uid), &s)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List enumerates every schema under the space via the key prefix.
// ULID ids make the listing creation-ordered.
func (r *Repo) List(ctx context.Context, spaceID string) ([]*Schema, error) {
	keys, err := kv.ListAll(ctx, r.store, schemaKey(spaceID, ""))
	if err != nil {
		return nil, err
	}
	out := make([]*Schema, 0, len(keys))
	for _, key := range keys {
		var s Schema
		if err := kv.GetJSON(ctx, r.store, key, &s); err != nil {
			if errors.Is(err, kv.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, &s)
	}
	return out, nil
}

// Save overwrites the schema document.
func (r *Repo) Save(ctx context.Context, s *Schema) error {
	return kv.PutJSON(ctx, r.store, schemaKey(s.SpaceID, s.ID), s, 0)
}

// Insert creates a schema under the space and bumps the owner's schema
// count. Like all repository mutations, a failed sync fails the whole
// operation even though the document was already written.
func (r *Repo) Insert(ctx context.Context, name string, spaceID string, u *user.User) (*Schema, error) {
	uid, err := ids.Allocate(ctx, ids.ULID,
		func(ctx context.Context, candidate string) (bool, error) {
			_, err := r.store.Get(ctx, schemaKey(spaceID, candidate))
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

	s := &Schema{
		ID:        uid,
		Name:      strings.TrimSpace(name),
		Fields:    []Field{},
		SpaceID:   spaceID,
		Owner:     owner.ForUser(u.ID),
		CreatedAt: time.Now().Unix(),
	}
	if err := r.Save(ctx, s); err != nil {
		return nil, err
	}
	if err := r.sync(ctx, u, +1); err != nil {
		return nil, err
	}
	return s, nil
}

// Update renames the schema and replaces its field definitions.
func (r *Repo) Update(ctx context.Context, s *Schema, name string, fields []Field) (*Schema, error) {
	name = strings.TrimSpace(name)
	changed := false
	if name != "" && name != s.Name {
		s.Name = name
		changed = true
	}
	if fields != nil {
		s.Fields = fields
		changed = true
	}
	if !changed {
		return s, nil
	}
	s.LastUpdated = time.Now().Unix()
	if err := r.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Destroy removes the schema document and decrements the owner's count.
func (r *Repo) Destroy(ctx context.Context, s *Schema, u *user.User) error {
	if err := r.store.Delete(ctx, schemaKey(s.SpaceID, s.ID)); err != nil {
		return err
	}
	return r.sync(ctx, u, -1)
}

// sync shifts the owner's schema count and mirrors the result into
// billing. The delta path can lose updates under concurrency; see the
// owner package.
func (r *Repo) sync(ctx context.Context, u *user.User, delta int) error {
	counts, err := r.ledger.Adjust(ctx, owner.ForUser(u.ID), owner.KindSchemas, delta)
	if err != nil {
		return err
	}
	_, err = r.billing.UpdateCustomer(ctx, u.Billing.CustomerID, counts.Metadata(u.ID))
	return err
}
