// Package document owns the content records stored under a space. Each
// document carries a slug alias key so it can be addressed by either
// its ULID or a human-chosen slug. Document counts use the ledger's
// delta path, like schemas.
package document

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

var ErrNotFound = errors.New("document: not found")

// Document is the stored record.
type Document struct {
	ID          string            `json:"uid"`
	Slug        string            `json:"slug"`
	Fields      map[string]string `json:"fields"`
	SchemaID    string            `json:"schemaid"`
	SpaceID     string            `json:"spaceid"`
	Owner       owner.Owner       `json:"owner"`
	CreatedAt   int64             `json:"created_at"`
	LastUpdated int64             `json:"last_updated,omitempty"`
}

// Public is the outward shape; the owner reference stays private.
type Public struct {
	ID          string            `json:"uid"`
	Slug        string            `json:"slug"`
	Fields      map[string]string `json:"fields"`
	SchemaID    string            `json:"schemaid"`
	CreatedAt   int64             `json:"created_at"`
	LastUpdated int64             `json:"last_updated,omitempty"`
}

func (d *Document) Public() Public {
	fields := d.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	return Public{
		ID:          d.ID,
		Slug:        d.Slug,
		Fields:      fields,
		SchemaID:    d.SchemaID,
		CreatedAt:   d.CreatedAt,
		LastUpdated: d.LastUpdated,
	}
}

// OwnedBy reports whether the document belongs to the user.
func (d *Document) OwnedBy(uid string) bool {
	return d.Owner.Type == "user" && d.Owner.ID == uid
}

// IsID is the shape check applied before any store lookup.
func IsID(s string) bool { return ids.IsULID(s) }

func docKey(spaceID, uid string) string {
	return kv.Key("spaces", spaceID, "docs", uid)
}

func slugKey(spaceID, slug string) string {
	return kv.Key("spaces", spaceID, "slugs", slug)
}

// Repo is the document repository.
type Repo struct {
	store   kv.Store
	ledger  *owner.Ledger
	billing billing.Client
}

// NewRepo wires the repository with its collaborators.
func NewRepo(store kv.Store, ledger *owner.Ledger, bill billing.Client) *Repo {
	return &Repo{store: store, ledger: ledger, billing: bill}
}

// Find loads a document by space and id.
func (r *Repo) Find(ctx context.Context, spaceID, uid string) (*Document, error) {
	var d Document
	err := kv.GetJSON(ctx, r.store, docKey(spaceID, uid), &d)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Lookup resolves a slug alias to a document id.
func (r *Repo) Lookup(ctx context.Context, spaceID, slug string) (string, error) {
	var uid string
	err := kv.GetJSON(ctx, r.store, slugKey(spaceID, slug), &uid)
	if errors.Is(err, kv.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return uid, nil
}

// List enumerates every document under the space via the key prefix.
func (r *Repo) List(ctx context.Context, spaceID string) ([]*Document, error) {
	keys, err := kv.ListAll(ctx, r.store, docKey(spaceID, ""))
	if err != nil {
		return nil, err
	}
	out := make([]*Document, 0, len(keys))
	for _, key := range keys {
		var d Document
		if err := kv.GetJSON(ctx, r.store, key, &d); err != nil {
			if errors.Is(err, kv.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, &d)
	}
	return out, nil
}

// Save overwrites the document and its slug alias.
func (r *Repo) Save(ctx context.Context, d *Document) error {
	if err := kv.PutJSON(ctx, r.store, docKey(d.SpaceID, d.ID), d, 0); err != nil {
		return err
	}
	return kv.PutJSON(ctx, r.store, slugKey(d.SpaceID, d.Slug), d.ID, 0)
}

// Insert creates a document conforming to the schema's space and bumps
// the owner's document count.
func (r *Repo) Insert(ctx context.Context, slug string, fields map[string]string, schemaID, spaceID string, u *user.User) (*Document, error) {
	uid, err := ids.Allocate(ctx, ids.ULID,
		func(ctx context.Context, candidate string) (bool, error) {
			_, err := r.store.Get(ctx, docKey(spaceID, candidate))
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

	slug = strings.TrimSpace(slug)
	if slug == "" {
		// Default the slug to the id itself; still addressable.
		slug = uid
	}
	if fields == nil {
		fields = map[string]string{}
	}

	d := &Document{
		ID:        uid,
		Slug:      slug,
		Fields:    fields,
		SchemaID:  schemaID,
		SpaceID:   spaceID,
		Owner:     owner.ForUser(u.ID),
		CreatedAt: time.Now().Unix(),
	}
	if err := r.Save(ctx, d); err != nil {
		return nil, err
	}
	if err := r.sync(ctx, u, +1); err != nil {
		return nil, err
	}
	return d, nil
}

// Update rewrites the slug and field values. A slug change retires the
// old alias key.
func (r *Repo) Update(ctx context.Context, d *Document, slug string, fields map[string]string) (*Document, error) {
	slug = strings.TrimSpace(slug)
	changed := false
	prevSlug := d.Slug
	if slug != "" && slug != d.Slug {
		d.Slug = slug
		changed = true
	}
	if fields != nil {
		d.Fields = fields
		changed = true
	}
	if !changed {
		return d, nil
	}
	d.LastUpdated = time.Now().Unix()
	if err := r.Save(ctx, d); err != nil {
		return nil, err
	}
	if d.Slug != prevSlug {
		if err := r.store.Delete(ctx, slugKey(d.SpaceID, prevSlug)); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Destroy removes the document, its slug alias, and decrements the
// owner's count.
func (r *Repo) Destroy(ctx context.Context, d *Document, u *user.User) error {
	if err := r.store.Delete(ctx, docKey(d.SpaceID, d.ID)); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, slugKey(d.SpaceID, d.Slug)); err != nil {
		return err
	}
	return r.sync(ctx, u, -1)
}

func (r *Repo) sync(ctx context.Context, u *user.User, delta int) error {
	counts, err := r.ledger.Adjust(ctx, owner.ForUser(u.ID), owner.KindDocuments, delta)
	if err != nil {
		return err
	}
	_, err = r.billing.UpdateCustomer(ctx, u.Billing.CustomerID, counts.Metadata(u.ID))
	return err
}
