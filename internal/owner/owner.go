// Package owner keeps the per-owner resource bookkeeping: a counts
// document and, for list-tracked kinds, an ordered id-list. The store
// has no multi-key transactions, so the ledger is written in a fixed
// two-phase order (list first, then counts derived from it) and exposes
// the partial-failure case to callers instead of hiding it.
package owner

import (
	"context"
	"errors"
	"fmt"

	"contentd.org/internal/billing"
	"contentd.org/internal/kv"
)

// Kind names a countable resource kind.
type Kind string

const (
	KindUsers     Kind = "users"
	KindSpaces    Kind = "spaces"
	KindSchemas   Kind = "schemas"
	KindDocuments Kind = "documents"
)

// ErrCountsStale is the distinguishable partial failure of Sync: the
// id-list was durably written but the counts document was not updated.
// Callers may retry the counts step alone.
var ErrCountsStale = errors.New("owner: id list written, counts not updated")

// Owner is a discriminated reference to the owning account. Today the
// only type is "user".
type Owner struct {
	Type string `json:"type"`
	ID   string `json:"uid"`
}

// ForUser builds the Owner reference for a user id.
func ForUser(uid string) Owner {
	return Owner{Type: "user", ID: uid}
}

// Counts is the per-owner resource tally mirrored into billing metadata.
type Counts struct {
	Users     int `json:"users"`
	Spaces    int `json:"spaces"`
	Schemas   int `json:"schemas"`
	Documents int `json:"documents"`
}

// countsDoc is the stored form. Fields are pointers so a partially
// written document still merges correctly: defaults apply per field,
// never all-or-nothing.
type countsDoc struct {
	Version   int  `json:"v,omitempty"`
	Users     *int `json:"users,omitempty"`
	Spaces    *int `json:"spaces,omitempty"`
	Schemas   *int `json:"schemas,omitempty"`
	Documents *int `json:"documents,omitempty"`
}

const countsVersion = 1

// fill merges stored values over the defaults, field by field. The
// owner always counts as one user.
func (d countsDoc) fill() Counts {
	c := Counts{Users: 1}
	if d.Users != nil {
		c.Users = *d.Users
	}
	if d.Spaces != nil {
		c.Spaces = *d.Spaces
	}
	if d.Schemas != nil {
		c.Schemas = *d.Schemas
	}
	if d.Documents != nil {
		c.Documents = *d.Documents
	}
	return c
}

func docFrom(c Counts) countsDoc {
	return countsDoc{
		Version:   countsVersion,
		Users:     &c.Users,
		Spaces:    &c.Spaces,
		Schemas:   &c.Schemas,
		Documents: &c.Documents,
	}
}

func (c Counts) kind(k Kind) int {
	switch k {
	case KindUsers:
		return c.Users
	case KindSpaces:
		return c.Spaces
	case KindSchemas:
		return c.Schemas
	case KindDocuments:
		return c.Documents
	}
	return 0
}

// Metadata renders the counts as the billing bag mirrored onto the
// owner's customer record.
func (c Counts) Metadata(ownerID string) billing.Metadata {
	return billing.Metadata{
		Users:     c.Users,
		Spaces:    c.Spaces,
		Schemas:   c.Schemas,
		Documents: c.Documents,
		OwnerID:   ownerID,
	}
}

func (c *Counts) setKind(k Kind, n int) {
	switch k {
	case KindUsers:
		c.Users = n
	case KindSpaces:
		c.Spaces = n
	case KindSchemas:
		c.Schemas = n
	case KindDocuments:
		c.Documents = n
	}
}

// Ledger reads and writes the ownership documents.
type Ledger struct {
	store kv.Store
}

// NewLedger builds a ledger over the store.
func NewLedger(store kv.Store) *Ledger {
	return &Ledger{store: store}
}

func countsKey(o Owner) string {
	return kv.Key("owners", o.Type, o.ID, "counts")
}

func listKey(o Owner, kind Kind) string {
	return kv.Key("owners", o.Type, o.ID, string(kind))
}

// Counts returns the owner's tally with defaults filled in. An absent
// document yields the baseline (one user, zero of everything else); a
// store failure propagates and is never read as absence.
func (l *Ledger) Counts(ctx context.Context, o Owner) (Counts, error) {
	var doc countsDoc
	err := kv.GetJSON(ctx, l.store, countsKey(o), &doc)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return Counts{}, err
	}
	return doc.fill(), nil
}

// SpaceIDs returns the owner's space id-list in creation order.
func (l *Ledger) SpaceIDs(ctx context.Context, o Owner) ([]string, error) {
	var list []string
	err := kv.GetJSON(ctx, l.store, listKey(o, KindSpaces), &list)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return list, nil
}

// Sync replaces the id-list for a list-tracked kind and derives the
// count from its length. Phase one writes the list; on failure the
// counts are untouched and the error is the store's. Phase two re-reads
// counts, sets the kind to len(list), and writes them back; any failure
// there is reported as ErrCountsStale so the caller can retry just the
// counts step.
func (l *Ledger) Sync(ctx context.Context, o Owner, kind Kind, list []string) (Counts, error) {
	if kind != KindSpaces {
		return Counts{}, fmt.Errorf("owner: kind %q is not list-tracked", kind)
	}
	if list == nil {
		list = []string{}
	}
	if err := kv.PutJSON(ctx, l.store, listKey(o, kind), list, 0); err != nil {
		return Counts{}, err
	}

	counts, err := l.Counts(ctx, o)
	if err != nil {
		return Counts{}, fmt.Errorf("%w: %v", ErrCountsStale, err)
	}
	counts.setKind(kind, len(list))
	if err := kv.PutJSON(ctx, l.store, countsKey(o), docFrom(counts), 0); err != nil {
		return Counts{}, fmt.Errorf("%w: %v", ErrCountsStale, err)
	}
	return counts, nil
}

// Adjust shifts a count-only kind by delta with a read-modify-write.
// No authoritative list exists for these kinds, so concurrent mutations
// on the same owner can race and lose an update; spaces use the
// list-derived Sync path instead.
func (l *Ledger) Adjust(ctx context.Context, o Owner, kind Kind, delta int) (Counts, error) {
	if kind == KindSpaces {
		return Counts{}, fmt.Errorf("owner: kind %q is list-tracked; use Sync", kind)
	}
	counts, err := l.Counts(ctx, o)
	if err != nil {
		return Counts{}, err
	}
	n := counts.kind(kind) + delta
	if n < 0 {
		n = 0
	}
	counts.setKind(kind, n)
	if err := kv.PutJSON(ctx, l.store, countsKey(o), docFrom(counts), 0); err != nil {
		return Counts{}, err
	}
	return counts, nil
}
