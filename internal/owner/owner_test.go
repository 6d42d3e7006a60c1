package owner

import (
	"context"
	"errors"
	"testing"
	"time"

	"contentd.org/internal/kv"
	"contentd.org/internal/kv/memory"
)

// failingStore wraps a real store and fails Put for one specific key.
type failingStore struct {
	kv.Store
	failKey string
}

var errInjected = errors.New("injected store failure")

func (s *failingStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == s.failKey {
		return errInjected
	}
	return s.Store.Put(ctx, key, value, ttl)
}

func TestCountsDefaults(t *testing.T) {
	ledger := NewLedger(memory.New())
	counts, err := ledger.Counts(context.Background(), ForUser("user0000userid01"))
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Users != 1 {
		t.Fatalf("default users = %d, want 1", counts.Users)
	}
	if counts.Spaces != 0 || counts.Schemas != 0 || counts.Documents != 0 {
		t.Fatalf("non-zero defaults: %+v", counts)
	}
}

func TestCountsPartialDocumentMerges(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	o := ForUser("user0000userid01")

	// Partially populated document: only spaces present. The missing
	// fields must still default field-by-field.
	err := kv.PutJSON(ctx, store, countsKey(o), map[string]any{"v": 1, "spaces": 4}, 0)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	counts, err := NewLedger(store).Counts(ctx, o)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Spaces != 4 {
		t.Fatalf("spaces = %d, want 4", counts.Spaces)
	}
	if counts.Users != 1 {
		t.Fatalf("users = %d, want default 1", counts.Users)
	}
}

func TestSyncDerivesCountFromList(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(memory.New())
	o := ForUser("user0000userid01")

	counts, err := ledger.Sync(ctx, o, KindSpaces, []string{"spaceid0001", "spaceid0002"})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if counts.Spaces != 2 {
		t.Fatalf("spaces = %d, want 2", counts.Spaces)
	}

	list, err := ledger.SpaceIDs(ctx, o)
	if err != nil {
		t.Fatalf("SpaceIDs: %v", err)
	}
	if len(list) != 2 || list[0] != "spaceid0001" {
		t.Fatalf("unexpected list: %v", list)
	}

	// Shrinking the list shrinks the count.
	counts, err = ledger.Sync(ctx, o, KindSpaces, []string{"spaceid0002"})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if counts.Spaces != 1 {
		t.Fatalf("spaces = %d, want 1", counts.Spaces)
	}
}

func TestSyncRejectsCountOnlyKinds(t *testing.T) {
	ledger := NewLedger(memory.New())
	if _, err := ledger.Sync(context.Background(), ForUser("u"), KindSchemas, nil); err == nil {
		t.Fatal("Sync accepted a count-only kind")
	}
}

func TestSyncListWriteFailureLeavesCountsAlone(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	o := ForUser("user0000userid01")

	if _, err := NewLedger(mem).Sync(ctx, o, KindSpaces, []string{"spaceid0001"}); err != nil {
		t.Fatalf("seed sync: %v", err)
	}

	broken := &failingStore{Store: mem, failKey: listKey(o, KindSpaces)}
	_, err := NewLedger(broken).Sync(ctx, o, KindSpaces, []string{"spaceid0001", "spaceid0002"})
	if !errors.Is(err, errInjected) {
		t.Fatalf("want injected error, got %v", err)
	}
	if errors.Is(err, ErrCountsStale) {
		t.Fatal("phase-one failure must not be reported as stale counts")
	}

	counts, err := NewLedger(mem).Counts(ctx, o)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Spaces != 1 {
		t.Fatalf("counts changed after failed sync: %d", counts.Spaces)
	}
}

func TestSyncCountsWriteFailureIsStale(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	o := ForUser("user0000userid01")

	broken := &failingStore{Store: mem, failKey: countsKey(o)}
	_, err := NewLedger(broken).Sync(ctx, o, KindSpaces, []string{"spaceid0001"})
	if !errors.Is(err, ErrCountsStale) {
		t.Fatalf("want ErrCountsStale, got %v", err)
	}

	// The list write went through; only the counts are behind.
	list, err := NewLedger(mem).SpaceIDs(ctx, o)
	if err != nil {
		t.Fatalf("SpaceIDs: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("list = %v, want one id", list)
	}
}

func TestAdjust(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(memory.New())
	o := ForUser("user0000userid01")

	counts, err := ledger.Adjust(ctx, o, KindSchemas, +1)
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if counts.Schemas != 1 {
		t.Fatalf("schemas = %d, want 1", counts.Schemas)
	}

	counts, err = ledger.Adjust(ctx, o, KindDocuments, -5)
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if counts.Documents != 0 {
		t.Fatalf("documents clamped to %d, want 0", counts.Documents)
	}

	if _, err := ledger.Adjust(ctx, o, KindSpaces, +1); err == nil {
		t.Fatal("Adjust accepted the list-tracked kind")
	}
}

func TestCountsMetadata(t *testing.T) {
	c := Counts{Users: 1, Spaces: 2, Schemas: 3, Documents: 4}
	md := c.Metadata("user0000userid01")
	if md.OwnerID != "user0000userid01" {
		t.Fatalf("owner id = %q", md.OwnerID)
	}
	if md.Users != 1 || md.Spaces != 2 || md.Schemas != 3 || md.Documents != 4 {
		t.Fatalf("metadata mismatch: %+v", md)
	}
}
