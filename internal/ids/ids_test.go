package ids

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRandomLengthAndAlphabet(t *testing.T) {
	for _, n := range []int{UserLength, SpaceLength, ResetLength, SaltLength} {
		got := Random(n)
		if len(got) != n {
			t.Fatalf("Random(%d) returned %d chars", n, len(got))
		}
		for _, c := range got {
			if !strings.ContainsRune(alphabet, c) {
				t.Fatalf("Random(%d) produced %q outside the alphabet", n, c)
			}
		}
	}
}

func TestRandomNotConstant(t *testing.T) {
	a, b := Random(UserLength), Random(UserLength)
	if a == b {
		t.Fatalf("two random ids collided: %s", a)
	}
}

func TestULIDShape(t *testing.T) {
	id := ULID()
	if len(id) != ULIDLength {
		t.Fatalf("ULID length = %d, want %d", len(id), ULIDLength)
	}
	if !IsULID(id) {
		t.Fatalf("IsULID rejected a generated id: %s", id)
	}
	if IsULID("not-a-ulid") {
		t.Fatal("IsULID accepted garbage")
	}
	if IsULID(id[:ULIDLength-1]) {
		t.Fatal("IsULID accepted a short id")
	}
}

func TestULIDMonotonic(t *testing.T) {
	prev := ULID()
	for i := 0; i < 50; i++ {
		next := ULID()
		if next <= prev {
			t.Fatalf("ULIDs not increasing: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestAllocateReturnsFirstFree(t *testing.T) {
	seen := map[string]bool{}
	id, err := Allocate(context.Background(),
		func() string { return Random(UserLength) },
		func(_ context.Context, candidate string) (bool, error) {
			taken := !seen[candidate] && len(seen) < 2 // first two probes collide
			seen[candidate] = true
			return taken, nil
		})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if len(id) != UserLength {
		t.Fatalf("allocated id length = %d", len(id))
	}
}

func TestAllocateExhausted(t *testing.T) {
	probes := 0
	_, err := Allocate(context.Background(),
		func() string { return Random(SpaceLength) },
		func(context.Context, string) (bool, error) {
			probes++
			return true, nil
		})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("want ErrExhausted, got %v", err)
	}
	if probes != maxAttempts {
		t.Fatalf("probed %d times, want %d", probes, maxAttempts)
	}
}

func TestAllocateProbeErrorFailsFast(t *testing.T) {
	boom := errors.New("store down")
	probes := 0
	_, err := Allocate(context.Background(),
		func() string { return Random(SpaceLength) },
		func(context.Context, string) (bool, error) {
			probes++
			return false, boom
		})
	if !errors.Is(err, boom) {
		t.Fatalf("want probe error surfaced, got %v", err)
	}
	if probes != 1 {
		t.Fatalf("probed %d times after an error, want 1", probes)
	}
}

func TestAllocateHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Allocate(ctx,
		func() string { return Random(SpaceLength) },
		func(context.Context, string) (bool, error) { return true, nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
