// Package ids generates resource identifiers and allocates them against
// the store. Uniqueness is per namespace, guaranteed by probing for an
// existing document rather than by any store-side constraint.
package ids

import (
	"context"
	cryptorand "crypto/rand"
	"errors"
	"fmt"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Fixed id lengths per resource kind.
const (
	UserLength  = 16
	SpaceLength = 11
	ResetLength = 100
	SaltLength  = 128
	ULIDLength  = 26
)

// maxAttempts caps the probe loop. Even the shortest id space holds
// 62^11 values, so hitting the cap means the store is misbehaving, not
// that ids ran out.
const maxAttempts = 10

// ErrExhausted reports that allocation gave up after maxAttempts probes.
var ErrExhausted = errors.New("ids: allocation attempts exhausted")

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// Random returns a fresh random identifier of length n.
func Random(n int) string {
	buf := make([]byte, n)
	if _, err := cryptorand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(fmt.Sprintf("ids: random source failed: %v", err))
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf)
}

// ULID returns a lexicographically sortable identifier used for
// schemas and documents, where creation order matters.
func ULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// IsULID reports whether s has the shape of a ULID key segment.
func IsULID(s string) bool {
	if len(s) != ULIDLength {
		return false
	}
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// ExistsFunc probes the store for a candidate identifier. It must
// return a non-nil error only when the store itself failed; a failed
// probe is never read as "available".
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// Allocate draws candidates from gen until one does not exist yet.
func Allocate(ctx context.Context, gen func() string, exists ExistsFunc) (string, error) {
	for i := 0; i < maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := gen()
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("ids: existence probe: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrExhausted
}
