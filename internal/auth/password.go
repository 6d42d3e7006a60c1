package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"

	"contentd.org/internal/ids"
)

const (
	hashIterations = 1000
	hashKeyBytes   = 64

	// HashLength is the hex-encoded length of a stored password hash.
	HashLength = hashKeyBytes * 2
)

// Salt returns a fresh per-user salt. The salt doubles as a token
// generation counter: rotating it on password change invalidates every
// outstanding bearer token for the user.
func Salt() string {
	return ids.Random(ids.SaltLength)
}

// Hash derives the stored form of a password with PBKDF2-SHA256.
func Hash(password, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), hashIterations, hashKeyBytes, sha256.New)
	return hex.EncodeToString(key)
}

// Prepare generates a salt and hashes password with it, ready to store.
func Prepare(password string) (hash, salt string) {
	salt = Salt()
	return Hash(password, salt), salt
}

// Compare reports whether candidate matches the stored hash. A stored
// hash of the wrong length can never match, so the key derivation is
// skipped; that short-circuit is a legacy fast path, not a timing
// defense.
func Compare(storedHash, storedSalt, candidate string) bool {
	if len(storedHash) != HashLength {
		return false
	}
	derived := Hash(candidate, storedSalt)
	return subtle.ConstantTimeCompare([]byte(derived), []byte(storedHash)) == 1
}
