// Package auth implements credentials: password hashing, stateless
// bearer tokens, and the password-reset pipeline. Tokens carry the
// subject's salt, so a password change (salt rotation) revokes every
// outstanding token without a revocation list.
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// staticHeader is the only header this service ever issues or accepts:
// base64url of {"alg":"HS256","typ":"JWT"}. It is compared, never
// parsed, so foreign algorithm claims are rejected outright.
const staticHeader = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9"

// DefaultTokenTTL is how long a session token stays valid.
const DefaultTokenTTL = 6 * time.Hour

// Claims is the token payload: subject id, subject salt, and an expiry
// in epoch seconds.
type Claims struct {
	UserID string `json:"uid"`
	Salt   string `json:"salt"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies bearer tokens with a shared secret.
// The secret is injected, never read from ambient state.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager builds a manager; a non-positive ttl falls back to
// DefaultTokenTTL.
func NewTokenManager(secret []byte, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{secret: secret, ttl: ttl}
}

// TTL returns the configured token lifetime.
func (m *TokenManager) TTL() time.Duration { return m.ttl }

// Sign issues a token for the subject with its current salt embedded.
func (m *TokenManager) Sign(userID, salt string) (string, error) {
	claims := Claims{
		UserID: userID,
		Salt:   salt,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify checks a token and returns its claims. Failures short-circuit
// in order: shape, header, payload, expiry, signature. Only expiry gets
// its own error; everything else is ErrInvalidToken. The caller still
// owns the salt-freshness check against the subject's stored salt.
func (m *TokenManager) Verify(token string) (Claims, error) {
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return Claims{}, ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(segments[0]), []byte(staticHeader)) != 1 {
		return Claims{}, ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(segments[1])
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	var probe struct {
		Exp *int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil || probe.Exp == nil {
		return Claims{}, ErrInvalidToken
	}
	if *probe.Exp <= time.Now().Unix() {
		return Claims{}, ErrTokenExpired
	}

	// Expiry was validated above; the parser only has to prove the
	// signature and decode the claims.
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}); err != nil {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
