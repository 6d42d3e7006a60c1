package auth

import "errors"

var (
	// ErrInvalidToken covers malformed, forged, and salt-stale tokens.
	ErrInvalidToken = errors.New("Invalid token")
	// ErrTokenExpired is kept distinct from forgery: the token was
	// once genuine, it just aged out.
	ErrTokenExpired = errors.New("Token expired")
)
