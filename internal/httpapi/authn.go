package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"contentd.org/internal/auth"
	"contentd.org/internal/user"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/v1/info",
	"/metrics",
	"/auth/register",
	"/auth/login",
	"/auth/forgot",
	"/auth/reset",
}

type userContextKey struct{}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		u, err := a.users.Identify(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				writeError(w, r, http.StatusUnauthorized, auth.ErrTokenExpired.Error())
			case errors.Is(err, auth.ErrInvalidToken):
				writeError(w, r, http.StatusUnauthorized, auth.ErrInvalidToken.Error())
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithSubject(r.Context(), u.ID)
		ctx = auth.ContextWithToken(ctx, token)
		ctx = context.WithValue(ctx, userContextKey{}, u)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// identify returns the account the auth middleware attached to the
// request. A miss means the route was wired outside withAuth; treat it
// as unauthenticated rather than panic.
func (a *API) identify(w http.ResponseWriter, r *http.Request) (*user.User, error) {
	u, ok := r.Context().Value(userContextKey{}).(*user.User)
	if !ok || u == nil {
		writeError(w, r, http.StatusUnauthorized, "Missing Authorization header")
		return nil, errors.New("unauthenticated")
	}
	return u, nil
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("Missing Authorization header")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
