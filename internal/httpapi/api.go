// Package httpapi is the HTTP surface of the service: routing,
// middleware, and request/response shaping. All domain behavior lives
// in the repositories; this layer translates their outcomes into
// status codes and wire messages.
package httpapi

import (
	"context"
	"net/http"
	"strings"

	"contentd.org/internal/auth"
	"contentd.org/internal/document"
	"contentd.org/internal/obs"
	"contentd.org/internal/schema"
	"contentd.org/internal/space"
	"contentd.org/internal/user"
)

// ReadyProbe checks the storage dependency for /readyz.
type ReadyProbe struct {
	Ping func(ctx context.Context) error
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Ping == nil {
		return nil
	}
	return rp.Ping(ctx)
}

// Config carries the API's wiring; everything is injected.
type Config struct {
	Version    string
	Users      *user.Repo
	Spaces     *space.Repo
	Schemas    *schema.Repo
	Documents  *document.Repo
	Resets     *auth.Resets
	Ready      ReadyProbe
	RateBurst  int
	RatePerSec int
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	version    string
	users      *user.Repo
	spaces     *space.Repo
	schemas    *schema.Repo
	documents  *document.Repo
	resets     *auth.Resets
	readyProbe ReadyProbe
	rateBurst  int
	ratePerSec int
}

// New assembles the routing table.
func New(cfg Config) *API {
	a := &API{
		mux:        http.NewServeMux(),
		version:    cfg.Version,
		users:      cfg.Users,
		spaces:     cfg.Spaces,
		schemas:    cfg.Schemas,
		documents:  cfg.Documents,
		resets:     cfg.Resets,
		readyProbe: cfg.Ready,
		rateBurst:  cfg.RateBurst,
		ratePerSec: cfg.RatePerSec,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 10
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// authentication
	a.mux.HandleFunc("/auth/register", a.handleRegister)
	a.mux.HandleFunc("/auth/login", a.handleLogin)
	a.mux.HandleFunc("/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/auth/forgot", a.handleForgot)
	a.mux.HandleFunc("/auth/reset", a.handleReset)

	// account
	a.mux.HandleFunc("/users/me", a.handleMe)

	// spaces and their nested resources
	a.mux.HandleFunc("/spaces", a.handleSpacesCollection)
	a.mux.HandleFunc("/spaces/", a.handleSpacesSubtree)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler composes the middleware chain around the routing table.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// handleSpacesSubtree fans /spaces/{id}[/...] out by path shape. Every
// id segment is shape-checked by length before any store read.
func (a *API) handleSpacesSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/spaces/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		a.handleSpaceResource(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "schemas":
		a.handleSchemasCollection(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "schemas":
		a.handleSchemaResource(w, r, parts[0], parts[2])
	case len(parts) == 2 && parts[1] == "docs":
		a.handleDocsCollection(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "docs":
		a.handleDocResource(w, r, parts[0], parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
