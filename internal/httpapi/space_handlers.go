package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"contentd.org/internal/audit"
	"contentd.org/internal/space"
	"contentd.org/internal/user"
)

type spaceInput struct {
	Name string `json:"name"`
}

// loadSpace resolves the path id to a space the caller owns. Shape
// check first, then the document, then ownership; a foreign space is
// reported as 403, not hidden.
func (a *API) loadSpace(w http.ResponseWriter, r *http.Request, u *user.User, id string) (*space.Space, bool) {
	if !space.IsID(id) {
		writeError(w, r, http.StatusNotFound, "Space not found")
		return nil, false
	}
	s, err := a.spaces.Find(r.Context(), id)
	if errors.Is(err, space.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Space not found")
		return nil, false
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Error while loading space")
		return nil, false
	}
	if !s.OwnedBy(u.ID) {
		writeError(w, r, http.StatusForbidden, "Not authorized")
		return nil, false
	}
	return s, true
}

func (a *API) handleSpacesCollection(w http.ResponseWriter, r *http.Request) {
	u, err := a.identify(w, r)
	if err != nil {
		return
	}

	switch r.Method {
	case http.MethodGet:
		rows, err := a.spaces.List(r.Context(), u)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "Error while listing spaces")
			return
		}
		out := make([]space.Public, 0, len(rows))
		for _, s := range rows {
			out = append(out, s.Public())
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var in spaceInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if strings.TrimSpace(in.Name) == "" {
			writeError(w, r, http.StatusBadRequest, "Missing space name")
			return
		}
		s, err := a.spaces.Insert(r.Context(), in.Name, u)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "Error creating document")
			return
		}
		audit.LogEvent(r.Context(), "space.created", map[string]any{"space": s.ID})
		writeJSON(w, http.StatusCreated, s.Public())

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleSpaceResource(w http.ResponseWriter, r *http.Request, id string) {
	u, err := a.identify(w, r)
	if err != nil {
		return
	}
	s, ok := a.loadSpace(w, r, u, id)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.Public())

	case http.MethodPut:
		var in spaceInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if strings.TrimSpace(in.Name) == "" {
			writeError(w, r, http.StatusBadRequest, "Missing space name")
			return
		}
		s, err := a.spaces.Update(r.Context(), s, in.Name)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "Error updating document")
			return
		}
		writeJSON(w, http.StatusOK, s.Public())

	case http.MethodDelete:
		if err := a.spaces.Destroy(r.Context(), s, u); err != nil {
			writeError(w, r, http.StatusInternalServerError, "Error removing document")
			return
		}
		audit.LogEvent(r.Context(), "space.destroyed", map[string]any{"space": s.ID})
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}
