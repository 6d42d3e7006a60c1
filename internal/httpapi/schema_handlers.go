package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"contentd.org/internal/schema"
	"contentd.org/internal/user"
)

type schemaInput struct {
	Name   string         `json:"name"`
	Fields []schema.Field `json:"fields"`
}

func (a *API) loadSchema(w http.ResponseWriter, r *http.Request, u *user.User, spaceID, id string) (*schema.Schema, bool) {
	if !schema.IsID(id) {
		writeError(w, r, http.StatusNotFound, "Schema not found")
		return nil, false
	}
	s, err := a.schemas.Find(r.Context(), spaceID, id)
	if errors.Is(err, schema.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Schema not found")
		return nil, false
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Error while loading schema")
		return nil, false
	}
	if !s.OwnedBy(u.ID) {
		writeError(w, r, http.StatusForbidden, "Not authorized")
		return nil, false
	}
	return s, true
}

func (a *API) handleSchemasCollection(w http.ResponseWriter, r *http.Request, spaceID string) {
	u, err := a.identify(w, r)
	if err != nil {
		return
	}
	// Ownership of the parent space gates every nested operation.
	if _, ok := a.loadSpace(w, r, u, spaceID); !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		rows, err := a.schemas.List(r.Context(), spaceID)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "Error while listing schemas")
			return
		}
		out := make([]schema.Public, 0, len(rows))
		for _, s := range rows {
			out = append(out, s.Public())
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var in schemaInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if strings.TrimSpace(in.Name) == "" {
			writeError(w, r, http.StatusBadRequest, "Missing schema name")
			return
		}
		s, err := a.schemas.Insert(r.Context(), in.Name, spaceID, u)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "Error creating document")
			return
		}
		if in.Fields != nil {
			s, err = a.schemas.Update(r.Context(), s, "", in.Fields)
			if err != nil {
				writeError(w, r, http.StatusInternalServerError, "Error creating document")
				return
			}
		}
		writeJSON(w, http.StatusCreated, s.Public())

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleSchemaResource(w http.ResponseWriter, r *http.Request, spaceID, id string) {
	u, err := a.identify(w, r)
	if err != nil {
		return
	}
	if _, ok := a.loadSpace(w, r, u, spaceID); !ok {
		return
	}
	s, ok := a.loadSchema(w, r, u, spaceID, id)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.Public())

	case http.MethodPut:
		var in schemaInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		s, err := a.schemas.Update(r.Context(), s, in.Name, in.Fields)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "Error updating document")
			return
		}
		writeJSON(w, http.StatusOK, s.Public())

	case http.MethodDelete:
		if err := a.schemas.Destroy(r.Context(), s, u); err != nil {
			writeError(w, r, http.StatusInternalServerError, "Error removing document")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}
