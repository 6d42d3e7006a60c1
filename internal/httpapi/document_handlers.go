package httpapi

import (
	"errors"
	"net/http"

	"contentd.org/internal/document"
	"contentd.org/internal/user"
)

type documentInput struct {
	Slug     string            `json:"slug"`
	Fields   map[string]string `json:"fields"`
	SchemaID string            `json:"schemaid"`
}

// loadDocument accepts either a ULID or a slug in the path segment. A
// non-ULID segment goes through the slug alias first.
func (a *API) loadDocument(w http.ResponseWriter, r *http.Request, u *user.User, spaceID, ref string) (*document.Document, bool) {
	id := ref
	if !document.IsID(ref) {
		resolved, err := a.documents.Lookup(r.Context(), spaceID, ref)
		if errors.Is(err, document.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "Document not found")
			return nil, false
		}
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "Error while loading document")
			return nil, false
		}
		id = resolved
	}
	d, err := a.documents.Find(r.Context(), spaceID, id)
	if errors.Is(err, document.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Document not found")
		return nil, false
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Error while loading document")
		return nil, false
	}
	if !d.OwnedBy(u.ID) {
		writeError(w, r, http.StatusForbidden, "Not authorized")
		return nil, false
	}
	return d, true
}

func (a *API) handleDocsCollection(w http.ResponseWriter, r *http.Request, spaceID string) {
	u, err := a.identify(w, r)
	if err != nil {
		return
	}
	if _, ok := a.loadSpace(w, r, u, spaceID); !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		rows, err := a.documents.List(r.Context(), spaceID)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "Error while listing documents")
			return
		}
		out := make([]document.Public, 0, len(rows))
		for _, d := range rows {
			out = append(out, d.Public())
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var in documentInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if in.SchemaID == "" {
			writeError(w, r, http.StatusBadRequest, "Missing schema reference")
			return
		}
		// The schema must exist under the same space.
		if _, ok := a.loadSchema(w, r, u, spaceID, in.SchemaID); !ok {
			return
		}
		d, err := a.documents.Insert(r.Context(), in.Slug, in.Fields, in.SchemaID, spaceID, u)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "Error creating document")
			return
		}
		writeJSON(w, http.StatusCreated, d.Public())

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleDocResource(w http.ResponseWriter, r *http.Request, spaceID, ref string) {
	u, err := a.identify(w, r)
	if err != nil {
		return
	}
	if _, ok := a.loadSpace(w, r, u, spaceID); !ok {
		return
	}
	d, ok := a.loadDocument(w, r, u, spaceID, ref)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, d.Public())

	case http.MethodPut:
		var in documentInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		d, err := a.documents.Update(r.Context(), d, in.Slug, in.Fields)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "Error updating document")
			return
		}
		writeJSON(w, http.StatusOK, d.Public())

	case http.MethodDelete:
		if err := a.documents.Destroy(r.Context(), d, u); err != nil {
			writeError(w, r, http.StatusInternalServerError, "Error removing document")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}
