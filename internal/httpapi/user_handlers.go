package httpapi

import (
	"errors"
	"net/http"

	"contentd.org/internal/audit"
	"contentd.org/internal/user"
)

type profileInput struct {
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// handleMe serves the caller's own account. A password change rotates
// the salt, so the response always carries a token signed against the
// current credentials.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := a.identify(w, r)
	if err != nil {
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, u.Public())

	case http.MethodPut:
		var in profileInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		changes := user.Changes{
			FirstName: in.FirstName,
			LastName:  in.LastName,
			Email:     in.Email,
			Password:  in.Password,
		}
		u, err := a.users.Update(r.Context(), u, changes)
		if err != nil {
			if errors.Is(err, user.ErrEmailTaken) {
				writeError(w, r, http.StatusBadRequest, "An account already exists for this address")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "Error updating user document")
			return
		}
		audit.LogEvent(r.Context(), "user.updated", map[string]any{"uid": u.ID})
		a.respondSession(w, r, http.StatusOK, u)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}
