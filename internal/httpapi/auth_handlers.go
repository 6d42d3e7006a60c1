package httpapi

import (
	"errors"
	"net/http"

	"contentd.org/internal/audit"
	"contentd.org/internal/auth"
	"contentd.org/internal/user"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resetRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

// session is the response shape shared by every authentication
// endpoint: the public account plus a fresh bearer token.
type session struct {
	User  user.Public `json:"user"`
	Token string      `json:"token"`
}

func (a *API) respondSession(w http.ResponseWriter, r *http.Request, status int, u *user.User) {
	token, err := a.users.Tokenize(u)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Error while signing token")
		return
	}
	writeJSON(w, status, session{User: u.Public(), Token: token})
}

// handleRegister creates an account. Duplicate addresses are reported
// plainly; registration is not an oracle worth hiding.
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var in credentials
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if in.Email == "" || in.Password == "" {
		writeError(w, r, http.StatusBadRequest, "Missing email and/or password")
		return
	}

	u, err := a.users.Insert(r.Context(), in.Email, in.Password)
	if errors.Is(err, user.ErrEmailTaken) {
		writeError(w, r, http.StatusBadRequest, "An account already exists for this address")
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Error creating account")
		return
	}

	audit.LogEvent(r.Context(), "user.registered", map[string]any{"uid": u.ID})
	a.respondSession(w, r, http.StatusCreated, u)
}

// handleLogin exchanges credentials for a session. Unknown address and
// wrong password collapse into one ambiguous 401.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var in credentials
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if in.Email == "" || in.Password == "" {
		writeError(w, r, http.StatusBadRequest, "Missing email and/or password")
		return
	}

	const ambiguous = "Invalid credentials"

	u, err := a.users.FindByEmail(r.Context(), in.Email)
	if errors.Is(err, user.ErrNotFound) {
		writeError(w, r, http.StatusUnauthorized, ambiguous)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Error while logging in")
		return
	}
	if !auth.Compare(u.Password, u.Salt, in.Password) {
		writeError(w, r, http.StatusUnauthorized, ambiguous)
		return
	}

	audit.LogEvent(r.Context(), "user.login", map[string]any{"uid": u.ID})
	a.respondSession(w, r, http.StatusOK, u)
}

// handleRefresh exchanges a valid token for a fresh one. The auth
// middleware has already identified the caller.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	u, err := a.identify(w, r)
	if err != nil {
		return
	}
	a.respondSession(w, r, http.StatusOK, u)
}

// handleForgot starts the reset flow. The acknowledgment is identical
// whether or not the address is registered.
func (a *API) handleForgot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var in struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if in.Email == "" {
		writeError(w, r, http.StatusBadRequest, "Missing email address")
		return
	}

	const ambiguous = "A link to reset your password will be sent to your email address if an account exists"

	u, err := a.users.FindByEmail(r.Context(), in.Email)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"message": ambiguous})
		return
	}
	token, err := a.resets.Create(r.Context(), u.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Error while resetting password")
		return
	}
	a.users.SendReset(u, token)

	audit.LogEvent(r.Context(), "user.forgot", map[string]any{"uid": u.ID})
	writeJSON(w, http.StatusOK, map[string]string{"message": ambiguous})
}

// handleReset finishes the reset flow. Every failure mode past basic
// input validation collapses into the same ambiguous 400 so the token
// cannot be probed.
func (a *API) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var in resetRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if in.Email == "" || in.Password == "" || in.Token == "" {
		writeError(w, r, http.StatusBadRequest, "Missing email, password, and/or token")
		return
	}

	ambiguous := auth.ErrInvalidToken.Error()

	uid, err := a.resets.Lookup(r.Context(), in.Token)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, ambiguous)
		return
	}
	u, err := a.users.Find(r.Context(), uid)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, ambiguous)
		return
	}
	if u.Email != in.Email {
		writeError(w, r, http.StatusBadRequest, ambiguous)
		return
	}

	u, err = a.users.Update(r.Context(), u, user.Changes{Password: in.Password})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Error updating user document")
		return
	}
	if err := a.resets.Consume(r.Context(), in.Token); err != nil {
		writeError(w, r, http.StatusInternalServerError, "Error while resetting password")
		return
	}

	audit.LogEvent(r.Context(), "user.reset", map[string]any{"uid": u.ID})
	a.respondSession(w, r, http.StatusOK, u)
}
