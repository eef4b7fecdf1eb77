package authapi

import (
	"net/http"
	"time"

	"vidshare/cmd/identity"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	Message  string `json:"message"`
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message   string    `json:"message"`
	UserID    int64     `json:"userId"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, MsgInvalidBody)
		return
	}

	u, err := h.users.Register(r.Context(), identity.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.events.RecordEvent(outcome("register", err))
		h.writeServiceError(w, r, err)
		return
	}
	h.events.RecordEvent("register.ok")

	writeJSON(w, http.StatusOK, registerResponse{
		Message:  "User registered successfully",
		UserID:   u.ID,
		Username: u.Username,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, MsgInvalidBody)
		return
	}

	u, err := h.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.events.RecordEvent(outcome("login", err))
		h.writeServiceError(w, r, err)
		return
	}

	tok, exp, err := h.tokens.Issue(u.ID, h.now().UTC())
	if err != nil {
		h.log.ErrorContext(r.Context(), "auth.login.issue_token.fail", "user_id", u.ID, "err", err)
		writeError(w, http.StatusInternalServerError, MsgInternal)
		return
	}
	h.events.RecordEvent("login.ok")

	writeJSON(w, http.StatusOK, loginResponse{
		Message:   "Login successful",
		UserID:    u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Token:     tok,
		ExpiresAt: exp,
	})
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	a, err := h.users.CheckUsernameAvailable(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// outcome names a failed register/login for the event recorder.
func outcome(action string, err error) string {
	switch {
	case identity.IsInvalidInput(err):
		return action + ".invalid"
	case identity.IsConflict(err):
		return action + ".conflict"
	case identity.IsInvalidCredentials(err):
		return action + ".fail"
	default:
		return action + ".error"
	}
}
