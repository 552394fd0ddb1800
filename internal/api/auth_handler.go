package api

import (
	"errors"
	"net/http"

	"github.com/samely/samely/internal/auth"
	"github.com/samely/samely/internal/user"
	"github.com/samely/samely/internal/validate"
)

// authHandler groups account and session HTTP handlers.
type authHandler struct {
	users   *user.Service
	metrics MetricsRecorder
}

func newAuthHandler(users *user.Service, rec MetricsRecorder) *authHandler {
	return &authHandler{users: users, metrics: rec}
}

// Signup handles POST /api/v1/auth/signup. Every rejected registration is a
// 422, duplicate email included.
func (h *authHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req user.SignupInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	u, err := h.users.Signup(r.Context(), req)
	if err != nil {
		var verrs validate.Errors
		switch {
		case errors.As(err, &verrs):
			writeValidationError(w, http.StatusUnprocessableEntity, verrs)
		case errors.Is(err, user.ErrEmailTaken):
			writeError(w, http.StatusUnprocessableEntity, "email_taken", "user already exists")
		default:
			writeServiceError(w, r, err, "failed to create account")
		}
		return
	}

	auditLog(r, resourceUser, "signup", u.ID)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"userId":  u.ID,
	})
}

// Login handles POST /api/v1/auth/login.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "email and password are required")
		return
	}

	token, u, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			h.metrics.IncAuthFailure("password")
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
			return
		}
		writeServiceError(w, r, err, "failed to create session")
		return
	}

	h.metrics.IncAuthSuccess("password")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  u,
	})
}

// Me handles GET /api/v1/auth/me. The reference lists are computed on every
// call.
func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	profile, err := h.users.Profile(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, r, err, "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// Logout handles POST /api/v1/auth/logout.
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := auth.BearerToken(r)
	if token == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.users.Logout(r.Context(), token); err != nil {
		writeServiceError(w, r, err, "failed to end session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
