// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/keyfold/keyfold/internal/auth"
	"github.com/keyfold/keyfold/internal/observability"
	"github.com/keyfold/keyfold/pkg/errutil"
)

// sessionCookie names the cookie carrying the session identifier.
const sessionCookie = "session_id"

type handlers struct {
	svc     *auth.Service
	metrics *observability.Metrics
	logger  *slog.Logger
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		errutil.LogError(h.logger, "write response", err)
	}
}

func (h *handlers) abort(w http.ResponseWriter, status int) {
	http.Error(w, http.StatusText(status), status)
}

func (h *handlers) internalError(w http.ResponseWriter, err error, msg string) {
	errutil.LogError(h.logger, msg, err)
	h.abort(w, http.StatusInternalServerError)
}

// sessionUser resolves the session cookie to a user. A missing cookie,
// an empty value, and an unknown session all yield (nil, nil).
func (h *handlers) sessionUser(r *http.Request) (*auth.User, error) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, nil
	}
	return h.svc.UserBySessionID(r.Context(), cookie.Value)
}

// index handles GET /.
func (h *handlers) index(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Bienvenue"})
}

// register handles POST /users. A duplicate email is a client error;
// everything else from the service is internal.
func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	_, err := h.svc.Register(r.Context(), email, password)
	if err != nil {
		if errors.Is(err, auth.ErrDuplicateUser) {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{
				"message": "email already registered",
			})
			return
		}
		h.internalError(w, err, "register user")
		return
	}

	h.metrics.RegistrationsTotal.Inc()
	h.writeJSON(w, http.StatusOK, map[string]string{
		"email":   email,
		"message": "user created",
	})
}

// login handles POST /sessions. Credential mismatches are 401; the
// session identifier travels back as a cookie.
func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	ok, err := h.svc.ValidateLogin(r.Context(), email, password)
	if err != nil {
		h.internalError(w, err, "validate login")
		return
	}
	if !ok {
		h.metrics.LoginsTotal.WithLabelValues("denied").Inc()
		h.abort(w, http.StatusUnauthorized)
		return
	}

	sessionID, err := h.svc.CreateSession(r.Context(), email)
	if err != nil {
		// The user can vanish between the check and the session write.
		if errors.Is(err, auth.ErrNotFound) {
			h.metrics.LoginsTotal.WithLabelValues("denied").Inc()
			h.abort(w, http.StatusUnauthorized)
			return
		}
		h.internalError(w, err, "create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	h.metrics.LoginsTotal.WithLabelValues("success").Inc()
	h.writeJSON(w, http.StatusOK, map[string]string{
		"email":   email,
		"message": "logged in",
	})
}

// logout handles DELETE /sessions. An unresolvable session is 403;
// success redirects to the index.
func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	user, err := h.sessionUser(r)
	if err != nil {
		h.internalError(w, err, "resolve session")
		return
	}
	if user == nil {
		h.abort(w, http.StatusForbidden)
		return
	}

	if err := h.svc.DestroySession(r.Context(), user.ID); err != nil {
		h.internalError(w, err, "destroy session")
		return
	}

	h.metrics.SessionsDestroyedTotal.Inc()
	http.Redirect(w, r, "/", http.StatusFound)
}

// profile handles GET /profile.
func (h *handlers) profile(w http.ResponseWriter, r *http.Request) {
	user, err := h.sessionUser(r)
	if err != nil {
		h.internalError(w, err, "resolve session")
		return
	}
	if user == nil {
		h.abort(w, http.StatusForbidden)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"email": user.Email})
}

// resetToken handles POST /reset_password. Unknown emails are 403 so the
// endpoint does not confirm which addresses are registered beyond that.
func (h *handlers) resetToken(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")

	token, err := h.svc.ResetPasswordToken(r.Context(), email)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			h.abort(w, http.StatusForbidden)
			return
		}
		h.internalError(w, err, "issue reset token")
		return
	}

	h.metrics.PasswordResetsTotal.WithLabelValues("requested").Inc()
	h.writeJSON(w, http.StatusOK, map[string]string{
		"email":       email,
		"reset_token": token,
	})
}

// updatePassword handles PUT /reset_password. A stale or forged token
// is 403.
func (h *handlers) updatePassword(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	token := r.PostFormValue("reset_token")
	newPassword := r.PostFormValue("new_password")

	if err := h.svc.UpdatePassword(r.Context(), token, newPassword); err != nil {
		if errors.Is(err, auth.ErrTokenInvalid) {
			h.abort(w, http.StatusForbidden)
			return
		}
		h.internalError(w, err, "update password")
		return
	}

	h.metrics.PasswordResetsTotal.WithLabelValues("completed").Inc()
	h.writeJSON(w, http.StatusOK, map[string]string{
		"email":   email,
		"message": "Password updated",
	})
}
