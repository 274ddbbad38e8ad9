// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package web_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/keyfold/internal/auth"
	"github.com/keyfold/keyfold/internal/auth/memory"
	"github.com/keyfold/keyfold/internal/observability"
	"github.com/keyfold/keyfold/internal/web"
)

type testEnv struct {
	router  chi.Router
	metrics *observability.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := auth.NewServiceWithLogger(memory.NewUserRepository(), auth.NewArgon2idHasher(), logger)
	require.NoError(t, err)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return &testEnv{
		router:  web.NewRouter(svc, metrics, logger),
		metrics: metrics,
	}
}

func (e *testEnv) do(method, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func credentials(email, password string) url.Values {
	return url.Values{"email": {email}, "password": {password}}
}

// register creates a user and returns nothing; callers log in separately.
func (e *testEnv) register(t *testing.T, email, password string) {
	t.Helper()
	rec := e.do(http.MethodPost, "/users", credentials(email, password))
	require.Equal(t, http.StatusOK, rec.Code)
}

// login performs a login and returns the session cookie.
func (e *testEnv) login(t *testing.T, email, password string) *http.Cookie {
	t.Helper()
	rec := e.do(http.MethodPost, "/sessions", credentials(email, password))
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session_id" {
			return c
		}
	}
	t.Fatal("session_id cookie not set")
	return nil
}

func TestIndex(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, map[string]string{"message": "Bienvenue"}, decodeJSON(t, rec))
}

func TestRegister(t *testing.T) {
	t.Run("creates user", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(http.MethodPost, "/users", credentials("bob@example.com", "secret"))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]string{
			"email":   "bob@example.com",
			"message": "user created",
		}, decodeJSON(t, rec))
		assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.RegistrationsTotal))
	})

	t.Run("duplicate email", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "bob@example.com", "secret")

		rec := env.do(http.MethodPost, "/users", credentials("bob@example.com", "other"))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, map[string]string{"message": "email already registered"}, decodeJSON(t, rec))
	})
}

func TestLogin(t *testing.T) {
	t.Run("valid credentials set a session cookie", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "bob@example.com", "secret")

		rec := env.do(http.MethodPost, "/sessions", credentials("bob@example.com", "secret"))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]string{
			"email":   "bob@example.com",
			"message": "logged in",
		}, decodeJSON(t, rec))

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "session_id", cookies[0].Name)
		assert.NotEmpty(t, cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
		assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.LoginsTotal.WithLabelValues("success")))
	})

	t.Run("wrong password", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "bob@example.com", "secret")

		rec := env.do(http.MethodPost, "/sessions", credentials("bob@example.com", "wrong"))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, rec.Result().Cookies())
		assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.LoginsTotal.WithLabelValues("denied")))
	})

	t.Run("unknown email", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(http.MethodPost, "/sessions", credentials("ghost@example.com", "secret"))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestLogout(t *testing.T) {
	t.Run("destroys the session and redirects home", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "bob@example.com", "secret")
		cookie := env.login(t, "bob@example.com", "secret")

		rec := env.do(http.MethodDelete, "/sessions", nil, cookie)

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
		assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.SessionsDestroyedTotal))

		rec = env.do(http.MethodGet, "/profile", nil, cookie)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("no cookie", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(http.MethodDelete, "/sessions", nil)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("stale session", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(http.MethodDelete, "/sessions", nil, &http.Cookie{Name: "session_id", Value: "gone"})

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestProfile(t *testing.T) {
	t.Run("returns the session owner's email", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "bob@example.com", "secret")
		cookie := env.login(t, "bob@example.com", "secret")

		rec := env.do(http.MethodGet, "/profile", nil, cookie)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]string{"email": "bob@example.com"}, decodeJSON(t, rec))
	})

	t.Run("no session", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(http.MethodGet, "/profile", nil)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestResetPassword(t *testing.T) {
	t.Run("issues a token for a registered email", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "bob@example.com", "secret")

		rec := env.do(http.MethodPost, "/reset_password", url.Values{"email": {"bob@example.com"}})

		assert.Equal(t, http.StatusOK, rec.Code)
		payload := decodeJSON(t, rec)
		assert.Equal(t, "bob@example.com", payload["email"])
		assert.NotEmpty(t, payload["reset_token"])
		assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.PasswordResetsTotal.WithLabelValues("requested")))
	})

	t.Run("unknown email", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(http.MethodPost, "/reset_password", url.Values{"email": {"ghost@example.com"}})

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("token updates the password once", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "bob@example.com", "secret")

		rec := env.do(http.MethodPost, "/reset_password", url.Values{"email": {"bob@example.com"}})
		require.Equal(t, http.StatusOK, rec.Code)
		token := decodeJSON(t, rec)["reset_token"]

		form := url.Values{
			"email":        {"bob@example.com"},
			"reset_token":  {token},
			"new_password": {"fresh"},
		}
		rec = env.do(http.MethodPut, "/reset_password", form)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]string{
			"email":   "bob@example.com",
			"message": "Password updated",
		}, decodeJSON(t, rec))
		assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.PasswordResetsTotal.WithLabelValues("completed")))

		rec = env.do(http.MethodPut, "/reset_password", form)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = env.do(http.MethodPost, "/sessions", credentials("bob@example.com", "secret"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = env.do(http.MethodPost, "/sessions", credentials("bob@example.com", "fresh"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("forged token", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "bob@example.com", "secret")

		rec := env.do(http.MethodPut, "/reset_password", url.Values{
			"email":        {"bob@example.com"},
			"reset_token":  {"forged"},
			"new_password": {"fresh"},
		})

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
