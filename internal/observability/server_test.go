// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package observability_test

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/keyfold/keyfold/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startServer(t *testing.T, ready observability.ReadinessChecker) *observability.Server {
	t.Helper()
	srv := observability.NewServer("127.0.0.1:0", ready)
	_, err := srv.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, srv.Stop(ctx))
	})
	return srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec // local test URL
	require.NoError(t, err)
	defer resp.Body.Close()
	defer http.DefaultClient.CloseIdleConnections()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_HealthProbes(t *testing.T) {
	var ready atomic.Bool
	ready.Store(true)
	srv := startServer(t, ready.Load)

	status, body := get(t, "http://"+srv.Addr()+"/healthz/liveness")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok\n", body)

	status, _ = get(t, "http://"+srv.Addr()+"/healthz/readiness")
	assert.Equal(t, http.StatusOK, status)

	ready.Store(false)
	status, body = get(t, "http://"+srv.Addr()+"/healthz/readiness")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "not ready\n", body)
}

func TestServer_Metrics(t *testing.T) {
	srv := startServer(t, nil)

	srv.Metrics().RegistrationsTotal.Inc()
	srv.Metrics().LoginsTotal.WithLabelValues("success").Inc()
	srv.Metrics().LoginsTotal.WithLabelValues("denied").Inc()
	srv.Metrics().PasswordResetsTotal.WithLabelValues("requested").Inc()

	status, body := get(t, "http://"+srv.Addr()+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "keyfold_registrations_total 1")
	assert.Contains(t, body, `keyfold_logins_total{status="success"} 1`)
	assert.Contains(t, body, `keyfold_password_resets_total{stage="requested"} 1`)
}

func TestServer_StartStop(t *testing.T) {
	srv := observability.NewServer("127.0.0.1:0", nil)

	errCh, err := srv.Start()
	require.NoError(t, err)

	t.Run("double start fails", func(t *testing.T) {
		_, err := srv.Start()
		assert.Error(t, err)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	t.Run("error channel closes on graceful stop", func(t *testing.T) {
		select {
		case serveErr, ok := <-errCh:
			assert.False(t, ok, "unexpected error: %v", serveErr)
		case <-time.After(5 * time.Second):
			t.Fatal("error channel not closed")
		}
	})

	t.Run("double stop is a no-op", func(t *testing.T) {
		assert.NoError(t, srv.Stop(context.Background()))
	})
}
