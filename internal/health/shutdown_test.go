package health_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/support-hubs/internal/health"
)

func TestReadyReportsShutdown(t *testing.T) {
	t.Cleanup(func() { health.SetReady(true) })
	handler := health.Handler{Checker: stubChecker{}}
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)

	health.SetReady(false)
	rr := httptest.NewRecorder()
	handler.Ready(rr, req)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.JSONEq(t, `{"status":"shutting down"}`, rr.Body.String())

	// Liveness is unaffected while draining.
	rr = httptest.NewRecorder()
	handler.Live(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	health.SetReady(true)
	rr = httptest.NewRecorder()
	handler.Ready(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestDepsWithoutClients(t *testing.T) {
	var deps health.Deps
	require.Error(t, deps.PingDB(context.Background(), 0))
	require.Error(t, deps.PingRedis(context.Background(), 0))
}
