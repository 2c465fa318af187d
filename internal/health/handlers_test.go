package health_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/support-hubs/internal/health"
)

type stubChecker struct {
	dbErr    error
	redisErr error
}

func (s stubChecker) PingDB(context.Context, time.Duration) error    { return s.dbErr }
func (s stubChecker) PingRedis(context.Context, time.Duration) error { return s.redisErr }

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func ready(h health.Handler) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	return rr
}

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReady(t *testing.T) {
	cases := []struct {
		name    string
		checker health.Checker
		code    int
		body    string
	}{
		{name: "healthy", checker: stubChecker{}, code: http.StatusOK, body: `{"status":"ok","db":"ok","redis":"ok"}`},
		{name: "db down", checker: stubChecker{dbErr: errors.New("db down")}, code: http.StatusServiceUnavailable,
			body: `{"status":"degraded","db":"db down","redis":"ok"}`},
		{name: "redis down", checker: stubChecker{redisErr: errors.New("dial tcp: refused")}, code: http.StatusServiceUnavailable,
			body: `{"status":"degraded","db":"ok","redis":"dial tcp: refused"}`},
		{name: "no checker", code: http.StatusServiceUnavailable, body: `{"status":"unconfigured"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := ready(health.Handler{Checker: tc.checker, DBTimeout: 10 * time.Millisecond})
			require.Equal(t, tc.code, rr.Code)
			require.JSONEq(t, tc.body, rr.Body.String())
		})
	}
}

func TestDepsProbesRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	deps := health.Deps{DB: pingFunc(func(context.Context) error { return nil }), Redis: client}

	rr := ready(health.Handler{Checker: deps})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	mr.Close()
	rr = ready(health.Handler{Checker: deps, RedisTimeout: 50 * time.Millisecond})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
