package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

var draining atomic.Bool

// SetReady toggles readiness. The API clears it when shutdown begins so the
// load balancer stops routing new requests before the listener closes.
func SetReady(v bool) { draining.Store(!v) }

// Checker probes the dependencies readiness depends on.
type Checker interface {
	PingDB(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// DBPinger is satisfied by *store.Store.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// Deps probes Postgres and Redis.
type Deps struct {
	DB    DBPinger
	Redis *redis.Client
}

var (
	errNoDB    = errors.New("db not configured")
	errNoRedis = errors.New("redis not configured")
)

// PingDB implements Checker.
func (d Deps) PingDB(ctx context.Context, timeout time.Duration) error {
	if d.DB == nil {
		return errNoDB
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.DB.Ping(ctx)
}

// PingRedis implements Checker.
func (d Deps) PingRedis(ctx context.Context, timeout time.Duration) error {
	if d.Redis == nil {
		return errNoRedis
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.Redis.Ping(ctx).Err()
}

// Handler serves /health/live and /health/ready.
type Handler struct {
	Checker      Checker
	DBTimeout    time.Duration
	RedisTimeout time.Duration
}

// Live answers as long as the process can serve HTTP.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready probes Postgres and Redis in parallel and answers 503 when either
// fails or the process is draining.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if draining.Load() {
		writeStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting down"})
		return
	}
	if h.Checker == nil {
		writeStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "unconfigured"})
		return
	}

	db, rds := "ok", "ok"
	var g errgroup.Group
	g.Go(func() error {
		if err := h.Checker.PingDB(r.Context(), orDefault(h.DBTimeout, 500*time.Millisecond)); err != nil {
			db = err.Error()
		}
		return nil
	})
	g.Go(func() error {
		if err := h.Checker.PingRedis(r.Context(), orDefault(h.RedisTimeout, 300*time.Millisecond)); err != nil {
			rds = err.Error()
		}
		return nil
	})
	_ = g.Wait()

	code, overall := http.StatusOK, "ok"
	if db != "ok" || rds != "ok" {
		code, overall = http.StatusServiceUnavailable, "degraded"
	}
	writeStatus(w, code, map[string]string{"status": overall, "db": db, "redis": rds})
}

func writeStatus(w http.ResponseWriter, code int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
