package common

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// IdempotencyHeader names the client-chosen key for a write request.
const IdempotencyHeader = "Idempotency-Key"

const idemPending = "pending"

// Idem makes write endpoints safe to retry. The first request carrying a key
// runs; a retry while it is in flight gets 409, and a retry after it
// succeeded gets the stored response back. Failed attempts release the key.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

type storedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// idemKey scopes the client key by caller and route so two users cannot
// collide on the same header value.
func idemKey(r *http.Request, key string) string {
	scope := r.Method + " " + r.URL.Path
	if p, ok := PrincipalFrom(r.Context()); ok {
		scope = p.OrganizationID.String() + " " + p.UserID.String() + " " + scope
	}
	sum := sha256.Sum256([]byte(scope + "|" + key))
	return "idem:" + hex.EncodeToString(sum[:])
}

// Middleware wraps a write handler.
func (i Idem) Middleware(next http.Handler) http.Handler {
	if i.R == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(IdempotencyHeader)
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		key := idemKey(r, header)
		acquired, err := i.R.SetNX(ctx, key, idemPending, i.TTL).Result()
		if err != nil {
			JSONError(w, http.StatusServiceUnavailable, "IDEMPOTENCY_UNAVAILABLE", "idempotency store unavailable", nil)
			return
		}
		if !acquired {
			i.replay(ctx, w, key)
			return
		}

		// The key is released unless a response was stored, including when
		// the handler panics.
		bg := context.WithoutCancel(ctx)
		stored := false
		defer func() {
			if !stored {
				_ = i.R.Del(bg, key).Err()
			}
		}()

		rec := &idemRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.status >= http.StatusBadRequest {
			return
		}
		raw, err := json.Marshal(storedResponse{Status: rec.status, Body: rec.jsonBody()})
		if err != nil {
			return
		}
		stored = i.R.Set(bg, key, raw, i.TTL).Err() == nil
	})
}

func (i Idem) replay(ctx context.Context, w http.ResponseWriter, key string) {
	val, err := i.R.Get(ctx, key).Bytes()
	if err != nil || string(val) == idemPending {
		JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "a request with this idempotency key is in progress", nil)
		return
	}
	var stored storedResponse
	if err := json.Unmarshal(val, &stored); err != nil {
		JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
		return
	}
	w.Header().Set("Idempotent-Replayed", "true")
	if len(stored.Body) == 0 {
		w.WriteHeader(stored.Status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
	_, _ = w.Write([]byte("\n"))
}

type idemRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *idemRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *idemRecorder) Write(p []byte) (int, error) {
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

// jsonBody returns the captured body when it is valid JSON.
func (r *idemRecorder) jsonBody() json.RawMessage {
	b := bytes.TrimSpace(r.body.Bytes())
	if len(b) == 0 || !json.Valid(b) {
		return nil
	}
	return json.RawMessage(b)
}
