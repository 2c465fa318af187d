package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

// Config picks the bucket for a request and its threshold.
type Config struct {
	// Key returns the bucket; an empty key skips limiting.
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Handler applies a Limiter to a route. Redis failures are reported through
// OnError and let the request through.
type Handler struct {
	Limiter Limiter
	Config  Config
	OnError func(error)
}

// Middleware sets X-RateLimit-* headers and answers 429 once the bucket is full.
func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Config.Key == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := h.Config.Key(r)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		d, err := h.Limiter.Allow(r.Context(), key, h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(max(d.Limit, 0)))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		if d.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		wait := int(math.Ceil(d.RetryAfter(h.Limiter.now()).Seconds()))
		headers.Set("Retry-After", strconv.Itoa(wait))
		common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, retry later", map[string]any{
			"retryAfterSeconds": wait,
		})
	})
}

// IssuerKey buckets requests by organization and user. Anonymous callers
// fall back to their client IP.
func IssuerKey(action string) func(*http.Request) string {
	return func(r *http.Request) string {
		var subject string
		if p, ok := common.PrincipalFrom(r.Context()); ok {
			subject = "user:" + p.UserID.String()
		} else if ip := common.ClientIP(r); ip != "" {
			subject = ip
		} else {
			return ""
		}
		if scope, err := tenant.ScopeFromContext(r.Context()); err == nil {
			return tenant.PrefixKey(scope, action+":"+subject)
		}
		return action + ":" + subject
	}
}
