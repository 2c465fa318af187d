package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/support-hubs/internal/common"
)

// NewLimiterStore wires a fixed-window limiter store backed by Redis.
func NewLimiterStore(rdb *redis.Client) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "ratelimit:global"})
}

// Global returns a per-client-IP limiter middleware for the whole API. rate uses
// the limiter format, e.g. "300-M".
func Global(store limiter.Store, rate string) (func(http.Handler) http.Handler, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse rate %q: %w", rate, err)
	}
	l := limiter.New(store, parsed)
	mw := stdlib.NewMiddleware(l,
		stdlib.WithKeyGetter(func(r *http.Request) string { return common.ClientIP(r) }),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, retry later", map[string]any{
				"limit": strconv.FormatInt(parsed.Limit, 10),
			})
		}),
	)
	return mw.Handler, nil
}
