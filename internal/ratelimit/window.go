package ratelimit

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one Limiter.Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the wait before the oldest attempt leaves the window.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Limiter is a sliding-window limiter over a Redis sorted set, one member
// per attempt scored by its unix-nano timestamp. It guards voucher issuance;
// the API-wide limit lives in Global.
type Limiter struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

func (l Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l Limiter) key(k string) string {
	if l.Prefix == "" {
		return k
	}
	return strings.TrimSuffix(l.Prefix, ":") + ":" + k
}

// Allow records an attempt under key and reports whether it fits in max per
// window. Rejected attempts are removed again so they never extend the window.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (Decision, error) {
	now := l.now()
	if l.Client == nil || max <= 0 || window <= 0 {
		return Decision{Allowed: true, Limit: max, Remaining: max, ResetAt: now.Add(window)}, nil
	}

	redisKey := l.key(key)
	member := uuid.NewString()
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	var card *redis.IntCmd
	var oldest *redis.ZSliceCmd
	_, err := l.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, redisKey, "-inf", "("+cutoff)
		pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
		card = pipe.ZCard(ctx, redisKey)
		oldest = pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
		pipe.PExpire(ctx, redisKey, window)
		return nil
	})
	if err != nil {
		return Decision{Limit: max, ResetAt: now.Add(window)}, err
	}

	count := int(card.Val())
	d := Decision{Allowed: count <= max, Limit: max, Remaining: max - count, ResetAt: now.Add(window)}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if z := oldest.Val(); len(z) == 1 {
		d.ResetAt = time.Unix(0, int64(z[0].Score)).Add(window)
	}
	if !d.Allowed {
		if err := l.Client.ZRem(ctx, redisKey, member).Err(); err != nil {
			return d, err
		}
	}
	return d, nil
}
