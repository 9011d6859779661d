package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var incrWithTTLScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return c
`)

// Limiter counts LLM calls per scope and client in fixed hourly windows.
type Limiter struct {
	redis  redis.Scripter
	prefix string
	limit  int64
}

// New returns a Limiter allowing limit calls per hour. A limit of zero or
// less disables limiting.
func New(rdb redis.Scripter, prefix string, limit int64) *Limiter {
	return &Limiter{redis: rdb, prefix: prefix, limit: limit}
}

func (l *Limiter) Allow(ctx context.Context, scope, client string, now time.Time) (allowed bool, used int64, resetAt time.Time, err error) {
	windowStart := now.UTC().Truncate(time.Hour)
	windowEnd := windowStart.Add(time.Hour)
	if l.limit <= 0 {
		return true, 0, windowEnd, nil
	}
	ttl := int64(windowEnd.Sub(now.UTC()).Seconds())
	if ttl < 1 {
		ttl = 1
	}

	key := fmt.Sprintf("%s:ratelimit:%s:%s:%s", l.prefix, scope, client, windowStart.Format("2006010215"))
	res, err := incrWithTTLScript.Run(ctx, l.redis, []string{key}, ttl).Int64()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit script: %w", err)
	}
	return res <= l.limit, res, windowEnd, nil
}
