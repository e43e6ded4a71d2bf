package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles outbound provider calls per account using an
// atomic Redis Lua script, grounded on the teacher's worker.RateLimiter
// (internal/worker/rate_limiter.go in the teacher repository): the same
// check-then-increment-in-one-script idiom collapsed to Ashford's single
// per-account-per-minute bucket, since there is no multi-ESP tiering to
// model here.
type RateLimiter struct {
	redis  *redis.Client
	script *redis.Script
}

const limiterLuaScript = `
local key = KEYS[1]
local increment = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local current = tonumber(redis.call("GET", key) or "0")
if current + increment > limit then
	return {0, current}
end

local newVal = redis.call("INCRBY", key, increment)
if newVal == increment then
	redis.call("EXPIRE", key, ttl)
end
return {1, newVal}
`

// NewRateLimiter builds a RateLimiter over an already-connected client.
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{redis: client, script: redis.NewScript(limiterLuaScript)}
}

// Allow atomically checks and increments accountID's per-minute action
// budget, returning how long the caller should wait before retrying if
// denied.
func (r *RateLimiter) Allow(ctx context.Context, accountID string, limitPerMinute int) (allowed bool, wait time.Duration, err error) {
	now := time.Now()
	key := fmt.Sprintf("ratelimit:action:%s:%d", accountID, now.Unix()/60)

	result, err := r.script.Run(ctx, r.redis, []string{key}, 1, limitPerMinute, 120).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("provider: rate limit check: %w", err)
	}

	allowedInt, _ := result[0].(int64)
	if allowedInt != 1 {
		return false, time.Duration(60-now.Second()) * time.Second, nil
	}
	return true, 0, nil
}
