package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// rateLimitCreatePrefix is the Redis key prefix for link-creation limits.
	rateLimitCreatePrefix = "ratelimit:create:"
	// rateLimitCreateTTL is the TTL for creation rate limit keys.
	rateLimitCreateTTL = 120 * time.Second
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// tokenBucketScript is a Lua script implementing the token bucket algorithm.
// It's atomic and handles token refill and consumption in a single operation.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])      -- tokens per second
	local burst = tonumber(ARGV[2])     -- max tokens (bucket capacity)
	local now = tonumber(ARGV[3])       -- current time in seconds
	local ttl = tonumber(ARGV[4])       -- TTL in seconds

	local data = redis.call('HMGET', key, 'tokens', 'last_update')
	local tokens = tonumber(data[1]) or burst
	local last_update = tonumber(data[2]) or now

	local elapsed = now - last_update
	tokens = math.min(burst, tokens + (elapsed * rate))

	local allowed = 0
	local retry_after = 0

	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after = math.ceil((1 - tokens) / rate)
	end

	redis.call('HMSET', key, 'tokens', tokens, 'last_update', now)
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_after, math.floor(tokens)}
`)

// CheckCreateRateLimit checks and updates the link-creation rate limit
// for an owner. Returns whether the request is allowed.
func (c *Cache) CheckCreateRateLimit(ctx context.Context, ownerID string, ratePerMinute int) (*RateLimitResult, error) {
	if ratePerMinute <= 0 {
		return &RateLimitResult{Allowed: true, ResetAt: time.Now().Add(time.Minute)}, nil
	}

	key := rateLimitCreatePrefix + ownerID
	ratePerSecond := float64(ratePerMinute) / 60.0
	burst := ratePerMinute
	now := time.Now().Unix()

	result, err := tokenBucketScript.Run(ctx, c.client,
		[]string{key},
		ratePerSecond, burst, now, int(rateLimitCreateTTL.Seconds()),
	).Int64Slice()

	if err != nil {
		// Fail open on Redis errors - a creation burst is preferable to
		// a hard outage of the create endpoint.
		return &RateLimitResult{
			Allowed:   true,
			Remaining: int64(burst),
			ResetAt:   time.Now().Add(time.Minute),
		}, nil
	}

	return &RateLimitResult{
		Allowed:    result[0] == 1,
		RetryAfter: time.Duration(result[1]) * time.Second,
		Remaining:  result[2],
		ResetAt:    time.Now().Add(time.Duration(result[1]) * time.Second),
	}, nil
}
