package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is an exported constant or variable used by the security core.
var ErrRedisUnavailable = errors.New("redis unavailable")

// checkAndIncrementScript is the atomic read-and-increment-or-initialize
// primitive. At or above the budget it does NOT increment, so continued
// hammering never extends the lockout window. A counter that somehow lost its
// TTL is treated as a stale window and reset.
const checkAndIncrementScript = `
local key = KEYS[1]
local max = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])

local count = tonumber(redis.call("GET", key) or "0")
if count >= max then
  local ttl = redis.call("PTTL", key)
  if ttl > 0 then
    return {0, count, ttl}
  end
  redis.call("DEL", key)
end

local next = redis.call("INCR", key)
if next == 1 then
  redis.call("PEXPIRE", key, window_ms)
end
local ttl = redis.call("PTTL", key)
return {1, next, ttl}
`

var checkAndIncrementLua = redis.NewScript(checkAndIncrementScript)

// Policy is the per-action budget: MaxAttempts within one fixed Window.
type Policy struct {
	MaxAttempts int
	Window      time.Duration
}

// Decision is the raw limiter outcome. The engine maps it onto the public
// RateLimitDecision with absolute timestamps.
type Decision struct {
	Allowed    bool
	Count      int
	ResetAfter time.Duration
}

// Limiter enforces per-(action, identifier) attempt budgets using Redis
// counters with window-scoped TTLs.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a [Limiter] backed by the given Redis client under the given
// key prefix.
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (l *Limiter) key(action, identifier string) string {
	return l.prefix + ":" + action + ":" + identifier
}

// CheckAndIncrement consumes one attempt slot if the budget allows. Runs as a
// single Lua script; see package doc for why a separate read+write pair is
// not acceptable here.
func (l *Limiter) CheckAndIncrement(ctx context.Context, action, identifier string, p Policy) (Decision, error) {
	result, err := checkAndIncrementLua.Run(
		ctx,
		l.redis,
		[]string{l.key(action, identifier)},
		p.MaxAttempts,
		p.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(result) != 3 {
		return Decision{}, fmt.Errorf("%w: invalid limiter script response", ErrRedisUnavailable)
	}

	return Decision{
		Allowed:    result[0] == 1,
		Count:      int(result[1]),
		ResetAfter: ttlToDuration(result[2], p.Window),
	}, nil
}

// Peek returns the current counter state without consuming a slot. Missing
// keys report a fresh window.
func (l *Limiter) Peek(ctx context.Context, action, identifier string, p Policy) (Decision, error) {
	key := l.key(action, identifier)

	pipe := l.redis.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	count, err := getCmd.Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Decision{Allowed: true, Count: 0, ResetAfter: p.Window}, nil
		}
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	ttl, err := ttlCmd.Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return Decision{
		Allowed:    int(count) < p.MaxAttempts,
		Count:      int(count),
		ResetAfter: ttlToDuration(ttl.Milliseconds(), p.Window),
	}, nil
}

// Reset deletes the counter, reopening the window. Called after a legitimate
// success or by an administrator.
func (l *Limiter) Reset(ctx context.Context, action, identifier string) error {
	if err := l.redis.Del(ctx, l.key(action, identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func ttlToDuration(ttlMillis int64, window time.Duration) time.Duration {
	if ttlMillis <= 0 {
		return window
	}
	return time.Duration(ttlMillis) * time.Millisecond
}
