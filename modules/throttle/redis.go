package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims entries older than the window, counts the rest
// and records the request when below the limit, atomically.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local counter_key = KEYS[2]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_size_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local count = redis.call('ZCARD', key)

	if count < limit then
		local counter = redis.call('INCR', counter_key)
		redis.call('ZADD', key, now, now .. ':' .. counter)
		redis.call('PEXPIRE', key, window_size_ms)
		redis.call('PEXPIRE', counter_key, window_size_ms)
		return {1, count + 1, 0}
	else
		local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
		local retry_after = 0
		if #oldest >= 2 then
			retry_after = oldest[2] + window_size_ms - now
		end
		return {0, count, retry_after}
	end
`)

// RedisCounter is a sliding-window counter shared by every process using
// the same Redis.
type RedisCounter struct {
	client *redis.Client
	limit  int
	period time.Duration
	prefix string
}

// NewRedisCounter creates a counter allowing limit requests per sliding period.
func NewRedisCounter(client *redis.Client, limit int, period time.Duration, prefix string) *RedisCounter {
	return &RedisCounter{
		client: client,
		limit:  limit,
		period: period,
		prefix: prefix,
	}
}

// Allow counts one request for key.
func (c *RedisCounter) Allow(ctx context.Context, key string) (*Result, error) {
	now := time.Now()
	redisKey := c.prefix + key

	result, err := slidingWindowScript.Run(ctx, c.client, []string{redisKey, redisKey + ":counter"},
		now.UnixMilli(),
		now.Add(-c.period).UnixMilli(),
		c.limit,
		c.period.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to run throttle script: %w", err)
	}

	if len(result) < 3 {
		return nil, fmt.Errorf("unexpected result length: %d", len(result))
	}
	allowedVal, ok := result[0].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected type for allowed: %T", result[0])
	}
	countVal, ok := result[1].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected type for count: %T", result[1])
	}
	retryAfterMs, ok := result[2].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected type for retry_after: %T", result[2])
	}

	res := &Result{
		Allowed:   allowedVal == 1,
		Count:     int(countVal),
		Remaining: max(c.limit-int(countVal), 0),
		ResetAt:   now.Add(c.period),
	}
	if !res.Allowed && retryAfterMs > 0 {
		res.RetryAfter = time.Duration(retryAfterMs) * time.Millisecond
	}
	return res, nil
}

// Reset deletes the window of key.
func (c *RedisCounter) Reset(ctx context.Context, key string) error {
	redisKey := c.prefix + key
	if err := c.client.Del(ctx, redisKey, redisKey+":counter").Err(); err != nil {
		return fmt.Errorf("failed to reset throttle key: %w", err)
	}
	return nil
}
