package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/alarm-gateway/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix = "alarm-gateway:ratelimit"

	defaultLimit  = 50
	defaultWindow = time.Second
)

// fixedWindowScript counts one send in KEYS[1] and reports whether it fits
// under ARGV[1]. The key expires ARGV[2] milliseconds after its first use.
var fixedWindowScript = goredis.NewScript(`
local used = redis.call("INCR", KEYS[1])
if used == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if used > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

// LimiterOptions sizes the shared send window.
type LimiterOptions struct {
	Limit     int
	Window    time.Duration
	KeyPrefix string
}

func (o LimiterOptions) withDefaults() LimiterOptions {
	if o.Limit <= 0 {
		o.Limit = defaultLimit
	}
	if o.Window < time.Millisecond {
		o.Window = defaultWindow
	}
	o.KeyPrefix = strings.TrimSuffix(strings.TrimSpace(o.KeyPrefix), ":")
	if o.KeyPrefix == "" {
		o.KeyPrefix = DefaultKeyPrefix
	}
	return o
}

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter caps provider sends per fixed window across every api and
// worker process sharing the Redis instance.
type RedisRateLimiter struct {
	client *goredis.Client
	opts   LimiterOptions
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewRedisRateLimiter(client *goredis.Client, opts LimiterOptions) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisRateLimiter{
		client: client,
		opts:   opts.withDefaults(),
		now:    time.Now,
		sleep:  sleepWithContext,
	}, nil
}

// Allow takes a slot in the current window if one is left.
func (r *RedisRateLimiter) Allow(ctx context.Context, provider string) (bool, error) {
	allowed, _, err := r.take(ctx, provider)
	return allowed, err
}

// Wait blocks until a slot is taken, sleeping to the start of the next window
// each time the current one is full.
func (r *RedisRateLimiter) Wait(ctx context.Context, provider string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		allowed, windowEnd, err := r.take(ctx, provider)
		if err != nil || allowed {
			return err
		}
		if err := r.sleep(ctx, max(windowEnd.Sub(r.now()), time.Millisecond)); err != nil {
			return err
		}
	}
}

func (r *RedisRateLimiter) take(ctx context.Context, provider string) (bool, time.Time, error) {
	if r == nil || r.client == nil {
		return false, time.Time{}, fmt.Errorf("rate limiter is not initialized")
	}
	name := strings.ToLower(strings.TrimSpace(provider))
	if name == "" {
		return false, time.Time{}, fmt.Errorf("provider is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	window := r.opts.Window
	index := r.now().UnixMilli() / window.Milliseconds()
	windowEnd := time.UnixMilli((index + 1) * window.Milliseconds())

	key := fmt.Sprintf("%s:%s:%d", r.opts.KeyPrefix, name, index)
	allowed, err := fixedWindowScript.Run(ctx, r.client, []string{key}, r.opts.Limit, window.Milliseconds()).Int()
	if err != nil {
		return false, windowEnd, fmt.Errorf("rate limit check for %s failed: %w", name, err)
	}
	return allowed == 1, windowEnd, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
