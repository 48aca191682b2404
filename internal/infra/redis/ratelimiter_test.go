package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, rdb *goredis.Client, opts LimiterOptions, now *time.Time) *RedisRateLimiter {
	t.Helper()

	limiter, err := NewRedisRateLimiter(rdb, opts)
	if err != nil {
		t.Fatalf("NewRedisRateLimiter() error = %v", err)
	}
	limiter.now = func() time.Time { return *now }
	return limiter
}

func TestRedisRateLimiterAllow(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	limiter := newTestLimiter(t, newTestRedisClient(t), LimiterOptions{Limit: 2}, &now)

	want := []bool{true, true, false}
	for i, w := range want {
		allowed, err := limiter.Allow(context.Background(), "lunarsoft")
		if err != nil {
			t.Fatalf("Allow() #%d error = %v", i+1, err)
		}
		if allowed != w {
			t.Fatalf("Allow() #%d = %v, want %v", i+1, allowed, w)
		}
	}

	now = now.Add(time.Second)
	allowed, err := limiter.Allow(context.Background(), "lunarsoft")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Fatal("new window should allow call")
	}
}

func TestRedisRateLimiterAllowPerProvider(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_100, 0)
	limiter := newTestLimiter(t, newTestRedisClient(t), LimiterOptions{Limit: 1}, &now)

	tests := []struct {
		provider string
		want     bool
	}{
		{provider: "lunarsoft", want: true},
		{provider: "bizmsg", want: true},
		{provider: "lunarsoft", want: false},
	}
	for _, tt := range tests {
		allowed, err := limiter.Allow(context.Background(), tt.provider)
		if err != nil {
			t.Fatalf("Allow(%s) error = %v", tt.provider, err)
		}
		if allowed != tt.want {
			t.Fatalf("Allow(%s) = %v, want %v", tt.provider, allowed, tt.want)
		}
	}
}

func TestRedisRateLimiterWaitSleepsToNextWindow(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_200, 0).Add(250 * time.Millisecond)
	limiter := newTestLimiter(t, newTestRedisClient(t), LimiterOptions{Limit: 1}, &now)

	var slept []time.Duration
	limiter.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		now = now.Add(d)
		return nil
	}

	if err := limiter.Wait(context.Background(), "lunarsoft"); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}
	if err := limiter.Wait(context.Background(), "lunarsoft"); err != nil {
		t.Fatalf("second Wait() error = %v", err)
	}

	if len(slept) != 1 || slept[0] != 750*time.Millisecond {
		t.Fatalf("sleeps = %v, want [750ms]", slept)
	}
}

func TestRedisRateLimiterWaitContextDeadline(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_300, 0)
	limiter := newTestLimiter(t, newTestRedisClient(t), LimiterOptions{Limit: 1}, &now)

	if err := limiter.Wait(context.Background(), "lunarsoft"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx, "lunarsoft")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestRedisRateLimiterKeyLayout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    LimiterOptions
		pattern string
		want    string
	}{
		{
			name:    "default prefix and window",
			opts:    LimiterOptions{Limit: 5},
			pattern: "alarm-gateway:ratelimit:*",
			want:    "alarm-gateway:ratelimit:lunarsoft:1700000400",
		},
		{
			name:    "custom prefix and window",
			opts:    LimiterOptions{Limit: 5, Window: 10 * time.Second, KeyPrefix: "tenant-a:rl:"},
			pattern: "tenant-a:rl:*",
			want:    "tenant-a:rl:lunarsoft:170000040",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rdb := newTestRedisClient(t)
			now := time.Unix(1_700_000_400, 0)
			limiter := newTestLimiter(t, rdb, tt.opts, &now)

			if _, err := limiter.Allow(context.Background(), "  LunarSoft "); err != nil {
				t.Fatalf("Allow() error = %v", err)
			}

			keys, err := rdb.Keys(context.Background(), tt.pattern).Result()
			if err != nil {
				t.Fatalf("Keys() error = %v", err)
			}
			if len(keys) != 1 || keys[0] != tt.want {
				t.Fatalf("keys = %v, want [%s]", keys, tt.want)
			}

			if _, err := limiter.Allow(context.Background(), " "); err == nil {
				t.Fatal("expected error for empty provider")
			}
		})
	}
}

func TestLimiterOptionsDefaults(t *testing.T) {
	t.Parallel()

	got := LimiterOptions{}.withDefaults()
	want := LimiterOptions{Limit: 50, Window: time.Second, KeyPrefix: DefaultKeyPrefix}
	if got != want {
		t.Fatalf("withDefaults() = %+v, want %+v", got, want)
	}
}

func TestNewRedisRateLimiterRequiresClient(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisRateLimiter(nil, LimiterOptions{Limit: 10}); err == nil {
		t.Fatal("expected error for nil client")
	}
}

func newTestRedisClient(t *testing.T) *goredis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return rdb
}
