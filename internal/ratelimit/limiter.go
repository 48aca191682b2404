package ratelimit

import (
	"context"
	"errors"
)

// ErrNotAcquired marks a dispatch that never reached the provider because no
// send slot could be obtained.
var ErrNotAcquired = errors.New("rate limit slot not acquired")

// Kind labels ErrNotAcquired failures in metrics, logs and the attempt ledger.
const Kind = "RATE_LIMIT"

// RateLimiter bounds outbound calls per provider.
type RateLimiter interface {
	Allow(ctx context.Context, provider string) (bool, error)
	Wait(ctx context.Context, provider string) error
}

// Unlimited never throttles. It is used when no shared limiter is configured.
type Unlimited struct{}

var _ RateLimiter = Unlimited{}

func (Unlimited) Allow(ctx context.Context, provider string) (bool, error) { return true, nil }

func (Unlimited) Wait(ctx context.Context, provider string) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
