package redis

import (
	"context"
	"time"
)

// Window is the outcome of one fixed-window check.
type Window struct {
	Allowed bool
	Count   int64
	// ResetIn is how long until the counter expires. It falls back to the
	// full window when Redis cannot say.
	ResetIn time.Duration
}

// RateLimiter is the fixed-window surface used by the auth throttles.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (Window, error)
}

var _ RateLimiter = (*Client)(nil)

// FixedWindowAllow counts a hit against scope. The first hit in a window
// starts its expiry. A non-positive limit disables the check.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (Window, error) {
	if limit <= 0 {
		return Window{Allowed: true}, nil
	}
	if c.store == nil {
		return Window{}, errNotInitialized
	}

	key := c.RateLimitKey(scope)
	count, err := c.store.Incr(ctx, key).Result()
	if err != nil {
		return Window{}, err
	}

	result := Window{Allowed: count <= limit, Count: count, ResetIn: window}
	if count == 1 {
		if window > 0 {
			if err := c.store.Expire(ctx, key, window).Err(); err != nil {
				return result, err
			}
		}
		return result, nil
	}
	if !result.Allowed {
		if ttl, err := c.store.PTTL(ctx, key).Result(); err == nil && ttl > 0 {
			result.ResetIn = ttl
		}
	}
	return result, nil
}
