package ratelimit

import (
	"context"
	"strings"
)

const checkoutKeyPrefix = "invoicepay:checkout:"

// Limiter decides whether a caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (*RateLimitResult, error)
}

// CheckoutLimiter throttles checkout initialization per client so a public
// pay link cannot be used to flood the gateway with transaction requests.
type CheckoutLimiter struct {
	bucket *TokenBucket
}

func NewCheckoutLimiter(bucket *TokenBucket) *CheckoutLimiter {
	return &CheckoutLimiter{bucket: bucket}
}

// Allow always admits callers when the limiter is nil.
func (l *CheckoutLimiter) Allow(ctx context.Context, key string) (*RateLimitResult, error) {
	if l == nil {
		return &RateLimitResult{Allowed: true}, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	return l.bucket.Take(ctx, checkoutKeyPrefix+key)
}
