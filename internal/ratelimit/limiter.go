package ratelimit

import "context"

// RateLimiter bounds dispatch throughput per tenant so one scan cannot burst
// the external notifier or the data store.
type RateLimiter interface {
	Allow(ctx context.Context, tenantID string) (bool, error)
	Wait(ctx context.Context, tenantID string) error
}
