package safety

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket gating executor calls, per spec.md §4.5
// ("token bucket, requestsPerSecond refill, capacity burstLimit"). It
// wraps golang.org/x/time/rate rather than the teacher's hand-rolled
// channel-based bucket (internal/shared/resilience/ratelimiter.go), since
// the ecosystem package covers the same semantics without the teacher's
// per-waiter-channel bookkeeping.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter builds a limiter refilling requestsPerSecond tokens per
// second, up to burstLimit banked tokens.
func NewRateLimiter(requestsPerSecond float64, burstLimit int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	if burstLimit <= 0 {
		burstLimit = int(requestsPerSecond)
		if burstLimit <= 0 {
			burstLimit = 1
		}
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burstLimit)}
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}

// Available reports the number of currently banked tokens, rounded down.
func (rl *RateLimiter) Available() int {
	return int(rl.limiter.Tokens())
}
