// Package safety implements the Safety Controller (SPEC_FULL.md §4.5): a
// circuit breaker and token-bucket rate limiter gating every executor
// call, plus a preflight check run before a plan dispatches.
package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/catherinevee/integration-auditor/internal/apperrors"
	"github.com/catherinevee/integration-auditor/internal/model"
)

// Controller is the per-session safety collaborator. It implements
// planner.SafetyGate so it can be injected directly into
// planner.ExecutePlan without that package importing this one (spec.md
// §9's "explicitly constructed collaborators injected into the
// orchestrator" note).
type Controller struct {
	cfg     Config
	breaker *CircuitBreaker
	limiter *RateLimiter
	clock   func() time.Time

	mu       sync.Mutex
	inFlight int
}

// NewController builds a Controller from cfg.
func NewController(cfg Config) *Controller {
	return &Controller{
		cfg:     cfg,
		breaker: NewCircuitBreaker(cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.RecoveryTimeout, cfg.CircuitBreaker.HalfOpenMaxCalls),
		limiter: NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstLimit),
	}
}

// Allow implements planner.SafetyGate: it refuses a call while the
// circuit is OPEN, then blocks for a rate-limiter token. Cancellation-
// aware per SPEC_FULL.md §5.
func (c *Controller) Allow(ctx context.Context) error {
	if !c.breaker.Allow() {
		return apperrors.New(apperrors.KindSafety, "", fmt.Errorf("%w: circuit breaker is OPEN", apperrors.ErrSafetyBlocked))
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.New(apperrors.KindSafety, "", fmt.Errorf("%w: rate limiter wait: %v", apperrors.ErrSafetyBlocked, err))
	}
	return nil
}

// OnSuccess implements planner.SafetyGate.
func (c *Controller) OnSuccess() { c.breaker.OnSuccess() }

// OnFailure implements planner.SafetyGate.
func (c *Controller) OnFailure() { c.breaker.OnFailure() }

// AcquireIntegrationSlot blocks the caller from starting work on a new
// integration until fewer than MaxConcurrentIntegrations are in flight.
// Release must be called when that integration's plan finishes executing.
func (c *Controller) AcquireIntegrationSlot(ctx context.Context) error {
	limit := c.cfg.MaxConcurrentIntegrations
	if limit <= 0 {
		return nil
	}
	for {
		c.mu.Lock()
		if c.inFlight < limit {
			c.inFlight++
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// ReleaseIntegrationSlot frees a slot acquired by AcquireIntegrationSlot.
func (c *Controller) ReleaseIntegrationSlot() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight > 0 {
		c.inFlight--
	}
}

// Status reports the controller's current posture for status reporting
// and audit/CLI surfaces.
func (c *Controller) Status() model.SafetyStatus {
	state, fails := c.breaker.State()
	inWindow := c.cfg.MaintenanceWindow == nil || c.cfg.MaintenanceWindow.Contains(c.now())
	return model.SafetyStatus{
		CircuitState:        state,
		ConsecutiveFailures: fails,
		InMaintenanceWindow: inWindow,
	}
}

// WithClock overrides the controller's time source, for deterministic
// maintenance-window tests.
func (c *Controller) WithClock(clock func() time.Time) *Controller {
	c.clock = clock
	return c
}
