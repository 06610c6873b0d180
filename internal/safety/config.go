package safety

import "time"

// CircuitBreakerConfig configures the session's single circuit breaker
// (spec.md §4.5).
type CircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenMaxCalls int
}

// RateLimitConfig configures the session's single token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstLimit        int
}

// ConfirmationThresholds names the counts above which a preflight check
// blocks without an explicit operator confirmation, and at 80% of which
// it warns (spec.md §4.5).
type ConfirmationThresholds struct {
	Destructive int
	Total       int
	HighRisk    int
}

// Config is the full set of environment-driven safety parameters
// (spec.md §6's "Environment-driven safety config").
type Config struct {
	AllowlistEnabled bool
	Allowlist        []string

	MaintenanceWindow *MaintenanceWindow

	MaxOpsPerIntegration      int
	MaxTotalOps               int
	MaxConcurrentIntegrations int

	Confirmation ConfirmationThresholds

	CircuitBreaker CircuitBreakerConfig
	RateLimit      RateLimitConfig
}

// DefaultConfig returns conservative defaults matching the teacher's
// provider circuit-breaker/rate-limiter defaults
// (internal/shared/resilience), scaled down from per-cloud-provider
// values to one session-wide safety controller.
func DefaultConfig() Config {
	return Config{
		MaxOpsPerIntegration:      50,
		MaxTotalOps:               5000,
		MaxConcurrentIntegrations: 10,
		Confirmation: ConfirmationThresholds{
			Destructive: 25,
			Total:       500,
			HighRisk:    10,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			HalfOpenMaxCalls: 2,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			BurstLimit:        20,
		},
	}
}

// allows reports whether id is permitted when the allowlist is enabled.
func (c Config) allows(id string) bool {
	if !c.AllowlistEnabled {
		return true
	}
	for _, a := range c.Allowlist {
		if a == id {
			return true
		}
	}
	return false
}
