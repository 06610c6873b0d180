package safety

import (
	"sync"
	"time"

	"github.com/catherinevee/integration-auditor/internal/model"
)

// CircuitBreaker tracks consecutive executor failures for one session and
// gates execution when they cross a threshold. It never transitions
// directly OPEN -> CLOSED: recovery always passes through HALF_OPEN
// (spec.md §8's circuit-breaker invariant), adapted from the teacher's
// atomic-counter CircuitBreaker (internal/shared/resilience/circuit_breaker.go)
// down to a single mutex, since this spec has one circuit per session
// rather than one per cloud provider.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	recoveryTimeout  time.Duration
	halfOpenMaxCalls int

	state            model.CircuitState
	consecutiveFails int
	halfOpenSuccess  int
	openedAt         time.Time
}

// NewCircuitBreaker builds a breaker in the CLOSED state.
func NewCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration, halfOpenMaxCalls int) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if halfOpenMaxCalls <= 0 {
		halfOpenMaxCalls = 1
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		halfOpenMaxCalls: halfOpenMaxCalls,
		state:            model.CircuitClosed,
	}
}

// Allow reports whether a call may proceed, performing the OPEN ->
// HALF_OPEN transition if recoveryTimeout has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case model.CircuitClosed:
		return true
	case model.CircuitOpen:
		if time.Since(cb.openedAt) >= cb.recoveryTimeout {
			cb.state = model.CircuitHalfOpen
			cb.halfOpenSuccess = 0
			return true
		}
		return false
	case model.CircuitHalfOpen:
		return true
	default:
		return false
	}
}

// OnSuccess records a successful call. In CLOSED it decrements the
// failure counter toward 0; in HALF_OPEN, halfOpenMaxCalls consecutive
// successes close the circuit.
func (cb *CircuitBreaker) OnSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case model.CircuitClosed:
		if cb.consecutiveFails > 0 {
			cb.consecutiveFails--
		}
	case model.CircuitHalfOpen:
		cb.halfOpenSuccess++
		if cb.halfOpenSuccess >= cb.halfOpenMaxCalls {
			cb.state = model.CircuitClosed
			cb.consecutiveFails = 0
			cb.halfOpenSuccess = 0
		}
	}
}

// OnFailure records a failed call. In CLOSED, failureThreshold consecutive
// failures opens the circuit. Any failure in HALF_OPEN reopens it.
func (cb *CircuitBreaker) OnFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case model.CircuitClosed:
		cb.consecutiveFails++
		if cb.consecutiveFails >= cb.failureThreshold {
			cb.state = model.CircuitOpen
			cb.openedAt = time.Now()
		}
	case model.CircuitHalfOpen:
		cb.state = model.CircuitOpen
		cb.openedAt = time.Now()
		cb.halfOpenSuccess = 0
	}
}

// State returns the current circuit state and consecutive-failure count.
func (cb *CircuitBreaker) State() (model.CircuitState, int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state, cb.consecutiveFails
}
