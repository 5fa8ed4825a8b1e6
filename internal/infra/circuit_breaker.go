package infra

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// BreakerState represents the circuit breaker state.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // normal operation
	BreakerOpen                         // failing, reject requests
	BreakerHalfOpen                     // testing recovery
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for creating a circuit breaker.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int           // failures before opening
	SuccessThreshold int           // successes before closing (half-open)
	Cooldown         time.Duration // time in open before trying half-open
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
	}
}

// CircuitBreaker stops issuing calls to a failing venue endpoint class
// until it appears to have recovered. Thread-safe.
type CircuitBreaker struct {
	name string
	log  *zap.Logger
	mu   sync.RWMutex

	state        BreakerState
	failureCount int
	successCount int
	lastFailure  time.Time

	failureThreshold int
	successThreshold int
	cooldown         time.Duration

	// onOpen fires outside the lock when the breaker trips.
	onOpen func(name string)
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(cfg CircuitBreakerConfig, log *zap.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		name:             cfg.Name,
		log:              log,
		state:            BreakerClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		cooldown:         cfg.Cooldown,
	}
}

// OnOpen registers a callback invoked whenever the breaker transitions to
// open. Must be set before concurrent use.
func (cb *CircuitBreaker) OnOpen(fn func(name string)) { cb.onOpen = fn }

// Allow reports whether a request may proceed, moving open→half-open after
// the cooldown has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		return true

	case BreakerOpen:
		if time.Since(cb.lastFailure) > cb.cooldown {
			cb.state = BreakerHalfOpen
			cb.successCount = 0
			cb.log.Info("circuit breaker half-open", zap.String("name", cb.name))
			return true
		}
		return false

	case BreakerHalfOpen:
		return true

	default:
		return false
	}
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.failureCount = 0

	case BreakerHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = BreakerClosed
			cb.failureCount = 0
			cb.successCount = 0
			cb.log.Info("circuit breaker closed", zap.String("name", cb.name))
		}
	}
}

// RecordFailure records a failed call. Any failure in half-open reopens the
// breaker and restarts the cooldown.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	cb.lastFailure = time.Now()
	opened := false

	switch cb.state {
	case BreakerClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.state = BreakerOpen
			opened = true
			cb.log.Warn("circuit breaker open",
				zap.String("name", cb.name),
				zap.Int("failures", cb.failureCount))
		}

	case BreakerHalfOpen:
		cb.state = BreakerOpen
		cb.successCount = 0
		opened = true
		cb.log.Warn("circuit breaker reopened", zap.String("name", cb.name))
	}
	onOpen := cb.onOpen
	cb.mu.Unlock()

	if opened && onOpen != nil {
		onOpen(cb.name)
	}
}

// State returns the current state for monitoring.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset forces the breaker closed. For tests and operator intervention.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = BreakerClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.log.Info("circuit breaker reset", zap.String("name", cb.name))
}
