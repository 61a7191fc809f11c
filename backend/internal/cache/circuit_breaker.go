package cache

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type CircuitState string

const (
	StateClosed   CircuitState = "closed"
	StateOpen     CircuitState = "open"
	StateHalfOpen CircuitState = "half-open"
)

type CircuitBreakerConfig struct {
	MaxFailures  int
	ResetTimeout time.Duration
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:  5,
		ResetTimeout: 30 * time.Second,
	}
}

// CircuitBreaker stops calling a failing dependency for ResetTimeout after MaxFailures
// consecutive errors, then lets one trial call through.
type CircuitBreaker struct {
	config      CircuitBreakerConfig
	mu          sync.Mutex
	state       CircuitState
	failures    int
	lastFailure time.Time
	rejected    int64
}

func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = DefaultCircuitBreakerConfig().MaxFailures
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = DefaultCircuitBreakerConfig().ResetTimeout
	}
	return &CircuitBreaker{config: config, state: StateClosed}
}

// ignorable errors are answers from a healthy dependency, not failures.
func ignorable(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if cb.state == StateOpen {
		if time.Since(cb.lastFailure) < cb.config.ResetTimeout {
			cb.rejected++
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && !ignorable(err) {
		cb.failures++
		cb.lastFailure = time.Now()
		if cb.state == StateHalfOpen || cb.failures >= cb.config.MaxFailures {
			cb.state = StateOpen
		}
		return err
	}

	cb.failures = 0
	cb.state = StateClosed
	return err
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) GetStats() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return map[string]interface{}{
		"state":        string(cb.state),
		"failures":     cb.failures,
		"max_failures": cb.config.MaxFailures,
		"rejected":     cb.rejected,
	}
}
