package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Call while the breaker rejects requests.
var ErrOpen = errors.New("circuit breaker open")

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// State is the breaker state (Closed, Open, HalfOpen).
type State int

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds breaker parameters. Zero values fall back to defaults in New.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	Component        string
	// IsFailure decides whether an error counts toward opening the breaker.
	// Nil counts every non-nil error.
	IsFailure     func(error) bool
	OnStateChange func(component string, from, to State)
}

// CircuitBreaker stops calling a provider after repeated failures and lets
// probe calls through once Timeout has passed.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           State
	failures        int
	successes       int
	lastFailureTime time.Time
	cfg             Config
	now             func() time.Time
}

// New creates a closed CircuitBreaker.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &CircuitBreaker{state: StateClosed, cfg: cfg, now: time.Now}
}

// Component returns the name the breaker was configured with.
func (cb *CircuitBreaker) Component() string {
	return cb.cfg.Component
}

// Call runs fn unless the breaker is open. Errors from fn are returned unchanged.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !cb.allow() {
		return ErrOpen
	}
	err := fn()
	cb.record(err)
	return err
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	if cb.state != StateOpen {
		cb.mu.Unlock()
		return true
	}
	if cb.now().Sub(cb.lastFailureTime) < cb.cfg.Timeout {
		cb.mu.Unlock()
		return false
	}
	cb.state = StateHalfOpen
	cb.successes = 0
	cb.mu.Unlock()
	cb.notify(StateOpen, StateHalfOpen)
	return true
}

func (cb *CircuitBreaker) record(err error) {
	failed := err != nil
	if failed && cb.cfg.IsFailure != nil {
		failed = cb.cfg.IsFailure(err)
	}

	cb.mu.Lock()
	from := cb.state
	to := from
	if failed {
		cb.failures++
		cb.lastFailureTime = cb.now()
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
			to = StateOpen
			cb.failures = 0
		}
	} else {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.successes++
			if cb.successes >= cb.cfg.SuccessThreshold {
				to = StateClosed
				cb.successes = 0
			}
		}
	}
	cb.state = to
	cb.mu.Unlock()

	if to != from {
		cb.notify(from, to)
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Component, from, to)
	}
}
