package redis

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = 0 // Normal operation, requests pass through
	StateOpen     State = 1 // Tripped, requests rejected immediately
	StateHalfOpen State = 2 // One probe request allowed through
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards queue calls. After maxFailures consecutive failures
// it opens and rejects calls for resetTimeout, then lets a single probe
// through. A successful probe closes it; a failed one reopens it.
//
// Caller cancellation (context.Canceled) is not counted as a failure.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	trips        int
	maxFailures  int
	resetTimeout time.Duration
	lastFailure  time.Time
	now          func() time.Time

	// Callbacks (optional)
	OnStateChange func(from, to State) // called on state transitions, under the lock
}

// NewCircuitBreaker creates a circuit breaker.
// maxFailures: consecutive failures before opening (e.g., 5)
// resetTimeout: time to wait before half-open probe (e.g., 10s)
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		now:          time.Now,
	}
}

// Execute runs fn through the circuit breaker.
// Returns ErrCircuitOpen if the breaker is open and the timeout hasn't elapsed.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailure) < cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		cb.failures++
		cb.lastFailure = cb.now()

		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.transition(StateOpen)
		}
		return err
	}

	if cb.state == StateHalfOpen {
		cb.transition(StateClosed)
	}
	cb.failures = 0
	return err
}

// CurrentState returns the current circuit breaker state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Trips returns how many times the breaker has opened.
func (cb *CircuitBreaker) Trips() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.trips
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	switch to {
	case StateClosed:
		cb.failures = 0
	case StateOpen:
		cb.trips++
	}
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}
