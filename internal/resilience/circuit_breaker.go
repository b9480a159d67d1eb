// Package resilience guards calls to dependencies that may fail for long
// stretches, such as the history database.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrCircuitOpen    = errors.New("circuit breaker is open")
	ErrCircuitTimeout = errors.New("circuit breaker timeout")
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
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

type CircuitBreakerConfig struct {
	Name        string
	MaxFailures int
	// Timeout is how long the breaker stays open before letting trial requests through.
	Timeout time.Duration
	// HalfOpenMax successful trial requests close the breaker again.
	HalfOpenMax int
	// CallTimeout bounds each guarded call; zero means no bound beyond the
	// caller's context.
	CallTimeout   time.Duration
	OnStateChange func(name string, from, to State)
}

type CircuitBreaker struct {
	name          string
	maxFailures   int
	timeout       time.Duration
	halfOpenMax   int
	callTimeout   time.Duration
	onStateChange func(name string, from, to State)

	mu           sync.RWMutex
	state        State
	failures     int
	successes    int
	inFlight     int
	lastFailTime time.Time
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}

	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		timeout:       cfg.Timeout,
		halfOpenMax:   cfg.HalfOpenMax,
		callTimeout:   cfg.CallTimeout,
		state:         StateClosed,
		onStateChange: cfg.OnStateChange,
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs fn unless the breaker is open. A call that outlives
// CallTimeout counts as a failure and returns ErrCircuitTimeout. Calls
// abandoned because the caller's ctx was cancelled are not counted.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !cb.acquire() {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, cb.name)
	}

	callCtx := ctx
	if cb.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, cb.callTimeout)
		defer cancel()
	}

	err := fn(callCtx)
	switch {
	case err == nil:
		cb.recordSuccess()
		return nil
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		cb.release()
		return err
	case errors.Is(err, context.DeadlineExceeded) && callCtx.Err() != nil && ctx.Err() == nil:
		cb.recordFailure()
		return fmt.Errorf("%w: %s: %w", ErrCircuitTimeout, cb.name, err)
	default:
		cb.recordFailure()
		return err
	}
}

// acquire reserves a slot for one call. Half-open admits at most
// halfOpenMax concurrent trial requests.
func (cb *CircuitBreaker) acquire() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.inFlight++
		return true

	case StateOpen:
		if time.Since(cb.lastFailTime) > cb.timeout {
			cb.transitionTo(StateHalfOpen)
			cb.inFlight++
			return true
		}
		return false

	case StateHalfOpen:
		if cb.inFlight >= cb.halfOpenMax {
			return false
		}
		cb.inFlight++
		return true
	}

	return false
}

func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.inFlight > 0 {
		cb.inFlight--
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.inFlight > 0 {
		cb.inFlight--
	}

	switch cb.state {
	case StateClosed:
		cb.failures = 0

	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.halfOpenMax {
			cb.transitionTo(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.inFlight > 0 {
		cb.inFlight--
	}
	cb.lastFailTime = time.Now()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.transitionTo(StateOpen)
		}

	case StateHalfOpen:
		cb.transitionTo(StateOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := cb.state
	cb.state = newState
	cb.failures = 0
	cb.successes = 0

	if cb.onStateChange != nil {
		go cb.onStateChange(cb.name, oldState, newState)
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateClosed {
		cb.transitionTo(StateClosed)
	}
	cb.failures = 0
	cb.successes = 0
}

func (cb *CircuitBreaker) Stats() (state State, failures int, lastFail time.Time) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state, cb.failures, cb.lastFailTime
}
