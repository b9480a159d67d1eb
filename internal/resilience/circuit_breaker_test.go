package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errWrite = errors.New("write failed")

func fail(ctx context.Context) error { return errWrite }
func succeed(ctx context.Context) error { return nil }

func TestCircuitBreaker_Execute(t *testing.T) {
	tests := []struct {
		name          string
		config        CircuitBreakerConfig
		execFunc      func(ctx context.Context) error
		expectedErr   error
		expectedState State
	}{
		{
			name:          "successful execution stays closed",
			config:        CircuitBreakerConfig{MaxFailures: 3, Timeout: 5 * time.Second},
			execFunc:      succeed,
			expectedState: StateClosed,
		},
		{
			name:          "single failure stays closed",
			config:        CircuitBreakerConfig{MaxFailures: 3, Timeout: 5 * time.Second},
			execFunc:      fail,
			expectedErr:   errWrite,
			expectedState: StateClosed,
		},
		{
			name:          "failure at threshold opens",
			config:        CircuitBreakerConfig{MaxFailures: 1, Timeout: 5 * time.Second},
			execFunc:      fail,
			expectedErr:   errWrite,
			expectedState: StateOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := NewCircuitBreaker(tt.config)

			err := cb.Execute(context.Background(), tt.execFunc)

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expectedState, cb.State())
		})
	}
}

func TestCircuitBreaker_StateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		config        CircuitBreakerConfig
		setup         func(cb *CircuitBreaker)
		expectedState State
	}{
		{
			name:   "transition to open after max failures",
			config: CircuitBreakerConfig{MaxFailures: 3, Timeout: 5 * time.Second},
			setup: func(cb *CircuitBreaker) {
				for i := 0; i < 3; i++ {
					_ = cb.Execute(context.Background(), fail)
				}
			},
			expectedState: StateOpen,
		},
		{
			name:   "success resets failure count",
			config: CircuitBreakerConfig{MaxFailures: 3, Timeout: 5 * time.Second},
			setup: func(cb *CircuitBreaker) {
				_ = cb.Execute(context.Background(), fail)
				_ = cb.Execute(context.Background(), fail)
				_ = cb.Execute(context.Background(), succeed)
				_ = cb.Execute(context.Background(), fail)
			},
			expectedState: StateClosed,
		},
		{
			name:   "transition to half-open after timeout",
			config: CircuitBreakerConfig{MaxFailures: 3, Timeout: 50 * time.Millisecond},
			setup: func(cb *CircuitBreaker) {
				for i := 0; i < 3; i++ {
					_ = cb.Execute(context.Background(), fail)
				}
				time.Sleep(100 * time.Millisecond)
				_ = cb.Execute(context.Background(), succeed)
			},
			expectedState: StateHalfOpen,
		},
		{
			name:   "transition from half-open to closed on success",
			config: CircuitBreakerConfig{MaxFailures: 3, Timeout: 50 * time.Millisecond, HalfOpenMax: 2},
			setup: func(cb *CircuitBreaker) {
				for i := 0; i < 3; i++ {
					_ = cb.Execute(context.Background(), fail)
				}
				time.Sleep(100 * time.Millisecond)
				for i := 0; i < 3; i++ {
					_ = cb.Execute(context.Background(), succeed)
				}
			},
			expectedState: StateClosed,
		},
		{
			name:   "half-open failure reopens",
			config: CircuitBreakerConfig{MaxFailures: 2, Timeout: 50 * time.Millisecond},
			setup: func(cb *CircuitBreaker) {
				_ = cb.Execute(context.Background(), fail)
				_ = cb.Execute(context.Background(), fail)
				time.Sleep(100 * time.Millisecond)
				_ = cb.Execute(context.Background(), fail)
			},
			expectedState: StateOpen,
		},
		{
			name:   "reset returns to closed",
			config: CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Hour},
			setup: func(cb *CircuitBreaker) {
				for i := 0; i < 3; i++ {
					_ = cb.Execute(context.Background(), fail)
				}
				cb.Reset()
			},
			expectedState: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := NewCircuitBreaker(tt.config)

			tt.setup(cb)

			assert.Equal(t, tt.expectedState, cb.State())
		})
	}
}

func TestCircuitBreaker_OpenState_RejectsRequest(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "history", MaxFailures: 3, Timeout: time.Hour})

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}

	called := false
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Contains(t, err.Error(), "history")
	assert.False(t, called)
}

func TestCircuitBreaker_CallTimeout(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures: 1,
		Timeout:     time.Hour,
		CallTimeout: 20 * time.Millisecond,
	})

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_CallerCancellationNotCounted(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	err := cb.Execute(ctx, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())

	err = cb.Execute(ctx, succeed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreaker_HalfOpenLimitsTrialRequests(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, Timeout: 20 * time.Millisecond, HalfOpenMax: 1})
	_ = cb.Execute(context.Background(), fail)
	time.Sleep(40 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := cb.Execute(context.Background(), succeed)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	close(release)
	wg.Wait()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	changes := make(chan [2]State, 4)
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:        "history",
		MaxFailures: 1,
		Timeout:     time.Hour,
		OnStateChange: func(name string, from, to State) {
			changes <- [2]State{from, to}
		},
	})

	_ = cb.Execute(context.Background(), fail)

	select {
	case c := <-changes:
		assert.Equal(t, [2]State{StateClosed, StateOpen}, c)
	case <-time.After(time.Second):
		t.Fatal("state change not reported")
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}
