package indexer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// After FailureThreshold consecutive failures, the next call within
// ResetTimeout returns CircuitOpen without invoking the thunk.
func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	b := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		_, err := execute(b, func() (int, error) { return 0, boom })
		require.Error(t, err)
		assert.False(t, IsCircuitOpen(err))
	}

	assert.True(t, b.IsOpen())
	assert.Equal(t, "open", b.State())

	invoked := false
	_, err := execute(b, func() (int, error) {
		invoked = true
		return 0, nil
	})
	require.Error(t, err)
	assert.True(t, IsCircuitOpen(err))
	assert.False(t, invoked, "thunk must not run while the breaker is open")
}

func TestCircuitBreaker_ClosesAfterSuccessfulProbe(t *testing.T) {
	b := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 20 * time.Millisecond})

	_, err := execute(b, func() (int, error) { return 0, errors.New("boom") })
	require.Error(t, err)
	assert.True(t, b.IsOpen())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, "half-open", b.State())

	result, err := execute(b, func() (int, error) { return 99, nil })
	require.NoError(t, err)
	assert.Equal(t, 99, result)
	assert.Equal(t, "closed", b.State())
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	b := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})

	_, _ = execute(b, func() (int, error) { return 0, errors.New("boom") })
	_, err := execute(b, func() (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, "closed", b.State())

	_, err = execute(b, func() (int, error) { return 0, errors.New("boom") })
	require.Error(t, err)
	assert.False(t, b.IsOpen(), "a single failure after a success must not trip a threshold-2 breaker")
}
