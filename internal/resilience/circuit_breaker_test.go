package resilience_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaptivesql/pooltuner/internal/resilience"
)

var errBoom = errors.New("boom")

func testBreaker(resetTimeout time.Duration) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:           "test",
		MaxFailures:    3,
		ResetTimeout:   resetTimeout,
		HalfOpenQuorum: 2,
	})
}

func fail(cb *resilience.CircuitBreaker) error {
	return cb.Execute(func() error { return errBoom })
}

func succeed(cb *resilience.CircuitBreaker) error {
	return cb.Execute(func() error { return nil })
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := testBreaker(time.Minute)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, fail(cb), errBoom)
	}
	assert.Equal(t, resilience.StateOpen, cb.State())

	err := succeed(cb)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen, "open breaker fails fast")
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := testBreaker(time.Minute)

	require.ErrorIs(t, fail(cb), errBoom)
	require.ErrorIs(t, fail(cb), errBoom)
	require.NoError(t, succeed(cb))
	require.ErrorIs(t, fail(cb), errBoom)
	require.ErrorIs(t, fail(cb), errBoom)

	assert.Equal(t, resilience.StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenClosesAfterQuorum(t *testing.T) {
	cb := testBreaker(10 * time.Millisecond)

	for i := 0; i < 3; i++ {
		fail(cb)
	}
	require.Equal(t, resilience.StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, succeed(cb))
	assert.Equal(t, resilience.StateHalfOpen, cb.State())

	require.NoError(t, succeed(cb))
	assert.Equal(t, resilience.StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := testBreaker(10 * time.Millisecond)

	for i := 0; i < 3; i++ {
		fail(cb)
	}
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, succeed(cb))
	require.Equal(t, resilience.StateHalfOpen, cb.State())

	require.ErrorIs(t, fail(cb), errBoom)
	assert.Equal(t, resilience.StateOpen, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := testBreaker(time.Minute)

	for i := 0; i < 3; i++ {
		fail(cb)
	}
	require.Equal(t, resilience.StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, resilience.StateClosed, cb.State())
	assert.NoError(t, succeed(cb))
}

func TestCircuitBreaker_StateString(t *testing.T) {
	assert.Equal(t, "closed", resilience.StateClosed.String())
	assert.Equal(t, "open", resilience.StateOpen.String())
	assert.Equal(t, "half-open", resilience.StateHalfOpen.String())
}
