package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(_ context.Context) error { return errors.New("fail") }
func passing(_ context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), failing)
	}
	assert.Equal(t, CircuitOpen, cb.State())
	assert.False(t, cb.Allow())

	called := false
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3})
	_ = cb.Execute(context.Background(), failing)
	_ = cb.Execute(context.Background(), failing)
	assert.Equal(t, 2, cb.Failures())
	require.NoError(t, cb.Execute(context.Background(), passing))
	assert.Equal(t, 0, cb.Failures())
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 100 * time.Millisecond})
	cb.now = func() time.Time { return now }

	_ = cb.Execute(context.Background(), failing)
	require.Equal(t, CircuitOpen, cb.State())

	cb.now = func() time.Time { return now.Add(200 * time.Millisecond) }
	assert.Equal(t, CircuitHalfOpen, cb.State())
	assert.True(t, cb.Allow())

	require.NoError(t, cb.Execute(context.Background(), passing))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 100 * time.Millisecond})
	cb.now = func() time.Time { return now }
	_ = cb.Execute(context.Background(), failing)

	later := now.Add(200 * time.Millisecond)
	cb.now = func() time.Time { return later }
	_ = cb.Execute(context.Background(), failing)

	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_ShouldTripAndStateChange(t *testing.T) {
	t.Parallel()

	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		ShouldTrip:       func(err error) bool { return err != nil && err.Error() == "trip" },
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})

	_ = cb.Execute(context.Background(), failing)
	assert.Equal(t, CircuitClosed, cb.State())

	_ = cb.Execute(context.Background(), func(_ context.Context) error { return errors.New("trip") })
	assert.Equal(t, CircuitOpen, cb.State())

	cb.Reset()
	assert.Equal(t, []string{"closed>open", "open>closed"}, transitions)
}

func TestExecuteVal(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	v, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestServiceBreakers(t *testing.T) {
	t.Parallel()

	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	a := sb.Get("serpapi")
	assert.Same(t, a, sb.Get("serpapi"))
	_ = a.Execute(context.Background(), failing)
	_ = sb.Get("bing")

	assert.Equal(t, map[string]string{"serpapi": "open", "bing": "closed"}, sb.States())
}

func TestCircuitState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(42).String())
}
