package resilience

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/contract-admin/pkg/circuitbreaker"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func newTestGovernor(now func() time.Time) *Governor {
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:      "test",
		Threshold: 5,
		Cooldown:  30 * time.Second,
		Now:       now,
	})
	return NewGovernor(cb, NewLimiter(LimiterConfig{Debounce: 0}), NewRetrier(DefaultRetryPolicy(), noSleep, nil), nil)
}

func TestGovernorOpensBreakerAfterRepeatedFailures(t *testing.T) {
	now := time.Now()
	g := newTestGovernor(func() time.Time { return now })

	calls := 0
	failing := func(ctx context.Context) ([]byte, error) {
		calls++
		return nil, &StatusError{StatusCode: http.StatusServiceUnavailable}
	}

	for i := 0; i < 5; i++ {
		_, err := g.Do(context.Background(), "unread", failing)
		require.Error(t, err)
	}
	assert.Equal(t, 15, calls, "each request is tried once and retried twice")
	assert.Equal(t, circuitbreaker.StateOpen, g.Breaker().State())

	_, err := g.Do(context.Background(), "unread", failing)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 15, calls)

	now = now.Add(31 * time.Second)
	body, err := g.Do(context.Background(), "unread", func(ctx context.Context) ([]byte, error) {
		return []byte(`{"unreadCount":1}`), nil
	})
	require.NoError(t, err)
	assert.Equal(t, `{"unreadCount":1}`, string(body))
	assert.Equal(t, circuitbreaker.StateClosed, g.Breaker().State())
}

func TestGovernorClientErrorsAreNeutral(t *testing.T) {
	g := newTestGovernor(time.Now)

	for i := 0; i < 10; i++ {
		_, err := g.Do(context.Background(), "read", func(ctx context.Context) ([]byte, error) {
			return nil, &StatusError{StatusCode: http.StatusNotFound}
		})
		require.Error(t, err)
	}
	assert.Equal(t, circuitbreaker.StateClosed, g.Breaker().State())
	assert.Zero(t, g.Breaker().Failures())
}
