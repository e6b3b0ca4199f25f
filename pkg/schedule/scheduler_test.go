package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/biaslens/biaslens/pkg/provider"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// instrument replaces the scheduler's clock and sleep with deterministic
// fakes; sleeping advances the clock.
func instrument(s *Scheduler) (*fakeClock, *[]time.Duration) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	var sleeps []time.Duration
	s.now = clock.Now
	s.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		clock.now = clock.now.Add(d)
		return nil
	}
	return clock, &sleeps
}

type apiErr struct {
	status     int
	retryAfter int
}

func (e *apiErr) Error() string          { return "upstream error" }
func (e *apiErr) HTTPStatus() int        { return e.status }
func (e *apiErr) RetryAfterSeconds() int { return e.retryAfter }

func TestExecute_PacesConsecutiveCalls(t *testing.T) {
	s := New(provider.RatePolicy{RequestsPerMinute: 60, MinIntervalMs: 1000, RetryAfterMs: 1000})
	_, sleeps := instrument(s)

	for i := 0; i < 3; i++ {
		err := s.Execute(context.Background(), 0, nil, func(context.Context) error { return nil })
		require.NoError(t, err)
	}

	// First call goes straight through; each subsequent call waits a full
	// interval because the fake clock only advances while sleeping.
	require.Len(t, *sleeps, 2)
	for _, d := range *sleeps {
		require.GreaterOrEqual(t, d, time.Second)
	}
}

func TestExecute_MinIntervalDominatesRPM(t *testing.T) {
	// 60 rpm implies 1s, but the floor is 2s.
	s := New(provider.RatePolicy{RequestsPerMinute: 60, MinIntervalMs: 2000})
	require.Equal(t, 2*time.Second, s.Interval())
}

func TestExecute_ThrottleCallback(t *testing.T) {
	policy := provider.RatePolicy{RequestsPerMinute: 60, MinIntervalMs: 1000, RetryAfterMs: 1000}
	s := New(policy)
	instrument(s)

	var events []ThrottleEvent
	cb := func(ev ThrottleEvent) { events = append(events, ev) }

	require.NoError(t, s.Execute(context.Background(), 9, cb, func(context.Context) error { return nil }))
	require.Empty(t, events, "first call should not throttle")

	require.NoError(t, s.Execute(context.Background(), 8, cb, func(context.Context) error { return nil }))
	require.Len(t, events, 1)
	ev := events[0]
	require.Equal(t, 8, ev.RemainingIterations)
	require.Equal(t, policy, ev.Policy)
	require.Greater(t, ev.Delay, time.Duration(0))
	require.Equal(t, ev.Delay+8*s.Interval(), ev.ETA)
}

func TestExecute_RetriesOn429(t *testing.T) {
	s := New(provider.RatePolicy{RequestsPerMinute: 600, MinIntervalMs: 1, RetryAfterMs: 100})
	_, sleeps := instrument(s)

	calls := 0
	err := s.Execute(context.Background(), 0, nil, func(context.Context) error {
		calls++
		return &apiErr{status: 429}
	})

	require.Error(t, err)
	require.Equal(t, 4, calls, "one initial attempt plus three retries")

	// Exponential backoff on retryAfterMs: 100ms, 200ms, 400ms.
	require.Contains(t, *sleeps, 100*time.Millisecond)
	require.Contains(t, *sleeps, 200*time.Millisecond)
	require.Contains(t, *sleeps, 400*time.Millisecond)
}

func TestExecute_RetryAfterHintOverridesBackoff(t *testing.T) {
	s := New(provider.RatePolicy{RequestsPerMinute: 600, MinIntervalMs: 1, RetryAfterMs: 100})
	_, sleeps := instrument(s)

	calls := 0
	_ = s.Execute(context.Background(), 0, nil, func(context.Context) error {
		calls++
		if calls == 1 {
			return &apiErr{status: 429, retryAfter: 2}
		}
		return nil
	})

	require.Equal(t, 2, calls)
	require.Contains(t, *sleeps, 2*time.Second)
}

func TestExecute_NonRateLimitErrorReturnsImmediately(t *testing.T) {
	s := New(provider.RatePolicy{RequestsPerMinute: 600, MinIntervalMs: 1, RetryAfterMs: 100})
	instrument(s)

	boom := errors.New("model exploded")
	calls := 0
	err := s.Execute(context.Background(), 0, nil, func(context.Context) error {
		calls++
		return boom
	})

	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestExecute_ContextCancelDuringPacing(t *testing.T) {
	s := New(provider.RatePolicy{RequestsPerMinute: 1, MinIntervalMs: 60000})

	require.NoError(t, s.Execute(context.Background(), 0, nil, func(context.Context) error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Execute(ctx, 0, nil, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestPool_OneSchedulerPerProvider(t *testing.T) {
	pool := NewPool(provider.NewRegistry())

	a := pool.For("openai")
	b := pool.For("openai")
	c := pool.For("anthropic")

	require.Same(t, a, b)
	require.NotSame(t, a, c)
}
