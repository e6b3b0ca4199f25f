// Package schedule paces model calls per provider. One Scheduler exists per
// (provider, process); every call on a scheduler is issued sequentially, so
// two evaluations against the same provider contend here rather than at the
// provider's gateway.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/biaslens/biaslens/pkg/provider"
)

const maxRetries = 3

// StatusError exposes the HTTP status of a failed upstream call. Errors from
// the model client implement this so the scheduler can recognize 429s.
type StatusError interface {
	error
	HTTPStatus() int
}

// RetryAfterHinter optionally carries the server's Retry-After value.
type RetryAfterHinter interface {
	RetryAfterSeconds() int
}

// ThrottleEvent is passed to the throttle callback before a pacing sleep.
type ThrottleEvent struct {
	Delay               time.Duration
	ETA                 time.Duration // delay plus estimated remaining pacing time
	RemainingIterations int
	Policy              provider.RatePolicy
}

// ThrottleFunc receives throttle events; callers typically surface them as
// progress messages.
type ThrottleFunc func(ThrottleEvent)

// Scheduler issues calls against one provider with min-interval pacing and
// 429 retry.
type Scheduler struct {
	mu       sync.Mutex
	policy   provider.RatePolicy
	interval time.Duration
	limiter  *rate.Limiter

	// test seams
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a scheduler for the given policy. The effective interval is the
// larger of MinIntervalMs and the interval implied by RequestsPerMinute.
func New(policy provider.RatePolicy) *Scheduler {
	interval := time.Duration(policy.MinIntervalMs) * time.Millisecond
	if policy.RequestsPerMinute > 0 {
		rpmInterval := time.Duration(60000/policy.RequestsPerMinute) * time.Millisecond
		if rpmInterval > interval {
			interval = rpmInterval
		}
	}
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &Scheduler{
		policy:   policy,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Interval returns the effective pacing interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Execute runs task, pacing it against the provider's policy and retrying on
// 429 up to three times. remainingIterations sizes the ETA reported to the
// throttle callback; onThrottle may be nil.
func (s *Scheduler) Execute(ctx context.Context, remainingIterations int, onThrottle ThrottleFunc, task func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.limiter.ReserveN(s.now(), 1)
	wait := res.DelayFrom(s.now())
	if wait > 0 {
		if onThrottle != nil {
			onThrottle(ThrottleEvent{
				Delay:               wait,
				ETA:                 wait + time.Duration(remainingIterations)*s.interval,
				RemainingIterations: remainingIterations,
				Policy:              s.policy,
			})
		}
		if err := s.sleep(ctx, wait); err != nil {
			res.Cancel()
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, s.retryDelay(lastErr, attempt)); err != nil {
				return err
			}
		}

		err := task(ctx)
		if err == nil {
			return nil
		}
		if !isRateLimited(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("schedule: rate limited after %d retries: %w", maxRetries, lastErr)
}

// retryDelay computes the backoff before retry attempt n (1-based): the
// server's Retry-After when present, otherwise retryAfterMs * 2^(n-1).
func (s *Scheduler) retryDelay(err error, attempt int) time.Duration {
	var hinter RetryAfterHinter
	if errors.As(err, &hinter) && hinter.RetryAfterSeconds() > 0 {
		return time.Duration(hinter.RetryAfterSeconds()) * time.Second
	}
	base := time.Duration(s.policy.RetryAfterMs) * time.Millisecond
	if base <= 0 {
		base = time.Second
	}
	return base << (attempt - 1)
}

func isRateLimited(err error) bool {
	var se StatusError
	return errors.As(err, &se) && se.HTTPStatus() == 429
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Pool hands out one scheduler per provider for the whole process.
type Pool struct {
	mu         sync.Mutex
	registry   *provider.Registry
	schedulers map[string]*Scheduler
}

// NewPool creates a scheduler pool resolving policies from the registry.
func NewPool(registry *provider.Registry) *Pool {
	return &Pool{
		registry:   registry,
		schedulers: make(map[string]*Scheduler),
	}
}

// For returns the process-wide scheduler for a provider, creating it on first
// use.
func (p *Pool) For(providerID string) *Scheduler {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.schedulers[providerID]; ok {
		return s
	}
	s := New(p.registry.RatePolicy(providerID))
	p.schedulers[providerID] = s
	return s
}
