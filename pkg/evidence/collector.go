// Package evidence ships raw prompt/output pairs to customer-owned stores.
// Nothing in this package ever writes raw traffic to the control plane; the
// only artifacts that flow back are opaque reference IDs.
package evidence

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/biaslens/biaslens/pkg/contracts"
)

// EvidenceData is the payload shipped to a backend for one iteration.
type EvidenceData struct {
	ReferenceID     string            `json:"referenceId"`
	EvaluationRunID string            `json:"evaluationRunId"`
	TestCaseID      string            `json:"testCaseId"`
	Iteration       int               `json:"iteration"`
	Timestamp       time.Time         `json:"timestamp"`
	Prompt          string            `json:"prompt"`
	Output          string            `json:"output"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// ReferenceInfo locates a stored item inside the customer's backend.
type ReferenceInfo struct {
	ReferenceID     string               `json:"referenceId"`
	StorageLocation string               `json:"storageLocation"`
	StorageType     contracts.StorageType `json:"storageType"`
}

// Collector is the per-backend shipping contract. StoreEvidence is idempotent
// by reference ID where the backend allows it.
type Collector interface {
	StoreEvidence(ctx context.Context, data EvidenceData) (*ReferenceInfo, error)
	TestConnection(ctx context.Context) error
	GenerateReferenceID(runID, testCaseID string, iteration int) string
	StorageType() contracts.StorageType
}

// Retry policy for single-item writes.
const (
	retryBase   = time.Second
	retryCap    = 30 * time.Second
	maxRetries  = 3
	jitterRange = time.Second
)

// sleepBetweenRetries is swapped out by tests.
var sleepBetweenRetries = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StoreWithRetry writes one item with exponential backoff and jitter:
// delay = min(base*2^attempt + rand(0,1s), cap). A CollectorError's Retryable
// flag gates retries; a rate-limit Retry-After (clamped to the cap) overrides
// the computed backoff for the next attempt.
func StoreWithRetry(ctx context.Context, c Collector, data EvidenceData) (*ReferenceInfo, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBetweenRetries(ctx, backoffDelay(attempt-1, lastErr)); err != nil {
				return nil, err
			}
		}

		ref, err := c.StoreEvidence(ctx, data)
		if err == nil {
			return ref, nil
		}
		lastErr = err

		var ce *CollectorError
		if errors.As(err, &ce) && !ce.Retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

func backoffDelay(attempt int, err error) time.Duration {
	var ce *CollectorError
	if errors.As(err, &ce) && ce.RateLimit != nil && ce.RateLimit.RetryAfterSeconds > 0 {
		delay := time.Duration(ce.RateLimit.RetryAfterSeconds) * time.Second
		if delay > retryCap {
			delay = retryCap
		}
		return delay
	}

	delay := retryBase<<attempt + time.Duration(rand.Int63n(int64(jitterRange)))
	if delay > retryCap {
		delay = retryCap
	}
	return delay
}
