package evidence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biaslens/biaslens/pkg/contracts"
)

// flakyCollector fails the first failures calls with err, then succeeds.
type flakyCollector struct {
	failures int
	err      error
	calls    int
}

func (f *flakyCollector) StoreEvidence(ctx context.Context, data EvidenceData) (*ReferenceInfo, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return &ReferenceInfo{ReferenceID: data.ReferenceID, StorageLocation: "fake://" + data.ReferenceID, StorageType: contracts.StorageObjectStore}, nil
}

func (f *flakyCollector) TestConnection(context.Context) error { return nil }
func (f *flakyCollector) GenerateReferenceID(runID, testCaseID string, iteration int) string {
	return CollectorReferenceID(runID, testCaseID, iteration)
}
func (f *flakyCollector) StorageType() contracts.StorageType { return contracts.StorageObjectStore }

func stubRetrySleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var delays []time.Duration
	orig := sleepBetweenRetries
	sleepBetweenRetries = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		delays = append(delays, d)
		return nil
	}
	t.Cleanup(func() { sleepBetweenRetries = orig })
	return &delays
}

func TestStoreWithRetryExhaustsBudget(t *testing.T) {
	delays := stubRetrySleep(t)
	c := &flakyCollector{failures: 100, err: Classify(500, "boom", false)}

	_, err := StoreWithRetry(context.Background(), c, EvidenceData{ReferenceID: "r1"})
	require.Error(t, err)
	// initial attempt plus maxRetries
	assert.Equal(t, 4, c.calls)
	assert.Len(t, *delays, 3)
}

func TestStoreWithRetryBackoffGrows(t *testing.T) {
	delays := stubRetrySleep(t)
	c := &flakyCollector{failures: 3, err: Classify(500, "boom", false)}

	ref, err := StoreWithRetry(context.Background(), c, EvidenceData{ReferenceID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "r1", ref.ReferenceID)
	require.Len(t, *delays, 3)

	// base*2^n plus up to 1s jitter
	for i, d := range *delays {
		lower := retryBase << i
		assert.GreaterOrEqual(t, d, lower, "delay %d", i)
		assert.Less(t, d, lower+jitterRange, "delay %d", i)
	}
}

func TestStoreWithRetryNonRetryableStopsImmediately(t *testing.T) {
	stubRetrySleep(t)
	c := &flakyCollector{failures: 100, err: Classify(401, "nope", false)}

	_, err := StoreWithRetry(context.Background(), c, EvidenceData{})
	require.Error(t, err)
	assert.Equal(t, 1, c.calls)
}

func TestStoreWithRetryHonorsRetryAfter(t *testing.T) {
	delays := stubRetrySleep(t)
	ce := Classify(429, "slow down", false)
	ce.RateLimit = &RateLimitInfo{RetryAfterSeconds: 7}
	c := &flakyCollector{failures: 1, err: ce}

	_, err := StoreWithRetry(context.Background(), c, EvidenceData{})
	require.NoError(t, err)
	require.Len(t, *delays, 1)
	assert.Equal(t, 7*time.Second, (*delays)[0])
}

func TestStoreWithRetryClampsRetryAfter(t *testing.T) {
	delays := stubRetrySleep(t)
	ce := Classify(429, "slow down", false)
	ce.RateLimit = &RateLimitInfo{RetryAfterSeconds: 300}
	c := &flakyCollector{failures: 1, err: ce}

	_, err := StoreWithRetry(context.Background(), c, EvidenceData{})
	require.NoError(t, err)
	require.Len(t, *delays, 1)
	assert.Equal(t, retryCap, (*delays)[0])
}

func TestStoreWithRetryContextCancel(t *testing.T) {
	stubRetrySleep(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &flakyCollector{failures: 100, err: Classify(500, "boom", false)}

	_, err := StoreWithRetry(ctx, c, EvidenceData{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, c.calls)
}
