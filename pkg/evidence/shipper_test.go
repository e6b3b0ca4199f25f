package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biaslens/biaslens/pkg/audit"
	"github.com/biaslens/biaslens/pkg/contracts"
)

// scriptedCollector only provides identity; the store seam does the work.
type scriptedCollector struct {
	storageType contracts.StorageType
}

func (s *scriptedCollector) StoreEvidence(context.Context, EvidenceData) (*ReferenceInfo, error) {
	panic("shipper must go through the store seam")
}
func (s *scriptedCollector) TestConnection(context.Context) error { return nil }
func (s *scriptedCollector) GenerateReferenceID(runID, testCaseID string, iteration int) string {
	return "gen-" + testCaseID + "-" + fmt.Sprint(iteration)
}
func (s *scriptedCollector) StorageType() contracts.StorageType { return s.storageType }

type refRecorder struct {
	rows []contracts.EvidenceReference
	err  error
}

func (r *refRecorder) InsertEvidenceReferences(_ context.Context, rows []contracts.EvidenceReference) error {
	r.rows = append(r.rows, rows...)
	return r.err
}

func captureItems(n int) []contracts.CapturedEvidence {
	items := make([]contracts.CapturedEvidence, n)
	for i := range items {
		items[i] = contracts.CapturedEvidence{
			ReferenceID:   fmt.Sprintf("ref-%d", i),
			TestCaseID:    fmt.Sprintf("tc-%d", i%3),
			Iteration:     i,
			HeuristicType: contracts.Anchoring,
			Prompt:        "p",
			Output:        "o",
		}
	}
	return items
}

func testEvaluation() *contracts.Evaluation {
	return &contracts.Evaluation{
		ID:              "eval-1",
		TeamID:          "team-1",
		DeterminismMode: contracts.ModeFull,
		SeedValue:       42,
		IterationsRun:   5,
		AchievedLevel:   "seeded",
		PerIterationResults: []contracts.PerIterationResult{
			{TestCaseID: "tc-0", Iteration: 0, Score: 2},
			{TestCaseID: "tc-1", Iteration: 0, Score: 3},
		},
	}
}

// newTestShipper wires a shipper whose store and sleep seams are scripted.
func newTestShipper(t *testing.T, st contracts.StorageType, async bool, refs ReferenceWriter,
	store func(data EvidenceData) (*ReferenceInfo, error)) (*Shipper, *[]time.Duration) {
	t.Helper()
	s := NewShipper(&scriptedCollector{storageType: st}, refs, audit.Nop(), slog.New(slog.DiscardHandler), async)
	s.store = func(_ context.Context, _ Collector, data EvidenceData) (*ReferenceInfo, error) {
		return store(data)
	}
	var sleeps []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) { sleeps = append(sleeps, d) }
	return s, &sleeps
}

func okStore(data EvidenceData) (*ReferenceInfo, error) {
	return &ReferenceInfo{
		ReferenceID:     data.ReferenceID,
		StorageLocation: "fake://" + data.ReferenceID,
		StorageType:     contracts.StorageObjectStore,
	}, nil
}

func TestBatchSizeFor(t *testing.T) {
	assert.Equal(t, 25, BatchSizeFor(contracts.StorageObjectStore))
	assert.Equal(t, 15, BatchSizeFor(contracts.StorageLogSearch))
	assert.Equal(t, 20, BatchSizeFor(contracts.StorageDocumentSearch))
	assert.Equal(t, 20, BatchSizeFor(contracts.StorageType("other")))
}

func TestShouldShipAsync(t *testing.T) {
	assert.False(t, ShouldShipAsync(100, true))
	assert.True(t, ShouldShipAsync(101, true))
	assert.False(t, ShouldShipAsync(101, false))
}

func TestShipBatchesAndPacing(t *testing.T) {
	refs := &refRecorder{}
	s, sleeps := newTestShipper(t, contracts.StorageLogSearch, false, refs, okStore)

	stored := 0
	s.store = func(_ context.Context, _ Collector, data EvidenceData) (*ReferenceInfo, error) {
		stored++
		return okStore(data)
	}

	res := s.Ship(context.Background(), captureItems(46), RunContext{Evaluation: testEvaluation()})

	assert.Equal(t, 46, stored)
	assert.Equal(t, 46, res.SuccessCount)
	assert.True(t, res.StorageSuccessful)
	// 46 items at batch size 15 is four batches, so three inter-batch sleeps
	// at the sync floor.
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond}, *sleeps)
	assert.Len(t, refs.rows, 46)
}

func TestShipRateLimitDoublesDelay(t *testing.T) {
	s, sleeps := newTestShipper(t, contracts.StorageDocumentSearch, false, nil, nil)

	calls := 0
	s.store = func(_ context.Context, _ Collector, data EvidenceData) (*ReferenceInfo, error) {
		calls++
		if calls == 1 {
			return nil, Classify(429, "rate limit exceeded", false)
		}
		return okStore(data)
	}

	res := s.Ship(context.Background(), captureItems(21), RunContext{Evaluation: testEvaluation()})

	assert.True(t, res.RateLimitEncountered)
	assert.Equal(t, 1, res.FailureCount)
	assert.Equal(t, 20, res.SuccessCount)
	// one throttle in batch 1: 100ms doubled once
	require.Len(t, *sleeps, 1)
	assert.Equal(t, 200*time.Millisecond, (*sleeps)[0])
}

func TestShipRateLimitRetryAfterOverridesDelay(t *testing.T) {
	s, sleeps := newTestShipper(t, contracts.StorageDocumentSearch, false, nil, nil)

	calls := 0
	s.store = func(_ context.Context, _ Collector, data EvidenceData) (*ReferenceInfo, error) {
		calls++
		if calls == 1 {
			ce := Classify(429, "slow down", false)
			ce.RateLimit = &RateLimitInfo{RetryAfterSeconds: 3}
			return nil, ce
		}
		return okStore(data)
	}

	s.Ship(context.Background(), captureItems(21), RunContext{Evaluation: testEvaluation()})

	require.Len(t, *sleeps, 1)
	assert.Equal(t, 3*time.Second, (*sleeps)[0])
}

func TestShipRateLimitDelayCapped(t *testing.T) {
	s, sleeps := newTestShipper(t, contracts.StorageDocumentSearch, false, nil, nil)
	s.store = func(_ context.Context, _ Collector, _ EvidenceData) (*ReferenceInfo, error) {
		return nil, Classify(429, "rate limit exceeded", false)
	}

	res := s.Ship(context.Background(), captureItems(21), RunContext{Evaluation: testEvaluation()})

	assert.Equal(t, 21, res.FailureCount)
	assert.False(t, res.StorageSuccessful)
	// 20 consecutive throttles double 100ms past the 10s sync cap
	require.Len(t, *sleeps, 1)
	assert.Equal(t, 10*time.Second, (*sleeps)[0])
}

func TestShipAsyncUsesWiderBounds(t *testing.T) {
	s, sleeps := newTestShipper(t, contracts.StorageDocumentSearch, true, nil, nil)
	s.store = func(_ context.Context, _ Collector, _ EvidenceData) (*ReferenceInfo, error) {
		return nil, Classify(429, "rate limit exceeded", false)
	}

	s.Ship(context.Background(), captureItems(21), RunContext{Evaluation: testEvaluation()})

	require.Len(t, *sleeps, 1)
	assert.Equal(t, 15*time.Second, (*sleeps)[0])
}

func TestShipDelayDecaysAfterCleanBatch(t *testing.T) {
	s, sleeps := newTestShipper(t, contracts.StorageDocumentSearch, false, nil, nil)

	calls := 0
	s.store = func(_ context.Context, _ Collector, data EvidenceData) (*ReferenceInfo, error) {
		calls++
		if calls == 1 {
			ce := Classify(429, "slow down", false)
			ce.RateLimit = &RateLimitInfo{RetryAfterSeconds: 1}
			return nil, ce
		}
		return okStore(data)
	}

	s.Ship(context.Background(), captureItems(41), RunContext{Evaluation: testEvaluation()})

	// throttled batch keeps 1s; the following clean batch decays it 10%
	require.Len(t, *sleeps, 2)
	assert.Equal(t, time.Second, (*sleeps)[0])
	assert.Equal(t, 900*time.Millisecond, (*sleeps)[1])
}

func TestShipNonRateLimitFailuresContinue(t *testing.T) {
	refs := &refRecorder{}
	s, sleeps := newTestShipper(t, contracts.StorageDocumentSearch, false, refs, nil)

	s.store = func(_ context.Context, _ Collector, data EvidenceData) (*ReferenceInfo, error) {
		if data.ReferenceID == "ref-1" || data.ReferenceID == "ref-4" {
			return nil, Classify(500, "boom", false)
		}
		return okStore(data)
	}

	res := s.Ship(context.Background(), captureItems(10), RunContext{Evaluation: testEvaluation()})

	assert.Equal(t, 8, res.SuccessCount)
	assert.Equal(t, 2, res.FailureCount)
	assert.False(t, res.RateLimitEncountered)
	assert.Equal(t, 0, s.consecutiveRateLimitErrors)
	assert.True(t, res.StorageSuccessful)
	assert.Empty(t, *sleeps)
	assert.Len(t, refs.rows, 8)
}

func TestShipReferenceRowsCarryRunMetadata(t *testing.T) {
	refs := &refRecorder{}
	s, _ := newTestShipper(t, contracts.StorageObjectStore, false, refs, okStore)

	eval := testEvaluation()
	s.Ship(context.Background(), captureItems(3), RunContext{Evaluation: eval})

	require.Len(t, refs.rows, 3)
	byRef := map[string]contracts.EvidenceReference{}
	for _, row := range refs.rows {
		byRef[row.ReferenceID] = row
		assert.Equal(t, "eval-1", row.EvaluationID)
		assert.Equal(t, contracts.ModeFull, row.DeterminismMode)
		assert.Equal(t, int64(42), row.SeedValue)
		assert.Equal(t, 5, row.IterationsRun)
		assert.Equal(t, "seeded", row.AchievedLevel)
	}

	// per-iteration results are filtered to the row's own test case
	row := byRef["ref-0"]
	assert.Equal(t, "tc-0", row.TestCaseID)
	require.Len(t, row.PerIterationResults, 1)
	assert.Equal(t, "tc-0", row.PerIterationResults[0].TestCaseID)

	row = byRef["ref-2"]
	assert.Equal(t, "tc-2", row.TestCaseID)
	assert.Empty(t, row.PerIterationResults)
}

func TestShipAuditsCaptureAndReferenceTrail(t *testing.T) {
	var trail bytes.Buffer
	refs := &refRecorder{}
	s := NewShipper(&scriptedCollector{storageType: contracts.StorageObjectStore}, refs,
		audit.NewLoggerWithWriter(&trail), slog.New(slog.DiscardHandler), false)
	s.store = func(_ context.Context, _ Collector, data EvidenceData) (*ReferenceInfo, error) {
		return okStore(data)
	}
	s.sleep = func(context.Context, time.Duration) {}

	s.Ship(context.Background(), captureItems(3), RunContext{Evaluation: testEvaluation()})

	got := trail.String()
	assert.Contains(t, got, audit.EventStorageStarted)
	assert.Contains(t, got, audit.EventCollectionCompleted)
	// one capture and one reference-created event per item
	assert.Equal(t, 3, strings.Count(got, audit.EventCaptured))
	assert.Equal(t, 3, strings.Count(got, audit.EventReferenceCreated))
}

func TestShipSuccessfulEvenWhenReferenceInsertFails(t *testing.T) {
	refs := &refRecorder{err: errors.New("db down")}
	s, _ := newTestShipper(t, contracts.StorageObjectStore, false, refs, okStore)

	res := s.Ship(context.Background(), captureItems(3), RunContext{Evaluation: testEvaluation()})

	// the items live in the customer's store; the run still counts
	assert.True(t, res.StorageSuccessful)
	assert.Equal(t, 3, res.SuccessCount)
}
