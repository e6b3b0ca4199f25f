package evidence

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/biaslens/biaslens/pkg/audit"
	"github.com/biaslens/biaslens/pkg/contracts"
)

// Batch sizes per backend family.
const (
	batchSizeObjectStore = 25
	batchSizeLogSearch   = 15
	batchSizeDocSearch   = 20
	batchSizeDefault     = 20
)

// Inter-batch delay tuning.
const (
	initialDelaySync  = 100 * time.Millisecond
	initialDelayAsync = 200 * time.Millisecond
	delayCapSync      = 10 * time.Second
	delayCapAsync     = 15 * time.Second
	asyncThreshold    = 100
)

// ReferenceWriter persists evidence-reference rows to the control plane.
type ReferenceWriter interface {
	InsertEvidenceReferences(ctx context.Context, refs []contracts.EvidenceReference) error
}

// RunContext carries the evaluation metadata stamped onto every reference row.
type RunContext struct {
	Evaluation     *contracts.Evaluation
	RunReferenceID string
}

// Result summarizes one shipping pass.
type Result struct {
	StoredReferences     []ReferenceInfo
	SuccessCount         int
	FailureCount         int
	RateLimitEncountered bool
	// StorageSuccessful is true when at least one item landed in the
	// customer's store, even if reference-row insertion later failed:
	// customers can recover references directly from their backend.
	StorageSuccessful bool
}

// ShouldShipAsync reports whether shipping runs as a background task that
// outlives the orchestrator's response.
func ShouldShipAsync(capturedCount int, hasCollector bool) bool {
	return capturedCount > asyncThreshold && hasCollector
}

// BatchSizeFor returns the chunk size for a backend family.
func BatchSizeFor(st contracts.StorageType) int {
	switch st {
	case contracts.StorageObjectStore:
		return batchSizeObjectStore
	case contracts.StorageLogSearch:
		return batchSizeLogSearch
	case contracts.StorageDocumentSearch:
		return batchSizeDocSearch
	default:
		return batchSizeDefault
	}
}

// Shipper batches captured evidence into backend-sized chunks with adaptive
// inter-batch pacing. Individual failures never abort the run; they are
// recorded and shipping continues.
type Shipper struct {
	collector Collector
	refs      ReferenceWriter
	auditor   audit.Logger
	logger    *slog.Logger
	async     bool

	consecutiveRateLimitErrors int

	// test seams
	store func(ctx context.Context, c Collector, data EvidenceData) (*ReferenceInfo, error)
	sleep func(ctx context.Context, d time.Duration)
}

// NewShipper creates a shipper. async selects the background-mode delay
// schedule; refs may be nil when the control-plane store is unavailable.
func NewShipper(collector Collector, refs ReferenceWriter, auditor audit.Logger, logger *slog.Logger, async bool) *Shipper {
	if auditor == nil {
		auditor = audit.Nop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Shipper{
		collector: collector,
		refs:      refs,
		auditor:   auditor,
		logger:    logger.With("component", "evidence_shipper"),
		async:     async,
		store:     StoreWithRetry,
		sleep:     func(ctx context.Context, d time.Duration) { sleepInterruptible(ctx, d) },
	}
}

func (s *Shipper) initialDelay() time.Duration {
	if s.async {
		return initialDelayAsync
	}
	return initialDelaySync
}

func (s *Shipper) delayCap() time.Duration {
	if s.async {
		return delayCapAsync
	}
	return delayCapSync
}

// Ship writes all captured evidence and then inserts the reference rows.
func (s *Shipper) Ship(ctx context.Context, captured []contracts.CapturedEvidence, run RunContext) *Result {
	result := &Result{}
	eval := run.Evaluation

	s.auditor.Record(ctx, audit.EventStorageStarted, eval.TeamID, eval.ID, map[string]interface{}{
		"items":        len(captured),
		"storage_type": string(s.collector.StorageType()),
		"async":        s.async,
	})

	batchSize := BatchSizeFor(s.collector.StorageType())
	delay := s.initialDelay()
	testCaseByRef := make(map[string]string, len(captured))

	for start := 0; start < len(captured); start += batchSize {
		end := start + batchSize
		if end > len(captured) {
			end = len(captured)
		}

		rateLimitedThisBatch := s.shipBatch(ctx, captured[start:end], run, result, testCaseByRef, &delay)

		if end < len(captured) {
			if !rateLimitedThisBatch {
				shrunk := time.Duration(float64(delay) * 0.9)
				if shrunk < s.initialDelay() {
					shrunk = s.initialDelay()
				}
				delay = shrunk
			}
			s.sleep(ctx, delay)
		}
	}

	result.StorageSuccessful = result.SuccessCount > 0

	total := result.SuccessCount + result.FailureCount
	if total > 0 && result.SuccessCount*2 < total {
		s.logger.Warn("evidence shipping success rate below 50%",
			"evaluation_id", eval.ID,
			"succeeded", result.SuccessCount,
			"failed", result.FailureCount)
	}

	s.insertReferences(ctx, run, result, testCaseByRef)

	s.auditor.Record(ctx, audit.EventCollectionCompleted, eval.TeamID, eval.ID, map[string]interface{}{
		"succeeded":    result.SuccessCount,
		"failed":       result.FailureCount,
		"rate_limited": result.RateLimitEncountered,
	})
	return result
}

// shipBatch writes one chunk sequentially; reports whether a rate limit was
// observed so the caller can adapt pacing.
func (s *Shipper) shipBatch(ctx context.Context, batch []contracts.CapturedEvidence, run RunContext, result *Result, testCaseByRef map[string]string, delay *time.Duration) bool {
	eval := run.Evaluation
	rateLimited := false

	for _, item := range batch {
		s.auditor.Record(ctx, audit.EventCaptured, eval.TeamID, eval.ID, map[string]interface{}{
			"reference_id": item.ReferenceID,
			"heuristic":    string(item.HeuristicType),
			"iteration":    item.Iteration,
		})
		data := EvidenceData{
			ReferenceID:     item.ReferenceID,
			EvaluationRunID: eval.ID,
			TestCaseID:      item.TestCaseID,
			Iteration:       item.Iteration,
			Timestamp:       item.Timestamp,
			Prompt:          item.Prompt,
			Output:          item.Output,
			Metadata: map[string]string{
				"heuristicType":        string(item.HeuristicType),
				"generatedReferenceId": s.collector.GenerateReferenceID(eval.ID, item.TestCaseID, item.Iteration),
			},
		}

		ref, err := s.store(ctx, s.collector, data)
		if err == nil {
			result.SuccessCount++
			result.StoredReferences = append(result.StoredReferences, *ref)
			testCaseByRef[ref.ReferenceID] = item.TestCaseID
			s.auditor.Record(ctx, audit.EventStorageSuccess, eval.TeamID, eval.ID, map[string]interface{}{
				"reference_id":     ref.ReferenceID,
				"storage_location": ref.StorageLocation,
			})
			continue
		}

		result.FailureCount++

		var ce *CollectorError
		if errors.As(err, &ce) && ce.IsRateLimited() {
			rateLimited = true
			result.RateLimitEncountered = true
			s.consecutiveRateLimitErrors++
			s.adjustDelay(delay, ce)
		}
		// Non-rate-limit failures deliberately leave the consecutive
		// counter alone, matching the synchronous path.

		s.auditor.Record(ctx, audit.EventStorageFailed, eval.TeamID, eval.ID, map[string]interface{}{
			"reference_id": item.ReferenceID,
			"error":        err.Error(),
		})
	}
	return rateLimited
}

func (s *Shipper) adjustDelay(delay *time.Duration, ce *CollectorError) {
	limit := s.delayCap()
	if ce.RateLimit != nil && ce.RateLimit.RetryAfterSeconds > 0 {
		next := time.Duration(ce.RateLimit.RetryAfterSeconds) * time.Second
		if next > limit {
			next = limit
		}
		*delay = next
		return
	}
	next := *delay * 2
	if next > limit {
		next = limit
	}
	*delay = next
}

func (s *Shipper) insertReferences(ctx context.Context, run RunContext, result *Result, testCaseByRef map[string]string) {
	if s.refs == nil || len(result.StoredReferences) == 0 {
		return
	}
	eval := run.Evaluation

	rows := make([]contracts.EvidenceReference, 0, len(result.StoredReferences))
	for _, info := range result.StoredReferences {
		testCaseID := testCaseByRef[info.ReferenceID]
		s.auditor.Record(ctx, audit.EventReferenceCreated, eval.TeamID, eval.ID, map[string]interface{}{
			"reference_id": info.ReferenceID,
			"test_case_id": testCaseID,
		})
		rows = append(rows, contracts.EvidenceReference{
			EvaluationID:        eval.ID,
			TestCaseID:          testCaseID,
			ReferenceID:         info.ReferenceID,
			StorageLocation:     info.StorageLocation,
			StorageType:         info.StorageType,
			DeterminismMode:     eval.DeterminismMode,
			SeedValue:           eval.SeedValue,
			IterationsRun:       eval.IterationsRun,
			AchievedLevel:       eval.AchievedLevel,
			ParametersUsed:      eval.ParametersUsed,
			ConfidenceIntervals: eval.ConfidenceIntervals,
			PerIterationResults: filterResults(eval.PerIterationResults, testCaseID),
		})
	}

	if err := s.refs.InsertEvidenceReferences(ctx, rows); err != nil {
		// Items are already in the customer's store; keep the run marked
		// successful and surface the anomaly.
		s.logger.Error("evidence shipped but reference rows failed to persist",
			"evaluation_id", eval.ID, "error", err)
		s.auditor.Record(ctx, audit.EventRefStorageFailed, eval.TeamID, eval.ID, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	s.auditor.Record(ctx, audit.EventReferenceStored, eval.TeamID, eval.ID, map[string]interface{}{
		"rows": len(rows),
	})
}

func filterResults(results []contracts.PerIterationResult, testCaseID string) []contracts.PerIterationResult {
	var filtered []contracts.PerIterationResult
	for _, r := range results {
		if r.TestCaseID == testCaseID {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func sleepInterruptible(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
