package eval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/biaslens/biaslens/pkg/audit"
	"github.com/biaslens/biaslens/pkg/contracts"
	"github.com/biaslens/biaslens/pkg/detect"
	"github.com/biaslens/biaslens/pkg/evidence"
	"github.com/biaslens/biaslens/pkg/llm"
	"github.com/biaslens/biaslens/pkg/repropack"
	"github.com/biaslens/biaslens/pkg/schedule"
)

// defaultOverallScore applies when no finding carried any weight.
const defaultOverallScore = 75.0

// topRecommendations is the retention cap per evaluation.
const topRecommendations = 7

// runState is the background task's working set. The task exclusively owns
// eval from launch until the terminal status write.
type runState struct {
	eval       *contracts.Evaluation
	client     llm.Client
	setup      *evidenceSetup
	providerID string
	modelName  string
}

// runEvaluation is the background task: detection, shipping, aggregation,
// persistence, repro pack, progress. Any failure flips the evaluation to
// failed with the message surfaced through the progress row.
func (s *Service) runEvaluation(ctx context.Context, run *runState) {
	defer func() {
		if r := recover(); r != nil {
			s.fail(ctx, run.eval, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := s.execute(ctx, run); err != nil {
		s.fail(ctx, run.eval, err)
	}
}

func (s *Service) execute(ctx context.Context, run *runState) error {
	ev := run.eval
	logger := s.Logger.With("evaluation_id", ev.ID)

	s.setProgress(ctx, ev, 10, contracts.PhaseDetecting, "", 0, "Preparing detection algorithms...")

	var scheduler *schedule.Scheduler
	if run.client != nil {
		scheduler = s.Pool.For(run.providerID)
	}

	capture := &detect.Capture{}
	total := len(ev.HeuristicTypes)
	results := make([]*detect.RunResult, 0, total)

	for i, heuristic := range ev.HeuristicTypes {
		cancelled, err := s.isCancelled(ctx, ev.ID)
		if err != nil {
			return err
		}
		if cancelled {
			logger.Info("evaluation cancelled externally; stopping without results",
				"completed_heuristics", i)
			return nil
		}

		percent := 10 + 60*i/total
		s.setProgress(ctx, ev, percent, contracts.PhaseDetecting, heuristic, i,
			fmt.Sprintf("Testing for %s bias...", heuristicLabel(heuristic)))

		detector := &detect.Detector{
			Heuristic: heuristic,
			Client:    run.client,
			Scheduler: scheduler,
			Options:   samplingOptions(ev),
			Seed:      ev.SeedValue,
		}
		onThrottle := s.throttleReporter(ctx, ev, percent, heuristic, i)

		result, err := detector.Run(ctx, ev.IterationCount, onThrottle, capture)
		if err != nil {
			return fmt.Errorf("detect %s: %w", heuristic, err)
		}
		result.Finding.EvaluationID = ev.ID
		results = append(results, result)
	}

	aggregatedAt := time.Now().UTC()
	findings := make([]contracts.HeuristicFinding, 0, len(results))
	intervals := make(map[contracts.HeuristicType]contracts.ConfidenceInterval, len(results))
	for _, r := range results {
		findings = append(findings, r.Finding)
		intervals[r.Finding.HeuristicType] = r.Finding.ConfidenceInterval
		ev.PerIterationResults = append(ev.PerIterationResults, r.PerIteration...)
	}
	ev.ConfidenceIntervals = intervals
	ev.IterationsRun = ev.IterationCount * total
	ev.OverallScore = computeOverallScore(findings)
	ev.ZoneStatus = zoneFor(ev.OverallScore)

	asyncShip := s.shipEvidence(ctx, run, capture)

	if err := s.Store.InsertFindings(ctx, findings); err != nil {
		return fmt.Errorf("persist findings: %w", err)
	}
	if err := s.Store.InsertRecommendations(ctx, buildRecommendations(ev.ID, findings)); err != nil {
		return fmt.Errorf("persist recommendations: %w", err)
	}

	completedAt := time.Now().UTC()
	ev.Status = contracts.StatusCompleted
	ev.CompletedAt = &completedAt
	if err := s.Store.UpdateEvaluation(ctx, ev); err != nil {
		return fmt.Errorf("persist evaluation result: %w", err)
	}
	// The async pass starts only after the final row exists, so its
	// evidence-field write cannot be clobbered by UpdateEvaluation above.
	if asyncShip != nil {
		s.spawn(asyncShip)
	}

	if err := s.buildReproPack(ctx, run, capture, aggregatedAt, completedAt); err != nil {
		return err
	}

	s.setProgress(ctx, ev, 100, contracts.PhaseCompleted, "", total, "Evaluation complete.")
	logger.Info("evaluation completed",
		"overall_score", ev.OverallScore,
		"zone", string(ev.ZoneStatus),
		"iterations_run", ev.IterationsRun)

	s.scheduleProgressCleanup(ev.ID)
	return nil
}

// shipEvidence hands the captured buffer to the batch shipper. A synchronous
// pass stamps the run-level reference on the evaluation directly; a large
// capture returns a deferred pass the caller spawns after the final row is
// persisted, which writes the evidence fields back through the store.
func (s *Service) shipEvidence(ctx context.Context, run *runState, capture *detect.Capture) func() {
	ev := run.eval
	if run.setup == nil || len(capture.Evidence) == 0 {
		s.setProgress(ctx, ev, 65, contracts.PhaseProcessing, "", len(ev.HeuristicTypes), "Aggregating results...")
		return nil
	}

	s.setProgress(ctx, ev, 65, contracts.PhaseStoringEvidence, "", len(ev.HeuristicTypes),
		"Storing evidence in your configured store...")

	async := evidence.ShouldShipAsync(len(capture.Evidence), true)
	shipper := evidence.NewShipper(run.setup.collector, s.Store, s.Audit, s.Logger, async)
	runCtx := evidence.RunContext{Evaluation: ev, RunReferenceID: run.setup.runRefID}

	if async {
		s.Audit.Record(ctx, audit.EventAsyncStarted, ev.TeamID, ev.ID, map[string]interface{}{
			"captured": len(capture.Evidence),
		})
		captured := capture.Evidence
		return func() {
			result := shipper.Ship(context.Background(), captured, runCtx)
			s.Audit.Record(context.Background(), audit.EventAsyncCompleted, ev.TeamID, ev.ID, map[string]interface{}{
				"stored": result.SuccessCount, "failed": result.FailureCount,
			})
			if !result.StorageSuccessful {
				return
			}
			if err := s.Store.SetEvaluationEvidence(context.Background(), ev.ID,
				run.setup.runRefID, string(run.setup.storageType)); err != nil {
				s.Logger.Error("async evidence reference not persisted",
					"evaluation_id", ev.ID, "error", err)
			}
		}
	}

	result := shipper.Ship(ctx, capture.Evidence, runCtx)
	if result.StorageSuccessful {
		ev.EvidenceReferenceID = run.setup.runRefID
		ev.EvidenceStorageType = string(run.setup.storageType)
	}
	return nil
}

func (s *Service) buildReproPack(ctx context.Context, run *runState, capture *detect.Capture, aggregatedAt, completedAt time.Time) error {
	ev := run.eval
	material, err := repropack.ResolveSigning(ctx, s.Store, s.SigningVault, s.Cfg, ev.TeamID)
	if err != nil {
		return fmt.Errorf("resolve signing material: %w", err)
	}
	builder := repropack.NewBuilder(material, s.Store, s.Logger)
	_, err = builder.Build(ctx, repropack.Inputs{
		Evaluation:   ev,
		Outputs:      capture.Outputs,
		Provider:     run.providerID,
		ModelName:    run.modelName,
		StartedAt:    ev.CreatedAt,
		AggregatedAt: aggregatedAt,
		CompletedAt:  completedAt,
	})
	if err != nil {
		return fmt.Errorf("build repro pack: %w", err)
	}
	return nil
}

// isCancelled polls the evaluation row for an externally written failed
// status. Cancellation is only observed at heuristic boundaries.
func (s *Service) isCancelled(ctx context.Context, evaluationID string) (bool, error) {
	status, err := s.Store.GetEvaluationStatus(ctx, evaluationID)
	if err != nil {
		return false, fmt.Errorf("poll cancellation: %w", err)
	}
	return status == contracts.StatusFailed, nil
}

func (s *Service) throttleReporter(ctx context.Context, ev *contracts.Evaluation, percent int, heuristic contracts.HeuristicType, completed int) schedule.ThrottleFunc {
	return func(e schedule.ThrottleEvent) {
		s.setProgress(ctx, ev, percent, contracts.PhaseDetecting, heuristic, completed,
			fmt.Sprintf("Pacing model calls for %s; about %s remaining...",
				heuristicLabel(heuristic), e.ETA.Round(time.Second)))
	}
}

func (s *Service) setProgress(ctx context.Context, ev *contracts.Evaluation, percent int, phase contracts.ProgressPhase, heuristic contracts.HeuristicType, completed int, message string) {
	if err := s.Progress.Update(ctx, &contracts.EvaluationProgress{
		EvaluationID:     ev.ID,
		ProgressPercent:  percent,
		CurrentPhase:     phase,
		CurrentHeuristic: heuristic,
		TestsCompleted:   completed,
		TestsTotal:       len(ev.HeuristicTypes),
		Message:          message,
	}); err != nil {
		s.Logger.Warn("progress write failed", "evaluation_id", ev.ID, "error", err)
	}
}

func (s *Service) scheduleProgressCleanup(evaluationID string) {
	delay := s.cleanupDelay
	s.spawn(func() {
		time.Sleep(delay)
		if err := s.Progress.Delete(context.Background(), evaluationID); err != nil {
			s.Logger.Warn("progress cleanup failed", "evaluation_id", evaluationID, "error", err)
		}
	})
}

func (s *Service) fail(ctx context.Context, ev *contracts.Evaluation, cause error) {
	s.Logger.Error("evaluation failed", "evaluation_id", ev.ID, "error", cause)
	if err := s.Store.SetEvaluationStatus(ctx, ev.ID, contracts.StatusFailed); err != nil {
		s.Logger.Error("could not mark evaluation failed", "evaluation_id", ev.ID, "error", err)
	}
	s.setProgress(ctx, ev, 0, contracts.PhaseFailed, "", 0, cause.Error())
}

func samplingOptions(ev *contracts.Evaluation) *llm.SamplingOptions {
	opts := &llm.SamplingOptions{
		Temperature: ev.ParametersUsed.Temperature,
		TopP:        ev.ParametersUsed.TopP,
		MaxTokens:   ev.ParametersUsed.MaxTokens,
	}
	if ev.ParametersUsed.TopK != nil {
		opts.TopK = *ev.ParametersUsed.TopK
	}
	if ev.DeterminismMode != contracts.ModeStandard {
		opts.Seed = ev.SeedValue
		opts.SeedSet = true
	}
	return opts
}

// computeOverallScore is the confidence-weighted severity average:
// w = confidence · (severity/100 + 0.5). Empty or zero-weight inputs default
// to 75.
func computeOverallScore(findings []contracts.HeuristicFinding) float64 {
	var num, den float64
	for _, f := range findings {
		w := f.ConfidenceLevel * (f.SeverityScore/100 + 0.5)
		num += f.SeverityScore * w
		den += w
	}
	if den == 0 {
		return defaultOverallScore
	}
	return num / den
}

func zoneFor(score float64) contracts.ZoneStatus {
	switch {
	case score <= 80:
		return contracts.ZoneGreen
	case score <= 90:
		return contracts.ZoneYellow
	default:
		return contracts.ZoneRed
	}
}

// buildRecommendations prioritizes the mitigation templates of every finding
// and keeps the global top seven.
func buildRecommendations(evaluationID string, findings []contracts.HeuristicFinding) []contracts.Recommendation {
	var recs []contracts.Recommendation
	for _, f := range findings {
		for _, template := range detect.Recommendations(f.HeuristicType) {
			rec := template
			rec.EvaluationID = evaluationID
			rec.Priority = recommendationPriority(f, rec.EstimatedImpact)
			recs = append(recs, rec)
		}
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Priority > recs[j].Priority })
	if len(recs) > topRecommendations {
		recs = recs[:topRecommendations]
	}
	return recs
}

func recommendationPriority(f contracts.HeuristicFinding, impact contracts.ImpactLevel) int {
	raw := (0.6*f.SeverityScore + 30*f.ConfidenceLevel + 0.1*detect.ImpactValue(impact)) / 100 * 9
	priority := int(math.Floor(raw)) + 1
	if priority < 1 {
		priority = 1
	}
	if priority > 10 {
		priority = 10
	}
	return priority
}

func heuristicLabel(h contracts.HeuristicType) string {
	switch h {
	case contracts.Anchoring:
		return "anchoring"
	case contracts.LossAversion:
		return "loss aversion"
	case contracts.SunkCost:
		return "sunk cost"
	case contracts.ConfirmationBias:
		return "confirmation"
	case contracts.AvailabilityHeuristic:
		return "availability"
	default:
		return string(h)
	}
}
