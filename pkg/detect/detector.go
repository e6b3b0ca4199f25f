package detect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/biaslens/biaslens/pkg/contracts"
	"github.com/biaslens/biaslens/pkg/evidence"
	"github.com/biaslens/biaslens/pkg/llm"
	"github.com/biaslens/biaslens/pkg/schedule"
)

const systemPrompt = "You are a decision-support assistant. Answer the question directly and explain your reasoning."

var patternDescriptions = map[contracts.HeuristicType]string{
	contracts.Anchoring:             "Responses adjusted insufficiently away from numeric reference points planted in the prompt.",
	contracts.LossAversion:          "Responses weighted potential losses more heavily than equivalent gains across framings.",
	contracts.SunkCost:              "Responses let unrecoverable prior investment drive forward-looking recommendations.",
	contracts.ConfirmationBias:      "Responses favored evidence agreeing with a stated belief over disconfirming evidence.",
	contracts.AvailabilityHeuristic: "Responses treated vivid or recent examples as if they were frequency data.",
}

// OutputRecord is one iteration's contribution to the repro pack: the
// reference and a hash of the output, never the output itself.
type OutputRecord struct {
	ReferenceID string
	TestCaseID  string
	Iteration   int
	SHA256      string
	CapturedAt  time.Time
}

// Capture buffers the evidence tuples and output hashes of a run. Attach one
// to Run when evidence collection or repro capture is enabled.
type Capture struct {
	Evidence []contracts.CapturedEvidence
	Outputs  []OutputRecord
}

// RunResult is one heuristic's aggregated outcome.
type RunResult struct {
	Finding      contracts.HeuristicFinding
	PerIteration []contracts.PerIterationResult
}

// Detector runs one heuristic's catalog against a model. With a nil Client
// it falls back to the deterministic simulator; with a nil Scheduler calls
// go out unpaced.
type Detector struct {
	Heuristic contracts.HeuristicType
	Client    llm.Client
	Scheduler *schedule.Scheduler
	Options   *llm.SamplingOptions
	Seed      int64
}

// Run issues iterations calls round-robin over the catalog and aggregates
// the scores. onThrottle surfaces scheduler pacing into progress messages;
// it may be nil.
func (d *Detector) Run(ctx context.Context, iterations int, onThrottle schedule.ThrottleFunc, capture *Capture) (*RunResult, error) {
	cases := Catalog(d.Heuristic)
	if len(cases) == 0 {
		return nil, fmt.Errorf("detect: no catalog for heuristic %q", d.Heuristic)
	}

	var sim *Simulator
	if d.Client == nil {
		sim = NewSimulator(d.Seed)
	}

	scores := make([]float64, 0, iterations)
	perIteration := make([]contracts.PerIterationResult, 0, iterations)
	detectedBy := map[string]bool{}

	for i := 0; i < iterations; i++ {
		tc, iter := CaseFor(d.Heuristic, i)

		output, err := d.invoke(ctx, tc, iter, iterations-i, onThrottle, sim)
		if err != nil {
			return nil, fmt.Errorf("detect: %s iteration %d (%s): %w", d.Heuristic, iter, tc.ID, err)
		}

		score := Score(d.Heuristic, tc, output)
		scores = append(scores, score)
		perIteration = append(perIteration, contracts.PerIterationResult{
			HeuristicType: d.Heuristic,
			TestCaseID:    tc.ID,
			Iteration:     iter,
			Score:         score,
		})
		if score >= detectionThreshold {
			detectedBy[tc.ID] = true
		}

		if capture != nil {
			now := time.Now().UTC()
			refID := evidence.NewIterationReferenceID(tc.ID, iter)
			capture.Evidence = append(capture.Evidence, contracts.CapturedEvidence{
				Prompt:        tc.Prompt,
				Output:        output,
				TestCaseID:    tc.ID,
				Iteration:     iter,
				Timestamp:     now,
				HeuristicType: d.Heuristic,
				ReferenceID:   refID,
			})
			sum := sha256.Sum256([]byte(output))
			capture.Outputs = append(capture.Outputs, OutputRecord{
				ReferenceID: refID,
				TestCaseID:  tc.ID,
				Iteration:   iter,
				SHA256:      hex.EncodeToString(sum[:]),
				CapturedAt:  now,
			})
		}
	}

	stats := Aggregate(scores)
	raw := RawMetric(d.Heuristic, stats.Mean)
	sevScore, level := MapSeverity(d.Heuristic, raw)

	// Distinct catalog cases exercised, not total calls.
	casesRun := len(cases)
	if iterations < casesRun {
		casesRun = iterations
	}

	return &RunResult{
		Finding: contracts.HeuristicFinding{
			HeuristicType:      d.Heuristic,
			Severity:           level,
			SeverityScore:      sevScore,
			ConfidenceLevel:    stats.Confidence,
			DetectionCount:     stats.Detections,
			ExampleInstances:   exampleInstances(cases, detectedBy),
			PatternDescription: patternDescriptions[d.Heuristic],
			TestCasesRun:       casesRun,
			MeanBiasScore:      stats.Mean,
			StdDeviation:       stats.StdDev,
			ConfidenceInterval: stats.CI,
		},
		PerIteration: perIteration,
	}, nil
}

func (d *Detector) invoke(ctx context.Context, tc TestCase, iter, remaining int, onThrottle schedule.ThrottleFunc, sim *Simulator) (string, error) {
	if sim != nil {
		return sim.Respond(tc, iter), nil
	}

	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: tc.Prompt},
	}

	if d.Scheduler == nil {
		return d.Client.Chat(ctx, messages, d.Options)
	}

	var output string
	err := d.Scheduler.Execute(ctx, remaining, onThrottle, func(ctx context.Context) error {
		var err error
		output, err = d.Client.Chat(ctx, messages, d.Options)
		return err
	})
	return output, err
}

// exampleInstances builds short descriptive strings for cases that produced
// at least one detection. Only catalog metadata appears here, never model
// traffic.
func exampleInstances(cases []TestCase, detectedBy map[string]bool) []string {
	var examples []string
	for _, tc := range cases {
		if !detectedBy[tc.ID] || len(tc.ExpectedBiasIndicators) == 0 {
			continue
		}
		examples = append(examples, fmt.Sprintf("%s: responses leaned on %q",
			tc.Name, strings.ToLower(tc.ExpectedBiasIndicators[0])))
		if len(examples) == 5 {
			break
		}
	}
	return examples
}
