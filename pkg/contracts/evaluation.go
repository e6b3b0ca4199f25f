// Package contracts holds the shared data types of the evaluation pipeline:
// the request envelope, the control-plane rows, and the ephemeral evidence
// tuple. The types here carry no behavior beyond small validation helpers so
// every other package can depend on them without cycles.
package contracts

import "time"

// HeuristicType is one of the cognitive-bias categories under test.
type HeuristicType string

const (
	Anchoring             HeuristicType = "anchoring"
	LossAversion          HeuristicType = "loss_aversion"
	SunkCost              HeuristicType = "sunk_cost"
	ConfirmationBias      HeuristicType = "confirmation_bias"
	AvailabilityHeuristic HeuristicType = "availability_heuristic"
)

// AllHeuristics lists the supported heuristic types in canonical order.
var AllHeuristics = []HeuristicType{
	Anchoring, LossAversion, SunkCost, ConfirmationBias, AvailabilityHeuristic,
}

// Valid reports whether the heuristic type is one of the supported five.
func (h HeuristicType) Valid() bool {
	for _, known := range AllHeuristics {
		if h == known {
			return true
		}
	}
	return false
}

// DeterminismLevel is the requested strictness of reproducibility.
type DeterminismLevel string

const (
	LevelFull     DeterminismLevel = "full"
	LevelNear     DeterminismLevel = "near"
	LevelAdaptive DeterminismLevel = "adaptive"
)

// DeterminismMode is the mode an evaluation actually runs under.
type DeterminismMode string

const (
	ModeStandard DeterminismMode = "standard"
	ModeFull     DeterminismMode = "full"
	ModeNear     DeterminismMode = "near"
	ModeAdaptive DeterminismMode = "adaptive"
)

// EvaluationStatus is the evaluation state machine:
// pending → running → {completed | failed}. failed doubles as the
// cancellation terminal.
type EvaluationStatus string

const (
	StatusPending   EvaluationStatus = "pending"
	StatusRunning   EvaluationStatus = "running"
	StatusCompleted EvaluationStatus = "completed"
	StatusFailed    EvaluationStatus = "failed"
)

// ZoneStatus is the traffic-light category of the aggregated score.
type ZoneStatus string

const (
	ZoneGreen  ZoneStatus = "green"
	ZoneYellow ZoneStatus = "yellow"
	ZoneRed    ZoneStatus = "red"
)

// DeterministicBlock is the optional determinism request.
type DeterministicBlock struct {
	Enabled                     bool             `json:"enabled"`
	Level                       DeterminismLevel `json:"level,omitempty"`
	Seed                        *int64           `json:"seed,omitempty"`
	AllowNondeterministicFallback bool           `json:"allowNondeterministicFallback"`
	Temperature                 *float64         `json:"temperature,omitempty"`
	KeepTemperatureConstant     bool             `json:"keepTemperatureConstant"`
}

// EvaluationRequest is the job-submission body.
type EvaluationRequest struct {
	AISystemName   string              `json:"aiSystemName"`
	HeuristicTypes []HeuristicType     `json:"heuristicTypes"`
	IterationCount int                 `json:"iterationCount"`
	LLMConfigID    string              `json:"llmConfigId,omitempty"`
	Deterministic  *DeterministicBlock `json:"deterministic,omitempty"`
}

// ParametersUsed are the decoding parameters an evaluation actually ran with.
type ParametersUsed struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	TopK        *int    `json:"top_k,omitempty"`
	MaxTokens   int     `json:"max_tokens"`
}

// ConfidenceInterval is a two-sided 95% interval.
type ConfidenceInterval struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// PerIterationResult is the score of one model call.
type PerIterationResult struct {
	HeuristicType HeuristicType `json:"heuristicType"`
	TestCaseID    string        `json:"testCaseId"`
	Iteration     int           `json:"iteration"`
	Score         float64       `json:"score"`
}

// Evaluation is the control-plane row for one run. Created on intake and
// mutated only by its own background task; an external actor flipping Status
// to failed is the cancellation signal.
type Evaluation struct {
	ID             string           `json:"id"`
	UserID         string           `json:"userId"`
	TeamID         string           `json:"teamId"`
	AISystemName   string           `json:"aiSystemName"`
	HeuristicTypes []HeuristicType  `json:"heuristicTypes"`
	IterationCount int              `json:"iterationCount"`
	Status         EvaluationStatus `json:"status"`

	DeterminismMode DeterminismMode `json:"determinismMode"`
	SeedValue       int64           `json:"seedValue"`
	AchievedLevel   string          `json:"achievedLevel,omitempty"`
	ParametersUsed  ParametersUsed  `json:"parametersUsed"`

	IterationsRun int        `json:"iterationsRun"`
	OverallScore  float64    `json:"overallScore"`
	ZoneStatus    ZoneStatus `json:"zoneStatus,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`

	EvidenceReferenceID string `json:"evidenceReferenceId,omitempty"`
	EvidenceStorageType string `json:"evidenceStorageType,omitempty"`

	ConfidenceIntervals map[HeuristicType]ConfidenceInterval `json:"confidenceIntervals,omitempty"`
	PerIterationResults []PerIterationResult                 `json:"perIterationResults,omitempty"`
}

// ProgressPhase is the phase reported in the progress row.
type ProgressPhase string

const (
	PhaseInitializing    ProgressPhase = "initializing"
	PhaseDetecting       ProgressPhase = "detecting"
	PhaseStoringEvidence ProgressPhase = "storing_evidence"
	PhaseProcessing      ProgressPhase = "processing"
	PhaseFinalizing      ProgressPhase = "finalizing"
	PhaseCompleted       ProgressPhase = "completed"
	PhaseFailed          ProgressPhase = "failed"
)

// EvaluationProgress is the one-per-running-evaluation progress row.
type EvaluationProgress struct {
	ID               string        `json:"id"`
	EvaluationID     string        `json:"evaluationId"`
	ProgressPercent  int           `json:"progressPercent"`
	CurrentPhase     ProgressPhase `json:"currentPhase"`
	CurrentHeuristic HeuristicType `json:"currentHeuristic,omitempty"`
	TestsCompleted   int           `json:"testsCompleted"`
	TestsTotal       int           `json:"testsTotal"`
	Message          string        `json:"message,omitempty"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// Severity buckets for findings.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// HeuristicFinding is the aggregated result for one requested heuristic.
// ExampleInstances are descriptive strings only; raw prompts and outputs
// never appear here.
type HeuristicFinding struct {
	EvaluationID       string             `json:"evaluationId"`
	HeuristicType      HeuristicType      `json:"heuristicType"`
	Severity           Severity           `json:"severity"`
	SeverityScore      float64            `json:"severityScore"`
	ConfidenceLevel    float64            `json:"confidenceLevel"`
	DetectionCount     int                `json:"detectionCount"`
	ExampleInstances   []string           `json:"exampleInstances"`
	PatternDescription string             `json:"patternDescription"`
	TestCasesRun       int                `json:"testCasesRun"`
	MeanBiasScore      float64            `json:"meanBiasScore"`
	StdDeviation       float64            `json:"stdDeviation"`
	ConfidenceInterval ConfidenceInterval `json:"confidenceInterval"`
}

// ImpactLevel estimates the payoff of applying a recommendation.
type ImpactLevel string

const (
	ImpactLow    ImpactLevel = "low"
	ImpactMedium ImpactLevel = "medium"
	ImpactHigh   ImpactLevel = "high"
)

// Difficulty estimates implementation effort.
type Difficulty string

const (
	DifficultyEasy     Difficulty = "easy"
	DifficultyModerate Difficulty = "moderate"
	DifficultyComplex  Difficulty = "complex"
)

// Recommendation is a prioritized mitigation selected for a finding.
type Recommendation struct {
	EvaluationID          string        `json:"evaluationId"`
	HeuristicType         HeuristicType `json:"heuristicType"`
	Priority              int           `json:"priority"`
	ActionTitle           string        `json:"actionTitle"`
	TechnicalDescription  string        `json:"technicalDescription"`
	SimplifiedDescription string        `json:"simplifiedDescription"`
	EstimatedImpact       ImpactLevel   `json:"estimatedImpact"`
	Difficulty            Difficulty    `json:"implementationDifficulty"`
}
