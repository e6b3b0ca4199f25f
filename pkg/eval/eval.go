// Package eval is the evaluation orchestrator: synchronous job intake,
// the background detection task, aggregation, and result reads. Intake
// returns as soon as the evaluation and progress rows exist; everything
// downstream happens in the evaluation's own background task.
package eval

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/biaslens/biaslens/pkg/audit"
	"github.com/biaslens/biaslens/pkg/config"
	"github.com/biaslens/biaslens/pkg/contracts"
	"github.com/biaslens/biaslens/pkg/evidence"
	"github.com/biaslens/biaslens/pkg/llm"
	"github.com/biaslens/biaslens/pkg/progress"
	"github.com/biaslens/biaslens/pkg/provider"
	"github.com/biaslens/biaslens/pkg/schedule"
	"github.com/biaslens/biaslens/pkg/store"
	"github.com/biaslens/biaslens/pkg/vault"
)

// Service wires the orchestrator's collaborators. Construct with NewService;
// the zero value is not usable.
type Service struct {
	Store    store.Store
	Registry *provider.Registry
	Pool     *schedule.Pool
	Progress *progress.Reporter
	Audit    audit.Logger
	Cfg      *config.Config

	// APIVault decrypts stored LLM API keys and evidence credentials;
	// SigningVault decrypts customer signing keys. Either may be nil, which
	// disables the corresponding feature.
	APIVault     *vault.Vault
	SigningVault *vault.Vault

	Logger *slog.Logger

	// test seams
	newClient    func(cfg *contracts.LLMConfig, apiKey string) llm.Client
	newCollector func(ctx context.Context, creds *evidence.Credentials, runID string) (evidence.Collector, error)
	spawn        func(fn func())
	cleanupDelay time.Duration
}

// NewService fills defaults and returns a ready service.
func NewService(s Service) *Service {
	if s.Registry == nil {
		s.Registry = provider.NewRegistry()
	}
	if s.Pool == nil {
		s.Pool = schedule.NewPool(s.Registry)
	}
	if s.Audit == nil {
		s.Audit = audit.Nop()
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	s.Logger = s.Logger.With("component", "eval")
	if s.Progress == nil {
		s.Progress = progress.NewReporter(s.Store, nil, s.Logger)
	}
	if s.newClient == nil {
		s.newClient = func(cfg *contracts.LLMConfig, apiKey string) llm.Client {
			return llm.NewOpenAIClient(cfg.BaseURL, apiKey, cfg.ModelName)
		}
	}
	if s.newCollector == nil {
		s.newCollector = evidence.NewCollector
	}
	if s.spawn == nil {
		s.spawn = func(fn func()) { go fn() }
	}
	if s.cleanupDelay == 0 {
		s.cleanupDelay = 5 * time.Second
	}
	return &s
}

// evidenceSetup is the resolved per-run evidence collection state; nil means
// evidence collection is disabled for this run.
type evidenceSetup struct {
	collector   evidence.Collector
	storageType contracts.StorageType
	runRefID    string
}

// Submit is the synchronous intake: authenticate, validate, resolve
// determinism, prepare evidence collection, create the evaluation and
// progress rows, and launch the background task. The returned evaluation is
// a snapshot; the background task owns the live row from here on.
func (s *Service) Submit(ctx context.Context, userID string, req *contracts.EvaluationRequest) (*contracts.Evaluation, error) {
	profile, err := s.Store.GetProfile(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, errf(KindAuth, nil, "user has no profile")
	case err != nil:
		return nil, errf(KindInternal, err, "load profile")
	case profile.TeamID == "":
		return nil, errf(KindAuth, nil, "user has no team membership")
	}

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var llmCfg *contracts.LLMConfig
	if req.LLMConfigID != "" {
		llmCfg, err = s.Store.GetLLMConfig(ctx, req.LLMConfigID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, errf(KindNotFound, nil, "llm config %s not found", req.LLMConfigID)
		case err != nil:
			return nil, errf(KindInternal, err, "load llm config")
		case llmCfg.TeamID != profile.TeamID:
			return nil, errf(KindAuth, nil, "llm config belongs to another team")
		}
	}

	providerID, modelName := s.Cfg.Model.Provider, s.Cfg.Model.ModelName
	if llmCfg != nil {
		providerID, modelName = llmCfg.Provider, llmCfg.ModelName
	}
	caps := s.Registry.Capabilities(providerID)

	res, err := resolveDetermination(caps, req, s.Cfg.Model)
	if err != nil {
		return nil, err
	}

	evalID := uuid.New().String()
	setup := s.prepareEvidence(ctx, profile.TeamID, evalID)

	// An explicit llm config that cannot be used is fatal to the request:
	// the caller asked for real traffic.
	var client llm.Client
	if llmCfg != nil {
		if client, err = s.buildClient(llmCfg); err != nil {
			return nil, err
		}
	}

	ev := &contracts.Evaluation{
		ID:              evalID,
		UserID:          userID,
		TeamID:          profile.TeamID,
		AISystemName:    req.AISystemName,
		HeuristicTypes:  append([]contracts.HeuristicType(nil), req.HeuristicTypes...),
		IterationCount:  req.IterationCount,
		Status:          contracts.StatusRunning,
		DeterminismMode: res.Mode,
		SeedValue:       res.Seed,
		AchievedLevel:   res.AchievedLevel,
		ParametersUsed:  res.Parameters,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.Store.CreateEvaluation(ctx, ev); err != nil {
		return nil, errf(KindInternal, err, "persist evaluation")
	}
	if err := s.Progress.Update(ctx, &contracts.EvaluationProgress{
		EvaluationID:    evalID,
		ProgressPercent: 0,
		CurrentPhase:    contracts.PhaseInitializing,
		TestsTotal:      len(req.HeuristicTypes),
		Message:         "Evaluation accepted; starting up...",
	}); err != nil {
		s.Logger.Warn("initial progress write failed", "evaluation_id", evalID, "error", err)
	}

	snapshot := *ev
	run := &runState{
		eval:       ev,
		client:     client,
		setup:      setup,
		providerID: providerID,
		modelName:  modelName,
	}
	s.spawn(func() { s.runEvaluation(context.Background(), run) })
	return &snapshot, nil
}

func (s *Service) buildClient(llmCfg *contracts.LLMConfig) (llm.Client, error) {
	if s.APIVault == nil {
		return nil, errf(KindProvider, nil, "llm config requested but no API key secret is configured")
	}
	apiKey, err := s.APIVault.Decrypt(llmCfg.APIKeyEncrypted)
	if err != nil {
		return nil, errf(KindProvider, err, "decrypt llm api key")
	}
	return s.newClient(llmCfg, string(apiKey)), nil
}

// prepareEvidence resolves the team's evidence collection for this run. Every
// failure degrades to disabled collection with an audit event; nothing here
// can fail the request.
func (s *Service) prepareEvidence(ctx context.Context, teamID, evalID string) *evidenceSetup {
	row, err := s.Store.GetEvidenceConfig(ctx, teamID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.degradeEvidence(ctx, teamID, evalID, "load evidence config", err)
		return nil
	}
	if !row.IsEnabled {
		return nil
	}
	s.Audit.Record(ctx, audit.EventCollectionStarted, teamID, evalID, nil)
	s.Audit.Record(ctx, audit.EventConfigLoaded, teamID, evalID, map[string]interface{}{
		"storage_type": string(row.StorageType),
	})

	if s.APIVault == nil {
		s.degradeEvidence(ctx, teamID, evalID, "decrypt evidence credentials", vault.ErrSecretMissing)
		return nil
	}
	raw, err := s.APIVault.Decrypt(row.CredentialsEncrypted)
	if err != nil {
		s.degradeEvidence(ctx, teamID, evalID, "decrypt evidence credentials", err)
		return nil
	}
	creds, err := evidence.ParseCredentials(raw, row.StorageType)
	if err != nil {
		s.degradeEvidence(ctx, teamID, evalID, "parse evidence credentials", err)
		return nil
	}

	runRefID := evidence.NewRunReferenceID()
	collector, err := s.newCollector(ctx, creds, runRefID)
	if err != nil {
		s.Audit.Record(ctx, audit.EventCreationFailed, teamID, evalID, map[string]interface{}{
			"error": err.Error(),
		})
		s.Logger.Warn("evidence collector creation failed; continuing without evidence",
			"team_id", teamID, "evaluation_id", evalID, "error", err)
		return nil
	}
	if err := collector.TestConnection(ctx); err != nil {
		s.Audit.Record(ctx, audit.EventCreationFailed, teamID, evalID, map[string]interface{}{
			"error": err.Error(), "stage": "connection_test",
		})
		s.Logger.Warn("evidence backend connection test failed; continuing without evidence",
			"team_id", teamID, "evaluation_id", evalID, "error", err)
		return nil
	}

	s.Audit.Record(ctx, audit.EventCollectorCreated, teamID, evalID, map[string]interface{}{
		"storage_type": string(row.StorageType),
		"run_reference_id": runRefID,
	})
	return &evidenceSetup{collector: collector, storageType: row.StorageType, runRefID: runRefID}
}

func (s *Service) degradeEvidence(ctx context.Context, teamID, evalID, stage string, err error) {
	s.Audit.Record(ctx, audit.EventConfigError, teamID, evalID, map[string]interface{}{
		"stage": stage, "error": err.Error(),
	})
	s.Logger.Warn("evidence collection degraded to disabled",
		"team_id", teamID, "evaluation_id", evalID, "stage", stage, "error", err)
}

// Detail is the full read model returned by Get.
type Detail struct {
	Evaluation      *contracts.Evaluation      `json:"evaluation"`
	Findings        []contracts.HeuristicFinding `json:"findings"`
	Recommendations []contracts.Recommendation `json:"recommendations"`
	Trends          *Trends                    `json:"trends"`
}

// Get loads one evaluation with findings, recommendations, and trends.
// Evaluations owned by other teams are reported as not found.
func (s *Service) Get(ctx context.Context, userID, evaluationID string) (*Detail, error) {
	profile, err := s.Store.GetProfile(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, errf(KindAuth, nil, "user has no profile")
	case err != nil:
		return nil, errf(KindInternal, err, "load profile")
	}

	ev, err := s.Store.GetEvaluation(ctx, evaluationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errf(KindNotFound, nil, "evaluation %s not found", evaluationID)
	}
	if err != nil {
		return nil, errf(KindInternal, err, "load evaluation")
	}
	if ev.TeamID != profile.TeamID {
		return nil, errf(KindNotFound, nil, "evaluation %s not found", evaluationID)
	}

	findings, err := s.Store.ListFindings(ctx, evaluationID)
	if err != nil {
		return nil, errf(KindInternal, err, "load findings")
	}
	recs, err := s.Store.ListRecommendations(ctx, evaluationID)
	if err != nil {
		return nil, errf(KindInternal, err, "load recommendations")
	}
	trends, err := s.ComputeTrends(ctx, profile.TeamID, ev.AISystemName)
	if err != nil {
		return nil, errf(KindInternal, err, "compute trends")
	}

	return &Detail{Evaluation: ev, Findings: findings, Recommendations: recs, Trends: trends}, nil
}
