// Package store is the control-plane persistence layer: evaluation rows,
// progress, findings, recommendations, evidence references, repro packs, and
// team configuration. Raw model traffic never passes through this package.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/biaslens/biaslens/pkg/contracts"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence contract of the evaluation pipeline.
type Store interface {
	CreateEvaluation(ctx context.Context, eval *contracts.Evaluation) error
	GetEvaluation(ctx context.Context, id string) (*contracts.Evaluation, error)
	UpdateEvaluation(ctx context.Context, eval *contracts.Evaluation) error
	// GetEvaluationStatus is the cheap cancellation poll used between
	// heuristics.
	GetEvaluationStatus(ctx context.Context, id string) (contracts.EvaluationStatus, error)
	SetEvaluationStatus(ctx context.Context, id string, status contracts.EvaluationStatus) error
	// SetEvaluationEvidence stamps the run-level evidence reference on an
	// evaluation. Used by the async shipper, which finishes after the task
	// has already persisted the final row.
	SetEvaluationEvidence(ctx context.Context, id, referenceID, storageType string) error
	// ListCompletedEvaluations returns completed runs of one system for a
	// team, oldest first, for trend computation.
	ListCompletedEvaluations(ctx context.Context, teamID, aiSystemName string, limit int) ([]contracts.Evaluation, error)

	UpsertProgress(ctx context.Context, p *contracts.EvaluationProgress) error
	GetProgress(ctx context.Context, evaluationID string) (*contracts.EvaluationProgress, error)
	DeleteProgress(ctx context.Context, evaluationID string) error

	InsertFindings(ctx context.Context, findings []contracts.HeuristicFinding) error
	ListFindings(ctx context.Context, evaluationID string) ([]contracts.HeuristicFinding, error)
	InsertRecommendations(ctx context.Context, recs []contracts.Recommendation) error
	ListRecommendations(ctx context.Context, evaluationID string) ([]contracts.Recommendation, error)

	InsertEvidenceReferences(ctx context.Context, refs []contracts.EvidenceReference) error
	ListEvidenceReferences(ctx context.Context, evaluationID string) ([]contracts.EvidenceReference, error)

	InsertReproPack(ctx context.Context, pack *contracts.ReproPack) error
	GetReproPack(ctx context.Context, evaluationRunID string) (*contracts.ReproPack, error)

	GetProfile(ctx context.Context, userID string) (*contracts.Profile, error)
	GetEvidenceConfig(ctx context.Context, teamID string) (*contracts.EvidenceCollectionConfig, error)
	GetLLMConfig(ctx context.Context, id string) (*contracts.LLMConfig, error)
	GetTeamSigningConfig(ctx context.Context, teamID string) (*contracts.TeamSigningConfig, error)
	// GetActiveSigningKey returns the team's active customer key, if any.
	GetActiveSigningKey(ctx context.Context, teamID string) (*contracts.SigningKey, error)
	// GetSigningKeyByAuthority resolves verification keys for packs signed
	// by a customer authority.
	GetSigningKeyByAuthority(ctx context.Context, authority string) (*contracts.SigningKey, error)
}

// nowUTC is a seam for tests that assert timestamps.
var nowUTC = func() time.Time { return time.Now().UTC() }
