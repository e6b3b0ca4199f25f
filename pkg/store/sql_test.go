package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biaslens/biaslens/pkg/contracts"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLStoreUnmigrated(db), mock
}

func TestSQLCreateEvaluation(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO evaluations")).
		WithArgs("eval-1", "user-1", "team-1", "support-bot",
			`["anchoring","sunk_cost"]`,
			10, "running", "full", int64(42), "seeded",
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.CreateEvaluation(context.Background(), &contracts.Evaluation{
		ID:              "eval-1",
		UserID:          "user-1",
		TeamID:          "team-1",
		AISystemName:    "support-bot",
		HeuristicTypes:  []contracts.HeuristicType{contracts.Anchoring, contracts.SunkCost},
		IterationCount:  10,
		Status:          contracts.StatusRunning,
		DeterminismMode: contracts.ModeFull,
		SeedValue:       42,
		AchievedLevel:   "seeded",
		CreatedAt:       time.Now().UTC(),
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLGetEvaluation(t *testing.T) {
	s, mock := newMockStore(t)

	cols := []string{
		"id", "user_id", "team_id", "ai_system_name", "heuristic_types", "iteration_count",
		"status", "determinism_mode", "seed_value", "achieved_level", "parameters_used",
		"iterations_run", "overall_score", "zone_status", "created_at", "completed_at",
		"evidence_reference_id", "evidence_storage_type", "confidence_intervals",
		"per_iteration_results",
	}
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	completed := created.Add(time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta("FROM evaluations WHERE id = $1")).
		WithArgs("eval-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"eval-1", "user-1", "team-1", "support-bot", `["anchoring"]`, 10,
			"completed", "full", int64(42), "seeded", `{"temperature":0,"top_p":1,"max_tokens":1024}`,
			10, 78.5, "green", created, completed,
			"evaluation-run-x", "object_store", `{"anchoring":{"low":1,"high":2}}`,
			`[{"heuristicType":"anchoring","testCaseId":"a","iteration":1,"score":2.5}]`,
		))

	e, err := s.GetEvaluation(context.Background(), "eval-1")
	require.NoError(t, err)
	assert.Equal(t, []contracts.HeuristicType{contracts.Anchoring}, e.HeuristicTypes)
	assert.Equal(t, 78.5, e.OverallScore)
	assert.Equal(t, contracts.ZoneGreen, e.ZoneStatus)
	require.NotNil(t, e.CompletedAt)
	assert.Equal(t, completed, *e.CompletedAt)
	assert.Equal(t, 0.0, e.ParametersUsed.Temperature)
	assert.Equal(t, 1024, e.ParametersUsed.MaxTokens)
	require.Len(t, e.PerIterationResults, 1)
	assert.Equal(t, 2.5, e.PerIterationResults[0].Score)
}

func TestSQLGetEvaluationNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM evaluations WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetEvaluation(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLSetEvaluationStatus(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE evaluations SET status = $2 WHERE id = $1")).
		WithArgs("eval-1", "failed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, s.SetEvaluationStatus(context.Background(), "eval-1", contracts.StatusFailed))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE evaluations SET status = $2 WHERE id = $1")).
		WithArgs("missing", "failed").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := s.SetEvaluationStatus(context.Background(), "missing", contracts.StatusFailed)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLSetEvaluationEvidence(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE evaluations SET evidence_reference_id = $2, evidence_storage_type = $3 WHERE id = $1")).
		WithArgs("eval-1", "evaluation-run-abc", "log_search").
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, s.SetEvaluationEvidence(context.Background(), "eval-1", "evaluation-run-abc", "log_search"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE evaluations SET evidence_reference_id = $2, evidence_storage_type = $3 WHERE id = $1")).
		WithArgs("missing", "ref", "s3").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := s.SetEvaluationEvidence(context.Background(), "missing", "ref", "s3")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLUpsertProgress(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO evaluation_progress")).
		WithArgs("prog-1", "eval-1", 35, "detecting", "sunk_cost", 1, 3, "Testing for sunk cost bias...", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpsertProgress(context.Background(), &contracts.EvaluationProgress{
		ID:               "prog-1",
		EvaluationID:     "eval-1",
		ProgressPercent:  35,
		CurrentPhase:     contracts.PhaseDetecting,
		CurrentHeuristic: contracts.SunkCost,
		TestsCompleted:   1,
		TestsTotal:       3,
		Message:          "Testing for sunk cost bias...",
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLInsertEvidenceReferences(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO evidence_references")).
		WithArgs("eval-1", "tc-1", "ref-1", "s3://b/k", "object_store",
			"full", int64(7), 5, "seeded",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.InsertEvidenceReferences(context.Background(), []contracts.EvidenceReference{{
		EvaluationID:    "eval-1",
		TestCaseID:      "tc-1",
		ReferenceID:     "ref-1",
		StorageLocation: "s3://b/k",
		StorageType:     contracts.StorageObjectStore,
		DeterminismMode: contracts.ModeFull,
		SeedValue:       7,
		IterationsRun:   5,
		AchievedLevel:   "seeded",
	}})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLGetReproPack(t *testing.T) {
	s, mock := newMockStore(t)

	created := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM repro_packs WHERE evaluation_run_id = $1")).
		WithArgs("eval-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "evaluation_run_id", "content_hash", "signature",
			"signing_authority", "signing_key_id", "created_at", "content",
		}).AddRow(
			"pack-1", "eval-1", "abc123", "c2ln", "BiasLens", "key-1", created,
			`{"schema_version":"1.2.0"}`,
		))

	pack, err := s.GetReproPack(context.Background(), "eval-1")
	require.NoError(t, err)
	assert.Equal(t, "abc123", pack.ContentHash)
	assert.Equal(t, "1.2.0", pack.Content["schema_version"])
}
