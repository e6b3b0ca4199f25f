package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/biaslens/biaslens/pkg/contracts"
)

// SQLStore is the database/sql implementation. It runs unchanged on
// Postgres and on SQLite (lite mode): placeholders are $1-style, which both
// drivers accept, and the structured columns are JSON text.
type SQLStore struct {
	db *sql.DB
}

// OpenPostgres connects to Postgres and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	return NewSQLStore(ctx, db)
}

// OpenSQLite opens (creating if needed) a SQLite database file and applies
// the schema. Used in lite mode for local runs.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	return NewSQLStore(ctx, db)
}

// NewSQLStore wraps an existing connection and applies the schema.
func NewSQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// NewSQLStoreUnmigrated wraps a connection without touching the schema;
// used by tests driving sqlmock.
func NewSQLStoreUnmigrated(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error { return s.db.Close() }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS evaluations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		team_id TEXT NOT NULL,
		ai_system_name TEXT NOT NULL,
		heuristic_types TEXT NOT NULL,
		iteration_count INTEGER NOT NULL,
		status TEXT NOT NULL,
		determinism_mode TEXT NOT NULL,
		seed_value BIGINT NOT NULL DEFAULT 0,
		achieved_level TEXT NOT NULL DEFAULT '',
		parameters_used TEXT NOT NULL DEFAULT '{}',
		iterations_run INTEGER NOT NULL DEFAULT 0,
		overall_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		zone_status TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		evidence_reference_id TEXT NOT NULL DEFAULT '',
		evidence_storage_type TEXT NOT NULL DEFAULT '',
		confidence_intervals TEXT NOT NULL DEFAULT '{}',
		per_iteration_results TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS evaluation_progress (
		id TEXT PRIMARY KEY,
		evaluation_id TEXT NOT NULL UNIQUE,
		progress_percent INTEGER NOT NULL,
		current_phase TEXT NOT NULL,
		current_heuristic TEXT NOT NULL DEFAULT '',
		tests_completed INTEGER NOT NULL DEFAULT 0,
		tests_total INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS heuristic_findings (
		evaluation_id TEXT NOT NULL,
		heuristic_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		severity_score DOUBLE PRECISION NOT NULL,
		confidence_level DOUBLE PRECISION NOT NULL,
		detection_count INTEGER NOT NULL,
		example_instances TEXT NOT NULL DEFAULT '[]',
		pattern_description TEXT NOT NULL DEFAULT '',
		test_cases_run INTEGER NOT NULL,
		mean_bias_score DOUBLE PRECISION NOT NULL,
		std_deviation DOUBLE PRECISION NOT NULL,
		ci_low DOUBLE PRECISION NOT NULL,
		ci_high DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (evaluation_id, heuristic_type)
	)`,
	`CREATE TABLE IF NOT EXISTS recommendations (
		evaluation_id TEXT NOT NULL,
		heuristic_type TEXT NOT NULL,
		priority INTEGER NOT NULL,
		action_title TEXT NOT NULL,
		technical_description TEXT NOT NULL DEFAULT '',
		simplified_description TEXT NOT NULL DEFAULT '',
		estimated_impact TEXT NOT NULL DEFAULT '',
		implementation_difficulty TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS evidence_references (
		evaluation_id TEXT NOT NULL,
		test_case_id TEXT NOT NULL DEFAULT '',
		reference_id TEXT NOT NULL,
		storage_location TEXT NOT NULL DEFAULT '',
		storage_type TEXT NOT NULL,
		determinism_mode TEXT NOT NULL DEFAULT '',
		seed_value BIGINT NOT NULL DEFAULT 0,
		iterations_run INTEGER NOT NULL DEFAULT 0,
		achieved_level TEXT NOT NULL DEFAULT '',
		parameters_used TEXT NOT NULL DEFAULT '{}',
		confidence_intervals TEXT NOT NULL DEFAULT '{}',
		per_iteration_results TEXT NOT NULL DEFAULT '[]',
		PRIMARY KEY (evaluation_id, reference_id)
	)`,
	`CREATE TABLE IF NOT EXISTS repro_packs (
		id TEXT PRIMARY KEY,
		evaluation_run_id TEXT NOT NULL UNIQUE,
		content_hash TEXT NOT NULL,
		signature TEXT NOT NULL,
		signing_authority TEXT NOT NULL,
		signing_key_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		content TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY,
		team_id TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS evidence_collection_configs (
		team_id TEXT PRIMARY KEY,
		storage_type TEXT NOT NULL,
		is_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		credentials_encrypted TEXT NOT NULL DEFAULT '',
		configuration TEXT NOT NULL DEFAULT '{}',
		last_tested_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS llm_configs (
		id TEXT PRIMARY KEY,
		team_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		model_name TEXT NOT NULL,
		base_url TEXT NOT NULL DEFAULT '',
		api_key_encrypted TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS team_signing_configs (
		team_id TEXT PRIMARY KEY,
		signing_mode TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS signing_keys (
		id TEXT PRIMARY KEY,
		team_id TEXT NOT NULL,
		authority TEXT NOT NULL,
		status TEXT NOT NULL,
		public_key_pem TEXT NOT NULL,
		private_key_encrypted TEXT NOT NULL DEFAULT ''
	)`,
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

func marshalJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func unmarshalJSON(data string, v interface{}) {
	if data == "" {
		return
	}
	_ = json.Unmarshal([]byte(data), v)
}

func (s *SQLStore) CreateEvaluation(ctx context.Context, e *contracts.Evaluation) error {
	query := `
		INSERT INTO evaluations (
			id, user_id, team_id, ai_system_name, heuristic_types,
			iteration_count, status, determinism_mode, seed_value,
			achieved_level, parameters_used, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.UserID, e.TeamID, e.AISystemName, marshalJSON(e.HeuristicTypes),
		e.IterationCount, string(e.Status), string(e.DeterminismMode), e.SeedValue,
		e.AchievedLevel, marshalJSON(e.ParametersUsed), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert evaluation: %w", err)
	}
	return nil
}

const evaluationColumns = `
	id, user_id, team_id, ai_system_name, heuristic_types, iteration_count,
	status, determinism_mode, seed_value, achieved_level, parameters_used,
	iterations_run, overall_score, zone_status, created_at, completed_at,
	evidence_reference_id, evidence_storage_type, confidence_intervals,
	per_iteration_results`

func scanEvaluation(row interface{ Scan(...interface{}) error }) (*contracts.Evaluation, error) {
	var e contracts.Evaluation
	var heuristics, params, intervals, perIteration string
	var completedAt sql.NullTime
	err := row.Scan(
		&e.ID, &e.UserID, &e.TeamID, &e.AISystemName, &heuristics, &e.IterationCount,
		&e.Status, &e.DeterminismMode, &e.SeedValue, &e.AchievedLevel, &params,
		&e.IterationsRun, &e.OverallScore, &e.ZoneStatus, &e.CreatedAt, &completedAt,
		&e.EvidenceReferenceID, &e.EvidenceStorageType, &intervals, &perIteration,
	)
	if err != nil {
		return nil, err
	}
	unmarshalJSON(heuristics, &e.HeuristicTypes)
	unmarshalJSON(params, &e.ParametersUsed)
	unmarshalJSON(intervals, &e.ConfidenceIntervals)
	unmarshalJSON(perIteration, &e.PerIterationResults)
	if completedAt.Valid {
		t := completedAt.Time
		e.CompletedAt = &t
	}
	return &e, nil
}

func (s *SQLStore) GetEvaluation(ctx context.Context, id string) (*contracts.Evaluation, error) {
	query := `SELECT` + evaluationColumns + ` FROM evaluations WHERE id = $1`
	e, err := scanEvaluation(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get evaluation: %w", err)
	}
	return e, nil
}

func (s *SQLStore) UpdateEvaluation(ctx context.Context, e *contracts.Evaluation) error {
	query := `
		UPDATE evaluations SET
			status = $2, determinism_mode = $3, seed_value = $4,
			achieved_level = $5, parameters_used = $6, iterations_run = $7,
			overall_score = $8, zone_status = $9, completed_at = $10,
			evidence_reference_id = $11, evidence_storage_type = $12,
			confidence_intervals = $13, per_iteration_results = $14
		WHERE id = $1
	`
	var completedAt interface{}
	if e.CompletedAt != nil {
		completedAt = *e.CompletedAt
	}
	res, err := s.db.ExecContext(ctx, query,
		e.ID, string(e.Status), string(e.DeterminismMode), e.SeedValue,
		e.AchievedLevel, marshalJSON(e.ParametersUsed), e.IterationsRun,
		e.OverallScore, string(e.ZoneStatus), completedAt,
		e.EvidenceReferenceID, e.EvidenceStorageType,
		marshalJSON(e.ConfidenceIntervals), marshalJSON(e.PerIterationResults),
	)
	if err != nil {
		return fmt.Errorf("store: update evaluation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) GetEvaluationStatus(ctx context.Context, id string) (contracts.EvaluationStatus, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM evaluations WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: get evaluation status: %w", err)
	}
	return contracts.EvaluationStatus(status), nil
}

func (s *SQLStore) SetEvaluationStatus(ctx context.Context, id string, status contracts.EvaluationStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE evaluations SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("store: set evaluation status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) SetEvaluationEvidence(ctx context.Context, id, referenceID, storageType string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE evaluations SET evidence_reference_id = $2, evidence_storage_type = $3 WHERE id = $1`,
		id, referenceID, storageType)
	if err != nil {
		return fmt.Errorf("store: set evaluation evidence: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) ListCompletedEvaluations(ctx context.Context, teamID, aiSystemName string, limit int) ([]contracts.Evaluation, error) {
	query := `SELECT` + evaluationColumns + `
		FROM evaluations
		WHERE team_id = $1 AND ai_system_name = $2 AND status = 'completed'
		ORDER BY created_at ASC
		LIMIT $3`
	rows, err := s.db.QueryContext(ctx, query, teamID, aiSystemName, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list completed evaluations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var evals []contracts.Evaluation
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		evals = append(evals, *e)
	}
	return evals, rows.Err()
}

func (s *SQLStore) UpsertProgress(ctx context.Context, p *contracts.EvaluationProgress) error {
	query := `
		INSERT INTO evaluation_progress (
			id, evaluation_id, progress_percent, current_phase,
			current_heuristic, tests_completed, tests_total, message, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (evaluation_id) DO UPDATE SET
			progress_percent = EXCLUDED.progress_percent,
			current_phase = EXCLUDED.current_phase,
			current_heuristic = EXCLUDED.current_heuristic,
			tests_completed = EXCLUDED.tests_completed,
			tests_total = EXCLUDED.tests_total,
			message = EXCLUDED.message,
			updated_at = EXCLUDED.updated_at
	`
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = nowUTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.EvaluationID, p.ProgressPercent, string(p.CurrentPhase),
		string(p.CurrentHeuristic), p.TestsCompleted, p.TestsTotal, p.Message, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: upsert progress: %w", err)
	}
	return nil
}

func (s *SQLStore) GetProgress(ctx context.Context, evaluationID string) (*contracts.EvaluationProgress, error) {
	query := `
		SELECT id, evaluation_id, progress_percent, current_phase,
			current_heuristic, tests_completed, tests_total, message, updated_at
		FROM evaluation_progress WHERE evaluation_id = $1
	`
	var p contracts.EvaluationProgress
	err := s.db.QueryRowContext(ctx, query, evaluationID).Scan(
		&p.ID, &p.EvaluationID, &p.ProgressPercent, &p.CurrentPhase,
		&p.CurrentHeuristic, &p.TestsCompleted, &p.TestsTotal, &p.Message, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get progress: %w", err)
	}
	return &p, nil
}

func (s *SQLStore) DeleteProgress(ctx context.Context, evaluationID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM evaluation_progress WHERE evaluation_id = $1`, evaluationID)
	if err != nil {
		return fmt.Errorf("store: delete progress: %w", err)
	}
	return nil
}

func (s *SQLStore) InsertFindings(ctx context.Context, findings []contracts.HeuristicFinding) error {
	query := `
		INSERT INTO heuristic_findings (
			evaluation_id, heuristic_type, severity, severity_score,
			confidence_level, detection_count, example_instances,
			pattern_description, test_cases_run, mean_bias_score,
			std_deviation, ci_low, ci_high
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	for _, f := range findings {
		_, err := s.db.ExecContext(ctx, query,
			f.EvaluationID, string(f.HeuristicType), string(f.Severity), f.SeverityScore,
			f.ConfidenceLevel, f.DetectionCount, marshalJSON(f.ExampleInstances),
			f.PatternDescription, f.TestCasesRun, f.MeanBiasScore,
			f.StdDeviation, f.ConfidenceInterval.Low, f.ConfidenceInterval.High,
		)
		if err != nil {
			return fmt.Errorf("store: insert finding %s: %w", f.HeuristicType, err)
		}
	}
	return nil
}

func (s *SQLStore) ListFindings(ctx context.Context, evaluationID string) ([]contracts.HeuristicFinding, error) {
	query := `
		SELECT evaluation_id, heuristic_type, severity, severity_score,
			confidence_level, detection_count, example_instances,
			pattern_description, test_cases_run, mean_bias_score,
			std_deviation, ci_low, ci_high
		FROM heuristic_findings WHERE evaluation_id = $1
		ORDER BY severity_score DESC
	`
	rows, err := s.db.QueryContext(ctx, query, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("store: list findings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var findings []contracts.HeuristicFinding
	for rows.Next() {
		var f contracts.HeuristicFinding
		var examples string
		if err := rows.Scan(
			&f.EvaluationID, &f.HeuristicType, &f.Severity, &f.SeverityScore,
			&f.ConfidenceLevel, &f.DetectionCount, &examples,
			&f.PatternDescription, &f.TestCasesRun, &f.MeanBiasScore,
			&f.StdDeviation, &f.ConfidenceInterval.Low, &f.ConfidenceInterval.High,
		); err != nil {
			return nil, err
		}
		unmarshalJSON(examples, &f.ExampleInstances)
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

func (s *SQLStore) InsertRecommendations(ctx context.Context, recs []contracts.Recommendation) error {
	query := `
		INSERT INTO recommendations (
			evaluation_id, heuristic_type, priority, action_title,
			technical_description, simplified_description,
			estimated_impact, implementation_difficulty
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, r := range recs {
		_, err := s.db.ExecContext(ctx, query,
			r.EvaluationID, string(r.HeuristicType), r.Priority, r.ActionTitle,
			r.TechnicalDescription, r.SimplifiedDescription,
			string(r.EstimatedImpact), string(r.Difficulty),
		)
		if err != nil {
			return fmt.Errorf("store: insert recommendation: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) ListRecommendations(ctx context.Context, evaluationID string) ([]contracts.Recommendation, error) {
	query := `
		SELECT evaluation_id, heuristic_type, priority, action_title,
			technical_description, simplified_description,
			estimated_impact, implementation_difficulty
		FROM recommendations WHERE evaluation_id = $1
		ORDER BY priority DESC
	`
	rows, err := s.db.QueryContext(ctx, query, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("store: list recommendations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []contracts.Recommendation
	for rows.Next() {
		var r contracts.Recommendation
		if err := rows.Scan(
			&r.EvaluationID, &r.HeuristicType, &r.Priority, &r.ActionTitle,
			&r.TechnicalDescription, &r.SimplifiedDescription,
			&r.EstimatedImpact, &r.Difficulty,
		); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *SQLStore) InsertEvidenceReferences(ctx context.Context, refs []contracts.EvidenceReference) error {
	query := `
		INSERT INTO evidence_references (
			evaluation_id, test_case_id, reference_id, storage_location,
			storage_type, determinism_mode, seed_value, iterations_run,
			achieved_level, parameters_used, confidence_intervals,
			per_iteration_results
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	for _, ref := range refs {
		_, err := s.db.ExecContext(ctx, query,
			ref.EvaluationID, ref.TestCaseID, ref.ReferenceID, ref.StorageLocation,
			string(ref.StorageType), string(ref.DeterminismMode), ref.SeedValue, ref.IterationsRun,
			ref.AchievedLevel, marshalJSON(ref.ParametersUsed), marshalJSON(ref.ConfidenceIntervals),
			marshalJSON(ref.PerIterationResults),
		)
		if err != nil {
			return fmt.Errorf("store: insert evidence reference %s: %w", ref.ReferenceID, err)
		}
	}
	return nil
}

func (s *SQLStore) ListEvidenceReferences(ctx context.Context, evaluationID string) ([]contracts.EvidenceReference, error) {
	query := `
		SELECT evaluation_id, test_case_id, reference_id, storage_location,
			storage_type, determinism_mode, seed_value, iterations_run,
			achieved_level, parameters_used, confidence_intervals,
			per_iteration_results
		FROM evidence_references WHERE evaluation_id = $1
	`
	rows, err := s.db.QueryContext(ctx, query, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("store: list evidence references: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var refs []contracts.EvidenceReference
	for rows.Next() {
		var ref contracts.EvidenceReference
		var params, intervals, perIteration string
		if err := rows.Scan(
			&ref.EvaluationID, &ref.TestCaseID, &ref.ReferenceID, &ref.StorageLocation,
			&ref.StorageType, &ref.DeterminismMode, &ref.SeedValue, &ref.IterationsRun,
			&ref.AchievedLevel, &params, &intervals, &perIteration,
		); err != nil {
			return nil, err
		}
		unmarshalJSON(params, &ref.ParametersUsed)
		unmarshalJSON(intervals, &ref.ConfidenceIntervals)
		unmarshalJSON(perIteration, &ref.PerIterationResults)
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (s *SQLStore) InsertReproPack(ctx context.Context, pack *contracts.ReproPack) error {
	query := `
		INSERT INTO repro_packs (
			id, evaluation_run_id, content_hash, signature,
			signing_authority, signing_key_id, created_at, content
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		pack.ID, pack.EvaluationRunID, pack.ContentHash, pack.Signature,
		pack.SigningAuthority, pack.SigningKeyID, pack.CreatedAt, marshalJSON(pack.Content),
	)
	if err != nil {
		return fmt.Errorf("store: insert repro pack: %w", err)
	}
	return nil
}

func (s *SQLStore) GetReproPack(ctx context.Context, evaluationRunID string) (*contracts.ReproPack, error) {
	query := `
		SELECT id, evaluation_run_id, content_hash, signature,
			signing_authority, signing_key_id, created_at, content
		FROM repro_packs WHERE evaluation_run_id = $1
	`
	var pack contracts.ReproPack
	var content string
	err := s.db.QueryRowContext(ctx, query, evaluationRunID).Scan(
		&pack.ID, &pack.EvaluationRunID, &pack.ContentHash, &pack.Signature,
		&pack.SigningAuthority, &pack.SigningKeyID, &pack.CreatedAt, &content,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get repro pack: %w", err)
	}
	unmarshalJSON(content, &pack.Content)
	return &pack, nil
}

func (s *SQLStore) GetProfile(ctx context.Context, userID string) (*contracts.Profile, error) {
	var p contracts.Profile
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, team_id FROM profiles WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.TeamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get profile: %w", err)
	}
	return &p, nil
}

func (s *SQLStore) GetEvidenceConfig(ctx context.Context, teamID string) (*contracts.EvidenceCollectionConfig, error) {
	query := `
		SELECT team_id, storage_type, is_enabled, credentials_encrypted,
			configuration, last_tested_at
		FROM evidence_collection_configs WHERE team_id = $1
	`
	var cfg contracts.EvidenceCollectionConfig
	var configuration string
	var lastTested sql.NullTime
	err := s.db.QueryRowContext(ctx, query, teamID).Scan(
		&cfg.TeamID, &cfg.StorageType, &cfg.IsEnabled, &cfg.CredentialsEncrypted,
		&configuration, &lastTested,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get evidence config: %w", err)
	}
	unmarshalJSON(configuration, &cfg.Configuration)
	if lastTested.Valid {
		t := lastTested.Time
		cfg.LastTestedAt = &t
	}
	return &cfg, nil
}

func (s *SQLStore) GetLLMConfig(ctx context.Context, id string) (*contracts.LLMConfig, error) {
	query := `
		SELECT id, team_id, provider, model_name, base_url, api_key_encrypted
		FROM llm_configs WHERE id = $1
	`
	var cfg contracts.LLMConfig
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&cfg.ID, &cfg.TeamID, &cfg.Provider, &cfg.ModelName, &cfg.BaseURL, &cfg.APIKeyEncrypted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get llm config: %w", err)
	}
	return &cfg, nil
}

func (s *SQLStore) GetTeamSigningConfig(ctx context.Context, teamID string) (*contracts.TeamSigningConfig, error) {
	var cfg contracts.TeamSigningConfig
	err := s.db.QueryRowContext(ctx,
		`SELECT team_id, signing_mode FROM team_signing_configs WHERE team_id = $1`, teamID,
	).Scan(&cfg.TeamID, &cfg.SigningMode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get team signing config: %w", err)
	}
	return &cfg, nil
}

func (s *SQLStore) GetActiveSigningKey(ctx context.Context, teamID string) (*contracts.SigningKey, error) {
	query := `
		SELECT id, team_id, authority, status, public_key_pem, private_key_encrypted
		FROM signing_keys WHERE team_id = $1 AND status = 'active'
		LIMIT 1
	`
	return s.scanSigningKey(s.db.QueryRowContext(ctx, query, teamID))
}

func (s *SQLStore) GetSigningKeyByAuthority(ctx context.Context, authority string) (*contracts.SigningKey, error) {
	query := `
		SELECT id, team_id, authority, status, public_key_pem, private_key_encrypted
		FROM signing_keys WHERE authority = $1 AND status = 'active'
		LIMIT 1
	`
	return s.scanSigningKey(s.db.QueryRowContext(ctx, query, authority))
}

func (s *SQLStore) scanSigningKey(row *sql.Row) (*contracts.SigningKey, error) {
	var key contracts.SigningKey
	err := row.Scan(&key.ID, &key.TeamID, &key.Authority, &key.Status, &key.PublicKeyPEM, &key.PrivateKeyEncrypted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get signing key: %w", err)
	}
	return &key, nil
}

var _ Store = (*SQLStore)(nil)
