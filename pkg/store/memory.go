package store

import (
	"context"
	"sort"
	"sync"

	"github.com/biaslens/biaslens/pkg/contracts"
)

// MemoryStore is a map-backed Store used by tests and as a scratch backend.
type MemoryStore struct {
	mu sync.RWMutex

	evaluations map[string]contracts.Evaluation
	progress    map[string]contracts.EvaluationProgress // by evaluation ID
	findings    map[string][]contracts.HeuristicFinding
	recs        map[string][]contracts.Recommendation
	refs        map[string][]contracts.EvidenceReference
	packs       map[string]contracts.ReproPack // by evaluation run ID

	Profiles        map[string]contracts.Profile
	EvidenceConfigs map[string]contracts.EvidenceCollectionConfig
	LLMConfigs      map[string]contracts.LLMConfig
	SigningConfigs  map[string]contracts.TeamSigningConfig
	SigningKeys     []contracts.SigningKey
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		evaluations:     map[string]contracts.Evaluation{},
		progress:        map[string]contracts.EvaluationProgress{},
		findings:        map[string][]contracts.HeuristicFinding{},
		recs:            map[string][]contracts.Recommendation{},
		refs:            map[string][]contracts.EvidenceReference{},
		packs:           map[string]contracts.ReproPack{},
		Profiles:        map[string]contracts.Profile{},
		EvidenceConfigs: map[string]contracts.EvidenceCollectionConfig{},
		LLMConfigs:      map[string]contracts.LLMConfig{},
		SigningConfigs:  map[string]contracts.TeamSigningConfig{},
	}
}

func (m *MemoryStore) CreateEvaluation(_ context.Context, e *contracts.Evaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluations[e.ID] = *e
	return nil
}

func (m *MemoryStore) GetEvaluation(_ context.Context, id string) (*contracts.Evaluation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.evaluations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m *MemoryStore) UpdateEvaluation(_ context.Context, e *contracts.Evaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.evaluations[e.ID]; !ok {
		return ErrNotFound
	}
	m.evaluations[e.ID] = *e
	return nil
}

func (m *MemoryStore) GetEvaluationStatus(_ context.Context, id string) (contracts.EvaluationStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.evaluations[id]
	if !ok {
		return "", ErrNotFound
	}
	return e.Status, nil
}

func (m *MemoryStore) SetEvaluationStatus(_ context.Context, id string, status contracts.EvaluationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.evaluations[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = status
	m.evaluations[id] = e
	return nil
}

func (m *MemoryStore) SetEvaluationEvidence(_ context.Context, id, referenceID, storageType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.evaluations[id]
	if !ok {
		return ErrNotFound
	}
	e.EvidenceReferenceID = referenceID
	e.EvidenceStorageType = storageType
	m.evaluations[id] = e
	return nil
}

func (m *MemoryStore) ListCompletedEvaluations(_ context.Context, teamID, aiSystemName string, limit int) ([]contracts.Evaluation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var evals []contracts.Evaluation
	for _, e := range m.evaluations {
		if e.TeamID == teamID && e.AISystemName == aiSystemName && e.Status == contracts.StatusCompleted {
			evals = append(evals, e)
		}
	}
	sort.Slice(evals, func(i, j int) bool { return evals[i].CreatedAt.Before(evals[j].CreatedAt) })
	if limit > 0 && len(evals) > limit {
		evals = evals[:limit]
	}
	return evals, nil
}

func (m *MemoryStore) UpsertProgress(_ context.Context, p *contracts.EvaluationProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = nowUTC()
	}
	m.progress[p.EvaluationID] = *p
	return nil
}

func (m *MemoryStore) GetProgress(_ context.Context, evaluationID string) (*contracts.EvaluationProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.progress[evaluationID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) DeleteProgress(_ context.Context, evaluationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.progress, evaluationID)
	return nil
}

func (m *MemoryStore) InsertFindings(_ context.Context, findings []contracts.HeuristicFinding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range findings {
		m.findings[f.EvaluationID] = append(m.findings[f.EvaluationID], f)
	}
	return nil
}

func (m *MemoryStore) ListFindings(_ context.Context, evaluationID string) ([]contracts.HeuristicFinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	findings := append([]contracts.HeuristicFinding(nil), m.findings[evaluationID]...)
	sort.Slice(findings, func(i, j int) bool { return findings[i].SeverityScore > findings[j].SeverityScore })
	return findings, nil
}

func (m *MemoryStore) InsertRecommendations(_ context.Context, recs []contracts.Recommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		m.recs[r.EvaluationID] = append(m.recs[r.EvaluationID], r)
	}
	return nil
}

func (m *MemoryStore) ListRecommendations(_ context.Context, evaluationID string) ([]contracts.Recommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := append([]contracts.Recommendation(nil), m.recs[evaluationID]...)
	sort.Slice(recs, func(i, j int) bool { return recs[i].Priority > recs[j].Priority })
	return recs, nil
}

func (m *MemoryStore) InsertEvidenceReferences(_ context.Context, refs []contracts.EvidenceReference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ref := range refs {
		m.refs[ref.EvaluationID] = append(m.refs[ref.EvaluationID], ref)
	}
	return nil
}

func (m *MemoryStore) ListEvidenceReferences(_ context.Context, evaluationID string) ([]contracts.EvidenceReference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]contracts.EvidenceReference(nil), m.refs[evaluationID]...), nil
}

func (m *MemoryStore) InsertReproPack(_ context.Context, pack *contracts.ReproPack) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packs[pack.EvaluationRunID] = *pack
	return nil
}

func (m *MemoryStore) GetReproPack(_ context.Context, evaluationRunID string) (*contracts.ReproPack, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pack, ok := m.packs[evaluationRunID]
	if !ok {
		return nil, ErrNotFound
	}
	return &pack, nil
}

func (m *MemoryStore) GetProfile(_ context.Context, userID string) (*contracts.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.Profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) GetEvidenceConfig(_ context.Context, teamID string) (*contracts.EvidenceCollectionConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.EvidenceConfigs[teamID]
	if !ok {
		return nil, ErrNotFound
	}
	return &cfg, nil
}

func (m *MemoryStore) GetLLMConfig(_ context.Context, id string) (*contracts.LLMConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.LLMConfigs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &cfg, nil
}

func (m *MemoryStore) GetTeamSigningConfig(_ context.Context, teamID string) (*contracts.TeamSigningConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.SigningConfigs[teamID]
	if !ok {
		return nil, ErrNotFound
	}
	return &cfg, nil
}

func (m *MemoryStore) GetActiveSigningKey(_ context.Context, teamID string) (*contracts.SigningKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, key := range m.SigningKeys {
		if key.TeamID == teamID && key.Status == "active" {
			k := key
			return &k, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetSigningKeyByAuthority(_ context.Context, authority string) (*contracts.SigningKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, key := range m.SigningKeys {
		if key.Authority == authority && key.Status == "active" {
			k := key
			return &k, nil
		}
	}
	return nil, ErrNotFound
}

var _ Store = (*MemoryStore)(nil)
