// Package repropack assembles, signs, and verifies the reproducibility
// manifest of a completed evaluation. The manifest carries prompt references
// and output hashes only; raw model traffic never enters the pack.
package repropack

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/biaslens/biaslens/pkg/canonical"
	"github.com/biaslens/biaslens/pkg/contracts"
	"github.com/biaslens/biaslens/pkg/detect"
)

// SchemaVersion is the manifest schema emitted by this builder. Verification
// accepts any 1.x pack.
const SchemaVersion = "1.2.0"

// DetectorVersion identifies the detection framework that produced a pack.
const DetectorVersion = "1.4.0"

// Material is the resolved signing identity for one pack.
type Material struct {
	Mode         contracts.SigningMode
	Authority    string
	KeyID        string
	Signer       *canonical.Signer
	PublicKeyPEM string
}

// PackWriter is the slice of the store the builder needs.
type PackWriter interface {
	InsertReproPack(ctx context.Context, pack *contracts.ReproPack) error
}

// Inputs carries everything the manifest is assembled from.
type Inputs struct {
	Evaluation *contracts.Evaluation
	Outputs    []detect.OutputRecord

	Provider  string
	ModelName string

	StartedAt    time.Time
	AggregatedAt time.Time
	CompletedAt  time.Time
}

// Builder assembles and persists signed repro packs.
type Builder struct {
	signing *Material
	packs   PackWriter
	logger  *slog.Logger
}

// NewBuilder wires a builder. The signing material must already be resolved;
// a nil material is a caller bug surfaced at Build time.
func NewBuilder(signing *Material, packs PackWriter, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{signing: signing, packs: packs, logger: logger.With("component", "repropack")}
}

// Build assembles the manifest, computes the canonical hash, signs it, and
// inserts exactly one pack row for the evaluation.
func (b *Builder) Build(ctx context.Context, in Inputs) (*contracts.ReproPack, error) {
	if b.signing == nil || b.signing.Signer == nil {
		return nil, fmt.Errorf("repropack: no signing material for evaluation %s", in.Evaluation.ID)
	}

	manifest := b.assemble(in)

	hash, err := canonical.Hash(manifest)
	if err != nil {
		return nil, fmt.Errorf("repropack: hash manifest: %w", err)
	}
	signature, err := b.signing.Signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("repropack: sign manifest: %w", err)
	}

	pack := &contracts.ReproPack{
		ID:               uuid.New().String(),
		EvaluationRunID:  in.Evaluation.ID,
		ContentHash:      hash,
		Signature:        signature,
		SigningAuthority: b.signing.Authority,
		SigningKeyID:     b.signing.KeyID,
		CreatedAt:        time.Now().UTC(),
		Content:          manifest,
	}
	if err := b.packs.InsertReproPack(ctx, pack); err != nil {
		return nil, fmt.Errorf("repropack: persist pack: %w", err)
	}

	b.logger.Info("repro pack created",
		"evaluation_id", in.Evaluation.ID,
		"pack_id", pack.ID,
		"content_hash", hash,
		"signing_authority", pack.SigningAuthority)
	return pack, nil
}

func (b *Builder) assemble(in Inputs) map[string]interface{} {
	e := in.Evaluation

	promptSet := make([]interface{}, 0, len(in.Outputs))
	outputHashes := make([]interface{}, 0, len(in.Outputs))
	caseIDs := map[string]bool{}
	for _, rec := range in.Outputs {
		heuristic := heuristicOf(e, rec.TestCaseID)
		promptSet = append(promptSet, map[string]interface{}{
			"prompt_reference_id": rec.ReferenceID,
			"test_case_id":        rec.TestCaseID,
			"iteration":           rec.Iteration,
			"heuristic_type":      string(heuristic),
			"captured_at":         rec.CapturedAt.UTC().Format(time.RFC3339),
		})
		outputHashes = append(outputHashes, map[string]interface{}{
			"prompt_reference_id": rec.ReferenceID,
			"test_case_id":        rec.TestCaseID,
			"iteration":           rec.Iteration,
			"sha256":              rec.SHA256,
		})
		caseIDs[rec.TestCaseID] = true
	}

	heuristics := make([]interface{}, 0, len(e.HeuristicTypes))
	for _, h := range e.HeuristicTypes {
		heuristics = append(heuristics, string(h))
	}

	var evidenceRefID interface{}
	if e.EvidenceReferenceID != "" {
		evidenceRefID = e.EvidenceReferenceID
	}

	manifest := map[string]interface{}{
		"schema_version":    SchemaVersion,
		"evaluation_run_id": e.ID,
		"detector_version":  DetectorVersion,
		"timestamps": map[string]interface{}{
			"started_at":    in.StartedAt.UTC().Format(time.RFC3339),
			"aggregated_at": in.AggregatedAt.UTC().Format(time.RFC3339),
			"completed_at":  in.CompletedAt.UTC().Format(time.RFC3339),
		},
		"model_configuration": map[string]interface{}{
			"ai_system_name":      e.AISystemName,
			"heuristic_types":     heuristics,
			"iteration_count":     e.IterationCount,
			"iterations_run":      e.IterationsRun,
			"determinism_mode":    string(e.DeterminismMode),
			"seed_value":          e.SeedValue,
			"decoding_parameters": e.ParametersUsed,
		},
		"test_suite": map[string]interface{}{
			"heuristics":     heuristics,
			"iterations":     e.IterationCount,
			"iterations_run": e.IterationsRun,
		},
		"prompt_set":    promptSet,
		"output_hashes": outputHashes,
		"aggregate_metrics": map[string]interface{}{
			"overall_score":        e.OverallScore,
			"zone_status":          string(e.ZoneStatus),
			"confidence_intervals": e.ConfidenceIntervals,
		},
		"evidence_reference_id": evidenceRefID,
		"replay_instructions":   b.replayInstructions(in, len(caseIDs), heuristics),
		"signing": map[string]interface{}{
			"mode":       string(b.signing.Mode),
			"authority":  b.signing.Authority,
			"key_id":     b.signing.KeyID,
			"public_key": b.signing.PublicKeyPEM,
		},
	}
	return manifest
}

func (b *Builder) replayInstructions(in Inputs, caseCount int, heuristics []interface{}) map[string]interface{} {
	e := in.Evaluation

	instructions := map[string]interface{}{
		"test_suite": map[string]interface{}{
			"cases":          caseCount,
			"iterations":     e.IterationCount,
			"iterations_run": e.IterationsRun,
		},
		"model": map[string]interface{}{
			"provider":            in.Provider,
			"model_name":          in.ModelName,
			"sampling_parameters": e.ParametersUsed,
			"determinism": map[string]interface{}{
				"mode":           string(e.DeterminismMode),
				"seed":           e.SeedValue,
				"achieved_level": e.AchievedLevel,
			},
		},
		"detector": map[string]interface{}{
			"version":    DetectorVersion,
			"heuristics": heuristics,
		},
		"replay_steps": []interface{}{
			"Configure the model endpoint with the provider, model name, and sampling parameters listed under model.",
			"Apply the determinism settings (mode and seed) before issuing any calls.",
			"Run each heuristic's test-case catalog round-robin for the recorded iteration count, preserving iteration order.",
			"Hash every model output with SHA-256 and compare against output_hashes by prompt_reference_id.",
			"Recompute aggregate metrics with the same detector version and compare against aggregate_metrics.",
		},
	}

	if e.EvidenceReferenceID != "" {
		instructions["evidence"] = map[string]interface{}{
			"reference_id": e.EvidenceReferenceID,
			"storage_type": e.EvidenceStorageType,
			"link_hint":    "look up per-iteration records by referenceId in your evidence store",
		}
	}
	if len(e.ConfidenceIntervals) > 0 {
		instructions["metrics"] = map[string]interface{}{
			"confidence_intervals": e.ConfidenceIntervals,
		}
	}
	return instructions
}

// heuristicOf recovers the heuristic a test case belongs to from its catalog.
// Falls back to the evaluation's first heuristic for unknown IDs.
func heuristicOf(e *contracts.Evaluation, testCaseID string) contracts.HeuristicType {
	for _, h := range e.HeuristicTypes {
		for _, tc := range detect.Catalog(h) {
			if tc.ID == testCaseID {
				return h
			}
		}
	}
	if len(e.HeuristicTypes) > 0 {
		return e.HeuristicTypes[0]
	}
	return ""
}
