// Package observability — BiasLens-specific instrumentation helpers.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BiasLens semantic convention attributes.
var (
	// Evaluation attributes
	AttrEvaluationID   = attribute.Key("biaslens.evaluation.id")
	AttrTeamID         = attribute.Key("biaslens.team.id")
	AttrIterationCount = attribute.Key("biaslens.evaluation.iterations")

	// Model attributes
	AttrModelProvider   = attribute.Key("biaslens.model.provider")
	AttrModelName       = attribute.Key("biaslens.model.name")
	AttrDeterminismMode = attribute.Key("biaslens.determinism.mode")

	// Detection attributes
	AttrHeuristic = attribute.Key("biaslens.heuristic")

	// Evidence attributes
	AttrEvidenceStorage = attribute.Key("biaslens.evidence.storage_type")
	AttrEvidenceShipped = attribute.Key("biaslens.evidence.shipped")

	// Repro pack attributes
	AttrPackAuthority = attribute.Key("biaslens.pack.authority")
	AttrPackValid     = attribute.Key("biaslens.pack.valid")
)

// EvaluationOperation creates attributes for evaluation runs.
func EvaluationOperation(evaluationID, provider, mode string, iterations int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEvaluationID.String(evaluationID),
		AttrModelProvider.String(provider),
		AttrDeterminismMode.String(mode),
		AttrIterationCount.Int64(iterations),
	}
}

// DetectionOperation creates attributes for one heuristic's detection pass.
func DetectionOperation(evaluationID, heuristic string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEvaluationID.String(evaluationID),
		AttrHeuristic.String(heuristic),
	}
}

// EvidenceOperation creates attributes for evidence shipment.
func EvidenceOperation(evaluationID, storageType string, shipped bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEvaluationID.String(evaluationID),
		AttrEvidenceStorage.String(storageType),
		AttrEvidenceShipped.Bool(shipped),
	}
}

// PackVerification creates attributes for repro pack verification.
func PackVerification(authority string, valid bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrPackAuthority.String(authority),
		AttrPackValid.Bool(valid),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus sets the span status based on error.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
