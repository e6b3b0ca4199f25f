// Package progress writes the per-evaluation progress row and, when a Redis
// client is configured, publishes every update to the evaluation's change
// channel so pollers can subscribe instead.
package progress

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/biaslens/biaslens/pkg/contracts"
)

// channelPrefix is the pub/sub namespace of progress updates.
const channelPrefix = "evaluation_progress:"

// ChannelFor returns the pub/sub channel of one evaluation.
func ChannelFor(evaluationID string) string {
	return channelPrefix + evaluationID
}

// Rows is the slice of the store the reporter needs.
type Rows interface {
	UpsertProgress(ctx context.Context, p *contracts.EvaluationProgress) error
	DeleteProgress(ctx context.Context, evaluationID string) error
}

// Reporter fans progress updates out to the store row and the optional
// Redis channel. Publish failures never fail the evaluation; they are
// logged and dropped.
type Reporter struct {
	rows   Rows
	redis  redis.UniversalClient
	logger *slog.Logger
}

// NewReporter builds a reporter. rdb may be nil (no change stream).
func NewReporter(rows Rows, rdb redis.UniversalClient, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{rows: rows, redis: rdb, logger: logger.With("component", "progress")}
}

// Update writes one progress state. A missing ID is filled in; UpdatedAt is
// always stamped here so subscribers see a fresh timestamp.
func (r *Reporter) Update(ctx context.Context, p *contracts.EvaluationProgress) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.UpdatedAt = time.Now().UTC()

	if err := r.rows.UpsertProgress(ctx, p); err != nil {
		return err
	}
	r.publish(ctx, p)
	return nil
}

// Delete removes the progress row once an evaluation reaches a terminal
// phase and the grace period has passed.
func (r *Reporter) Delete(ctx context.Context, evaluationID string) error {
	return r.rows.DeleteProgress(ctx, evaluationID)
}

func (r *Reporter) publish(ctx context.Context, p *contracts.EvaluationProgress) {
	if r.redis == nil {
		return
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := r.redis.Publish(ctx, ChannelFor(p.EvaluationID), payload).Err(); err != nil {
		r.logger.Warn("progress publish failed", "evaluation_id", p.EvaluationID, "error", err)
	}
}
