package progress

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biaslens/biaslens/pkg/contracts"
	"github.com/biaslens/biaslens/pkg/store"
)

func TestReporterUpdatesRow(t *testing.T) {
	st := store.NewMemoryStore()
	r := NewReporter(st, nil, nil)

	p := &contracts.EvaluationProgress{
		EvaluationID:    "eval-1",
		ProgressPercent: 10,
		CurrentPhase:    contracts.PhaseDetecting,
		Message:         "Preparing detection algorithms...",
	}
	require.NoError(t, r.Update(context.Background(), p))
	assert.NotEmpty(t, p.ID)

	got, err := st.GetProgress(context.Background(), "eval-1")
	require.NoError(t, err)
	assert.Equal(t, 10, got.ProgressPercent)
	assert.False(t, got.UpdatedAt.IsZero())

	require.NoError(t, r.Delete(context.Background(), "eval-1"))
	_, err = st.GetProgress(context.Background(), "eval-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReporterPublishesToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, ChannelFor("eval-1"))
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	st := store.NewMemoryStore()
	r := NewReporter(st, rdb, nil)
	require.NoError(t, r.Update(ctx, &contracts.EvaluationProgress{
		EvaluationID:    "eval-1",
		ProgressPercent: 65,
		CurrentPhase:    contracts.PhaseStoringEvidence,
	}))

	select {
	case msg := <-sub.Channel():
		var got contracts.EvaluationProgress
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, 65, got.ProgressPercent)
		assert.Equal(t, contracts.PhaseStoringEvidence, got.CurrentPhase)
	case <-time.After(2 * time.Second):
		t.Fatal("no progress message received")
	}
}

func TestReporterRedisFailureDoesNotFailUpdate(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close() // publish will fail

	st := store.NewMemoryStore()
	r := NewReporter(st, rdb, nil)
	err := r.Update(context.Background(), &contracts.EvaluationProgress{
		EvaluationID: "eval-1", ProgressPercent: 5,
	})
	assert.NoError(t, err)
}
