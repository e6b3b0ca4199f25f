package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/biaslens/biaslens/pkg/contracts"
)

func TestComputeOverallScore(t *testing.T) {
	assert.Equal(t, 75.0, computeOverallScore(nil))

	// Zero confidence carries zero weight: falls back to the default.
	assert.Equal(t, 75.0, computeOverallScore([]contracts.HeuristicFinding{
		{SeverityScore: 90, ConfidenceLevel: 0},
	}))

	// Single weighted finding scores itself.
	assert.InDelta(t, 60.0, computeOverallScore([]contracts.HeuristicFinding{
		{SeverityScore: 60, ConfidenceLevel: 0.5},
	}), 1e-9)

	// Higher-severity findings carry more weight than the plain average.
	score := computeOverallScore([]contracts.HeuristicFinding{
		{SeverityScore: 90, ConfidenceLevel: 0.8},
		{SeverityScore: 30, ConfidenceLevel: 0.8},
	})
	assert.Greater(t, score, 60.0)
	assert.Less(t, score, 90.0)
}

func TestZoneBoundaries(t *testing.T) {
	assert.Equal(t, contracts.ZoneGreen, zoneFor(0))
	assert.Equal(t, contracts.ZoneGreen, zoneFor(80))
	assert.Equal(t, contracts.ZoneYellow, zoneFor(80.1))
	assert.Equal(t, contracts.ZoneYellow, zoneFor(90))
	assert.Equal(t, contracts.ZoneRed, zoneFor(90.1))
	assert.Equal(t, contracts.ZoneRed, zoneFor(100))
}

func TestRecommendationPriority(t *testing.T) {
	low := recommendationPriority(contracts.HeuristicFinding{SeverityScore: 0, ConfidenceLevel: 0}, contracts.ImpactLow)
	assert.Equal(t, 1, low)

	high := recommendationPriority(contracts.HeuristicFinding{SeverityScore: 100, ConfidenceLevel: 0.99}, contracts.ImpactHigh)
	assert.GreaterOrEqual(t, high, 8)
	assert.LessOrEqual(t, high, 10)

	mid := recommendationPriority(contracts.HeuristicFinding{SeverityScore: 50, ConfidenceLevel: 0.5}, contracts.ImpactMedium)
	// (0.6·50 + 30·0.5 + 0.1·60)/100·9 = 4.59 → floor+1 = 5
	assert.Equal(t, 5, mid)
}

func TestBuildRecommendationsTopSeven(t *testing.T) {
	findings := []contracts.HeuristicFinding{
		{HeuristicType: contracts.Anchoring, SeverityScore: 90, ConfidenceLevel: 0.9},
		{HeuristicType: contracts.SunkCost, SeverityScore: 70, ConfidenceLevel: 0.8},
		{HeuristicType: contracts.LossAversion, SeverityScore: 50, ConfidenceLevel: 0.6},
		{HeuristicType: contracts.ConfirmationBias, SeverityScore: 30, ConfidenceLevel: 0.4},
	}
	recs := buildRecommendations("eval-1", findings)

	assert.Len(t, recs, topRecommendations) // 8 candidates trimmed to 7
	for i := range recs {
		assert.Equal(t, "eval-1", recs[i].EvaluationID)
		assert.GreaterOrEqual(t, recs[i].Priority, 1)
		assert.LessOrEqual(t, recs[i].Priority, 10)
		if i > 0 {
			assert.GreaterOrEqual(t, recs[i-1].Priority, recs[i].Priority)
		}
	}
}
