package eval

import (
	"context"
	"fmt"
	"time"

	"github.com/biaslens/biaslens/pkg/contracts"
)

// trendWindow caps how many prior evaluations feed the trend block.
const trendWindow = 20

// driftMargin is how far above the historical mean the latest score must sit
// to raise a drift alert.
const driftMargin = 10.0

// TrendPoint is one completed evaluation in the system's history.
type TrendPoint struct {
	Timestamp time.Time            `json:"timestamp"`
	Score     float64              `json:"score"`
	Zone      contracts.ZoneStatus `json:"zone"`
}

// Trends summarizes how an AI system's bias score moves across evaluations.
type Trends struct {
	DataPoints   []TrendPoint         `json:"data_points"`
	CurrentZone  contracts.ZoneStatus `json:"current_zone,omitempty"`
	DriftAlert   bool                 `json:"drift_alert"`
	DriftMessage string               `json:"drift_message,omitempty"`
}

// ComputeTrends builds the trend block from the team's completed evaluations
// of the same AI system, oldest first.
func (s *Service) ComputeTrends(ctx context.Context, teamID, aiSystemName string) (*Trends, error) {
	evals, err := s.Store.ListCompletedEvaluations(ctx, teamID, aiSystemName, trendWindow)
	if err != nil {
		return nil, err
	}

	trends := &Trends{DataPoints: make([]TrendPoint, 0, len(evals))}
	for _, e := range evals {
		at := e.CreatedAt
		if e.CompletedAt != nil {
			at = *e.CompletedAt
		}
		trends.DataPoints = append(trends.DataPoints, TrendPoint{
			Timestamp: at,
			Score:     e.OverallScore,
			Zone:      e.ZoneStatus,
		})
	}
	if len(trends.DataPoints) == 0 {
		return trends, nil
	}

	latest := trends.DataPoints[len(trends.DataPoints)-1]
	trends.CurrentZone = latest.Zone

	if len(trends.DataPoints) > 1 {
		var sum float64
		previous := trends.DataPoints[:len(trends.DataPoints)-1]
		for _, p := range previous {
			sum += p.Score
		}
		mean := sum / float64(len(previous))
		if latest.Score > mean+driftMargin {
			trends.DriftAlert = true
			trends.DriftMessage = fmt.Sprintf(
				"Latest bias score %.1f is more than %.0f points above the historical mean %.1f; review recent model or prompt changes.",
				latest.Score, driftMargin, mean)
		}
	}
	return trends, nil
}
