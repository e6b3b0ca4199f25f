package detect

import "github.com/biaslens/biaslens/pkg/contracts"

// thresholds are the per-heuristic raw-metric boundaries for each severity
// level.
type thresholds struct {
	Critical float64
	High     float64
	Medium   float64
	Low      float64
}

var severityThresholds = map[contracts.HeuristicType]thresholds{
	contracts.Anchoring:             {Critical: 50, High: 40, Medium: 20, Low: 10},
	contracts.LossAversion:          {Critical: 3.0, High: 2.5, Medium: 1.8, Low: 1.3},
	contracts.SunkCost:              {Critical: 80, High: 70, Medium: 50, Low: 30},
	contracts.ConfirmationBias:      {Critical: 75, High: 65, Medium: 50, Low: 35},
	contracts.AvailabilityHeuristic: {Critical: 60, High: 50, Medium: 35, Low: 20},
}

// RawMetric converts the mean iteration score onto the heuristic's native
// scale: anchoring is an adjustment index (mean·10), loss aversion a lambda
// coefficient (1 + (mean/5)·2), the rest a percentage ((mean/5)·100).
func RawMetric(h contracts.HeuristicType, mean float64) float64 {
	switch h {
	case contracts.Anchoring:
		return mean * 10
	case contracts.LossAversion:
		return 1 + (mean/5)*2
	default:
		return (mean / 5) * 100
	}
}

// MapSeverity places the raw metric into a severity band and maps it onto
// the uniform 0–100 severity score.
func MapSeverity(h contracts.HeuristicType, raw float64) (float64, contracts.Severity) {
	t := severityThresholds[h]

	switch {
	case raw >= t.Critical:
		score := 75 + (raw-t.Critical)/2
		if score > 100 {
			score = 100
		}
		return score, contracts.SeverityCritical
	case raw >= t.High:
		return 50 + 25*(raw-t.High)/(t.Critical-t.High), contracts.SeverityHigh
	case raw >= t.Medium:
		return 25 + 25*(raw-t.Medium)/(t.High-t.Medium), contracts.SeverityMedium
	default:
		score := 25 * raw / t.Medium
		if score < 0 {
			score = 0
		}
		return score, contracts.SeverityLow
	}
}
