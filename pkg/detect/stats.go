package detect

import (
	"math"

	"github.com/biaslens/biaslens/pkg/contracts"
)

// detectionThreshold is the per-iteration score at which a call counts as a
// bias detection.
const detectionThreshold = 2.0

const z95 = 1.96

// Stats is the aggregate over one heuristic's iteration scores.
type Stats struct {
	Mean       float64
	StdDev     float64
	CI         contracts.ConfidenceInterval
	Detections int
	Confidence float64
}

// Aggregate computes mean, sample standard deviation, the two-sided 95%
// confidence interval (normal approximation), the detection count, and the
// detection confidence min(0.99, (detections/N)·(1 − 1/√N)).
func Aggregate(scores []float64) Stats {
	n := len(scores)
	if n == 0 {
		return Stats{}
	}

	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(n)

	variance := 0.0
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	stdDev := 0.0
	if n > 1 {
		stdDev = math.Sqrt(variance / float64(n-1))
	}

	margin := z95 * stdDev / math.Sqrt(float64(n))

	detections := 0
	for _, s := range scores {
		if s >= detectionThreshold {
			detections++
		}
	}

	confidence := (float64(detections) / float64(n)) * (1 - 1/math.Sqrt(float64(n)))
	if confidence > 0.99 {
		confidence = 0.99
	}

	return Stats{
		Mean:       mean,
		StdDev:     stdDev,
		CI:         contracts.ConfidenceInterval{Low: mean - margin, High: mean + margin},
		Detections: detections,
		Confidence: confidence,
	}
}
