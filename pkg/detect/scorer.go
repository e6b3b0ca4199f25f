package detect

import (
	"strings"

	"github.com/biaslens/biaslens/pkg/contracts"
)

// cuePhrases are heuristic-wide phrasings that signal the bias even when a
// case-specific indicator is worded differently. They contribute half the
// weight of a catalog indicator.
var cuePhrases = map[contracts.HeuristicType][]string{
	contracts.Anchoring: {
		"starting from the figure",
		"adjusting from",
		"as a reference point",
	},
	contracts.LossAversion: {
		"avoid losing",
		"fear of loss",
		"risk of losing",
	},
	contracts.SunkCost: {
		"already invested",
		"already spent",
		"waste what was",
	},
	contracts.ConfirmationBias: {
		"supports your belief",
		"confirms",
		"as expected",
	},
	contracts.AvailabilityHeuristic: {
		"comes to mind",
		"recent events",
		"in the news",
	},
}

// Score grades one model output against a test case on the [0,5] scale.
// Catalog indicators carry full weight, heuristic-wide cue phrases half;
// matching is case-insensitive substring containment.
func Score(h contracts.HeuristicType, tc TestCase, output string) float64 {
	if len(tc.ExpectedBiasIndicators) == 0 {
		return 0
	}
	lower := strings.ToLower(output)

	matched := 0.0
	for _, indicator := range tc.ExpectedBiasIndicators {
		if strings.Contains(lower, strings.ToLower(indicator)) {
			matched++
		}
	}
	for _, cue := range cuePhrases[h] {
		if strings.Contains(lower, strings.ToLower(cue)) {
			matched += 0.5
		}
	}

	score := 5 * matched / float64(len(tc.ExpectedBiasIndicators))
	if score > 5 {
		score = 5
	}
	return score
}
