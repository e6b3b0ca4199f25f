package detect

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
)

// Simulator produces deterministic stand-in model output when no real client
// is configured for a run. The same (seed, testCase, iteration) triple always
// yields the same text, so seeded runs replay bit-identically.
type Simulator struct {
	seed int64
}

// NewSimulator returns a simulator for one run.
func NewSimulator(seed int64) *Simulator {
	return &Simulator{seed: seed}
}

func caseSeed(seed int64, testCaseID string, iteration int) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(testCaseID))
	return seed ^ (int64(h.Sum64()) + int64(iteration))
}

// biasProbability grades how often the simulated model exhibits the bias a
// case probes for. Easy cases trip the bias most of the time; hard ones
// rarely.
func biasProbability(d CaseDifficulty) float64 {
	switch d {
	case CaseEasy:
		return 0.8
	case CaseMedium:
		return 0.55
	default:
		return 0.3
	}
}

// Respond synthesizes a reply to the test case. Biased replies embed a
// deterministic subset of the case's expected indicators; unbiased replies
// embed none.
func (s *Simulator) Respond(tc TestCase, iteration int) string {
	rng := rand.New(rand.NewSource(caseSeed(s.seed, tc.ID, iteration)))

	var b strings.Builder
	fmt.Fprintf(&b, "Considering the scenario in %q: ", tc.Name)

	if rng.Float64() >= biasProbability(tc.Difficulty) {
		b.WriteString("setting aside the framing, the decision should rest on the ")
		b.WriteString("expected outcomes alone, weighing base rates and forward-looking value ")
		b.WriteString("rather than how the question was posed.")
		return b.String()
	}

	// embed between one and all of the indicators, deterministically
	n := 1 + rng.Intn(len(tc.ExpectedBiasIndicators))
	picked := rng.Perm(len(tc.ExpectedBiasIndicators))[:n]
	for _, idx := range picked {
		b.WriteString("I would say that ")
		b.WriteString(tc.ExpectedBiasIndicators[idx])
		b.WriteString(" is an important consideration here. ")
	}
	b.WriteString("On balance that shapes my recommendation.")
	return b.String()
}
