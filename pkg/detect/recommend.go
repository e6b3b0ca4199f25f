package detect

import "github.com/biaslens/biaslens/pkg/contracts"

// recommendationTemplates are the mitigations offered per heuristic. The
// orchestrator attaches the evaluation, computes a priority from the
// finding, and keeps the top entries.
var recommendationTemplates = map[contracts.HeuristicType][]contracts.Recommendation{
	contracts.Anchoring: {
		{
			ActionTitle:           "Strip numeric anchors from prompts",
			TechnicalDescription:  "Preprocess user input to remove or neutralize reference values (prices, estimates, prior figures) before the model produces its own estimate, then reintroduce them for comparison.",
			SimplifiedDescription: "Ask the model for its own number before showing it anyone else's.",
			EstimatedImpact:       contracts.ImpactHigh,
			Difficulty:            contracts.DifficultyModerate,
		},
		{
			ActionTitle:           "Elicit estimates as ranges with rationale",
			TechnicalDescription:  "Require the model to produce a low/likely/high range with an explicit justification for each bound, which dilutes single-point anchor pull.",
			SimplifiedDescription: "Make the model give a range and explain it, not a single number.",
			EstimatedImpact:       contracts.ImpactMedium,
			Difficulty:            contracts.DifficultyEasy,
		},
	},
	contracts.LossAversion: {
		{
			ActionTitle:           "Mirror prompts across gain and loss frames",
			TechnicalDescription:  "For decisions with monetary or safety stakes, run the prompt in both framings and flag divergent recommendations for review instead of returning either one.",
			SimplifiedDescription: "Ask the question both ways and check the answers agree.",
			EstimatedImpact:       contracts.ImpactHigh,
			Difficulty:            contracts.DifficultyModerate,
		},
		{
			ActionTitle:           "Require expected-value reasoning in outputs",
			TechnicalDescription:  "Instruct the model to state the expected value of each option explicitly before recommending, making asymmetric loss weighting visible.",
			SimplifiedDescription: "Have the model show the math before picking an option.",
			EstimatedImpact:       contracts.ImpactMedium,
			Difficulty:            contracts.DifficultyEasy,
		},
	},
	contracts.SunkCost: {
		{
			ActionTitle:           "Mask prior-investment details at decision time",
			TechnicalDescription:  "Redact sunk amounts (money, time, effort already spent) from the decision prompt and provide only forward-looking costs and benefits.",
			SimplifiedDescription: "Hide what was already spent when asking what to do next.",
			EstimatedImpact:       contracts.ImpactHigh,
			Difficulty:            contracts.DifficultyModerate,
		},
		{
			ActionTitle:           "Add a zero-base restatement step",
			TechnicalDescription:  "Before recommending continuation, require the model to restate the decision as if starting fresh today and check the two answers for consistency.",
			SimplifiedDescription: "Ask: would you start this project today from scratch?",
			EstimatedImpact:       contracts.ImpactMedium,
			Difficulty:            contracts.DifficultyEasy,
		},
	},
	contracts.ConfirmationBias: {
		{
			ActionTitle:           "Mandate a disconfirming-evidence section",
			TechnicalDescription:  "Require every evidence summary to include the strongest findings against the stated position before any supporting material is presented.",
			SimplifiedDescription: "Make the model argue the other side first.",
			EstimatedImpact:       contracts.ImpactHigh,
			Difficulty:            contracts.DifficultyEasy,
		},
		{
			ActionTitle:           "Separate belief statements from research queries",
			TechnicalDescription:  "Rewrite user queries to remove stated conclusions before retrieval or summarization so the search is not steered toward agreement.",
			SimplifiedDescription: "Don't tell the model what you already believe before asking.",
			EstimatedImpact:       contracts.ImpactMedium,
			Difficulty:            contracts.DifficultyModerate,
		},
	},
	contracts.AvailabilityHeuristic: {
		{
			ActionTitle:           "Inject base-rate data into risk prompts",
			TechnicalDescription:  "Augment risk and frequency questions with authoritative incidence statistics so the model grounds its answer in rates rather than salience.",
			SimplifiedDescription: "Give the model the real statistics alongside the question.",
			EstimatedImpact:       contracts.ImpactHigh,
			Difficulty:            contracts.DifficultyModerate,
		},
		{
			ActionTitle:           "Flag recency-driven reasoning",
			TechnicalDescription:  "Post-process outputs for phrases that weight recent or vivid events and attach a caution when frequency claims lack cited data.",
			SimplifiedDescription: "Warn when an answer leans on what's been in the news.",
			EstimatedImpact:       contracts.ImpactMedium,
			Difficulty:            contracts.DifficultyComplex,
		},
	},
}

// Recommendations returns the mitigation templates for a heuristic.
func Recommendations(h contracts.HeuristicType) []contracts.Recommendation {
	return recommendationTemplates[h]
}

// ImpactValue maps an impact level onto the 0–100 scale used by the
// recommendation priority formula.
func ImpactValue(l contracts.ImpactLevel) float64 {
	switch l {
	case contracts.ImpactHigh:
		return 90
	case contracts.ImpactMedium:
		return 60
	default:
		return 30
	}
}
