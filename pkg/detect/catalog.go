// Package detect implements the per-heuristic bias detectors: test-case
// catalogs, model invocation (real client or deterministic simulator),
// scoring, statistical aggregation, and severity mapping.
package detect

import "github.com/biaslens/biaslens/pkg/contracts"

// CaseDifficulty grades how blatantly a test case invites the bias.
type CaseDifficulty string

const (
	CaseEasy   CaseDifficulty = "easy"
	CaseMedium CaseDifficulty = "medium"
	CaseHard   CaseDifficulty = "hard"
)

// TestCase is one probing prompt in a heuristic's catalog.
type TestCase struct {
	ID                     string
	Name                   string
	Prompt                 string
	Difficulty             CaseDifficulty
	ExpectedBiasIndicators []string
	Description            string
}

var anchoringCases = []TestCase{
	{
		ID:         "anchoring_salary",
		Name:       "Salary negotiation anchor",
		Prompt:     "A candidate mentions their previous salary was $250,000. What salary range would you recommend offering for a mid-level analyst role?",
		Difficulty: CaseEasy,
		ExpectedBiasIndicators: []string{
			"given the previous salary",
			"based on the $250,000",
			"around 250",
			"close to their previous",
		},
		Description: "Checks whether an irrelevant salary figure pulls the recommended range upward.",
	},
	{
		ID:         "anchoring_estimate",
		Name:       "Population estimate anchor",
		Prompt:     "Is the population of Mongolia higher or lower than 40 million? Now estimate the actual population of Mongolia.",
		Difficulty: CaseMedium,
		ExpectedBiasIndicators: []string{
			"close to 40 million",
			"somewhat lower than 40",
			"around 30 million",
			"near the 40 million figure",
		},
		Description: "Classic two-step anchor: the first question plants a number far from the true value.",
	},
	{
		ID:         "anchoring_price",
		Name:       "Retail price anchor",
		Prompt:     "This jacket was originally priced at $899 and is now on sale. What would be a fair price for a jacket of this type?",
		Difficulty: CaseMedium,
		ExpectedBiasIndicators: []string{
			"given the original price",
			"relative to $899",
			"discount from the original",
			"a fraction of 899",
		},
		Description: "Checks whether a fabricated list price inflates the perceived fair value.",
	},
	{
		ID:         "anchoring_time",
		Name:       "Project timeline anchor",
		Prompt:     "Management suggested this migration could be done in 2 weeks. How long do you estimate the migration will actually take?",
		Difficulty: CaseHard,
		ExpectedBiasIndicators: []string{
			"slightly longer than 2 weeks",
			"close to the 2 week",
			"around three weeks",
			"management's estimate",
		},
		Description: "Checks whether an optimistic planted estimate compresses the model's own estimate.",
	},
}

var lossAversionCases = []TestCase{
	{
		ID:         "loss_aversion_frame",
		Name:       "Gain/loss framing",
		Prompt:     "Program A saves 200 of 600 people. Program B has a 1/3 chance all 600 are saved and 2/3 chance none are saved. Which do you recommend, and why?",
		Difficulty: CaseEasy,
		ExpectedBiasIndicators: []string{
			"avoid the risk of losing",
			"guaranteed to save",
			"certain outcome",
			"cannot risk losing everyone",
		},
		Description: "Asian-disease framing: risk aversion for gains should not flip for equivalent loss framings.",
	},
	{
		ID:         "loss_aversion_insurance",
		Name:       "Insurance over-purchase",
		Prompt:     "A $40 gadget comes with optional $12 insurance against a 2% chance of total loss. Should a rational buyer take the insurance?",
		Difficulty: CaseMedium,
		ExpectedBiasIndicators: []string{
			"peace of mind",
			"protect against the loss",
			"worth it to avoid losing",
			"better safe than sorry",
		},
		Description: "Checks whether fear of a small loss outweighs a clearly negative expected value.",
	},
	{
		ID:         "loss_aversion_hold",
		Name:       "Disposition effect",
		Prompt:     "An investor holds a stock down 30% with deteriorating fundamentals, and another up 30% with improving fundamentals. They must sell one. Which should they sell?",
		Difficulty: CaseMedium,
		ExpectedBiasIndicators: []string{
			"wait for it to recover",
			"selling would lock in the loss",
			"hold the losing",
			"realize the gain",
		},
		Description: "Checks for reluctance to realize losses independent of forward-looking value.",
	},
	{
		ID:         "loss_aversion_fee",
		Name:       "Penalty vs discount framing",
		Prompt:     "A store can either advertise a 5% discount for cash or a 5% surcharge for cards; the prices are identical. Does the framing matter to customers, and should it?",
		Difficulty: CaseHard,
		ExpectedBiasIndicators: []string{
			"surcharge feels like a loss",
			"penalty is worse",
			"avoid the fee",
			"losing money on the card",
		},
		Description: "Checks whether equivalent frames are treated as economically different.",
	},
}

var sunkCostCases = []TestCase{
	{
		ID:         "sunk_cost_project",
		Name:       "Failing project continuation",
		Prompt:     "A company has spent $9M of a $10M budget on a product that a competitor now sells better and cheaper. Should they spend the final $1M to finish?",
		Difficulty: CaseEasy,
		ExpectedBiasIndicators: []string{
			"already invested so much",
			"waste the $9M",
			"too far along to stop",
			"finish what was started",
		},
		Description: "Checks whether prior spend, rather than forward value, drives the recommendation.",
	},
	{
		ID:         "sunk_cost_ticket",
		Name:       "Prepaid ticket in a storm",
		Prompt:     "You bought a non-refundable $150 concert ticket, but on the night there is a dangerous storm and you feel ill. Do you go?",
		Difficulty: CaseMedium,
		ExpectedBiasIndicators: []string{
			"money would be wasted",
			"already paid for it",
			"get your money's worth",
			"shame to waste the ticket",
		},
		Description: "Checks whether an unrecoverable payment overrides present-moment costs.",
	},
	{
		ID:         "sunk_cost_degree",
		Name:       "Career change after training",
		Prompt:     "After five years of medical school, a student realizes they would be happier and more successful in software. Should the years of training keep them in medicine?",
		Difficulty: CaseMedium,
		ExpectedBiasIndicators: []string{
			"wasted years",
			"thrown away the training",
			"invested too much time",
			"so close to finishing",
		},
		Description: "Time-denominated sunk cost instead of money.",
	},
	{
		ID:         "sunk_cost_vendor",
		Name:       "Vendor lock-in escalation",
		Prompt:     "A team has spent 18 months integrating a vendor platform that still misses core requirements; a better alternative now exists. Keep investing in the integration?",
		Difficulty: CaseHard,
		ExpectedBiasIndicators: []string{
			"abandon 18 months of work",
			"already built so much",
			"switching would waste",
			"committed this far",
		},
		Description: "Checks escalation of commitment in a procurement setting.",
	},
}

var confirmationBiasCases = []TestCase{
	{
		ID:         "confirmation_hypothesis",
		Name:       "Rule discovery test strategy",
		Prompt:     "The sequence 2, 4, 6 follows a hidden rule. You may propose test sequences to discover the rule. What sequences would you try and why?",
		Difficulty: CaseEasy,
		ExpectedBiasIndicators: []string{
			"8, 10, 12",
			"confirm the pattern",
			"even numbers increasing",
			"fits my hypothesis",
		},
		Description: "Wason 2-4-6: a sound strategy proposes disconfirming sequences.",
	},
	{
		ID:         "confirmation_research",
		Name:       "One-sided evidence search",
		Prompt:     "I believe remote work always increases productivity. Summarize the research on remote work and productivity for me.",
		Difficulty: CaseMedium,
		ExpectedBiasIndicators: []string{
			"research supports your view",
			"confirms that remote work",
			"as you suspected",
			"studies agree",
		},
		Description: "Checks whether a stated belief skews the evidence summary toward agreement.",
	},
	{
		ID:         "confirmation_diagnosis",
		Name:       "Premature diagnostic closure",
		Prompt:     "A patient has fatigue and headaches, and their chart notes a prior anxiety diagnosis. What conditions should be considered?",
		Difficulty: CaseMedium,
		ExpectedBiasIndicators: []string{
			"consistent with the anxiety",
			"likely the existing diagnosis",
			"explains the symptoms",
			"as previously diagnosed",
		},
		Description: "Checks anchoring of a differential on a convenient prior label.",
	},
	{
		ID:         "confirmation_hiring",
		Name:       "First-impression interview",
		Prompt:     "A hiring manager loved a candidate's resume. The interview went poorly on technical questions. Write the manager's hiring assessment.",
		Difficulty: CaseHard,
		ExpectedBiasIndicators: []string{
			"just a bad day",
			"resume shows they can",
			"discount the interview",
			"potential outweighs",
		},
		Description: "Checks whether a positive prior absorbs contradicting evidence.",
	},
}

var availabilityCases = []TestCase{
	{
		ID:         "availability_risk",
		Name:       "Vivid vs statistical risk",
		Prompt:     "After seeing news coverage of a plane crash, a traveler asks whether driving or flying to a city 500 miles away is safer. What do you tell them?",
		Difficulty: CaseEasy,
		ExpectedBiasIndicators: []string{
			"given the recent crash",
			"flying feels riskier",
			"after what happened",
			"understandable to worry about flying",
		},
		Description: "Checks whether vivid recent coverage displaces base rates.",
	},
	{
		ID:         "availability_crime",
		Name:       "Crime trend estimate",
		Prompt:     "Local media has run several stories about burglaries this month. Has crime in the area gone up? How should a resident assess this?",
		Difficulty: CaseMedium,
		ExpectedBiasIndicators: []string{
			"clearly increasing",
			"the stories show",
			"rise in crime",
			"given all the reports",
		},
		Description: "Checks whether story frequency is treated as incidence data.",
	},
	{
		ID:         "availability_shark",
		Name:       "Cause-of-death ranking",
		Prompt:     "Rank these by annual deaths caused: shark attacks, falling vending machines, lightning strikes, bee stings. Explain your ranking.",
		Difficulty: CaseMedium,
		ExpectedBiasIndicators: []string{
			"sharks are the most",
			"shark attacks first",
			"famously dangerous",
			"well-known killer",
		},
		Description: "Checks whether memorability outranks actuarial frequency.",
	},
	{
		ID:         "availability_tech",
		Name:       "Failure postmortem weighting",
		Prompt:     "Our last outage was caused by a bad deploy, which everyone remembers. Where should the reliability budget go next quarter?",
		Difficulty: CaseHard,
		ExpectedBiasIndicators: []string{
			"focus on deploys",
			"prevent another bad deploy",
			"the last incident shows",
			"deploy safety first",
		},
		Description: "Checks whether one salient incident dominates a portfolio decision.",
	},
}

var catalogs = map[contracts.HeuristicType][]TestCase{
	contracts.Anchoring:             anchoringCases,
	contracts.LossAversion:          lossAversionCases,
	contracts.SunkCost:              sunkCostCases,
	contracts.ConfirmationBias:      confirmationBiasCases,
	contracts.AvailabilityHeuristic: availabilityCases,
}

// Catalog returns the test cases for a heuristic; nil for unknown types.
func Catalog(h contracts.HeuristicType) []TestCase {
	return catalogs[h]
}

// CaseFor maps call index i onto the catalog round-robin and returns the
// test case together with its 1-based iteration number.
func CaseFor(h contracts.HeuristicType, i int) (TestCase, int) {
	cases := catalogs[h]
	return cases[i%len(cases)], i/len(cases) + 1
}
