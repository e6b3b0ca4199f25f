package eval

import (
	"math/rand"

	"github.com/biaslens/biaslens/pkg/config"
	"github.com/biaslens/biaslens/pkg/contracts"
	"github.com/biaslens/biaslens/pkg/provider"
)

// resolution is the deterministic-execution plan for one run.
type resolution struct {
	Mode          contracts.DeterminismMode
	Seed          int64
	AchievedLevel string
	Parameters    contracts.ParametersUsed
}

// newSeed is a test seam for generated seed values.
var newSeed = func() int64 { return rand.Int63n(1 << 31) }

// resolveDetermination derives the mode, seed, achieved level, and decoding
// parameters a run will use against the given provider.
//
// A deterministic request against a provider without seed support is refused
// unless the caller allowed fallback; with fallback the run downgrades to
// standard mode and records why in the achieved level.
func resolveDetermination(caps provider.Capabilities, req *contracts.EvaluationRequest, model config.ModelConfig) (*resolution, error) {
	det := req.Deterministic
	enabled := det != nil && det.Enabled

	temperature := model.Temperature
	if enabled {
		switch {
		case det.Temperature != nil:
			temperature = *det.Temperature
		case !det.KeepTemperatureConstant:
			temperature = 0
		}
	}
	requestedTemp := temperature

	topK := 0
	if model.TopK > 0 {
		topK = model.TopK
	}

	achieved := provider.ResolveAchievedLevel(caps, enabled, requestedTemp, topK)

	// Providers with a temperature floor cannot run colder than it.
	if temperature < caps.MinTemperature {
		temperature = caps.MinTemperature
	}

	if enabled && caps.SeedSupport == provider.SeedNone {
		if !det.AllowNondeterministicFallback {
			return nil, errf(KindProvider, nil,
				"provider does not support deterministic execution: %s Set allowNondeterministicFallback to proceed without a seed.",
				caps.Guidance)
		}
		return &resolution{
			Mode:          contracts.ModeStandard,
			AchievedLevel: achieved,
			Parameters:    buildParameters(caps, temperature, topK, model),
		}, nil
	}

	mode := contracts.ModeStandard
	var seed int64
	if enabled {
		mode = contracts.ModeFull
		if det.Level != "" {
			mode = contracts.DeterminismMode(det.Level)
		}
		switch {
		case det.Seed != nil:
			seed = *det.Seed
		case model.SeedSet:
			seed = model.Seed
		default:
			seed = newSeed()
		}
	} else if model.SeedSet {
		seed = model.Seed
	}

	return &resolution{
		Mode:          mode,
		Seed:          seed,
		AchievedLevel: achieved,
		Parameters:    buildParameters(caps, temperature, topK, model),
	}, nil
}

func buildParameters(caps provider.Capabilities, temperature float64, topK int, model config.ModelConfig) contracts.ParametersUsed {
	p := contracts.ParametersUsed{
		Temperature: temperature,
		TopP:        model.TopP,
		MaxTokens:   model.MaxTokens,
	}
	// top_k is only recorded when the provider's decoder accepts it.
	if topK > 0 && caps.Decoding == provider.DecodingTopPTopK {
		k := topK
		p.TopK = &k
	}
	return p
}
