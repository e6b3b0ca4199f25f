// Package provider holds the static capability and rate-limit tables for the
// model providers the pipeline can evaluate, and derives the determinism level
// a run actually achieved against a given provider.
package provider

import (
	"strconv"
	"strings"
)

// SeedSupport describes how reliably a provider honors a decoding seed.
type SeedSupport string

const (
	SeedFull    SeedSupport = "full"
	SeedPartial SeedSupport = "partial"
	SeedNone    SeedSupport = "none"
)

// DecodingSupport describes which sampling knobs the provider exposes.
type DecodingSupport string

const (
	DecodingTemperatureOnly DecodingSupport = "temperature-only"
	DecodingTopP            DecodingSupport = "top-p"
	DecodingTopPTopK        DecodingSupport = "top-p-top-k"
)

// Capabilities is the static determinism profile of a provider.
type Capabilities struct {
	SeedSupport    SeedSupport     `yaml:"seed_support" json:"seed_support"`
	MinTemperature float64         `yaml:"min_temperature" json:"min_temperature"`
	Decoding       DecodingSupport `yaml:"decoding" json:"decoding"`
	Guidance       string          `yaml:"guidance" json:"guidance"`
}

// RatePolicy is the pacing policy applied to a provider's API.
type RatePolicy struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	MinIntervalMs     int `yaml:"min_interval_ms" json:"min_interval_ms"`
	RetryAfterMs      int `yaml:"retry_after_ms" json:"retry_after_ms"`
}

// defaults applied to providers absent from the table.
var (
	defaultCapabilities = Capabilities{
		SeedSupport: SeedPartial,
		Decoding:    DecodingTopP,
		Guidance:    "Unknown provider; seed support assumed best-effort.",
	}
	defaultRatePolicy = RatePolicy{RequestsPerMinute: 30, MinIntervalMs: 2000, RetryAfterMs: 5000}
)

var capabilityTable = map[string]Capabilities{
	"openai": {
		SeedSupport: SeedFull,
		Decoding:    DecodingTopP,
		Guidance:    "Seed parameter honored; identical seed+parameters reproduce outputs on the same system fingerprint.",
	},
	"azure-openai": {
		SeedSupport: SeedFull,
		Decoding:    DecodingTopP,
		Guidance:    "Same seed semantics as OpenAI; deployments pin model snapshots.",
	},
	"anthropic": {
		SeedSupport:    SeedNone,
		MinTemperature: 0,
		Decoding:       DecodingTopPTopK,
		Guidance:       "No seed parameter; deterministic runs are not supported. Use temperature 0 for best-effort stability.",
	},
	"google": {
		SeedSupport: SeedPartial,
		Decoding:    DecodingTopPTopK,
		Guidance:    "Seed accepted but reproducibility is best-effort across model revisions.",
	},
	"mistral": {
		SeedSupport: SeedPartial,
		Decoding:    DecodingTopP,
		Guidance:    "random_seed accepted; reproducibility best-effort.",
	},
	"ollama": {
		SeedSupport:    SeedFull,
		MinTemperature: 0.01,
		Decoding:       DecodingTopPTopK,
		Guidance:       "Local inference; seed fully honored. Temperature 0 is clamped to the engine minimum.",
	},
	"cohere": {
		SeedSupport: SeedPartial,
		Decoding:    DecodingTopPTopK,
		Guidance:    "Seed accepted on chat endpoint; best-effort.",
	},
}

var ratePolicyTable = map[string]RatePolicy{
	"openai":       {RequestsPerMinute: 60, MinIntervalMs: 1000, RetryAfterMs: 2000},
	"azure-openai": {RequestsPerMinute: 60, MinIntervalMs: 1000, RetryAfterMs: 2000},
	"anthropic":    {RequestsPerMinute: 50, MinIntervalMs: 1200, RetryAfterMs: 5000},
	"google":       {RequestsPerMinute: 60, MinIntervalMs: 1000, RetryAfterMs: 3000},
	"mistral":      {RequestsPerMinute: 30, MinIntervalMs: 2000, RetryAfterMs: 5000},
	"ollama":       {RequestsPerMinute: 600, MinIntervalMs: 100, RetryAfterMs: 1000},
	"cohere":       {RequestsPerMinute: 40, MinIntervalMs: 1500, RetryAfterMs: 5000},
}

// Registry resolves provider capabilities and rate policies. The zero value
// serves the built-in tables; overrides can be layered from a YAML file.
type Registry struct {
	capOverrides  map[string]Capabilities
	rateOverrides map[string]RatePolicy
}

// NewRegistry returns a registry serving the built-in tables.
func NewRegistry() *Registry {
	return &Registry{}
}

// Capabilities returns the capability profile for a provider id.
// Unknown providers get the partial/top-p default.
func (r *Registry) Capabilities(providerID string) Capabilities {
	id := normalize(providerID)
	if r != nil && r.capOverrides != nil {
		if caps, ok := r.capOverrides[id]; ok {
			return caps
		}
	}
	if caps, ok := capabilityTable[id]; ok {
		return caps
	}
	return defaultCapabilities
}

// RatePolicy returns the pacing policy for a provider id.
func (r *Registry) RatePolicy(providerID string) RatePolicy {
	id := normalize(providerID)
	if r != nil && r.rateOverrides != nil {
		if p, ok := r.rateOverrides[id]; ok {
			return p
		}
	}
	if p, ok := ratePolicyTable[id]; ok {
		return p
	}
	return defaultRatePolicy
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// ResolveAchievedLevel derives the tag describing which determinism knobs
// actually applied for this provider.
//
// The tag is "standard" for non-deterministic runs, "standard:no_seed_support"
// when the provider cannot seed at all, and otherwise "|"-joined parts:
// seeded or seeded_best_effort, an optional temp_floor_<min>, and an optional
// decoding restriction.
func ResolveAchievedLevel(caps Capabilities, deterministicEnabled bool, reqTemp float64, reqTopK int) string {
	if !deterministicEnabled {
		return "standard"
	}
	if caps.SeedSupport == SeedNone {
		return "standard:no_seed_support"
	}

	parts := make([]string, 0, 3)
	if caps.SeedSupport == SeedFull {
		parts = append(parts, "seeded")
	} else {
		parts = append(parts, "seeded_best_effort")
	}

	if reqTemp < caps.MinTemperature {
		parts = append(parts, "temp_floor_"+strconv.FormatFloat(caps.MinTemperature, 'f', -1, 64))
	}

	switch caps.Decoding {
	case DecodingTemperatureOnly:
		parts = append(parts, "decoding_temperature_only")
	case DecodingTopP:
		if reqTopK > 0 {
			parts = append(parts, "decoding_top_p_only")
		}
	}

	return strings.Join(parts, "|")
}
