package provider

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCapabilities_UnknownProviderDefaults(t *testing.T) {
	r := NewRegistry()
	caps := r.Capabilities("some-new-lab")
	require.Equal(t, SeedPartial, caps.SeedSupport)
	require.Equal(t, DecodingTopP, caps.Decoding)
}

func TestCapabilities_CaseInsensitive(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, r.Capabilities("OpenAI"), r.Capabilities("openai"))
}

func TestResolveAchievedLevel(t *testing.T) {
	full := Capabilities{SeedSupport: SeedFull, Decoding: DecodingTopP}
	partial := Capabilities{SeedSupport: SeedPartial, MinTemperature: 0.3, Decoding: DecodingTemperatureOnly}
	none := Capabilities{SeedSupport: SeedNone, Decoding: DecodingTopPTopK}

	tests := []struct {
		name          string
		caps          Capabilities
		deterministic bool
		temp          float64
		topK          int
		want          string
	}{
		{"not deterministic", full, false, 0, 0, "standard"},
		{"no seed support", none, true, 0, 0, "standard:no_seed_support"},
		{"full seed", full, true, 0.7, 0, "seeded"},
		{"full seed with topK on top-p provider", full, true, 0.7, 40, "seeded|decoding_top_p_only"},
		{"partial below temp floor", partial, true, 0.1, 0, "seeded_best_effort|temp_floor_0.3|decoding_temperature_only"},
		{"partial above temp floor", partial, true, 0.5, 0, "seeded_best_effort|decoding_temperature_only"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveAchievedLevel(tc.caps, tc.deterministic, tc.temp, tc.topK)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "providers.yaml")
	content := `
providers:
  openai:
    rate_policy:
      requests_per_minute: 120
      min_interval_ms: 500
      retry_after_ms: 1000
  homelab:
    capabilities:
      seed_support: full
      decoding: top-p-top-k
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	r := NewRegistry()
	require.NoError(t, r.LoadOverrides(path))

	require.Equal(t, 120, r.RatePolicy("openai").RequestsPerMinute)
	require.Equal(t, SeedFull, r.Capabilities("homelab").SeedSupport)

	// Entries absent from the file keep built-ins.
	require.Equal(t, SeedNone, r.Capabilities("anthropic").SeedSupport)
}

func TestLoadOverrides_MissingFile(t *testing.T) {
	r := NewRegistry()
	require.Error(t, r.LoadOverrides(filepath.Join(t.TempDir(), "nope.yaml")))
}
