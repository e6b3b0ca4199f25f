package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "BiasLens", cfg.SigningAuthority)
	require.Equal(t, "openai", cfg.Model.Provider)
	require.False(t, cfg.Model.SeedSet)
}

func TestLoad_ModelEnv(t *testing.T) {
	t.Setenv("EVALUATION_MODEL_PROVIDER", "anthropic")
	t.Setenv("EVALUATION_TEMPERATURE", "0.2")
	t.Setenv("EVALUATION_SEED", "12345")
	t.Setenv("EVALUATION_TOP_K", "40")

	cfg := Load()
	require.Equal(t, "anthropic", cfg.Model.Provider)
	require.InDelta(t, 0.2, cfg.Model.Temperature, 1e-9)
	require.True(t, cfg.Model.SeedSet)
	require.EqualValues(t, 12345, cfg.Model.Seed)
	require.Equal(t, 40, cfg.Model.TopK)
}

func TestLoad_IgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("EVALUATION_MAX_TOKENS", "lots")
	t.Setenv("EVALUATION_SEED", "not-a-number")

	cfg := Load()
	require.Equal(t, 1024, cfg.Model.MaxTokens)
	require.False(t, cfg.Model.SeedSet)
}
