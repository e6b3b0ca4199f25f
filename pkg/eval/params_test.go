package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biaslens/biaslens/pkg/config"
	"github.com/biaslens/biaslens/pkg/contracts"
	"github.com/biaslens/biaslens/pkg/provider"
)

func defaultModel() config.ModelConfig {
	return config.ModelConfig{
		Provider:    "openai",
		ModelName:   "gpt-4o-mini",
		Temperature: 0.7,
		MaxTokens:   1024,
		TopP:        1.0,
	}
}

func int64p(v int64) *int64     { return &v }
func float64p(v float64) *float64 { return &v }

func TestResolveStandardRun(t *testing.T) {
	reg := provider.NewRegistry()
	res, err := resolveDetermination(reg.Capabilities("openai"), &contracts.EvaluationRequest{}, defaultModel())
	require.NoError(t, err)

	assert.Equal(t, contracts.ModeStandard, res.Mode)
	assert.Equal(t, "standard", res.AchievedLevel)
	assert.Equal(t, 0.7, res.Parameters.Temperature)
	assert.Equal(t, 1024, res.Parameters.MaxTokens)
	assert.Nil(t, res.Parameters.TopK)
}

func TestResolveDeterministicSeeded(t *testing.T) {
	reg := provider.NewRegistry()
	req := &contracts.EvaluationRequest{Deterministic: &contracts.DeterministicBlock{
		Enabled: true, Level: contracts.LevelFull, Seed: int64p(42),
	}}
	res, err := resolveDetermination(reg.Capabilities("openai"), req, defaultModel())
	require.NoError(t, err)

	assert.Equal(t, contracts.ModeFull, res.Mode)
	assert.Equal(t, int64(42), res.Seed)
	assert.Equal(t, "seeded", res.AchievedLevel)
	// Deterministic runs default to temperature 0 unless told otherwise.
	assert.Equal(t, 0.0, res.Parameters.Temperature)
}

func TestResolveDeterministicKeepsTemperature(t *testing.T) {
	reg := provider.NewRegistry()
	req := &contracts.EvaluationRequest{Deterministic: &contracts.DeterministicBlock{
		Enabled: true, Seed: int64p(7), KeepTemperatureConstant: true,
	}}
	res, err := resolveDetermination(reg.Capabilities("openai"), req, defaultModel())
	require.NoError(t, err)
	assert.Equal(t, 0.7, res.Parameters.Temperature)
	assert.Equal(t, contracts.ModeFull, res.Mode) // level defaults to full
}

func TestResolveExplicitTemperatureWins(t *testing.T) {
	reg := provider.NewRegistry()
	req := &contracts.EvaluationRequest{Deterministic: &contracts.DeterministicBlock{
		Enabled: true, Seed: int64p(7), Temperature: float64p(0.3), KeepTemperatureConstant: true,
	}}
	res, err := resolveDetermination(reg.Capabilities("openai"), req, defaultModel())
	require.NoError(t, err)
	assert.Equal(t, 0.3, res.Parameters.Temperature)
}

func TestResolveTemperatureFloor(t *testing.T) {
	reg := provider.NewRegistry()
	req := &contracts.EvaluationRequest{Deterministic: &contracts.DeterministicBlock{
		Enabled: true, Seed: int64p(1),
	}}
	res, err := resolveDetermination(reg.Capabilities("ollama"), req, defaultModel())
	require.NoError(t, err)

	assert.Equal(t, 0.01, res.Parameters.Temperature)
	assert.Contains(t, res.AchievedLevel, "temp_floor_0.01")
	assert.Contains(t, res.AchievedLevel, "seeded")
}

func TestResolveRefusesWithoutFallback(t *testing.T) {
	reg := provider.NewRegistry()
	req := &contracts.EvaluationRequest{Deterministic: &contracts.DeterministicBlock{
		Enabled: true, AllowNondeterministicFallback: false,
	}}
	_, err := resolveDetermination(reg.Capabilities("anthropic"), req, defaultModel())
	require.Error(t, err)
	assert.Equal(t, KindProvider, KindOf(err))
	assert.Contains(t, err.Error(), "allowNondeterministicFallback")
}

func TestResolveFallbackDowngradesToStandard(t *testing.T) {
	reg := provider.NewRegistry()
	req := &contracts.EvaluationRequest{Deterministic: &contracts.DeterministicBlock{
		Enabled: true, AllowNondeterministicFallback: true, Seed: int64p(9),
	}}
	res, err := resolveDetermination(reg.Capabilities("anthropic"), req, defaultModel())
	require.NoError(t, err)

	assert.Equal(t, contracts.ModeStandard, res.Mode)
	assert.Equal(t, "standard:no_seed_support", res.AchievedLevel)
	assert.Zero(t, res.Seed)
}

func TestResolveGeneratedSeed(t *testing.T) {
	orig := newSeed
	newSeed = func() int64 { return 12345 }
	t.Cleanup(func() { newSeed = orig })

	reg := provider.NewRegistry()
	req := &contracts.EvaluationRequest{Deterministic: &contracts.DeterministicBlock{Enabled: true}}
	res, err := resolveDetermination(reg.Capabilities("openai"), req, defaultModel())
	require.NoError(t, err)
	assert.Equal(t, int64(12345), res.Seed)
}

func TestResolveTopKOnlyWhereSupported(t *testing.T) {
	reg := provider.NewRegistry()
	model := defaultModel()
	model.TopK = 40

	// openai decodes top-p only: the knob is dropped and recorded in the level.
	req := &contracts.EvaluationRequest{Deterministic: &contracts.DeterministicBlock{Enabled: true, Seed: int64p(1)}}
	res, err := resolveDetermination(reg.Capabilities("openai"), req, model)
	require.NoError(t, err)
	assert.Nil(t, res.Parameters.TopK)
	assert.Contains(t, res.AchievedLevel, "decoding_top_p_only")

	// google accepts top-k.
	res, err = resolveDetermination(reg.Capabilities("google"), req, model)
	require.NoError(t, err)
	require.NotNil(t, res.Parameters.TopK)
	assert.Equal(t, 40, *res.Parameters.TopK)
}
