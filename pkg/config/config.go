// Package config loads server configuration from environment variables.
package config

import (
	"os"
	"strconv"
)

// Signing environment variables.
const (
	EnvSigningPrivateKey = "REPRO_PACK_SIGNING_PRIVATE_KEY"
	EnvSigningPublicKey  = "REPRO_PACK_SIGNING_PUBLIC_KEY"
	EnvSigningKeyID      = "REPRO_PACK_SIGNING_KEY_ID"
	EnvSigningAuthority  = "REPRO_PACK_SIGNING_AUTHORITY"
)

// Config holds server configuration.
type Config struct {
	Port        string
	LogLevel    string
	DatabaseURL string
	SQLitePath  string // lite mode; used when DatabaseURL is empty
	RedisAddr   string // optional progress change-stream publisher
	JWTSecret   string

	// Default model endpoint used when a request carries no llmConfigId.
	Model ModelConfig

	// Signing defaults (BiasLens authority).
	SigningPrivateKeyPEM string
	SigningPublicKeyPEM  string
	SigningKeyID         string
	SigningAuthority     string

	// Provider registry overrides, optional YAML file.
	ProviderOverridesPath string

	OTLPEndpoint string
}

// ModelConfig is the env-sourced default decoding configuration.
type ModelConfig struct {
	Provider    string
	ModelName   string
	Temperature float64
	MaxTokens   int
	TopP        float64
	TopK        int
	Seed        int64
	SeedSet     bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		Port:                  getenv("PORT", "8080"),
		LogLevel:              getenv("LOG_LEVEL", "INFO"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		SQLitePath:            getenv("SQLITE_PATH", "biaslens.db"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		SigningPrivateKeyPEM:  os.Getenv(EnvSigningPrivateKey),
		SigningPublicKeyPEM:   os.Getenv(EnvSigningPublicKey),
		SigningKeyID:          getenv(EnvSigningKeyID, "biaslens-default"),
		SigningAuthority:      getenv(EnvSigningAuthority, "BiasLens"),
		ProviderOverridesPath: os.Getenv("PROVIDER_OVERRIDES_PATH"),
		OTLPEndpoint:          os.Getenv("OTLP_ENDPOINT"),
	}

	cfg.Model = ModelConfig{
		Provider:    getenv("EVALUATION_MODEL_PROVIDER", "openai"),
		ModelName:   getenv("EVALUATION_MODEL_NAME", "gpt-4o-mini"),
		Temperature: getfloat("EVALUATION_TEMPERATURE", 0.7),
		MaxTokens:   getint("EVALUATION_MAX_TOKENS", 1024),
		TopP:        getfloat("EVALUATION_TOP_P", 1.0),
		TopK:        getint("EVALUATION_TOP_K", 0),
	}
	if raw := os.Getenv("EVALUATION_SEED"); raw != "" {
		if seed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			cfg.Model.Seed = seed
			cfg.Model.SeedSet = true
		}
	}

	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getfloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
