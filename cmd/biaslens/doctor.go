package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/biaslens/biaslens/pkg/api"
	"github.com/biaslens/biaslens/pkg/canonical"
	"github.com/biaslens/biaslens/pkg/config"
	"github.com/biaslens/biaslens/pkg/provider"
	"github.com/biaslens/biaslens/pkg/vault"
)

// runDoctorCmd implements `biaslens doctor` — system health check.
//
// Exit codes:
//
//	0 = all checks pass
//	1 = one or more checks failed
func runDoctorCmd(stdout, stderr io.Writer) int {
	type checkResult struct {
		Name   string `json:"name"`
		Status string `json:"status"` // "ok", "warn", "fail"
		Detail string `json:"detail,omitempty"`
	}

	var results []checkResult
	allOK := true

	cfg := config.Load()

	// Check 1: Go runtime
	results = append(results, checkResult{
		Name:   "go_runtime",
		Status: "ok",
		Detail: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	})

	// Check 2: storage backend
	if cfg.DatabaseURL != "" {
		results = append(results, checkResult{Name: "database", Status: "ok", Detail: "DATABASE_URL set (Postgres)"})
	} else {
		results = append(results, checkResult{
			Name:   "database",
			Status: "warn",
			Detail: fmt.Sprintf("DATABASE_URL not set; lite mode uses SQLite at %s", cfg.SQLitePath),
		})
	}

	// Check 3: default model provider capabilities
	caps := provider.NewRegistry().Capabilities(cfg.Model.Provider)
	results = append(results, checkResult{
		Name:   "model_provider",
		Status: "ok",
		Detail: fmt.Sprintf("%s/%s seed=%s", cfg.Model.Provider, cfg.Model.ModelName, caps.SeedSupport),
	})

	// Check 4: repro pack signing key
	if cfg.SigningPrivateKeyPEM == "" {
		results = append(results, checkResult{
			Name:   "signing_key",
			Status: "warn",
			Detail: fmt.Sprintf("%s not set; repro pack creation will fail", config.EnvSigningPrivateKey),
		})
	} else if _, err := canonical.ParsePrivateKeyPEM(cfg.SigningPrivateKeyPEM); err != nil {
		results = append(results, checkResult{
			Name:   "signing_key",
			Status: "fail",
			Detail: fmt.Sprintf("private key unparseable: %v", err),
		})
		allOK = false
	} else {
		results = append(results, checkResult{
			Name:   "signing_key",
			Status: "ok",
			Detail: fmt.Sprintf("authority=%s key_id=%s", cfg.SigningAuthority, cfg.SigningKeyID),
		})
	}

	// Check 5: vault secrets
	for _, env := range []string{vault.EnvAPIKeySecret, vault.EnvSigningKeySecret} {
		if os.Getenv(env) == "" {
			results = append(results, checkResult{
				Name:   env,
				Status: "warn",
				Detail: "not set; the dependent feature is disabled",
			})
		} else {
			results = append(results, checkResult{Name: env, Status: "ok", Detail: "set"})
		}
	}

	// Check 6: JWT secret
	if cfg.JWTSecret == "" {
		results = append(results, checkResult{
			Name:   "jwt_secret",
			Status: "fail",
			Detail: "JWT_SECRET not set; all API requests will be rejected",
		})
		allOK = false
	} else {
		results = append(results, checkResult{Name: "jwt_secret", Status: "ok", Detail: "set"})
	}

	// Check 7: provider overrides file
	if cfg.ProviderOverridesPath != "" {
		reg := provider.NewRegistry()
		if err := reg.LoadOverrides(cfg.ProviderOverridesPath); err != nil {
			results = append(results, checkResult{
				Name:   "provider_overrides",
				Status: "fail",
				Detail: err.Error(),
			})
			allOK = false
		} else {
			results = append(results, checkResult{Name: "provider_overrides", Status: "ok", Detail: cfg.ProviderOverridesPath})
		}
	}

	// Print results
	fmt.Fprintf(stdout, "\n%sBiasLens Doctor%s\n", ColorBold+ColorPurple, ColorReset)
	fmt.Fprintln(stdout, "───────────────")
	for _, r := range results {
		icon := "✅"
		if r.Status == "warn" {
			icon = "⚠️ "
		} else if r.Status == "fail" {
			icon = "❌"
		}
		fmt.Fprintf(stdout, "  %s  %-28s %s%s%s\n", icon, r.Name, ColorGray, r.Detail, ColorReset)
	}

	if allOK {
		fmt.Fprintf(stdout, "\n%sAll checks passed.%s\n", ColorGreen+ColorBold, ColorReset)
		return 0
	}
	return 1
}

// runTokenCmd implements `biaslens token` — mint a development bearer token.
func runTokenCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("token", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		userID string
		teamID string
		ttl    time.Duration
	)
	cmd.StringVar(&userID, "user", "", "User id for the token subject (REQUIRED)")
	cmd.StringVar(&teamID, "team", "", "Team id claim")
	cmd.DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if userID == "" {
		fmt.Fprintln(stderr, "Error: --user is required")
		cmd.Usage()
		return 2
	}

	cfg := config.Load()
	auth := api.NewAuthenticator(cfg.JWTSecret)
	if auth == nil {
		fmt.Fprintln(stderr, "Error: JWT_SECRET is not set")
		return 1
	}
	token, err := auth.Issue(userID, teamID, ttl)
	if err != nil {
		fmt.Fprintf(stderr, "Error minting token: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}
