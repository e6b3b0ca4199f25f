package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/biaslens/biaslens/pkg/api"
	"github.com/biaslens/biaslens/pkg/audit"
	"github.com/biaslens/biaslens/pkg/canonical"
	"github.com/biaslens/biaslens/pkg/config"
	"github.com/biaslens/biaslens/pkg/eval"
	"github.com/biaslens/biaslens/pkg/observability"
	"github.com/biaslens/biaslens/pkg/progress"
	"github.com/biaslens/biaslens/pkg/provider"
	"github.com/biaslens/biaslens/pkg/repropack"
	"github.com/biaslens/biaslens/pkg/schedule"
	"github.com/biaslens/biaslens/pkg/store"
	"github.com/biaslens/biaslens/pkg/vault"
)

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func runServer(stdout, stderr io.Writer) int {
	fmt.Fprintf(stdout, "%sBiasLens starting...%s\n", ColorBold+ColorBlue, ColorReset)
	ctx := context.Background()

	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// Store: Postgres when configured, SQLite lite mode otherwise.
	var st store.Store
	if cfg.DatabaseURL != "" {
		s, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to connect to Postgres: %v\n", err)
			return 1
		}
		logger.Info("postgres: connected")
		st = s
	} else {
		fmt.Fprintf(stdout, "DATABASE_URL not set. Falling back to %sLite Mode%s (SQLite at %s).\n",
			ColorBold+ColorCyan, ColorReset, cfg.SQLitePath)
		s, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to open SQLite store: %v\n", err)
			return 1
		}
		st = s
	}

	// Provider registry with optional YAML overrides.
	reg := provider.NewRegistry()
	if cfg.ProviderOverridesPath != "" {
		if err := reg.LoadOverrides(cfg.ProviderOverridesPath); err != nil {
			logger.Warn("provider overrides not loaded", "path", cfg.ProviderOverridesPath, "error", err)
		} else {
			logger.Info("provider overrides loaded", "path", cfg.ProviderOverridesPath)
		}
	}
	pool := schedule.NewPool(reg)

	// Optional Redis progress publisher.
	var rdb redis.UniversalClient
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		logger.Info("redis: progress publishing enabled", "addr", cfg.RedisAddr)
	}
	reporter := progress.NewReporter(st, rdb, logger)

	// Vaults. A missing secret disables the corresponding feature; the
	// orchestrator degrades per-run instead of refusing to start.
	apiVault, err := vault.FromEnv(vault.EnvAPIKeySecret)
	if err != nil {
		logger.Warn("api key vault disabled", "error", err)
		apiVault = nil
	}
	signingVault, err := vault.FromEnv(vault.EnvSigningKeySecret)
	if err != nil {
		logger.Warn("customer signing vault disabled", "error", err)
		signingVault = nil
	}

	svc := eval.NewService(eval.Service{
		Store:        st,
		Registry:     reg,
		Pool:         pool,
		Progress:     reporter,
		Audit:        audit.NewLogger(),
		Cfg:          cfg,
		APIVault:     apiVault,
		SigningVault: signingVault,
		Logger:       logger,
	})

	verifier := &repropack.Verifier{
		Keys:                st,
		DefaultAuthority:    cfg.SigningAuthority,
		DefaultPublicKeyPEM: defaultPublicKeyPEM(cfg, logger),
	}

	srv := api.NewServer(api.Server{
		Eval:     svc,
		Store:    st,
		Verifier: verifier,
		Auth:     api.NewAuthenticator(cfg.JWTSecret),
		Limiter:  api.NewGlobalRateLimiter(20, 40),
		Logger:   logger,
	})

	// Observability: tracing + RED metrics + SLO tracking.
	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.OTLPEndpoint != ""
	if cfg.OTLPEndpoint != "" {
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	}
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		logger.Warn("observability init failed; continuing without telemetry", "error", err)
		obs, _ = observability.New(ctx, &observability.Config{Enabled: false})
	}
	slo := observability.NewSLOTracker()
	slo.SetTarget(&observability.SLOTarget{
		SLOID: "slo-evaluate", Operation: "evaluate",
		LatencyP99: 2 * time.Second, SuccessRate: 0.99, WindowHours: 24,
	})
	slo.SetTarget(&observability.SLOTarget{
		SLOID: "slo-verify", Operation: "verify",
		LatencyP99: time.Second, SuccessRate: 0.999, WindowHours: 24,
	})
	obs.WithSLO(slo)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           obs.HTTPMiddleware(srv.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	fmt.Fprintf(stdout, "ready: http://localhost:%s\n", cfg.Port)
	fmt.Fprintln(stdout, "press ctrl+c to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		fmt.Fprintf(stderr, "Server failed: %v\n", err)
		return 1
	case <-sigChan:
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	_ = obs.Shutdown(shutdownCtx)
	return 0
}

// defaultPublicKeyPEM returns the verification key for the default
// authority, deriving it from the private key when no public key env is set.
func defaultPublicKeyPEM(cfg *config.Config, logger *slog.Logger) string {
	if cfg.SigningPublicKeyPEM != "" {
		return cfg.SigningPublicKeyPEM
	}
	if cfg.SigningPrivateKeyPEM == "" {
		return ""
	}
	priv, err := canonical.ParsePrivateKeyPEM(cfg.SigningPrivateKeyPEM)
	if err != nil {
		logger.Warn("signing private key unparseable; pack verification falls back to store keys", "error", err)
		return ""
	}
	pem, err := canonical.NewSigner(priv, cfg.SigningKeyID).PublicKeyPEM()
	if err != nil {
		return ""
	}
	return pem
}
