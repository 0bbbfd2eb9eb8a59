// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/llmqa/llmqa/internal/answer"
	"github.com/llmqa/llmqa/internal/auth"
	"github.com/llmqa/llmqa/internal/config"
	"github.com/llmqa/llmqa/internal/logging"
	"github.com/llmqa/llmqa/internal/observability"
	"github.com/llmqa/llmqa/internal/store"
	"github.com/llmqa/llmqa/internal/web"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the HTTP API server. SECRET_KEY must be set; startup aborts
without it. /ask is enabled only when OPENAI_API_KEY is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, nil)
		},
	}

	cmd.Flags().String("http-addr", config.DefaultHTTPAddr, "API listen address")
	cmd.Flags().String("metrics-addr", config.DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("database-url", config.DefaultDatabaseURL, "database URL (postgres://, sqlite://, memory://)")
	cmd.Flags().Bool("auto-migrate", true, "apply pending postgres migrations at startup")
	cmd.Flags().String("algorithm", config.DefaultAlgorithm, "token signing algorithm (HS256, HS384, HS512)")
	cmd.Flags().Int("access-token-expire-minutes", config.DefaultExpireMinutes, "access token lifetime in minutes")
	cmd.Flags().String("password-hasher", auth.HasherBcrypt, "password hasher for new accounts (bcrypt or argon2id)")
	cmd.Flags().String("log-format", config.DefaultLogFormat, "log format (json or text)")
	cmd.Flags().String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")

	return cmd
}

// ServeDeps holds injectable dependencies for the serve command. Nil fields
// use their defaults.
type ServeDeps struct {
	// StoreOpener opens the user store. Default: store.OpenUserStore
	StoreOpener func(ctx context.Context, opts store.Options) (*store.Handle, error)

	// ProviderFactory builds the answer provider. Default: answer.NewOpenAIProvider
	ProviderFactory func(cfg answer.OpenAIConfig) (answer.Provider, error)

	// ObservabilityServerFactory creates the metrics/health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readiness observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// LogWriter receives log output. Default: os.Stderr
	LogWriter io.Writer

	// OnReady is called with the API address once it is listening.
	OnReady func(apiAddr string)
}

// ObservabilityServer is the subset of observability.Server used by serve.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Metrics() *observability.Metrics
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.StoreOpener == nil {
		out.StoreOpener = store.OpenUserStore
	}
	if out.ProviderFactory == nil {
		out.ProviderFactory = func(cfg answer.OpenAIConfig) (answer.Provider, error) {
			return answer.NewOpenAIProvider(cfg)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, readiness observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, readiness, logger)
		}
	}
	if out.LogWriter == nil {
		out.LogWriter = os.Stderr
	}
	return &out
}

func runServeWithDeps(ctx context.Context, cfg *config.Config, deps *ServeDeps) error {
	if err := cfg.Validate(); err != nil {
		return err //nolint:wrapcheck // already coded CONFIG_INVALID
	}
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	logger := logging.SetDefault(logging.Options{
		Service: "llmqa",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
		Writer:  deps.LogWriter,
	})

	hasher, err := auth.NewHasher(cfg.PasswordHasher)
	if err != nil {
		return err //nolint:wrapcheck // coded by auth
	}
	codec, err := auth.NewJWTCodec([]byte(cfg.SecretKey), cfg.Algorithm)
	if err != nil {
		return err //nolint:wrapcheck // coded by auth
	}

	handle, err := deps.StoreOpener(ctx, store.Options{
		URL:         cfg.DatabaseURL,
		AutoMigrate: cfg.AutoMigrate,
		Logger:      logger,
	})
	if err != nil {
		return oops.Code("STORE_OPEN_FAILED").With("operation", "open user store").Wrap(err)
	}
	defer func() {
		if closeErr := handle.Close(); closeErr != nil {
			logger.Warn("failed to close user store", "error", closeErr)
		}
	}()
	logger.Info("user store opened", "backend", handle.Backend)

	service, err := auth.NewService(handle.Users, hasher, codec, cfg.TokenTTL(), auth.WithLogger(logger))
	if err != nil {
		return err //nolint:wrapcheck // coded by auth
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var metrics *observability.Metrics
	var obsServer ObservabilityServer
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, handle.Ping, logger)
		obsErrCh, startErr := obsServer.Start()
		if startErr != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.MetricsAddr).Wrap(startErr)
		}
		metrics = obsServer.Metrics()
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
	}

	var provider answer.Provider
	if cfg.AskEnabled() {
		provider, err = deps.ProviderFactory(answer.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			Model:   cfg.OpenAI.Model,
			BaseURL: cfg.OpenAI.BaseURL,
			Timeout: cfg.OpenAI.Timeout,
			Logger:  logger,
		})
		if err != nil {
			return oops.Code("ANSWER_PROVIDER_FAILED").With("operation", "create answer provider").Wrap(err)
		}
	} else {
		logger.Warn("OPENAI_API_KEY not set, /ask will respond 503")
	}

	handler, err := web.NewHandler(web.Options{
		Auth:    service,
		Answers: provider,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return err //nolint:wrapcheck // coded by web
	}

	apiServer := web.NewServer(cfg.HTTPAddr, handler, logger)
	apiErrCh, err := apiServer.Start()
	if err != nil {
		return oops.Code("WEB_START_FAILED").With("addr", cfg.HTTPAddr).Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "api")

	logger.Info("llmqa started",
		"addr", apiServer.Addr(),
		"algorithm", codec.Algorithm(),
		"token_ttl", cfg.TokenTTL(),
		"ask_enabled", provider != nil)
	if deps.OnReady != nil {
		deps.OnReady(apiServer.Addr())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("failed to stop API server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("failed to stop observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels ctx when a server reports an error so the
// whole process shuts down.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
