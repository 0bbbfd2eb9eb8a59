// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/samber/oops"

	"github.com/llmqa/llmqa/internal/auth"
	"github.com/llmqa/llmqa/internal/auth/memory"
	authpg "github.com/llmqa/llmqa/internal/auth/postgres"
	"github.com/llmqa/llmqa/internal/auth/sqlite"
	"github.com/llmqa/llmqa/internal/xdg"
)

// Backend names reported by Handle.Backend.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Options selects and configures the user store.
type Options struct {
	// URL is postgres://..., postgresql://..., sqlite://<path> or memory://.
	URL string
	// AutoMigrate applies pending PostgreSQL migrations on open.
	AutoMigrate    bool
	ConnectRetries uint64
	Logger         *slog.Logger
}

// Handle is an open user store together with its lifecycle hooks.
type Handle struct {
	Users   auth.UserStore
	Backend string

	ping  func(context.Context) error
	close func() error
}

// Ping reports whether the backing database is reachable.
func (h *Handle) Ping(ctx context.Context) error {
	if h.ping == nil {
		return nil
	}
	return h.ping(ctx)
}

// Close releases the backing database.
func (h *Handle) Close() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

// OpenUserStore opens the user store named by opts.URL.
func OpenUserStore(ctx context.Context, opts Options) (*Handle, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch {
	case IsPostgresURL(opts.URL):
		return openPostgres(ctx, opts, logger)

	case strings.HasPrefix(opts.URL, "sqlite://"):
		path := strings.TrimPrefix(opts.URL, "sqlite://")
		if path == "" {
			return nil, oops.Code("DB_CONFIG_INVALID").With("url", opts.URL).Errorf("sqlite url has no path")
		}
		if path != sqlite.MemoryPath {
			if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
				return nil, err
			}
		}
		users, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		logger.InfoContext(ctx, "opened sqlite user store", "path", path)
		return &Handle{Users: users, Backend: BackendSQLite, ping: users.Ping, close: users.Close}, nil

	case opts.URL == "memory://":
		logger.WarnContext(ctx, "using in-memory user store; users are lost on restart")
		return &Handle{Users: memory.NewUserStore(), Backend: BackendMemory}, nil

	default:
		return nil, oops.Code("DB_CONFIG_INVALID").
			With("url", redact(opts.URL)).
			Errorf("unsupported database url scheme")
	}
}

func openPostgres(ctx context.Context, opts Options, logger *slog.Logger) (*Handle, error) {
	pool, err := Connect(ctx, opts.URL, ConnectOptions{MaxRetries: opts.ConnectRetries, Logger: logger})
	if err != nil {
		return nil, err
	}

	if opts.AutoMigrate {
		if err := migrateUp(opts.URL, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &Handle{
		Users:   authpg.NewUserStore(pool),
		Backend: BackendPostgres,
		ping:    pool.Ping,
		close: func() error {
			pool.Close()
			return nil
		},
	}, nil
}

func migrateUp(url string, logger *slog.Logger) error {
	migrator, err := NewMigrator(url)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return err
	}
	version, _, err := migrator.Version()
	if err != nil {
		return err
	}
	logger.Info("database schema up to date", "version", version)
	return nil
}

// redact strips everything after the scheme so credentials never reach logs.
func redact(url string) string {
	if scheme, _, ok := strings.Cut(url, "://"); ok {
		return scheme + "://..."
	}
	return "..."
}
