// Package store opens the user store selected by a database URL.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connection retry defaults.
const (
	DefaultConnectRetries = 5
	defaultConnectBackoff = 500 * time.Millisecond
	maxConnectBackoff     = 5 * time.Second
)

// ConnectOptions tunes Connect.
type ConnectOptions struct {
	// MaxRetries is the number of additional ping attempts after the first.
	MaxRetries uint64
	// BaseDelay is the first backoff interval; later attempts double it.
	BaseDelay time.Duration
	Logger    *slog.Logger
}

// Connect creates a pgx pool for dsn and waits until the database answers a
// ping, retrying with exponential backoff. A malformed dsn fails immediately.
func Connect(ctx context.Context, dsn string, opts ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := opts.BaseDelay
	if base <= 0 {
		base = defaultConnectBackoff
	}
	backoff := retry.WithMaxRetries(opts.MaxRetries,
		retry.WithCappedDuration(maxConnectBackoff, retry.NewExponential(base)))

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if pingErr := pool.Ping(ctx); pingErr != nil {
			logger.WarnContext(ctx, "database not ready",
				"attempt", attempt,
				"host", cfg.ConnConfig.Host,
				"error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("host", cfg.ConnConfig.Host).
			With("attempts", attempt).
			Wrap(err)
	}

	logger.InfoContext(ctx, "connected to database", "host", cfg.ConnConfig.Host, "database", cfg.ConnConfig.Database)
	return pool, nil
}
