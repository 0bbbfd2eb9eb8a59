// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

// Package postgres implements auth.UserStore on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/llmqa/llmqa/internal/auth"
)

// poolIface is the subset of pgxpool.Pool used by UserStore. It lets unit
// tests substitute pgxmock for a live database.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserStore implements auth.UserStore using PostgreSQL.
type UserStore struct {
	pool poolIface
}

// NewUserStore creates a new UserStore. Pass a *pgxpool.Pool in production.
func NewUserStore(pool poolIface) *UserStore {
	return &UserStore{pool: pool}
}

// Create inserts user. The unique index on username turns a concurrent
// duplicate into auth.ErrUsernameTaken.
func (s *UserStore) Create(ctx context.Context, user *auth.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, email, full_name, hashed_password, disabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		user.ID.String(),
		user.Username,
		user.Email,
		user.FullName,
		user.PasswordHash,
		user.Disabled,
		user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code(auth.CodeUsernameTaken).
				With("username", user.Username).
				With("constraint", pgErr.ConstraintName).
				Wrap(auth.ErrUsernameTaken)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}
	return nil
}

// GetByUsername retrieves a user by exact username.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, username, email, full_name, hashed_password, disabled, created_at
		FROM users
		WHERE username = $1
	`, username)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_USERNAME_FAILED").
			With("operation", "get user by username").
			With("username", username).
			Wrap(err)
	}
	return user, nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr     string
		user      auth.User
		createdAt time.Time
	)
	if err := row.Scan(
		&idStr,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.PasswordHash,
		&user.Disabled,
		&createdAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // wrapped by caller
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").With("id", idStr).Wrap(err)
	}
	user.ID = id
	user.CreatedAt = createdAt.UTC()
	return &user, nil
}
