// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

// Package sqlite implements auth.UserStore on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/llmqa/llmqa/internal/auth"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id              TEXT    PRIMARY KEY,
	username        TEXT    NOT NULL UNIQUE,
	email           TEXT,
	full_name       TEXT,
	hashed_password TEXT    NOT NULL,
	disabled        INTEGER,
	created_at      INTEGER NOT NULL
)`

// UserStore implements auth.UserStore using SQLite.
type UserStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*UserStore, error) {
	dsn := path
	if path != MemoryPath {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, oops.Code("SQLITE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	// One connection serializes writers and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, oops.Code("SQLITE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, oops.Code("SQLITE_SCHEMA_FAILED").With("path", path).Wrap(err)
	}

	return &UserStore{db: db}, nil
}

// Ping checks that the database is reachable.
func (s *UserStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx) //nolint:wrapcheck // passthrough for readiness checks
}

// Close closes the database.
func (s *UserStore) Close() error {
	return s.db.Close() //nolint:wrapcheck // passthrough
}

// Create inserts user, mapping a username uniqueness violation to auth.ErrUsernameTaken.
func (s *UserStore) Create(ctx context.Context, user *auth.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, full_name, hashed_password, disabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		user.ID.String(),
		user.Username,
		nullableString(user.Email),
		nullableString(user.FullName),
		user.PasswordHash,
		nullableBool(user.Disabled),
		user.CreatedAt.UnixNano(),
	)
	if err != nil {
		var liteErr *sqlite.Error
		if errors.As(err, &liteErr) && liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return oops.Code(auth.CodeUsernameTaken).
				With("username", user.Username).
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
	var (
		idStr     string
		email     sql.NullString
		fullName  sql.NullString
		disabled  sql.NullBool
		createdAt int64
		user      auth.User
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, full_name, hashed_password, disabled, created_at
		FROM users
		WHERE username = ?
	`, username).Scan(
		&idStr,
		&user.Username,
		&email,
		&fullName,
		&user.PasswordHash,
		&disabled,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
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

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").With("id", idStr).Wrap(err)
	}
	user.ID = id
	user.CreatedAt = time.Unix(0, createdAt).UTC()
	if email.Valid {
		user.Email = &email.String
	}
	if fullName.Valid {
		user.FullName = &fullName.String
	}
	if disabled.Valid {
		user.Disabled = &disabled.Bool
	}
	return &user, nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}
