// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

package auth

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MaxUsernameLength bounds the stored username in characters.
const MaxUsernameLength = 255

// Credential is a username/password pair presented at login. It is never stored.
type Credential struct {
	Username string
	Password string
}

// User is a persisted account. The auth core reads users but never mutates them.
type User struct {
	ID           ulid.ULID
	Username     string
	Email        *string
	FullName     *string
	PasswordHash string
	Disabled     *bool
	CreatedAt    time.Time
}

// PublicUser is the client-visible view of a User. It never carries the password hash.
type PublicUser struct {
	Username string  `json:"username"`
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
	Disabled *bool   `json:"disabled"`
}

// Public returns the hash-free view of u.
func (u *User) Public() *PublicUser {
	return &PublicUser{
		Username: u.Username,
		Email:    u.Email,
		FullName: u.FullName,
		Disabled: u.Disabled,
	}
}

// RegisterRequest carries the fields accepted by Service.Register.
type RegisterRequest struct {
	Username string  `json:"username"`
	Password string  `json:"password"`
	Email    *string `json:"email,omitempty"`
	FullName *string `json:"full_name,omitempty"`
}

// NewUser creates a User with a fresh ID after validating the username and hash.
func NewUser(username string, email, fullName *string, passwordHash string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if strings.TrimSpace(passwordHash) == "" {
		return nil, oops.Code(CodeInvalidUser).Wrapf(ErrInvalidInput, "password hash cannot be empty")
	}

	return &User{
		ID:           ulid.Make(),
		Username:     username,
		Email:        email,
		FullName:     fullName,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// ValidateUsername rejects blank usernames and usernames longer than MaxUsernameLength.
// Usernames are otherwise free-form and compared exactly.
func ValidateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return oops.Code(CodeInvalidUser).Wrapf(ErrInvalidInput, "username cannot be empty")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return oops.Code(CodeInvalidUser).
			With("max", MaxUsernameLength).
			Wrapf(ErrInvalidInput, "username must be at most %d characters", MaxUsernameLength)
	}
	return nil
}

// UserStore manages user persistence.
type UserStore interface {
	// GetByUsername retrieves a user by exact username.
	// Returns ErrNotFound if no such user exists.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Create stores a new user.
	// Returns ErrUsernameTaken if the username already exists.
	Create(ctx context.Context, user *User) error
}
