// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

package auth

import "errors"

// Error codes attached to oops errors returned by this package.
const (
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidToken       = "TOKEN_INVALID"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeUsernameTaken      = "USERNAME_TAKEN"
	CodeInvalidUser        = "USER_INVALID"
)

var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAuthenticationFailed is returned for an unknown username or a wrong password.
	// Both cases share this error so callers cannot enumerate usernames.
	ErrAuthenticationFailed = errors.New("incorrect username or password")

	// ErrInvalidToken is returned for malformed, tampered or wrongly signed tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned for a correctly signed token past its expiry.
	ErrTokenExpired = errors.New("token has expired")

	// ErrInvalidInput is returned for registration input that fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUsernameTaken is returned when registering a username that already exists.
	ErrUsernameTaken = errors.New("username already registered")
)
