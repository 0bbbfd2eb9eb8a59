// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

// Package auth provides the authentication core for llmqa.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewUser - creates a User with a validated username and password hash
//   - NewClaims - creates Claims whose expiry lies strictly in the future
//
// Direct struct initialization bypasses validation and may create invalid state.
// UserStore implementations receive pre-validated users from NewUser.
//
// # Components
//
//   - PasswordHasher - salted, deliberately slow password hashing (bcrypt, argon2id)
//   - TokenCodec - signs and verifies self-contained bearer tokens (JWT, HMAC)
//   - UserStore - user persistence, implemented in the postgres, sqlite and memory subpackages
//   - Service - login, registration, token verification and sliding refresh
//
// The signing key and algorithm are fixed when the TokenCodec is constructed.
// No session state is kept on the server; a token is valid if and only if its
// signature verifies and its expiry lies in the future.
package auth
