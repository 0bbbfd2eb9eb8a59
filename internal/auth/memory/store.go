// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

// Package memory provides an in-process auth.UserStore for tests and
// single-instance development deployments.
package memory

import (
	"context"
	"sync"

	"github.com/samber/oops"

	"github.com/llmqa/llmqa/internal/auth"
)

// UserStore keeps users in a map guarded by a mutex.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]auth.User
}

// NewUserStore creates an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]auth.User)}
}

// GetByUsername returns a copy of the stored user.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").Wrap(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[username]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(auth.ErrNotFound)
	}
	return &user, nil
}

// Create stores a copy of user. The check and insert happen under one lock,
// so concurrent registrations of the same name yield exactly one success.
func (s *UserStore) Create(ctx context.Context, user *auth.User) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("USER_CREATE_FAILED").Wrap(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.Username]; exists {
		return oops.Code(auth.CodeUsernameTaken).
			With("username", user.Username).
			Wrap(auth.ErrUsernameTaken)
	}
	s.users[user.Username] = *user
	return nil
}

// Len returns the number of stored users.
func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
