// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/llmqa/llmqa/pkg/errutil"
)

// DefaultTokenTTL is the access token lifetime when none is configured.
const DefaultTokenTTL = 30 * time.Minute

// Service provides login, registration and token operations.
type Service struct {
	users      UserStore
	hasher     PasswordHasher
	codec      TokenCodec
	defaultTTL time.Duration
	// dummyHash is verified when a user doesn't exist so that response time
	// does not reveal whether the username is registered. It is produced by
	// the configured hasher and never matches a submitted password.
	dummyHash  string
	now        func() time.Time
	logger     *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger used for authentication events.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used to compute token expiry.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a new Service. A non-positive defaultTTL selects DefaultTokenTTL.
func NewService(users UserStore, hasher PasswordHasher, codec TokenCodec, defaultTTL time.Duration, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("user store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if codec == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("token codec is required")
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTokenTTL
	}

	dummyHash, err := hasher.Hash(rand.Text())
	if err != nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").
			With("operation", "hash timing dummy").
			Wrap(err)
	}

	s := &Service{
		users:      users,
		hasher:     hasher,
		codec:      codec,
		defaultTTL: defaultTTL,
		dummyHash:  dummyHash,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DefaultTTL returns the configured access token lifetime.
func (s *Service) DefaultTTL() time.Duration {
	return s.defaultTTL
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Wrap(ErrAuthenticationFailed)
}

// Authenticate checks a username and password. Unknown usernames and wrong
// passwords produce the same ErrAuthenticationFailed error.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, lookupErr := s.users.GetByUsername(ctx, username)

	var targetHash string
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by username").
				Wrap(lookupErr)
		}
		targetHash = s.dummyHash
	} else {
		targetHash = user.PasswordHash
	}

	// Always verify so unknown users cost the same as wrong passwords.
	valid := s.hasher.Verify(password, targetHash)
	if lookupErr != nil || !valid {
		s.logger.WarnContext(ctx, "authentication failed", "username", username)
		return nil, invalidCredentials()
	}

	return user, nil
}

// IssueToken signs a token for username expiring ttl from now. A ttl that is
// non-positive or longer than the default lifetime is replaced by the default.
func (s *Service) IssueToken(_ context.Context, username string, ttl time.Duration) (string, error) {
	if ttl <= 0 || ttl > s.defaultTTL {
		ttl = s.defaultTTL
	}
	return s.sign(NewClaims(username, s.now(), ttl))
}

func (s *Service) sign(claims Claims) (string, error) {
	token, err := s.codec.Encode(claims)
	if err != nil {
		return "", oops.Code("TOKEN_ISSUE_FAILED").With("username", claims.Subject).Wrap(err)
	}
	return token, nil
}

// Login authenticates the credential and issues a default-lifetime token.
func (s *Service) Login(ctx context.Context, cred Credential) (string, error) {
	user, err := s.Authenticate(ctx, cred.Username, cred.Password)
	if err != nil {
		return "", err
	}

	token, err := s.IssueToken(ctx, user.Username, s.defaultTTL)
	if err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "user logged in", "username", user.Username)
	return token, nil
}

func (s *Service) claims(token string) (Claims, error) {
	claims, err := s.codec.Decode(token)
	if err != nil {
		return Claims{}, err
	}
	if claims.Subject == "" {
		return Claims{}, oops.Code(CodeInvalidToken).
			With("reason", "missing subject").
			Wrap(ErrInvalidToken)
	}
	return claims, nil
}

// VerifyToken decodes token and returns its subject.
func (s *Service) VerifyToken(_ context.Context, token string) (string, error) {
	claims, err := s.claims(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// CurrentUser verifies token and loads the user it names. A token naming a
// user that no longer exists is rejected with ErrInvalidToken.
func (s *Service) CurrentUser(ctx context.Context, token string) (*User, error) {
	claims, err := s.claims(token)
	if err != nil {
		return nil, err
	}
	return s.subjectUser(ctx, claims.Subject)
}

func (s *Service) subjectUser(ctx context.Context, subject string) (*User, error) {
	user, err := s.users.GetByUsername(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeInvalidToken).
				With("reason", "unknown subject").
				Wrap(ErrInvalidToken)
		}
		return nil, oops.Code("AUTH_USER_LOOKUP_FAILED").
			With("operation", "get user by username").
			Wrap(err)
	}
	return user, nil
}

// Refresh verifies token and issues a fresh default-lifetime token for the
// same user. The new expiry is always strictly later than the presented
// token's; within the same second it is pushed one second past it.
func (s *Service) Refresh(ctx context.Context, token string) (string, error) {
	presented, err := s.claims(token)
	if err != nil {
		return "", err
	}
	user, err := s.subjectUser(ctx, presented.Subject)
	if err != nil {
		return "", err
	}

	claims := NewClaims(user.Username, s.now(), s.defaultTTL)
	if !claims.ExpiresAt.After(presented.ExpiresAt) {
		claims.ExpiresAt = presented.ExpiresAt.Add(time.Second)
	}
	return s.sign(claims)
}

// Register creates a new user. A username that already exists, whether found
// up front or reported by the store on insert, yields ErrUsernameTaken.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*PublicUser, error) {
	if err := ValidateUsername(req.Username); err != nil {
		return nil, err
	}
	if req.Password == "" {
		return nil, oops.Code(CodeInvalidUser).Wrapf(ErrInvalidInput, "password cannot be empty")
	}

	_, err := s.users.GetByUsername(ctx, req.Username)
	switch {
	case err == nil:
		return nil, usernameTaken(req.Username)
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "get user by username").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(req.Username, blankToNil(req.Email), blankToNil(req.FullName), hash)
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil, usernameTaken(req.Username)
		}
		errutil.LogErrorContext(ctx, s.logger, "failed to create user", err)
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user registered", "username", user.Username, "user_id", user.ID.String())
	return user.Public(), nil
}

func usernameTaken(username string) error {
	return oops.Code(CodeUsernameTaken).With("username", username).Wrap(ErrUsernameTaken)
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
