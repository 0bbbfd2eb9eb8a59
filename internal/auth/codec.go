// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

package auth

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// Supported signing algorithms.
const (
	AlgorithmHS256 = "HS256"
	AlgorithmHS384 = "HS384"
	AlgorithmHS512 = "HS512"
)

// DefaultAlgorithm is used when no algorithm is configured.
const DefaultAlgorithm = AlgorithmHS256

// SupportedAlgorithms lists the algorithm names accepted by NewJWTCodec.
var SupportedAlgorithms = []string{AlgorithmHS256, AlgorithmHS384, AlgorithmHS512}

// Claims is the content of an access token.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// NewClaims creates Claims expiring ttl after now. The expiry is truncated to
// whole seconds and always lies strictly after now.
func NewClaims(subject string, now time.Time, ttl time.Duration) Claims {
	exp := now.Add(ttl).Truncate(time.Second)
	if !exp.After(now) {
		exp = now.Truncate(time.Second).Add(time.Second)
	}
	return Claims{Subject: subject, ExpiresAt: exp.UTC()}
}

// TokenCodec signs and verifies bearer tokens.
type TokenCodec interface {
	// Encode serializes and signs the claims.
	Encode(claims Claims) (string, error)

	// Decode verifies the token and returns its claims.
	// Returns ErrInvalidToken for malformed or wrongly signed tokens and
	// ErrTokenExpired for tokens whose expiry is not after the current time.
	Decode(token string) (Claims, error)
}

// JWTCodec implements TokenCodec with HMAC-signed JSON Web Tokens.
type JWTCodec struct {
	key    []byte
	method jwt.SigningMethod
	parser *jwt.Parser
	now    func() time.Time
}

// CodecOption configures a JWTCodec.
type CodecOption func(*JWTCodec)

// WithCodecClock overrides the clock used for expiry checks.
func WithCodecClock(now func() time.Time) CodecOption {
	return func(c *JWTCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewJWTCodec creates a codec bound to the given key and algorithm.
// The key and algorithm cannot be changed afterwards.
func NewJWTCodec(key []byte, algorithm string, opts ...CodecOption) (*JWTCodec, error) {
	if len(key) == 0 {
		return nil, oops.Code("TOKEN_KEY_MISSING").Errorf("signing key cannot be empty")
	}
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	if !slices.Contains(SupportedAlgorithms, algorithm) {
		return nil, oops.Code("TOKEN_UNSUPPORTED_ALGORITHM").
			With("algorithm", algorithm).
			With("supported", SupportedAlgorithms).
			Errorf("unsupported signing algorithm %q", algorithm)
	}

	c := &JWTCodec{
		key:    slices.Clone(key),
		method: jwt.GetSigningMethod(algorithm),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{algorithm}),
			jwt.WithoutClaimsValidation(),
			jwt.WithStrictDecoding(),
		),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Algorithm returns the configured signing algorithm name.
func (c *JWTCodec) Algorithm() string {
	return c.method.Alg()
}

// Encode serializes the claims as {"sub","exp"} and signs them.
func (c *JWTCodec) Encode(claims Claims) (string, error) {
	registered := jwt.RegisteredClaims{
		Subject:   claims.Subject,
		ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
	}
	signed, err := jwt.NewWithClaims(c.method, registered).SignedString(c.key)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").With("algorithm", c.method.Alg()).Wrap(err)
	}
	return signed, nil
}

// Decode verifies the signature and expiry of token.
func (c *JWTCodec) Decode(token string) (Claims, error) {
	var registered jwt.RegisteredClaims
	_, err := c.parser.ParseWithClaims(token, &registered, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		return Claims{}, oops.Code(CodeInvalidToken).
			With("reason", err.Error()).
			Wrap(ErrInvalidToken)
	}

	if registered.ExpiresAt == nil {
		return Claims{}, oops.Code(CodeInvalidToken).
			With("reason", "missing exp claim").
			Wrap(ErrInvalidToken)
	}

	exp := registered.ExpiresAt.Time
	if !exp.After(c.now()) {
		return Claims{}, oops.Code(CodeTokenExpired).
			With("expired_at", exp.UTC()).
			Wrap(ErrTokenExpired)
	}

	return Claims{Subject: registered.Subject, ExpiresAt: exp.UTC()}, nil
}
