// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

package auth_test

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmqa/llmqa/internal/auth"
	"github.com/llmqa/llmqa/pkg/errutil"
)

var testKey = []byte("test-signing-key")

// fakeClock is a settable clock shared by codec and service tests.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newCodec(t *testing.T, clock *fakeClock) *auth.JWTCodec {
	t.Helper()
	codec, err := auth.NewJWTCodec(testKey, auth.AlgorithmHS256, auth.WithCodecClock(clock.Now))
	require.NoError(t, err)
	return codec
}

func decodeSegment(t *testing.T, segment string) map[string]any {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestNewClaims(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 500_000_000, time.UTC)

	t.Run("truncates to whole seconds", func(t *testing.T) {
		claims := auth.NewClaims("alice", now, 30*time.Minute)
		assert.Equal(t, "alice", claims.Subject)
		assert.Equal(t, time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC), claims.ExpiresAt)
	})

	t.Run("expiry is always after now", func(t *testing.T) {
		for _, ttl := range []time.Duration{0, time.Millisecond, 400 * time.Millisecond, -time.Hour} {
			claims := auth.NewClaims("alice", now, ttl)
			assert.True(t, claims.ExpiresAt.After(now), "ttl %s", ttl)
		}
	})
}

func TestNewJWTCodec(t *testing.T) {
	t.Run("defaults to HS256", func(t *testing.T) {
		codec, err := auth.NewJWTCodec(testKey, "")
		require.NoError(t, err)
		assert.Equal(t, "HS256", codec.Algorithm())
	})

	for _, alg := range auth.SupportedAlgorithms {
		t.Run("accepts "+alg, func(t *testing.T) {
			codec, err := auth.NewJWTCodec(testKey, alg)
			require.NoError(t, err)
			assert.Equal(t, alg, codec.Algorithm())
		})
	}

	for _, alg := range []string{"none", "RS256", "ES256", "hs256", "HS1024"} {
		t.Run("rejects "+alg, func(t *testing.T) {
			_, err := auth.NewJWTCodec(testKey, alg)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "TOKEN_UNSUPPORTED_ALGORITHM")
			errutil.AssertErrorContext(t, err, "algorithm", alg)
		})
	}

	t.Run("rejects empty key", func(t *testing.T) {
		_, err := auth.NewJWTCodec(nil, auth.AlgorithmHS256)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "TOKEN_KEY_MISSING")
	})
}

func TestJWTCodec_Encode(t *testing.T) {
	clock := newFakeClock()
	codec := newCodec(t, clock)
	claims := auth.NewClaims("alice", clock.Now(), 30*time.Minute)

	token, err := codec.Encode(claims)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	t.Run("header names algorithm and type", func(t *testing.T) {
		assert.Equal(t, map[string]any{"alg": "HS256", "typ": "JWT"}, decodeSegment(t, parts[0]))
	})

	t.Run("payload carries only sub and exp", func(t *testing.T) {
		payload := decodeSegment(t, parts[1])
		assert.Len(t, payload, 2)
		assert.Equal(t, "alice", payload["sub"])
		assert.InDelta(t, float64(claims.ExpiresAt.Unix()), payload["exp"], 0)
	})

	t.Run("deterministic for identical claims", func(t *testing.T) {
		again, err := codec.Encode(claims)
		require.NoError(t, err)
		assert.Equal(t, token, again)
	})
}

func TestJWTCodec_RoundTrip(t *testing.T) {
	for _, alg := range auth.SupportedAlgorithms {
		t.Run(alg, func(t *testing.T) {
			clock := newFakeClock()
			codec, err := auth.NewJWTCodec(testKey, alg, auth.WithCodecClock(clock.Now))
			require.NoError(t, err)

			claims := auth.NewClaims("alice", clock.Now(), 30*time.Minute)
			token, err := codec.Encode(claims)
			require.NoError(t, err)

			decoded, err := codec.Decode(token)
			require.NoError(t, err)
			assert.Equal(t, claims, decoded)
		})
	}
}

func TestJWTCodec_Decode_Expiry(t *testing.T) {
	clock := newFakeClock()
	codec := newCodec(t, clock)
	claims := auth.NewClaims("alice", clock.Now(), 30*time.Minute)
	token, err := codec.Encode(claims)
	require.NoError(t, err)

	t.Run("valid one second before expiry", func(t *testing.T) {
		clock.t = claims.ExpiresAt.Add(-time.Second)
		_, err := codec.Decode(token)
		assert.NoError(t, err)
	})

	t.Run("expired exactly at expiry", func(t *testing.T) {
		clock.t = claims.ExpiresAt
		_, err := codec.Decode(token)
		require.ErrorIs(t, err, auth.ErrTokenExpired)
		errutil.AssertErrorCode(t, err, auth.CodeTokenExpired)
	})

	t.Run("expired after expiry", func(t *testing.T) {
		clock.t = claims.ExpiresAt.Add(time.Hour)
		_, err := codec.Decode(token)
		assert.ErrorIs(t, err, auth.ErrTokenExpired)
	})
}

func TestJWTCodec_Decode_Invalid(t *testing.T) {
	clock := newFakeClock()
	codec := newCodec(t, clock)
	exp := jwt.NewNumericDate(clock.Now().Add(time.Hour))

	sign := func(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
		t.Helper()
		token, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return token
	}

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{"empty", func(*testing.T) string { return "" }},
		{"garbage", func(*testing.T) string { return "not-a-token" }},
		{"two segments", func(*testing.T) string { return "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJhbGljZSJ9" }},
		{"wrong key", func(t *testing.T) string {
			return sign(t, jwt.SigningMethodHS256, []byte("other-key"), jwt.RegisteredClaims{Subject: "alice", ExpiresAt: exp})
		}},
		{"different hmac algorithm", func(t *testing.T) string {
			return sign(t, jwt.SigningMethodHS512, testKey, jwt.RegisteredClaims{Subject: "alice", ExpiresAt: exp})
		}},
		{"alg none", func(t *testing.T) string {
			return sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.RegisteredClaims{Subject: "alice", ExpiresAt: exp})
		}},
		{"missing exp", func(t *testing.T) string {
			return sign(t, jwt.SigningMethodHS256, testKey, jwt.RegisteredClaims{Subject: "alice"})
		}},
		{"non-string subject", func(t *testing.T) string {
			return sign(t, jwt.SigningMethodHS256, testKey, jwt.MapClaims{"sub": 42, "exp": exp.Unix()})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.token(t))
			require.ErrorIs(t, err, auth.ErrInvalidToken)
			errutil.AssertErrorCode(t, err, auth.CodeInvalidToken)
		})
	}
}

func TestJWTCodec_Decode_RejectsEveryBitFlip(t *testing.T) {
	clock := newFakeClock()
	codec := newCodec(t, clock)
	token, err := codec.Encode(auth.NewClaims("alice", clock.Now(), 30*time.Minute))
	require.NoError(t, err)

	for i := range len(token) {
		for bit := range 7 {
			tampered := []byte(token)
			tampered[i] ^= 1 << bit
			_, err := codec.Decode(string(tampered))
			if !assert.ErrorIs(t, err, auth.ErrInvalidToken, "position %d bit %d", i, bit) {
				return
			}
		}
	}
}

func TestJWTCodec_Decode_KeyIsBoundAtConstruction(t *testing.T) {
	key := []byte("mutable-key")
	clock := newFakeClock()
	codec, err := auth.NewJWTCodec(key, auth.AlgorithmHS256, auth.WithCodecClock(clock.Now))
	require.NoError(t, err)

	token, err := codec.Encode(auth.NewClaims("alice", clock.Now(), time.Minute))
	require.NoError(t, err)

	copy(key, "XXXXXXXXXXX")
	_, err = codec.Decode(token)
	assert.NoError(t, err)
}
