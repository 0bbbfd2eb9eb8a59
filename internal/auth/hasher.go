// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 llmqa Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost matches the work factor used for all stored bcrypt hashes.
const DefaultBcryptCost = 12

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes

	// Upper bounds accepted when parsing a stored hash.
	argon2MaxMemory = 1024 * 1024
	argon2MaxTime   = 64
)

// Hasher names accepted by NewHasher.
const (
	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted, self-describing hash of the password.
	Hash(password string) (string, error)

	// Verify reports whether the password matches the hash.
	// A malformed or unsupported hash never matches.
	Verify(password, hash string) bool
}

// NewHasher returns a MultiHasher that hashes with the named algorithm and
// verifies every supported format.
func NewHasher(name string) (*MultiHasher, error) {
	switch name {
	case HasherBcrypt, "":
		return NewMultiHasher(NewBcryptHasher(DefaultBcryptCost)), nil
	case HasherArgon2id:
		return NewMultiHasher(NewArgon2idHasher()), nil
	default:
		return nil, oops.Code("AUTH_UNKNOWN_HASHER").
			With("hasher", name).
			Errorf("unknown password hasher %q", name)
	}
}

// BcryptHasher implements PasswordHasher using bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a BcryptHasher. Costs outside bcrypt's range fall back to DefaultBcryptCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash produces a bcrypt hash of the password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", oops.Code(CodeInvalidUser).With("max_bytes", 72).Wrapf(ErrInvalidInput, "password is too long")
	}
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").With("algorithm", HasherBcrypt).Wrap(err)
	}
	return string(hash), nil
}

// Verify checks the password against a bcrypt hash.
func (h *BcryptHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Argon2idHasher implements PasswordHasher using argon2id.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify checks the password against an argon2id hash.
func (h *Argon2idHasher) Verify(password, encodedHash string) bool {
	ok, err := verifyArgon2id(password, encodedHash)
	return err == nil && ok
}

func verifyArgon2id(password, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported argon2 version %d", version)
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if iterations < 1 || iterations > argon2MaxTime || memory < 1 || memory > argon2MaxMemory {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("argon2 parameters out of range")
	}
	if threads < 1 || threads > 255 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	keyLen := len(expected)
	if keyLen == 0 || keyLen > 1024 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", keyLen)
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, uint8(threads), uint32(keyLen))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// MultiHasher hashes with one algorithm and verifies any supported format,
// dispatching on the hash prefix.
type MultiHasher struct {
	primary PasswordHasher
	bcrypt  *BcryptHasher
	argon2  *Argon2idHasher
}

// NewMultiHasher creates a MultiHasher that produces new hashes with primary.
func NewMultiHasher(primary PasswordHasher) *MultiHasher {
	return &MultiHasher{
		primary: primary,
		bcrypt:  NewBcryptHasher(DefaultBcryptCost),
		argon2:  NewArgon2idHasher(),
	}
}

// Hash produces a hash using the primary algorithm.
func (h *MultiHasher) Hash(password string) (string, error) {
	return h.primary.Hash(password)
}

// Verify checks the password against a bcrypt or argon2id hash.
func (h *MultiHasher) Verify(password, hash string) bool {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return h.argon2.Verify(password, hash)
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return h.bcrypt.Verify(password, hash)
	default:
		return false
	}
}
