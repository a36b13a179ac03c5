// Package cryptox implements one-way password hashing. Hashes are
// self-describing strings: bcrypt's "$2a$<cost>$..." form or the argon2id
// PHC form, so verification needs nothing but the stored value.
package cryptox

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// MaxPasswordBytes is the longest plaintext bcrypt accepts.
const MaxPasswordBytes = 72

// Argon2id defaults; the configured cost replaces the iteration count.
const (
	DefaultArgonTime    = 3
	DefaultArgonMemory  = 64 * 1024 // KiB
	DefaultArgonThreads = 4
	DefaultArgonSaltLen = 16
	DefaultArgonKeyLen  = 32
	maxArgonTime        = 16
	maxArgonMemory      = 1024 * 1024 // KiB
	maxArgonThreads     = 64
)

// PasswordHasher hashes and verifies plaintext passwords.
//
// Hash is salted and non-deterministic. Verify reports a mismatch as
// (false, nil) and returns common.ErrCorruptHash only when the stored
// hash cannot be parsed.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) (bool, error)
}

// ValidateCost checks that cost is usable for the named algorithm.
func ValidateCost(algorithm string, cost int) error {
	switch algorithm {
	case AlgorithmBcrypt:
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			return fmt.Errorf("bcrypt cost must be within [%d, %d], got %d", bcrypt.MinCost, bcrypt.MaxCost, cost)
		}
	case AlgorithmArgon2id:
		if cost < 1 || cost > maxArgonTime {
			return fmt.Errorf("argon2id cost must be within [1, %d], got %d", maxArgonTime, cost)
		}
	default:
		return fmt.Errorf("unknown password hash algorithm %q", algorithm)
	}
	return nil
}

// NewPasswordHasher returns a hasher that produces hashes with algorithm
// and verifies hashes of either supported algorithm, so switching the
// configured algorithm does not lock out existing users.
func NewPasswordHasher(algorithm string, cost int) (PasswordHasher, error) {
	if err := ValidateCost(algorithm, cost); err != nil {
		return nil, err
	}
	h := &multiHasher{
		bcrypt: NewBcryptHasher(bcrypt.DefaultCost),
		argon:  NewArgon2Hasher(DefaultArgonTime),
	}
	switch algorithm {
	case AlgorithmBcrypt:
		h.bcrypt = NewBcryptHasher(cost)
		h.primary = h.bcrypt
	case AlgorithmArgon2id:
		h.argon = NewArgon2Hasher(uint32(cost))
		h.primary = h.argon
	}
	return h, nil
}

type multiHasher struct {
	primary PasswordHasher
	bcrypt  *BcryptHasher
	argon   *Argon2Hasher
}

func (h *multiHasher) Hash(plaintext string) (string, error) {
	return h.primary.Hash(plaintext)
}

func (h *multiHasher) Verify(plaintext, hash string) (bool, error) {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return h.argon.Verify(plaintext, hash)
	case strings.HasPrefix(hash, "$2"):
		return h.bcrypt.Verify(plaintext, hash)
	default:
		return false, common.ErrCorruptHash
	}
}

// BcryptHasher hashes with bcrypt at a fixed cost.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password exceeds %d bytes", common.ErrValidation, MaxPasswordBytes)
		}
		return "", fmt.Errorf("%w: bcrypt: %v", common.ErrorInternal, err)
	}
	return string(hash), nil
}

func (h *BcryptHasher) Verify(plaintext, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", common.ErrCorruptHash, err)
	}
}

// Argon2Hasher hashes with argon2id and encodes the result in PHC form:
//
//	$argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
type Argon2Hasher struct {
	time    uint32
	memory  uint32
	threads uint8
	saltLen uint32
	keyLen  uint32
}

// ArgonOption tweaks Argon2Hasher parameters.
type ArgonOption func(*Argon2Hasher)

// WithArgonMemory sets the memory cost in KiB.
func WithArgonMemory(m uint32) ArgonOption {
	return func(h *Argon2Hasher) {
		if m > 0 {
			h.memory = m
		}
	}
}

// WithArgonThreads sets the parallelism.
func WithArgonThreads(t uint8) ArgonOption {
	return func(h *Argon2Hasher) {
		if t > 0 {
			h.threads = t
		}
	}
}

func NewArgon2Hasher(iterations uint32, opts ...ArgonOption) *Argon2Hasher {
	h := &Argon2Hasher{
		time:    DefaultArgonTime,
		memory:  DefaultArgonMemory,
		threads: DefaultArgonThreads,
		saltLen: DefaultArgonSaltLen,
		keyLen:  DefaultArgonKeyLen,
	}
	if iterations > 0 {
		h.time = iterations
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Argon2Hasher) Hash(plaintext string) (string, error) {
	salt, err := common.MakeRandBytes(int(h.saltLen))
	if err != nil {
		return "", fmt.Errorf("%w: salt: %v", common.ErrorInternal, err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, h.time, h.memory, h.threads, h.keyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.memory, h.time, h.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

func (h *Argon2Hasher) Verify(plaintext, hash string) (bool, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != AlgorithmArgon2id {
		return false, common.ErrCorruptHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, fmt.Errorf("%w: unsupported argon2 version", common.ErrCorruptHash)
	}

	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, fmt.Errorf("%w: parameters: %v", common.ErrCorruptHash, err)
	}
	if memory == 0 || iterations == 0 || threads == 0 {
		return false, fmt.Errorf("%w: zero parameter", common.ErrCorruptHash)
	}
	if memory > maxArgonMemory || iterations > maxArgonTime || threads > maxArgonThreads {
		return false, fmt.Errorf("%w: parameters out of range", common.ErrCorruptHash)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("%w: salt: %v", common.ErrCorruptHash, err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false, fmt.Errorf("%w: key", common.ErrCorruptHash)
	}

	computed := argon2.IDKey([]byte(plaintext), salt, iterations, memory, threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}
