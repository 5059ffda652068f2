// Package password hashes, verifies and generates user passwords.
package password

import (
	crand "crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/louisbranch/objectstore/internal/platform/errors"
)

const (
	// DefaultCost is the bcrypt cost used when a Hasher has none set.
	DefaultCost = 6
	// DefaultLength is the length of generated passwords.
	DefaultLength = 12

	minLength = 7
	minLower  = 2
	minUpper  = 2
	minDigit  = 1

	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// generated passwords are re-rolled until they satisfy Validate
	maxGenerateAttempts = 64
)

// ErrWeak indicates a password that does not meet the strength policy.
var ErrWeak = apperrors.New(apperrors.CodePasswordWeak, "password must be at least 7 characters with 2 lowercase, 2 uppercase and 1 digit")

// Hasher hashes passwords with bcrypt.
type Hasher struct {
	Cost int
}

// Hash returns the bcrypt hash of plain.
func (h Hasher) Hash(plain string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether plain matches hash. A mismatch is not an error.
func (h Hasher) Verify(plain, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("verify password: %w", err)
}

// Validate checks plain against the strength policy.
func Validate(plain string) error {
	var length, lower, upper, digit int
	for _, r := range plain {
		length++
		switch {
		case unicode.IsLower(r):
			lower++
		case unicode.IsUpper(r):
			upper++
		case unicode.IsDigit(r):
			digit++
		}
	}
	if length < minLength || lower < minLower || upper < minUpper || digit < minDigit {
		return ErrWeak
	}
	return nil
}

// Generate returns a random alphanumeric string of the given length, or
// DefaultLength when length is not positive.
func Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}
	limit := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := crand.Int(crand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}

// NewRandom returns a DefaultLength password that passes Validate.
func NewRandom() (string, error) {
	for range maxGenerateAttempts {
		candidate, err := Generate(DefaultLength)
		if err != nil {
			return "", err
		}
		if Validate(candidate) == nil {
			return candidate, nil
		}
	}
	return "", errors.New("generate password: no candidate met the strength policy")
}
