// Package token issues and validates the short-lived session tokens handed
// out after a successful login.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/louisbranch/objectstore/internal/platform/config"
	apperrors "github.com/louisbranch/objectstore/internal/platform/errors"
)

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = 5 * time.Minute

// issuerEnv holds raw env values before post-parse validation.
type issuerEnv struct {
	Secret string        `env:"OBJECTSTORE_JWT_SECRET"`
	TTL    time.Duration `env:"OBJECTSTORE_JWT_TTL" envDefault:"5m"`
}

// Issuer signs and validates HS256 tokens whose subject is a user id.
type Issuer struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

// LoadIssuerFromEnv reads the signing secret and token lifetime through
// lookup. A nil lookup reads the process environment.
func LoadIssuerFromEnv(lookup func(string) (string, bool), now func() time.Time) (Issuer, error) {
	var raw issuerEnv
	if err := config.ParseEnvWithLookup(&raw, lookup); err != nil {
		return Issuer{}, fmt.Errorf("parse jwt env: %w", err)
	}
	secret := strings.TrimSpace(raw.Secret)
	if secret == "" {
		return Issuer{}, fmt.Errorf("OBJECTSTORE_JWT_SECRET is required")
	}
	if raw.TTL <= 0 {
		return Issuer{}, fmt.Errorf("OBJECTSTORE_JWT_TTL must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return Issuer{Secret: []byte(secret), TTL: raw.TTL, Now: now}, nil
}

// Issue returns a signed token for userID.
func (i Issuer) Issue(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", apperrors.New(apperrors.CodeTokenInvalid, "token subject is required")
	}
	if len(i.Secret) == 0 {
		return "", errors.New("token issuer is not configured")
	}
	now := i.now()
	ttl := i.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate checks raw and returns the user id it was issued for.
func (i Issuer) Validate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperrors.New(apperrors.CodeTokenInvalid, "token is required")
	}
	if len(i.Secret) == 0 {
		return "", errors.New("token issuer is not configured")
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return i.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", mapJWTError(err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", apperrors.New(apperrors.CodeTokenInvalid, "token subject is missing")
	}
	return claims.Subject, nil
}

func (i Issuer) now() time.Time {
	if i.Now == nil {
		return time.Now().UTC()
	}
	return i.Now().UTC()
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return apperrors.Wrap(apperrors.CodeTokenExpired, "token is expired", err)
	}
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return apperrors.Wrap(apperrors.CodeTokenInvalid, "token signature is invalid", err)
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.Wrap(apperrors.CodeTokenInvalid, "token alg is invalid", err)
	}
	return apperrors.Wrap(apperrors.CodeTokenInvalid, "token is invalid", err)
}
