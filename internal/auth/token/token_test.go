package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/objectstore/internal/platform/errors"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestIssueAndValidate(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	issuer := Issuer{Secret: []byte("secret"), Now: fixedClock(now)}

	signed, err := issuer.Issue("demo_user")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if strings.Count(signed, ".") != 2 {
		t.Fatalf("expected compact jwt, got %q", signed)
	}

	subject, err := issuer.Validate(signed)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if subject != "demo_user" {
		t.Fatalf("subject = %q, want demo_user", subject)
	}
}

func TestIssueSetsExpiry(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	issuer := Issuer{Secret: []byte("secret"), TTL: time.Minute, Now: fixedClock(now)}

	signed, err := issuer.Issue("demo_user")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(signed, &claims); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !claims.ExpiresAt.Time.Equal(now.Add(time.Minute)) {
		t.Fatalf("exp = %v, want %v", claims.ExpiresAt.Time, now.Add(time.Minute))
	}
	if !claims.IssuedAt.Time.Equal(now) {
		t.Fatalf("iat = %v, want %v", claims.IssuedAt.Time, now)
	}
}

func TestValidateExpired(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	issuer := Issuer{Secret: []byte("secret"), Now: fixedClock(now)}
	signed, err := issuer.Issue("demo_user")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	later := issuer
	later.Now = fixedClock(now.Add(DefaultTTL + time.Second))
	if _, err := later.Validate(signed); !apperrors.HasCode(err, apperrors.CodeTokenExpired) {
		t.Fatalf("expected TOKEN_EXPIRED, got %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	issuer := Issuer{Secret: []byte("secret")}
	other := Issuer{Secret: []byte("other")}
	foreign, err := other.Issue("demo_user")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "demo_user",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "demo_user"}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	for name, raw := range map[string]string{
		"empty":        "",
		"garbage":      "not.a.token",
		"wrong secret": foreign,
		"alg none":     none,
		"missing exp":  noExpiry,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := issuer.Validate(raw); !apperrors.HasCode(err, apperrors.CodeTokenInvalid) {
				t.Fatalf("expected TOKEN_INVALID, got %v", err)
			}
		})
	}
}

func TestIssueRequiresSubjectAndSecret(t *testing.T) {
	if _, err := (Issuer{Secret: []byte("secret")}).Issue(" "); !apperrors.HasCode(err, apperrors.CodeTokenInvalid) {
		t.Fatalf("expected TOKEN_INVALID, got %v", err)
	}
	if _, err := (Issuer{}).Issue("demo_user"); err == nil {
		t.Fatal("expected error without secret")
	}
}

func mapLookup(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestLoadIssuerFromEnv(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"OBJECTSTORE_JWT_SECRET": "s3cret",
		"OBJECTSTORE_JWT_TTL":    "90s",
	})

	issuer, err := LoadIssuerFromEnv(lookup, nil)
	if err != nil {
		t.Fatalf("load issuer: %v", err)
	}
	if string(issuer.Secret) != "s3cret" || issuer.TTL != 90*time.Second || issuer.Now == nil {
		t.Fatalf("unexpected issuer: %+v", issuer)
	}
}

func TestLoadIssuerFromEnvRequiresSecret(t *testing.T) {
	lookup := mapLookup(map[string]string{"OBJECTSTORE_JWT_SECRET": "  "})
	if _, err := LoadIssuerFromEnv(lookup, nil); err == nil {
		t.Fatal("expected error without secret")
	}
}

func TestLoadIssuerFromEnvDefaultsTTL(t *testing.T) {
	lookup := mapLookup(map[string]string{"OBJECTSTORE_JWT_SECRET": "s3cret"})
	issuer, err := LoadIssuerFromEnv(lookup, nil)
	if err != nil {
		t.Fatalf("load issuer: %v", err)
	}
	if issuer.TTL != DefaultTTL {
		t.Fatalf("ttl = %v, want %v", issuer.TTL, DefaultTTL)
	}
}

func TestLoadIssuerFromProcessEnv(t *testing.T) {
	t.Setenv("OBJECTSTORE_JWT_SECRET", "from-env")
	issuer, err := LoadIssuerFromEnv(nil, nil)
	if err != nil {
		t.Fatalf("load issuer: %v", err)
	}
	if string(issuer.Secret) != "from-env" {
		t.Fatalf("secret = %q", issuer.Secret)
	}
}
