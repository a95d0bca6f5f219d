package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signHS256(t *testing.T, secret string, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestJWTValidator_ValidToken(t *testing.T) {
	t.Parallel()

	v, err := NewJWTValidator("s3cret", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	token := signHS256(t, "s3cret", Claims{
		Roles: []string{"shopper"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := v.Validate(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
}

func TestJWTValidator_Rejections(t *testing.T) {
	t.Parallel()

	v, _ := NewJWTValidator("s3cret", "")
	expired := signHS256(t, "s3cret", Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}})
	wrongKey := signHS256(t, "other", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}})
	noSubject := signHS256(t, "s3cret", Claims{})

	cases := map[string]error{
		"":        ErrMissingToken,
		"garbage": ErrInvalidToken,
		expired:   ErrInvalidToken,
		wrongKey:  ErrInvalidToken,
		noSubject: ErrInvalidToken,
	}
	for token, expected := range cases {
		if _, err := v.Validate(token); !errors.Is(err, expected) {
			t.Fatalf("Validate(%q) expected %v got %v", token, expected, err)
		}
	}
}

func TestJWTValidator_Disabled(t *testing.T) {
	t.Parallel()

	v, err := NewJWTValidator("  ", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Enabled() {
		t.Fatal("validator without keys must be disabled")
	}
	if _, err := NewJWTValidator("", "not a pem"); err == nil {
		t.Fatal("expected error for malformed public key")
	}
}

func TestExtractToken(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/ws?token=from-query", nil)
	if got := ExtractToken(r, ""); got != "from-query" {
		t.Fatalf("expected query token, got %q", got)
	}
	r.Header.Set("Authorization", "bearer from-header")
	if got := ExtractToken(r, ""); got != "from-header" {
		t.Fatalf("expected header token, got %q", got)
	}
	r.Header.Set("Authorization", "Basic abc")
	if got := ExtractBearerToken(r); got != "" {
		t.Fatalf("expected no bearer token, got %q", got)
	}
}
