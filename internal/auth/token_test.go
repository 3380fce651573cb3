// ABOUTME: Unit tests for JWT token verification and generation
// ABOUTME: Tests valid tokens, invalid tokens, missing claims and expired tokens

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/souk-gateway/internal/store"
)

var testSecret = []byte("test-secret-key-for-jwt-signing!")

func newTestVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	verifier, err := NewJWTVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewJWTVerifier() error = %v", err)
	}
	return verifier
}

func TestNewJWTVerifier_ShortSecret(t *testing.T) {
	_, err := NewJWTVerifier([]byte("too-short"))
	if !errors.Is(err, ErrShortSecret) {
		t.Errorf("NewJWTVerifier() error = %v, want ErrShortSecret", err)
	}
}

func TestJWTVerifier_ValidToken(t *testing.T) {
	verifier := newTestVerifier(t)

	want := Identity{ID: "cust-123", Role: store.RoleCustomer, DisplayName: "Amira"}
	token, err := verifier.Generate(want, time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	got, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if got != want {
		t.Errorf("Verify() = %+v, want %+v", got, want)
	}
}

func TestJWTVerifier_NameDefaultsToSubject(t *testing.T) {
	verifier := newTestVerifier(t)

	token, err := verifier.Generate(Identity{ID: "sell-1", Role: store.RoleSeller}, time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	got, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got.DisplayName != "sell-1" {
		t.Errorf("DisplayName = %q, want %q", got.DisplayName, "sell-1")
	}
}

func TestJWTVerifier_InvalidToken(t *testing.T) {
	verifier := newTestVerifier(t)

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "empty token",
			token: "",
		},
		{
			name:  "garbage token",
			token: "not-a-jwt-token",
		},
		{
			name:  "malformed JWT",
			token: "header.payload.signature",
		},
		{
			name: "wrong secret",
			token: func() string {
				other, _ := NewJWTVerifier([]byte("a-completely-different-secret-32"))
				token, _ := other.Generate(Identity{ID: "cust-1", Role: store.RoleCustomer}, time.Hour)
				return token
			}(),
		},
		{
			name: "none algorithm",
			token: func() string {
				token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "cust-1", "role": "customer"})
				s, _ := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
				return s
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	verifier := newTestVerifier(t)

	token, err := verifier.Generate(Identity{ID: "cust-1", Role: store.RoleCustomer}, -time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	_, err = verifier.Verify(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestJWTVerifier_MissingClaims(t *testing.T) {
	verifier := newTestVerifier(t)

	tests := []struct {
		name   string
		claims jwt.MapClaims
	}{
		{
			name:   "missing sub",
			claims: jwt.MapClaims{"role": "customer", "exp": time.Now().Add(time.Hour).Unix()},
		},
		{
			name:   "missing role",
			claims: jwt.MapClaims{"sub": "cust-1", "exp": time.Now().Add(time.Hour).Unix()},
		},
		{
			name:   "unknown role",
			claims: jwt.MapClaims{"sub": "cust-1", "role": "admin", "exp": time.Now().Add(time.Hour).Unix()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tt.claims).SignedString(testSecret)
			if err != nil {
				t.Fatalf("SignedString() error = %v", err)
			}

			_, err = verifier.Verify(token)
			if !errors.Is(err, ErrMissingClaim) {
				t.Errorf("Verify() error = %v, want ErrMissingClaim", err)
			}
		})
	}
}

func TestJWTVerifier_GenerateRejectsIncompleteIdentity(t *testing.T) {
	verifier := newTestVerifier(t)

	if _, err := verifier.Generate(Identity{Role: store.RoleSeller}, time.Hour); !errors.Is(err, ErrMissingClaim) {
		t.Errorf("Generate() without ID error = %v, want ErrMissingClaim", err)
	}
	if _, err := verifier.Generate(Identity{ID: "x"}, time.Hour); !errors.Is(err, ErrMissingClaim) {
		t.Errorf("Generate() without role error = %v, want ErrMissingClaim", err)
	}
}
