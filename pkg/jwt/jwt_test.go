package jwt

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateVerifyRoundTrip(t *testing.T) {
	m := NewManager("test-secret", "gather", time.Hour)

	token, err := m.Generate("u1", "Alice", "alice@example.com")
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}

	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify err: %v", err)
	}
	if claims.UserID != "u1" || claims.DisplayName != "Alice" || claims.Email != "alice@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Issuer != "gather" {
		t.Fatalf("issuer = %q", claims.Issuer)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m := NewManager("test-secret", "gather", time.Hour)

	if _, err := m.Verify("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewManager("secret-a", "gather", time.Hour)
	verifier := NewManager("secret-b", "gather", time.Hour)

	token, err := issuer.Generate("u1", "Alice", "alice@example.com")
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}

	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := NewManager("test-secret", "gather", -time.Minute)

	token, err := m.Generate("u1", "Alice", "alice@example.com")
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}

	if _, err := m.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}
