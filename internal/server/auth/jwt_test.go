package auth

import (
	"testing"
	"time"
)

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")
	userID := "user-123"

	tok, err := GenerateToken(userID, secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	gotUserID, err := UserIDFromToken(tok, secret)
	if err != nil {
		t.Fatalf("UserIDFromToken error: %v", err)
	}
	if gotUserID != userID {
		t.Fatalf("userID mismatch: got %q want %q", gotUserID, userID)
	}
}

func TestUserIDFromToken_Expired(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("u1", []byte("secret"), -1*time.Second)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	if _, err := UserIDFromToken(tok, []byte("secret")); err == nil {
		t.Fatalf("expected error for expired token, got nil")
	}
}

func TestUserIDFromToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("u2", []byte("right-secret"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	if _, err := UserIDFromToken(tok, []byte("wrong-secret")); err == nil {
		t.Fatalf("expected error for wrong secret, got nil")
	}
}

func TestUserIDFromToken_Garbage(t *testing.T) {
	t.Parallel()

	if _, err := UserIDFromToken("not.a.token", []byte("secret")); err == nil {
		t.Fatalf("expected error for malformed token, got nil")
	}
}
