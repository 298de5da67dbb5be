package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenIssueAndValidate(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 30*24*time.Hour)

	token, expiresAt, err := issuer.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if until := time.Until(expiresAt); until < 29*24*time.Hour {
		t.Errorf("expiry %v is sooner than 30 days", until)
	}

	userID, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if userID != "user-123" {
		t.Errorf("userID = %q, want user-123", userID)
	}
}

func TestTokenValidateFailures(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	t.Run("garbage token is malformed", func(t *testing.T) {
		if _, err := issuer.Validate("not-a-token"); !errors.Is(err, ErrMalformedToken) {
			t.Errorf("err = %v, want ErrMalformedToken", err)
		}
	})

	t.Run("wrong secret is malformed", func(t *testing.T) {
		token, _, _ := issuer.Issue("user-123")
		other := NewTokenIssuer("other-secret", time.Hour)
		if _, err := other.Validate(token); !errors.Is(err, ErrMalformedToken) {
			t.Errorf("err = %v, want ErrMalformedToken", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		token, _, _ := issuer.Issue("user-123")
		// Move the verifier's clock past expiry.
		issuer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { issuer.now = time.Now }()
		if _, err := issuer.Validate(token); !errors.Is(err, ErrExpiredToken) {
			t.Errorf("err = %v, want ErrExpiredToken", err)
		}
	})

	t.Run("expiry boundary fails exactly at expires_at", func(t *testing.T) {
		fixed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		iss := NewTokenIssuer("test-secret", time.Hour)
		iss.now = func() time.Time { return fixed }
		token, expiresAt, _ := iss.Issue("user-123")

		iss.now = func() time.Time { return expiresAt }
		if _, err := iss.Validate(token); !errors.Is(err, ErrExpiredToken) {
			t.Errorf("validate at expires_at = %v, want ErrExpiredToken", err)
		}
	})
}

func TestPasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantWeak bool
	}{
		{"strong", "correct4horse", false},
		{"too short", "ab1", true},
		{"no digit", "onlyletters", true},
		{"no letter", "123456789", true},
		{"mixed long", "S3curePassphrase", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPasswordStrength(tt.password)
			if tt.wantWeak && !errors.Is(err, ErrWeakPassword) {
				t.Errorf("err = %v, want ErrWeakPassword", err)
			}
			if !tt.wantWeak && err != nil {
				t.Errorf("err = %v, want nil", err)
			}
		})
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct4horse")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	if !VerifyPassword(hash, "correct4horse") {
		t.Error("correct password rejected")
	}
	if VerifyPassword(hash, "wrong4horse") {
		t.Error("wrong password accepted")
	}
}
