package service

import (
	"testing"
	"time"
)

// =============================================================================
// Session Token Tests
// =============================================================================

func TestGenerateSessionToken_Length(t *testing.T) {
	token, err := generateSessionToken()
	if err != nil {
		t.Fatalf("generateSessionToken failed: %v", err)
	}
	// 32 random bytes hex-encoded
	if len(token) != SessionTokenBytes*2 {
		t.Errorf("expected token length %d, got %d", SessionTokenBytes*2, len(token))
	}
}

func TestGenerateSessionToken_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := generateSessionToken()
		if err != nil {
			t.Fatalf("generateSessionToken failed: %v", err)
		}
		if seen[token] {
			t.Fatal("generated duplicate session token")
		}
		seen[token] = true
	}
}

func TestHashSessionToken_Deterministic(t *testing.T) {
	token := "abc123"
	if hashSessionToken(token) != hashSessionToken(token) {
		t.Error("hashing the same token twice produced different results")
	}
}

func TestHashSessionToken_DiffersFromToken(t *testing.T) {
	token, err := generateSessionToken()
	if err != nil {
		t.Fatalf("generateSessionToken failed: %v", err)
	}
	hash := hashSessionToken(token)
	if hash == token {
		t.Error("stored hash must not equal the raw token")
	}
	// SHA-256 hex digest
	if len(hash) != 64 {
		t.Errorf("expected 64 char hash, got %d", len(hash))
	}
}

func TestSessionDuration(t *testing.T) {
	if SessionDuration != 7*24*time.Hour {
		t.Errorf("expected 7 day session duration, got %v", SessionDuration)
	}
}

// =============================================================================
// Email Validation Tests
// =============================================================================

func TestValidateEmail(t *testing.T) {
	testCases := []struct {
		name  string
		email string
		valid bool
	}{
		{"valid", "user@example.com", true},
		{"valid subdomain", "user@mail.example.com", true},
		{"empty", "", false},
		{"missing at", "userexample.com", false},
		{"two ats", "user@@example.com", false},
		{"leading at", "@example.com", false},
		{"trailing at", "user@", false},
		{"no domain dot", "user@example", false},
		{"consecutive dots", "user..name@example.com", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateEmail(tc.email)
			if tc.valid && err != nil {
				t.Errorf("expected valid, got error: %v", err)
			}
			if !tc.valid && err == nil {
				t.Errorf("expected error for %q", tc.email)
			}
		})
	}
}

func TestValidateEmail_MaxLength(t *testing.T) {
	local := make([]byte, 250)
	for i := range local {
		local[i] = 'a'
	}
	tooLong := string(local) + "@example.com"
	if err := validateEmail(tooLong); err == nil {
		t.Error("expected error for email over 254 characters")
	}
}
