package auth

import (
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	digest, err := HashPassword("SecureP@ss123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(digest, ":") {
		t.Errorf("digest %q missing salt separator", digest)
	}

	if !VerifyPassword("SecureP@ss123", digest) {
		t.Error("expected correct password to verify")
	}

	if VerifyPassword("WrongP@ss123", digest) {
		t.Error("expected wrong password to fail verification")
	}
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	first, err := HashPassword("SecureP@ss123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := HashPassword("SecureP@ss123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first == second {
		t.Error("expected distinct digests for the same password")
	}

	// Both must still verify
	if !VerifyPassword("SecureP@ss123", first) || !VerifyPassword("SecureP@ss123", second) {
		t.Error("expected both digests to verify")
	}
}

func TestHashPassword_Empty(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Error("expected error for empty password")
	}
}

func TestVerifyPassword_MalformedDigest(t *testing.T) {
	tests := []struct {
		name   string
		digest string
	}{
		{name: "empty digest", digest: ""},
		{name: "missing separator", digest: "deadbeefdeadbeef"},
		{name: "bad salt hex", digest: "nothex:deadbeef"},
		{name: "bad key hex", digest: "deadbeef:nothex"},
		{name: "separator only", digest: ":"},
		{name: "empty key part", digest: "deadbeef:"},
		{name: "empty salt part", digest: ":deadbeef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if VerifyPassword("anything", tt.digest) {
				t.Errorf("expected malformed digest %q to fail verification", tt.digest)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name       string
		password   string
		shouldFail bool
	}{
		{name: "valid strong password", password: "SecurePass123", shouldFail: false},
		{name: "too short", password: "Pass1", shouldFail: true},
		{name: "missing uppercase", password: "securepass123", shouldFail: true},
		{name: "missing lowercase", password: "SECUREPASS123", shouldFail: true},
		{name: "missing digit", password: "SecurePassword", shouldFail: true},
		{name: "common password rejected", password: "password123", shouldFail: true},
		{name: "common password rejected case-insensitively", password: "PassW0rd", shouldFail: true},
		{name: "too long", password: "Aa1" + strings.Repeat("x", 130), shouldFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)

			if tt.shouldFail && err == nil {
				t.Errorf("expected password %q to fail validation", tt.password)
			}
			if !tt.shouldFail && err != nil {
				t.Errorf("expected password %q to pass validation, got %v", tt.password, err)
			}
		})
	}
}
