package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

// --- Password Hashing Tests ---

func TestHashAndVerifyPassword(t *testing.T) {
	password := "correct-horse-battery-staple"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("expected argon2id PHC format, got %s", hash)
	}

	v := Argon2Verifier{}
	if !v.Verify(password, hash) {
		t.Error("correct password should verify")
	}
	if v.Verify("wrong-password", hash) {
		t.Error("wrong password should not verify")
	}
}

func TestVerifyPassword_InvalidHash(t *testing.T) {
	v := Argon2Verifier{}

	invalidHashes := []string{
		"",
		"not-a-hash",
		"$argon2id$",
		"$argon2id$v=19$m=65536,t=3,p=4$invalid",
		"$bcrypt$whatever",
	}

	for _, hash := range invalidHashes {
		if v.Verify("password", hash) {
			t.Errorf("invalid hash %q should not verify", hash)
		}
	}
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	hash1, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("first hash failed: %v", err)
	}
	hash2, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("second hash failed: %v", err)
	}

	if hash1 == hash2 {
		t.Error("hashing the same password twice should produce different hashes")
	}
}

// --- TOTP Tests ---

func TestTOTPVerifier(t *testing.T) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "quill-test",
		AccountName: "admin@example.com",
	})
	if err != nil {
		t.Fatalf("generating TOTP key: %v", err)
	}

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	if err != nil {
		t.Fatalf("generating TOTP code: %v", err)
	}

	v := TOTPVerifier{}
	if !v.Verify(code, key.Secret()) {
		t.Error("freshly generated code should verify")
	}
	if v.Verify("000000", key.Secret()) {
		t.Error("arbitrary code should not verify")
	}
	if v.Verify(code, "") {
		t.Error("empty secret should not verify")
	}
}

// --- Token Generation Tests ---

func TestGenerateToken_Length(t *testing.T) {
	token, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	// 32 bytes hex-encoded = 64 characters.
	if len(token) != 64 {
		t.Errorf("expected 64-char token, got %d chars", len(token))
	}
}

func TestGenerateToken_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := GenerateToken(16)
		if err != nil {
			t.Fatalf("GenerateToken failed: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token generated: %s", token)
		}
		seen[token] = true
	}
}
