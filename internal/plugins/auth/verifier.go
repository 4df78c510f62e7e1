package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/argon2"
)

// argon2id parameters tuned for a self-hosted application running on
// modest hardware (2-4 CPU cores, 2-4 GB RAM). These follow OWASP
// recommendations for argon2id: memory=64MB, iterations=3, parallelism=4.
// They must match the parameters the host platform hashes with, otherwise
// verification still works (parameters are read from the PHC string) but
// newly written hashes would diverge.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // 64 MB in KiB
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// PasswordVerifier checks a plaintext password against a stored hash.
// The elevation state machine treats this as a black box so tests can
// substitute a deterministic fake.
type PasswordVerifier interface {
	Verify(password, encodedHash string) bool
}

// TwoFactorVerifier checks a second-factor code against a user's enrolled
// secret. The production implementation validates TOTP codes.
type TwoFactorVerifier interface {
	Verify(code, secret string) bool
}

// Argon2Verifier verifies argon2id hashes in PHC string format:
// $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
type Argon2Verifier struct{}

// Verify checks a plaintext password against an argon2id hash string.
// Returns true if the password matches. Malformed hashes verify as false,
// never as an error -- a corrupt row must not read as a valid credential.
func (Argon2Verifier) Verify(password, encodedHash string) bool {
	// Parse the encoded hash to extract parameters, salt, and hash.
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false
	}

	var memory uint32
	var iterations uint32
	var parallelism uint8
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism)
	if err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	// Compute the hash of the provided password with the same parameters.
	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// Constant-time comparison to prevent timing attacks.
	return subtle.ConstantTimeCompare(expectedHash, computedHash) == 1
}

// HashPassword creates an argon2id hash of the given password in PHC string
// format. Used by test fixtures and the bundled seed tooling; production
// password writes belong to the host platform.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	// Encode to the standard PHC string format.
	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads, b64Salt, b64Hash)

	return encoded, nil
}

// TOTPVerifier validates time-based one-time passwords against the user's
// enrolled secret.
type TOTPVerifier struct{}

// Verify returns true if the code is valid for the secret at the current
// time (the library allows one period of clock skew in either direction).
func (TOTPVerifier) Verify(code, secret string) bool {
	if code == "" || secret == "" {
		return false
	}
	return totp.Validate(code, secret)
}

// GenerateToken creates a cryptographically random hex-encoded token of
// byteLen random bytes. Shared by the session, elevation, and stash layers.
func GenerateToken(byteLen int) (string, error) {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
