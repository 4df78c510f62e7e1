// Package elevation implements the elevated-session state machine: a user
// with a valid login session re-proves their identity (password, optionally
// TOTP) and receives a short-lived token-bound elevation that the gate
// consults before letting privileged actions through.
package elevation

import "time"

// Result codes returned by AttemptActivation and VerifyTwoFactor.
const (
	// CodeSuccess means the elevated session is active.
	CodeSuccess = "success"

	// CodeTwoFactorPending means the password verified but a TOTP code is
	// still required. The challenge cookie has been bound.
	CodeTwoFactorPending = "2fa_pending"

	// CodeInvalidPassword means the credential check failed. Counted toward
	// lockout.
	CodeInvalidPassword = "invalid_password"

	// CodeInvalidTwoFactor means the TOTP code was wrong or the pending
	// state expired. Counted toward lockout.
	CodeInvalidTwoFactor = "invalid_2fa"

	// CodeLockedOut means too many failed attempts. Self-clears by
	// wall-clock; Remaining carries the seconds left.
	CodeLockedOut = "locked_out"
)

// MaxFailedAttempts is the failed-attempt count at which a user is locked
// out of re-authentication.
const MaxFailedAttempts = 5

// lockoutDuration is how long a lockout lasts once triggered.
const lockoutDuration = 15 * time.Minute

// attemptWindow bounds how long failed attempts are remembered. The counter
// key carries this TTL so abandoned attempts age out on their own.
const attemptWindow = 15 * time.Minute

// pendingTTL is how long a pending-2FA state stays consumable.
const pendingTTL = 5 * time.Minute

// tokenBytes is the number of random bytes in elevation and challenge
// tokens. 32 bytes hex-encodes to 64 characters.
const tokenBytes = 32

// Result is the outcome of an activation or two-factor attempt.
type Result struct {
	// Code is one of the Code* constants above.
	Code string `json:"code"`

	// Remaining is the lockout seconds left. Only set with CodeLockedOut.
	Remaining int `json:"remaining,omitempty"`

	// ExpiresAt is when the elevation (or pending-2FA window) ends. Set
	// with CodeSuccess and CodeTwoFactorPending.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// AttemptCount is the failed-attempt count after this attempt. Set when
	// the attempt failed.
	AttemptCount int `json:"-"`

	// Token is the raw elevation token for the cookie. Set with
	// CodeSuccess only; never persisted raw.
	Token string `json:"-"`

	// ChallengeToken is the raw pending-2FA cookie value. Set with
	// CodeTwoFactorPending only.
	ChallengeToken string `json:"-"`
}

// PendingState is the per-user pending-2FA record stored in Redis while a
// second factor is awaited. ChallengeHash binds the record to the browser
// that passed the password step.
type PendingState struct {
	ChallengeHash string    `json:"challenge_hash"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// BlockedNotice is the per-user transient written when an AJAX request is
// blocked, consumed once by the notice endpoint.
type BlockedNotice struct {
	RuleID    string    `json:"rule_id"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}
