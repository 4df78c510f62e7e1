package elevation

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/quillcms/sudogate/internal/apperror"
	"github.com/quillcms/sudogate/internal/plugins/audit"
	"github.com/quillcms/sudogate/internal/plugins/auth"
	"github.com/quillcms/sudogate/internal/plugins/settings"
)

// TwoFactorOverride lets the host force the second-factor requirement for a
// user even when their account has no TOTP enrolled. Nil means no override.
type TwoFactorOverride func(ctx context.Context, user *auth.User) bool

// sleeper abstracts the deliberate failure delay so tests run instantly.
type sleeper func(d time.Duration)

// ElevationService drives the elevated-session state machine.
type ElevationService interface {
	// AttemptActivation runs the password step. Lockout is checked before
	// the password is ever consulted.
	AttemptActivation(ctx context.Context, userID, password string) (*Result, error)

	// VerifyTwoFactor finalizes a pending activation with a TOTP code. The
	// challenge token must match the one bound at the password step.
	VerifyTwoFactor(ctx context.Context, userID, code, challengeToken string) (*Result, error)

	// IsActive reports whether the user holds a live elevation bound to the
	// presented cookie token.
	IsActive(ctx context.Context, userID, presentedToken string) bool

	// Deactivate drops the elevation immediately.
	Deactivate(ctx context.Context, userID string) error

	// IsLockedOut reports the lockout state and remaining seconds. Expired
	// lockouts are cleared lazily here, together with the attempt counter.
	IsLockedOut(ctx context.Context, userID string) (bool, int, error)

	// Status returns the active flag and expiry for the host shell's UI.
	Status(ctx context.Context, userID, presentedToken string) (bool, time.Time)

	// WriteBlockedNotice records the per-user transient shown after an AJAX
	// block.
	WriteBlockedNotice(ctx context.Context, userID, ruleID, label string) error

	// TakeBlockedNotice consumes the transient. Suppressed (nil) when the
	// user's elevation became active in the meantime.
	TakeBlockedNotice(ctx context.Context, userID, presentedToken string) (*BlockedNotice, error)
}

// elevationService implements ElevationService.
type elevationService struct {
	store    ElevationStore
	users    auth.UserRepository
	password auth.PasswordVerifier
	totp     auth.TwoFactorVerifier
	settings settings.SettingsService
	audit    audit.AuditService
	override TwoFactorOverride
	sleep    sleeper
}

// NewElevationService creates the elevation service. override may be nil.
func NewElevationService(
	store ElevationStore,
	users auth.UserRepository,
	password auth.PasswordVerifier,
	totp auth.TwoFactorVerifier,
	settingsSvc settings.SettingsService,
	auditSvc audit.AuditService,
	override TwoFactorOverride,
) ElevationService {
	return &elevationService{
		store:    store,
		users:    users,
		password: password,
		totp:     totp,
		settings: settingsSvc,
		audit:    auditSvc,
		override: override,
		sleep:    time.Sleep,
	}
}

// AttemptActivation runs the four-step password flow: lockout short-circuit,
// credential check with counted failures, optional 2FA branch, activation.
func (s *elevationService) AttemptActivation(ctx context.Context, userID, password string) (*Result, error) {
	if userID == "" {
		return &Result{Code: CodeInvalidPassword}, nil
	}

	// Step 1: a locked-out user never gets their password consulted.
	locked, remaining, err := s.IsLockedOut(ctx, userID)
	if err != nil {
		return nil, err
	}
	if locked {
		return &Result{Code: CodeLockedOut, Remaining: remaining}, nil
	}

	// Step 2: verify the password. An unknown account takes the same path
	// as a wrong password so the response cannot enumerate users.
	user, err := s.users.FindByID(ctx, userID)
	if err != nil || user.IsDisabled || !s.password.Verify(password, user.PasswordHash) {
		return s.recordFailure(ctx, userID)
	}

	// Step 3: the password is good. Reset the counter before anything else.
	if err := s.store.ResetFailedAttempts(ctx, userID); err != nil {
		return nil, err
	}

	if s.requiresTwoFactor(ctx, user) {
		return s.createPending(ctx, userID)
	}

	// Step 4: activate.
	return s.activate(ctx, userID)
}

// VerifyTwoFactor consumes the pending-2FA state and finalizes activation.
func (s *elevationService) VerifyTwoFactor(ctx context.Context, userID, code, challengeToken string) (*Result, error) {
	if userID == "" {
		return &Result{Code: CodeInvalidTwoFactor}, nil
	}

	locked, remaining, err := s.IsLockedOut(ctx, userID)
	if err != nil {
		return nil, err
	}
	if locked {
		return &Result{Code: CodeLockedOut, Remaining: remaining}, nil
	}

	pending, err := s.store.GetPending(ctx, userID)
	if err != nil {
		return nil, err
	}
	// No pending state, expired state, or a challenge cookie that does not
	// hash to the bound value all look the same to the caller.
	if pending == nil || time.Now().After(pending.ExpiresAt) ||
		subtle.ConstantTimeCompare([]byte(hashToken(challengeToken)), []byte(pending.ChallengeHash)) != 1 {
		return &Result{Code: CodeInvalidTwoFactor}, nil
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return &Result{Code: CodeInvalidTwoFactor}, nil
	}

	secret := ""
	if user.TOTPSecret != nil {
		secret = *user.TOTPSecret
	}
	if !s.totp.Verify(code, secret) {
		return s.recordFailure(ctx, userID)
	}

	if err := s.store.DeletePending(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.store.ResetFailedAttempts(ctx, userID); err != nil {
		return nil, err
	}
	return s.activate(ctx, userID)
}

// IsActive checks both halves of the binding: the expiry must be in the
// future and the presented token must hash to the stored value.
func (s *elevationService) IsActive(ctx context.Context, userID, presentedToken string) bool {
	if userID == "" || presentedToken == "" {
		return false
	}

	hash, expiresAt, err := s.store.GetActivation(ctx, userID)
	if err != nil || hash == "" {
		return false
	}
	if !time.Now().Before(expiresAt) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hashToken(presentedToken)), []byte(hash)) == 1
}

// Deactivate clears the activation state and fires the audit event.
func (s *elevationService) Deactivate(ctx context.Context, userID string) error {
	if userID == "" {
		return apperror.NewBadRequest("user ID is required")
	}
	if err := s.store.ClearActivation(ctx, userID); err != nil {
		return err
	}
	s.audit.LogDeactivated(ctx, userID)
	return nil
}

// IsLockedOut performs the lazy cleanup: once lockout_until has passed, both
// the lockout and the attempt counter are cleared as a side effect.
func (s *elevationService) IsLockedOut(ctx context.Context, userID string) (bool, int, error) {
	until, err := s.store.GetLockout(ctx, userID)
	if err != nil {
		return false, 0, err
	}
	if until.IsZero() {
		return false, 0, nil
	}

	now := time.Now()
	if now.After(until) {
		if err := s.store.ClearLockout(ctx, userID); err != nil {
			return false, 0, err
		}
		if err := s.store.ResetFailedAttempts(ctx, userID); err != nil {
			return false, 0, err
		}
		return false, 0, nil
	}

	return true, int(until.Sub(now).Seconds()) + 1, nil
}

// Status returns whether the user is elevated and until when.
func (s *elevationService) Status(ctx context.Context, userID, presentedToken string) (bool, time.Time) {
	if !s.IsActive(ctx, userID, presentedToken) {
		return false, time.Time{}
	}
	_, expiresAt, err := s.store.GetActivation(ctx, userID)
	if err != nil {
		return false, time.Time{}
	}
	return true, expiresAt
}

// WriteBlockedNotice records the transient for the notice endpoint.
func (s *elevationService) WriteBlockedNotice(ctx context.Context, userID, ruleID, label string) error {
	return s.store.SetBlockedNotice(ctx, userID, &BlockedNotice{
		RuleID:    ruleID,
		Label:     label,
		CreatedAt: time.Now().UTC(),
	})
}

// TakeBlockedNotice consumes the transient, suppressing it when the user
// became elevated between the block and the read.
func (s *elevationService) TakeBlockedNotice(ctx context.Context, userID, presentedToken string) (*BlockedNotice, error) {
	notice, err := s.store.TakeBlockedNotice(ctx, userID)
	if err != nil {
		return nil, err
	}
	if notice == nil {
		return nil, nil
	}
	if s.IsActive(ctx, userID, presentedToken) {
		return nil, nil
	}
	return notice, nil
}

// --- Internal steps ---

// recordFailure increments the counter, fires the audit events, triggers the
// lockout at the threshold, and applies the timing penalty. The delay grows
// with the attempt count so automation pays more as it approaches the limit.
func (s *elevationService) recordFailure(ctx context.Context, userID string) (*Result, error) {
	count, err := s.store.IncrementFailedAttempts(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.audit.LogReauthFailed(ctx, userID, count)

	if count >= MaxFailedAttempts {
		until := time.Now().Add(lockoutDuration)
		if err := s.store.SetLockout(ctx, userID, until); err != nil {
			return nil, err
		}
		s.audit.LogLockout(ctx, userID, count)
		s.sleep(time.Duration(count) * 500 * time.Millisecond)
		return &Result{Code: CodeLockedOut, Remaining: int(lockoutDuration.Seconds()), AttemptCount: count}, nil
	}

	s.sleep(time.Duration(count) * 500 * time.Millisecond)
	return &Result{Code: CodeInvalidPassword, AttemptCount: count}, nil
}

// requiresTwoFactor combines the account's own enrollment with the override.
func (s *elevationService) requiresTwoFactor(ctx context.Context, user *auth.User) bool {
	if user.TOTPEnabled {
		return true
	}
	if s.override != nil {
		return s.override(ctx, user)
	}
	return false
}

// createPending binds a fresh challenge token and stores the pending state.
func (s *elevationService) createPending(ctx context.Context, userID string) (*Result, error) {
	challenge, err := auth.GenerateToken(tokenBytes)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("generating challenge token: %w", err))
	}

	expiresAt := time.Now().Add(pendingTTL)
	state := &PendingState{
		ChallengeHash: hashToken(challenge),
		ExpiresAt:     expiresAt,
	}
	if err := s.store.SetPending(ctx, userID, state); err != nil {
		return nil, err
	}

	return &Result{
		Code:           CodeTwoFactorPending,
		ExpiresAt:      expiresAt,
		ChallengeToken: challenge,
	}, nil
}

// activate issues a fresh token, stores only its hash, and fires the audit
// event. The raw token goes back to the caller for the cookie and is never
// persisted.
func (s *elevationService) activate(ctx context.Context, userID string) (*Result, error) {
	cfg, err := s.settings.GetSudoSettings(ctx)
	if err != nil {
		return nil, err
	}

	token, err := auth.GenerateToken(tokenBytes)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("generating elevation token: %w", err))
	}

	expiresAt := time.Now().Add(time.Duration(cfg.DurationMinutes) * time.Minute)
	if err := s.store.SetActivation(ctx, userID, hashToken(token), expiresAt); err != nil {
		return nil, err
	}

	s.audit.LogActivated(ctx, userID, expiresAt, cfg.DurationMinutes)

	return &Result{
		Code:      CodeSuccess,
		ExpiresAt: expiresAt,
		Token:     token,
	}, nil
}

// hashToken is the one-way binding hash: SHA-256 hex.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
