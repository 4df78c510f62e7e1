// Package audit records sudo-mode security events: elevation lifecycle
// (activated, deactivated), re-authentication failures and lockouts, gated
// and blocked actions, and capability tampering. Events are persisted to
// MariaDB and consumed by the admin dashboard and external log shippers.
//
// Writes are fire-and-forget: an audit failure must never block the
// operation that triggered it.
package audit

import "time"

// Event types recorded by Sudogate. These are stable identifiers -- external
// collaborators filter on them, so renaming is a breaking change.
const (
	// EventActivated fires when a user successfully elevates.
	EventActivated = "sudo.activated"

	// EventDeactivated fires when an elevated session is explicitly dropped.
	EventDeactivated = "sudo.deactivated"

	// EventReauthFailed fires on every failed re-authentication attempt.
	EventReauthFailed = "sudo.reauth_failed"

	// EventLockout fires when the failed-attempt counter reaches the maximum.
	EventLockout = "sudo.lockout"

	// EventActionGated fires when an interactive request is intercepted and
	// sent into the challenge flow.
	EventActionGated = "sudo.action_gated"

	// EventActionBlocked fires when a headless request is rejected outright.
	EventActionBlocked = "sudo.action_blocked"

	// EventCapabilityTampered fires when a role gained a sensitive capability
	// outside the recorded baseline.
	EventCapabilityTampered = "sudo.capability_tampered"
)

// Event is a single persisted audit entry. UserID is empty for events that
// are not tied to a user (capability tampering).
type Event struct {
	ID        int64          `json:"id"`
	EventType string         `json:"event_type"`
	UserID    string         `json:"user_id,omitempty"`
	RuleID    string         `json:"rule_id,omitempty"`
	Surface   string         `json:"surface,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
