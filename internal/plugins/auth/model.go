// Package auth is Sudogate's glue to the Quill host platform's identity
// layer: user lookup, login-session validation, argon2id password
// verification, and TOTP second-factor verification. Sudogate never creates
// accounts -- registration and login belong to the host platform; this
// package only needs to answer "who is making this request" and "did they
// just re-prove their identity".
package auth

import (
	"time"
)

// User represents a registered platform user. This is the domain model used
// throughout the application. Database scanning and JSON marshaling use this
// struct directly.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name"`
	PasswordHash string     `json:"-"` // Never expose in JSON responses.
	Role         string     `json:"role"`
	IsAdmin      bool       `json:"is_admin"`
	TOTPSecret   *string    `json:"-"` // Never expose.
	TOTPEnabled  bool       `json:"totp_enabled"`
	IsDisabled   bool       `json:"is_disabled"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// Session represents an authenticated host login session stored in Redis.
// The session token is the key, and this struct is the value (JSON-encoded).
// This is the LONG-LIVED session; the short-lived elevated session lives in
// the elevation plugin and is bound separately.
type Session struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// RoleCapability is a single role-to-capability grant row. The capability
// integrity checker compares live grants against the recorded baseline.
type RoleCapability struct {
	Role       string `json:"role"`
	Capability string `json:"capability"`
}
