// Package appkeys implements application passwords: long-lived bearer
// credentials a user issues for headless API clients. Each credential can
// carry its own sudo policy override, letting an admin exempt a trusted
// automation credential from gating or shut a suspect one down entirely.
package appkeys

import "time"

// AppPassword is one application password. The raw secret is shown exactly
// once at creation; only the bcrypt hash and a lookup prefix are stored.
type AppPassword struct {
	ID        int    `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	KeyPrefix string `json:"key_prefix"`
	KeyHash   string `json:"-"`

	// Policy is the per-credential sudo override. Empty means "inherit the
	// global rest_app_password policy".
	Policy string `json:"policy"`

	LastUsedAt *time.Time `json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// CreateAppPasswordResult carries the raw secret back to the caller exactly
// once alongside the stored record.
type CreateAppPasswordResult struct {
	AppPassword *AppPassword `json:"app_password"`
	RawKey      string       `json:"raw_key"`
}
