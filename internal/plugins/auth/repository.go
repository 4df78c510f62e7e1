package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quillcms/sudogate/internal/apperror"
)

// UserRepository defines the data access contract for user operations.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)

	// Capability integrity. Live grants come from role_capabilities; the
	// baseline is the snapshot recorded the last time an admin blessed the
	// grant set.
	ListRoleCapabilities(ctx context.Context) ([]RoleCapability, error)
	ListBaselineCapabilities(ctx context.Context) ([]RoleCapability, error)
	ReplaceBaseline(ctx context.Context, grants []RoleCapability) error
}

// userRepository implements UserRepository with hand-written MariaDB queries.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository backed by the given DB pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

// FindByID retrieves a user by their UUID.
// Returns apperror.NotFound if no user exists with this ID.
func (r *userRepository) FindByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT id, email, display_name, password_hash, role, is_admin,
	                 totp_secret, totp_enabled, is_disabled, created_at, last_login_at
	          FROM users WHERE id = ?`

	user := &User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.Role,
		&user.IsAdmin,
		&user.TOTPSecret,
		&user.TOTPEnabled,
		&user.IsDisabled,
		&user.CreatedAt,
		&user.LastLoginAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("querying user %s: %w", id, err))
	}
	return user, nil
}

// FindByEmail retrieves a user by their email address.
// Returns apperror.NotFound if no user exists with this email.
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT id, email, display_name, password_hash, role, is_admin,
	                 totp_secret, totp_enabled, is_disabled, created_at, last_login_at
	          FROM users WHERE email = ?`

	user := &User{}
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.Role,
		&user.IsAdmin,
		&user.TOTPSecret,
		&user.TOTPEnabled,
		&user.IsDisabled,
		&user.CreatedAt,
		&user.LastLoginAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("querying user by email: %w", err))
	}
	return user, nil
}

// ListRoleCapabilities returns every live role-to-capability grant.
func (r *userRepository) ListRoleCapabilities(ctx context.Context) ([]RoleCapability, error) {
	return r.listGrants(ctx, "role_capabilities")
}

// ListBaselineCapabilities returns the recorded baseline grant set.
func (r *userRepository) ListBaselineCapabilities(ctx context.Context) ([]RoleCapability, error) {
	return r.listGrants(ctx, "role_capability_baseline")
}

// listGrants reads (role, capability) pairs from the named table. The table
// name comes from the two constants above, never from user input.
func (r *userRepository) listGrants(ctx context.Context, table string) ([]RoleCapability, error) {
	query := `SELECT role, capability FROM ` + table + ` ORDER BY role, capability`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("querying %s: %w", table, err))
	}
	defer rows.Close()

	var grants []RoleCapability
	for rows.Next() {
		var g RoleCapability
		if err := rows.Scan(&g.Role, &g.Capability); err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("scanning %s row: %w", table, err))
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("iterating %s: %w", table, err))
	}
	return grants, nil
}

// ReplaceBaseline atomically replaces the baseline snapshot with the given
// grant set. Called when an admin confirms the current grants are intended.
func (r *userRepository) ReplaceBaseline(ctx context.Context, grants []RoleCapability) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("beginning baseline tx: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_capability_baseline`); err != nil {
		return apperror.NewInternal(fmt.Errorf("clearing baseline: %w", err))
	}

	insert := `INSERT INTO role_capability_baseline (role, capability) VALUES (?, ?)`
	for _, g := range grants {
		if _, err := tx.ExecContext(ctx, insert, g.Role, g.Capability); err != nil {
			return apperror.NewInternal(fmt.Errorf("inserting baseline grant: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return apperror.NewInternal(fmt.Errorf("committing baseline: %w", err))
	}
	return nil
}
