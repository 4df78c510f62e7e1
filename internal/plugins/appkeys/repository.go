package appkeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quillcms/sudogate/internal/apperror"
)

// AppPasswordRepository defines the data access contract for application
// passwords.
type AppPasswordRepository interface {
	Create(ctx context.Context, key *AppPassword) error
	FindByID(ctx context.Context, id int) (*AppPassword, error)
	FindByPrefix(ctx context.Context, prefix string) (*AppPassword, error)
	ListByUser(ctx context.Context, userID string) ([]AppPassword, error)
	UpdatePolicy(ctx context.Context, id int, policy string) error
	TouchLastUsed(ctx context.Context, id int) error
	Delete(ctx context.Context, id int) error
}

// appPasswordRepository implements AppPasswordRepository with MariaDB.
type appPasswordRepository struct {
	db *sql.DB
}

// NewAppPasswordRepository creates a new repository backed by the given pool.
func NewAppPasswordRepository(db *sql.DB) AppPasswordRepository {
	return &appPasswordRepository{db: db}
}

// Create inserts a new application password and fills in its assigned ID.
func (r *appPasswordRepository) Create(ctx context.Context, key *AppPassword) error {
	query := `INSERT INTO app_passwords (user_id, name, key_prefix, key_hash, policy)
	          VALUES (?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query, key.UserID, key.Name, key.KeyPrefix, key.KeyHash, key.Policy)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("inserting app password: %w", err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("reading app password id: %w", err))
	}
	key.ID = int(id)
	return nil
}

// FindByID retrieves an application password by its numeric ID.
func (r *appPasswordRepository) FindByID(ctx context.Context, id int) (*AppPassword, error) {
	query := `SELECT id, user_id, name, key_prefix, key_hash, policy, last_used_at, created_at
	          FROM app_passwords WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// FindByPrefix retrieves an application password by its lookup prefix.
func (r *appPasswordRepository) FindByPrefix(ctx context.Context, prefix string) (*AppPassword, error) {
	query := `SELECT id, user_id, name, key_prefix, key_hash, policy, last_used_at, created_at
	          FROM app_passwords WHERE key_prefix = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, prefix))
}

// scanOne scans a single app password row.
func (r *appPasswordRepository) scanOne(row *sql.Row) (*AppPassword, error) {
	key := &AppPassword{}
	err := row.Scan(
		&key.ID,
		&key.UserID,
		&key.Name,
		&key.KeyPrefix,
		&key.KeyHash,
		&key.Policy,
		&key.LastUsedAt,
		&key.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("application password not found")
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("scanning app password: %w", err))
	}
	return key, nil
}

// ListByUser returns all application passwords owned by a user.
func (r *appPasswordRepository) ListByUser(ctx context.Context, userID string) ([]AppPassword, error) {
	query := `SELECT id, user_id, name, key_prefix, key_hash, policy, last_used_at, created_at
	          FROM app_passwords WHERE user_id = ? ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing app passwords for %s: %w", userID, err))
	}
	defer rows.Close()

	var keys []AppPassword
	for rows.Next() {
		var key AppPassword
		if err := rows.Scan(
			&key.ID,
			&key.UserID,
			&key.Name,
			&key.KeyPrefix,
			&key.KeyHash,
			&key.Policy,
			&key.LastUsedAt,
			&key.CreatedAt,
		); err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("scanning app password row: %w", err))
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("iterating app passwords: %w", err))
	}
	return keys, nil
}

// UpdatePolicy sets the per-credential sudo policy override.
func (r *appPasswordRepository) UpdatePolicy(ctx context.Context, id int, policy string) error {
	query := `UPDATE app_passwords SET policy = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, policy, id)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("updating app password policy: %w", err))
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperror.NewNotFound("application password not found")
	}
	return nil
}

// TouchLastUsed records a successful authentication with this credential.
func (r *appPasswordRepository) TouchLastUsed(ctx context.Context, id int) error {
	query := `UPDATE app_passwords SET last_used_at = NOW() WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return apperror.NewInternal(fmt.Errorf("touching app password: %w", err))
	}
	return nil
}

// Delete removes an application password permanently.
func (r *appPasswordRepository) Delete(ctx context.Context, id int) error {
	query := `DELETE FROM app_passwords WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("deleting app password: %w", err))
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperror.NewNotFound("application password not found")
	}
	return nil
}
