package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quillcms/sudogate/internal/apperror"
)

// SettingsRepository defines the data access contract for site settings.
type SettingsRepository interface {
	// Get retrieves a single setting value by key. Returns NotFound if the key does not exist.
	Get(ctx context.Context, key string) (string, error)

	// Set upserts a setting value. Creates the key if it does not exist.
	Set(ctx context.Context, key, value string) error

	// GetAll returns every setting as a key-value map.
	GetAll(ctx context.Context) (map[string]string, error)
}

// settingsRepository implements SettingsRepository using MariaDB.
type settingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository creates a new settings repository backed by MariaDB.
func NewSettingsRepository(db *sql.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

// Get retrieves a single setting value by its key.
func (r *settingsRepository) Get(ctx context.Context, key string) (string, error) {
	query := `SELECT setting_value FROM site_settings WHERE setting_key = ?`

	var value string
	err := r.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperror.NewNotFound(fmt.Sprintf("setting %q not found", key))
	}
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("querying setting %q: %w", key, err))
	}
	return value, nil
}

// Set upserts a setting value using INSERT ... ON DUPLICATE KEY UPDATE.
func (r *settingsRepository) Set(ctx context.Context, key, value string) error {
	query := `INSERT INTO site_settings (setting_key, setting_value)
	          VALUES (?, ?)
	          ON DUPLICATE KEY UPDATE setting_value = VALUES(setting_value)`

	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return apperror.NewInternal(fmt.Errorf("upserting setting %q: %w", key, err))
	}
	return nil
}

// GetAll returns all settings as a key-value map.
func (r *settingsRepository) GetAll(ctx context.Context) (map[string]string, error) {
	query := `SELECT setting_key, setting_value FROM site_settings`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("querying all settings: %w", err))
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("scanning setting row: %w", err))
		}
		result[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("iterating settings: %w", err))
	}
	return result, nil
}
