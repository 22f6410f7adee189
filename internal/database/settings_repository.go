package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/reviewalarm/pkg/models"
	"github.com/jmoiron/sqlx"
)

// SettingsRepository stores per-user reminder settings
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository creates a new repository instance
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get retrieves reminder settings, or nil when the user has none saved
func (r *SettingsRepository) Get(ctx context.Context, userID int64) (*models.ReminderSettings, error) {
	query := `
		SELECT user_id, interval_seconds, enabled, start_hour, end_hour, updated_at
		FROM reminder_settings
		WHERE user_id = ?
	`
	var settings models.ReminderSettings
	err := r.db.GetContext(ctx, &settings, r.db.Rebind(query), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder settings: %w", err)
	}
	return &settings, nil
}

// Save inserts or replaces the user's reminder settings
func (r *SettingsRepository) Save(ctx context.Context, settings *models.ReminderSettings) error {
	settings.UpdatedAt = time.Now().UTC()
	query := `
		INSERT INTO reminder_settings (user_id, interval_seconds, enabled, start_hour, end_hour, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			interval_seconds = excluded.interval_seconds,
			enabled = excluded.enabled,
			start_hour = excluded.start_hour,
			end_hour = excluded.end_hour,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		settings.UserID,
		settings.IntervalSeconds,
		settings.Enabled,
		settings.StartHour,
		settings.EndHour,
		settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save reminder settings: %w", err)
	}
	return nil
}

// SetEnabled flips the enabled flag, creating default settings if needed
func (r *SettingsRepository) SetEnabled(ctx context.Context, userID int64, enabled bool, defaults models.ReminderSettings) error {
	settings, err := r.Get(ctx, userID)
	if err != nil {
		return err
	}
	if settings == nil {
		settings = &defaults
		settings.UserID = userID
	}
	settings.Enabled = enabled
	return r.Save(ctx, settings)
}
