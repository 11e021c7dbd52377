package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"agrimon-alert/internal/models"

	"go.uber.org/zap"
)

// PreferencesRepository owns the notification_preferences table. Preferences
// are stored whole as JSONB; partial-merge semantics live in the caller, so
// a write always persists the fully merged object.
type PreferencesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPreferencesRepository creates the preference store.
func NewPreferencesRepository(db *sql.DB, logger *zap.Logger) *PreferencesRepository {
	return &PreferencesRepository{
		db:     db,
		logger: logger,
	}
}

// GetPreferences returns the stored preferences for a user, or nil, nil when
// the user has never saved any. Reads never persist defaults.
func (r *PreferencesRepository) GetPreferences(ctx context.Context, userID string) (*models.Preferences, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	var prefsJSON []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT prefs FROM notification_preferences WHERE user_id = $1`,
		userID,
	).Scan(&prefsJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}

	var prefs models.Preferences
	if err := json.Unmarshal(prefsJSON, &prefs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preferences: %w", err)
	}
	if prefs.Contacts == nil {
		prefs.Contacts = map[string]string{}
	}

	return &prefs, nil
}

// UpsertPreferences persists the full preferences object for a user.
func (r *PreferencesRepository) UpsertPreferences(ctx context.Context, userID string, prefs models.Preferences) error {
	if userID == "" {
		return fmt.Errorf("user_id is required")
	}

	prefsJSON, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	query := `
		INSERT INTO notification_preferences (user_id, prefs, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET prefs = EXCLUDED.prefs,
		    updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query, userID, prefsJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert preferences: %w", err)
	}

	r.logger.Debug("Preferences saved",
		zap.String("user_id", userID),
	)

	return nil
}
