package storage

import (
	"context"
	"fmt"

	"github.com/wiki-engagement/internal/models"
	"github.com/wiki-engagement/internal/types"
)

// SettingsRepository handles notification settings persistence
type SettingsRepository struct {
	db *PostgresDB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *PostgresDB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetOrCreate returns the account's settings, inserting the defaults on first reference.
// Concurrent first references converge on a single row.
func (r *SettingsRepository) GetOrCreate(ctx context.Context, accountID string) (*models.NotificationSettings, error) {
	d := models.DefaultNotificationSettings(accountID)

	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO notification_settings (
			account_id, notify_on_comment_reply, notify_on_followed_page_comment,
			notify_on_followed_page_update, email_frequency, updated_at
		) VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (account_id) DO NOTHING
	`, d.AccountID, d.NotifyOnCommentReply, d.NotifyOnFollowedPageComment, d.NotifyOnFollowedPageUpdate, string(d.EmailFrequency))
	if err != nil {
		return nil, fmt.Errorf("failed to create default settings: %w", err)
	}

	var s models.NotificationSettings
	var frequency string
	err = r.db.Pool().QueryRow(ctx, `
		SELECT account_id, notify_on_comment_reply, notify_on_followed_page_comment,
		       notify_on_followed_page_update, email_frequency, updated_at
		FROM notification_settings
		WHERE account_id = $1
	`, accountID).Scan(
		&s.AccountID,
		&s.NotifyOnCommentReply,
		&s.NotifyOnFollowedPageComment,
		&s.NotifyOnFollowedPageUpdate,
		&frequency,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	s.EmailFrequency = types.EmailFrequency(frequency)
	if !s.EmailFrequency.Valid() {
		s.EmailFrequency = types.FrequencyNone
	}
	return &s, nil
}

// Update writes every settings field
func (r *SettingsRepository) Update(ctx context.Context, s *models.NotificationSettings) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO notification_settings (
			account_id, notify_on_comment_reply, notify_on_followed_page_comment,
			notify_on_followed_page_update, email_frequency, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id) DO UPDATE SET
			notify_on_comment_reply = EXCLUDED.notify_on_comment_reply,
			notify_on_followed_page_comment = EXCLUDED.notify_on_followed_page_comment,
			notify_on_followed_page_update = EXCLUDED.notify_on_followed_page_update,
			email_frequency = EXCLUDED.email_frequency,
			updated_at = EXCLUDED.updated_at
	`,
		s.AccountID,
		s.NotifyOnCommentReply,
		s.NotifyOnFollowedPageComment,
		s.NotifyOnFollowedPageUpdate,
		string(s.EmailFrequency),
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return nil
}
