package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wiki-engagement/internal/models"
	"github.com/wiki-engagement/internal/types"
)

// NotificationRepository handles notification persistence
type NotificationRepository struct {
	db *PostgresDB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *PostgresDB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateBatch inserts every notification of one fan-out event in a single transaction
func (r *NotificationRepository) CreateBatch(ctx context.Context, notifications []*models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	query := `
		INSERT INTO notifications (
			id, recipient_id, type, params, page_id, comment_id, related_user_id,
			is_read, email_sent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, FALSE, $8)
	`

	batch := &pgx.Batch{}
	for _, n := range notifications {
		if n.ID == "" {
			n.ID = uuid.New().String()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = time.Now().UTC()
		}

		params, err := models.EncodeParams(n.Params)
		if err != nil {
			return fmt.Errorf("failed to encode params: %w", err)
		}

		batch.Queue(query,
			n.ID,
			n.RecipientID,
			string(n.Type),
			params,
			n.PageID,
			n.CommentID,
			n.RelatedUserID,
			n.CreatedAt,
		)
	}

	return pgx.BeginFunc(ctx, r.db.Pool(), func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert notifications: %w", err)
		}
		return nil
	})
}

// ListUnsent returns unsent notifications created strictly after createdAfter, oldest first.
// A zero createdAfter selects every unsent row.
func (r *NotificationRepository) ListUnsent(ctx context.Context, createdAfter time.Time) ([]*models.Notification, error) {
	query := `
		SELECT id, recipient_id, type, params, page_id, comment_id, related_user_id,
		       is_read, read_at, email_sent, created_at
		FROM notifications
		WHERE NOT email_sent
	`
	args := []interface{}{}
	if !createdAfter.IsZero() {
		query += ` AND created_at > $1`
		args = append(args, createdAfter)
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsent notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return out, nil
}

// ListForRecipient returns a recipient's most recent notifications, newest first
func (r *NotificationRepository) ListForRecipient(ctx context.Context, recipientID string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Pool().Query(ctx, `
		SELECT id, recipient_id, type, params, page_id, comment_id, related_user_id,
		       is_read, read_at, email_sent, created_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return out, nil
}

// MarkSent flips email_sent on the listed rows that are still unsent and returns how many changed
func (r *NotificationRepository) MarkSent(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.db.Pool().Exec(ctx, `
		UPDATE notifications SET email_sent = TRUE
		WHERE id = ANY($1) AND NOT email_sent
	`, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications sent: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanNotification(rows pgx.Rows) (*models.Notification, error) {
	var n models.Notification
	var typ string
	var params []byte

	if err := rows.Scan(
		&n.ID,
		&n.RecipientID,
		&typ,
		&params,
		&n.PageID,
		&n.CommentID,
		&n.RelatedUserID,
		&n.IsRead,
		&n.ReadAt,
		&n.EmailSent,
		&n.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}

	// an undecodable payload leaves Params nil so one bad row cannot hide the others
	n.Type = types.NotificationType(typ)
	if decoded, err := models.DecodeParams(n.Type, params); err == nil {
		n.Params = decoded
	}
	return &n, nil
}
