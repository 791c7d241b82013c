package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wiki-engagement/internal/models"
)

// CommentRepository handles comment persistence and the per-paragraph comment counters
type CommentRepository struct {
	db *PostgresDB
}

// NewCommentRepository creates a new comment repository
func NewCommentRepository(db *PostgresDB) *CommentRepository {
	return &CommentRepository{db: db}
}

// Create inserts a comment and, for paragraph comments, increments the paragraph
// counter in the same transaction
func (r *CommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = uuid.New().String()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}

	return pgx.BeginFunc(ctx, r.db.Pool(), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO comments (id, author_id, page_id, paragraph_id, parent_id, content, origin_ip, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			comment.ID,
			comment.AuthorID,
			comment.PageID,
			comment.ParagraphID,
			comment.ParentID,
			comment.Content,
			comment.OriginIP,
			comment.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert comment: %w", err)
		}

		if comment.ParagraphID == nil {
			return nil
		}
		return adjustParagraphCount(ctx, tx, *comment.ParagraphID, 1)
	})
}

// GetByID retrieves a comment by ID, including soft-deleted ones
func (r *CommentRepository) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	query := `
		SELECT id, author_id, page_id, paragraph_id, parent_id, content, origin_ip,
		       created_at, is_deleted, deleted_at
		FROM comments
		WHERE id = $1
	`

	var c models.Comment
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.AuthorID,
		&c.PageID,
		&c.ParagraphID,
		&c.ParentID,
		&c.Content,
		&c.OriginIP,
		&c.CreatedAt,
		&c.IsDeleted,
		&c.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("comment %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}
	return &c, nil
}

// SoftDelete flags a comment deleted and decrements its paragraph counter in the same
// transaction. Deleting an already deleted comment changes nothing.
func (r *CommentRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return pgx.BeginFunc(ctx, r.db.Pool(), func(tx pgx.Tx) error {
		var paragraphID *string
		err := tx.QueryRow(ctx, `
			UPDATE comments
			SET is_deleted = TRUE, deleted_at = $2
			WHERE id = $1 AND NOT is_deleted
			RETURNING paragraph_id
		`, id, at).Scan(&paragraphID)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM comments WHERE id = $1)`, id).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check comment: %w", err)
			}
			if !exists {
				return fmt.Errorf("comment %s: %w", id, ErrNotFound)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to delete comment: %w", err)
		}

		if paragraphID == nil {
			return nil
		}
		return adjustParagraphCount(ctx, tx, *paragraphID, -1)
	})
}

// DistinctAuthorsByIP returns the distinct authors of comments posted from ip strictly after since
func (r *CommentRepository) DistinctAuthorsByIP(ctx context.Context, ip string, since time.Time) ([]string, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT DISTINCT author_id
		FROM comments
		WHERE origin_ip = $1 AND created_at > $2
	`, ip, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query authors by ip: %w", err)
	}

	authors, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read authors by ip: %w", err)
	}
	return authors, nil
}

// RecalculateCommentCounts recomputes every paragraph counter from its non-deleted
// comments and returns the number of paragraphs whose counter changed
func (r *CommentRepository) RecalculateCommentCounts(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool().Exec(ctx, `
		UPDATE paragraphs p
		SET comment_count = c.actual
		FROM (
			SELECT pr.id, COUNT(cm.id) AS actual
			FROM paragraphs pr
			LEFT JOIN comments cm ON cm.paragraph_id = pr.id AND NOT cm.is_deleted
			GROUP BY pr.id
		) c
		WHERE p.id = c.id AND p.comment_count <> c.actual
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to recalculate comment counts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// adjustParagraphCount moves a paragraph counter by delta, never below zero
func adjustParagraphCount(ctx context.Context, tx pgx.Tx, paragraphID string, delta int) error {
	tag, err := tx.Exec(ctx, `
		UPDATE paragraphs
		SET comment_count = GREATEST(comment_count + $2, 0)
		WHERE id = $1
	`, paragraphID, delta)
	if err != nil {
		return fmt.Errorf("failed to update paragraph comment count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("paragraph %s: %w", paragraphID, ErrNotFound)
	}
	return nil
}
