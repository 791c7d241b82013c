package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wiki-engagement/internal/models"
)

// PageRepository reads the page subsystem's pages, paragraphs and followers
type PageRepository struct {
	db *PostgresDB
}

// NewPageRepository creates a new page repository
func NewPageRepository(db *PostgresDB) *PageRepository {
	return &PageRepository{db: db}
}

// CreatePage inserts or renames a page
func (r *PageRepository) CreatePage(ctx context.Context, page *models.PageInfo) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO pages (id, title, slug, chapter_slug)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, slug = EXCLUDED.slug, chapter_slug = EXCLUDED.chapter_slug
	`, page.ID, page.Title, page.Slug, page.ChapterSlug)
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}
	return nil
}

// CreateParagraph inserts a paragraph with a zero comment counter
func (r *PageRepository) CreateParagraph(ctx context.Context, id, pageID string) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO paragraphs (id, page_id) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, id, pageID)
	if err != nil {
		return fmt.Errorf("failed to create paragraph: %w", err)
	}
	return nil
}

// Follow subscribes an account to a page
func (r *PageRepository) Follow(ctx context.Context, pageID, accountID string) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO page_followers (page_id, account_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, pageID, accountID)
	if err != nil {
		return fmt.Errorf("failed to follow page: %w", err)
	}
	return nil
}

// FollowersOf returns the accounts following a page
func (r *PageRepository) FollowersOf(ctx context.Context, pageID string) ([]string, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT account_id FROM page_followers WHERE page_id = $1 ORDER BY created_at
	`, pageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query followers: %w", err)
	}

	followers, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read followers: %w", err)
	}
	return followers, nil
}

// PageInfo returns a page's display information
func (r *PageRepository) PageInfo(ctx context.Context, pageID string) (*models.PageInfo, error) {
	var p models.PageInfo
	err := r.db.Pool().QueryRow(ctx, `
		SELECT id, title, slug, chapter_slug FROM pages WHERE id = $1
	`, pageID).Scan(&p.ID, &p.Title, &p.Slug, &p.ChapterSlug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("page %s: %w", pageID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get page: %w", err)
	}
	return &p, nil
}

// PageOfParagraph returns the page a paragraph belongs to
func (r *PageRepository) PageOfParagraph(ctx context.Context, paragraphID string) (string, error) {
	p, err := r.GetParagraph(ctx, paragraphID)
	if err != nil {
		return "", err
	}
	return p.PageID, nil
}

// GetParagraph returns a paragraph with its current comment counter
func (r *PageRepository) GetParagraph(ctx context.Context, id string) (*models.Paragraph, error) {
	var p models.Paragraph
	err := r.db.Pool().QueryRow(ctx, `
		SELECT id, page_id, comment_count FROM paragraphs WHERE id = $1
	`, id).Scan(&p.ID, &p.PageID, &p.CommentCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("paragraph %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get paragraph: %w", err)
	}
	return &p, nil
}
