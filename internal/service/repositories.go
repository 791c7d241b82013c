package service

import (
	"context"
	"time"

	"github.com/wiki-engagement/internal/models"
)

// AccountRepository interface for account state operations
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	UpdateLastCommentAt(ctx context.Context, id string, at time.Time) error
	// FreezeNonPrivileged sets frozen_until on every listed account that is neither
	// editor nor admin and returns the ids it froze
	FreezeNonPrivileged(ctx context.Context, ids []string, until time.Time) ([]string, error)
}

// CommentRepository interface for comment data operations
type CommentRepository interface {
	// Create persists the comment and increments the paragraph counter in the same transaction
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id string) (*models.Comment, error)
	// SoftDelete flags the comment deleted and decrements the paragraph counter in the same transaction
	SoftDelete(ctx context.Context, id string, at time.Time) error
	// DistinctAuthorsByIP returns the distinct authors of comments from ip created strictly after since
	DistinctAuthorsByIP(ctx context.Context, ip string, since time.Time) ([]string, error)
}

// PageDirectory interface for the page subsystem lookups fan-out depends on
type PageDirectory interface {
	FollowersOf(ctx context.Context, pageID string) ([]string, error)
	PageInfo(ctx context.Context, pageID string) (*models.PageInfo, error)
	PageOfParagraph(ctx context.Context, paragraphID string) (string, error)
}

// SettingsRepository interface for notification preferences
type SettingsRepository interface {
	// GetOrCreate returns the stored settings, creating the defaults on first reference
	GetOrCreate(ctx context.Context, accountID string) (*models.NotificationSettings, error)
	Update(ctx context.Context, settings *models.NotificationSettings) error
}

// NotificationRepository interface for writing notification rows
type NotificationRepository interface {
	CreateBatch(ctx context.Context, notifications []*models.Notification) error
}

// ParagraphCounter interface for the comment counter repair operation
type ParagraphCounter interface {
	// RecalculateCommentCounts recomputes every paragraph counter and returns the number of rows changed
	RecalculateCommentCounts(ctx context.Context) (int64, error)
}

// AbuseAuditSink interface for recording detected bursts
type AbuseAuditSink interface {
	RecordFreeze(ctx context.Context, event *models.AbuseEvent) error
}
