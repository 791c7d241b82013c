package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wiki-engagement/internal/clock"
	apperrors "github.com/wiki-engagement/internal/errors"
	"github.com/wiki-engagement/internal/logging"
	"github.com/wiki-engagement/internal/metrics"
	"github.com/wiki-engagement/internal/models"
	"github.com/wiki-engagement/internal/types"
)

// FanoutConfig contains configuration for notification fan-out
type FanoutConfig struct {
	Accounts      AccountRepository
	Comments      CommentRepository
	Pages         PageDirectory
	Settings      SettingsRepository
	Notifications NotificationRepository
	Clock         clock.Clock
	Logger        *logging.Logger
}

// Fanout turns comment and page-update events into per-recipient notifications
type Fanout struct {
	accounts      AccountRepository
	comments      CommentRepository
	pages         PageDirectory
	settings      SettingsRepository
	notifications NotificationRepository
	clock         clock.Clock
	logger        *logging.Logger
}

// NewFanout creates a new notification fan-out
func NewFanout(cfg FanoutConfig) (*Fanout, error) {
	switch {
	case cfg.Accounts == nil:
		return nil, fmt.Errorf("account repository is required")
	case cfg.Comments == nil:
		return nil, fmt.Errorf("comment repository is required")
	case cfg.Pages == nil:
		return nil, fmt.Errorf("page directory is required")
	case cfg.Settings == nil:
		return nil, fmt.Errorf("settings repository is required")
	case cfg.Notifications == nil:
		return nil, fmt.Errorf("notification repository is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetGlobalLogger()
	}

	return &Fanout{
		accounts:      cfg.Accounts,
		comments:      cfg.Comments,
		pages:         cfg.Pages,
		settings:      cfg.Settings,
		notifications: cfg.Notifications,
		clock:         cfg.Clock,
		logger:        cfg.Logger.WithField("component", "fanout"),
	}, nil
}

// OnCommentCreated notifies the replied-to author and the followers of the commented page.
// Entries computed before a failure are still written. Returns the number of notifications written.
func (f *Fanout) OnCommentCreated(ctx context.Context, comment *models.Comment) (int, error) {
	logger := f.logger.WithFields(map[string]interface{}{
		"commentId": comment.ID,
		"authorId":  comment.AuthorID,
	})

	params := models.CommentParams{
		Username: f.displayName(ctx, comment.AuthorID),
		Preview:  Preview(comment.Content),
	}
	var pageID *string
	page, err := f.resolvePage(ctx, comment)
	switch {
	case err != nil:
		logger.WithError(err).Warn("Failed to resolve page, notifying without a page name")
		if comment.PageID != nil && *comment.PageID != "" {
			id := *comment.PageID
			pageID = &id
		}
	case page != nil:
		params.PageName = page.Title
		id := page.ID
		pageID = &id
	}

	var (
		entries []*models.Notification
		errs    []error
	)
	notified := map[string]bool{comment.AuthorID: true}
	commentID := comment.ID

	newEntry := func(recipient string, t types.NotificationType) *models.Notification {
		return &models.Notification{
			ID:            uuid.New().String(),
			RecipientID:   recipient,
			Type:          t,
			Params:        params,
			PageID:        pageID,
			CommentID:     &commentID,
			RelatedUserID: comment.AuthorID,
		}
	}

	if comment.ParentID != nil && *comment.ParentID != "" {
		parent, err := f.comments.GetByID(ctx, *comment.ParentID)
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			logger.WithField("parentId", *comment.ParentID).Debug("Parent comment not found, skipping reply notification")
		case err != nil:
			errs = append(errs, fmt.Errorf("load parent comment: %w", err))
		case parent.AuthorID != comment.AuthorID:
			settings, err := f.settings.GetOrCreate(ctx, parent.AuthorID)
			if err != nil {
				logger.WithError(err).WithField("recipientId", parent.AuthorID).Error("Failed to load notification settings")
				errs = append(errs, err)
				break
			}
			if settings.NotifyOnCommentReply {
				entries = append(entries, newEntry(parent.AuthorID, types.NotificationCommentReply))
				notified[parent.AuthorID] = true
			}
		}
	}

	if comment.PageID != nil && *comment.PageID != "" {
		followers, err := f.pages.FollowersOf(ctx, *comment.PageID)
		if err != nil {
			errs = append(errs, fmt.Errorf("load followers: %w", err))
		}
		for _, follower := range followers {
			if notified[follower] {
				continue
			}
			notified[follower] = true

			settings, err := f.settings.GetOrCreate(ctx, follower)
			if err != nil {
				logger.WithError(err).WithField("recipientId", follower).Error("Failed to load notification settings")
				errs = append(errs, err)
				continue
			}
			if settings.NotifyOnFollowedPageComment {
				entries = append(entries, newEntry(follower, types.NotificationNewComment))
			}
		}
	}

	written, err := f.write(ctx, entries)
	if err != nil {
		errs = append(errs, err)
	}
	return written, errors.Join(errs...)
}

// OnPageUpdated notifies the followers of a page that an editor changed it.
// Returns the number of notifications written.
func (f *Fanout) OnPageUpdated(ctx context.Context, pageID, editorID string) (int, error) {
	logger := f.logger.WithFields(map[string]interface{}{
		"pageId":   pageID,
		"editorId": editorID,
	})

	page, err := f.pages.PageInfo(ctx, pageID)
	if err != nil {
		return 0, fmt.Errorf("load page %s: %w", pageID, err)
	}
	params := models.PageUpdateParams{
		Username: f.displayName(ctx, editorID),
		PageName: page.Title,
	}

	followers, err := f.pages.FollowersOf(ctx, pageID)
	if err != nil {
		return 0, fmt.Errorf("load followers: %w", err)
	}

	var (
		entries []*models.Notification
		errs    []error
	)
	seen := map[string]bool{editorID: true}
	for _, follower := range followers {
		if seen[follower] {
			continue
		}
		seen[follower] = true

		settings, err := f.settings.GetOrCreate(ctx, follower)
		if err != nil {
			logger.WithError(err).WithField("recipientId", follower).Error("Failed to load notification settings")
			errs = append(errs, err)
			continue
		}
		if !settings.NotifyOnFollowedPageUpdate {
			continue
		}
		id := page.ID
		entries = append(entries, &models.Notification{
			ID:            uuid.New().String(),
			RecipientID:   follower,
			Type:          types.NotificationPageUpdate,
			Params:        params,
			PageID:        &id,
			RelatedUserID: editorID,
		})
	}

	written, err := f.write(ctx, entries)
	if err != nil {
		errs = append(errs, err)
	}
	return written, errors.Join(errs...)
}

// resolvePage returns the page a comment is displayed on; paragraph comments roll up to their page
func (f *Fanout) resolvePage(ctx context.Context, comment *models.Comment) (*models.PageInfo, error) {
	var pageID string
	switch {
	case comment.PageID != nil && *comment.PageID != "":
		pageID = *comment.PageID
	case comment.ParagraphID != nil && *comment.ParagraphID != "":
		id, err := f.pages.PageOfParagraph(ctx, *comment.ParagraphID)
		if err != nil {
			return nil, fmt.Errorf("resolve paragraph %s: %w", *comment.ParagraphID, err)
		}
		pageID = id
	default:
		return nil, nil
	}

	page, err := f.pages.PageInfo(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("load page %s: %w", pageID, err)
	}
	return page, nil
}

// displayName falls back to the account id when the account cannot be loaded
func (f *Fanout) displayName(ctx context.Context, accountID string) string {
	account, err := f.accounts.GetByID(ctx, accountID)
	if err != nil {
		f.logger.WithError(err).WithField("accountId", accountID).Warn("Failed to resolve display name")
		return accountID
	}
	if account.DisplayName == "" {
		return accountID
	}
	return account.DisplayName
}

func (f *Fanout) write(ctx context.Context, entries []*models.Notification) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	now := f.clock.Now()
	for _, n := range entries {
		n.CreatedAt = now
	}
	if err := f.notifications.CreateBatch(ctx, entries); err != nil {
		return 0, apperrors.NewDatabaseError("create notifications", err)
	}
	for _, n := range entries {
		metrics.RecordNotificationCreated(string(n.Type))
	}
	return len(entries), nil
}
