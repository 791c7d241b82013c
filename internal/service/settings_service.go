package service

import (
	"context"
	"fmt"

	"github.com/wiki-engagement/internal/clock"
	apperrors "github.com/wiki-engagement/internal/errors"
	"github.com/wiki-engagement/internal/models"
	"github.com/wiki-engagement/internal/types"
)

// SettingsUpdate is a partial update of notification settings; nil fields are left unchanged
type SettingsUpdate struct {
	NotifyOnCommentReply        *bool
	NotifyOnFollowedPageComment *bool
	NotifyOnFollowedPageUpdate  *bool
	EmailFrequency              *types.EmailFrequency
}

// SettingsService reads and updates notification preferences
type SettingsService struct {
	settings SettingsRepository
	clock    clock.Clock
}

// NewSettingsService creates a new settings service
func NewSettingsService(settings SettingsRepository, c clock.Clock) *SettingsService {
	if c == nil {
		c = clock.Real()
	}
	return &SettingsService{settings: settings, clock: c}
}

// Get returns an account's settings, creating the defaults on first reference
func (s *SettingsService) Get(ctx context.Context, accountID string) (*models.NotificationSettings, error) {
	settings, err := s.settings.GetOrCreate(ctx, accountID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load notification settings", err)
	}
	return settings, nil
}

// Update applies a partial update and returns the stored result
func (s *SettingsService) Update(ctx context.Context, accountID string, update SettingsUpdate) (*models.NotificationSettings, error) {
	if update.EmailFrequency != nil && !update.EmailFrequency.Valid() {
		return nil, apperrors.NewInvalidParameterError("emailFrequency",
			fmt.Sprintf("unsupported value %q", *update.EmailFrequency))
	}

	settings, err := s.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if update.NotifyOnCommentReply != nil {
		settings.NotifyOnCommentReply = *update.NotifyOnCommentReply
	}
	if update.NotifyOnFollowedPageComment != nil {
		settings.NotifyOnFollowedPageComment = *update.NotifyOnFollowedPageComment
	}
	if update.NotifyOnFollowedPageUpdate != nil {
		settings.NotifyOnFollowedPageUpdate = *update.NotifyOnFollowedPageUpdate
	}
	if update.EmailFrequency != nil {
		settings.EmailFrequency = *update.EmailFrequency
	}
	settings.UpdatedAt = s.clock.Now()

	if err := s.settings.Update(ctx, settings); err != nil {
		return nil, apperrors.NewDatabaseError("update notification settings", err)
	}
	return settings, nil
}
