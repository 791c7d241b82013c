package models

import (
	"time"

	"github.com/wiki-engagement/internal/types"
)

// NotificationSettings holds one account's notification preferences
type NotificationSettings struct {
	AccountID                   string               `json:"accountId" db:"account_id"`
	NotifyOnCommentReply        bool                 `json:"notifyOnCommentReply" db:"notify_on_comment_reply"`
	NotifyOnFollowedPageComment bool                 `json:"notifyOnFollowedPageComment" db:"notify_on_followed_page_comment"`
	NotifyOnFollowedPageUpdate  bool                 `json:"notifyOnFollowedPageUpdate" db:"notify_on_followed_page_update"`
	EmailFrequency              types.EmailFrequency `json:"emailFrequency" db:"email_frequency"`
	UpdatedAt                   time.Time            `json:"updatedAt" db:"updated_at"`
}

// DefaultNotificationSettings returns the settings created on first reference to an account
func DefaultNotificationSettings(accountID string) *NotificationSettings {
	return &NotificationSettings{
		AccountID:                   accountID,
		NotifyOnCommentReply:        true,
		NotifyOnFollowedPageComment: true,
		NotifyOnFollowedPageUpdate:  true,
		EmailFrequency:              types.FrequencyNone,
	}
}
