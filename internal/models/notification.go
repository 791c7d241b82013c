package models

import (
	"time"

	"github.com/wiki-engagement/internal/types"
)

// Notification is one row per (recipient, event).
// EmailSent only ever moves from false to true and is written by the digest scheduler alone.
// Params is nil when the stored payload could not be decoded.
type Notification struct {
	ID            string                 `json:"id" db:"id"`
	RecipientID   string                 `json:"recipientId" db:"recipient_id"`
	Type          types.NotificationType `json:"type" db:"type"`
	Params        NotificationParams     `json:"params" db:"params"`
	PageID        *string                `json:"pageId,omitempty" db:"page_id"`
	CommentID     *string                `json:"commentId,omitempty" db:"comment_id"`
	RelatedUserID string                 `json:"relatedUserId" db:"related_user_id"`
	IsRead        bool                   `json:"isRead" db:"is_read"`
	ReadAt        *time.Time             `json:"readAt,omitempty" db:"read_at"`
	EmailSent     bool                   `json:"emailSent" db:"email_sent"`
	CreatedAt     time.Time              `json:"createdAt" db:"created_at"`
}

// TitleKey returns the localization key of the notification title
func (n *Notification) TitleKey() string {
	return TitleKeyFor(n.Type)
}

// MessageKey returns the localization key of the notification body
func (n *Notification) MessageKey() string {
	return MessageKeyFor(n.Type)
}

// TitleKeyFor returns the title localization key for a notification type
func TitleKeyFor(t types.NotificationType) string {
	return "notification." + keySegment(t) + ".title"
}

// MessageKeyFor returns the message localization key for a notification type
func MessageKeyFor(t types.NotificationType) string {
	return "notification." + keySegment(t) + ".message"
}

func keySegment(t types.NotificationType) string {
	switch t {
	case types.NotificationCommentReply:
		return "comment_reply"
	case types.NotificationNewComment:
		return "new_comment"
	case types.NotificationPageUpdate:
		return "page_update"
	default:
		return "unknown"
	}
}
