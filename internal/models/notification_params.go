package models

import (
	"encoding/json"
	"fmt"

	"github.com/wiki-engagement/internal/types"
)

// NotificationParams carries the typed rendering parameters of a notification.
// Implementations: CommentParams, PageUpdateParams.
type NotificationParams interface {
	// Values returns the parameters in the generic key-value form used for storage and templates
	Values() map[string]string
}

// CommentParams parameterizes CommentReply and NewComment notifications
type CommentParams struct {
	Username string `json:"username"`
	PageName string `json:"pageName"`
	Preview  string `json:"preview"`
}

// Values implements NotificationParams
func (p CommentParams) Values() map[string]string {
	return map[string]string{
		"username": p.Username,
		"pageName": p.PageName,
		"preview":  p.Preview,
	}
}

// PageUpdateParams parameterizes PageUpdate notifications
type PageUpdateParams struct {
	Username string `json:"username"`
	PageName string `json:"pageName"`
}

// Values implements NotificationParams
func (p PageUpdateParams) Values() map[string]string {
	return map[string]string{
		"username": p.Username,
		"pageName": p.PageName,
	}
}

// EncodeParams serializes params to the JSON object stored alongside the notification
func EncodeParams(p NotificationParams) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.Values())
}

// DecodeParams rebuilds the typed params for a notification type from their stored form
func DecodeParams(t types.NotificationType, raw []byte) (NotificationParams, error) {
	values := map[string]string{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification params: %w", err)
		}
	}

	switch t {
	case types.NotificationCommentReply, types.NotificationNewComment:
		return CommentParams{
			Username: values["username"],
			PageName: values["pageName"],
			Preview:  values["preview"],
		}, nil
	case types.NotificationPageUpdate:
		return PageUpdateParams{
			Username: values["username"],
			PageName: values["pageName"],
		}, nil
	default:
		return nil, fmt.Errorf("unknown notification type: %s", t)
	}
}
