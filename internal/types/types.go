// Package types provides common type definitions for the comment and notification pipeline.
package types

// Role represents an account role
type Role string

const (
	// RoleViewer can read and comment, subject to throttling and freezes
	RoleViewer Role = "viewer"
	// RoleEditor edits pages and bypasses comment throttling
	RoleEditor Role = "editor"
	// RoleAdmin administers the wiki and bypasses comment throttling
	RoleAdmin Role = "admin"
)

// IsPrivileged reports whether the role is exempt from throttle and freeze checks
func (r Role) IsPrivileged() bool {
	return r == RoleEditor || r == RoleAdmin
}

// ParseRole parses a role name, returning false for unknown values
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleViewer, RoleEditor, RoleAdmin:
		return Role(s), true
	default:
		return "", false
	}
}

// EmailFrequency is the cadence at which a recipient receives notification email
type EmailFrequency string

const (
	// FrequencyNone disables notification email
	FrequencyNone EmailFrequency = "none"
	// FrequencyImmediate sends one email per notification on the next tick
	FrequencyImmediate EmailFrequency = "immediate"
	// FrequencyHourly sends one digest per hour
	FrequencyHourly EmailFrequency = "hourly"
	// FrequencyDaily sends one digest per UTC day
	FrequencyDaily EmailFrequency = "daily"
)

// Valid reports whether f is a known frequency
func (f EmailFrequency) Valid() bool {
	switch f {
	case FrequencyNone, FrequencyImmediate, FrequencyHourly, FrequencyDaily:
		return true
	default:
		return false
	}
}

// NotificationType identifies the event that produced a notification
type NotificationType string

const (
	// NotificationCommentReply is sent to the author of the comment being replied to
	NotificationCommentReply NotificationType = "CommentReply"
	// NotificationNewComment is sent to followers of the commented page
	NotificationNewComment NotificationType = "NewComment"
	// NotificationPageUpdate is sent to followers of an edited page
	NotificationPageUpdate NotificationType = "PageUpdate"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
