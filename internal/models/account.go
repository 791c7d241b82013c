// Package models provides data models for the comment and notification pipeline.
package models

import (
	"time"

	"github.com/wiki-engagement/internal/types"
)

// Account represents a wiki account as seen by comment admission
type Account struct {
	ID            string       `json:"id" db:"id"`
	Email         string       `json:"email" db:"email"`
	DisplayName   string       `json:"displayName" db:"display_name"`
	Roles         []types.Role `json:"roles" db:"roles"`
	LastCommentAt *time.Time   `json:"lastCommentAt,omitempty" db:"last_comment_at"`
	FrozenUntil   *time.Time   `json:"frozenUntil,omitempty" db:"frozen_until"`
	IsBlocked     bool         `json:"isBlocked" db:"is_blocked"`
	CreatedAt     time.Time    `json:"createdAt" db:"created_at"`
}

// IsPrivileged reports whether the account holds the editor or admin role
func (a *Account) IsPrivileged() bool {
	for _, r := range a.Roles {
		if r.IsPrivileged() {
			return true
		}
	}
	return false
}

// IsFrozenAt reports whether a freeze is in effect at now
func (a *Account) IsFrozenAt(now time.Time) bool {
	return a.FrozenUntil != nil && a.FrozenUntil.After(now)
}
