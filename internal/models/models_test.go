package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiki-engagement/internal/types"
)

func TestAccount_IsPrivileged(t *testing.T) {
	assert.False(t, (&Account{Roles: []types.Role{types.RoleViewer}}).IsPrivileged())
	assert.True(t, (&Account{Roles: []types.Role{types.RoleViewer, types.RoleEditor}}).IsPrivileged())
	assert.True(t, (&Account{Roles: []types.Role{types.RoleAdmin}}).IsPrivileged())
	assert.False(t, (&Account{}).IsPrivileged())
}

func TestAccount_IsFrozenAt(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	assert.False(t, (&Account{}).IsFrozenAt(now))
	assert.True(t, (&Account{FrozenUntil: &future}).IsFrozenAt(now))
	assert.False(t, (&Account{FrozenUntil: &past}).IsFrozenAt(now))
	assert.False(t, (&Account{FrozenUntil: &now}).IsFrozenAt(now), "freeze ending exactly now is over")
}

func TestDecodeParams_CommentTypes(t *testing.T) {
	raw, err := EncodeParams(CommentParams{Username: "ana", PageName: "Intro", Preview: "hi"})
	require.NoError(t, err)

	for _, typ := range []types.NotificationType{types.NotificationCommentReply, types.NotificationNewComment} {
		p, err := DecodeParams(typ, raw)
		require.NoError(t, err)
		assert.Equal(t, CommentParams{Username: "ana", PageName: "Intro", Preview: "hi"}, p)
	}
}

func TestDecodeParams_PageUpdate(t *testing.T) {
	p, err := DecodeParams(types.NotificationPageUpdate, []byte(`{"username":"bo","pageName":"Setup"}`))
	require.NoError(t, err)
	assert.Equal(t, PageUpdateParams{Username: "bo", PageName: "Setup"}, p)
}

func TestDecodeParams_Errors(t *testing.T) {
	_, err := DecodeParams(types.NotificationType("Mention"), []byte(`{}`))
	assert.Error(t, err)

	_, err = DecodeParams(types.NotificationPageUpdate, []byte(`not json`))
	assert.Error(t, err)
}

func TestNotificationKeys(t *testing.T) {
	n := &Notification{Type: types.NotificationCommentReply}
	assert.Equal(t, "notification.comment_reply.title", n.TitleKey())
	assert.Equal(t, "notification.comment_reply.message", n.MessageKey())
	assert.Equal(t, "notification.page_update.message", MessageKeyFor(types.NotificationPageUpdate))
}
