package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wiki-engagement/internal/errors"
	"github.com/wiki-engagement/internal/logging"
	"github.com/wiki-engagement/internal/models"
	"github.com/wiki-engagement/internal/types"
)

func TestCommentService_CreateFansOut(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount("alice")
	env.pages.Follow("page-1", "carol")

	a, err := env.comment.Create(context.Background(), AdmitRequest{AuthorID: "alice", Content: "hello", Target: pageTarget("page-1")})
	require.NoError(t, err)
	require.True(t, a.Admitted())
	assert.Len(t, env.notificationsFor("carol"), 1)
}

func TestCommentService_FanoutFailureIsSwallowed(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount("alice")
	env.pages.Follow("page-1", "carol")
	env.notifications.CreateErr = errors.New("notifications table locked")

	a, err := env.comment.Create(context.Background(), AdmitRequest{AuthorID: "alice", Content: "hello", Target: pageTarget("page-1")})
	require.NoError(t, err)
	assert.True(t, a.Admitted())
	assert.Len(t, env.comments.All(), 1)
}

func TestCommentService_RejectionSkipsPipeline(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount("alice")
	env.pages.Follow("page-1", "carol")

	_, err := env.comment.Create(context.Background(), AdmitRequest{AuthorID: "alice", Content: "1", Target: pageTarget("page-1")})
	require.NoError(t, err)
	a, err := env.comment.Create(context.Background(), AdmitRequest{AuthorID: "alice", Content: "2", Target: pageTarget("page-1")})
	require.NoError(t, err)

	require.NotNil(t, a.Rejection)
	assert.Len(t, env.notificationsFor("carol"), 1)
}

func TestCommentService_Delete(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount("alice")
	env.addAccount("bob")
	env.addAccount("ed", types.RoleEditor)

	a, err := env.comment.Create(context.Background(), AdmitRequest{
		AuthorID: "alice",
		Content:  "on a paragraph",
		Target:   models.CommentTarget{ParagraphID: strPtr("para-1")},
	})
	require.NoError(t, err)
	require.Equal(t, 1, env.pages.Paragraph("para-1").CommentCount)

	err = env.comment.Delete(context.Background(), "bob", a.Comment.ID)
	assert.Equal(t, http.StatusForbidden, apperrors.GetHTTPStatusCode(err))

	env.clock.Advance(time.Minute)
	require.NoError(t, env.comment.Delete(context.Background(), "ed", a.Comment.ID))
	assert.Equal(t, 0, env.pages.Paragraph("para-1").CommentCount)

	stored, err := env.comments.GetByID(context.Background(), a.Comment.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted)
	assert.Equal(t, epoch.Add(time.Minute), *stored.DeletedAt)

	// deleting twice does not decrement again
	require.NoError(t, env.comment.Delete(context.Background(), "alice", a.Comment.ID))
	assert.Equal(t, 0, env.pages.Paragraph("para-1").CommentCount)

	err = env.comment.Delete(context.Background(), "alice", "missing")
	assert.Equal(t, http.StatusNotFound, apperrors.GetHTTPStatusCode(err))
}

func TestCommentService_RecalculateParagraphCounts(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount("alice")
	_, err := env.comment.Create(context.Background(), AdmitRequest{
		AuthorID: "alice",
		Content:  "x",
		Target:   models.CommentTarget{ParagraphID: strPtr("para-1")},
	})
	require.NoError(t, err)
	env.pages.SetCommentCount("para-1", 42)

	changed, err := env.comment.RecalculateParagraphCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)
	assert.Equal(t, 1, env.pages.Paragraph("para-1").CommentCount)
}

func TestPageService_NotifyUpdatedSwallowsErrors(t *testing.T) {
	env := newTestEnv(t)
	svc := NewPageService(env.fanout, logging.NewNopLogger())

	assert.Zero(t, svc.NotifyUpdated(context.Background(), "missing", "ed"))

	env.pages.Follow("page-1", "carol")
	assert.Equal(t, 1, svc.NotifyUpdated(context.Background(), "page-1", "ed"))
}

func TestSettingsService_Update(t *testing.T) {
	env := newTestEnv(t)
	svc := NewSettingsService(env.settings, env.clock)

	got, err := svc.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, types.FrequencyNone, got.EmailFrequency)
	assert.True(t, got.NotifyOnCommentReply)

	hourly := types.FrequencyHourly
	off := false
	updated, err := svc.Update(context.Background(), "alice", SettingsUpdate{EmailFrequency: &hourly, NotifyOnFollowedPageUpdate: &off})
	require.NoError(t, err)
	assert.Equal(t, types.FrequencyHourly, updated.EmailFrequency)
	assert.False(t, updated.NotifyOnFollowedPageUpdate)
	assert.True(t, updated.NotifyOnFollowedPageComment)
	assert.Equal(t, epoch, updated.UpdatedAt)

	bad := types.EmailFrequency("weekly")
	_, err = svc.Update(context.Background(), "alice", SettingsUpdate{EmailFrequency: &bad})
	assert.Equal(t, http.StatusBadRequest, apperrors.GetHTTPStatusCode(err))
}
