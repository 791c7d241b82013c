package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiki-engagement/internal/models"
	"github.com/wiki-engagement/internal/types"
)

// seedPage creates a page with one paragraph and returns their ids
func seedPage(t *testing.T, pages *PageRepository) (string, string) {
	t.Helper()
	ctx := testContext(t)

	pageID := "page-" + uuid.NewString()
	paragraphID := "para-" + uuid.NewString()
	require.NoError(t, pages.CreatePage(ctx, &models.PageInfo{ID: pageID, Title: "Intro", Slug: "intro", ChapterSlug: "basics"}))
	require.NoError(t, pages.CreateParagraph(ctx, paragraphID, pageID))
	return pageID, paragraphID
}

func seedAccount(t *testing.T, accounts *AccountRepository, roles ...types.Role) string {
	t.Helper()
	if len(roles) == 0 {
		roles = []types.Role{types.RoleViewer}
	}
	id := "acct-" + uuid.NewString()
	require.NoError(t, accounts.Upsert(testContext(t), &models.Account{
		ID:          id,
		Email:       id + "@example.com",
		DisplayName: id,
		Roles:       roles,
	}))
	return id
}

func TestNewPostgresDB(t *testing.T) {
	db := testPostgres(t)

	ctx := testContext(t)
	if err := db.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if db.Pool() == nil {
		t.Error("Pool() returned nil")
	}
}

func TestAccountRepository_Integration(t *testing.T) {
	db := testPostgres(t)
	accounts := NewAccountRepository(db)
	ctx := testContext(t)

	viewer := seedAccount(t, accounts)
	editor := seedAccount(t, accounts, types.RoleEditor)

	got, err := accounts.GetByID(ctx, viewer)
	require.NoError(t, err)
	assert.Equal(t, []types.Role{types.RoleViewer}, got.Roles)
	assert.Nil(t, got.LastCommentAt)

	_, err = accounts.GetByID(ctx, "missing-"+uuid.NewString())
	assert.True(t, errors.Is(err, ErrNotFound))

	at := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, accounts.UpdateLastCommentAt(ctx, viewer, at))
	got, err = accounts.GetByID(ctx, viewer)
	require.NoError(t, err)
	require.NotNil(t, got.LastCommentAt)
	assert.True(t, got.LastCommentAt.Equal(at))

	until := at.Add(24 * time.Hour)
	frozen, err := accounts.FreezeNonPrivileged(ctx, []string{viewer, editor}, until)
	require.NoError(t, err)
	assert.Equal(t, []string{viewer}, frozen)

	got, err = accounts.GetByID(ctx, editor)
	require.NoError(t, err)
	assert.Nil(t, got.FrozenUntil, "editors are never frozen")
}

func TestCommentRepository_CounterIntegration(t *testing.T) {
	db := testPostgres(t)
	accounts := NewAccountRepository(db)
	pages := NewPageRepository(db)
	comments := NewCommentRepository(db)
	ctx := testContext(t)

	author := seedAccount(t, accounts)
	_, paragraphID := seedPage(t, pages)

	ip := "10.1.2.3"
	c := &models.Comment{AuthorID: author, ParagraphID: &paragraphID, Content: "hi", OriginIP: &ip, CreatedAt: time.Now().UTC()}
	require.NoError(t, comments.Create(ctx, c))
	require.NotEmpty(t, c.ID)

	p, err := pages.GetParagraph(ctx, paragraphID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CommentCount)

	require.NoError(t, comments.SoftDelete(ctx, c.ID, time.Now().UTC()))
	require.NoError(t, comments.SoftDelete(ctx, c.ID, time.Now().UTC()))

	p, err = pages.GetParagraph(ctx, paragraphID)
	require.NoError(t, err)
	assert.Equal(t, 0, p.CommentCount, "repeated delete must not decrement twice")

	deleted, err := comments.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.NotNil(t, deleted.DeletedAt)

	err = comments.SoftDelete(ctx, "missing-"+uuid.NewString(), time.Now())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCommentRepository_UnknownParagraphRollsBack(t *testing.T) {
	db := testPostgres(t)
	accounts := NewAccountRepository(db)
	comments := NewCommentRepository(db)
	ctx := testContext(t)

	author := seedAccount(t, accounts)
	missing := "para-" + uuid.NewString()
	c := &models.Comment{AuthorID: author, ParagraphID: &missing, Content: "hi"}

	assert.Error(t, comments.Create(ctx, c))
	_, err := comments.GetByID(ctx, c.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCommentRepository_DistinctAuthorsByIP(t *testing.T) {
	db := testPostgres(t)
	accounts := NewAccountRepository(db)
	pages := NewPageRepository(db)
	comments := NewCommentRepository(db)
	ctx := testContext(t)

	pageID, _ := seedPage(t, pages)
	ip := "test-origin-" + uuid.NewString()
	now := time.Now().UTC()

	a := seedAccount(t, accounts)
	b := seedAccount(t, accounts)
	for _, author := range []string{a, a, b} {
		require.NoError(t, comments.Create(ctx, &models.Comment{
			AuthorID: author, PageID: &pageID, Content: "x", OriginIP: &ip, CreatedAt: now,
		}))
	}

	authors, err := comments.DistinctAuthorsByIP(ctx, ip, now.Add(-30*time.Second))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b}, authors)

	authors, err = comments.DistinctAuthorsByIP(ctx, ip, now)
	require.NoError(t, err)
	assert.Empty(t, authors, "the window excludes rows at its lower bound")
}

func TestCommentRepository_RecalculateCommentCounts(t *testing.T) {
	db := testPostgres(t)
	accounts := NewAccountRepository(db)
	pages := NewPageRepository(db)
	comments := NewCommentRepository(db)
	ctx := testContext(t)

	author := seedAccount(t, accounts)
	_, paragraphID := seedPage(t, pages)
	require.NoError(t, comments.Create(ctx, &models.Comment{AuthorID: author, ParagraphID: &paragraphID, Content: "x"}))

	_, err := db.Pool().Exec(ctx, `UPDATE paragraphs SET comment_count = 7 WHERE id = $1`, paragraphID)
	require.NoError(t, err)

	changed, err := comments.RecalculateCommentCounts(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, changed, int64(1))

	p, err := pages.GetParagraph(ctx, paragraphID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CommentCount)
}

func TestPageRepository_Integration(t *testing.T) {
	db := testPostgres(t)
	accounts := NewAccountRepository(db)
	pages := NewPageRepository(db)
	ctx := testContext(t)

	pageID, paragraphID := seedPage(t, pages)
	follower := seedAccount(t, accounts)
	require.NoError(t, pages.Follow(ctx, pageID, follower))
	require.NoError(t, pages.Follow(ctx, pageID, follower))

	followers, err := pages.FollowersOf(ctx, pageID)
	require.NoError(t, err)
	assert.Equal(t, []string{follower}, followers)

	info, err := pages.PageInfo(ctx, pageID)
	require.NoError(t, err)
	assert.Equal(t, "Intro", info.Title)

	owner, err := pages.PageOfParagraph(ctx, paragraphID)
	require.NoError(t, err)
	assert.Equal(t, pageID, owner)

	_, err = pages.PageInfo(ctx, "missing-"+uuid.NewString())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSettingsRepository_Integration(t *testing.T) {
	db := testPostgres(t)
	accounts := NewAccountRepository(db)
	settings := NewSettingsRepository(db)
	ctx := testContext(t)

	id := seedAccount(t, accounts)

	s, err := settings.GetOrCreate(ctx, id)
	require.NoError(t, err)
	assert.True(t, s.NotifyOnCommentReply)
	assert.Equal(t, types.FrequencyNone, s.EmailFrequency)

	s.EmailFrequency = types.FrequencyDaily
	s.NotifyOnFollowedPageUpdate = false
	s.UpdatedAt = time.Now().UTC()
	require.NoError(t, settings.Update(ctx, s))

	again, err := settings.GetOrCreate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.FrequencyDaily, again.EmailFrequency)
	assert.False(t, again.NotifyOnFollowedPageUpdate)
}

func TestNotificationRepository_Integration(t *testing.T) {
	db := testPostgres(t)
	accounts := NewAccountRepository(db)
	notifications := NewNotificationRepository(db)
	ctx := testContext(t)

	recipient := seedAccount(t, accounts)
	actor := seedAccount(t, accounts)
	base := time.Now().UTC().Truncate(time.Millisecond)

	batch := []*models.Notification{
		{
			RecipientID:   recipient,
			Type:          types.NotificationCommentReply,
			Params:        models.CommentParams{Username: "Bob", PageName: "Intro", Preview: "hello"},
			RelatedUserID: actor,
			CreatedAt:     base,
		},
		{
			RecipientID:   recipient,
			Type:          types.NotificationPageUpdate,
			Params:        models.PageUpdateParams{Username: "Bob", PageName: "Intro"},
			RelatedUserID: actor,
			CreatedAt:     base.Add(time.Second),
		},
	}
	require.NoError(t, notifications.CreateBatch(ctx, batch))

	unsent, err := notifications.ListUnsent(ctx, base.Add(-time.Millisecond))
	require.NoError(t, err)
	var mine []*models.Notification
	for _, n := range unsent {
		if n.RecipientID == recipient {
			mine = append(mine, n)
		}
	}
	require.Len(t, mine, 2)
	assert.Equal(t, types.NotificationCommentReply, mine[0].Type)
	assert.Equal(t, "hello", mine[0].Params.Values()["preview"])

	changed, err := notifications.MarkSent(ctx, []string{batch[0].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	changed, err = notifications.MarkSent(ctx, []string{batch[0].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), changed, "email_sent never flips twice")

	recent, err := notifications.ListForRecipient(ctx, recipient, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, batch[1].ID, recent[0].ID)
	assert.True(t, recent[1].EmailSent)
}

func TestNotificationRepository_UndecodableRowDoesNotHideOthers(t *testing.T) {
	db := testPostgres(t)
	accounts := NewAccountRepository(db)
	notifications := NewNotificationRepository(db)
	ctx := testContext(t)

	recipient := seedAccount(t, accounts)
	base := time.Now().UTC().Truncate(time.Millisecond)

	good := &models.Notification{
		RecipientID:   recipient,
		Type:          types.NotificationPageUpdate,
		Params:        models.PageUpdateParams{Username: "Bob", PageName: "Intro"},
		RelatedUserID: recipient,
		CreatedAt:     base.Add(time.Second),
	}
	require.NoError(t, notifications.CreateBatch(ctx, []*models.Notification{good}))

	badID := uuid.NewString()
	_, err := db.Pool().Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, type, params, related_user_id, created_at)
		VALUES ($1, $2, 'NewComment', '["not", "an", "object"]'::jsonb, $2, $3)
	`, badID, recipient, base)
	require.NoError(t, err)

	unsent, err := notifications.ListUnsent(ctx, base.Add(-time.Millisecond))
	require.NoError(t, err)
	byID := map[string]*models.Notification{}
	for _, n := range unsent {
		byID[n.ID] = n
	}
	require.Contains(t, byID, badID)
	require.Contains(t, byID, good.ID)
	assert.Nil(t, byID[badID].Params)
	assert.Equal(t, "Intro", byID[good.ID].Params.Values()["pageName"])

	_, err = db.Pool().Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, type, related_user_id, created_at)
		VALUES ($1, $2, 'Mention', $2, $3)
	`, uuid.NewString(), recipient, base)
	assert.Error(t, err, "unknown notification types are rejected by the schema")
}
