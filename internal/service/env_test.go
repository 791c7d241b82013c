package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wiki-engagement/internal/logging"
	"github.com/wiki-engagement/internal/models"
	"github.com/wiki-engagement/internal/testutil"
	"github.com/wiki-engagement/internal/types"
)

var epoch = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

// testEnv wires every service against in-memory stores
type testEnv struct {
	clock         *testutil.FakeClock
	accounts      *testutil.MemAccounts
	pages         *testutil.MemPages
	comments      *testutil.MemComments
	settings      *testutil.MemSettings
	notifications *testutil.MemNotifications
	audit         *testutil.MemAuditSink

	guard    *Guard
	detector *AbuseDetector
	fanout   *Fanout
	comment  *CommentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := testutil.NewFakeClock(epoch)
	pages := testutil.NewMemPages()
	env := &testEnv{
		clock:         clk,
		accounts:      testutil.NewMemAccounts(),
		pages:         pages,
		comments:      testutil.NewMemComments(pages),
		settings:      testutil.NewMemSettings(),
		notifications: testutil.NewMemNotifications(clk.Now),
		audit:         &testutil.MemAuditSink{},
	}
	logger := logging.NewNopLogger()

	var err error
	env.guard, err = NewGuard(GuardConfig{
		Accounts: env.accounts,
		Comments: env.comments,
		Clock:    clk,
		Logger:   logger,
	})
	require.NoError(t, err)

	env.detector, err = NewAbuseDetector(AbuseDetectorConfig{
		Accounts: env.accounts,
		Comments: env.comments,
		Audit:    env.audit,
		Logger:   logger,
	})
	require.NoError(t, err)

	env.fanout, err = NewFanout(FanoutConfig{
		Accounts:      env.accounts,
		Comments:      env.comments,
		Pages:         pages,
		Settings:      env.settings,
		Notifications: env.notifications,
		Clock:         clk,
		Logger:        logger,
	})
	require.NoError(t, err)

	env.comment, err = NewCommentService(CommentServiceConfig{
		Guard:    env.guard,
		Detector: env.detector,
		Fanout:   env.fanout,
		Accounts: env.accounts,
		Comments: env.comments,
		Counter:  env.comments,
		Clock:    clk,
		Logger:   logger,
	})
	require.NoError(t, err)

	env.pages.AddPage(&models.PageInfo{ID: "page-1", Title: "Getting Started", Slug: "getting-started", ChapterSlug: "intro"})
	env.pages.AddParagraph("para-1", "page-1")
	return env
}

func (e *testEnv) addAccount(id string, roles ...types.Role) {
	if len(roles) == 0 {
		roles = []types.Role{types.RoleViewer}
	}
	e.accounts.Put(&models.Account{
		ID:          id,
		Email:       id + "@example.com",
		DisplayName: "User " + id,
		Roles:       roles,
		CreatedAt:   epoch.Add(-24 * time.Hour),
	})
}

func (e *testEnv) account(t *testing.T, id string) *models.Account {
	t.Helper()
	a, err := e.accounts.GetByID(t.Context(), id)
	require.NoError(t, err)
	return a
}

func strPtr(s string) *string { return &s }

func pageTarget(pageID string) models.CommentTarget {
	return models.CommentTarget{PageID: strPtr(pageID)}
}

func (e *testEnv) notificationsFor(recipient string) []*models.Notification {
	var out []*models.Notification
	for _, n := range e.notifications.All() {
		if n.RecipientID == recipient {
			out = append(out, n)
		}
	}
	return out
}
