package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wiki-engagement/internal/logging"
	"github.com/wiki-engagement/internal/models"
	"github.com/wiki-engagement/internal/service"
	"github.com/wiki-engagement/internal/testutil"
	"github.com/wiki-engagement/internal/types"
)

var epoch = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

type apiEnv struct {
	server        *Server
	clock         *testutil.FakeClock
	accounts      *testutil.MemAccounts
	pages         *testutil.MemPages
	comments      *testutil.MemComments
	settings      *testutil.MemSettings
	notifications *testutil.MemNotifications
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	clk := testutil.NewFakeClock(epoch)
	pages := testutil.NewMemPages()
	env := &apiEnv{
		clock:         clk,
		accounts:      testutil.NewMemAccounts(),
		pages:         pages,
		comments:      testutil.NewMemComments(pages),
		settings:      testutil.NewMemSettings(),
		notifications: testutil.NewMemNotifications(clk.Now),
	}
	logger := logging.NewNopLogger()

	guard, err := service.NewGuard(service.GuardConfig{Accounts: env.accounts, Comments: env.comments, Clock: clk, Logger: logger})
	require.NoError(t, err)
	detector, err := service.NewAbuseDetector(service.AbuseDetectorConfig{Accounts: env.accounts, Comments: env.comments, Logger: logger})
	require.NoError(t, err)
	fanout, err := service.NewFanout(service.FanoutConfig{
		Accounts:      env.accounts,
		Comments:      env.comments,
		Pages:         pages,
		Settings:      env.settings,
		Notifications: env.notifications,
		Clock:         clk,
		Logger:        logger,
	})
	require.NoError(t, err)
	comments, err := service.NewCommentService(service.CommentServiceConfig{
		Guard:    guard,
		Detector: detector,
		Fanout:   fanout,
		Accounts: env.accounts,
		Comments: env.comments,
		Counter:  env.comments,
		Clock:    clk,
		Logger:   logger,
	})
	require.NoError(t, err)

	env.server = NewServer(&ServerConfig{Host: "localhost", Port: "0", RequestsPerSec: 1000, Burst: 1000}, Dependencies{
		Comments: comments,
		Pages:    service.NewPageService(fanout, logger),
		Settings: service.NewSettingsService(env.settings, clk),
		Accounts: env.accounts,
		Logger:   logger,
	})

	pages.AddPage(&models.PageInfo{ID: "page-1", Title: "Getting Started", Slug: "getting-started", ChapterSlug: "intro"})
	pages.AddParagraph("para-1", "page-1")
	return env
}

func (e *apiEnv) addAccount(id string, roles ...types.Role) {
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

// do sends a request as userID (empty for anonymous) and returns the recorder
func (e *apiEnv) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ServiceError {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func strPtr(s string) *string { return &s }

// compile-time check that the in-memory stores satisfy the lookup interface
var _ AccountLookup = (*testutil.MemAccounts)(nil)
