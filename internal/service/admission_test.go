package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wiki-engagement/internal/errors"
	"github.com/wiki-engagement/internal/models"
	"github.com/wiki-engagement/internal/types"
)

func admit(t *testing.T, env *testEnv, author string) *Admission {
	t.Helper()
	a, err := env.guard.TryAdmit(context.Background(), AdmitRequest{
		AuthorID: author,
		Content:  "hello",
		Target:   pageTarget("page-1"),
	})
	require.NoError(t, err)
	return a
}

func TestTryAdmit_UnknownAccount(t *testing.T) {
	env := newTestEnv(t)

	a := admit(t, env, "ghost")

	require.NotNil(t, a.Rejection)
	assert.Equal(t, RejectionUnauthorized, a.Rejection.Kind)
	assert.Empty(t, env.comments.All())
}

func TestTryAdmit_BlockedAccount(t *testing.T) {
	env := newTestEnv(t)
	env.accounts.Put(&models.Account{ID: "blocked", Roles: []types.Role{types.RoleViewer}, IsBlocked: true})

	a := admit(t, env, "blocked")

	require.NotNil(t, a.Rejection)
	assert.Equal(t, RejectionUnauthorized, a.Rejection.Kind)
}

func TestTryAdmit_ThrottleWindow(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount("alice")

	first := admit(t, env, "alice")
	require.True(t, first.Admitted())
	assert.Equal(t, epoch, *env.account(t, "alice").LastCommentAt)

	env.clock.Advance(10*time.Second + 500*time.Millisecond)
	second := admit(t, env, "alice")
	require.NotNil(t, second.Rejection)
	assert.Equal(t, RejectionTooManyRequests, second.Rejection.Kind)
	assert.Equal(t, 20, second.Rejection.WaitSeconds)

	env.clock.Advance(19*time.Second + 500*time.Millisecond)
	third := admit(t, env, "alice")
	assert.True(t, third.Admitted(), "exactly 30s after the last comment is allowed")
	assert.Len(t, env.comments.All(), 2)
}

func TestTryAdmit_FrozenAccount(t *testing.T) {
	env := newTestEnv(t)
	until := epoch.Add(90*time.Minute + 300*time.Millisecond)
	env.accounts.Put(&models.Account{ID: "frozen", Roles: []types.Role{types.RoleViewer}, FrozenUntil: &until})

	a := admit(t, env, "frozen")
	require.NotNil(t, a.Rejection)
	assert.Equal(t, RejectionAccountFrozen, a.Rejection.Kind)
	assert.Equal(t, until, a.Rejection.FrozenUntil)
	assert.Equal(t, 5401, a.Rejection.RemainingSeconds)

	env.clock.Set(until.Add(time.Millisecond))
	assert.True(t, admit(t, env, "frozen").Admitted())
}

func TestTryAdmit_FreezeWinsOverThrottle(t *testing.T) {
	env := newTestEnv(t)
	until := epoch.Add(time.Hour)
	last := epoch.Add(-5 * time.Second)
	env.accounts.Put(&models.Account{ID: "u", Roles: []types.Role{types.RoleViewer}, FrozenUntil: &until, LastCommentAt: &last})

	a := admit(t, env, "u")
	require.NotNil(t, a.Rejection)
	assert.Equal(t, RejectionAccountFrozen, a.Rejection.Kind)
}

func TestTryAdmit_PrivilegedBypass(t *testing.T) {
	for _, role := range []types.Role{types.RoleEditor, types.RoleAdmin} {
		t.Run(string(role), func(t *testing.T) {
			env := newTestEnv(t)
			until := epoch.Add(time.Hour)
			last := epoch.Add(-time.Second)
			env.accounts.Put(&models.Account{ID: "staff", Roles: []types.Role{types.RoleViewer, role}, FrozenUntil: &until, LastCommentAt: &last})

			for i := 0; i < 3; i++ {
				assert.True(t, admit(t, env, "staff").Admitted())
			}
			assert.Equal(t, last, *env.account(t, "staff").LastCommentAt, "privileged accounts never accrue throttle state")
		})
	}
}

func TestTryAdmit_ParagraphCounterAndIP(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount("alice")

	a, err := env.guard.TryAdmit(context.Background(), AdmitRequest{
		AuthorID: "alice",
		Content:  "nice paragraph",
		Target:   models.CommentTarget{ParagraphID: strPtr("para-1")},
		OriginIP: "203.0.113.7",
	})
	require.NoError(t, err)
	require.True(t, a.Admitted())

	assert.Equal(t, 1, env.pages.Paragraph("para-1").CommentCount)
	require.NotNil(t, a.Comment.OriginIP)
	assert.Equal(t, "203.0.113.7", *a.Comment.OriginIP)
	assert.Equal(t, epoch, a.Comment.CreatedAt)
}

func TestTryAdmit_NoAddressRecorded(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount("alice")

	a := admit(t, env, "alice")
	assert.Nil(t, a.Comment.OriginIP)
}

func TestTryAdmit_InvalidInput(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount("alice")

	tests := []struct {
		name string
		req  AdmitRequest
	}{
		{"empty content", AdmitRequest{AuthorID: "alice", Content: "   ", Target: pageTarget("page-1")}},
		{"no target", AdmitRequest{AuthorID: "alice", Content: "x"}},
		{"both targets", AdmitRequest{AuthorID: "alice", Content: "x", Target: models.CommentTarget{PageID: strPtr("page-1"), ParagraphID: strPtr("para-1")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.guard.TryAdmit(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, apperrors.GetHTTPStatusCode(err))
		})
	}
}

func TestTryAdmit_LastCommentUpdateFailureStillAdmits(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount("alice")
	env.accounts.UpdateErr = assert.AnError

	a := admit(t, env, "alice")
	assert.True(t, a.Admitted())
	assert.Len(t, env.comments.All(), 1)
}

func TestRejection_AsError(t *testing.T) {
	frozen := (&Rejection{Kind: RejectionAccountFrozen, FrozenUntil: epoch, RemainingSeconds: 10}).AsError()
	assert.Equal(t, http.StatusForbidden, apperrors.GetHTTPStatusCode(frozen))
	assert.Equal(t, "ACCOUNT_FROZEN", apperrors.Categorize(frozen).Code)

	throttled := (&Rejection{Kind: RejectionTooManyRequests, WaitSeconds: 12}).AsError()
	assert.Equal(t, http.StatusTooManyRequests, apperrors.GetHTTPStatusCode(throttled))
	assert.Equal(t, 12, apperrors.Categorize(throttled).Details["waitSeconds"])

	assert.Equal(t, http.StatusUnauthorized, apperrors.GetHTTPStatusCode((&Rejection{Kind: RejectionUnauthorized}).AsError()))
}

func TestEvaluateAdmission_Properties(t *testing.T) {
	interval := 30 * time.Second
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	viewer := func(last time.Time) *models.Account {
		return &models.Account{ID: "v", Roles: []types.Role{types.RoleViewer}, LastCommentAt: &last}
	}

	properties.Property("wait decreases as elapsed time grows and reaches zero at the interval", prop.ForAll(
		func(a, b int64) bool {
			if a > b {
				a, b = b, a
			}
			last := epoch
			ra := EvaluateAdmission(viewer(last), last.Add(time.Duration(a)*time.Millisecond), interval)
			rb := EvaluateAdmission(viewer(last), last.Add(time.Duration(b)*time.Millisecond), interval)
			if ra == nil || ra.Kind != RejectionTooManyRequests {
				return false
			}
			waitB := 0
			if rb != nil {
				waitB = rb.WaitSeconds
			}
			return ra.WaitSeconds >= waitB && ra.WaitSeconds >= 1 && ra.WaitSeconds <= 30
		},
		gen.Int64Range(0, 29_999),
		gen.Int64Range(0, 30_000),
	))

	properties.Property("no throttle at or beyond the interval", prop.ForAll(
		func(ms int64) bool {
			return EvaluateAdmission(viewer(epoch), epoch.Add(time.Duration(ms)*time.Millisecond), interval) == nil
		},
		gen.Int64Range(30_000, 10_000_000),
	))

	properties.Property("freeze in the future always rejects regardless of last comment", prop.ForAll(
		func(freezeMs, lastMs int64) bool {
			until := epoch.Add(time.Duration(freezeMs) * time.Millisecond)
			last := epoch.Add(-time.Duration(lastMs) * time.Millisecond)
			acc := &models.Account{Roles: []types.Role{types.RoleViewer}, FrozenUntil: &until, LastCommentAt: &last}
			r := EvaluateAdmission(acc, epoch, interval)
			return r != nil && r.Kind == RejectionAccountFrozen && r.RemainingSeconds >= 1
		},
		gen.Int64Range(1, 48*3600*1000),
		gen.Int64Range(0, 48*3600*1000),
	))

	properties.Property("privileged accounts are never rejected", prop.ForAll(
		func(freezeMs, lastMs int64, admin bool) bool {
			role := types.RoleEditor
			if admin {
				role = types.RoleAdmin
			}
			until := epoch.Add(time.Duration(freezeMs) * time.Millisecond)
			last := epoch.Add(-time.Duration(lastMs) * time.Millisecond)
			acc := &models.Account{Roles: []types.Role{role}, FrozenUntil: &until, LastCommentAt: &last}
			return EvaluateAdmission(acc, epoch, interval) == nil
		},
		gen.Int64Range(-3600*1000, 48*3600*1000),
		gen.Int64Range(0, 60*1000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
