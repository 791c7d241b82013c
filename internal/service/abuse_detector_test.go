package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiki-engagement/internal/types"
)

func postFrom(t *testing.T, env *testEnv, author, ip string) *Admission {
	t.Helper()
	a, err := env.comment.Create(context.Background(), AdmitRequest{
		AuthorID: author,
		Content:  "spam " + author,
		Target:   pageTarget("page-1"),
		OriginIP: ip,
	})
	require.NoError(t, err)
	return a
}

func TestAbuse_ThreeAccountsSameIPAreFrozen(t *testing.T) {
	env := newTestEnv(t)
	for _, id := range []string{"a", "b", "c", "d"} {
		env.addAccount(id)
	}

	require.True(t, postFrom(t, env, "a", "198.51.100.1").Admitted())
	env.clock.Advance(5 * time.Second)
	require.True(t, postFrom(t, env, "d", "198.51.100.99").Admitted())
	require.True(t, postFrom(t, env, "b", "198.51.100.1").Admitted())
	env.clock.Advance(5 * time.Second)
	third := postFrom(t, env, "c", "198.51.100.1")
	require.True(t, third.Admitted(), "the comment tipping the threshold is still admitted")

	wantUntil := env.clock.Now().Add(24 * time.Hour)
	for _, id := range []string{"a", "b", "c"} {
		acc := env.account(t, id)
		require.NotNil(t, acc.FrozenUntil, id)
		assert.Equal(t, wantUntil, *acc.FrozenUntil, id)
	}
	assert.Nil(t, env.account(t, "d").FrozenUntil, "other addresses are unaffected")

	events := env.audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].DistinctAuthors)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, events[0].FrozenIDs)

	env.clock.Advance(time.Minute)
	next := postFrom(t, env, "a", "192.0.2.1")
	require.NotNil(t, next.Rejection)
	assert.Equal(t, RejectionAccountFrozen, next.Rejection.Kind)
}

func TestAbuse_TwoAccountsDoNotFreeze(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount("a")
	env.addAccount("b")

	postFrom(t, env, "a", "198.51.100.1")
	postFrom(t, env, "b", "198.51.100.1")

	assert.Nil(t, env.account(t, "a").FrozenUntil)
	assert.Nil(t, env.account(t, "b").FrozenUntil)
	assert.Empty(t, env.audit.Events())
}

func TestAbuse_WindowIsRolling(t *testing.T) {
	env := newTestEnv(t)
	for _, id := range []string{"a", "b", "c"} {
		env.addAccount(id)
	}

	postFrom(t, env, "a", "198.51.100.1")
	env.clock.Advance(30 * time.Second)
	postFrom(t, env, "b", "198.51.100.1")
	postFrom(t, env, "c", "198.51.100.1")

	assert.Nil(t, env.account(t, "b").FrozenUntil, "a comment exactly one window old no longer counts")
}

func TestAbuse_PrivilegedLeftUntouched(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount("a")
	env.addAccount("b")
	env.addAccount("ed", types.RoleEditor)

	// the editor's own comment never triggers detection but still counts for others
	postFrom(t, env, "ed", "198.51.100.1")
	postFrom(t, env, "a", "198.51.100.1")
	postFrom(t, env, "b", "198.51.100.1")

	assert.NotNil(t, env.account(t, "a").FrozenUntil)
	assert.NotNil(t, env.account(t, "b").FrozenUntil)
	assert.Nil(t, env.account(t, "ed").FrozenUntil)
}

func TestAbuse_RefreezeExtends(t *testing.T) {
	env := newTestEnv(t)
	for _, id := range []string{"a", "b", "c"} {
		env.addAccount(id)
	}
	for _, id := range []string{"a", "b", "c"} {
		postFrom(t, env, id, "198.51.100.1")
	}
	first := *env.account(t, "a").FrozenUntil

	env.clock.Advance(10 * time.Second)
	event, err := env.detector.CheckAndFreeze(context.Background(), "198.51.100.1", env.clock.Now())
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.True(t, env.account(t, "a").FrozenUntil.After(first))
}

func TestAbuse_EmptyIPIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	event, err := env.detector.CheckAndFreeze(context.Background(), "", epoch)
	require.NoError(t, err)
	assert.Nil(t, event)
}
