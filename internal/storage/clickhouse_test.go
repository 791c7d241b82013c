package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiki-engagement/internal/config"
	"github.com/wiki-engagement/internal/logging"
	"github.com/wiki-engagement/internal/models"
)

func TestNewClickHouseDB(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := &config.ClickHouseConfig{
		Host:     "localhost",
		Port:     "9000",
		Database: "wiki_audit",
		User:     "default",
		Password: "",
	}

	db, err := NewClickHouseDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - ClickHouse not available: %v", err)
		return
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	ctx := testContext(t)
	if err := db.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestAbuseEventRepository_RecordAndList(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, err := NewClickHouseDB(&config.ClickHouseConfig{
		Host:     "localhost",
		Port:     "9000",
		Database: "wiki_audit",
		User:     "default",
	})
	if err != nil {
		t.Skipf("Skipping test - ClickHouse not available: %v", err)
	}
	defer db.Close()

	ctx := testContext(t)
	if err := RunClickHouseMigrations(ctx, db, "../../migrations/clickhouse", logging.NewNopLogger()); err != nil {
		t.Skipf("Skipping test - ClickHouse migrations failed: %v", err)
	}

	repo := NewAbuseEventRepository(db)
	ip := "test-" + uuid.NewString()
	detected := time.Now().UTC().Truncate(time.Millisecond)

	older := &models.AbuseEvent{
		OriginIP:        ip,
		AuthorIDs:       []string{"a", "b", "c"},
		FrozenIDs:       []string{"a", "b"},
		DistinctAuthors: 3,
		FrozenUntil:     detected.Add(-time.Minute).Add(24 * time.Hour),
		DetectedAt:      detected.Add(-time.Minute),
	}
	newer := &models.AbuseEvent{
		OriginIP:        ip,
		AuthorIDs:       []string{"a", "b", "c", "d"},
		DistinctAuthors: 4,
		FrozenUntil:     detected.Add(24 * time.Hour),
		DetectedAt:      detected,
	}
	require.NoError(t, repo.RecordFreeze(ctx, older))
	require.NoError(t, repo.RecordFreeze(ctx, newer))

	events, err := repo.ListByIP(ctx, ip, detected.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 4, events[0].DistinctAuthors)
	assert.Empty(t, events[0].FrozenIDs)
	assert.WithinDuration(t, detected, events[0].DetectedAt, time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, events[1].FrozenIDs)

	recent, err := repo.ListByIP(ctx, ip, detected.Add(-time.Second))
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestSplitSQLStatements(t *testing.T) {
	content := `-- abuse events
CREATE TABLE IF NOT EXISTS a (
    x String
) ENGINE = MergeTree ORDER BY x;

-- second
ALTER TABLE a ADD COLUMN IF NOT EXISTS y UInt8;
SELECT 1`

	stmts := splitSQLStatements(content)
	assert.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS a")
	assert.NotContains(t, stmts[0], ";")
	assert.NotContains(t, stmts[0], "--")
	assert.Equal(t, "ALTER TABLE a ADD COLUMN IF NOT EXISTS y UInt8", stmts[1])
	assert.Equal(t, "SELECT 1", stmts[2])
}

func TestSplitSQLStatements_Empty(t *testing.T) {
	assert.Empty(t, splitSQLStatements("-- nothing here\n\n"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}
