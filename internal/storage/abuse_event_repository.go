package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/wiki-engagement/internal/models"
)

// AbuseEventRepository writes freeze decisions to the ClickHouse audit log
type AbuseEventRepository struct {
	db *ClickHouseDB
}

// NewAbuseEventRepository creates a new abuse event repository
func NewAbuseEventRepository(db *ClickHouseDB) *AbuseEventRepository {
	return &AbuseEventRepository{db: db}
}

// RecordFreeze appends one detected burst
func (r *AbuseEventRepository) RecordFreeze(ctx context.Context, event *models.AbuseEvent) error {
	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO abuse_events (origin_ip, author_ids, frozen_ids, distinct_authors, frozen_until, detected_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	frozen := event.FrozenIDs
	if frozen == nil {
		frozen = []string{}
	}
	if err := batch.Append(
		event.OriginIP,
		event.AuthorIDs,
		frozen,
		uint32(event.DistinctAuthors), // #nosec G115 - count of authors in one window
		event.FrozenUntil.UTC(),
		event.DetectedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to append to batch: %w", err)
	}

	return batch.Send()
}

// ListByIP returns the bursts recorded for an origin address since from, newest first
func (r *AbuseEventRepository) ListByIP(ctx context.Context, ip string, from time.Time) ([]*models.AbuseEvent, error) {
	rows, err := r.db.Conn().Query(ctx, `
		SELECT origin_ip, author_ids, frozen_ids, distinct_authors, frozen_until, detected_at
		FROM abuse_events
		WHERE origin_ip = ? AND detected_at >= ?
		ORDER BY detected_at DESC
	`, ip, from)
	if err != nil {
		return nil, fmt.Errorf("failed to query abuse events: %w", err)
	}
	defer rows.Close()

	var events []*models.AbuseEvent
	for rows.Next() {
		var e models.AbuseEvent
		var distinct uint32
		if err := rows.Scan(&e.OriginIP, &e.AuthorIDs, &e.FrozenIDs, &distinct, &e.FrozenUntil, &e.DetectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan abuse event: %w", err)
		}
		e.DistinctAuthors = int(distinct)
		events = append(events, &e)
	}
	return events, rows.Err()
}
