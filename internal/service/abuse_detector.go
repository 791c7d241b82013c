package service

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/wiki-engagement/internal/errors"
	"github.com/wiki-engagement/internal/logging"
	"github.com/wiki-engagement/internal/metrics"
	"github.com/wiki-engagement/internal/models"
)

// AbuseDetectorConfig contains configuration for the abuse detector
type AbuseDetectorConfig struct {
	Accounts       AccountRepository
	Comments       CommentRepository
	Audit          AbuseAuditSink // optional
	Window         time.Duration
	Threshold      int
	FreezeDuration time.Duration
	Logger         *logging.Logger
}

// AbuseDetector freezes accounts that post together from one address in a short window
type AbuseDetector struct {
	accounts       AccountRepository
	comments       CommentRepository
	audit          AbuseAuditSink
	window         time.Duration
	threshold      int
	freezeDuration time.Duration
	logger         *logging.Logger
}

// NewAbuseDetector creates a new abuse detector
func NewAbuseDetector(cfg AbuseDetectorConfig) (*AbuseDetector, error) {
	if cfg.Accounts == nil {
		return nil, fmt.Errorf("account repository is required")
	}
	if cfg.Comments == nil {
		return nil, fmt.Errorf("comment repository is required")
	}
	if cfg.Window <= 0 {
		cfg.Window = 30 * time.Second
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.FreezeDuration <= 0 {
		cfg.FreezeDuration = 24 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetGlobalLogger()
	}

	return &AbuseDetector{
		accounts:       cfg.Accounts,
		comments:       cfg.Comments,
		audit:          cfg.Audit,
		window:         cfg.Window,
		threshold:      cfg.Threshold,
		freezeDuration: cfg.FreezeDuration,
		logger:         cfg.Logger.WithField("component", "abuse_detector"),
	}, nil
}

// CheckAndFreeze counts the distinct authors commenting from ip within the window ending at now
// and freezes every non-privileged one of them once the threshold is reached.
// Returns the recorded event, or nil when nothing was frozen.
// Already frozen authors still count toward the threshold and have their freeze extended.
func (d *AbuseDetector) CheckAndFreeze(ctx context.Context, ip string, now time.Time) (*models.AbuseEvent, error) {
	if ip == "" {
		return nil, nil
	}

	authors, err := d.comments.DistinctAuthorsByIP(ctx, ip, now.Add(-d.window))
	if err != nil {
		return nil, apperrors.NewDatabaseError("count authors by ip", err)
	}
	if len(authors) < d.threshold {
		return nil, nil
	}

	until := now.Add(d.freezeDuration)
	frozen, err := d.accounts.FreezeNonPrivileged(ctx, authors, until)
	if err != nil {
		return nil, apperrors.NewDatabaseError("freeze accounts", err)
	}

	event := &models.AbuseEvent{
		OriginIP:        ip,
		AuthorIDs:       authors,
		FrozenIDs:       frozen,
		DistinctAuthors: len(authors),
		FrozenUntil:     until,
		DetectedAt:      now,
	}
	metrics.RecordFreeze(len(frozen))

	d.logger.WithFields(map[string]interface{}{
		"originIp":        ip,
		"distinctAuthors": len(authors),
		"frozen":          len(frozen),
		"frozenUntil":     until,
	}).Warn("Multi-account burst detected, accounts frozen")

	if d.audit != nil {
		if err := d.audit.RecordFreeze(ctx, event); err != nil {
			d.logger.WithError(err).Warn("Failed to record abuse event")
		}
	}

	return event, nil
}
