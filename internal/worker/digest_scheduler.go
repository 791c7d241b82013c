package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wiki-engagement/internal/clock"
	apperrors "github.com/wiki-engagement/internal/errors"
	"github.com/wiki-engagement/internal/logging"
	"github.com/wiki-engagement/internal/mail"
	"github.com/wiki-engagement/internal/metrics"
	"github.com/wiki-engagement/internal/models"
	"github.com/wiki-engagement/internal/retry"
	"github.com/wiki-engagement/internal/types"
)

// Pass names used in logs and metrics
const (
	PassImmediate = "immediate"
	PassHourly    = "hourly"
	PassDaily     = "daily"
)

// NotificationQueue is the scheduler's view of the notification store
type NotificationQueue interface {
	// ListUnsent returns unsent notifications created strictly after createdAfter, oldest first.
	// A zero createdAfter selects every unsent row.
	ListUnsent(ctx context.Context, createdAfter time.Time) ([]*models.Notification, error)
	// MarkSent flips email_sent on rows still unsent and returns how many changed
	MarkSent(ctx context.Context, ids []string) (int64, error)
}

// SettingsReader resolves a recipient's cadence
type SettingsReader interface {
	GetOrCreate(ctx context.Context, accountID string) (*models.NotificationSettings, error)
}

// RecipientDirectory resolves a recipient's address
type RecipientDirectory interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

// EmailRenderer renders single and digest emails
type EmailRenderer interface {
	RenderSingle(recipient *models.Account, n *models.Notification) (*mail.Email, error)
	RenderDigest(recipient *models.Account, ns []*models.Notification, cadence types.EmailFrequency) (*mail.Email, error)
}

// DeliveryClaims leases notification ids so concurrent schedulers do not send the same row
type DeliveryClaims interface {
	Claim(ctx context.Context, id string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, ids ...string) error
}

// DigestSchedulerConfig holds configuration for the digest scheduler
type DigestSchedulerConfig struct {
	Notifications NotificationQueue
	Settings      SettingsReader
	Recipients    RecipientDirectory
	Mailer        mail.Sender
	Renderer      EmailRenderer
	Claims        DeliveryClaims // optional, defaults to no cross-instance leasing
	Clock         clock.Clock

	TickInterval time.Duration // default: 1 minute
	ErrorBackoff time.Duration // default: 5 minutes
	SendTimeout  time.Duration // default: 5 seconds
	HourlyWindow time.Duration // default: 1 hour
	DailyWindow  time.Duration // default: 24 hours
	ClaimTTL     time.Duration // default: 10 minutes

	MarkRetry *retry.RetryConfig
	Logger    *logging.Logger
}

// DigestScheduler sends notification emails on immediate, hourly and daily cadences
type DigestScheduler struct {
	notifications NotificationQueue
	settings      SettingsReader
	recipients    RecipientDirectory
	mailer        mail.Sender
	renderer      EmailRenderer
	claims        DeliveryClaims
	clock         clock.Clock

	tickInterval time.Duration
	errorBackoff time.Duration
	sendTimeout  time.Duration
	hourlyWindow time.Duration
	dailyWindow  time.Duration
	claimTTL     time.Duration
	markRetry    *retry.RetryConfig
	logger       *logging.Logger

	mu            sync.Mutex
	running       bool
	stopping      bool
	stopCh        chan struct{}
	doneCh        chan struct{}
	lastHourlyRun time.Time
	lastDailyRun  time.Time // UTC midnight of the day of the last daily run
	// hourlyFrom and dailyFrom are the instants the last completed pass covered up to;
	// the next window never starts later than them
	hourlyFrom time.Time
	dailyFrom  time.Time
	lastTick      time.Time
	tickFailures  int
	// pendingMarks holds ids sent but not yet recorded as sent
	pendingMarks map[string]struct{}
}

// SchedulerStatus is a snapshot of the scheduler state
type SchedulerStatus struct {
	Running       bool      `json:"running"`
	LastTick      time.Time `json:"lastTick"`
	LastHourlyRun time.Time `json:"lastHourlyRun"`
	LastDailyRun  time.Time `json:"lastDailyRun"`
	PendingMarks  int       `json:"pendingMarks"`
	TickFailures  int       `json:"tickFailures"`
}

// NewDigestScheduler creates a new digest scheduler.
// Both watermarks start at the construction instant so nothing is considered due at startup.
func NewDigestScheduler(cfg *DigestSchedulerConfig) (*DigestScheduler, error) {
	if cfg.Notifications == nil {
		return nil, fmt.Errorf("notification queue cannot be nil")
	}
	if cfg.Settings == nil {
		return nil, fmt.Errorf("settings reader cannot be nil")
	}
	if cfg.Recipients == nil {
		return nil, fmt.Errorf("recipient directory cannot be nil")
	}
	if cfg.Mailer == nil {
		return nil, fmt.Errorf("mailer cannot be nil")
	}
	if cfg.Renderer == nil {
		return nil, fmt.Errorf("renderer cannot be nil")
	}

	c := cfg.Clock
	if c == nil {
		c = clock.Real()
	}
	claims := cfg.Claims
	if claims == nil {
		claims = noopClaims{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	markRetry := cfg.MarkRetry
	if markRetry == nil {
		markRetry = &retry.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2,
		}
	}

	now := c.Now()
	return &DigestScheduler{
		notifications: cfg.Notifications,
		settings:      cfg.Settings,
		recipients:    cfg.Recipients,
		mailer:        cfg.Mailer,
		renderer:      cfg.Renderer,
		claims:        claims,
		clock:         c,
		tickInterval:  orDefault(cfg.TickInterval, time.Minute),
		errorBackoff:  orDefault(cfg.ErrorBackoff, 5*time.Minute),
		sendTimeout:   orDefault(cfg.SendTimeout, 5*time.Second),
		hourlyWindow:  orDefault(cfg.HourlyWindow, time.Hour),
		dailyWindow:   orDefault(cfg.DailyWindow, 24*time.Hour),
		claimTTL:      orDefault(cfg.ClaimTTL, 10*time.Minute),
		markRetry:     markRetry,
		logger:        logger.WithField("component", "digest_scheduler"),
		lastHourlyRun: now,
		lastDailyRun:  clock.UTCDate(now),
		hourlyFrom:    now,
		dailyFrom:     now,
		pendingMarks:  make(map[string]struct{}),
	}, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Start begins the scheduler loop
func (s *DigestScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("digest scheduler is already running")
	}
	s.running = true
	s.stopping = false
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{
		"tickInterval": s.tickInterval,
		"errorBackoff": s.errorBackoff,
	}).Info("Starting digest scheduler")

	go s.loop(ctx, stopCh, doneCh)
	return nil
}

// Stop signals the loop to exit after the current tick and waits for it
func (s *DigestScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("digest scheduler is not running")
	}
	if !s.stopping {
		s.stopping = true
		close(s.stopCh)
	}
	doneCh := s.doneCh
	s.mu.Unlock()

	select {
	case <-doneCh:
		s.logger.Info("Digest scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("Digest scheduler stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

// loop ticks until stopped; stop and cancellation are only observed between ticks
func (s *DigestScheduler) loop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := s.clock.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Digest scheduler context cancelled")
			return
		case <-stopCh:
			s.logger.Info("Digest scheduler stop signal received")
			return
		case <-ticker.C():
			if err := s.RunTick(ctx); err != nil {
				metrics.TickBackoffs.Inc()
				s.logger.WithError(err).WithField("backoff", s.errorBackoff).Error("Digest tick failed, backing off")

				select {
				case <-s.clock.After(s.errorBackoff):
				case <-stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// RunTick runs one tick: the immediate pass always, the hourly and daily passes when due.
// Errors of a single pass are logged; only a transport outage or a panic escapes the tick.
func (s *DigestScheduler) RunTick(ctx context.Context) (err error) {
	now := s.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("digest tick panic: %v", r)
		}
		metrics.RecordTick(s.clock.Now().Sub(now))

		s.mu.Lock()
		s.lastTick = now
		if err != nil {
			s.tickFailures++
		} else {
			s.tickFailures = 0
		}
		s.mu.Unlock()
	}()

	// a started pass runs to completion even if the caller is stopping
	ctx = context.WithoutCancel(ctx)

	s.flushPendingMarks(ctx)

	if _, err := s.runPass(ctx, PassImmediate, time.Time{}); err != nil {
		return err
	}

	s.mu.Lock()
	hourlyDue := now.Sub(s.lastHourlyRun) >= s.hourlyWindow
	hourlySince := earliest(now.Add(-s.hourlyWindow), s.hourlyFrom)
	today := clock.UTCDate(now)
	dailyDue := today.After(s.lastDailyRun)
	dailySince := earliest(now.Add(-s.dailyWindow), s.dailyFrom)
	s.mu.Unlock()

	if hourlyDue {
		covered, err := s.runPass(ctx, PassHourly, hourlySince)
		if err != nil {
			return err
		}
		if !covered.IsZero() {
			s.mu.Lock()
			s.lastHourlyRun = now
			s.hourlyFrom = earliest(now, covered)
			s.mu.Unlock()
		}
	}

	if dailyDue {
		covered, err := s.runPass(ctx, PassDaily, dailySince)
		if err != nil {
			return err
		}
		if !covered.IsZero() {
			s.mu.Lock()
			s.lastDailyRun = today
			s.dailyFrom = earliest(now, covered)
			s.mu.Unlock()
		}
	}

	return nil
}

func earliest(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

// runPass runs one pass over rows created after since and reports only the errors that must
// escape the tick. covered is zero when the pass did not complete; otherwise rows created after
// it have either been delivered or still need a later pass.
func (s *DigestScheduler) runPass(ctx context.Context, pass string, since time.Time) (covered time.Time, err error) {
	switch pass {
	case PassImmediate:
		err = s.immediatePass(ctx)
		covered = s.clock.Now()
	case PassHourly:
		covered, err = s.digestPass(ctx, pass, types.FrequencyHourly, since)
	case PassDaily:
		covered, err = s.digestPass(ctx, pass, types.FrequencyDaily, since)
	}
	if err == nil {
		return covered, nil
	}
	if errors.Is(err, mail.ErrTransportUnavailable) {
		return time.Time{}, fmt.Errorf("%s pass: %w", pass, err)
	}
	s.logger.WithError(err).WithField("pass", pass).Error("Digest pass failed")
	return time.Time{}, nil
}

// recipientBatch is the in-memory grouping of one recipient's unsent rows
type recipientBatch struct {
	recipientID string
	rows        []*models.Notification
}

// groupByRecipient groups rows per recipient in order of first appearance.
// Rows awaiting a mark and rows whose params could not be decoded are dropped.
func (s *DigestScheduler) groupByRecipient(rows []*models.Notification) []*recipientBatch {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := make(map[string]*recipientBatch)
	var batches []*recipientBatch
	for _, n := range rows {
		if _, pending := s.pendingMarks[n.ID]; pending {
			continue
		}
		if n.Params == nil {
			s.logger.WithFields(map[string]interface{}{
				"notificationId": n.ID,
				"recipientId":    n.RecipientID,
				"type":           n.Type,
			}).Warn("Skipping notification with undecodable params")
			metrics.RecordDigestEmail("undecodable", "skipped")
			continue
		}
		b, ok := index[n.RecipientID]
		if !ok {
			b = &recipientBatch{recipientID: n.RecipientID}
			index[n.RecipientID] = b
			batches = append(batches, b)
		}
		b.rows = append(b.rows, n)
	}
	return batches
}

// selectCadence keeps the batches whose recipient currently uses cadence and returns separately
// the batches whose settings could not be loaded. The whole selection completes before any email is sent.
func (s *DigestScheduler) selectCadence(ctx context.Context, pass string, batches []*recipientBatch, cadence types.EmailFrequency) (selected, failed []*recipientBatch) {
	for _, b := range batches {
		settings, err := s.settings.GetOrCreate(ctx, b.recipientID)
		if err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"pass":        pass,
				"recipientId": b.recipientID,
			}).Error("Failed to load notification settings")
			failed = append(failed, b)
			continue
		}
		if settings.EmailFrequency == cadence {
			selected = append(selected, b)
		}
	}
	return selected, failed
}

// immediatePass sends one email per unsent row of recipients on the immediate cadence
func (s *DigestScheduler) immediatePass(ctx context.Context) error {
	rows, err := s.notifications.ListUnsent(ctx, time.Time{})
	if err != nil {
		return apperrors.NewDatabaseError("list unsent notifications", err)
	}
	selected, _ := s.selectCadence(ctx, PassImmediate, s.groupByRecipient(rows), types.FrequencyImmediate)

	for _, b := range selected {
		for _, n := range b.rows {
			if err := s.deliver(ctx, PassImmediate, b.recipientID, []*models.Notification{n}); err != nil {
				if errors.Is(err, mail.ErrTransportUnavailable) {
					return err
				}
				s.logDeliveryError(PassImmediate, b.recipientID, err)
			}
		}
	}
	return nil
}

// digestPass sends one email per recipient on cadence covering rows created after since.
// It returns the instant the next window may start from: the pass start, or just before the
// oldest row whose delivery failed so that row stays in the next window.
func (s *DigestScheduler) digestPass(ctx context.Context, pass string, cadence types.EmailFrequency, since time.Time) (time.Time, error) {
	covered := s.clock.Now()
	rows, err := s.notifications.ListUnsent(ctx, since)
	if err != nil {
		return time.Time{}, apperrors.NewDatabaseError("list unsent notifications", err)
	}
	selected, failed := s.selectCadence(ctx, pass, s.groupByRecipient(rows), cadence)

	// rows are listed oldest first
	for _, b := range failed {
		covered = earliest(covered, b.rows[0].CreatedAt.Add(-time.Microsecond))
	}
	for _, b := range selected {
		if err := s.deliver(ctx, pass, b.recipientID, b.rows); err != nil {
			if errors.Is(err, mail.ErrTransportUnavailable) {
				return time.Time{}, err
			}
			s.logDeliveryError(pass, b.recipientID, err)
			covered = earliest(covered, b.rows[0].CreatedAt.Add(-time.Microsecond))
		}
	}
	return covered, nil
}

func (s *DigestScheduler) logDeliveryError(pass, recipientID string, err error) {
	s.logger.WithError(err).WithFields(map[string]interface{}{
		"pass":        pass,
		"recipientId": recipientID,
	}).Error("Notification email failed, will retry on a later tick")
}

// deliver claims, renders, sends and then marks one email's rows as a unit
func (s *DigestScheduler) deliver(ctx context.Context, pass, recipientID string, rows []*models.Notification) error {
	account, err := s.recipients.GetByID(ctx, recipientID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WithField("recipientId", recipientID).Warn("Recipient account not found, skipping")
			metrics.RecordDigestEmail(pass, "skipped")
			return nil
		}
		return apperrors.NewDatabaseError("load recipient", err)
	}
	if account.Email == "" {
		metrics.RecordDigestEmail(pass, "skipped")
		return nil
	}

	ids := make([]string, 0, len(rows))
	for _, n := range rows {
		ids = append(ids, n.ID)
	}
	claimed, err := s.claimAll(ctx, ids)
	if err != nil {
		return apperrors.NewCacheError("claim notifications", err)
	}
	if !claimed {
		s.logger.WithFields(map[string]interface{}{
			"pass":        pass,
			"recipientId": recipientID,
		}).Debug("Notifications claimed by another scheduler, skipping")
		metrics.RecordDigestEmail(pass, "skipped")
		return nil
	}

	var email *mail.Email
	if pass == PassImmediate {
		email, err = s.renderer.RenderSingle(account, rows[0])
	} else {
		email, err = s.renderer.RenderDigest(account, rows, types.EmailFrequency(pass))
	}
	if err != nil {
		s.releaseClaims(ctx, ids)
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	err = s.mailer.Send(sendCtx, account.Email, email.Subject, email.HTML)
	cancel()
	if err != nil {
		s.releaseClaims(ctx, ids)
		metrics.RecordDigestEmail(pass, "failed")
		return apperrors.NewMailTransportError(account.Email, err)
	}
	metrics.RecordDigestEmail(pass, "sent")

	// claims stay until they expire so a scheduler that listed these rows before the mark cannot resend them
	if err := s.markSent(ctx, ids); err != nil {
		s.mu.Lock()
		for _, id := range ids {
			s.pendingMarks[id] = struct{}{}
		}
		s.mu.Unlock()
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"pass":          pass,
			"recipientId":   recipientID,
			"notifications": len(ids),
		}).Error("Email sent but marking notifications failed, will retry next tick")
		return nil
	}

	s.logger.WithFields(map[string]interface{}{
		"pass":          pass,
		"recipientId":   recipientID,
		"notifications": len(ids),
	}).Debug("Notification email sent")
	return nil
}

// claimAll claims every id or none of them
func (s *DigestScheduler) claimAll(ctx context.Context, ids []string) (bool, error) {
	claimed := make([]string, 0, len(ids))
	for _, id := range ids {
		ok, err := s.claims.Claim(ctx, id, s.claimTTL)
		if err != nil || !ok {
			s.releaseClaims(ctx, claimed)
			return false, err
		}
		claimed = append(claimed, id)
	}
	return true, nil
}

func (s *DigestScheduler) releaseClaims(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := s.claims.Release(ctx, ids...); err != nil {
		s.logger.WithError(err).Warn("Failed to release delivery claims")
	}
}

func (s *DigestScheduler) markSent(ctx context.Context, ids []string) error {
	return retry.Do(ctx, s.markRetry, func(ctx context.Context, attempt int) error {
		_, err := s.notifications.MarkSent(ctx, ids)
		return err
	})
}

// flushPendingMarks retries marks that failed after a successful send
func (s *DigestScheduler) flushPendingMarks(ctx context.Context) {
	s.mu.Lock()
	if len(s.pendingMarks) == 0 {
		s.mu.Unlock()
		return
	}
	ids := make([]string, 0, len(s.pendingMarks))
	for id := range s.pendingMarks {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	if err := s.markSent(ctx, ids); err != nil {
		s.logger.WithError(err).WithField("notifications", len(ids)).Error("Pending marks still failing")
		return
	}

	s.mu.Lock()
	for _, id := range ids {
		delete(s.pendingMarks, id)
	}
	s.mu.Unlock()
}

// GetStatus returns a snapshot of the scheduler state
func (s *DigestScheduler) GetStatus() *SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &SchedulerStatus{
		Running:       s.running,
		LastTick:      s.lastTick,
		LastHourlyRun: s.lastHourlyRun,
		LastDailyRun:  s.lastDailyRun,
		PendingMarks:  len(s.pendingMarks),
		TickFailures:  s.tickFailures,
	}
}

// noopClaims grants every claim; used when no shared lease store is configured
type noopClaims struct{}

func (noopClaims) Claim(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (noopClaims) Release(ctx context.Context, ids ...string) error {
	return nil
}
