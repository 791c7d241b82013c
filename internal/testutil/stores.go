package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/wiki-engagement/internal/errors"
	"github.com/wiki-engagement/internal/models"
)

// MemAccounts is an in-memory account store
type MemAccounts struct {
	mu       sync.Mutex
	accounts map[string]*models.Account

	// UpdateErr, when set, fails UpdateLastCommentAt
	UpdateErr error
}

// NewMemAccounts creates an empty account store
func NewMemAccounts() *MemAccounts {
	return &MemAccounts{accounts: make(map[string]*models.Account)}
}

// Put inserts or replaces an account
func (m *MemAccounts) Put(a *models.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.accounts[a.ID] = &cp
}

// GetByID returns a copy of the account
func (m *MemAccounts) GetByID(ctx context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, apperrors.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

// UpdateLastCommentAt records the last admitted comment instant
func (m *MemAccounts) UpdateLastCommentAt(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	a, ok := m.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, apperrors.ErrNotFound)
	}
	t := at
	a.LastCommentAt = &t
	return nil
}

// FreezeNonPrivileged freezes the listed accounts that are not editors or admins
func (m *MemAccounts) FreezeNonPrivileged(ctx context.Context, ids []string, until time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var frozen []string
	for _, id := range ids {
		a, ok := m.accounts[id]
		if !ok || a.IsPrivileged() {
			continue
		}
		t := until
		a.FrozenUntil = &t
		frozen = append(frozen, id)
	}
	return frozen, nil
}

// MemPages is an in-memory page directory with followers and paragraph counters
type MemPages struct {
	mu         sync.Mutex
	pages      map[string]*models.PageInfo
	followers  map[string][]string
	paragraphs map[string]*models.Paragraph
}

// NewMemPages creates an empty page directory
func NewMemPages() *MemPages {
	return &MemPages{
		pages:      make(map[string]*models.PageInfo),
		followers:  make(map[string][]string),
		paragraphs: make(map[string]*models.Paragraph),
	}
}

// AddPage registers a page
func (m *MemPages) AddPage(p *models.PageInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.pages[p.ID] = &cp
}

// AddParagraph registers a paragraph of a page
func (m *MemPages) AddParagraph(id, pageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paragraphs[id] = &models.Paragraph{ID: id, PageID: pageID}
}

// Follow subscribes accountID to pageID
func (m *MemPages) Follow(pageID string, accountIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.followers[pageID] = append(m.followers[pageID], accountIDs...)
}

// Paragraph returns a copy of a paragraph, or nil
func (m *MemPages) Paragraph(id string) *models.Paragraph {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.paragraphs[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// SetCommentCount overwrites a paragraph counter
func (m *MemPages) SetCommentCount(id string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.paragraphs[id]; ok {
		p.CommentCount = n
	}
}

// FollowersOf returns the followers of a page
func (m *MemPages) FollowersOf(ctx context.Context, pageID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.followers[pageID]...), nil
}

// PageInfo returns a page's display information
func (m *MemPages) PageInfo(ctx context.Context, pageID string) (*models.PageInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[pageID]
	if !ok {
		return nil, fmt.Errorf("page %s: %w", pageID, apperrors.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

// PageOfParagraph returns the page a paragraph belongs to
func (m *MemPages) PageOfParagraph(ctx context.Context, paragraphID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.paragraphs[paragraphID]
	if !ok {
		return "", fmt.Errorf("paragraph %s: %w", paragraphID, apperrors.ErrNotFound)
	}
	return p.PageID, nil
}

func (m *MemPages) adjustCount(paragraphID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.paragraphs[paragraphID]
	if !ok {
		return fmt.Errorf("paragraph %s: %w", paragraphID, apperrors.ErrNotFound)
	}
	p.CommentCount += delta
	return nil
}

// MemComments is an in-memory comment store maintaining paragraph counters on MemPages
type MemComments struct {
	mu       sync.Mutex
	comments map[string]*models.Comment
	order    []string
	pages    *MemPages
}

// NewMemComments creates a comment store bound to a page directory
func NewMemComments(pages *MemPages) *MemComments {
	return &MemComments{comments: make(map[string]*models.Comment), pages: pages}
}

// Create stores the comment and increments its paragraph counter
func (m *MemComments) Create(ctx context.Context, c *models.Comment) error {
	if c.ParagraphID != nil && m.pages != nil {
		if err := m.pages.adjustCount(*c.ParagraphID, 1); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	cp := *c
	m.comments[c.ID] = &cp
	m.order = append(m.order, c.ID)
	return nil
}

// GetByID returns a copy of the comment
func (m *MemComments) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return nil, fmt.Errorf("comment %s: %w", id, apperrors.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

// SoftDelete flags a comment deleted once and decrements its paragraph counter
func (m *MemComments) SoftDelete(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	c, ok := m.comments[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("comment %s: %w", id, apperrors.ErrNotFound)
	}
	if c.IsDeleted {
		m.mu.Unlock()
		return nil
	}
	t := at
	c.IsDeleted = true
	c.DeletedAt = &t
	paragraphID := c.ParagraphID
	m.mu.Unlock()

	if paragraphID != nil && m.pages != nil {
		return m.pages.adjustCount(*paragraphID, -1)
	}
	return nil
}

// DistinctAuthorsByIP returns authors of comments from ip created strictly after since
func (m *MemComments) DistinctAuthorsByIP(ctx context.Context, ip string, since time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var authors []string
	for _, id := range m.order {
		c := m.comments[id]
		if c.OriginIP == nil || *c.OriginIP != ip || !c.CreatedAt.After(since) {
			continue
		}
		if !seen[c.AuthorID] {
			seen[c.AuthorID] = true
			authors = append(authors, c.AuthorID)
		}
	}
	return authors, nil
}

// RecalculateCommentCounts recomputes every paragraph counter from non-deleted comments
func (m *MemComments) RecalculateCommentCounts(ctx context.Context) (int64, error) {
	m.mu.Lock()
	counts := make(map[string]int)
	for _, c := range m.comments {
		if c.ParagraphID != nil && !c.IsDeleted {
			counts[*c.ParagraphID]++
		}
	}
	m.mu.Unlock()

	m.pages.mu.Lock()
	defer m.pages.mu.Unlock()
	var changed int64
	for id, p := range m.pages.paragraphs {
		if p.CommentCount != counts[id] {
			p.CommentCount = counts[id]
			changed++
		}
	}
	return changed, nil
}

// All returns copies of every stored comment in insertion order
func (m *MemComments) All() []*models.Comment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Comment, 0, len(m.order))
	for _, id := range m.order {
		cp := *m.comments[id]
		out = append(out, &cp)
	}
	return out
}

// MemSettings is an in-memory notification settings store
type MemSettings struct {
	mu       sync.Mutex
	settings map[string]*models.NotificationSettings

	// FailFor makes GetOrCreate fail for specific accounts
	FailFor map[string]error
}

// NewMemSettings creates an empty settings store
func NewMemSettings() *MemSettings {
	return &MemSettings{settings: make(map[string]*models.NotificationSettings), FailFor: make(map[string]error)}
}

// GetOrCreate returns the settings of an account, creating the defaults on first reference
func (m *MemSettings) GetOrCreate(ctx context.Context, accountID string) (*models.NotificationSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailFor[accountID]; err != nil {
		return nil, err
	}
	s, ok := m.settings[accountID]
	if !ok {
		s = models.DefaultNotificationSettings(accountID)
		m.settings[accountID] = s
	}
	cp := *s
	return &cp, nil
}

// Update replaces an account's settings
func (m *MemSettings) Update(ctx context.Context, s *models.NotificationSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.settings[s.AccountID] = &cp
	return nil
}

// Exists reports whether settings were ever created for an account
func (m *MemSettings) Exists(accountID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.settings[accountID]
	return ok
}

// MemNotifications is an in-memory notification store
type MemNotifications struct {
	mu    sync.Mutex
	rows  map[string]*models.Notification
	order []string
	now   func() time.Time

	// CreateErr, when set, fails CreateBatch
	CreateErr error
	// MarkFailures fails the next n MarkSent calls
	MarkFailures int
	// ListErr, when set, fails ListUnsent
	ListErr error
}

// NewMemNotifications creates an empty store that stamps CreatedAt from now
func NewMemNotifications(now func() time.Time) *MemNotifications {
	return &MemNotifications{rows: make(map[string]*models.Notification), now: now}
}

// CreateBatch stores every notification in one call
func (m *MemNotifications) CreateBatch(ctx context.Context, ns []*models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	for _, n := range ns {
		if n.ID == "" {
			n.ID = uuid.New().String()
		}
		if n.CreatedAt.IsZero() && m.now != nil {
			n.CreatedAt = m.now()
		}
		cp := *n
		m.rows[n.ID] = &cp
		m.order = append(m.order, n.ID)
	}
	return nil
}

// ListUnsent returns unsent notifications created strictly after createdAfter, oldest first.
// A zero createdAfter selects every unsent row.
func (m *MemNotifications) ListUnsent(ctx context.Context, createdAfter time.Time) ([]*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []*models.Notification
	for _, id := range m.order {
		n := m.rows[id]
		if n.EmailSent {
			continue
		}
		if !createdAfter.IsZero() && !n.CreatedAt.After(createdAfter) {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MarkSent flips email_sent on the listed rows that are still unsent and returns how many changed
func (m *MemNotifications) MarkSent(ctx context.Context, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkFailures > 0 {
		m.MarkFailures--
		return 0, fmt.Errorf("mark sent: connection reset")
	}
	var n int64
	for _, id := range ids {
		if r, ok := m.rows[id]; ok && !r.EmailSent {
			r.EmailSent = true
			n++
		}
	}
	return n, nil
}

// Get returns a copy of one notification, or nil
func (m *MemNotifications) Get(id string) *models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return nil
	}
	cp := *n
	return &cp
}

// All returns copies of every notification in insertion order
func (m *MemNotifications) All() []*models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Notification, 0, len(m.order))
	for _, id := range m.order {
		cp := *m.rows[id]
		out = append(out, &cp)
	}
	return out
}

// MemAuditSink records abuse events in memory
type MemAuditSink struct {
	mu     sync.Mutex
	events []*models.AbuseEvent
}

// RecordFreeze appends the event
func (m *MemAuditSink) RecordFreeze(ctx context.Context, e *models.AbuseEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.events = append(m.events, &cp)
	return nil
}

// Events returns the recorded events
func (m *MemAuditSink) Events() []*models.AbuseEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AbuseEvent(nil), m.events...)
}
