package testutil

import (
	"context"
	"sync"
	"time"
)

// SentEmail is one email captured by RecordingSender
type SentEmail struct {
	To      string
	Subject string
	Body    string
}

// RecordingSender captures emails instead of delivering them
type RecordingSender struct {
	mu   sync.Mutex
	sent []SentEmail

	// Fail, when set, decides per recipient whether Send returns an error
	Fail func(to string) error
}

// Send records the email unless Fail rejects it
func (s *RecordingSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	s.mu.Lock()
	fail := s.Fail
	s.mu.Unlock()
	if fail != nil {
		if err := fail(to); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, SentEmail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

// SetFail replaces the failure hook
func (s *RecordingSender) SetFail(fail func(to string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fail = fail
}

// Sent returns the captured emails
func (s *RecordingSender) Sent() []SentEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentEmail(nil), s.sent...)
}

// SentTo returns the captured emails addressed to one recipient
func (s *RecordingSender) SentTo(to string) []SentEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SentEmail
	for _, e := range s.sent {
		if e.To == to {
			out = append(out, e)
		}
	}
	return out
}

// MemClaims is an in-memory delivery claim table keyed by notification id
type MemClaims struct {
	table *claimTable
	owner string
}

type claimTable struct {
	mu     sync.Mutex
	owners map[string]string
}

// NewMemClaims creates a claim table owned by owner
func NewMemClaims(owner string) *MemClaims {
	return &MemClaims{table: &claimTable{owners: make(map[string]string)}, owner: owner}
}

// WithOwner returns a view of the same table claiming under another owner,
// standing in for a second scheduler instance
func (c *MemClaims) WithOwner(owner string) *MemClaims {
	return &MemClaims{table: c.table, owner: owner}
}

// Claim takes the lease on id unless another owner holds it
func (c *MemClaims) Claim(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	c.table.mu.Lock()
	defer c.table.mu.Unlock()
	if cur, ok := c.table.owners[id]; ok && cur != c.owner {
		return false, nil
	}
	c.table.owners[id] = c.owner
	return true, nil
}

// Release drops the leases this owner holds on ids
func (c *MemClaims) Release(ctx context.Context, ids ...string) error {
	c.table.mu.Lock()
	defer c.table.mu.Unlock()
	for _, id := range ids {
		if c.table.owners[id] == c.owner {
			delete(c.table.owners, id)
		}
	}
	return nil
}

// Held reports whether any owner holds a lease on id
func (c *MemClaims) Held(id string) bool {
	c.table.mu.Lock()
	defer c.table.mu.Unlock()
	_, ok := c.table.owners[id]
	return ok
}
