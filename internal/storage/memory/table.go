// Package memory provides the in-memory session table for tcpctl.
package memory

import (
	"slices"
	"sync"

	"github.com/yndnr/tcpctl-go/internal/core/domain"
)

// Table is the ordered registry of session records.
//
// Records are kept in insertion order. Lookup by handle is a linear
// scan; the table holds interactive-shell numbers of sessions, not a
// server's worth.
type Table struct {
	mu       sync.Mutex
	sessions []*domain.Session
}

// NewTable creates an empty session table.
func NewTable() *Table {
	return &Table{}
}

// Create allocates a record with an unset handle and appends it.
func (t *Table) Create(flags domain.SessionFlags) (*domain.Session, error) {
	s, err := domain.NewSession(flags)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions = append(t.sessions, s)
	return s, nil
}

// FindByHandle returns the record owning descriptor h.
// An unset handle never matches.
func (t *Table) FindByHandle(h int) (*domain.Session, error) {
	if h == domain.HandleUnset {
		return nil, domain.ErrSessionNotFound
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.sessions {
		if s.Handle == h {
			return s, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

// Remove unlinks the record. Removing a record that is not in the
// table reports ErrSessionNotFound.
func (t *Table) Remove(s *domain.Session) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := slices.Index(t.sessions, s)
	if i < 0 {
		return domain.ErrSessionNotFound
	}
	t.sessions = slices.Delete(t.sessions, i, i+1)
	return nil
}

// Sessions returns the current records in insertion order.
// Every call takes a fresh snapshot, so callers may remove records
// while walking the result.
func (t *Table) Sessions() []*domain.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.sessions)
}

// Range calls fn for each record in insertion order until fn returns false.
// fn runs without the table lock held and may mutate the table.
func (t *Table) Range(fn func(s *domain.Session) bool) {
	for _, s := range t.Sessions() {
		if !fn(s) {
			return
		}
	}
}

// Update runs fn on s with the table lock held. Session fields that can
// change after Create are written through Update, so another goroutine
// using Load never sees a torn record. fn must not call back into t.
func (t *Table) Update(s *domain.Session, fn func(*domain.Session)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(s)
}

// Load returns a copy of s taken under the table lock.
func (t *Table) Load(s *domain.Session) domain.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *s
}

// Len returns the number of records.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
