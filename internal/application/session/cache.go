package session

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/application/payment"
	"github.com/lunari/studio-ledger/internal/domain/session"
)

// ChangeKind tells subscribers what happened to the collection
type ChangeKind string

const (
	ChangeUpsert   ChangeKind = "upsert"
	ChangeMerge    ChangeKind = "merge"
	ChangeRemove   ChangeKind = "remove"
	ChangePayments ChangeKind = "payments"
)

// CollectionChange is delivered to cache subscribers after every write
type CollectionChange struct {
	Kind      ChangeKind
	SessionID uuid.UUID
	// Session is the cached state after the change; nil on removal
	Session *session.Session
}

// SessionCache is the process-wide in-memory session collection.
// Only the coordinator and the change listener write to it, and both merge
// into known rows instead of overwriting them.
type SessionCache struct {
	mu          sync.RWMutex
	sessions    map[uuid.UUID]*session.Session
	payments    map[uuid.UUID]*payment.Ledger
	subscribers map[int]chan CollectionChange
	nextSubID   int
}

// NewSessionCache creates an empty cache
func NewSessionCache() *SessionCache {
	return &SessionCache{
		sessions:    make(map[uuid.UUID]*session.Session),
		payments:    make(map[uuid.UUID]*payment.Ledger),
		subscribers: make(map[int]chan CollectionChange),
	}
}

// Upsert stores a full row. A row older than the cached one is ignored. The
// joined client display is kept when the incoming row lacks it.
func (c *SessionCache) Upsert(s *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if known, ok := c.sessions[s.ID]; ok {
		if s.Version < known.Version {
			return
		}
		if s.Client == nil && known.Client != nil {
			s = s.Clone()
			client := *known.Client
			s.Client = &client
		}
	}
	stored := s.Clone()
	c.foldPayments(stored)
	c.sessions[s.ID] = stored
	c.notify(CollectionChange{Kind: ChangeUpsert, SessionID: s.ID, Session: stored.Clone()})
}

// Merge applies a partial row over the cached one. It returns false when the
// session is unknown, in which case nothing is stored. Stale changes are
// dropped but still report true.
func (c *SessionCache) Merge(change session.RowChange) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	known, ok := c.sessions[change.ID]
	if !ok {
		return false
	}
	if change.IsStale(known) {
		return true
	}
	merged := known.Clone()
	change.MergeInto(merged)
	c.foldPayments(merged)
	c.sessions[change.ID] = merged
	c.notify(CollectionChange{Kind: ChangeMerge, SessionID: change.ID, Session: merged.Clone()})
	return true
}

// Remove drops a session and its payment view
func (c *SessionCache) Remove(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sessions[id]; !ok {
		return
	}
	delete(c.sessions, id)
	delete(c.payments, id)
	c.notify(CollectionChange{Kind: ChangeRemove, SessionID: id})
}

// SetPayments folds a freshly derived payment view into a cached session.
// The cached paid-to-date follows the realized payments.
func (c *SessionCache) SetPayments(ledger *payment.Ledger) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.payments[ledger.SessionID] = ledger
	known, ok := c.sessions[ledger.SessionID]
	if !ok {
		return
	}
	updated := known.Clone()
	c.foldPayments(updated)
	c.sessions[ledger.SessionID] = updated
	c.notify(CollectionChange{Kind: ChangePayments, SessionID: ledger.SessionID, Session: updated.Clone()})
}

// Get returns a copy of a cached session
func (c *SessionCache) Get(id uuid.UUID) (*session.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.sessions[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// Payments returns the cached payment view of a session
func (c *SessionCache) Payments(id uuid.UUID) (*payment.Ledger, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ledger, ok := c.payments[id]
	return ledger, ok
}

// Snapshot returns copies of every cached session, latest schedule first
func (c *SessionCache) Snapshot() []*session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*session.Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].ScheduledAt.After(out[j].ScheduledAt)
	})
	return out
}

// Len returns the number of cached sessions
func (c *SessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// Subscribe delivers every collection change until cancel is called. A
// subscriber that falls more than buffer changes behind loses the oldest ones.
func (c *SessionCache) Subscribe(buffer int) (<-chan CollectionChange, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan CollectionChange, buffer)

	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, id)
			c.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// notify must be called with the write lock held
func (c *SessionCache) notify(change CollectionChange) {
	for _, ch := range c.subscribers {
		select {
		case ch <- change:
			continue
		default:
		}
		// drop the oldest pending change to make room
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- change:
		default:
		}
	}
}

// foldPayments must be called with the write lock held
func (c *SessionCache) foldPayments(s *session.Session) {
	if ledger, ok := c.payments[s.ID]; ok {
		s.PaidToDate = ledger.Summary.Paid
	}
}
