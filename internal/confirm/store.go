// Package confirm holds actions that wait for a requester's explicit "yes"
// before they run, such as a remote reboot requested over chat.
package confirm

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultTTL = 60 * time.Second

// Pending is one action awaiting confirmation. There is at most one per requester.
type Pending struct {
	ID         string    `json:"id"`
	Requester  string    `json:"requester"`
	Action     string    `json:"action"`
	DeviceID   string    `json:"device_id"`
	Identifier string    `json:"identifier"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Store keeps pending confirmations keyed by requester.
type Store interface {
	// Put replaces any pending action of p.Requester.
	Put(ctx context.Context, p Pending) (Pending, error)
	// Take removes and returns the requester's pending action, nil when none or expired.
	Take(ctx context.Context, requester string) (*Pending, error)
	// Cancel drops the requester's pending action and reports whether one existed.
	Cancel(ctx context.Context, requester string) (bool, error)
	// Purge evicts expired entries and returns how many were dropped.
	Purge(ctx context.Context) (int, error)
}

func stamp(p Pending, now time.Time, ttl time.Duration) Pending {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = now
	p.ExpiresAt = now.Add(ttl)
	return p
}

// MemoryStore is the single-instance Store.
type MemoryStore struct {
	mu      sync.Mutex
	pending map[string]Pending
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{pending: make(map[string]Pending), ttl: ttl, now: time.Now}
}

func (s *MemoryStore) Put(_ context.Context, p Pending) (Pending, error) {
	p = stamp(p, s.now(), s.ttl)
	s.mu.Lock()
	s.pending[p.Requester] = p
	s.mu.Unlock()
	return p, nil
}

func (s *MemoryStore) Take(_ context.Context, requester string) (*Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[requester]
	if !ok {
		return nil, nil
	}
	delete(s.pending, requester)
	if !s.now().Before(p.ExpiresAt) {
		return nil, nil
	}
	return &p, nil
}

func (s *MemoryStore) Cancel(_ context.Context, requester string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[requester]
	delete(s.pending, requester)
	return ok && s.now().Before(p.ExpiresAt), nil
}

func (s *MemoryStore) Purge(_ context.Context) (int, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, p := range s.pending {
		if !now.Before(p.ExpiresAt) {
			delete(s.pending, k)
			n++
		}
	}
	return n, nil
}

// Len counts stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
