package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/retailcore/internal/domain/shared"
)

const memorySweepInterval = 5 * time.Minute

// MemoryIdempotencyStore keeps delivery marks in process memory. Expired
// marks are swept lazily on write, at most once per sweep interval.
type MemoryIdempotencyStore struct {
	mu        sync.Mutex
	expiry    map[string]time.Time
	lastSweep time.Time
	now       func() time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{expiry: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryIdempotencyStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= memorySweepInterval {
		s.sweep(now)
	}
	if exp, ok := s.expiry[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.expiry[key] = now.Add(ttl)
	return true, nil
}

func (s *MemoryIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.expiry[key]
	return ok && s.now().Before(exp), nil
}

func (s *MemoryIdempotencyStore) Forget(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.expiry, key)
	s.mu.Unlock()
	return nil
}

// Close drops every mark.
func (s *MemoryIdempotencyStore) Close() error {
	s.mu.Lock()
	clear(s.expiry)
	s.mu.Unlock()
	return nil
}

// Len counts stored marks, expired ones included until the next sweep.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expiry)
}

func (s *MemoryIdempotencyStore) sweep(now time.Time) {
	for key, exp := range s.expiry {
		if !now.Before(exp) {
			delete(s.expiry, key)
		}
	}
	s.lastSweep = now
}

var _ shared.IdempotencyStore = (*MemoryIdempotencyStore)(nil)
