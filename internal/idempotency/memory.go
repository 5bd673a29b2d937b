package idempotency

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSweepInterval is how often the background sweep removes expired
// records.
const DefaultSweepInterval = 1 * time.Hour

// MemoryStore is a thread-safe in-process idempotency store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	logger  *slog.Logger
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the cached record for key. Expired records are treated as
// misses; the sweep reclaims them later.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok || s.now().After(rec.ExpiresAt) {
		return nil, false, nil
	}
	copied := *rec
	return &copied, true, nil
}

// Put stores a record, keeping the first writer's result on a duplicate.
func (s *MemoryStore) Put(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.Key]; ok && s.now().Before(existing.ExpiresAt) {
		return nil
	}
	copied := *rec
	s.records[rec.Key] = &copied
	return nil
}

// Len returns the number of records currently held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Sweep runs the background cleanup loop until ctx is cancelled. The lock
// is held only while expired entries are removed.
func (s *MemoryStore) Sweep(ctx context.Context, interval time.Duration) {
	s.logger.Info("idempotency sweep started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("idempotency sweep stopped")
			return
		case <-ticker.C:
			removed := s.removeExpired()
			if removed > 0 {
				s.logger.Debug("expired idempotency records removed", "count", removed)
			}
		}
	}
}

func (s *MemoryStore) removeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, rec := range s.records {
		if now.After(rec.ExpiresAt) {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}
