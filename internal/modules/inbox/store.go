package inbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storeWs/internal/modules/realtime/domain"
)

const (
	// DefaultMaxSize is the number of records kept before the oldest are evicted.
	DefaultMaxSize = 200
	// DefaultMergeWindow is how close two alerts for the same product must be to coalesce.
	DefaultMergeWindow = 60 * time.Second
)

// Store is a bounded notification feed. Records are kept oldest first and evicted
// FIFO once MaxSize is exceeded. Every mutation is written through the Persister;
// a failed save is returned but the in-memory feed keeps the change.
type Store struct {
	mu        sync.Mutex
	records   []domain.Record
	maxSize   int
	persister Persister
}

func NewStore(p Persister, maxSize int) *Store {
	if p == nil {
		p = NewMemoryPersister()
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Store{persister: p, maxSize: maxSize}
}

// Load replaces the in-memory feed with what the persister holds.
func (s *Store) Load(ctx context.Context) error {
	records, err := s.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("load notifications: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append([]domain.Record(nil), records...)
	s.evictLocked()
	return nil
}

// Append adds rec as the newest record.
func (s *Store) Append(ctx context.Context, rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	s.evictLocked()
	return s.persistLocked(ctx)
}

// MergeOrAppend coalesces rec into the most recent record with the same merge key
// when their timestamps are strictly less than window apart; the existing record takes
// rec's message and timestamp and keeps its id and position. Otherwise rec is appended.
func (s *Store) MergeOrAppend(ctx context.Context, rec domain.Record, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := false
	if key := rec.MergeKey(); key != "" {
		for i := len(s.records) - 1; i >= 0; i-- {
			if s.records[i].MergeKey() != key {
				continue
			}
			if absMillis(rec.Timestamp-s.records[i].Timestamp) < window.Milliseconds() {
				s.records[i].Message = rec.Message
				s.records[i].Timestamp = rec.Timestamp
				merged = true
			}
			break
		}
	}
	if !merged {
		s.records = append(s.records, rec)
		s.evictLocked()
	}
	return merged, s.persistLocked(ctx)
}

// ReadAll returns a copy of the feed in stored order, oldest first.
func (s *Store) ReadAll() []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Record{}, s.records...)
}

// Recent returns the feed newest first, the order an inbox renders it in.
func (s *Store) Recent() []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Record, len(s.records))
	for i, rec := range s.records {
		out[len(s.records)-1-i] = rec
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Clear empties the feed.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return s.persistLocked(ctx)
}

func (s *Store) evictLocked() {
	if over := len(s.records) - s.maxSize; over > 0 {
		s.records = append([]domain.Record(nil), s.records[over:]...)
	}
}

func (s *Store) persistLocked(ctx context.Context) error {
	if err := s.persister.Save(ctx, append([]domain.Record(nil), s.records...)); err != nil {
		return fmt.Errorf("save notifications: %w", err)
	}
	return nil
}

func absMillis(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
