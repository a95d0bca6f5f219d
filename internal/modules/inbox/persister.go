package inbox

import (
	"context"
	"sync"

	"storeWs/internal/modules/realtime/domain"
)

// Persister loads and saves the whole feed. Save receives the feed in stored order.
type Persister interface {
	Load(ctx context.Context) ([]domain.Record, error)
	Save(ctx context.Context, records []domain.Record) error
}

// MemoryPersister keeps the last saved feed in memory.
type MemoryPersister struct {
	mu      sync.Mutex
	records []domain.Record
	saves   int
}

func NewMemoryPersister(seed ...domain.Record) *MemoryPersister {
	return &MemoryPersister{records: append([]domain.Record(nil), seed...)}
}

func (m *MemoryPersister) Load(context.Context) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Record(nil), m.records...), nil
}

func (m *MemoryPersister) Save(_ context.Context, records []domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append([]domain.Record(nil), records...)
	m.saves++
	return nil
}

// Saves reports how many times Save was called.
func (m *MemoryPersister) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
