package history

import (
	"context"
	"sync"

	"github.com/smarttraffic/trafficd/internal/model"
)

// MemoryStore holds records in memory only. Used in tests and throwaway runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records []model.CycleRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, rec model.CycleRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) Recent(ctx context.Context, n int) ([]model.CycleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.records
	if n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}
	out := make([]model.CycleRecord, len(records))
	copy(out, records)
	return out, nil
}

func (s *MemoryStore) Aggregate(ctx context.Context, window int) (Summary, error) {
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return summarize(s.records, window), nil
}

func (s *MemoryStore) Close() error { return nil }
