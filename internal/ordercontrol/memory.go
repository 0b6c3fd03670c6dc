package ordercontrol

import (
	"context"
	"sync"
)

// memoryStore is a mutex-guarded Store for tests and single-process runs.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]uint64
}

func NewMemoryStore() Store {
	return &memoryStore{records: make(map[string]uint64)}
}

func (s *memoryStore) LastProcessed(_ context.Context, streamID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[streamID], nil
}

func (s *memoryStore) LastProcessedBatch(_ context.Context, streamIDs []string) (map[string]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]uint64, len(streamIDs))
	for _, id := range streamIDs {
		out[id] = s.records[id]
	}
	return out, nil
}

func (s *memoryStore) Advance(_ context.Context, streamID string, from, to uint64) error {
	if to < from {
		return ErrInvalidAdvance
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records[streamID] != from {
		return ErrOutOfOrder
	}
	s.records[streamID] = to
	return nil
}

func (s *memoryStore) AdvanceBatch(ctx context.Context, updates []Update) []error {
	results := make([]error, len(updates))
	for i, u := range updates {
		results[i] = s.Advance(ctx, u.StreamID, u.From, u.To)
	}
	return results
}

func (s *memoryStore) Reset(_ context.Context, streamIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(streamIDs) == 0 {
		s.records = make(map[string]uint64)
		return nil
	}
	for _, id := range streamIDs {
		delete(s.records, id)
	}
	return nil
}
