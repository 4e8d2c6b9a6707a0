package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
)

// Ensure DedupStore implements the interface.
var _ driven.DedupStore = (*DedupStore)(nil)

// DedupStore is an in-memory implementation of driven.DedupStore.
type DedupStore struct {
	mu      sync.RWMutex
	records map[string]domain.DedupRecord
}

// NewDedupStore creates a new in-memory dedup store.
func NewDedupStore() *DedupStore {
	return &DedupStore{records: make(map[string]domain.DedupRecord)}
}

// Save creates or updates a dedup record by fingerprint key.
func (s *DedupStore) Save(_ context.Context, record *domain.DedupRecord) error {
	if record == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *record
	stored.DuplicateIDs = append([]string(nil), record.DuplicateIDs...)
	s.records[record.Fingerprint] = stored
	return nil
}

// Get retrieves a dedup record by fingerprint key.
func (s *DedupStore) Get(_ context.Context, fingerprint string) (*domain.DedupRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[fingerprint]
	if !ok {
		return nil, nil
	}
	out := record
	out.DuplicateIDs = append([]string(nil), record.DuplicateIDs...)
	return &out, nil
}

// Recent returns the most recently seen records, newest first.
func (s *DedupStore) Recent(_ context.Context, limit int) ([]domain.DedupRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.DedupRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
