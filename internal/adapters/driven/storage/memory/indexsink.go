package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
)

// Ensure IndexSink implements the interface.
var _ driven.IndexSink = (*IndexSink)(nil)

// IndexSink is an in-memory implementation of driven.IndexSink.
// Tests can inject a failure to exercise retry paths.
type IndexSink struct {
	mu      sync.RWMutex
	records map[string]driven.IndexRecord

	// FailWith, when set, makes every Upsert return this error.
	FailWith error
}

// NewIndexSink creates a new in-memory index sink.
func NewIndexSink() *IndexSink {
	return &IndexSink{records: make(map[string]driven.IndexRecord)}
}

// Upsert writes or replaces the record for its document ID.
func (s *IndexSink) Upsert(_ context.Context, record *driven.IndexRecord) error {
	if record == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.records[record.DocumentID] = *record
	return nil
}

// Get returns the record for a document ID. Test helper.
func (s *IndexSink) Get(documentID string) (driven.IndexRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[documentID]
	return record, ok
}

// Len returns the number of stored records. Test helper.
func (s *IndexSink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// SetFailure sets or clears the injected Upsert failure.
func (s *IndexSink) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailWith = err
}
