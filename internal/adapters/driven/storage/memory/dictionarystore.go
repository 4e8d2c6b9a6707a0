package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
)

// Ensure DictionaryStore implements the interface.
var _ driven.DictionaryStore = (*DictionaryStore)(nil)

// DictionaryStore is an in-memory implementation of driven.DictionaryStore.
type DictionaryStore struct {
	mu      sync.RWMutex
	entries []domain.DictionaryEntry
}

// NewDictionaryStore creates a new in-memory dictionary store.
func NewDictionaryStore() *DictionaryStore {
	return &DictionaryStore{}
}

// Replace swaps the full dictionary contents.
func (s *DictionaryStore) Replace(_ context.Context, entries []domain.DictionaryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]domain.DictionaryEntry(nil), entries...)
	return nil
}

// Add appends entries to the dictionary.
func (s *DictionaryStore) Add(_ context.Context, entries []domain.DictionaryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	return nil
}

// All returns every dictionary entry.
func (s *DictionaryStore) All(_ context.Context) ([]domain.DictionaryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.DictionaryEntry(nil), s.entries...), nil
}
