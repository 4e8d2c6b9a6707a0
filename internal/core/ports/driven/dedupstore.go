package driven

import (
	"context"

	"github.com/custodia-labs/docforge/internal/core/domain"
)

// DedupStore durably persists fingerprint-to-canonical mappings. The
// in-memory cache writes through to this store; an empty cache after
// restart is correctness-safe because records can be re-read from here.
type DedupStore interface {
	// Save creates or updates a dedup record by fingerprint key.
	Save(ctx context.Context, record *domain.DedupRecord) error

	// Get retrieves a dedup record by fingerprint key.
	// Returns nil and no error if the record does not exist.
	Get(ctx context.Context, fingerprint string) (*domain.DedupRecord, error)

	// Recent returns the most recently seen records, newest first,
	// bounded by limit. Used to warm the cache on cold start.
	Recent(ctx context.Context, limit int) ([]domain.DedupRecord, error)
}

// DictionaryStore persists the entity-name dictionary backing the
// matching automaton.
type DictionaryStore interface {
	// Replace swaps the full dictionary contents.
	Replace(ctx context.Context, entries []domain.DictionaryEntry) error

	// Add appends entries to the dictionary.
	Add(ctx context.Context, entries []domain.DictionaryEntry) error

	// All returns every dictionary entry.
	All(ctx context.Context) ([]domain.DictionaryEntry, error)
}
