package driving

import (
	"context"

	"github.com/custodia-labs/docforge/internal/core/domain"
)

// Ingestor is the ingestion intake and status surface.
type Ingestor interface {
	// Submit accepts an ingest request and returns the assigned
	// document identifier synchronously; processing completes
	// asynchronously. Resubmitting a foreign ID whose document is
	// still in flight returns the existing identifier instead of
	// duplicating work.
	Submit(ctx context.Context, req *domain.IngestRequest) (string, error)

	// Status returns a document's current pipeline stage and, if
	// failed, the last error class and message.
	Status(ctx context.Context, documentID string) (*domain.DocumentStatus, error)
}

// DictionaryAdmin is the administrative, low-frequency interface for
// entity dictionary maintenance. Updates trigger automaton
// recompilation off the hot path.
type DictionaryAdmin interface {
	// Replace swaps the full dictionary and recompiles the automaton.
	Replace(ctx context.Context, entries []domain.DictionaryEntry) error

	// Add appends entries and recompiles the automaton.
	Add(ctx context.Context, entries []domain.DictionaryEntry) error

	// Version returns the active compiled dictionary version.
	Version() int64
}
