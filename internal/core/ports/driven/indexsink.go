package driven

import (
	"context"

	"github.com/custodia-labs/docforge/internal/core/domain"
)

// IndexRecord is the structured record handed to the search index for
// one completed document. Query semantics are the index's concern; this
// is only the shape of what it receives.
type IndexRecord struct {
	// DocumentID keys the record; writes are upserts on this key.
	DocumentID string

	// ForeignID is the submitter's identifier.
	ForeignID string

	// CollectionID groups documents from the same crawl or upload batch.
	CollectionID string

	// Text is the canonical document text.
	Text string

	// Latin is the transliterated working form.
	Latin string

	// Languages are detected languages ranked by proportion.
	Languages []domain.LanguageGuess

	// Entities are the recognised entity spans.
	Entities []domain.EntitySpan

	// Fingerprint is the document-scope fingerprint value.
	Fingerprint string

	// DuplicateOf is the canonical document ID when this document was
	// deduplicated; empty otherwise.
	DuplicateOf string

	// Warnings accumulates extraction and normalisation warnings.
	Warnings []domain.Warning
}

// IndexSink receives completed records for the search index.
// Append/upsert-only, keyed by document ID.
type IndexSink interface {
	// Upsert writes or replaces the record for its document ID.
	Upsert(ctx context.Context, record *IndexRecord) error
}
