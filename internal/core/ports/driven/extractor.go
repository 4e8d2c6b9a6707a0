package driven

import (
	"context"

	"github.com/custodia-labs/docforge/internal/core/domain"
)

// Sniff confidence bands. Magic-byte matches should return 90-100,
// structural matches 50-89, declared-type-only matches 10-49, and the
// generic fallback 1.
const (
	ConfidenceMagic    = 90
	ConfidenceStruct   = 50
	ConfidenceDeclared = 10
	ConfidenceFallback = 1
)

// Extractor converts one payload format into an ExtractionResult.
// The declared media type is advisory: extractors must re-sniff magic
// bytes or structure before trusting it.
type Extractor interface {
	// Name identifies the extractor in results and logs.
	Name() string

	// Sniff returns a confidence that this extractor can handle the
	// payload. Zero means it cannot.
	Sniff(payload []byte, declaredType string) int

	// Extract produces text (or child requests, for archives) from the
	// payload. May invoke blocking external tools (OCR, unpacking).
	Extract(ctx context.Context, req *domain.IngestRequest, documentID string) (*domain.ExtractionResult, error)
}

// ExtractorRegistry selects the highest-confidence extractor for a
// payload and guarantees a result: extraction failures come back as a
// failed result with warnings, never as a propagated fault.
type ExtractorRegistry interface {
	// Extract runs the best matching extractor. Always returns a
	// non-nil result.
	Extract(ctx context.Context, req *domain.IngestRequest, documentID string) *domain.ExtractionResult

	// Register adds an extractor to the registry.
	Register(extractor Extractor)
}

// OCREngine recognises text in a rendered image. Implementations wrap
// an external engine and are blocking, CPU/IO-bound calls.
type OCREngine interface {
	// Recognise returns the text found in the image bytes.
	Recognise(ctx context.Context, image []byte) (string, error)
}
