// Package extract converts raw payloads into text, table rows or child
// requests. One extractor per format family; a registry sniffs each
// payload and routes it to the highest-confidence extractor, falling
// back to printable-text salvage when nothing recognises the bytes.
package extract

import (
	"context"
	"fmt"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
	"github.com/custodia-labs/docforge/internal/logger"
)

// Ensure Registry implements the interface.
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry routes payloads to format extractors by sniff confidence.
// Ties go to the earlier registration, so register more specific
// extractors first.
type Registry struct {
	extractors []driven.Extractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an extractor. Not safe for concurrent use with Extract;
// register everything during startup.
func (r *Registry) Register(extractor driven.Extractor) {
	r.extractors = append(r.extractors, extractor)
}

// Extract runs the best matching extractor. It never propagates a
// fault: extractor errors come back as a failed result carrying a
// warning, so one poison document cannot take down a batch.
func (r *Registry) Extract(ctx context.Context, req *domain.IngestRequest, documentID string) *domain.ExtractionResult {
	if req == nil || len(req.Payload) == 0 {
		return &domain.ExtractionResult{
			DocumentID: documentID,
			Failed:     true,
			Warnings: []domain.Warning{
				domain.NewWarning(domain.ErrExtraction, "empty payload"),
			},
		}
	}

	best, confidence := r.pick(req.Payload, req.DeclaredType)
	if best == nil {
		return &domain.ExtractionResult{
			DocumentID: documentID,
			Failed:     true,
			Warnings: []domain.Warning{
				domain.NewWarning(domain.ErrUnsupportedType, "no extractor recognised the payload"),
			},
		}
	}
	logger.Debug("extract: %s handles document %s (confidence %d)", best.Name(), documentID, confidence)

	result, err := r.run(ctx, best, req, documentID)
	if err != nil {
		return &domain.ExtractionResult{
			DocumentID: documentID,
			Failed:     true,
			Extractor:  best.Name(),
			Warnings: []domain.Warning{
				domain.NewWarning(domain.ErrExtraction, fmt.Sprintf("%s: %v", best.Name(), err)),
			},
		}
	}
	if result == nil {
		result = &domain.ExtractionResult{DocumentID: documentID, Failed: true}
	}
	result.DocumentID = documentID
	if result.Extractor == "" {
		result.Extractor = best.Name()
	}
	return result
}

// pick returns the highest-confidence extractor for the payload.
func (r *Registry) pick(payload []byte, declaredType string) (driven.Extractor, int) {
	var (
		best       driven.Extractor
		confidence int
	)
	for _, e := range r.extractors {
		if c := e.Sniff(payload, declaredType); c > confidence {
			best, confidence = e, c
		}
	}
	return best, confidence
}

// run invokes an extractor, converting a panic into an error so a
// malformed payload cannot crash the worker.
func (r *Registry) run(ctx context.Context, e driven.Extractor, req *domain.IngestRequest, documentID string) (result *domain.ExtractionResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return e.Extract(ctx, req, documentID)
}
