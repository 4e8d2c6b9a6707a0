package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
)

// Ensure ArtifactStore implements the interface.
var _ driven.ArtifactStore = (*ArtifactStore)(nil)

// ArtifactStore is an in-memory implementation of driven.ArtifactStore.
type ArtifactStore struct {
	mu           sync.RWMutex
	requests     map[string]domain.IngestRequest
	extractions  map[string]domain.ExtractionResult
	normalised   map[string]domain.NormalisedText
	fingerprints map[string][]domain.Fingerprint
	entities     map[string][]domain.EntitySpan
	advisories   map[string][]domain.Warning
}

// NewArtifactStore creates a new in-memory artifact store.
func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{
		requests:     make(map[string]domain.IngestRequest),
		extractions:  make(map[string]domain.ExtractionResult),
		normalised:   make(map[string]domain.NormalisedText),
		fingerprints: make(map[string][]domain.Fingerprint),
		entities:     make(map[string][]domain.EntitySpan),
		advisories:   make(map[string][]domain.Warning),
	}
}

// SaveRequest stores the original ingest request for a document.
func (s *ArtifactStore) SaveRequest(_ context.Context, documentID string, req *domain.IngestRequest) error {
	if req == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[documentID] = *req
	return nil
}

// GetRequest retrieves the ingest request for a document. Like the
// SQLite twin, absent artifacts are nil with no error.
func (s *ArtifactStore) GetRequest(_ context.Context, documentID string) (*domain.IngestRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[documentID]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

// SaveExtraction stores an extraction result.
func (s *ArtifactStore) SaveExtraction(_ context.Context, result *domain.ExtractionResult) error {
	if result == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extractions[result.DocumentID] = *result
	return nil
}

// GetExtraction retrieves the extraction result for a document.
func (s *ArtifactStore) GetExtraction(_ context.Context, documentID string) (*domain.ExtractionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.extractions[documentID]
	if !ok {
		return nil, nil
	}
	return &result, nil
}

// SaveNormalised stores normalised text.
func (s *ArtifactStore) SaveNormalised(_ context.Context, text *domain.NormalisedText) error {
	if text == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.normalised[text.DocumentID] = *text
	return nil
}

// GetNormalised retrieves the normalised text for a document.
func (s *ArtifactStore) GetNormalised(_ context.Context, documentID string) (*domain.NormalisedText, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.normalised[documentID]
	if !ok {
		return nil, nil
	}
	return &text, nil
}

// SaveFingerprints stores a document's fingerprints.
func (s *ArtifactStore) SaveFingerprints(_ context.Context, documentID string, fps []domain.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fingerprints[documentID] = append([]domain.Fingerprint(nil), fps...)
	return nil
}

// GetFingerprints retrieves a document's fingerprints.
func (s *ArtifactStore) GetFingerprints(_ context.Context, documentID string) ([]domain.Fingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fps, ok := s.fingerprints[documentID]
	if !ok {
		return nil, nil
	}
	return append([]domain.Fingerprint(nil), fps...), nil
}

// SaveEntities stores a document's entity spans.
func (s *ArtifactStore) SaveEntities(_ context.Context, documentID string, spans []domain.EntitySpan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[documentID] = append([]domain.EntitySpan(nil), spans...)
	return nil
}

// GetEntities retrieves a document's entity spans.
func (s *ArtifactStore) GetEntities(_ context.Context, documentID string) ([]domain.EntitySpan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spans, ok := s.entities[documentID]
	if !ok {
		return nil, nil
	}
	return append([]domain.EntitySpan(nil), spans...), nil
}

// SaveAdvisories stores a document's advisory warnings, replacing any
// previous set.
func (s *ArtifactStore) SaveAdvisories(_ context.Context, documentID string, warnings []domain.Warning) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advisories[documentID] = append([]domain.Warning(nil), warnings...)
	return nil
}

// GetAdvisories retrieves a document's advisory warnings.
func (s *ArtifactStore) GetAdvisories(_ context.Context, documentID string) ([]domain.Warning, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	warnings, ok := s.advisories[documentID]
	if !ok {
		return nil, nil
	}
	return append([]domain.Warning(nil), warnings...), nil
}
