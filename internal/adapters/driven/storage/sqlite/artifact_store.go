package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
)

// Artifact kinds, one row per document per stage.
const (
	artifactRequest      = "request"
	artifactExtraction   = "extraction"
	artifactNormalised   = "normalised"
	artifactFingerprints = "fingerprints"
	artifactEntities     = "entities"
	artifactAdvisories   = "advisories"
)

// artifactStore implements driven.ArtifactStore. Artifacts are stored
// as JSON: they are write-once-per-stage blobs read back whole, so a
// relational layout would buy nothing.
type artifactStore struct {
	store *Store
}

var _ driven.ArtifactStore = (*artifactStore)(nil)

// SaveRequest stores the original ingest request for a document.
func (s *artifactStore) SaveRequest(ctx context.Context, documentID string, req *domain.IngestRequest) error {
	return s.save(ctx, documentID, artifactRequest, req)
}

// GetRequest retrieves the ingest request for a document.
func (s *artifactStore) GetRequest(ctx context.Context, documentID string) (*domain.IngestRequest, error) {
	var req domain.IngestRequest
	ok, err := s.load(ctx, documentID, artifactRequest, &req)
	if err != nil || !ok {
		return nil, err
	}
	return &req, nil
}

// SaveExtraction stores an extraction result.
func (s *artifactStore) SaveExtraction(ctx context.Context, result *domain.ExtractionResult) error {
	if result == nil {
		return domain.ErrInvalidInput
	}
	return s.save(ctx, result.DocumentID, artifactExtraction, result)
}

// GetExtraction retrieves the extraction result for a document.
func (s *artifactStore) GetExtraction(ctx context.Context, documentID string) (*domain.ExtractionResult, error) {
	var result domain.ExtractionResult
	ok, err := s.load(ctx, documentID, artifactExtraction, &result)
	if err != nil || !ok {
		return nil, err
	}
	return &result, nil
}

// SaveNormalised stores normalised text.
func (s *artifactStore) SaveNormalised(ctx context.Context, text *domain.NormalisedText) error {
	if text == nil {
		return domain.ErrInvalidInput
	}
	return s.save(ctx, text.DocumentID, artifactNormalised, text)
}

// GetNormalised retrieves the normalised text for a document.
func (s *artifactStore) GetNormalised(ctx context.Context, documentID string) (*domain.NormalisedText, error) {
	var text domain.NormalisedText
	ok, err := s.load(ctx, documentID, artifactNormalised, &text)
	if err != nil || !ok {
		return nil, err
	}
	return &text, nil
}

// SaveFingerprints stores a document's fingerprints.
func (s *artifactStore) SaveFingerprints(ctx context.Context, documentID string, fps []domain.Fingerprint) error {
	return s.save(ctx, documentID, artifactFingerprints, fps)
}

// GetFingerprints retrieves a document's fingerprints.
func (s *artifactStore) GetFingerprints(ctx context.Context, documentID string) ([]domain.Fingerprint, error) {
	var fps []domain.Fingerprint
	if _, err := s.load(ctx, documentID, artifactFingerprints, &fps); err != nil {
		return nil, err
	}
	return fps, nil
}

// SaveEntities stores a document's entity spans.
func (s *artifactStore) SaveEntities(ctx context.Context, documentID string, spans []domain.EntitySpan) error {
	return s.save(ctx, documentID, artifactEntities, spans)
}

// GetEntities retrieves a document's entity spans.
func (s *artifactStore) GetEntities(ctx context.Context, documentID string) ([]domain.EntitySpan, error) {
	var spans []domain.EntitySpan
	if _, err := s.load(ctx, documentID, artifactEntities, &spans); err != nil {
		return nil, err
	}
	return spans, nil
}

// SaveAdvisories stores a document's advisory warnings, replacing any
// previous set.
func (s *artifactStore) SaveAdvisories(ctx context.Context, documentID string, warnings []domain.Warning) error {
	return s.save(ctx, documentID, artifactAdvisories, warnings)
}

// GetAdvisories retrieves a document's advisory warnings.
func (s *artifactStore) GetAdvisories(ctx context.Context, documentID string) ([]domain.Warning, error) {
	var warnings []domain.Warning
	if _, err := s.load(ctx, documentID, artifactAdvisories, &warnings); err != nil {
		return nil, err
	}
	return warnings, nil
}

// save upserts one artifact blob.
func (s *artifactStore) save(ctx context.Context, documentID, kind string, value any) error {
	if documentID == "" {
		return domain.ErrInvalidInput
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshalling %s artifact: %w", kind, err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO artifacts (document_id, kind, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(document_id, kind) DO UPDATE SET
			payload = excluded.payload
	`, documentID, kind, string(payload))

	if err != nil {
		return fmt.Errorf("saving %s artifact: %w", kind, err)
	}
	return nil
}

// load reads one artifact blob. Returns false and no error when the
// artifact does not exist.
func (s *artifactStore) load(ctx context.Context, documentID, kind string, value any) (bool, error) {
	var payload string
	err := s.store.db.QueryRowContext(ctx, `
		SELECT payload FROM artifacts WHERE document_id = ? AND kind = ?
	`, documentID, kind).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading %s artifact: %w", kind, err)
	}

	if err := json.Unmarshal([]byte(payload), value); err != nil {
		return false, fmt.Errorf("unmarshalling %s artifact: %w", kind, err)
	}
	return true, nil
}
