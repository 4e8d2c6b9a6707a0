package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
)

// indexSink implements driven.IndexSink against a local table. A
// deployment fronting a search cluster would swap this adapter out; the
// pipeline only sees the port.
type indexSink struct {
	store *Store
}

var _ driven.IndexSink = (*indexSink)(nil)

// Upsert writes or replaces the record for its document ID.
func (s *indexSink) Upsert(ctx context.Context, record *driven.IndexRecord) error {
	if record == nil || record.DocumentID == "" {
		return domain.ErrInvalidInput
	}

	languagesJSON, err := json.Marshal(record.Languages)
	if err != nil {
		return fmt.Errorf("marshalling languages: %w", err)
	}
	entitiesJSON, err := json.Marshal(record.Entities)
	if err != nil {
		return fmt.Errorf("marshalling entities: %w", err)
	}
	warningsJSON, err := json.Marshal(record.Warnings)
	if err != nil {
		return fmt.Errorf("marshalling warnings: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO index_records
			(document_id, foreign_id, collection_id, text, latin, languages, entities, fingerprint, duplicate_of, warnings, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			foreign_id = excluded.foreign_id,
			collection_id = excluded.collection_id,
			text = excluded.text,
			latin = excluded.latin,
			languages = excluded.languages,
			entities = excluded.entities,
			fingerprint = excluded.fingerprint,
			duplicate_of = excluded.duplicate_of,
			warnings = excluded.warnings,
			updated_at = excluded.updated_at
	`, record.DocumentID, record.ForeignID, record.CollectionID, record.Text, record.Latin,
		string(languagesJSON), string(entitiesJSON), record.Fingerprint, record.DuplicateOf,
		string(warningsJSON), time.Now().UTC())

	if err != nil {
		return fmt.Errorf("upserting index record: %w", err)
	}
	return nil
}

// GetIndexRecord retrieves an index record by document ID. Returns nil
// and no error when the document is not indexed. Used by the status CLI.
func (s *Store) GetIndexRecord(ctx context.Context, documentID string) (*driven.IndexRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT document_id, foreign_id, collection_id, text, latin, languages, entities, fingerprint, duplicate_of, warnings
		FROM index_records WHERE document_id = ?
	`, documentID)

	var record driven.IndexRecord
	var foreignID, collectionID, text, latin, fingerprint, duplicateOf sql.NullString
	var languagesJSON, entitiesJSON, warningsJSON sql.NullString

	err := row.Scan(&record.DocumentID, &foreignID, &collectionID, &text, &latin,
		&languagesJSON, &entitiesJSON, &fingerprint, &duplicateOf, &warningsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning index record: %w", err)
	}

	record.ForeignID = foreignID.String
	record.CollectionID = collectionID.String
	record.Text = text.String
	record.Latin = latin.String
	record.Fingerprint = fingerprint.String
	record.DuplicateOf = duplicateOf.String
	if languagesJSON.Valid && languagesJSON.String != "" {
		if err := json.Unmarshal([]byte(languagesJSON.String), &record.Languages); err != nil {
			return nil, fmt.Errorf("unmarshalling languages: %w", err)
		}
	}
	if entitiesJSON.Valid && entitiesJSON.String != "" {
		if err := json.Unmarshal([]byte(entitiesJSON.String), &record.Entities); err != nil {
			return nil, fmt.Errorf("unmarshalling entities: %w", err)
		}
	}
	if warningsJSON.Valid && warningsJSON.String != "" {
		if err := json.Unmarshal([]byte(warningsJSON.String), &record.Warnings); err != nil {
			return nil, fmt.Errorf("unmarshalling warnings: %w", err)
		}
	}

	return &record, nil
}
