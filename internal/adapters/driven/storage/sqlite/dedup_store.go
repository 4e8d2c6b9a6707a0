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

// ==================== Dedup Store ====================

// dedupStore implements driven.DedupStore.
type dedupStore struct {
	store *Store
}

var _ driven.DedupStore = (*dedupStore)(nil)

// Save creates or updates a dedup record by fingerprint key.
func (s *dedupStore) Save(ctx context.Context, record *domain.DedupRecord) error {
	if record == nil || record.Fingerprint == "" {
		return domain.ErrInvalidInput
	}

	duplicatesJSON, err := json.Marshal(record.DuplicateIDs)
	if err != nil {
		return fmt.Errorf("marshalling duplicate IDs: %w", err)
	}
	if record.LastSeen.IsZero() {
		record.LastSeen = time.Now().UTC()
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO dedup_records (fingerprint, canonical_id, duplicate_ids, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			canonical_id = excluded.canonical_id,
			duplicate_ids = excluded.duplicate_ids,
			last_seen = excluded.last_seen
	`, record.Fingerprint, record.CanonicalID, string(duplicatesJSON), record.LastSeen)

	if err != nil {
		return fmt.Errorf("saving dedup record: %w", err)
	}
	return nil
}

// Get retrieves a dedup record by fingerprint key. Returns nil and no
// error when the fingerprint is unknown.
func (s *dedupStore) Get(ctx context.Context, fingerprint string) (*domain.DedupRecord, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT fingerprint, canonical_id, duplicate_ids, last_seen
		FROM dedup_records WHERE fingerprint = ?
	`, fingerprint)

	record, err := scanDedupRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return record, err
}

// Recent returns the most recently seen records, newest first.
func (s *dedupStore) Recent(ctx context.Context, limit int) ([]domain.DedupRecord, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT fingerprint, canonical_id, duplicate_ids, last_seen
		FROM dedup_records
		ORDER BY last_seen DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent dedup records: %w", err)
	}
	defer rows.Close()

	var records []domain.DedupRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		record, err := scanDedupRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dedup records: %w", err)
	}

	return records, nil
}

// scanDedupRecord scans a dedup record from a row or rows Scan function.
func scanDedupRecord(scan func(dest ...any) error) (*domain.DedupRecord, error) {
	var record domain.DedupRecord
	var duplicatesJSON sql.NullString
	var lastSeen sql.NullTime

	if err := scan(&record.Fingerprint, &record.CanonicalID, &duplicatesJSON, &lastSeen); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning dedup record: %w", err)
	}

	if duplicatesJSON.Valid && duplicatesJSON.String != "" {
		if err := json.Unmarshal([]byte(duplicatesJSON.String), &record.DuplicateIDs); err != nil {
			return nil, fmt.Errorf("unmarshalling duplicate IDs: %w", err)
		}
	}
	if lastSeen.Valid {
		record.LastSeen = lastSeen.Time
	}

	return &record, nil
}

// ==================== Dictionary Store ====================

// dictionaryStore implements driven.DictionaryStore.
type dictionaryStore struct {
	store *Store
}

var _ driven.DictionaryStore = (*dictionaryStore)(nil)

// Replace swaps the full dictionary contents.
func (s *dictionaryStore) Replace(ctx context.Context, entries []domain.DictionaryEntry) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM dictionary_entries"); err != nil {
		return fmt.Errorf("clearing dictionary: %w", err)
	}
	if err := insertEntries(ctx, tx, entries); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Add appends entries to the dictionary.
func (s *dictionaryStore) Add(ctx context.Context, entries []domain.DictionaryEntry) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := insertEntries(ctx, tx, entries); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// All returns every dictionary entry.
func (s *dictionaryStore) All(ctx context.Context) ([]domain.DictionaryEntry, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT name, type, aliases FROM dictionary_entries ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying dictionary: %w", err)
	}
	defer rows.Close()

	var entries []domain.DictionaryEntry //nolint:prealloc // size unknown from query
	for rows.Next() {
		var entry domain.DictionaryEntry
		var entryType string
		var aliasesJSON sql.NullString
		if err := rows.Scan(&entry.Name, &entryType, &aliasesJSON); err != nil {
			return nil, fmt.Errorf("scanning dictionary entry: %w", err)
		}
		entry.Type = domain.EntityType(entryType)
		if aliasesJSON.Valid && aliasesJSON.String != "" {
			if err := json.Unmarshal([]byte(aliasesJSON.String), &entry.Aliases); err != nil {
				return nil, fmt.Errorf("unmarshalling aliases: %w", err)
			}
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dictionary entries: %w", err)
	}

	return entries, nil
}

// insertEntries writes entries within a transaction.
func insertEntries(ctx context.Context, tx *sql.Tx, entries []domain.DictionaryEntry) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dictionary_entries (name, type, aliases) VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		aliasesJSON, err := json.Marshal(entry.Aliases)
		if err != nil {
			return fmt.Errorf("marshalling aliases: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, entry.Name, string(entry.Type), string(aliasesJSON)); err != nil {
			return fmt.Errorf("inserting dictionary entry: %w", err)
		}
	}
	return nil
}
