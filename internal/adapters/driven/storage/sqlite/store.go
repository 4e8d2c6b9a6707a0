// Package sqlite is the durable storage adapter. A single database file
// backs every store interface through wrapper types.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/docforge/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
)

// Store is a unified SQLite-based storage that provides access to all
// pipeline store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a SQLite store in the given data directory.
// If dataDir is empty, defaults to ~/.docforge/data/pipeline.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".docforge", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "pipeline.db")

	// WAL mode for concurrent worker access.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// TaskStore returns a TaskStore interface backed by this store.
func (s *Store) TaskStore() driven.TaskStore {
	return &taskStore{store: s}
}

// ArtifactStore returns an ArtifactStore interface backed by this store.
func (s *Store) ArtifactStore() driven.ArtifactStore {
	return &artifactStore{store: s}
}

// DedupStore returns a DedupStore interface backed by this store.
func (s *Store) DedupStore() driven.DedupStore {
	return &dedupStore{store: s}
}

// DictionaryStore returns a DictionaryStore interface backed by this store.
func (s *Store) DictionaryStore() driven.DictionaryStore {
	return &dictionaryStore{store: s}
}

// IndexSink returns an IndexSink interface backed by this store.
func (s *Store) IndexSink() driven.IndexSink {
	return &indexSink{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "0001_init.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}

		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(
			"INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Task Store ====================

// taskStore implements driven.TaskStore.
type taskStore struct {
	store *Store
}

var _ driven.TaskStore = (*taskStore)(nil)

// SaveTask creates or updates a task by ID.
func (s *taskStore) SaveTask(ctx context.Context, task *domain.Task) error {
	if task == nil || task.ID == "" {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO tasks (id, document_id, stage, state, attempt, max_attempts, last_error, enqueued_at, not_before)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			stage = excluded.stage,
			state = excluded.state,
			attempt = excluded.attempt,
			max_attempts = excluded.max_attempts,
			last_error = excluded.last_error,
			enqueued_at = excluded.enqueued_at,
			not_before = excluded.not_before
	`, task.ID, task.DocumentID, string(task.Stage), string(task.State),
		task.Attempt, task.MaxAttempts, task.LastError, task.EnqueuedAt, task.NotBefore)

	if err != nil {
		return fmt.Errorf("saving task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID. Returns nil and no error if the task
// does not exist.
func (s *taskStore) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, document_id, stage, state, attempt, max_attempts, last_error, enqueued_at, not_before
		FROM tasks WHERE id = ?
	`, taskID)

	task, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return task, err
}

// PendingTasks returns tasks in pending or leased state, oldest first.
func (s *taskStore) PendingTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, stage, state, attempt, max_attempts, last_error, enqueued_at, not_before
		FROM tasks WHERE state IN (?, ?)
		ORDER BY id
	`, string(domain.TaskPending), string(domain.TaskLeased))
	if err != nil {
		return nil, fmt.Errorf("querying pending tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task //nolint:prealloc // size unknown from query
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tasks: %w", err)
	}

	return tasks, nil
}

// SaveStatus creates or updates a document status.
func (s *taskStore) SaveStatus(ctx context.Context, status *domain.DocumentStatus) error {
	if status == nil || status.DocumentID == "" {
		return domain.ErrInvalidInput
	}
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO document_statuses
			(document_id, foreign_id, collection_id, stage, duplicate_of, failed_stage, last_error_class, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			foreign_id = excluded.foreign_id,
			collection_id = excluded.collection_id,
			stage = excluded.stage,
			duplicate_of = excluded.duplicate_of,
			failed_stage = excluded.failed_stage,
			last_error_class = excluded.last_error_class,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`, status.DocumentID, status.ForeignID, status.CollectionID, string(status.Stage),
		status.DuplicateOf, string(status.FailedStage), status.LastErrorClass,
		status.LastError, status.UpdatedAt)

	if err != nil {
		return fmt.Errorf("saving status: %w", err)
	}
	return nil
}

// GetStatus retrieves a document status. Returns nil and no error if
// the document does not exist.
func (s *taskStore) GetStatus(ctx context.Context, documentID string) (*domain.DocumentStatus, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT document_id, foreign_id, collection_id, stage, duplicate_of, failed_stage, last_error_class, last_error, updated_at
		FROM document_statuses WHERE document_id = ?
	`, documentID)

	status, err := scanStatus(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return status, err
}

// GetStatusByForeignID retrieves the most recent status for a foreign ID.
func (s *taskStore) GetStatusByForeignID(ctx context.Context, foreignID string) (*domain.DocumentStatus, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT document_id, foreign_id, collection_id, stage, duplicate_of, failed_stage, last_error_class, last_error, updated_at
		FROM document_statuses WHERE foreign_id = ?
		ORDER BY updated_at DESC LIMIT 1
	`, foreignID)

	status, err := scanStatus(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return status, err
}

// ListFailedBefore returns failed documents last updated before cutoff,
// oldest first, bounded by limit.
func (s *taskStore) ListFailedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.DocumentStatus, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT document_id, foreign_id, collection_id, stage, duplicate_of, failed_stage, last_error_class, last_error, updated_at
		FROM document_statuses
		WHERE stage = ? AND updated_at < ?
		ORDER BY updated_at
		LIMIT ?
	`, string(domain.StageFailed), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("querying failed documents: %w", err)
	}
	defer rows.Close()

	var statuses []domain.DocumentStatus //nolint:prealloc // size unknown from query
	for rows.Next() {
		status, err := scanStatus(rows.Scan)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, *status)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating failed documents: %w", err)
	}

	return statuses, nil
}

// RecordSweep logs a maintenance sweep execution.
func (s *taskStore) RecordSweep(ctx context.Context, result *domain.SweepResult) error {
	if result == nil {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sweeps (started_at, ended_at, resubmitted, error)
		VALUES (?, ?, ?, ?)
	`, result.StartedAt, result.EndedAt, result.Resubmitted, result.Error)

	if err != nil {
		return fmt.Errorf("recording sweep: %w", err)
	}
	return nil
}

// PruneSweeps removes old sweep results beyond the retention limit.
func (s *taskStore) PruneSweeps(ctx context.Context, keep int) error {
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM sweeps WHERE id NOT IN (
			SELECT id FROM sweeps ORDER BY id DESC LIMIT ?
		)
	`, keep)

	if err != nil {
		return fmt.Errorf("pruning sweeps: %w", err)
	}
	return nil
}

// ==================== Helper Functions ====================

// scanTask scans a task from a row or rows Scan function.
func scanTask(scan func(dest ...any) error) (*domain.Task, error) {
	var task domain.Task
	var stage, state string
	var lastError sql.NullString
	var enqueuedAt, notBefore sql.NullTime

	if err := scan(&task.ID, &task.DocumentID, &stage, &state,
		&task.Attempt, &task.MaxAttempts, &lastError, &enqueuedAt, &notBefore); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning task: %w", err)
	}

	task.Stage = domain.TaskStage(stage)
	task.State = domain.TaskState(state)
	task.LastError = lastError.String
	if enqueuedAt.Valid {
		task.EnqueuedAt = enqueuedAt.Time
	}
	if notBefore.Valid {
		task.NotBefore = notBefore.Time
	}

	return &task, nil
}

// scanStatus scans a document status from a row or rows Scan function.
func scanStatus(scan func(dest ...any) error) (*domain.DocumentStatus, error) {
	var status domain.DocumentStatus
	var stage string
	var collectionID, duplicateOf, failedStage, lastErrorClass, lastError sql.NullString
	var updatedAt sql.NullTime

	if err := scan(&status.DocumentID, &status.ForeignID, &collectionID, &stage,
		&duplicateOf, &failedStage, &lastErrorClass, &lastError, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning status: %w", err)
	}

	status.CollectionID = collectionID.String
	status.Stage = domain.DocumentStage(stage)
	status.DuplicateOf = duplicateOf.String
	status.FailedStage = domain.TaskStage(failedStage.String)
	status.LastErrorClass = lastErrorClass.String
	status.LastError = lastError.String
	if updatedAt.Valid {
		status.UpdatedAt = updatedAt.Time
	}

	return &status, nil
}
