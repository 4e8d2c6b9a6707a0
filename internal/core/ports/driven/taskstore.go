package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/docforge/internal/core/domain"
)

// TaskStore persists tasks and document statuses so the pipeline
// survives process restart. Backed by SQLite.
type TaskStore interface {
	// SaveTask creates or updates a task by ID.
	SaveTask(ctx context.Context, task *domain.Task) error

	// GetTask retrieves a task by ID.
	// Returns nil and no error if the task does not exist.
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)

	// PendingTasks returns tasks in pending or leased state, oldest
	// first. Used to recover the queue on cold start; leased tasks are
	// re-delivered, which is why handlers must be idempotent.
	PendingTasks(ctx context.Context) ([]domain.Task, error)

	// SaveStatus creates or updates a document status.
	SaveStatus(ctx context.Context, status *domain.DocumentStatus) error

	// GetStatus retrieves a document status by document ID.
	// Returns nil and no error if the document does not exist.
	GetStatus(ctx context.Context, documentID string) (*domain.DocumentStatus, error)

	// GetStatusByForeignID retrieves the most recent status for a
	// submitter's foreign ID. Used for idempotent resubmission.
	// Returns nil and no error if the foreign ID was never submitted.
	GetStatusByForeignID(ctx context.Context, foreignID string) (*domain.DocumentStatus, error)

	// ListFailedBefore returns failed documents whose status last
	// changed before cutoff, bounded by limit. Consumed by the
	// maintenance sweep.
	ListFailedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.DocumentStatus, error)

	// RecordSweep logs a maintenance sweep execution.
	RecordSweep(ctx context.Context, result *domain.SweepResult) error

	// PruneSweeps removes old sweep results beyond the retention limit.
	PruneSweeps(ctx context.Context, keep int) error
}

// ArtifactStore persists per-stage pipeline artifacts keyed by document
// ID, so each stage is independently retryable and idempotent: re-running
// a stage overwrites identical output.
type ArtifactStore interface {
	// SaveRequest stores the original ingest request for a document.
	SaveRequest(ctx context.Context, documentID string, req *domain.IngestRequest) error

	// GetRequest retrieves the ingest request for a document.
	GetRequest(ctx context.Context, documentID string) (*domain.IngestRequest, error)

	// SaveExtraction stores an extraction result.
	SaveExtraction(ctx context.Context, result *domain.ExtractionResult) error

	// GetExtraction retrieves the extraction result for a document.
	GetExtraction(ctx context.Context, documentID string) (*domain.ExtractionResult, error)

	// SaveNormalised stores normalised text.
	SaveNormalised(ctx context.Context, text *domain.NormalisedText) error

	// GetNormalised retrieves the normalised text for a document.
	GetNormalised(ctx context.Context, documentID string) (*domain.NormalisedText, error)

	// SaveFingerprints stores a document's fingerprints.
	SaveFingerprints(ctx context.Context, documentID string, fps []domain.Fingerprint) error

	// GetFingerprints retrieves a document's fingerprints.
	GetFingerprints(ctx context.Context, documentID string) ([]domain.Fingerprint, error)

	// SaveEntities stores a document's entity spans.
	SaveEntities(ctx context.Context, documentID string, spans []domain.EntitySpan) error

	// GetEntities retrieves a document's entity spans.
	GetEntities(ctx context.Context, documentID string) ([]domain.EntitySpan, error)

	// SaveAdvisories stores a document's advisory warnings, such as
	// near-duplicate links. Replaces any previous set, so re-running
	// the producing stage never accumulates duplicates.
	SaveAdvisories(ctx context.Context, documentID string, warnings []domain.Warning) error

	// GetAdvisories retrieves a document's advisory warnings.
	GetAdvisories(ctx context.Context, documentID string) ([]domain.Warning, error)
}
