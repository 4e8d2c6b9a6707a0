package driven

import (
	"context"

	"github.com/custodia-labs/docforge/internal/core/domain"
)

// TaskHandler executes one task. Delivery is at-least-once, so handlers
// must be safe to re-run for the same document (idempotent writes keyed
// by document ID).
type TaskHandler func(ctx context.Context, task *domain.Task) error

// TaskQueue delivers tasks to stage handlers with at-least-once
// semantics, per-attempt deadlines and retry backoff.
type TaskQueue interface {
	// Enqueue persists and schedules a task. Blocks when the queue is
	// full, providing backpressure.
	Enqueue(ctx context.Context, task *domain.Task) error

	// Handle registers the handler for a stage. Must be called before
	// Start.
	Handle(stage domain.TaskStage, handler TaskHandler)

	// Start launches the worker pool and recovers persisted pending
	// tasks. Blocks until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop drains workers and shuts the queue down.
	Stop() error
}
