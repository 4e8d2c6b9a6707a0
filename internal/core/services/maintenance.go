package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
	"github.com/custodia-labs/docforge/internal/logger"
)

// sweepHistoryKeep bounds how many sweep results are retained.
const sweepHistoryKeep = 50

// resubmitter re-queues a failed document. Satisfied by Coordinator.
type resubmitter interface {
	Resubmit(ctx context.Context, documentID string) error
}

// Maintenance periodically re-submits failed documents once they are
// older than the grace period, bounded per sweep so a backlog of
// failures cannot start a reprocessing storm.
type Maintenance struct {
	settings domain.Settings
	tasks    driven.TaskStore
	pipeline resubmitter
}

// NewMaintenance creates the sweep service.
func NewMaintenance(settings domain.Settings, tasks driven.TaskStore, pipeline resubmitter) *Maintenance {
	return &Maintenance{
		settings: settings,
		tasks:    tasks,
		pipeline: pipeline,
	}
}

// Run executes sweeps on the configured interval until ctx is
// cancelled.
func (m *Maintenance) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.settings.SweepInterval)
	defer ticker.Stop()

	logger.Info("maintenance: sweeping every %s", m.settings.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				logger.Warn("maintenance: sweep failed: %v", err)
			}
		}
	}
}

// Sweep runs one pass: failed documents whose status is older than the
// grace period are re-queued from their failed stage, up to the batch
// limit. The result is recorded durably and old history pruned.
func (m *Maintenance) Sweep(ctx context.Context) (*domain.SweepResult, error) {
	result := &domain.SweepResult{StartedAt: time.Now()}
	cutoff := result.StartedAt.Add(-m.settings.SweepGracePeriod)

	statuses, err := m.tasks.ListFailedBefore(ctx, cutoff, m.settings.SweepBatchLimit)
	if err != nil {
		result.Error = err.Error()
		m.record(ctx, result)
		return result, fmt.Errorf("%w: listing failed documents: %w", domain.ErrTransient, err)
	}

	for _, status := range statuses {
		if err := m.pipeline.Resubmit(ctx, status.DocumentID); err != nil {
			logger.Warn("maintenance: resubmitting %s: %v", status.DocumentID, err)
			continue
		}
		result.Resubmitted++
	}

	m.record(ctx, result)
	if result.Resubmitted > 0 {
		logger.Info("maintenance: resubmitted %d failed documents", result.Resubmitted)
	}
	return result, nil
}

// record persists the sweep outcome and trims history. Best effort: a
// failed record write never fails the sweep itself.
func (m *Maintenance) record(ctx context.Context, result *domain.SweepResult) {
	result.EndedAt = time.Now()
	if err := m.tasks.RecordSweep(ctx, result); err != nil {
		logger.Warn("maintenance: recording sweep: %v", err)
		return
	}
	if err := m.tasks.PruneSweeps(ctx, sweepHistoryKeep); err != nil {
		logger.Warn("maintenance: pruning sweep history: %v", err)
	}
}
