// Package memory provides in-memory implementations of the storage
// ports. Used in tests and as a reference for the SQLite adapters.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
)

// Ensure TaskStore implements the interface.
var _ driven.TaskStore = (*TaskStore)(nil)

// TaskStore is an in-memory implementation of driven.TaskStore.
type TaskStore struct {
	mu       sync.RWMutex
	tasks    map[string]domain.Task
	statuses map[string]domain.DocumentStatus
	sweeps   []domain.SweepResult
}

// NewTaskStore creates a new in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks:    make(map[string]domain.Task),
		statuses: make(map[string]domain.DocumentStatus),
	}
}

// SaveTask creates or updates a task by ID.
func (s *TaskStore) SaveTask(_ context.Context, task *domain.Task) error {
	if task == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = *task
	return nil
}

// GetTask retrieves a task by ID.
func (s *TaskStore) GetTask(_ context.Context, taskID string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, nil
	}
	return &task, nil
}

// PendingTasks returns pending and leased tasks, oldest first.
func (s *TaskStore) PendingTasks(_ context.Context) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []domain.Task
	for _, task := range s.tasks {
		if task.State == domain.TaskPending || task.State == domain.TaskLeased {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}

// SaveStatus creates or updates a document status.
func (s *TaskStore) SaveStatus(_ context.Context, status *domain.DocumentStatus) error {
	if status == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[status.DocumentID] = *status
	return nil
}

// GetStatus retrieves a document status by document ID. Returns nil
// and no error when the document is unknown, like the SQLite twin.
func (s *TaskStore) GetStatus(_ context.Context, documentID string) (*domain.DocumentStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[documentID]
	if !ok {
		return nil, nil
	}
	return &status, nil
}

// GetStatusByForeignID retrieves the most recent status for a foreign ID.
func (s *TaskStore) GetStatusByForeignID(_ context.Context, foreignID string) (*domain.DocumentStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.DocumentStatus
	for id := range s.statuses {
		status := s.statuses[id]
		if status.ForeignID != foreignID {
			continue
		}
		if latest == nil || status.UpdatedAt.After(latest.UpdatedAt) {
			latest = &status
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

// ListFailedBefore returns failed documents last updated before cutoff.
func (s *TaskStore) ListFailedBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.DocumentStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.DocumentStatus
	for _, status := range s.statuses {
		if status.Stage == domain.StageFailed && status.UpdatedAt.Before(cutoff) {
			out = append(out, status)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecordSweep logs a maintenance sweep execution.
func (s *TaskStore) RecordSweep(_ context.Context, result *domain.SweepResult) error {
	if result == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweeps = append(s.sweeps, *result)
	return nil
}

// PruneSweeps removes old sweep results beyond the retention limit.
func (s *TaskStore) PruneSweeps(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if keep > 0 && len(s.sweeps) > keep {
		s.sweeps = s.sweeps[len(s.sweeps)-keep:]
	}
	return nil
}

// Sweeps returns recorded sweep results. Test helper.
func (s *TaskStore) Sweeps() []domain.SweepResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SweepResult, len(s.sweeps))
	copy(out, s.sweeps)
	return out
}
