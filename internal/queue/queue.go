// Package queue is the task execution substrate: a bounded worker pool
// with at-least-once delivery, per-attempt deadlines and exponential
// retry backoff. Tasks are serialisable records consumed by stateless
// handlers, persisted through the task store so pending work survives
// process restart.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
	"github.com/custodia-labs/docforge/internal/logger"
)

// Ensure Queue implements the interface.
var _ driven.TaskQueue = (*Queue)(nil)

// FailureHandler is notified when a task exhausts its retry budget.
type FailureHandler func(ctx context.Context, task *domain.Task, err error)

// Queue delivers tasks to stage handlers through a bounded worker pool.
type Queue struct {
	store     driven.TaskStore
	settings  domain.Settings
	onFailure FailureHandler

	handlers map[domain.TaskStage]driven.TaskHandler
	ready    chan domain.Task

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	queued  map[string]struct{}
	timers  sync.WaitGroup
}

// New creates a queue. onFailure may be nil; it is invoked after a task
// fails permanently.
func New(store driven.TaskStore, settings domain.Settings, onFailure FailureHandler) *Queue {
	return &Queue{
		store:     store,
		settings:  settings,
		onFailure: onFailure,
		handlers:  make(map[domain.TaskStage]driven.TaskHandler),
		ready:     make(chan domain.Task, settings.QueueDepth),
		queued:    make(map[string]struct{}),
	}
}

// Handle registers the handler for a stage. Must be called before Start.
func (q *Queue) Handle(stage domain.TaskStage, handler driven.TaskHandler) {
	q.handlers[stage] = handler
}

// Enqueue persists and schedules a task. A zero ID is assigned a ULID;
// zero MaxAttempts takes the configured default. Blocks when the ready
// queue is full, providing backpressure to submitters.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil || !task.Stage.IsValid() {
		return domain.ErrInvalidInput
	}
	if task.ID == "" {
		task.ID = ulid.Make().String()
	}
	if task.MaxAttempts <= 0 {
		task.MaxAttempts = q.settings.MaxAttempts
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}
	task.State = domain.TaskPending

	if err := q.store.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("%w: persisting task: %w", domain.ErrTransient, err)
	}

	if !q.claim(task.ID) {
		// Startup recovery has already scheduled this exact task.
		return nil
	}
	select {
	case q.ready <- *task:
		return nil
	case <-ctx.Done():
		q.release(task.ID)
		return ctx.Err()
	case <-q.stopped():
		q.release(task.ID)
		return domain.ErrQueueClosed
	}
}

// claim marks a task as sitting in the ready channel. Returns false
// when it already is, so Enqueue and recovery cannot both deliver the
// same task.
func (q *Queue) claim(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.queued[taskID]; ok {
		return false
	}
	q.queued[taskID] = struct{}{}
	return true
}

func (q *Queue) release(taskID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.queued, taskID)
}

// Start recovers persisted pending tasks and runs the worker pool.
// Blocks until ctx is cancelled or Stop is called.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = true
	q.stopCh = make(chan struct{})
	stopCh := q.stopCh
	q.mu.Unlock()

	// Snapshot the backlog before any worker runs, so a task a worker
	// is executing can never be mistaken for stale leased work.
	backlog, err := q.store.PendingTasks(ctx)
	if err != nil {
		logger.Warn("queue: listing pending tasks: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	// Recovery feeds the same bounded channel the workers drain, so a
	// backlog larger than the queue depth cannot wedge startup.
	g.Go(func() error {
		q.replay(gctx, backlog, stopCh)
		return nil
	})
	for i := 0; i < q.settings.Workers; i++ {
		g.Go(func() error {
			q.work(gctx, stopCh)
			return nil
		})
	}
	err = g.Wait()
	q.timers.Wait()
	return err
}

// Stop shuts the queue down and waits for in-flight work to settle.
func (q *Queue) Stop() error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	close(q.stopCh)
	q.mu.Unlock()
	return nil
}

// replay re-enqueues tasks that were pending or leased when the
// previous process stopped. Leased tasks are re-delivered, which is
// why stage handlers must be idempotent. Tasks already sitting in the
// ready channel are skipped.
func (q *Queue) replay(ctx context.Context, backlog []domain.Task, stopCh <-chan struct{}) {
	recovered := 0
	for i := range backlog {
		if !q.claim(backlog[i].ID) {
			continue
		}
		select {
		case q.ready <- backlog[i]:
			recovered++
		case <-ctx.Done():
			q.release(backlog[i].ID)
			return
		case <-stopCh:
			q.release(backlog[i].ID)
			return
		}
	}
	if recovered > 0 {
		logger.Info("queue: recovered %d pending tasks", recovered)
	}
}

// work is one worker's delivery loop.
func (q *Queue) work(ctx context.Context, stopCh <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case task := <-q.ready:
			q.release(task.ID)
			if delay := time.Until(task.NotBefore); delay > 0 {
				q.requeueAfter(ctx, task, delay, stopCh)
				continue
			}
			q.attempt(ctx, task, stopCh)
		}
	}
}

// attempt runs a task once under its deadline and settles the outcome.
func (q *Queue) attempt(ctx context.Context, task domain.Task, stopCh <-chan struct{}) {
	handler, ok := q.handlers[task.Stage]
	if !ok {
		logger.Warn("queue: no handler for stage %s, dropping task %s", task.Stage, task.ID)
		return
	}

	task.State = domain.TaskLeased
	task.Attempt++
	if err := q.store.SaveTask(ctx, &task); err != nil {
		logger.Warn("queue: leasing task %s: %v", task.ID, err)
	}

	err := q.runWithDeadline(ctx, handler, &task)
	if err == nil {
		task.State = domain.TaskDone
		task.LastError = ""
		if saveErr := q.store.SaveTask(ctx, &task); saveErr != nil {
			logger.Warn("queue: completing task %s: %v", task.ID, saveErr)
		}
		return
	}

	task.LastError = err.Error()
	if task.Exhausted() {
		task.State = domain.TaskFailed
		if saveErr := q.store.SaveTask(ctx, &task); saveErr != nil {
			logger.Warn("queue: failing task %s: %v", task.ID, saveErr)
		}
		logger.Warn("queue: task %s (%s) failed permanently after %d attempts: %v",
			task.ID, task.Stage, task.Attempt, err)
		if q.onFailure != nil {
			q.onFailure(ctx, &task, fmt.Errorf("%w: %w", domain.ErrPermanent, err))
		}
		return
	}

	delay := q.retryDelay(task.Attempt)
	task.State = domain.TaskPending
	task.NotBefore = time.Now().Add(delay)
	if saveErr := q.store.SaveTask(ctx, &task); saveErr != nil {
		logger.Warn("queue: rescheduling task %s: %v", task.ID, saveErr)
	}
	logger.Debug("queue: task %s (%s) attempt %d failed, retrying in %s: %v",
		task.ID, task.Stage, task.Attempt, delay, err)
	q.requeueAfter(ctx, task, delay, stopCh)
}

// runWithDeadline executes the handler under the per-attempt deadline.
// A deadline breach counts as a failed attempt even if the handler is
// still blocked; the next delivery supersedes it.
func (q *Queue) runWithDeadline(ctx context.Context, handler driven.TaskHandler, task *domain.Task) error {
	attemptCtx, cancel := context.WithTimeout(ctx, q.settings.TaskDeadline)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- handler(attemptCtx, task)
	}()

	select {
	case err := <-done:
		return err
	case <-attemptCtx.Done():
		return fmt.Errorf("%w: deadline exceeded after %s", domain.ErrTransient, q.settings.TaskDeadline)
	}
}

// requeueAfter puts a task back on the ready queue once its backoff
// delay elapses. On shutdown the task stays persisted as pending and is
// recovered on the next start.
func (q *Queue) requeueAfter(ctx context.Context, task domain.Task, delay time.Duration, stopCh <-chan struct{}) {
	q.timers.Add(1)
	go func() {
		defer q.timers.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		}
		if !q.claim(task.ID) {
			return
		}
		select {
		case q.ready <- task:
		case <-ctx.Done():
			q.release(task.ID)
		case <-stopCh:
			q.release(task.ID)
		}
	}()
}

// retryDelay computes the backoff before the given attempt retries.
func (q *Queue) retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.settings.RetryInitialDelay
	b.MaxInterval = q.settings.RetryMaxDelay
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	if delay == backoff.Stop || delay > q.settings.RetryMaxDelay {
		delay = q.settings.RetryMaxDelay
	}
	return delay
}

// stopped returns a channel closed on Stop, or a nil channel (which
// never receives) before Start.
func (q *Queue) stopped() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopCh
}

// Drain waits until the ready queue is empty and no retry timers are
// armed, then returns. Test helper; not part of the TaskQueue port.
func (q *Queue) Drain(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			q.mu.Lock()
			idle := len(q.queued) == 0
			q.mu.Unlock()
			if idle && len(q.ready) == 0 {
				return nil
			}
		}
	}
}

// ErrNoHandler is returned by Validate when a registered stage has no
// handler. Start tolerates missing handlers (tasks are dropped with a
// warning), but callers can fail fast instead.
var ErrNoHandler = errors.New("no handler registered")

// Validate checks that every pipeline stage has a handler.
func (q *Queue) Validate() error {
	for _, stage := range []domain.TaskStage{
		domain.TaskExtract, domain.TaskNormalise, domain.TaskFingerprint,
		domain.TaskMatch, domain.TaskIndex,
	} {
		if _, ok := q.handlers[stage]; !ok {
			return fmt.Errorf("%w for stage %s", ErrNoHandler, stage)
		}
	}
	return nil
}
