// Package services contains the application services driving the
// ingestion pipeline: the coordinator that moves documents through
// their stages, the maintenance sweep and the dictionary admin.
package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
	"github.com/custodia-labs/docforge/internal/core/ports/driving"
	"github.com/custodia-labs/docforge/internal/dedupe"
	"github.com/custodia-labs/docforge/internal/fingerprint"
	"github.com/custodia-labs/docforge/internal/logger"
	"github.com/custodia-labs/docforge/internal/match"
	"github.com/custodia-labs/docforge/internal/normalise"
)

// Ensure Coordinator implements the interface.
var _ driving.Ingestor = (*Coordinator)(nil)

// Coordinator moves documents through the ingestion pipeline:
// received → extracting → normalising → fingerprinting →
// (deduplicated | matching) → indexed, with failed as the terminal
// error state. Each stage is a queue task; the coordinator's handlers
// are idempotent so at-least-once delivery is safe.
type Coordinator struct {
	settings   domain.Settings
	registry   driven.ExtractorRegistry
	normaliser *normalise.Normaliser
	engine     *fingerprint.Engine
	matcher    *match.Matcher
	cache      *dedupe.Cache
	tasks      driven.TaskStore
	artifacts  driven.ArtifactStore
	queue      driven.TaskQueue
	sink       driven.IndexSink
	limiter    *rate.Limiter

	mu       sync.Mutex
	inflight map[string]string // foreign ID -> document ID

	// submitStripes serialise submissions of one foreign ID, making the
	// in-flight check and the claim below atomic. Distinct foreign IDs
	// stripe across independent locks.
	submitStripes [64]sync.Mutex
}

// NewCoordinator wires the pipeline and registers its stage handlers
// with the queue.
func NewCoordinator(
	settings domain.Settings,
	registry driven.ExtractorRegistry,
	matcher *match.Matcher,
	cache *dedupe.Cache,
	tasks driven.TaskStore,
	artifacts driven.ArtifactStore,
	queue driven.TaskQueue,
	sink driven.IndexSink,
) *Coordinator {
	c := &Coordinator{
		settings:   settings,
		registry:   registry,
		normaliser: normalise.New(settings.MinTextLength),
		engine:     fingerprint.New(),
		matcher:    matcher,
		cache:      cache,
		tasks:      tasks,
		artifacts:  artifacts,
		queue:      queue,
		sink:       sink,
		inflight:   make(map[string]string),
	}
	if settings.IntakeRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(settings.IntakeRate), settings.IntakeBurst)
	}
	queue.Handle(domain.TaskExtract, c.handleExtract)
	queue.Handle(domain.TaskNormalise, c.handleNormalise)
	queue.Handle(domain.TaskFingerprint, c.handleFingerprint)
	queue.Handle(domain.TaskMatch, c.handleMatch)
	queue.Handle(domain.TaskIndex, c.handleIndex)
	return c
}

// Submit accepts an ingest request and returns the document ID.
// Submitting a foreign ID whose document is still in flight returns
// the existing ID instead of duplicating work; a terminal document may
// be resubmitted and gets a fresh ID.
func (c *Coordinator) Submit(ctx context.Context, req *domain.IngestRequest) (string, error) {
	if req == nil || strings.TrimSpace(req.ForeignID) == "" {
		return "", fmt.Errorf("%w: foreign ID required", domain.ErrInvalidInput)
	}
	if len(req.Payload) == 0 && req.StorageRef == "" {
		return "", fmt.Errorf("%w: payload or storage ref required", domain.ErrInvalidInput)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	lock := c.submitLock(req.ForeignID)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	if documentID, ok := c.inflight[req.ForeignID]; ok {
		c.mu.Unlock()
		logger.Debug("submit: %s already in flight as %s", req.ForeignID, documentID)
		return documentID, nil
	}
	c.mu.Unlock()

	// The in-memory map only covers this process; check the durable
	// status too so a restart does not double-ingest.
	existing, err := c.tasks.GetStatusByForeignID(ctx, req.ForeignID)
	if err != nil {
		return "", fmt.Errorf("%w: checking foreign ID: %w", domain.ErrTransient, err)
	}
	if existing != nil && !existing.Stage.Terminal() {
		c.track(req.ForeignID, existing.DocumentID)
		return existing.DocumentID, nil
	}

	documentID := uuid.New().String()
	c.track(req.ForeignID, documentID)

	if err := c.artifacts.SaveRequest(ctx, documentID, req); err != nil {
		c.untrack(req.ForeignID)
		return "", fmt.Errorf("%w: persisting request: %w", domain.ErrTransient, err)
	}
	if err := c.tasks.SaveStatus(ctx, &domain.DocumentStatus{
		DocumentID:   documentID,
		ForeignID:    req.ForeignID,
		CollectionID: req.CollectionID,
		Stage:        domain.StageReceived,
		UpdatedAt:    time.Now(),
	}); err != nil {
		c.untrack(req.ForeignID)
		return "", fmt.Errorf("%w: persisting status: %w", domain.ErrTransient, err)
	}
	if err := c.enqueue(ctx, documentID, domain.TaskExtract); err != nil {
		c.untrack(req.ForeignID)
		return "", err
	}
	logger.Info("submit: %s accepted as document %s", req.ForeignID, documentID)
	return documentID, nil
}

// submitLock returns the stripe lock for a foreign ID.
func (c *Coordinator) submitLock(foreignID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(foreignID))
	return &c.submitStripes[h.Sum32()%uint32(len(c.submitStripes))]
}

// Status returns a document's current pipeline state.
func (c *Coordinator) Status(ctx context.Context, documentID string) (*domain.DocumentStatus, error) {
	status, err := c.tasks.GetStatus(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading status: %w", domain.ErrTransient, err)
	}
	if status == nil {
		return nil, fmt.Errorf("%w: document %s", domain.ErrNotFound, documentID)
	}
	return status, nil
}

// FailDocument parks a document as failed after its task exhausted all
// retries. Wired as the queue's permanent failure callback.
func (c *Coordinator) FailDocument(ctx context.Context, task *domain.Task, err error) {
	status, loadErr := c.tasks.GetStatus(ctx, task.DocumentID)
	if loadErr != nil || status == nil {
		logger.Error("coordinator: failing document %s: status unavailable: %v", task.DocumentID, loadErr)
		return
	}
	status.Stage = domain.StageFailed
	status.FailedStage = task.Stage
	status.LastErrorClass = domain.ErrorClass(err)
	status.LastError = err.Error()
	status.UpdatedAt = time.Now()
	if saveErr := c.tasks.SaveStatus(ctx, status); saveErr != nil {
		logger.Error("coordinator: persisting failed status for %s: %v", task.DocumentID, saveErr)
		return
	}
	c.untrack(status.ForeignID)
	logger.Warn("coordinator: document %s failed at %s: %v", task.DocumentID, task.Stage, err)
}

// Resubmit re-queues a failed document from the stage that failed.
// Used by the maintenance sweep.
func (c *Coordinator) Resubmit(ctx context.Context, documentID string) error {
	status, err := c.tasks.GetStatus(ctx, documentID)
	if err != nil {
		return fmt.Errorf("%w: loading status: %w", domain.ErrTransient, err)
	}
	if status == nil {
		return fmt.Errorf("%w: document %s", domain.ErrNotFound, documentID)
	}
	if status.Stage != domain.StageFailed {
		return fmt.Errorf("%w: document %s is not failed", domain.ErrInvalidInput, documentID)
	}

	stage := status.FailedStage
	if !stage.IsValid() {
		stage = domain.TaskExtract
	}
	status.Stage = stage.DocumentStage()
	status.LastErrorClass = ""
	status.LastError = ""
	status.UpdatedAt = time.Now()
	if err := c.tasks.SaveStatus(ctx, status); err != nil {
		return fmt.Errorf("%w: resetting status: %w", domain.ErrTransient, err)
	}
	c.track(status.ForeignID, documentID)
	return c.enqueue(ctx, documentID, stage)
}

// handleExtract runs the format extractor and fans archive members out
// as child submissions.
func (c *Coordinator) handleExtract(ctx context.Context, task *domain.Task) error {
	req, err := c.artifacts.GetRequest(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("%w: loading request: %w", domain.ErrTransient, err)
	}
	if req == nil {
		return fmt.Errorf("%w: no request for document %s", domain.ErrPermanent, task.DocumentID)
	}
	if err := c.setStage(ctx, task.DocumentID, domain.StageExtracting); err != nil {
		return err
	}

	result := c.registry.Extract(ctx, req, task.DocumentID)
	if err := c.artifacts.SaveExtraction(ctx, result); err != nil {
		return fmt.Errorf("%w: persisting extraction: %w", domain.ErrTransient, err)
	}

	for i := range result.Children {
		child := result.Children[i]
		if _, err := c.Submit(ctx, &child); err != nil {
			if errors.Is(err, domain.ErrInvalidInput) {
				// A malformed member is a data problem; the extraction
				// warnings record it.
				logger.Warn("extract: child %s of %s rejected: %v", child.ForeignID, task.DocumentID, err)
				continue
			}
			// Infrastructure failure: retry the whole extraction so the
			// member is not silently lost. Siblings already submitted
			// are absorbed by foreign-ID idempotency on the retry.
			return fmt.Errorf("submitting child %s: %w", child.ForeignID, err)
		}
	}

	// A pure container (archive with members, no text of its own) is
	// indexed directly: deduplicating containers on their empty text
	// would glue unrelated archives together.
	if len(result.Children) > 0 && strings.TrimSpace(result.Text) == "" {
		return c.indexContainer(ctx, task.DocumentID, req, result)
	}

	return c.enqueue(ctx, task.DocumentID, domain.TaskNormalise)
}

// handleNormalise canonicalises the extracted text.
func (c *Coordinator) handleNormalise(ctx context.Context, task *domain.Task) error {
	extraction, err := c.artifacts.GetExtraction(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("%w: loading extraction: %w", domain.ErrTransient, err)
	}
	if extraction == nil {
		return fmt.Errorf("%w: no extraction for document %s", domain.ErrPermanent, task.DocumentID)
	}
	if err := c.setStage(ctx, task.DocumentID, domain.StageNormalising); err != nil {
		return err
	}

	normalised := c.normaliser.Normalise(extraction)
	if err := c.artifacts.SaveNormalised(ctx, normalised); err != nil {
		return fmt.Errorf("%w: persisting normalised text: %w", domain.ErrTransient, err)
	}
	return c.enqueue(ctx, task.DocumentID, domain.TaskFingerprint)
}

// handleFingerprint computes fingerprints and resolves duplicates. The
// document is inserted as canonical before matching begins, so a
// concurrent twin resolves against it instead of racing past it.
func (c *Coordinator) handleFingerprint(ctx context.Context, task *domain.Task) error {
	normalised, err := c.artifacts.GetNormalised(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("%w: loading normalised text: %w", domain.ErrTransient, err)
	}
	if normalised == nil {
		return fmt.Errorf("%w: no normalised text for document %s", domain.ErrPermanent, task.DocumentID)
	}
	if err := c.setStage(ctx, task.DocumentID, domain.StageFingerprinting); err != nil {
		return err
	}

	fingerprints := c.engine.Compute(normalised)
	if err := c.artifacts.SaveFingerprints(ctx, task.DocumentID, fingerprints); err != nil {
		return fmt.Errorf("%w: persisting fingerprints: %w", domain.ErrTransient, err)
	}

	resolution, err := c.cache.Insert(ctx, fingerprints[0].Key(), task.DocumentID)
	if err != nil {
		return err
	}
	if resolution.Duplicate {
		return c.markDeduplicated(ctx, task.DocumentID, resolution.CanonicalID, fingerprints[0])
	}

	advisories := c.nearDuplicateAdvisories(ctx, task.DocumentID, normalised, fingerprints)
	if err := c.artifacts.SaveAdvisories(ctx, task.DocumentID, advisories); err != nil {
		return fmt.Errorf("%w: persisting advisories: %w", domain.ErrTransient, err)
	}
	return c.enqueue(ctx, task.DocumentID, domain.TaskMatch)
}

// nearDuplicateAdvisories reports documents that share entity-scope
// fingerprints with this one and have nearly identical text. Advisory
/// only: exact document fingerprints remain the sole authority for
// deduplication. The warnings live in their own artifact, replaced
// wholesale on every run, so the normalised text stays immutable and
// re-delivery cannot accumulate duplicates.
func (c *Coordinator) nearDuplicateAdvisories(ctx context.Context, documentID string, normalised *domain.NormalisedText, fingerprints []domain.Fingerprint) []domain.Warning {
	var advisories []domain.Warning
	seen := map[string]bool{}
	for _, fp := range fingerprints {
		if fp.Scope == domain.ScopeDocument {
			continue
		}
		key := fp.Key()
		canonicalID, ok := c.cache.Lookup(ctx, key)
		if ok && canonicalID != documentID && !seen[canonicalID] {
			seen[canonicalID] = true
			other, err := c.artifacts.GetNormalised(ctx, canonicalID)
			if err == nil && other != nil {
				score := fingerprint.Similarity(normalised.Text, other.Text)
				if score >= c.settings.SimilarityThreshold {
					advisories = append(advisories, domain.Warning{
						Class:   "near-duplicate",
						Message: fmt.Sprintf("possible duplicate of %s (similarity %.2f)", canonicalID, score),
					})
				}
			}
		}
		if _, err := c.cache.Insert(ctx, key, documentID); err != nil {
			logger.Debug("fingerprint: recording %s for %s: %v", key, documentID, err)
		}
	}
	return advisories
}

// handleMatch runs entity recognition over the normalised text.
func (c *Coordinator) handleMatch(ctx context.Context, task *domain.Task) error {
	normalised, err := c.artifacts.GetNormalised(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("%w: loading normalised text: %w", domain.ErrTransient, err)
	}
	if normalised == nil {
		return fmt.Errorf("%w: no normalised text for document %s", domain.ErrPermanent, task.DocumentID)
	}
	if err := c.setStage(ctx, task.DocumentID, domain.StageMatching); err != nil {
		return err
	}

	spans := c.matcher.Match(normalised)
	if err := c.artifacts.SaveEntities(ctx, task.DocumentID, spans); err != nil {
		return fmt.Errorf("%w: persisting entities: %w", domain.ErrTransient, err)
	}
	return c.enqueue(ctx, task.DocumentID, domain.TaskIndex)
}

// handleIndex assembles the index record and marks the document done.
func (c *Coordinator) handleIndex(ctx context.Context, task *domain.Task) error {
	req, err := c.artifacts.GetRequest(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("%w: loading request: %w", domain.ErrTransient, err)
	}
	normalised, err := c.artifacts.GetNormalised(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("%w: loading normalised text: %w", domain.ErrTransient, err)
	}
	fingerprints, err := c.artifacts.GetFingerprints(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("%w: loading fingerprints: %w", domain.ErrTransient, err)
	}
	entities, err := c.artifacts.GetEntities(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("%w: loading entities: %w", domain.ErrTransient, err)
	}
	advisories, err := c.artifacts.GetAdvisories(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("%w: loading advisories: %w", domain.ErrTransient, err)
	}
	if req == nil || normalised == nil {
		return fmt.Errorf("%w: missing artifacts for document %s", domain.ErrPermanent, task.DocumentID)
	}

	warnings := append([]domain.Warning(nil), normalised.Warnings...)
	warnings = append(warnings, advisories...)

	record := &driven.IndexRecord{
		DocumentID:   task.DocumentID,
		ForeignID:    req.ForeignID,
		CollectionID: req.CollectionID,
		Text:         normalised.Text,
		Latin:        normalised.Latin,
		Languages:    normalised.Languages,
		Entities:     entities,
		Warnings:     warnings,
	}
	if len(fingerprints) > 0 {
		record.Fingerprint = fingerprints[0].Value
	}
	if err := c.sink.Upsert(ctx, record); err != nil {
		return fmt.Errorf("%w: index upsert: %w", domain.ErrTransient, err)
	}
	if err := c.setStage(ctx, task.DocumentID, domain.StageIndexed); err != nil {
		return err
	}
	c.untrack(req.ForeignID)
	logger.Debug("index: document %s indexed with %d entities", task.DocumentID, len(entities))
	return nil
}

// markDeduplicated terminates a duplicate document. The index record is
// still emitted so the duplicate is findable, carrying the canonical
// link instead of its own text.
func (c *Coordinator) markDeduplicated(ctx context.Context, documentID, canonicalID string, docFP domain.Fingerprint) error {
	req, err := c.artifacts.GetRequest(ctx, documentID)
	if err != nil {
		return fmt.Errorf("%w: loading request: %w", domain.ErrTransient, err)
	}

	record := &driven.IndexRecord{
		DocumentID:  documentID,
		DuplicateOf: canonicalID,
		Fingerprint: docFP.Value,
	}
	var foreignID string
	if req != nil {
		record.ForeignID = req.ForeignID
		record.CollectionID = req.CollectionID
		foreignID = req.ForeignID
	}
	if err := c.sink.Upsert(ctx, record); err != nil {
		return fmt.Errorf("%w: index upsert: %w", domain.ErrTransient, err)
	}

	status, err := c.tasks.GetStatus(ctx, documentID)
	if err != nil || status == nil {
		return fmt.Errorf("%w: loading status: %v", domain.ErrTransient, err)
	}
	status.Stage = domain.StageDeduplicated
	status.DuplicateOf = canonicalID
	status.UpdatedAt = time.Now()
	if err := c.tasks.SaveStatus(ctx, status); err != nil {
		return fmt.Errorf("%w: persisting status: %w", domain.ErrTransient, err)
	}
	c.untrack(foreignID)
	logger.Info("dedup: document %s is a duplicate of %s", documentID, canonicalID)
	return nil
}

// indexContainer finishes a childless-text archive document.
func (c *Coordinator) indexContainer(ctx context.Context, documentID string, req *domain.IngestRequest, result *domain.ExtractionResult) error {
	record := &driven.IndexRecord{
		DocumentID:   documentID,
		ForeignID:    req.ForeignID,
		CollectionID: req.CollectionID,
		Warnings:     result.Warnings,
	}
	if err := c.sink.Upsert(ctx, record); err != nil {
		return fmt.Errorf("%w: index upsert: %w", domain.ErrTransient, err)
	}
	if err := c.setStage(ctx, documentID, domain.StageIndexed); err != nil {
		return err
	}
	c.untrack(req.ForeignID)
	logger.Debug("extract: container %s indexed with %d children", documentID, len(result.Children))
	return nil
}

// setStage persists a document's stage transition.
func (c *Coordinator) setStage(ctx context.Context, documentID string, stage domain.DocumentStage) error {
	status, err := c.tasks.GetStatus(ctx, documentID)
	if err != nil {
		return fmt.Errorf("%w: loading status: %w", domain.ErrTransient, err)
	}
	if status == nil {
		return fmt.Errorf("%w: no status for document %s", domain.ErrPermanent, documentID)
	}
	status.Stage = stage
	status.UpdatedAt = time.Now()
	if err := c.tasks.SaveStatus(ctx, status); err != nil {
		return fmt.Errorf("%w: persisting status: %w", domain.ErrTransient, err)
	}
	return nil
}

// enqueue schedules the next stage task for a document.
func (c *Coordinator) enqueue(ctx context.Context, documentID string, stage domain.TaskStage) error {
	return c.queue.Enqueue(ctx, &domain.Task{
		DocumentID: documentID,
		Stage:      stage,
	})
}

func (c *Coordinator) track(foreignID, documentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight[foreignID] = documentID
}

func (c *Coordinator) untrack(foreignID string) {
	if foreignID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, foreignID)
}
