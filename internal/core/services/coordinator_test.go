package services

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docforge/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
	"github.com/custodia-labs/docforge/internal/dedupe"
	"github.com/custodia-labs/docforge/internal/extract"
	"github.com/custodia-labs/docforge/internal/match"
	"github.com/custodia-labs/docforge/internal/queue"
)

// pipeline bundles a fully wired in-memory pipeline for tests.
type pipeline struct {
	coordinator *Coordinator
	queue       *queue.Queue
	tasks       *memory.TaskStore
	artifacts   *memory.ArtifactStore
	sink        *memory.IndexSink
	dedupStore  *memory.DedupStore
	settings    domain.Settings
}

// newIdlePipeline wires everything but does not start the workers, so
// submitted documents stay in flight.
func newIdlePipeline(t *testing.T, entries []domain.DictionaryEntry) *pipeline {
	return newIdlePipelineWith(t, entries, nil, nil)
}

// newIdlePipelineWith additionally lets a test adjust the settings and
// interpose on the task store before wiring.
func newIdlePipelineWith(
	t *testing.T,
	entries []domain.DictionaryEntry,
	configure func(*domain.Settings),
	wrap func(driven.TaskStore) driven.TaskStore,
) *pipeline {
	t.Helper()

	settings := domain.DefaultSettings()
	settings.Workers = 4
	settings.QueueDepth = 128
	settings.MaxAttempts = 2
	settings.TaskDeadline = 2 * time.Second
	settings.RetryInitialDelay = 5 * time.Millisecond
	settings.RetryMaxDelay = 20 * time.Millisecond
	settings.MinTextLength = 8
	if configure != nil {
		configure(&settings)
	}

	tasks := memory.NewTaskStore()
	artifacts := memory.NewArtifactStore()
	sink := memory.NewIndexSink()
	dedupStore := memory.NewDedupStore()

	cache, err := dedupe.New(settings.DedupCacheSize, dedupStore)
	require.NoError(t, err)

	registry := extract.NewRegistry()
	registry.Register(extract.NewArchive(settings.MaxArchiveDepth))
	registry.Register(extract.NewHTML())
	registry.Register(extract.NewCSV())
	registry.Register(extract.NewPlainText())
	registry.Register(extract.NewGeneric())

	matcher := match.NewMatcher(match.Compile(1, entries))

	var taskView driven.TaskStore = tasks
	if wrap != nil {
		taskView = wrap(tasks)
	}

	p := &pipeline{
		tasks:      tasks,
		artifacts:  artifacts,
		sink:       sink,
		dedupStore: dedupStore,
		settings:   settings,
	}
	p.queue = queue.New(taskView, settings, func(ctx context.Context, task *domain.Task, err error) {
		p.coordinator.FailDocument(ctx, task, err)
	})
	p.coordinator = NewCoordinator(settings, registry, matcher, cache, taskView, artifacts, p.queue, sink)
	return p
}

func newPipeline(t *testing.T, entries []domain.DictionaryEntry) *pipeline {
	return newPipelineWith(t, entries, nil, nil)
}

func newPipelineWith(
	t *testing.T,
	entries []domain.DictionaryEntry,
	configure func(*domain.Settings),
	wrap func(driven.TaskStore) driven.TaskStore,
) *pipeline {
	t.Helper()
	p := newIdlePipelineWith(t, entries, configure, wrap)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.queue.Start(context.Background())
	}()
	t.Cleanup(func() {
		require.NoError(t, p.queue.Stop())
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("queue did not stop")
		}
	})
	return p
}

// waitForStage polls until the document reaches the wanted stage.
func (p *pipeline) waitForStage(t *testing.T, documentID string, stage domain.DocumentStage) *domain.DocumentStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := p.coordinator.Status(context.Background(), documentID)
		if err == nil && status.Stage == stage {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	status, _ := p.coordinator.Status(context.Background(), documentID)
	t.Fatalf("document %s never reached %s (last: %+v)", documentID, stage, status)
	return nil
}

func TestSubmit_Validation(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()

	_, err := p.coordinator.Submit(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = p.coordinator.Submit(ctx, &domain.IngestRequest{Payload: []byte("x")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = p.coordinator.Submit(ctx, &domain.IngestRequest{ForeignID: "no-payload"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSubmit_IdempotentWhileInFlight(t *testing.T) {
	// Workers are idle, so the first submission stays in flight.
	p := newIdlePipeline(t, nil)
	ctx := context.Background()

	req := &domain.IngestRequest{
		ForeignID: "crawl/report.txt",
		Payload:   []byte("the quick brown fox jumps over the lazy dog many times"),
	}
	first, err := p.coordinator.Submit(ctx, req)
	require.NoError(t, err)

	second, err := p.coordinator.Submit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPipeline_PlainTextToIndexed(t *testing.T) {
	entries := []domain.DictionaryEntry{
		{Name: "John Maxwell", Type: domain.EntityPerson},
	}
	p := newPipeline(t, entries)
	ctx := context.Background()

	documentID, err := p.coordinator.Submit(ctx, &domain.IngestRequest{
		ForeignID:    "crawl/report.txt",
		CollectionID: "col-1",
		Payload:      []byte("Investigators say John Maxwell wired the funds on 2021-04-13 from Germany."),
		DeclaredType: "text/plain",
	})
	require.NoError(t, err)

	p.waitForStage(t, documentID, domain.StageIndexed)

	record, ok := p.sink.Get(documentID)
	require.True(t, ok)
	assert.Equal(t, "crawl/report.txt", record.ForeignID)
	assert.Equal(t, "col-1", record.CollectionID)
	assert.NotEmpty(t, record.Fingerprint)
	assert.Contains(t, record.Text, "John Maxwell")

	types := map[domain.EntityType]bool{}
	values := map[string]bool{}
	for _, span := range record.Entities {
		types[span.Type] = true
		values[span.Value] = true
	}
	assert.True(t, types[domain.EntityPerson])
	assert.True(t, values["John Maxwell"])
	assert.True(t, types[domain.EntityDate])
	assert.True(t, values["2021-04-13"])
	assert.True(t, types[domain.EntityCountry])
}

func TestPipeline_CorruptPayloadStillIndexes(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()

	// Binary junk with no salvageable text: extraction fails with a
	// warning, and the document still reaches a terminal indexed state
	// instead of wedging the pipeline.
	documentID, err := p.coordinator.Submit(ctx, &domain.IngestRequest{
		ForeignID: "crawl/junk.bin",
		Payload:   []byte{0x00, 0x01, 0xFE, 0xFF, 0x02},
	})
	require.NoError(t, err)

	p.waitForStage(t, documentID, domain.StageIndexed)

	record, ok := p.sink.Get(documentID)
	require.True(t, ok)
	assert.Empty(t, record.Text)
	require.NotEmpty(t, record.Warnings)
	assert.Equal(t, "extraction", record.Warnings[0].Class)
}

func TestPipeline_ExactDuplicateDeduplicated(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()

	content := []byte("identical leaked ledger content shared across two mirrors of the site")
	first, err := p.coordinator.Submit(ctx, &domain.IngestRequest{
		ForeignID: "mirror-a/ledger.txt", Payload: content,
	})
	require.NoError(t, err)
	p.waitForStage(t, first, domain.StageIndexed)

	second, err := p.coordinator.Submit(ctx, &domain.IngestRequest{
		ForeignID: "mirror-b/ledger.txt", Payload: content,
	})
	require.NoError(t, err)
	status := p.waitForStage(t, second, domain.StageDeduplicated)
	assert.Equal(t, first, status.DuplicateOf)

	// The duplicate is still findable in the index, linked to its
	// canonical sibling.
	record, ok := p.sink.Get(second)
	require.True(t, ok)
	assert.Equal(t, first, record.DuplicateOf)

	canonical, ok := p.sink.Get(first)
	require.True(t, ok)
	assert.Empty(t, canonical.DuplicateOf)
}

func TestPipeline_WhitespaceVariantIsDuplicate(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()

	first, err := p.coordinator.Submit(ctx, &domain.IngestRequest{
		ForeignID: "a.txt", Payload: []byte("same words  different   spacing here today"),
	})
	require.NoError(t, err)
	p.waitForStage(t, first, domain.StageIndexed)

	second, err := p.coordinator.Submit(ctx, &domain.IngestRequest{
		ForeignID: "b.txt", Payload: []byte("same words different spacing here today"),
	})
	require.NoError(t, err)
	status := p.waitForStage(t, second, domain.StageDeduplicated)
	assert.Equal(t, first, status.DuplicateOf)
}

func TestPipeline_ArchiveExpandsChildren(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"one.txt":   "contents of the first archived file here",
		"two.txt":   "contents of the second archived file here",
		"three.txt": "contents of the third archived file here",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	containerID, err := p.coordinator.Submit(ctx, &domain.IngestRequest{
		ForeignID:    "dump/batch.zip",
		CollectionID: "col-1",
		Payload:      buf.Bytes(),
	})
	require.NoError(t, err)
	p.waitForStage(t, containerID, domain.StageIndexed)

	// Each member is ingested as its own document under the container.
	for _, member := range []string{"one.txt", "two.txt", "three.txt"} {
		foreignID := "dump/batch.zip!" + member
		deadline := time.Now().Add(5 * time.Second)
		var status *domain.DocumentStatus
		for time.Now().Before(deadline) {
			var err error
			status, err = p.tasks.GetStatusByForeignID(ctx, foreignID)
			if err == nil && status != nil && status.Stage == domain.StageIndexed {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		require.NotNil(t, status, "member %s never ingested", member)
		assert.Equal(t, domain.StageIndexed, status.Stage, "member %s", member)
		assert.Equal(t, "col-1", status.CollectionID)
	}
	// Container plus three members.
	assert.Equal(t, 4, p.sink.Len())
}

func TestPipeline_RetryExhaustionFailsDocument(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()

	p.sink.SetFailure(errors.New("index unavailable"))
	documentID, err := p.coordinator.Submit(ctx, &domain.IngestRequest{
		ForeignID: "crawl/doomed.txt",
		Payload:   []byte("this document will fail at the index stage repeatedly"),
	})
	require.NoError(t, err)

	status := p.waitForStage(t, documentID, domain.StageFailed)
	assert.Equal(t, domain.TaskIndex, status.FailedStage)
	assert.Equal(t, "permanent", status.LastErrorClass)
	assert.Contains(t, status.LastError, "index unavailable")
}

func TestMaintenance_SweepResubmitsFailed(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()

	p.sink.SetFailure(errors.New("index unavailable"))
	documentID, err := p.coordinator.Submit(ctx, &domain.IngestRequest{
		ForeignID: "crawl/recoverable.txt",
		Payload:   []byte("this document fails once and is rescued by the sweep"),
	})
	require.NoError(t, err)
	p.waitForStage(t, documentID, domain.StageFailed)

	// Heal the sink and sweep with no grace period.
	p.sink.SetFailure(nil)
	settings := p.settings
	settings.SweepGracePeriod = 0
	maintenance := NewMaintenance(settings, p.tasks, p.coordinator)

	result, err := maintenance.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Resubmitted)

	p.waitForStage(t, documentID, domain.StageIndexed)
	_, ok := p.sink.Get(documentID)
	assert.True(t, ok)

	// The sweep left an auditable record behind.
	sweeps := p.tasks.Sweeps()
	require.NotEmpty(t, sweeps)
	assert.Equal(t, 1, sweeps[len(sweeps)-1].Resubmitted)
}

func TestStatus_UnknownDocument(t *testing.T) {
	p := newPipeline(t, nil)
	_, err := p.coordinator.Status(context.Background(), "no-such-doc")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// slowLookupStore stretches the window between the duplicate check and
// the status write so overlapping submissions actually overlap.
type slowLookupStore struct {
	driven.TaskStore
	delay time.Duration
}

func (s *slowLookupStore) GetStatusByForeignID(ctx context.Context, foreignID string) (*domain.DocumentStatus, error) {
	time.Sleep(s.delay)
	return s.TaskStore.GetStatusByForeignID(ctx, foreignID)
}

func TestSubmit_ConcurrentSameForeignID(t *testing.T) {
	// Workers are idle so nothing completes; every submission races the
	// others through the duplicate check.
	p := newIdlePipelineWith(t, nil, nil, func(inner driven.TaskStore) driven.TaskStore {
		return &slowLookupStore{TaskStore: inner, delay: 20 * time.Millisecond}
	})
	ctx := context.Background()

	req := &domain.IngestRequest{
		ForeignID: "crawl/contested.txt",
		Payload:   []byte("the same source document submitted by several crawlers at once"),
	}

	const submitters = 8
	ids := make(chan string, submitters)
	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := p.coordinator.Submit(ctx, req)
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	unique := map[string]bool{}
	for id := range ids {
		unique[id] = true
	}
	assert.Len(t, unique, 1, "one foreign ID must map to one document")
}

// flakyStatusStore fails the first status write for a nested member,
// mimicking a storage blip in the middle of archive expansion.
type flakyStatusStore struct {
	driven.TaskStore

	mu      sync.Mutex
	tripped bool
}

func (s *flakyStatusStore) SaveStatus(ctx context.Context, status *domain.DocumentStatus) error {
	s.mu.Lock()
	trip := !s.tripped && strings.Contains(status.ForeignID, "!")
	if trip {
		s.tripped = true
	}
	s.mu.Unlock()
	if trip {
		return errors.New("storage blip")
	}
	return s.TaskStore.SaveStatus(ctx, status)
}

func TestExtract_ChildSubmitFailureRetried(t *testing.T) {
	p := newPipelineWith(t, nil, nil, func(inner driven.TaskStore) driven.TaskStore {
		return &flakyStatusStore{TaskStore: inner}
	})
	ctx := context.Background()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"one.txt":   "contents of the first archived file here",
		"two.txt":   "contents of the second archived file here",
		"three.txt": "contents of the third archived file here",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	containerID, err := p.coordinator.Submit(ctx, &domain.IngestRequest{
		ForeignID: "dump/flaky.zip",
		Payload:   buf.Bytes(),
	})
	require.NoError(t, err)
	p.waitForStage(t, containerID, domain.StageIndexed)

	// The failed member submission retried the extract stage; no member
	// was silently dropped, and none was ingested twice.
	for _, member := range []string{"one.txt", "two.txt", "three.txt"} {
		foreignID := "dump/flaky.zip!" + member
		deadline := time.Now().Add(5 * time.Second)
		var status *domain.DocumentStatus
		for time.Now().Before(deadline) {
			status, err = p.tasks.GetStatusByForeignID(ctx, foreignID)
			if err == nil && status != nil && status.Stage == domain.StageIndexed {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		require.NotNil(t, status, "member %s never ingested", member)
		assert.Equal(t, domain.StageIndexed, status.Stage, "member %s", member)
	}
	assert.Equal(t, 4, p.sink.Len())
}

func TestPipeline_NearDuplicateAdvisory(t *testing.T) {
	// The default threshold needs long documents to trip; lower it so a
	// one-word edit between two short reports registers.
	p := newPipelineWith(t, nil, func(s *domain.Settings) {
		s.SimilarityThreshold = 0.5
	}, nil)
	ctx := context.Background()

	first, err := p.coordinator.Submit(ctx, &domain.IngestRequest{
		ForeignID: "wire/report-spring.txt",
		Payload: []byte("Investigators traced Viktor Baranov through shell firms registered " +
			"in four coastal cities during the spring audit season before the records " +
			"were sealed by court order"),
	})
	require.NoError(t, err)
	p.waitForStage(t, first, domain.StageIndexed)

	second, err := p.coordinator.Submit(ctx, &domain.IngestRequest{
		ForeignID: "wire/report-autumn.txt",
		Payload: []byte("Investigators traced Viktor Baranov through shell firms registered " +
			"in four coastal cities during the autumn audit season before the records " +
			"were sealed by court order"),
	})
	require.NoError(t, err)
	p.waitForStage(t, second, domain.StageIndexed)

	record, ok := p.sink.Get(second)
	require.True(t, ok)
	var advisory *domain.Warning
	for i := range record.Warnings {
		if record.Warnings[i].Class == "near-duplicate" {
			advisory = &record.Warnings[i]
		}
	}
	require.NotNil(t, advisory, "second document carries a near-duplicate advisory")
	assert.Contains(t, advisory.Message, first)

	// The advisory lives alongside the normalised text, never in it.
	normalised, err := p.artifacts.GetNormalised(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, normalised)
	for _, w := range normalised.Warnings {
		assert.NotEqual(t, "near-duplicate", w.Class)
	}

	canonical, ok := p.sink.Get(first)
	require.True(t, ok)
	for _, w := range canonical.Warnings {
		assert.NotEqual(t, "near-duplicate", w.Class)
	}
}
