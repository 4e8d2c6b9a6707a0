package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/docforge/internal/adapters/driven/config/file"
	"github.com/custodia-labs/docforge/internal/adapters/driven/ocr"
	"github.com/custodia-labs/docforge/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driving"
	"github.com/custodia-labs/docforge/internal/core/services"
	"github.com/custodia-labs/docforge/internal/dedupe"
	"github.com/custodia-labs/docforge/internal/extract"
	"github.com/custodia-labs/docforge/internal/logger"
	"github.com/custodia-labs/docforge/internal/match"
	"github.com/custodia-labs/docforge/internal/queue"
)

// Package-level services used by the commands. Left nil until a
// command builds the pipeline; tests substitute mocks directly.
var (
	ingestor        driving.Ingestor
	dictionaryAdmin driving.DictionaryAdmin
)

// pipeline bundles the wired services a command operates on.
type pipeline struct {
	settings    domain.Settings
	store       *sqlite.Store
	queue       *queue.Queue
	coordinator *services.Coordinator
	maintenance *services.Maintenance
	dictionary  *services.Dictionary
}

// buildPipeline loads settings, opens the store and wires every
// adapter and service. The queue is not started; callers decide
// whether to run workers.
func buildPipeline() (*pipeline, error) {
	ctx := context.Background()

	settings, err := file.LoadSettings(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	store, err := sqlite.NewStore(settings.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	engine := ocr.NewTesseract(settings.OCRBinary, strings.Split(settings.OCRLanguages, "+"))
	if !engine.Available() {
		logger.Warn("OCR binary %q not found, scanned documents will not be recognised", settings.OCRBinary)
	}

	// More specific extractors first so confidence ties resolve to them.
	registry := extract.NewRegistry()
	registry.Register(extract.NewSpreadsheet())
	registry.Register(extract.NewArchive(settings.MaxArchiveDepth))
	registry.Register(extract.NewPDF(engine))
	registry.Register(extract.NewImage(engine))
	registry.Register(extract.NewEmail(settings.MaxArchiveDepth))
	registry.Register(extract.NewHTML())
	registry.Register(extract.NewCSV())
	registry.Register(extract.NewPlainText())
	registry.Register(extract.NewGeneric())

	matcher := match.NewMatcher(match.Compile(0, nil))
	dictionary := services.NewDictionary(store.DictionaryStore(), matcher)
	if err := dictionary.Load(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("loading dictionary: %w", err)
	}

	cache, err := dedupe.New(settings.DedupCacheSize, store.DedupStore())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating dedup cache: %w", err)
	}
	if err := cache.Warm(ctx); err != nil {
		logger.Warn("warming dedup cache: %v", err)
	}

	p := &pipeline{settings: settings, store: store, dictionary: dictionary}
	p.queue = queue.New(store.TaskStore(), settings, func(ctx context.Context, task *domain.Task, err error) {
		p.coordinator.FailDocument(ctx, task, err)
	})
	p.coordinator = services.NewCoordinator(settings, registry, matcher, cache,
		store.TaskStore(), store.ArtifactStore(), p.queue, store.IndexSink())
	p.maintenance = services.NewMaintenance(settings, store.TaskStore(), p.coordinator)

	ingestor = p.coordinator
	dictionaryAdmin = p.dictionary
	return p, nil
}

// Close releases the pipeline's resources.
func (p *pipeline) Close() error {
	return p.store.Close()
}
