package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driving"
	"github.com/custodia-labs/docforge/internal/logger"
)

// dictionaryFile is the YAML layout of an entity dictionary file.
type dictionaryFile struct {
	Entries []domain.DictionaryEntry `yaml:"entries"`
}

// LoadDictionary reads dictionary entries from a YAML file.
func LoadDictionary(path string) ([]domain.DictionaryEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}

	var file dictionaryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	return file.Entries, nil
}

// debounceWindow coalesces the write bursts editors and atomic-save
// tools produce into one reload.
const debounceWindow = 250 * time.Millisecond

// DictionaryWatcher reloads the dictionary file into the admin service
// whenever it changes on disk.
type DictionaryWatcher struct {
	path  string
	admin driving.DictionaryAdmin
}

// NewDictionaryWatcher creates a watcher for the dictionary file.
func NewDictionaryWatcher(path string, admin driving.DictionaryAdmin) *DictionaryWatcher {
	return &DictionaryWatcher{path: path, admin: admin}
}

// Run loads the file once, then watches it until ctx is cancelled. The
// parent directory is watched rather than the file itself so atomic
// rename-into-place saves are seen.
func (w *DictionaryWatcher) Run(ctx context.Context) error {
	if err := w.reload(ctx); err != nil {
		logger.Warn("dictionary watcher: initial load: %v", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(debounceWindow)
		case <-pending:
			pending = nil
			if err := w.reload(ctx); err != nil {
				logger.Warn("dictionary watcher: reload: %v", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("dictionary watcher: %v", err)
		}
	}
}

// reload replaces the active dictionary with the file contents.
func (w *DictionaryWatcher) reload(ctx context.Context) error {
	entries, err := LoadDictionary(w.path)
	if err != nil {
		return err
	}
	if err := w.admin.Replace(ctx, entries); err != nil {
		return err
	}
	logger.Info("dictionary watcher: loaded %d entries from %s (version %d)",
		len(entries), w.path, w.admin.Version())
	return nil
}
