package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docforge/internal/core/domain"
)

func TestLoadSettings_MissingFileReturnsDefaults(t *testing.T) {
	settings, err := LoadSettings(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), settings)
}

func TestSettings_SaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()

	settings := domain.DefaultSettings()
	settings.Workers = 12
	settings.SimilarityThreshold = 0.85
	settings.OCRLanguages = "eng+deu"
	require.NoError(t, SaveSettings(dir, settings))

	loaded, err := LoadSettings(dir)
	require.NoError(t, err)
	assert.Equal(t, 12, loaded.Workers)
	assert.Equal(t, 0.85, loaded.SimilarityThreshold)
	assert.Equal(t, "eng+deu", loaded.OCRLanguages)
}

func TestLoadSettings_ZeroValuesFilledIn(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("workers = 2\n"), 0600))

	loaded, err := LoadSettings(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Workers)
	assert.Equal(t, domain.DefaultSettings().QueueDepth, loaded.QueueDepth)
	assert.Equal(t, domain.DefaultSettings().TaskDeadline, loaded.TaskDeadline)
}

func TestLoadDictionary_ParsesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dictionary.yaml")
	content := `entries:
  - name: Viktor Baranov
    type: person
    aliases:
      - V. Baranov
  - name: Meridian Trading Ltd
    type: organization
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	entries, err := LoadDictionary(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Viktor Baranov", entries[0].Name)
	assert.Equal(t, domain.EntityPerson, entries[0].Type)
	assert.Equal(t, []string{"V. Baranov"}, entries[0].Aliases)
	assert.Equal(t, domain.EntityOrganization, entries[1].Type)
}

// recordingAdmin captures Replace calls from the watcher.
type recordingAdmin struct {
	mu      sync.Mutex
	batches [][]domain.DictionaryEntry
}

func (a *recordingAdmin) Replace(_ context.Context, entries []domain.DictionaryEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.batches = append(a.batches, entries)
	return nil
}

func (a *recordingAdmin) Add(_ context.Context, _ []domain.DictionaryEntry) error { return nil }

func (a *recordingAdmin) Version() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int64(len(a.batches))
}

func (a *recordingAdmin) lastBatch() []domain.DictionaryEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.batches) == 0 {
		return nil
	}
	return a.batches[len(a.batches)-1]
}

func TestDictionaryWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dictionary.yaml")
	require.NoError(t, os.WriteFile(path, []byte("entries:\n  - name: First Person\n    type: person\n"), 0600))

	admin := &recordingAdmin{}
	watcher := NewDictionaryWatcher(path, admin)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = watcher.Run(ctx)
	}()

	// Initial load.
	waitUntil(t, func() bool { return admin.Version() >= 1 })
	require.Len(t, admin.lastBatch(), 1)
	assert.Equal(t, "First Person", admin.lastBatch()[0].Name)

	// Rewrite the file; the watcher should pick it up.
	require.NoError(t, os.WriteFile(path,
		[]byte("entries:\n  - name: First Person\n    type: person\n  - name: Second Person\n    type: person\n"), 0600))

	waitUntil(t, func() bool { return len(admin.lastBatch()) == 2 })

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
