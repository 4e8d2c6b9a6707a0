package cli

import (
	"bytes"
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

// mockIngestor implements driving.Ingestor for testing.
type mockIngestor struct {
	mu       sync.Mutex
	requests []*domain.IngestRequest
	status   *domain.DocumentStatus
}

func (m *mockIngestor) Submit(_ context.Context, req *domain.IngestRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return "doc-123", nil
}

func (m *mockIngestor) Status(_ context.Context, _ string) (*domain.DocumentStatus, error) {
	if m.status == nil {
		return nil, domain.ErrNotFound
	}
	return m.status, nil
}

func setupIngestorTest(mock *mockIngestor) func() {
	old := ingestor
	ingestor = mock
	return func() {
		ingestor = old
	}
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCmd_PrintsVersion(t *testing.T) {
	out, err := executeCommand(t, "version")

	assert.NoError(t, err)
	assert.Contains(t, out, "docforge version")
}

func TestIngestCmd_SubmitsFiles(t *testing.T) {
	mock := &mockIngestor{}
	cleanup := setupIngestorTest(mock)
	defer cleanup()

	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("quarterly figures"), 0600))

	out, err := executeCommand(t, "ingest", path, "--collection", "leaks-2021")

	require.NoError(t, err)
	assert.Contains(t, out, "doc-123")
	assert.Contains(t, out, path)

	require.Len(t, mock.requests, 1)
	assert.Equal(t, path, mock.requests[0].ForeignID)
	assert.Equal(t, "leaks-2021", mock.requests[0].CollectionID)
	assert.Equal(t, []byte("quarterly figures"), mock.requests[0].Payload)
}

func TestIngestCmd_MissingFileFails(t *testing.T) {
	cleanup := setupIngestorTest(&mockIngestor{})
	defer cleanup()

	_, err := executeCommand(t, "ingest", filepath.Join(t.TempDir(), "absent.txt"))

	assert.Error(t, err)
}

func TestStatusCmd_PrintsFailedDetails(t *testing.T) {
	mock := &mockIngestor{status: &domain.DocumentStatus{
		DocumentID:     "doc-123",
		ForeignID:      "dump/report.txt",
		Stage:          domain.StageFailed,
		FailedStage:    domain.TaskIndex,
		LastErrorClass: "permanent",
		LastError:      "index unavailable",
		UpdatedAt:      time.Now(),
	}}
	cleanup := setupIngestorTest(mock)
	defer cleanup()

	out, err := executeCommand(t, "status", "doc-123")

	require.NoError(t, err)
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "index unavailable")
	assert.Contains(t, out, "permanent")
}

func TestStatusCmd_PrintsDuplicateOf(t *testing.T) {
	mock := &mockIngestor{status: &domain.DocumentStatus{
		DocumentID:  "doc-123",
		ForeignID:   "dump/copy.txt",
		Stage:       domain.StageDeduplicated,
		DuplicateOf: "doc-042",
		UpdatedAt:   time.Now(),
	}}
	cleanup := setupIngestorTest(mock)
	defer cleanup()

	out, err := executeCommand(t, "status", "doc-123")

	require.NoError(t, err)
	assert.Contains(t, out, "deduplicated")
	assert.Contains(t, out, "doc-042")
}

// mockDictionaryAdmin implements driving.DictionaryAdmin for testing.
type mockDictionaryAdmin struct {
	mu       sync.Mutex
	replaced []domain.DictionaryEntry
	added    []domain.DictionaryEntry
}

func (m *mockDictionaryAdmin) Replace(_ context.Context, entries []domain.DictionaryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaced = entries
	return nil
}

func (m *mockDictionaryAdmin) Add(_ context.Context, entries []domain.DictionaryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.added = entries
	return nil
}

func (m *mockDictionaryAdmin) Version() int64 { return 7 }

func setupDictionaryTest(mock *mockDictionaryAdmin) func() {
	old := dictionaryAdmin
	dictionaryAdmin = mock
	return func() {
		dictionaryAdmin = old
	}
}

func TestDictionaryLoadCmd_ReplacesEntries(t *testing.T) {
	mock := &mockDictionaryAdmin{}
	cleanup := setupDictionaryTest(mock)
	defer cleanup()

	path := filepath.Join(t.TempDir(), "dictionary.yaml")
	content := "entries:\n  - name: Viktor Baranov\n    type: person\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	out, err := executeCommand(t, "dictionary", "load", path)

	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 1 entries")
	assert.Contains(t, out, "version 7")
	require.Len(t, mock.replaced, 1)
	assert.Equal(t, "Viktor Baranov", mock.replaced[0].Name)
	assert.Nil(t, mock.added)
}

func TestDictionaryAddCmd_AppendsEntries(t *testing.T) {
	mock := &mockDictionaryAdmin{}
	cleanup := setupDictionaryTest(mock)
	defer cleanup()

	path := filepath.Join(t.TempDir(), "extra.yaml")
	content := "entries:\n  - name: Meridian Trading Ltd\n    type: organization\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	_, err := executeCommand(t, "dictionary", "add", path)

	require.NoError(t, err)
	require.Len(t, mock.added, 1)
	assert.Equal(t, domain.EntityOrganization, mock.added[0].Type)
	assert.Nil(t, mock.replaced)
}

func TestIngestCmd_Use(t *testing.T) {
	assert.Equal(t, "ingest <file>...", ingestCmd.Use)
}

func TestWorkerCmd_Short(t *testing.T) {
	assert.Equal(t, "Run the ingestion worker", workerCmd.Short)
}
