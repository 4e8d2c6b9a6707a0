package dedupe

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docforge/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/docforge/internal/core/domain"
)

func TestInsert_FirstBecomesCanonical(t *testing.T) {
	cache, err := New(16, memory.NewDedupStore())
	require.NoError(t, err)
	ctx := context.Background()

	res, err := cache.Insert(ctx, "document:fp1", "doc-a")
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, "doc-a", res.CanonicalID)

	res, err = cache.Insert(ctx, "document:fp1", "doc-b")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, "doc-a", res.CanonicalID)
}

func TestInsert_CanonicalReinsertIsNoop(t *testing.T) {
	store := memory.NewDedupStore()
	cache, err := New(16, store)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = cache.Insert(ctx, "document:fp1", "doc-a")
	require.NoError(t, err)

	// Re-running the fingerprint stage for the canonical document must
	// not link it as a duplicate of itself.
	res, err := cache.Insert(ctx, "document:fp1", "doc-a")
	require.NoError(t, err)
	assert.False(t, res.Duplicate)

	record, err := store.Get(ctx, "document:fp1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Empty(t, record.DuplicateIDs)
}

func TestInsert_ConcurrentSameFingerprint(t *testing.T) {
	cache, err := New(256, memory.NewDedupStore())
	require.NoError(t, err)
	ctx := context.Background()

	const racers = 32
	results := make([]Resolution, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, insertErr := cache.Insert(ctx, "document:contested", fmt.Sprintf("doc-%d", i))
			assert.NoError(t, insertErr)
			results[i] = res
		}(i)
	}
	wg.Wait()

	// Exactly one racer becomes canonical; everyone agrees who it is.
	canonical := 0
	for _, res := range results {
		if !res.Duplicate {
			canonical++
		}
		assert.Equal(t, results[0].CanonicalID, res.CanonicalID)
	}
	assert.Equal(t, 1, canonical)
}

func TestInsert_DifferentFingerprintsIndependent(t *testing.T) {
	cache, err := New(256, memory.NewDedupStore())
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fp := fmt.Sprintf("document:fp-%d", i)
			res, insertErr := cache.Insert(ctx, fp, fmt.Sprintf("doc-%d", i))
			assert.NoError(t, insertErr)
			assert.False(t, res.Duplicate)
		}(i)
	}
	wg.Wait()
}

func TestLookup_MissAndHit(t *testing.T) {
	cache, err := New(16, memory.NewDedupStore())
	require.NoError(t, err)
	ctx := context.Background()

	_, ok := cache.Lookup(ctx, "document:absent")
	assert.False(t, ok)

	_, err = cache.Insert(ctx, "document:fp1", "doc-a")
	require.NoError(t, err)

	canonical, ok := cache.Lookup(ctx, "document:fp1")
	assert.True(t, ok)
	assert.Equal(t, "doc-a", canonical)
}

func TestLookup_FallsThroughToStoreAfterEviction(t *testing.T) {
	store := memory.NewDedupStore()
	cache, err := New(2, store)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = cache.Insert(ctx, "document:fp1", "doc-a")
	require.NoError(t, err)

	// Evict fp1 from the two-entry cache.
	_, err = cache.Insert(ctx, "document:fp2", "doc-b")
	require.NoError(t, err)
	_, err = cache.Insert(ctx, "document:fp3", "doc-c")
	require.NoError(t, err)

	// The durable record still answers; eviction never un-duplicates.
	canonical, ok := cache.Lookup(ctx, "document:fp1")
	assert.True(t, ok)
	assert.Equal(t, "doc-a", canonical)
}

func TestInsert_DuplicateLinkSurvivesEviction(t *testing.T) {
	store := memory.NewDedupStore()
	cache, err := New(2, store)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = cache.Insert(ctx, "document:fp1", "doc-a")
	require.NoError(t, err)
	_, err = cache.Insert(ctx, "document:fp1", "doc-b")
	require.NoError(t, err)

	// Push fp1 out of the cache.
	_, err = cache.Insert(ctx, "document:fp2", "doc-c")
	require.NoError(t, err)
	_, err = cache.Insert(ctx, "document:fp3", "doc-d")
	require.NoError(t, err)

	record, err := store.Get(ctx, "document:fp1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "doc-a", record.CanonicalID)
	assert.Equal(t, []string{"doc-b"}, record.DuplicateIDs)
}

func TestWarm_LoadsRecentRecords(t *testing.T) {
	store := memory.NewDedupStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := store.Save(ctx, &domain.DedupRecord{
			Fingerprint: fmt.Sprintf("document:fp-%d", i),
			CanonicalID: fmt.Sprintf("doc-%d", i),
			LastSeen:    time.Now().Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	cache, err := New(16, store)
	require.NoError(t, err)
	require.NoError(t, cache.Warm(ctx))

	canonical, ok := cache.Lookup(ctx, "document:fp-3")
	assert.True(t, ok)
	assert.Equal(t, "doc-3", canonical)
}
