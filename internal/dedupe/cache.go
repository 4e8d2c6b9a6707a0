// Package dedupe collapses duplicate ingests. A bounded, recency-
// evicted cache maps fingerprint keys to canonical document IDs,
// writing through to a durable store. The cache is an acceleration
// structure, not the source of truth: eviction (or a cold start with
// an empty cache) is always correctness-safe, only costlier.
package dedupe

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
)

// stripes is the number of per-fingerprint serialisation locks.
// Operations on different fingerprints proceed independently;
// operations on the same fingerprint are serialised so exactly one
// racing document becomes canonical.
const stripes = 64

// Resolution is the outcome of inserting a fingerprint.
type Resolution struct {
	// CanonicalID is the canonical document for this fingerprint.
	CanonicalID string

	// Duplicate is true when the inserted document was linked as a
	// duplicate of an existing canonical, false when it became
	// canonical itself.
	Duplicate bool
}

// Cache is the bounded fingerprint lookup.
type Cache struct {
	cache    *lru.Cache[string, string]
	store    driven.DedupStore
	capacity int
	locks    [stripes]sync.Mutex
}

// New creates a cache with the given capacity, writing through to the
// durable store.
func New(capacity int, store driven.DedupStore) (*Cache, error) {
	c, err := lru.New[string, string](capacity)
	if err != nil {
		return nil, fmt.Errorf("creating dedup cache: %w", err)
	}
	return &Cache{cache: c, store: store, capacity: capacity}, nil
}

// Warm loads the most recently seen records from the durable store.
// Called on cold start; failure is not fatal, the cache fills on demand.
func (c *Cache) Warm(ctx context.Context) error {
	records, err := c.store.Recent(ctx, c.capacity)
	if err != nil {
		return fmt.Errorf("warming dedup cache: %w", err)
	}
	// Oldest first so the most recent end up freshest in the LRU.
	for i := len(records) - 1; i >= 0; i-- {
		c.cache.Add(records[i].Fingerprint, records[i].CanonicalID)
	}
	return nil
}

// Lookup returns the canonical document for a fingerprint key, if one
// is known. Falls through to the durable store on a cache miss.
func (c *Cache) Lookup(ctx context.Context, fingerprint string) (string, bool) {
	lock := c.lockFor(fingerprint)
	lock.Lock()
	defer lock.Unlock()

	if canonical, ok := c.cache.Get(fingerprint); ok {
		return canonical, true
	}

	record, err := c.store.Get(ctx, fingerprint)
	if err != nil || record == nil {
		return "", false
	}
	c.cache.Add(fingerprint, record.CanonicalID)
	return record.CanonicalID, true
}

// Insert registers documentID under the fingerprint. The first inserter
// becomes canonical; concurrent inserters of the same fingerprint are
// serialised and linked as duplicates, never as co-canonical.
// Re-inserting the canonical document is a no-op, which keeps the
// fingerprint stage idempotent under at-least-once delivery.
func (c *Cache) Insert(ctx context.Context, fingerprint, documentID string) (Resolution, error) {
	lock := c.lockFor(fingerprint)
	lock.Lock()
	defer lock.Unlock()

	record, err := c.loadRecord(ctx, fingerprint)
	if err != nil {
		return Resolution{}, err
	}

	if record == nil {
		record = &domain.DedupRecord{
			Fingerprint: fingerprint,
			CanonicalID: documentID,
			LastSeen:    time.Now(),
		}
		if err := c.store.Save(ctx, record); err != nil {
			return Resolution{}, fmt.Errorf("%w: saving dedup record: %w", domain.ErrTransient, err)
		}
		c.cache.Add(fingerprint, documentID)
		return Resolution{CanonicalID: documentID}, nil
	}

	if record.CanonicalID == documentID {
		return Resolution{CanonicalID: documentID}, nil
	}

	if !contains(record.DuplicateIDs, documentID) {
		record.DuplicateIDs = append(record.DuplicateIDs, documentID)
	}
	record.LastSeen = time.Now()
	if err := c.store.Save(ctx, record); err != nil {
		return Resolution{}, fmt.Errorf("%w: saving dedup record: %w", domain.ErrTransient, err)
	}
	c.cache.Add(fingerprint, record.CanonicalID)
	return Resolution{CanonicalID: record.CanonicalID, Duplicate: true}, nil
}

// loadRecord reads the record for a fingerprint, preferring the durable
// store so duplicate links accumulate correctly even after eviction.
func (c *Cache) loadRecord(ctx context.Context, fingerprint string) (*domain.DedupRecord, error) {
	record, err := c.store.Get(ctx, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("%w: reading dedup record: %w", domain.ErrTransient, err)
	}
	return record, nil
}

func (c *Cache) lockFor(fingerprint string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(fingerprint))
	return &c.locks[h.Sum32()%stripes]
}

func contains(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
