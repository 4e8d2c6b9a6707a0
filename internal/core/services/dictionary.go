package services

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
	"github.com/custodia-labs/docforge/internal/core/ports/driving"
	"github.com/custodia-labs/docforge/internal/logger"
	"github.com/custodia-labs/docforge/internal/match"
)

// Ensure Dictionary implements the interface.
var _ driving.DictionaryAdmin = (*Dictionary)(nil)

// Dictionary administers the entity dictionary: updates are persisted,
// compiled into a fresh automaton off the hot path, and swapped into
// the matcher atomically. In-flight matches keep the version they
// started with.
type Dictionary struct {
	store   driven.DictionaryStore
	matcher *match.Matcher
	version atomic.Int64
}

// NewDictionary creates the admin service around a matcher.
func NewDictionary(store driven.DictionaryStore, matcher *match.Matcher) *Dictionary {
	return &Dictionary{store: store, matcher: matcher}
}

// Load compiles the persisted dictionary into the matcher. Called at
// startup.
func (d *Dictionary) Load(ctx context.Context) error {
	entries, err := d.store.All(ctx)
	if err != nil {
		return fmt.Errorf("%w: loading dictionary: %w", domain.ErrTransient, err)
	}
	d.swap(entries)
	return nil
}

// Replace swaps the full dictionary and recompiles the automaton.
func (d *Dictionary) Replace(ctx context.Context, entries []domain.DictionaryEntry) error {
	if err := validateEntries(entries); err != nil {
		return err
	}
	if err := d.store.Replace(ctx, entries); err != nil {
		return fmt.Errorf("%w: persisting dictionary: %w", domain.ErrTransient, err)
	}
	d.swap(entries)
	return nil
}

// Add appends entries and recompiles the automaton over the union.
func (d *Dictionary) Add(ctx context.Context, entries []domain.DictionaryEntry) error {
	if err := validateEntries(entries); err != nil {
		return err
	}
	if err := d.store.Add(ctx, entries); err != nil {
		return fmt.Errorf("%w: persisting dictionary: %w", domain.ErrTransient, err)
	}
	all, err := d.store.All(ctx)
	if err != nil {
		return fmt.Errorf("%w: loading dictionary: %w", domain.ErrTransient, err)
	}
	d.swap(all)
	return nil
}

// Version returns the active compiled dictionary version.
func (d *Dictionary) Version() int64 {
	return d.version.Load()
}

// swap compiles and installs a new dictionary version.
func (d *Dictionary) swap(entries []domain.DictionaryEntry) {
	version := d.version.Add(1)
	compiled := match.Compile(version, entries)
	d.matcher.Swap(compiled)
	logger.Info("dictionary: version %d active with %d entries", version, len(entries))
}

// validateEntries rejects entries without a name or with an unknown
// entity type.
func validateEntries(entries []domain.DictionaryEntry) error {
	for i, entry := range entries {
		if entry.Name == "" {
			return fmt.Errorf("%w: entry %d has no name", domain.ErrInvalidInput, i)
		}
		if !entry.Type.IsValid() {
			return fmt.Errorf("%w: entry %d (%s) has unknown type %q",
				domain.ErrInvalidInput, i, entry.Name, entry.Type)
		}
	}
	return nil
}
