// Package match recognises entities in normalised text. Dictionary
// names are matched by a compiled multi-pattern automaton; structured
// entities (phones, countries, dates) by format recognisers. Matching
// never touches network or disk: everything is preloaded.
package match

import (
	"strings"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"

	"github.com/custodia-labs/docforge/internal/core/domain"
)

// Dictionary is an immutable compiled matching artifact. Workers hold a
// reference to the active version and swap atomically on update; a
// Dictionary is never mutated after Compile.
type Dictionary struct {
	version  int64
	patterns []patternTarget
	ac       ahocorasick.AhoCorasick
	empty    bool
}

// patternTarget maps one automaton pattern back to its canonical entry.
type patternTarget struct {
	canonical string
	typ       domain.EntityType
}

// Compile builds a dictionary artifact from entries. Rebuilding is an
// explicit, infrequent maintenance operation, not done per document.
func Compile(version int64, entries []domain.DictionaryEntry) *Dictionary {
	d := &Dictionary{version: version}

	var patterns []string
	add := func(pattern, canonical string, typ domain.EntityType) {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			return
		}
		patterns = append(patterns, pattern)
		d.patterns = append(d.patterns, patternTarget{canonical: canonical, typ: typ})
	}

	for _, e := range entries {
		typ := e.Type
		if !typ.IsValid() {
			typ = domain.EntityPerson
		}
		add(e.Name, e.Name, typ)
		for _, alias := range e.Aliases {
			add(alias, e.Name, typ)
		}
	}

	if len(patterns) == 0 {
		d.empty = true
		return d
	}

	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchOnlyWholeWords:  true,
		MatchKind:            ahocorasick.LeftMostLongestMatch,
	})
	d.ac = builder.Build(patterns)
	return d
}

// Version returns the dictionary version.
func (d *Dictionary) Version() int64 {
	return d.version
}

// Len returns the number of compiled patterns.
func (d *Dictionary) Len() int {
	return len(d.patterns)
}

// Find returns dictionary entity spans in text, ordered by offset.
// Linear in the text length regardless of dictionary size.
func (d *Dictionary) Find(text string) []domain.EntitySpan {
	if d.empty {
		return nil
	}

	matches := d.ac.FindAll(text)
	spans := make([]domain.EntitySpan, 0, len(matches))
	for _, m := range matches {
		target := d.patterns[m.Pattern()]
		spans = append(spans, domain.EntitySpan{
			Type:       target.typ,
			Value:      target.canonical,
			Start:      m.Start(),
			End:        m.End(),
			Recogniser: "dictionary",
			Confidence: 1,
		})
	}
	return spans
}
