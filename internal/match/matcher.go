package match

import (
	"sort"
	"sync/atomic"

	"github.com/custodia-labs/docforge/internal/core/domain"
)

// recogniser is a format-based entity recogniser. Recognisers are pure:
// no IO, no shared state mutation.
type recogniser interface {
	name() string
	recognise(text *domain.NormalisedText) []domain.EntitySpan
}

// Matcher runs the dictionary automaton and the format recognisers over
// normalised text. The active dictionary is swapped atomically on
// update; Match never blocks on a rebuild.
type Matcher struct {
	dict        atomic.Pointer[Dictionary]
	recognisers []recogniser
}

// NewMatcher creates a matcher with the given compiled dictionary and
// the standard recognisers (phone, country, date).
func NewMatcher(dict *Dictionary) *Matcher {
	m := &Matcher{
		recognisers: []recogniser{
			phoneRecogniser{},
			newCountryRecogniser(),
			dateRecogniser{},
		},
	}
	if dict == nil {
		dict = Compile(0, nil)
	}
	m.dict.Store(dict)
	return m
}

// Swap atomically replaces the active dictionary. In-flight Match calls
// finish with the version they started with.
func (m *Matcher) Swap(dict *Dictionary) {
	if dict == nil {
		return
	}
	m.dict.Store(dict)
}

// Dictionary returns the active compiled dictionary.
func (m *Matcher) Dictionary() *Dictionary {
	return m.dict.Load()
}

// Match returns all entity spans in the text, ordered by offset.
// Overlapping spans from different recognisers are retained; when one
// span of a type is byte-range-contained in a longer span of the same
// type, the longer match wins.
func (m *Matcher) Match(text *domain.NormalisedText) []domain.EntitySpan {
	var spans []domain.EntitySpan
	spans = append(spans, m.dict.Load().Find(text.Text)...)
	for _, r := range m.recognisers {
		spans = append(spans, r.recognise(text)...)
	}

	spans = resolveContained(spans)
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		if spans[i].End != spans[j].End {
			return spans[i].End > spans[j].End
		}
		return spans[i].Type < spans[j].Type
	})
	return spans
}

// resolveContained drops spans contained within a longer span of the
// same type. Spans of different types always coexist.
func resolveContained(spans []domain.EntitySpan) []domain.EntitySpan {
	if len(spans) < 2 {
		return spans
	}

	// Longest first so containers are seen before their contents.
	ordered := make([]domain.EntitySpan, len(spans))
	copy(ordered, spans)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].End-ordered[i].Start > ordered[j].End-ordered[j].Start
	})

	var kept []domain.EntitySpan
	for _, s := range ordered {
		contained := false
		for _, k := range kept {
			if k.Type == s.Type && k.Contains(s) && (k.Start != s.Start || k.End != s.End) {
				contained = true
				break
			}
		}
		if !contained {
			kept = append(kept, s)
		}
	}
	return kept
}
