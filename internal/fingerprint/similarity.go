package fingerprint

import (
	"strings"
	"unicode"
)

// shingleSize is the token count per shingle used for near-duplicate
// comparison.
const shingleSize = 4

// Similarity estimates how close two canonical texts are, as the
// Jaccard index of their token shingle sets in [0, 1]. It tolerates the
// token-level noise OCR introduces. Advisory only: exact fingerprint
// equality is authoritative for deduplication, similarity merely
// surfaces "possible duplicate" links.
func Similarity(a, b string) float64 {
	sa := shingles(a)
	sb := shingles(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	intersection := 0
	for s := range sa {
		if _, ok := sb[s]; ok {
			intersection++
		}
	}
	union := len(sa) + len(sb) - intersection
	return float64(intersection) / float64(union)
}

// shingles returns the set of overlapping shingleSize-token windows.
// Texts shorter than one window form a single shingle.
func shingles(text string) map[string]struct{} {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	set := make(map[string]struct{})
	if len(tokens) == 0 {
		return set
	}
	if len(tokens) < shingleSize {
		set[strings.Join(tokens, " ")] = struct{}{}
		return set
	}
	for i := 0; i+shingleSize <= len(tokens); i++ {
		set[strings.Join(tokens[i:i+shingleSize], " ")] = struct{}{}
	}
	return set
}
