// Package fingerprint derives stable content fingerprints from
// normalised text. Fingerprints are pure functions of their input:
// no wall-clock time, identifiers or call ordering feed into them, so
// values are comparable across process restarts and worker instances.
package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"

	"github.com/custodia-labs/docforge/internal/core/domain"
)

// maxNameTokens bounds how many consecutive capitalised tokens form one
// name-like run.
const maxNameTokens = 4

// Engine computes document and entity fingerprints.
type Engine struct{}

// New creates a fingerprint engine.
func New() *Engine {
	return &Engine{}
}

// Compute derives all fingerprints for a normalised text: one
// document-scope fingerprint plus one entity-name fingerprint per
// name-like token run.
func (e *Engine) Compute(text *domain.NormalisedText) []domain.Fingerprint {
	fps := []domain.Fingerprint{
		{Scope: domain.ScopeDocument, Value: Document(text.Text)},
	}

	seen := make(map[string]int)
	for _, run := range nameRuns(text.Text) {
		value := NameSet(run.text)
		if idx, ok := seen[value]; ok {
			fps[idx].Spans = append(fps[idx].Spans, run.span)
			continue
		}
		seen[value] = len(fps)
		fps = append(fps, domain.Fingerprint{
			Scope: domain.ScopeEntityName,
			Value: value,
			Spans: []domain.Span{run.span},
		})
	}
	return fps
}

// Document returns the document-scope fingerprint: a SHA-1 digest of
// the canonical text with all whitespace removed. Order-sensitive,
// whitespace-insensitive.
func Document(text string) string {
	h := sha1.New()
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		h.Write([]byte(string(r)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NameSet returns the entity-name fingerprint of a name: a SHA-1 digest
// of its sorted, lowercased token set. Order-insensitive, so
// "Doe, John" and "John Doe" produce the same value.
func NameSet(name string) string {
	tokens := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	sort.Strings(tokens)

	h := sha1.New()
	for i, tok := range tokens {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(tok))
	}
	return hex.EncodeToString(h.Sum(nil))
}

type nameRun struct {
	text string
	span domain.Span
}

type token struct {
	text  string
	start int
	end   int
}

// nameRuns finds runs of consecutive capitalised tokens, the name-like
// candidates that get entity-scope fingerprints.
func nameRuns(text string) []nameRun {
	tokens := tokenise(text)

	var runs []nameRun
	var current []token
	flush := func() {
		if len(current) >= 2 && len(current) <= maxNameTokens {
			first, last := current[0], current[len(current)-1]
			runs = append(runs, nameRun{
				text: text[first.start:last.end],
				span: domain.Span{Start: first.start, End: last.end},
			})
		}
		current = nil
	}

	for _, tok := range tokens {
		if isCapitalised(tok.text) {
			current = append(current, tok)
			continue
		}
		flush()
	}
	flush()
	return runs
}

// tokenise splits text into letter/number tokens with byte offsets.
func tokenise(text string) []token {
	var tokens []token
	start := -1
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, token{text: text[start:i], start: start, end: i})
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{text: text[start:], start: start, end: len(text)})
	}
	return tokens
}

// isCapitalised returns true for tokens shaped like a name part:
// an upper-case letter followed by lower-case letters.
func isCapitalised(tok string) bool {
	runes := []rune(tok)
	if len(runes) < 2 {
		return false
	}
	if !unicode.IsUpper(runes[0]) {
		return false
	}
	for _, r := range runes[1:] {
		if !unicode.IsLower(r) {
			return false
		}
	}
	return true
}
