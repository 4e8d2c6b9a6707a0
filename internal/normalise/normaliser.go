// Package normalise canonicalises extracted text: unicode
// normalisation, control-character stripping, whitespace collapsing,
// language detection and Latin transliteration. Normalisation is a
// deterministic pure function of its input.
package normalise

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/unicode/norm"

	"github.com/custodia-labs/docforge/internal/core/domain"
)

// chunkRunes is the window size used to estimate per-language
// proportions in mixed-language documents.
const chunkRunes = 400

// Normaliser produces NormalisedText from extraction results.
type Normaliser struct {
	minLength int
}

// New creates a normaliser. Inputs shorter than minLength runes yield
// an insufficient-text warning instead of a spurious language guess.
func New(minLength int) *Normaliser {
	return &Normaliser{minLength: minLength}
}

// Normalise canonicalises an extraction result. The input is never
// modified; extraction warnings are carried forward.
func (n *Normaliser) Normalise(result *domain.ExtractionResult) *domain.NormalisedText {
	out := &domain.NormalisedText{
		DocumentID: result.DocumentID,
	}
	out.Warnings = append(out.Warnings, result.Warnings...)

	text := Canonical(result.Text)
	out.Text = text

	if utf8.RuneCountInString(text) < n.minLength {
		out.Warnings = append(out.Warnings, domain.NewWarning(
			domain.ErrNormalisation, "insufficient text for language detection"))
		out.Latin = unidecode.Unidecode(text)
		return out
	}

	out.Languages = detectLanguages(text)
	out.Latin = unidecode.Unidecode(text)
	return out
}

// Canonical applies NFKC normalisation, strips control characters
// (keeping newline and tab as whitespace) and collapses whitespace
// runs: runs containing a newline become a single newline, all others
// a single space.
func Canonical(text string) string {
	text = norm.NFKC.String(text)

	var b strings.Builder
	b.Grow(len(text))

	var inSpace, sawNewline, wroteAny bool
	flush := func() {
		if !inSpace {
			return
		}
		if wroteAny {
			if sawNewline {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		inSpace, sawNewline = false, false
	}

	for _, r := range text {
		switch {
		case r == '\n' || r == '\r':
			inSpace, sawNewline = true, true
		case unicode.IsSpace(r):
			inSpace = true
		case unicode.IsControl(r) || r == utf8.RuneError:
			// Dropped entirely; they carry no text.
		default:
			flush()
			b.WriteRune(r)
			wroteAny = true
		}
	}
	return b.String()
}

// detectLanguages estimates the languages of text, ranked by the
// proportion of the document each covers. Windows of chunkRunes runes
// are detected independently and tallied by length.
func detectLanguages(text string) []domain.LanguageGuess {
	runes := []rune(text)
	weights := make(map[string]int)
	total := 0

	for start := 0; start < len(runes); start += chunkRunes {
		end := start + chunkRunes
		if end > len(runes) {
			end = len(runes)
		}
		chunk := string(runes[start:end])
		info := whatlanggo.Detect(chunk)
		if info.Lang == -1 {
			continue
		}
		code := whatlanggo.LangToString(info.Lang)
		weights[code] += end - start
		total += end - start
	}

	if total == 0 {
		return nil
	}

	guesses := make([]domain.LanguageGuess, 0, len(weights))
	for code, weight := range weights {
		guesses = append(guesses, domain.LanguageGuess{
			Code:       code,
			Confidence: float64(weight) / float64(total),
		})
	}
	sortGuesses(guesses)
	return guesses
}

// sortGuesses orders by descending proportion, code ascending on ties
// so the ranking is deterministic.
func sortGuesses(guesses []domain.LanguageGuess) {
	for i := 1; i < len(guesses); i++ {
		for j := i; j > 0; j-- {
			a, b := guesses[j-1], guesses[j]
			if b.Confidence > a.Confidence ||
				(b.Confidence == a.Confidence && b.Code < a.Code) {
				guesses[j-1], guesses[j] = b, a
				continue
			}
			break
		}
	}
}
