package normalise

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docforge/internal/core/domain"
)

func TestCanonical_Whitespace(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"collapses spaces", "a   b\t\tc", "a b c"},
		{"collapses newlines", "a\n\n\nb", "a\nb"},
		{"newline wins in mixed run", "a \n  b", "a\nb"},
		{"carriage returns become newlines", "a\r\nb", "a\nb"},
		{"trims leading and trailing", "  a b  ", "a b"},
		{"drops control characters", "a\x00\x1fb", "ab"},
		{"keeps unicode letters", "Привет мир", "Привет мир"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Canonical(tt.input))
		})
	}
}

func TestCanonical_NFKC(t *testing.T) {
	// The ligature ﬁ decomposes to "fi" under NFKC.
	assert.Equal(t, "file", Canonical("ﬁle"))
	// Fullwidth digits become ASCII digits.
	assert.Equal(t, "2021", Canonical("２０２１"))
}

func TestNormalise_Deterministic(t *testing.T) {
	n := New(24)
	result := &domain.ExtractionResult{
		DocumentID: "doc-1",
		Text:       strings.Repeat("The quick brown fox jumps over the lazy dog. ", 10),
	}

	a := n.Normalise(result)
	b := n.Normalise(result)
	assert.Equal(t, a.Text, b.Text)
	assert.Equal(t, a.Latin, b.Latin)
	assert.Equal(t, a.Languages, b.Languages)
}

func TestNormalise_DetectsEnglish(t *testing.T) {
	n := New(24)
	result := &domain.ExtractionResult{
		DocumentID: "doc-1",
		Text:       strings.Repeat("The quick brown fox jumps over the lazy dog. ", 10),
	}

	out := n.Normalise(result)
	require.NotEmpty(t, out.Languages)
	assert.Equal(t, "eng", out.Languages[0].Code)
	assert.InDelta(t, 1.0, out.Languages[0].Confidence, 0.001)
}

func TestNormalise_Transliteration(t *testing.T) {
	n := New(5)
	result := &domain.ExtractionResult{
		DocumentID: "doc-1",
		Text:       "Привет мир и ещё немного текста для объёма",
	}

	out := n.Normalise(result)
	// The original text survives untouched; Latin is a parallel field.
	assert.Contains(t, out.Text, "Привет")
	assert.NotContains(t, out.Latin, "Привет")
	assert.Contains(t, out.Latin, "Privet")
}

func TestNormalise_InsufficientText(t *testing.T) {
	n := New(24)
	result := &domain.ExtractionResult{
		DocumentID: "doc-1",
		Text:       "too short",
	}

	out := n.Normalise(result)
	assert.Empty(t, out.Languages)
	require.NotEmpty(t, out.Warnings)
	assert.Equal(t, "normalisation", out.Warnings[0].Class)
	assert.Contains(t, out.Warnings[0].Message, "insufficient text")
}

func TestNormalise_CarriesExtractionWarnings(t *testing.T) {
	n := New(24)
	result := &domain.ExtractionResult{
		DocumentID: "doc-1",
		Failed:     true,
		Warnings: []domain.Warning{
			{Class: "extraction", Message: "corrupt payload"},
		},
	}

	out := n.Normalise(result)
	require.Len(t, out.Warnings, 2)
	assert.Equal(t, "extraction", out.Warnings[0].Class)
	assert.Equal(t, "normalisation", out.Warnings[1].Class)
}
