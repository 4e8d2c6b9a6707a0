package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docforge/internal/core/domain"
)

func TestDocument_Deterministic(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog"
	assert.Equal(t, Document(text), Document(text))
}

func TestDocument_WhitespaceInsensitive(t *testing.T) {
	assert.Equal(t,
		Document("The quick brown fox"),
		Document("The  quick\nbrown\tfox"))
}

func TestDocument_OrderSensitive(t *testing.T) {
	assert.NotEqual(t,
		Document("alpha beta"),
		Document("beta alpha"))
}

func TestNameSet_OrderInsensitive(t *testing.T) {
	assert.Equal(t, NameSet("Doe, John"), NameSet("John Doe"))
	assert.Equal(t, NameSet("JOHN DOE"), NameSet("john doe"))
	assert.NotEqual(t, NameSet("John Doe"), NameSet("Jane Doe"))
}

func TestCompute_DocumentScopeFirst(t *testing.T) {
	e := New()
	text := &domain.NormalisedText{
		DocumentID: "doc-1",
		Text:       "A report on trade flows.",
	}

	fps := e.Compute(text)
	require.NotEmpty(t, fps)
	assert.Equal(t, domain.ScopeDocument, fps[0].Scope)
	assert.Equal(t, Document(text.Text), fps[0].Value)
}

func TestCompute_NameRuns(t *testing.T) {
	e := New()
	text := &domain.NormalisedText{
		DocumentID: "doc-1",
		Text:       "A meeting between John Doe and the minister took place.",
	}

	fps := e.Compute(text)
	require.Len(t, fps, 2)

	name := fps[1]
	assert.Equal(t, domain.ScopeEntityName, name.Scope)
	assert.Equal(t, NameSet("John Doe"), name.Value)
	require.Len(t, name.Spans, 1)

	span := name.Spans[0]
	assert.Equal(t, "John Doe", text.Text[span.Start:span.End])
}

func TestCompute_RepeatedNameSharesFingerprint(t *testing.T) {
	e := New()
	text := &domain.NormalisedText{
		DocumentID: "doc-1",
		Text:       "John Doe met reporters and afterwards Doe, John denied everything.",
	}

	fps := e.Compute(text)
	var nameFPs []domain.Fingerprint
	for _, fp := range fps {
		if fp.Scope == domain.ScopeEntityName {
			nameFPs = append(nameFPs, fp)
		}
	}
	// "John Doe" and "Doe, John" collapse into one fingerprint with
	// two source spans.
	require.Len(t, nameFPs, 1)
	assert.Len(t, nameFPs[0].Spans, 2)
}

func TestCompute_Deterministic(t *testing.T) {
	e := New()
	text := &domain.NormalisedText{
		DocumentID: "doc-1",
		Text:       "Maria Fernanda Santos wired funds to Ivan Petrov in March.",
	}

	a := e.Compute(text)
	b := e.Compute(text)
	assert.Equal(t, a, b)
}

func TestSimilarity_Identical(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog again and again"
	assert.Equal(t, 1.0, Similarity(text, text))
}

func TestSimilarity_OCRNoise(t *testing.T) {
	a := "the commission published its annual report on money laundering in the banking sector today"
	b := "the cornmission published its annual report on money laundering in the banking sector today"

	sim := Similarity(a, b)
	assert.Greater(t, sim, 0.5)
	assert.Less(t, sim, 1.0)
}

func TestSimilarity_Unrelated(t *testing.T) {
	a := "annual financial report for the fiscal year twenty twenty"
	b := "recipe for traditional sourdough bread with rye flour"
	assert.Less(t, Similarity(a, b), 0.1)
}

func TestSimilarity_Empty(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 0.0, Similarity("some text here", ""))
}
