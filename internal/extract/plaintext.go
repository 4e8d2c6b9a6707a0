package extract

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
)

// Ensure PlainText implements the interface.
var _ driven.Extractor = (*PlainText)(nil)

// PlainText handles payloads that are already readable text.
type PlainText struct{}

// NewPlainText creates a plain text extractor.
func NewPlainText() *PlainText {
	return &PlainText{}
}

// Name identifies the extractor.
func (e *PlainText) Name() string {
	return "plaintext"
}

// Sniff accepts valid UTF-8 payloads that are mostly printable.
func (e *PlainText) Sniff(payload []byte, declaredType string) int {
	if !utf8.Valid(payload) {
		return 0
	}
	if printableRatio(payload) < 0.95 {
		return 0
	}
	if declaredType == "text/plain" {
		return driven.ConfidenceStruct + 5
	}
	return driven.ConfidenceStruct
}

// Extract returns the payload as-is; the normaliser handles cleanup.
func (e *PlainText) Extract(_ context.Context, req *domain.IngestRequest, documentID string) (*domain.ExtractionResult, error) {
	text := string(req.Payload)
	return &domain.ExtractionResult{
		DocumentID: documentID,
		Text:       text,
		Failed:     strings.TrimSpace(text) == "",
	}, nil
}

// printableRatio is the share of runes that are printable or whitespace.
func printableRatio(payload []byte) float64 {
	if len(payload) == 0 {
		return 0
	}
	total, printable := 0, 0
	for _, r := range string(payload) {
		total++
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	return float64(printable) / float64(total)
}
