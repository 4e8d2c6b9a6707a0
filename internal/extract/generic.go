package extract

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
)

// Ensure Generic implements the interface.
var _ driven.Extractor = (*Generic)(nil)

// minSalvageRun is the shortest printable run worth keeping. Shorter
// runs in binary data are overwhelmingly noise.
const minSalvageRun = 4

// Generic is the last-resort extractor: it salvages printable runs from
// unrecognised binary payloads, the way strings(1) does.
type Generic struct{}

// NewGeneric creates the fallback extractor.
func NewGeneric() *Generic {
	return &Generic{}
}

// Name identifies the extractor.
func (e *Generic) Name() string {
	return "generic"
}

// Sniff accepts anything at the lowest confidence, so it only wins when
// nothing else recognised the payload.
func (e *Generic) Sniff(_ []byte, _ string) int {
	return driven.ConfidenceFallback
}

// Extract keeps printable runs of at least minSalvageRun characters,
// one per line. Payloads with no salvageable text fail with a warning.
func (e *Generic) Extract(_ context.Context, req *domain.IngestRequest, documentID string) (*domain.ExtractionResult, error) {
	var (
		sb  strings.Builder
		run []rune
	)
	flush := func() {
		if len(run) >= minSalvageRun {
			sb.WriteString(strings.TrimSpace(string(run)))
			sb.WriteByte('\n')
		}
		run = run[:0]
	}

	payload := req.Payload
	for len(payload) > 0 {
		r, size := utf8.DecodeRune(payload)
		payload = payload[size:]
		if r != utf8.RuneError && (unicode.IsPrint(r) || r == ' ' || r == '\t') {
			run = append(run, r)
			continue
		}
		flush()
	}
	flush()

	text := sb.String()
	result := &domain.ExtractionResult{DocumentID: documentID, Text: text}
	if strings.TrimSpace(text) == "" {
		result.Failed = true
		result.Warnings = append(result.Warnings,
			domain.NewWarning(domain.ErrExtraction, "no salvageable text in binary payload"))
	}
	return result, nil
}
