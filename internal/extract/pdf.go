package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
)

// Ensure PDF implements the interface.
var _ driven.Extractor = (*PDF)(nil)

// PDF extracts embedded text per page. When a document carries no text
// layer at all (scanned pages), the payload is handed to the OCR engine
// as a last resort.
type PDF struct {
	ocr driven.OCREngine
}

// NewPDF creates a PDF extractor. ocr may be nil, in which case scanned
// documents come back failed with a warning.
func NewPDF(ocr driven.OCREngine) *PDF {
	return &PDF{ocr: ocr}
}

// Name identifies the extractor.
func (e *PDF) Name() string {
	return "pdf"
}

// Sniff matches the PDF magic bytes.
func (e *PDF) Sniff(payload []byte, _ string) int {
	if bytes.HasPrefix(payload, []byte("%PDF-")) {
		return driven.ConfidenceMagic
	}
	return 0
}

// Extract reads the text layer page by page. A single unreadable page
// is recorded as a warning; the rest of the document still comes
// through.
func (e *PDF) Extract(ctx context.Context, req *domain.IngestRequest, documentID string) (*domain.ExtractionResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(req.Payload), int64(len(req.Payload)))
	if err != nil {
		return nil, fmt.Errorf("%w: opening pdf: %w", domain.ErrExtraction, err)
	}

	result := &domain.ExtractionResult{DocumentID: documentID}
	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			result.Warnings = append(result.Warnings,
				domain.NewWarning(domain.ErrExtraction, fmt.Sprintf("page %d unreadable", i)))
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			result.Warnings = append(result.Warnings,
				domain.NewWarning(domain.ErrExtraction, fmt.Sprintf("page %d: %v", i, err)))
			continue
		}
		result.Segments = append(result.Segments, domain.Segment{Number: i, Text: text})
		sb.WriteString(text)
		sb.WriteByte('\n')
	}
	result.Text = sb.String()

	if strings.TrimSpace(result.Text) == "" {
		return e.recogniseScanned(ctx, req.Payload, result)
	}
	return result, nil
}

// recogniseScanned routes a text-less document through OCR. Scanned
// PDFs have page images and no text layer.
func (e *PDF) recogniseScanned(ctx context.Context, payload []byte, result *domain.ExtractionResult) (*domain.ExtractionResult, error) {
	if e.ocr == nil {
		result.Failed = true
		result.Warnings = append(result.Warnings,
			domain.NewWarning(domain.ErrExtraction, "no text layer and no OCR engine configured"))
		return result, nil
	}
	text, err := e.ocr.Recognise(ctx, payload)
	if err != nil {
		result.Failed = true
		result.Warnings = append(result.Warnings,
			domain.NewWarning(domain.ErrExtraction, fmt.Sprintf("ocr: %v", err)))
		return result, nil
	}
	result.Text = text
	result.Segments = nil
	result.Failed = strings.TrimSpace(text) == ""
	return result, nil
}
