package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
)

// Ensure Image implements the interface.
var _ driven.Extractor = (*Image)(nil)

// Image routes raster images through the OCR engine. A corrupt image
// or a missing engine produces a failed result with a warning; the
// document still flows through the rest of the pipeline with empty
// text.
type Image struct {
	ocr driven.OCREngine
}

// NewImage creates an image extractor. ocr may be nil.
func NewImage(ocr driven.OCREngine) *Image {
	return &Image{ocr: ocr}
}

// Name identifies the extractor.
func (e *Image) Name() string {
	return "image"
}

// Raster image magic bytes.
var imageMagics = [][]byte{
	{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, // PNG
	{0xFF, 0xD8, 0xFF},                             // JPEG
	{'G', 'I', 'F', '8'},                           // GIF
	{'I', 'I', 0x2A, 0x00},                         // TIFF little-endian
	{'M', 'M', 0x00, 0x2A},                         // TIFF big-endian
	{'B', 'M'},                                     // BMP
}

// Sniff matches raster image magic bytes.
func (e *Image) Sniff(payload []byte, _ string) int {
	for _, magic := range imageMagics {
		if bytes.HasPrefix(payload, magic) {
			return driven.ConfidenceMagic
		}
	}
	return 0
}

// Extract recognises text in the image. OCR failure (including corrupt
// image data past the magic bytes) is a warning, not a fault.
func (e *Image) Extract(ctx context.Context, req *domain.IngestRequest, documentID string) (*domain.ExtractionResult, error) {
	result := &domain.ExtractionResult{DocumentID: documentID}
	if e.ocr == nil {
		result.Failed = true
		result.Warnings = append(result.Warnings,
			domain.NewWarning(domain.ErrExtraction, "no OCR engine configured"))
		return result, nil
	}

	text, err := e.ocr.Recognise(ctx, req.Payload)
	if err != nil {
		result.Failed = true
		result.Warnings = append(result.Warnings,
			domain.NewWarning(domain.ErrExtraction, fmt.Sprintf("ocr: %v", err)))
		return result, nil
	}
	result.Text = text
	result.Failed = strings.TrimSpace(text) == ""
	return result, nil
}
