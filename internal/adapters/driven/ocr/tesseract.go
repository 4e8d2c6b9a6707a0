// Package ocr adapts external OCR engines to the pipeline. The default
// engine shells out to tesseract, reading the image on stdin and the
// recognised text on stdout so no temp files are needed.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
	"github.com/custodia-labs/docforge/internal/logger"
)

// Ensure Tesseract implements the interface.
var _ driven.OCREngine = (*Tesseract)(nil)

// Tesseract runs the tesseract binary per image.
type Tesseract struct {
	binary    string
	languages []string
}

// NewTesseract creates an engine. binary defaults to "tesseract" and
// languages to English when empty.
func NewTesseract(binary string, languages []string) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Tesseract{binary: binary, languages: languages}
}

// Available reports whether the configured binary is on PATH.
func (t *Tesseract) Available() bool {
	_, err := exec.LookPath(t.binary)
	return err == nil
}

// Recognise runs one OCR pass over the image bytes.
func (t *Tesseract) Recognise(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%w: empty image", domain.ErrInvalidInput)
	}

	args := []string{"stdin", "stdout", "-l", strings.Join(t.languages, "+")}
	cmd := exec.CommandContext(ctx, t.binary, args...)
	cmd.Stdin = bytes.NewReader(image)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("ocr: running %s %s", t.binary, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return "", fmt.Errorf("%w: %s: %s", domain.ErrExtraction, err, detail)
		}
		return "", fmt.Errorf("%w: %s", domain.ErrExtraction, err)
	}
	return stdout.String(), nil
}
