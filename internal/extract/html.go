package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
)

// Ensure HTML implements the interface.
var _ driven.Extractor = (*HTML)(nil)

// HTML strips markup and extracts the visible text of a web page.
type HTML struct{}

// NewHTML creates an HTML extractor.
func NewHTML() *HTML {
	return &HTML{}
}

// Name identifies the extractor.
func (e *HTML) Name() string {
	return "html"
}

// Sniff looks for document-level HTML markers near the start of the
// payload, then falls back to the declared type.
func (e *HTML) Sniff(payload []byte, declaredType string) int {
	head := payload
	if len(head) > 512 {
		head = head[:512]
	}
	lowered := bytes.ToLower(head)
	if bytes.Contains(lowered, []byte("<!doctype html")) || bytes.Contains(lowered, []byte("<html")) {
		return driven.ConfidenceMagic
	}
	if bytes.Contains(lowered, []byte("<body")) || bytes.Contains(lowered, []byte("<div")) {
		return driven.ConfidenceStruct + 10
	}
	if declaredType == "text/html" || declaredType == "application/xhtml+xml" {
		return driven.ConfidenceDeclared + 10
	}
	return 0
}

// Extract walks the parse tree collecting text nodes, skipping script
// and style subtrees. Block elements introduce line breaks so the
// normaliser can keep paragraph boundaries.
func (e *HTML) Extract(_ context.Context, req *domain.IngestRequest, documentID string) (*domain.ExtractionResult, error) {
	root, err := html.Parse(bytes.NewReader(req.Payload))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing html: %w", domain.ErrExtraction, err)
	}

	var sb strings.Builder
	walkHTML(root, &sb)
	text := sb.String()

	return &domain.ExtractionResult{
		DocumentID: documentID,
		Text:       text,
		Failed:     strings.TrimSpace(text) == "",
	}, nil
}

// blockElements force a line break around their contents.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true, "section": true, "article": true, "blockquote": true,
}

func walkHTML(node *html.Node, sb *strings.Builder) {
	if node.Type == html.ElementNode {
		switch node.Data {
		case "script", "style", "noscript", "head":
			return
		}
		if blockElements[node.Data] {
			sb.WriteByte('\n')
		}
	}
	if node.Type == html.TextNode {
		sb.WriteString(node.Data)
		sb.WriteByte(' ')
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		walkHTML(child, sb)
	}
	if node.Type == html.ElementNode && blockElements[node.Data] {
		sb.WriteByte('\n')
	}
}
