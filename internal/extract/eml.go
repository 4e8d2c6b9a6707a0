package extract

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
)

// Ensure Email implements the interface.
var _ driven.Extractor = (*Email)(nil)

// Email extracts RFC 5322 messages: subject, sender, recipients and
// body text, with attachments expanded into child requests the same way
// archive members are.
type Email struct {
	maxDepth int
}

// NewEmail creates an email extractor. Attachments deeper than maxDepth
// expansion levels are not expanded.
func NewEmail(maxDepth int) *Email {
	return &Email{maxDepth: maxDepth}
}

// Name identifies the extractor.
func (e *Email) Name() string {
	return "eml"
}

// headerLine matches an RFC 5322 header field at the start of a line.
var headerLine = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*:\s`)

// Sniff looks for message headers in the first lines of the payload.
func (e *Email) Sniff(payload []byte, declaredType string) int {
	if declaredType == "message/rfc822" {
		return driven.ConfidenceMagic
	}
	head := payload
	if len(head) > 2048 {
		head = head[:2048]
	}
	lines := bytes.Split(head, []byte("\n"))
	matched := 0
	for i, line := range lines {
		if i >= 5 {
			break
		}
		if headerLine.Match(line) {
			matched++
		}
	}
	if matched >= 3 &&
		(bytes.Contains(head, []byte("From:")) || bytes.Contains(head, []byte("Received:"))) {
		return driven.ConfidenceStruct + 15
	}
	return 0
}

// Extract parses the MIME envelope. Body text comes from the plain part
// when present, the HTML part otherwise; attachments become children.
func (e *Email) Extract(_ context.Context, req *domain.IngestRequest, documentID string) (*domain.ExtractionResult, error) {
	envelope, err := enmime.ReadEnvelope(bytes.NewReader(req.Payload))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing message: %w", domain.ErrExtraction, err)
	}

	result := &domain.ExtractionResult{DocumentID: documentID}
	for _, envErr := range envelope.Errors {
		result.Warnings = append(result.Warnings,
			domain.NewWarning(domain.ErrExtraction, envErr.Error()))
	}

	var sb strings.Builder
	for _, header := range []string{"Subject", "From", "To", "Cc", "Date"} {
		if value := envelope.GetHeader(header); value != "" {
			sb.WriteString(header)
			sb.WriteString(": ")
			sb.WriteString(value)
			sb.WriteByte('\n')
		}
	}
	sb.WriteByte('\n')
	if envelope.Text != "" {
		sb.WriteString(envelope.Text)
	} else if envelope.HTML != "" {
		// Fall back to the HTML part stripped of markup.
		html := NewHTML()
		stripped, stripErr := html.Extract(context.Background(), &domain.IngestRequest{
			Payload: []byte(envelope.HTML),
		}, documentID)
		if stripErr == nil {
			sb.WriteString(stripped.Text)
		}
	}
	result.Text = sb.String()

	if req.Depth >= e.maxDepth {
		if len(envelope.Attachments) > 0 {
			result.Warnings = append(result.Warnings,
				domain.NewWarning(domain.ErrExtraction, "attachment expansion depth limit reached"))
		}
	} else {
		for i, attachment := range envelope.Attachments {
			name := attachment.FileName
			if name == "" {
				name = fmt.Sprintf("attachment-%d", i)
			}
			parentID := documentID
			result.Children = append(result.Children, domain.IngestRequest{
				ForeignID:    req.ForeignID + "!" + name,
				Payload:      attachment.Content,
				DeclaredType: attachment.ContentType,
				CollectionID: req.CollectionID,
				ParentID:     &parentID,
				Depth:        req.Depth + 1,
			})
		}
	}

	result.Failed = strings.TrimSpace(result.Text) == "" && len(result.Children) == 0
	return result, nil
}
