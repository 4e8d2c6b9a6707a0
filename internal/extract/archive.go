package extract

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
)

// Ensure Archive implements the interface.
var _ driven.Extractor = (*Archive)(nil)

var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// maxMemberSize bounds a single decompressed member, guarding against
// decompression bombs.
const maxMemberSize = 512 << 20

// Archive expands ZIP, TAR and gzip containers into child requests.
// Expansion is bounded: depth is capped, and a member whose content
// hash equals the archive's own hash is skipped so a self-referential
// archive cannot recurse forever.
type Archive struct {
	maxDepth int
}

// NewArchive creates an archive extractor with the given expansion
// depth cap.
func NewArchive(maxDepth int) *Archive {
	return &Archive{maxDepth: maxDepth}
}

// Name identifies the extractor.
func (e *Archive) Name() string {
	return "archive"
}

// Sniff matches container magic bytes. XLSX payloads are ZIPs too, but
// the spreadsheet extractor sniffs higher for those.
func (e *Archive) Sniff(payload []byte, _ string) int {
	if bytes.HasPrefix(payload, zipMagic) {
		return driven.ConfidenceMagic
	}
	if bytes.HasPrefix(payload, []byte{0x1F, 0x8B}) { // gzip
		return driven.ConfidenceMagic
	}
	// POSIX tar carries "ustar" at offset 257.
	if len(payload) > 262 && bytes.Equal(payload[257:262], []byte("ustar")) {
		return driven.ConfidenceMagic
	}
	return 0
}

// Extract lists the members and emits one child request per member.
// An archive produces children instead of text.
func (e *Archive) Extract(_ context.Context, req *domain.IngestRequest, documentID string) (*domain.ExtractionResult, error) {
	result := &domain.ExtractionResult{DocumentID: documentID}

	if req.Depth >= e.maxDepth {
		result.Failed = true
		result.Warnings = append(result.Warnings,
			domain.NewWarning(domain.ErrExtraction,
				fmt.Sprintf("archive nesting exceeds depth limit %d, not expanding", e.maxDepth)))
		return result, nil
	}

	members, err := e.list(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: reading archive: %w", domain.ErrExtraction, err)
	}

	e.expand(req, documentID, members, result)
	return result, nil
}

// expand turns members into child requests. A member whose bytes hash
// to the archive's own hash is a self-reference and is skipped.
func (e *Archive) expand(req *domain.IngestRequest, documentID string, members []archiveMember, result *domain.ExtractionResult) {
	selfHash := contentHash(req.Payload)
	for _, member := range members {
		if contentHash(member.payload) == selfHash {
			result.Warnings = append(result.Warnings,
				domain.NewWarning(domain.ErrExtraction,
					fmt.Sprintf("member %q is the archive itself, skipping", member.name)))
			continue
		}
		parentID := documentID
		result.Children = append(result.Children, domain.IngestRequest{
			ForeignID:    req.ForeignID + "!" + member.name,
			Payload:      member.payload,
			CollectionID: req.CollectionID,
			ParentID:     &parentID,
			Depth:        req.Depth + 1,
		})
	}

	result.Failed = len(result.Children) == 0
	if result.Failed && len(result.Warnings) == 0 {
		result.Warnings = append(result.Warnings,
			domain.NewWarning(domain.ErrExtraction, "archive contains no files"))
	}
}

type archiveMember struct {
	name    string
	payload []byte
}

// list reads the members of whichever container format matches.
func (e *Archive) list(payload []byte) ([]archiveMember, error) {
	switch {
	case bytes.HasPrefix(payload, zipMagic):
		return listZip(payload)
	case bytes.HasPrefix(payload, []byte{0x1F, 0x8B}):
		return listGzip(payload)
	default:
		return listTar(bytes.NewReader(payload))
	}
}

func listZip(payload []byte) ([]archiveMember, error) {
	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil, err
	}
	var members []archiveMember
	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", file.Name, err)
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxMemberSize))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", file.Name, err)
		}
		members = append(members, archiveMember{name: file.Name, payload: content})
	}
	return members, nil
}

func listTar(reader io.Reader) ([]archiveMember, error) {
	tr := tar.NewReader(reader)
	var members []archiveMember
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		content, err := io.ReadAll(io.LimitReader(tr, maxMemberSize))
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", header.Name, err)
		}
		members = append(members, archiveMember{name: header.Name, payload: content})
	}
	return members, nil
}

// listGzip decompresses the stream. If the decompressed bytes are a tar
// archive the members come from there, otherwise the stream is a single
// compressed file.
func listGzip(payload []byte) ([]archiveMember, error) {
	gz, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	content, err := io.ReadAll(io.LimitReader(gz, maxMemberSize))
	if err != nil {
		return nil, err
	}
	if len(content) > 262 && bytes.Equal(content[257:262], []byte("ustar")) {
		return listTar(bytes.NewReader(content))
	}
	name := gz.Name
	if name == "" {
		name = "content"
	}
	name = strings.TrimSuffix(name, "/")
	return []archiveMember{{name: name, payload: content}}, nil
}

// contentHash is the hex SHA-1 of a payload, the same digest used for
// document-scope fingerprints.
func contentHash(payload []byte) string {
	sum := sha1.Sum(payload)
	return hex.EncodeToString(sum[:])
}
