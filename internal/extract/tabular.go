package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/custodia-labs/docforge/internal/core/domain"
	"github.com/custodia-labs/docforge/internal/core/ports/driven"
)

// Ensure CSV implements the interface.
var _ driven.Extractor = (*CSV)(nil)

// CSV extracts delimited text files into table records. The full text
// is the cells joined row by row, so fingerprinting and matching see
// the same content the records carry.
type CSV struct{}

// NewCSV creates a CSV extractor.
func NewCSV() *CSV {
	return &CSV{}
}

// Name identifies the extractor.
func (e *CSV) Name() string {
	return "csv"
}

// Sniff accepts declared CSV types, or payloads whose first lines share
// a consistent comma or semicolon count.
func (e *CSV) Sniff(payload []byte, declaredType string) int {
	if declaredType == "text/csv" || declaredType == "text/tab-separated-values" {
		return driven.ConfidenceStruct + 20
	}
	if !utf8.Valid(payload) {
		return 0
	}
	if looksDelimited(payload, ',') || looksDelimited(payload, ';') || looksDelimited(payload, '\t') {
		return driven.ConfidenceStruct + 10
	}
	return 0
}

// looksDelimited reports whether the first few lines agree on a
// non-zero delimiter count.
func looksDelimited(payload []byte, delim byte) bool {
	lines := bytes.SplitN(payload, []byte("\n"), 5)
	if len(lines) < 2 {
		return false
	}
	want := -1
	checked := 0
	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		count := bytes.Count(line, []byte{delim})
		if count == 0 {
			return false
		}
		if want == -1 {
			want = count
		} else if count != want {
			return false
		}
		checked++
	}
	return checked >= 2
}

// Extract parses the rows. The reader is lenient about ragged rows;
// a hard parse error partway through keeps the rows read so far and
// records a warning.
func (e *CSV) Extract(_ context.Context, req *domain.IngestRequest, documentID string) (*domain.ExtractionResult, error) {
	reader := csv.NewReader(bytes.NewReader(req.Payload))
	reader.FieldsPerRecord = -1
	reader.Comma = detectDelimiter(req.Payload)

	result := &domain.ExtractionResult{DocumentID: documentID}
	var sb strings.Builder
	row := 0
	for {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.Warnings = append(result.Warnings,
				domain.NewWarning(domain.ErrExtraction, fmt.Sprintf("row %d: %v", row, err)))
			break
		}
		result.Records = append(result.Records, domain.TableRecord{Row: row, Cells: cells})
		sb.WriteString(strings.Join(cells, " "))
		sb.WriteByte('\n')
		row++
	}
	result.Text = sb.String()
	result.Failed = len(result.Records) == 0
	return result, nil
}

func detectDelimiter(payload []byte) rune {
	for _, delim := range []byte{',', ';', '\t'} {
		if looksDelimited(payload, delim) {
			return rune(delim)
		}
	}
	return ','
}

// Ensure Spreadsheet implements the interface.
var _ driven.Extractor = (*Spreadsheet)(nil)

// Spreadsheet extracts XLSX workbooks sheet by sheet.
type Spreadsheet struct{}

// NewSpreadsheet creates an XLSX extractor.
func NewSpreadsheet() *Spreadsheet {
	return &Spreadsheet{}
}

// Name identifies the extractor.
func (e *Spreadsheet) Name() string {
	return "xlsx"
}

const xlsxDeclaredType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sniff requires the ZIP container magic plus a workbook entry, so
// plain archives stay with the archive extractor.
func (e *Spreadsheet) Sniff(payload []byte, declaredType string) int {
	if !bytes.HasPrefix(payload, zipMagic) {
		return 0
	}
	if bytes.Contains(payload, []byte("xl/workbook.xml")) {
		return driven.ConfidenceMagic + 5
	}
	if declaredType == xlsxDeclaredType {
		return driven.ConfidenceMagic + 5
	}
	return 0
}

// Extract reads every sheet into records. Sheets that fail to read are
// recorded as warnings; the workbook is only failed when nothing at all
// could be read.
func (e *Spreadsheet) Extract(_ context.Context, req *domain.IngestRequest, documentID string) (*domain.ExtractionResult, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(req.Payload))
	if err != nil {
		return nil, fmt.Errorf("%w: opening workbook: %w", domain.ErrExtraction, err)
	}
	defer workbook.Close()

	result := &domain.ExtractionResult{DocumentID: documentID}
	var sb strings.Builder
	for sheetIdx, sheet := range workbook.GetSheetList() {
		rows, err := workbook.GetRows(sheet)
		if err != nil {
			result.Warnings = append(result.Warnings,
				domain.NewWarning(domain.ErrExtraction, fmt.Sprintf("sheet %q: %v", sheet, err)))
			continue
		}
		for rowIdx, cells := range rows {
			result.Records = append(result.Records, domain.TableRecord{
				Sheet: sheetIdx,
				Row:   rowIdx,
				Cells: cells,
			})
			sb.WriteString(strings.Join(cells, " "))
			sb.WriteByte('\n')
		}
	}
	result.Text = sb.String()
	result.Failed = len(result.Records) == 0
	return result, nil
}
