package domain

import "time"

// IngestRequest is a single item submitted for ingestion by a crawler or
// bulk upload. It is immutable once created; the coordinator converts it
// into the document's first task.
type IngestRequest struct {
	// ForeignID is the submitter's stable identifier for this item
	// (file path, URL, message ID). Used for idempotent resubmission.
	ForeignID string

	// Payload is the raw bytes. Either Payload or StorageRef is set.
	Payload []byte

	// StorageRef points at an externally stored payload when the bytes
	// are not carried inline.
	StorageRef string

	// DeclaredType is the advisory media type supplied by the submitter.
	// Extractors re-sniff before trusting it.
	DeclaredType string

	// CollectionID groups documents from the same crawl or upload batch.
	CollectionID string

	// ParentID links to the document this request was expanded from
	// (archive members). Nil for top-level submissions.
	ParentID *string

	// Depth is the archive expansion depth. Zero for top-level
	// submissions; bounded by Settings.MaxArchiveDepth.
	Depth int
}

// Segment is the text of one page or part of a document.
// Page-aware extractors (PDF, OCR) populate one segment per page.
type Segment struct {
	// Number is the 1-based page or part number.
	Number int

	// Text is the extracted text of this segment.
	Text string
}

// TableRecord is one row of a tabular document (spreadsheet, CSV).
type TableRecord struct {
	// Sheet is the 0-based sheet index. Always 0 for CSV.
	Sheet int

	// Row is the 0-based row index within the sheet.
	Row int

	// Cells holds the row's values in column order.
	Cells []string
}

// ExtractionResult is the output of a format extractor.
// It is never mutated after creation: a failed extraction is a result
// with empty text and a populated warning list, not a propagated fault.
type ExtractionResult struct {
	// DocumentID identifies the document this text belongs to.
	DocumentID string

	// Text is the full extracted text. Empty when Failed is true.
	Text string

	// Segments is per-page/per-part text, when the format has pages.
	Segments []Segment

	// Records holds tabular rows, when the format is tabular.
	Records []TableRecord

	// Children are expansion requests produced by archive extractors.
	// An archive yields children instead of text.
	Children []IngestRequest

	// Warnings records non-fatal extraction problems.
	Warnings []Warning

	// Failed marks an extraction that produced no usable text.
	Failed bool

	// Extractor names the adapter that produced this result.
	Extractor string
}

// LanguageGuess is a detected language with its estimated proportion
// of the document.
type LanguageGuess struct {
	// Code is the ISO 639-3 language code (e.g. "eng").
	Code string

	// Confidence is the detector's confidence in [0, 1].
	Confidence float64
}

// NormalisedText is the canonical form of a document's text.
// Derived deterministically from an ExtractionResult; never mutated.
type NormalisedText struct {
	// DocumentID identifies the document this text belongs to.
	DocumentID string

	// Text is the canonical text: NFKC normalised, control characters
	// stripped, whitespace collapsed.
	Text string

	// Latin is the transliterated working form of Text. It is a parallel
	// derived field, not an overwrite; consumers choose which to use.
	Latin string

	// Languages are detected languages ranked by estimated proportion.
	Languages []LanguageGuess

	// Warnings records non-fatal normalisation problems.
	Warnings []Warning
}

// DocumentStage is a document's position in the ingestion pipeline.
type DocumentStage string

// Pipeline stages in order. Deduplicated, Indexed and Failed are terminal.
const (
	StageReceived       DocumentStage = "received"
	StageExtracting     DocumentStage = "extracting"
	StageNormalising    DocumentStage = "normalising"
	StageFingerprinting DocumentStage = "fingerprinting"
	StageDeduplicated   DocumentStage = "deduplicated"
	StageMatching       DocumentStage = "matching"
	StageIndexed        DocumentStage = "indexed"
	StageFailed         DocumentStage = "failed"
)

// Terminal returns true if no further pipeline work happens in this stage.
func (s DocumentStage) Terminal() bool {
	return s == StageDeduplicated || s == StageIndexed || s == StageFailed
}

// DocumentStatus is the externally visible state of a document.
type DocumentStatus struct {
	// DocumentID is the stable identifier assigned at submission.
	DocumentID string

	// ForeignID is the submitter's identifier from the IngestRequest.
	ForeignID string

	// CollectionID groups documents from the same crawl or upload batch.
	CollectionID string

	// Stage is the document's current pipeline stage.
	Stage DocumentStage

	// DuplicateOf is the canonical document ID when Stage is deduplicated.
	DuplicateOf string

	// FailedStage is the task stage that exhausted its retries when
	// Stage is failed. The maintenance sweep resumes from here.
	FailedStage TaskStage

	// LastErrorClass is the taxonomy class of the last error, if any.
	LastErrorClass string

	// LastError is the last error message, if any.
	LastError string

	// UpdatedAt is when the status last changed.
	UpdatedAt time.Time
}
