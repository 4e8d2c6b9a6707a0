package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates no extractor accepts the payload.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrQueueClosed indicates the task queue has been shut down.
	ErrQueueClosed = errors.New("queue closed")
)

// Error taxonomy. Warnings and task errors carry one of these classes so
// the status query can report a coherent, explainable state.
var (
	// ErrExtraction indicates an unreadable, corrupt or unsupported
	// payload. Recorded as a warning; the pipeline continues with
	// empty text rather than aborting.
	ErrExtraction = errors.New("extraction failure")

	// ErrNormalisation indicates an encoding malformed beyond repair.
	// Same continue-with-warning policy as extraction.
	ErrNormalisation = errors.New("normalisation failure")

	// ErrRecognition indicates one recogniser could not resolve its
	// input. Spans are omitted for that recogniser only.
	ErrRecognition = errors.New("recognition failure")

	// ErrTransient indicates unreachable infrastructure (queue,
	// storage, index sink). Retried with backoff.
	ErrTransient = errors.New("transient infrastructure failure")

	// ErrPermanent indicates exhausted retries or a fatal deadline
	// breach. Surfaced to the status query; never retried again
	// outside the maintenance sweep.
	ErrPermanent = errors.New("permanent failure")
)

// ErrorClass maps an error to its taxonomy class name for status
// reporting. Unclassified errors report as transient so they stay
// retryable.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrExtraction):
		return "extraction"
	case errors.Is(err, ErrNormalisation):
		return "normalisation"
	case errors.Is(err, ErrRecognition):
		return "recognition"
	case errors.Is(err, ErrPermanent):
		return "permanent"
	default:
		return "transient"
	}
}

// Warning is a recorded, non-fatal problem attached to a pipeline
// artifact. No error is ever swallowed without being recorded.
type Warning struct {
	// Class is the taxonomy class ("extraction", "normalisation", ...).
	Class string

	// Message describes the problem.
	Message string
}

// NewWarning builds a warning classified from err with a message.
func NewWarning(err error, message string) Warning {
	return Warning{Class: ErrorClass(err), Message: message}
}
