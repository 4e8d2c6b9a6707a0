package domain

// FingerprintScope identifies what a fingerprint was computed over.
type FingerprintScope string

// Fingerprint scopes.
const (
	// ScopeDocument covers the full canonical text, order-sensitive
	// but whitespace-insensitive.
	ScopeDocument FingerprintScope = "document"

	// ScopeEntityName covers a name-like token run as an unordered
	// token set, so "Doe, John" and "John Doe" fingerprint identically.
	ScopeEntityName FingerprintScope = "entity-name"

	// ScopePhone covers a recognised phone number in E.164 form.
	ScopePhone FingerprintScope = "phone"
)

// Span is a half-open [Start, End) byte range into canonical text.
type Span struct {
	Start int
	End   int
}

// Fingerprint is a deterministic, content-derived value used to detect
// identical or equivalent content. Two documents with an identical
// document-scope fingerprint are duplicates regardless of origin.
type Fingerprint struct {
	// Scope identifies what the fingerprint was computed over.
	Scope FingerprintScope

	// Value is the hex-encoded digest.
	Value string

	// Spans locate the source text, when the scope is narrower than
	// the whole document.
	Spans []Span
}

// Key returns the scope-qualified lookup key for this fingerprint.
// Scope is part of identity: an entity-name digest never collides with
// a document digest of the same bytes.
func (f Fingerprint) Key() string {
	return string(f.Scope) + ":" + f.Value
}
