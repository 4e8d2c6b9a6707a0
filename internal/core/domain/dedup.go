package domain

import "time"

// DedupRecord maps a fingerprint to its canonical document and the
// duplicates linked to it. Owned by the deduplication layer; eviction
// from the cache removes the acceleration entry but never the durable
// record, and never un-links an already linked duplicate.
type DedupRecord struct {
	// Fingerprint is the scope-qualified fingerprint key.
	Fingerprint string

	// CanonicalID is the document chosen as representative.
	CanonicalID string

	// DuplicateIDs are documents linked to the canonical one.
	DuplicateIDs []string

	// LastSeen is when this fingerprint was last looked up or inserted.
	LastSeen time.Time
}
