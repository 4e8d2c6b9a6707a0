// Package domain contains the core business entities of the ingestion
// pipeline: requests, extraction artifacts, fingerprints, entity spans,
// tasks and the error taxonomy. It has no dependencies on other layers.
package domain
