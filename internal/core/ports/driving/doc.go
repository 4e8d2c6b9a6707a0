// Package driving defines the interfaces the core exposes to callers:
// the ingestion intake, status query and dictionary administration.
package driving
