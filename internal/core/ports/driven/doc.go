// Package driven defines the interfaces the core consumes: format
// extractors, OCR, durable stores, the task queue and the index sink.
// Adapters implement these; the core never imports an adapter.
package driven
