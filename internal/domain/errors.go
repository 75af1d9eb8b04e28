package domain

import "errors"

// Error taxonomy. Callers classify failures with errors.Is; concrete
// causes are wrapped underneath with %w.
var (
	// ErrInvalidConfig marks invalid chunking or retrieval parameters.
	// Fatal to the call, never retried.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbedding marks an embedding service failure after retries.
	ErrEmbedding = errors.New("embedding failed")

	// ErrIndex marks a vector store failure (unavailable service or
	// malformed response) after retries.
	ErrIndex = errors.New("vector index failed")

	// ErrCollectionNotFound is returned by index reads against an
	// absent collection. The retriever maps it to an empty result.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrMemory marks a session store failure. Chat turns proceed
	// without persisted memory rather than failing the request.
	ErrMemory = errors.New("session memory failed")
)
