package domain

import "errors"

var (
	// ErrInvalidCard signals a card missing a required field.
	ErrInvalidCard = errors.New("invalid card")
	// ErrInvalidQuery signals an empty query text.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrOwnerRequired signals a lookup without an owner scope.
	ErrOwnerRequired = errors.New("owner id is required")

	// ErrModelLoad signals that the embedding model could not be initialized.
	// The loader stays unloaded, so the next request retries.
	ErrModelLoad = errors.New("embedding model load failed")
	// ErrEmbedding signals an inference failure on a loaded model.
	ErrEmbedding = errors.New("embedding failed")
	// ErrEmbeddingProviderError signals a remote embedding API failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrDimensionMismatch signals a vector whose length differs from the model dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrIndexUnavailable signals a failed collection, upsert or query call on the vector index.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrCollectionCorrupt signals a collection that exists but does not match
	// the expected schema, so it has to be rebuilt before use.
	ErrCollectionCorrupt = errors.New("vector collection corrupt")
	// ErrIndexNotConfigured signals that no vector index endpoint is configured.
	ErrIndexNotConfigured = errors.New("vector index not configured")
)
