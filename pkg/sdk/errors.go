package cardex

import "github.com/kailas-cloud/cardex/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidCard            = domain.ErrInvalidCard
	ErrInvalidQuery           = domain.ErrInvalidQuery
	ErrOwnerRequired          = domain.ErrOwnerRequired
	ErrModelLoad              = domain.ErrModelLoad
	ErrEmbedding              = domain.ErrEmbedding
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrDimensionMismatch      = domain.ErrDimensionMismatch
	ErrIndexUnavailable       = domain.ErrIndexUnavailable
	ErrCollectionCorrupt      = domain.ErrCollectionCorrupt
	ErrIndexNotConfigured     = domain.ErrIndexNotConfigured
)
