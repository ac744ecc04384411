package cardex

import (
	"github.com/kailas-cloud/cardex/internal/domain"
	"github.com/kailas-cloud/cardex/internal/usecase/retrieval"
)

// Card is a record submitted for indexing.
type Card = domain.Card

// MatchResult is the closest card returned by QueryBestMatch.
type MatchResult = domain.MatchResult

// Model is an embedding runtime plugged in with WithModel. Encode returns one
// row per token (or a single pooled row); rows are mean-pooled and normalized.
type Model = domain.Model

// Policy decides what happens when the index is missing or failing.
type Policy = retrieval.Policy

// StorageErrorMode is the store-path reaction to index failures.
type StorageErrorMode = retrieval.StorageErrorMode

// Storage error modes.
const (
	StorageErrorPropagate = retrieval.StorageErrorPropagate
	StorageErrorSuppress  = retrieval.StorageErrorSuppress
)

// DefaultPolicy skips when no index is configured and propagates storage errors.
func DefaultPolicy() Policy { return retrieval.DefaultPolicy() }
