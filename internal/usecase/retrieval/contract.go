package retrieval

import (
	"context"

	"github.com/kailas-cloud/cardex/internal/domain"
)

// Embedder turns text into a normalized vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is the owner-scoped vector store for cards.
type Index interface {
	EnsureCollection(ctx context.Context) error
	RepairCollection(ctx context.Context) error
	Upsert(ctx context.Context, entry domain.IndexEntry) error
	QueryNearest(ctx context.Context, vector []float32, ownerID string, k int) ([]domain.Neighbor, error)
}
