package embedding

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/cardex/internal/domain"
)

// ModelProvider hands out the ready model (see Loader).
type ModelProvider interface {
	EnsureReady(ctx context.Context) (domain.Model, error)
}

// Generator turns text into a unit-length vector: token representations are
// mean-pooled and L2-normalized.
type Generator struct {
	models ModelProvider
}

// NewGenerator creates a generator backed by the given model provider.
func NewGenerator(models ModelProvider) *Generator {
	return &Generator{models: models}
}

// Embed implements domain.Embedder. Model load failures keep their
// domain.ErrModelLoad identity; inference failures are wrapped in domain.ErrEmbedding.
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	model, err := g.models.EnsureReady(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := model.Encode(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrEmbedding, model.Name(), err)
	}

	vec, err := domain.MeanPool(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrEmbedding, model.Name(), err)
	}
	if len(vec) != model.Dimensions() {
		return nil, fmt.Errorf("%w: %s: got %d values, model dimension is %d: %w",
			domain.ErrEmbedding, model.Name(), len(vec), model.Dimensions(), domain.ErrDimensionMismatch)
	}

	domain.NormalizeL2(vec)
	return vec, nil
}

// Dimensions returns the vector length of the loaded model, loading it if needed.
func (g *Generator) Dimensions(ctx context.Context) (int, error) {
	model, err := g.models.EnsureReady(ctx)
	if err != nil {
		return 0, err
	}
	return model.Dimensions(), nil
}
