package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Model is a loaded embedding runtime.
type Model interface {
	// Encode returns one representation per attended token. Runtimes that pool
	// on their side return a single row.
	Encode(ctx context.Context, text string) ([][]float32, error)
	// Dimensions is the fixed length of every row.
	Dimensions() int
	Name() string
	Close() error
}

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

var errNoTokens = errors.New("no token representations")

// MeanPool averages token rows into one vector. All rows must share a length.
func MeanPool(rows [][]float32) ([]float32, error) {
	if len(rows) == 0 {
		return nil, errNoTokens
	}
	dim := len(rows[0])
	if dim == 0 {
		return nil, errNoTokens
	}

	sum := make([]float64, dim)
	for i, row := range rows {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrDimensionMismatch, i, len(row), dim)
		}
		for j, v := range row {
			sum[j] += float64(v)
		}
	}

	out := make([]float32, dim)
	n := float64(len(rows))
	for j, s := range sum {
		out[j] = float32(s / n)
	}
	return out, nil
}

// NormalizeL2 scales v in place to unit length. A zero vector is left as is.
func NormalizeL2(v []float32) {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return
	}
	inv := 1 / math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// CosineDistance returns 1 - cos(a, b). Both vectors must have the same length.
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
