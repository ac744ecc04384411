package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kailas-cloud/cardex/internal/domain"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestGenerator_MeanPoolsAndNormalizes(t *testing.T) {
	model := &stubModel{dims: 2, encodeFn: func(_ context.Context, _ string) ([][]float32, error) {
		return [][]float32{{2, 0}, {4, 6}}, nil
	}}
	g := NewGenerator(&staticProvider{model: model})

	vec, err := g.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// mean = (3, 3) -> (1/sqrt2, 1/sqrt2)
	want := float32(1 / math.Sqrt2)
	if math.Abs(float64(vec[0]-want)) > 1e-6 || math.Abs(float64(vec[1]-want)) > 1e-6 {
		t.Errorf("unexpected vector: %v", vec)
	}
	if math.Abs(norm(vec)-1) > 1e-6 {
		t.Errorf("expected unit norm, got %f", norm(vec))
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	g := NewGenerator(&staticProvider{model: &stubModel{dims: 8}})

	a, err := g.Embed(context.Background(), "Rust ownership borrow checker")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := g.Embed(context.Background(), "Rust ownership borrow checker")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestGenerator_ModelLoadErrorKeepsIdentity(t *testing.T) {
	loadErr := errors.Join(domain.ErrModelLoad, errors.New("no weights"))
	g := NewGenerator(&staticProvider{err: loadErr})

	_, err := g.Embed(context.Background(), "x")
	if !errors.Is(err, domain.ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad, got %v", err)
	}
	if errors.Is(err, domain.ErrEmbedding) {
		t.Error("load failures must not be reported as inference failures")
	}
}

func TestGenerator_InferenceError(t *testing.T) {
	model := &stubModel{dims: 2, encodeFn: func(_ context.Context, _ string) ([][]float32, error) {
		return nil, errors.New("runtime crashed")
	}}
	g := NewGenerator(&staticProvider{model: model})

	if _, err := g.Embed(context.Background(), "x"); !errors.Is(err, domain.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
}

func TestGenerator_EmptyTokens(t *testing.T) {
	model := &stubModel{dims: 2, encodeFn: func(_ context.Context, _ string) ([][]float32, error) {
		return nil, nil
	}}
	g := NewGenerator(&staticProvider{model: model})

	if _, err := g.Embed(context.Background(), ""); !errors.Is(err, domain.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
}

func TestGenerator_DimensionMismatch(t *testing.T) {
	model := &stubModel{dims: 3, encodeFn: func(_ context.Context, _ string) ([][]float32, error) {
		return [][]float32{{1, 2}}, nil
	}}
	g := NewGenerator(&staticProvider{model: model})

	_, err := g.Embed(context.Background(), "x")
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Errorf("expected ErrEmbedding, got %v", err)
	}
}

func TestGenerator_Dimensions(t *testing.T) {
	g := NewGenerator(&staticProvider{model: &stubModel{dims: 384}})

	d, err := g.Dimensions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 384 {
		t.Errorf("expected 384, got %d", d)
	}
}
