// Package hashing provides a deterministic bag-of-words embedding model for
// development and tests. Each lowercase word maps to a fixed pseudo-random
// vector, so texts sharing words end up close under cosine distance.
package hashing

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"unicode"

	"github.com/kailas-cloud/cardex/internal/domain"
)

// DefaultDimensions is used when no dimension is configured.
const DefaultDimensions = 384

// Model implements domain.Model without any external runtime.
type Model struct {
	dimensions int
}

// New returns a model producing vectors of the given length.
func New(dimensions int) *Model {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Model{dimensions: dimensions}
}

// Load returns a load function for the model. It never fails.
func Load(dimensions int) func(ctx context.Context) (domain.Model, error) {
	return func(_ context.Context) (domain.Model, error) {
		return New(dimensions), nil
	}
}

// Encode returns one row per word. Text without words yields one row for the whole string.
func (m *Model) Encode(ctx context.Context, text string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	words := tokenize(text)
	if len(words) == 0 {
		words = []string{text}
	}

	rows := make([][]float32, len(words))
	for i, w := range words {
		rows[i] = m.wordVector(w)
	}
	return rows, nil
}

// Dimensions implements domain.Model.
func (m *Model) Dimensions() int { return m.dimensions }

// Name implements domain.Model.
func (m *Model) Name() string { return "hashing" }

// Close implements domain.Model.
func (m *Model) Close() error { return nil }

func (m *Model) wordVector(word string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(word))
	seed := h.Sum64()

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	v := make([]float32, m.dimensions)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return v
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
