package rag

import (
	"context"
	"hash/fnv"
	"math"
)

// MockEmbedder produces deterministic pseudo-embeddings from a text
// hash. It stands in for a real embedding service in tests and demos:
// equal texts always embed equally, and different texts almost always
// land on different directions.
type MockEmbedder struct {
	dim int
}

// NewMockEmbedder creates a mock embedder producing dim-sized vectors.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{dim: dim}
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64() | 1

	vec := make([]float64, m.dim)
	for i := range vec {
		// xorshift64 keeps the sequence deterministic per text.
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		vec[i] = float64(int64(state)) / float64(math.MaxInt64)
	}
	return normalize(vec), nil
}

func (m *MockEmbedder) Dim() int { return m.dim }

func normalize(vec []float64) []float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}
