// Package encoder maps cleaned text to fixed-dimensionality embedding
// vectors. It wraps a provider with two policies the providers themselves do
// not enforce: empty input encodes to the zero vector without a model call,
// and every returned vector must match the configured dimensionality.
//
// The zero-vector convention applies identically to the single and batch
// paths, so an empty-bodied issue embeds to the same vector at ingestion and
// at query time.
package encoder

import (
	"context"
	"fmt"
	"strings"

	"github.com/alexburke/dupfinder/internal/provider"
)

const defaultBatchSize = 32

// Encoder converts text to embedding vectors of a fixed dimensionality.
// It is safe for concurrent use; the underlying providers are stateless
// HTTP clients.
type Encoder struct {
	embedder  provider.BatchEmbedder
	dimension int
	batchSize int
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithBatchSize sets the maximum number of texts sent to the provider in a
// single batch call.
func WithBatchSize(n int) Option {
	return func(e *Encoder) { e.batchSize = n }
}

// New creates an Encoder over the given provider. dimension must match the
// model's output dimensionality; mixing dimensionalities within one
// collection is prevented downstream by the vector store.
func New(embedder provider.BatchEmbedder, dimension int, opts ...Option) (*Encoder, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("encoder dimension must be positive, got %d", dimension)
	}
	e := &Encoder{
		embedder:  embedder,
		dimension: dimension,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.batchSize <= 0 {
		e.batchSize = defaultBatchSize
	}
	return e, nil
}

// Dimension returns the fixed dimensionality of produced vectors.
func (e *Encoder) Dimension() int {
	return e.dimension
}

// ZeroVector returns the canonical embedding for empty or whitespace-only
// text.
func (e *Encoder) ZeroVector() []float32 {
	return make([]float32, e.dimension)
}

// Encode returns the embedding vector for a single text. Empty or
// whitespace-only text yields the zero vector without invoking the model.
func (e *Encoder) Encode(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return e.ZeroVector(), nil
	}

	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != e.dimension {
		return nil, fmt.Errorf("model returned %d dimensions, want %d", len(vec), e.dimension)
	}
	return vec, nil
}

// EncodeBatch returns embedding vectors for multiple texts, preserving input
// order. Empty entries are never sent to the provider; they get the same zero
// vector as the single-text path, so batch and single encoding agree.
func (e *Encoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	var pending []string
	var pendingIdx []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			vectors[i] = e.ZeroVector()
			continue
		}
		pending = append(pending, text)
		pendingIdx = append(pendingIdx, i)
	}

	for start := 0; start < len(pending); start += e.batchSize {
		end := min(start+e.batchSize, len(pending))

		batch, err := e.embedder.EmbedBatch(ctx, pending[start:end])
		if err != nil {
			return nil, err
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", provider.ErrInvalidResponse, len(batch), end-start)
		}

		for j, vec := range batch {
			if len(vec) != e.dimension {
				return nil, fmt.Errorf("model returned %d dimensions, want %d", len(vec), e.dimension)
			}
			vectors[pendingIdx[start+j]] = vec
		}
	}

	return vectors, nil
}
