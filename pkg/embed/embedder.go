// Package embed provides the Embedder contract and HTTP-backed
// implementations used to turn a Node's canonical text into a vector for
// similarity, dedup, and contradiction scoring.
package embed

import (
	"context"

	"github.com/cortex-db/cortex/pkg/cortex"
)

// Embedder turns text into a fixed-dimensionality vector, ported from the
// original vector/embedding.rs trait.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}

// EmbedNode is a convenience wrapper that feeds a Node's canonical
// embedding-input text (cortex.EmbeddingInput) to e.
func EmbedNode(ctx context.Context, e Embedder, n cortex.Node) ([]float32, error) {
	return e.Embed(ctx, cortex.EmbeddingInput(n))
}
