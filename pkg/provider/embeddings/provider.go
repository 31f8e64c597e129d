// Package embeddings defines the Provider interface for text-embedding
// backends. The vectors it yields back the semantic search over meeting
// transcripts; a single Provider always emits vectors of one fixed width, so
// vectors from different providers or models must never be compared.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider maps text to dense float32 vectors.
type Provider interface {
	// Embed returns the vector for one text, with length Dimensions().
	// Model-specific input formatting (retrieval prefixes and the like) is
	// the caller's responsibility.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds all texts in one backend call; result[i] belongs
	// to texts[i]. No partial results: any failure returns a nil slice.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the fixed vector width of this provider's model.
	Dimensions() int

	// ModelID names the underlying model, for logging and for checking
	// that stored vectors and query vectors come from the same space.
	ModelID() string
}
