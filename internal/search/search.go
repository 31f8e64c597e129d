// Package search provides semantic search over meeting transcripts. Each
// transcribed chunk is embedded once at ingestion time; queries embed the
// search text and rank stored chunks by cosine distance.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/stageleft/convoke/internal/meeting"
	"github.com/stageleft/convoke/pkg/provider/embeddings"
)

// defaultTopK bounds result sets when the caller passes topK <= 0.
const defaultTopK = 10

// Entry is one embedded transcript chunk in a vector store.
type Entry struct {
	MeetingID string
	Sequence  int
	Text      string
	Embedding []float32
}

// Match is one search result. Distance is the cosine distance to the query,
// ascending order means most similar first.
type Match struct {
	Sequence int     `json:"sequence_number"`
	Text     string  `json:"text"`
	Distance float64 `json:"distance"`
}

// VectorStore persists embedded chunks and answers nearest-neighbour queries.
// Implementations must be safe for concurrent use.
type VectorStore interface {
	// Upsert stores an entry, replacing any previous entry for the same
	// (meeting, sequence) pair.
	Upsert(ctx context.Context, e Entry) error

	// Nearest returns up to topK entries of the meeting ordered by ascending
	// cosine distance to the query embedding.
	Nearest(ctx context.Context, meetingID string, embedding []float32, topK int) ([]Match, error)
}

// Index ties an embeddings provider to a vector store. It implements
// [meeting.ChunkIndexer] so the ingestion pipeline can feed it directly.
type Index struct {
	emb   embeddings.Provider
	store VectorStore
}

var _ meeting.ChunkIndexer = (*Index)(nil)

// NewIndex returns an Index over the given provider and store.
func NewIndex(emb embeddings.Provider, store VectorStore) *Index {
	return &Index{emb: emb, store: store}
}

// IndexChunk embeds a transcribed chunk and stores it. Chunks without a
// transcript are skipped silently, they carry nothing to search.
func (i *Index) IndexChunk(ctx context.Context, meetingID string, c meeting.Chunk) error {
	text := strings.TrimSpace(c.Transcript)
	if !c.Transcribed() || text == "" {
		return nil
	}

	vec, err := i.emb.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("search: embed chunk %d: %w", c.Sequence, err)
	}
	if err := i.store.Upsert(ctx, Entry{
		MeetingID: meetingID,
		Sequence:  c.Sequence,
		Text:      c.Transcript,
		Embedding: vec,
	}); err != nil {
		return fmt.Errorf("search: store chunk %d: %w", c.Sequence, err)
	}
	return nil
}

// Search embeds the query and returns the meeting's closest chunks.
func (i *Index) Search(ctx context.Context, meetingID, query string, topK int) ([]Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search: empty query: %w", meeting.ErrInvalidArgument)
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	vec, err := i.emb.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}
	matches, err := i.store.Nearest(ctx, meetingID, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search: query store: %w", err)
	}
	return matches, nil
}
