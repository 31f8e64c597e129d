package search

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemVectorStore is an in-memory [VectorStore] doing exact cosine-distance
// scans. Suitable for tests and single-node deployments without PostgreSQL.
type MemVectorStore struct {
	mu      sync.RWMutex
	entries map[string]map[int]Entry
}

var _ VectorStore = (*MemVectorStore)(nil)

// NewMemVectorStore returns an empty in-memory store.
func NewMemVectorStore() *MemVectorStore {
	return &MemVectorStore{entries: make(map[string]map[int]Entry)}
}

// Upsert implements [VectorStore].
func (s *MemVectorStore) Upsert(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byseq, ok := s.entries[e.MeetingID]
	if !ok {
		byseq = make(map[int]Entry)
		s.entries[e.MeetingID] = byseq
	}
	byseq[e.Sequence] = e
	return nil
}

// Nearest implements [VectorStore].
func (s *MemVectorStore) Nearest(_ context.Context, meetingID string, embedding []float32, topK int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := []Match{}
	for _, e := range s.entries[meetingID] {
		matches = append(matches, Match{
			Sequence: e.Sequence,
			Text:     e.Text,
			Distance: cosineDistance(embedding, e.Embedding),
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Sequence < matches[j].Sequence
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// cosineDistance is 1 minus the cosine similarity of a and b. Mismatched or
// zero-length vectors are maximally distant.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
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
