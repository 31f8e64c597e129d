package meeting

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

// Compile-time assertion that MemStore satisfies [Store].
var _ Store = (*MemStore)(nil)

// memRecord groups one meeting's state under the store lock.
type memRecord struct {
	meeting       Meeting
	chunks        map[int]Chunk
	interventions []Intervention
}

// MemStore is a thread-safe, in-memory [Store] implementation. It backs
// single-node deployments without a database and all unit tests.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]*memRecord
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]*memRecord)}
}

// CreateMeeting implements [Store.CreateMeeting].
func (s *MemStore) CreateMeeting(ctx context.Context, m Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[m.ID]; exists {
		return fmt.Errorf("meeting %s already exists", m.ID)
	}
	s.records[m.ID] = &memRecord{
		meeting: m,
		chunks:  make(map[int]Chunk),
	}
	return nil
}

// GetMeeting implements [Store.GetMeeting].
func (s *MemStore) GetMeeting(ctx context.Context, id string) (Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return Meeting{}, fmt.Errorf("meeting %s: %w", id, ErrNotFound)
	}
	return rec.meeting, nil
}

// ListMeetings implements [Store.ListMeetings].
func (s *MemStore) ListMeetings(ctx context.Context) ([]Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meetings := make([]Meeting, 0, len(s.records))
	for _, rec := range s.records {
		meetings = append(meetings, rec.meeting)
	}
	sort.Slice(meetings, func(i, j int) bool {
		return meetings[i].CreatedAt.After(meetings[j].CreatedAt)
	})
	return meetings, nil
}

// UpdateMeeting implements [Store.UpdateMeeting].
func (s *MemStore) UpdateMeeting(ctx context.Context, m Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[m.ID]
	if !ok {
		return fmt.Errorf("meeting %s: %w", m.ID, ErrNotFound)
	}
	rec.meeting = m
	return nil
}

// AppendChunk implements [Store.AppendChunk].
func (s *MemStore) AppendChunk(ctx context.Context, meetingID string, c Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[meetingID]
	if !ok {
		return fmt.Errorf("meeting %s: %w", meetingID, ErrNotFound)
	}
	if rec.meeting.Status != StatusActive {
		return fmt.Errorf("append chunk to %s meeting: %w", rec.meeting.Status, ErrInvalidState)
	}
	if _, exists := rec.chunks[c.Sequence]; exists {
		return fmt.Errorf("chunk %d: %w", c.Sequence, ErrDuplicateChunk)
	}
	rec.chunks[c.Sequence] = c
	return nil
}

// GetChunk implements [Store.GetChunk].
func (s *MemStore) GetChunk(ctx context.Context, meetingID string, sequence int) (Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[meetingID]
	if !ok {
		return Chunk{}, fmt.Errorf("meeting %s: %w", meetingID, ErrNotFound)
	}
	c, ok := rec.chunks[sequence]
	if !ok {
		return Chunk{}, fmt.Errorf("chunk %d: %w", sequence, ErrNotFound)
	}
	return c, nil
}

// ListChunks implements [Store.ListChunks]. Chunks are sorted by sequence
// number, recovering the logical order from possibly out-of-order arrival.
func (s *MemStore) ListChunks(ctx context.Context, meetingID string) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[meetingID]
	if !ok {
		return nil, fmt.Errorf("meeting %s: %w", meetingID, ErrNotFound)
	}
	chunks := make([]Chunk, 0, len(rec.chunks))
	for _, c := range rec.chunks {
		chunks = append(chunks, c)
	}
	slices.SortFunc(chunks, func(a, b Chunk) int { return a.Sequence - b.Sequence })
	return chunks, nil
}

// SetTranscript implements [Store.SetTranscript].
func (s *MemStore) SetTranscript(ctx context.Context, meetingID string, sequence int, text string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[meetingID]
	if !ok {
		return fmt.Errorf("meeting %s: %w", meetingID, ErrNotFound)
	}
	c, ok := rec.chunks[sequence]
	if !ok {
		return fmt.Errorf("chunk %d: %w", sequence, ErrNotFound)
	}
	if c.TranscribedAt != nil {
		return fmt.Errorf("chunk %d transcript already set: %w", sequence, ErrInvalidState)
	}
	c.Transcript = text
	c.TranscribedAt = &at
	rec.chunks[sequence] = c
	return nil
}

// AddIntervention implements [Store.AddIntervention].
func (s *MemStore) AddIntervention(ctx context.Context, meetingID string, iv Intervention) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[meetingID]
	if !ok {
		return fmt.Errorf("meeting %s: %w", meetingID, ErrNotFound)
	}
	rec.interventions = append(rec.interventions, iv)
	return nil
}

// MarkInterventionDisplayed implements [Store.MarkInterventionDisplayed].
func (s *MemStore) MarkInterventionDisplayed(ctx context.Context, meetingID, interventionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[meetingID]
	if !ok {
		return fmt.Errorf("meeting %s: %w", meetingID, ErrNotFound)
	}
	for i := range rec.interventions {
		if rec.interventions[i].ID == interventionID {
			rec.interventions[i].Displayed = true
			return nil
		}
	}
	return fmt.Errorf("intervention %s: %w", interventionID, ErrNotFound)
}

// DismissIntervention implements [Store.DismissIntervention].
func (s *MemStore) DismissIntervention(ctx context.Context, meetingID, interventionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[meetingID]
	if !ok {
		return fmt.Errorf("meeting %s: %w", meetingID, ErrNotFound)
	}
	for i := range rec.interventions {
		if rec.interventions[i].ID == interventionID {
			if rec.interventions[i].DismissedAt == nil {
				rec.interventions[i].DismissedAt = &at
			}
			return nil
		}
	}
	return fmt.Errorf("intervention %s: %w", interventionID, ErrNotFound)
}

// ListInterventions implements [Store.ListInterventions].
func (s *MemStore) ListInterventions(ctx context.Context, meetingID string) ([]Intervention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[meetingID]
	if !ok {
		return nil, fmt.Errorf("meeting %s: %w", meetingID, ErrNotFound)
	}
	out := make([]Intervention, len(rec.interventions))
	copy(out, rec.interventions)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
