package meeting

import (
	"context"
	"time"
)

// Store is the persistence contract for meetings, their audio chunks, and
// interventions. Implementations must be safe for concurrent use.
//
// Chunk semantics follow the ingestion pipeline's needs: appends are accepted
// out of order, sequence numbers are unique per meeting (duplicates rejected
// with [ErrDuplicateChunk]), appends to a meeting that is not Active fail
// with [ErrInvalidState], and ListChunks always returns chunks sorted by
// sequence number regardless of arrival order.
type Store interface {
	// CreateMeeting persists a new meeting. The caller supplies the ID.
	CreateMeeting(ctx context.Context, m Meeting) error

	// GetMeeting returns the meeting with the given ID, or [ErrNotFound].
	GetMeeting(ctx context.Context, id string) (Meeting, error)

	// ListMeetings returns all meetings ordered by creation time, newest first.
	ListMeetings(ctx context.Context) ([]Meeting, error)

	// UpdateMeeting persists status, timestamps, and extension changes.
	// Returns [ErrNotFound] for an unknown meeting.
	UpdateMeeting(ctx context.Context, m Meeting) error

	// AppendChunk stores a new audio chunk for the meeting. Fails with
	// [ErrInvalidState] unless the meeting is Active, and with
	// [ErrDuplicateChunk] if the sequence number is taken.
	AppendChunk(ctx context.Context, meetingID string, c Chunk) error

	// GetChunk returns one chunk by meeting and sequence number.
	GetChunk(ctx context.Context, meetingID string, sequence int) (Chunk, error)

	// ListChunks returns the meeting's chunks sorted by sequence number.
	ListChunks(ctx context.Context, meetingID string) ([]Chunk, error)

	// SetTranscript records the transcript for a chunk. The transition is
	// one-way: a chunk that already has a transcript is left unchanged and
	// [ErrInvalidState] is returned.
	SetTranscript(ctx context.Context, meetingID string, sequence int, text string, at time.Time) error

	// AddIntervention persists an accepted intervention.
	AddIntervention(ctx context.Context, meetingID string, iv Intervention) error

	// ListInterventions returns the meeting's interventions ordered by
	// creation time, oldest first.
	ListInterventions(ctx context.Context, meetingID string) ([]Intervention, error)

	// MarkInterventionDisplayed records that a client has shown the
	// intervention. Idempotent. Returns [ErrNotFound] for an unknown
	// meeting or intervention.
	MarkInterventionDisplayed(ctx context.Context, meetingID, interventionID string) error

	// DismissIntervention records when a client dismissed the intervention.
	// Dismissal is one-way: repeat calls leave the original time in place.
	DismissIntervention(ctx context.Context, meetingID, interventionID string, at time.Time) error
}
