package bus

import "time"

// EventKind identifies the concrete type of an [Event]. The set is closed;
// subscribers may switch exhaustively on it.
type EventKind string

const (
	KindTranscriptionStarted   EventKind = "transcription_started"
	KindTranscriptionCompleted EventKind = "transcription_completed"
	KindTranscriptionFailed    EventKind = "transcription_failed"
	KindInterventionTriggered  EventKind = "intervention_triggered"
	KindInterventionQuestion   EventKind = "intervention_question"
	KindMeetingStarted         EventKind = "meeting_started"
	KindMeetingExtended        EventKind = "meeting_extended"
	KindMeetingEnded           EventKind = "meeting_ended"
	KindError                  EventKind = "error"
)

// Event is one entry in a meeting's live event stream. Implementations form
// a closed set — one struct per [EventKind].
type Event interface {
	// Kind returns the event's discriminator for the wire envelope.
	Kind() EventKind
}

// TranscriptionStarted is published when a chunk enters transcription.
type TranscriptionStarted struct {
	Sequence        int     `json:"sequence_number"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func (TranscriptionStarted) Kind() EventKind { return KindTranscriptionStarted }

// TranscriptionCompleted carries the finished transcript for a chunk.
type TranscriptionCompleted struct {
	Sequence        int     `json:"sequence_number"`
	Text            string  `json:"text"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func (TranscriptionCompleted) Kind() EventKind { return KindTranscriptionCompleted }

// TranscriptionFailed reports a non-fatal transcription failure for a chunk.
type TranscriptionFailed struct {
	Sequence int    `json:"sequence_number"`
	Error    string `json:"error"`
}

func (TranscriptionFailed) Kind() EventKind { return KindTranscriptionFailed }

// InterventionTriggered announces that a coaching trigger was accepted.
type InterventionTriggered struct {
	TriggerKind string `json:"kind"`
	Rationale   string `json:"rationale"`
}

func (InterventionTriggered) Kind() EventKind { return KindInterventionTriggered }

// InterventionQuestion carries the coaching question for an accepted trigger.
type InterventionQuestion struct {
	TriggerKind string `json:"kind"`
	Question    string `json:"question"`
}

func (InterventionQuestion) Kind() EventKind { return KindInterventionQuestion }

// MeetingStarted is published on the Preparing→Active transition.
type MeetingStarted struct {
	MeetingID    string    `json:"meeting_id"`
	StartedAt    time.Time `json:"started_at"`
	TotalMinutes int       `json:"total_minutes"`
}

func (MeetingStarted) Kind() EventKind { return KindMeetingStarted }

// MeetingExtended is published when the meeting's time budget is extended.
type MeetingExtended struct {
	MeetingID string `json:"meeting_id"`
	Seconds   int    `json:"seconds"`
}

func (MeetingExtended) Kind() EventKind { return KindMeetingExtended }

// MeetingEnded is published on the Active→Ended transition.
type MeetingEnded struct {
	MeetingID string    `json:"meeting_id"`
	EndedAt   time.Time `json:"ended_at"`
}

func (MeetingEnded) Kind() EventKind { return KindMeetingEnded }

// Error reports an out-of-band pipeline error to subscribers.
type Error struct {
	Message string `json:"message"`
}

func (Error) Kind() EventKind { return KindError }

// Envelope is the JSON wire format delivered to stream clients:
// a discriminator, the event payload, and the publish timestamp.
type Envelope struct {
	Type      EventKind `json:"type"`
	Data      Event     `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEnvelope wraps ev for wire delivery, stamping the current time.
func NewEnvelope(ev Event) Envelope {
	return Envelope{Type: ev.Kind(), Data: ev, Timestamp: time.Now().UTC()}
}
