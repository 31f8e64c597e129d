// Package meeting defines the core domain types of a live facilitated
// meeting — the meeting record itself, its audio chunks and interventions —
// together with the [Store] persistence contract and the [Coordinator] that
// drives the ingestion pipeline.
package meeting

import (
	"time"

	"github.com/stageleft/convoke/internal/plan"
)

// Status is the lifecycle state of a meeting. Transitions are monotonic:
// Preparing → Active → Ended, with no reverse edges.
type Status string

const (
	StatusPreparing Status = "preparing"
	StatusActive    Status = "active"
	StatusEnded     Status = "ended"
)

// IsValid reports whether s is a recognised status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPreparing, StatusActive, StatusEnded:
		return true
	}
	return false
}

// CanTransitionTo reports whether the s → next edge exists in the lifecycle.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPreparing:
		return next == StatusActive
	case StatusActive:
		return next == StatusEnded
	}
	return false
}

// Meeting is the persistent record of one facilitated meeting.
type Meeting struct {
	// ID is the unique meeting identifier (UUID).
	ID string

	// Plan is the validated meeting plan. Immutable for the meeting's lifetime.
	Plan plan.Plan

	// PlanMarkdown is the original plan document as submitted.
	PlanMarkdown string

	// Status is the current lifecycle state.
	Status Status

	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time

	// ExtensionSeconds is the accumulated time added via Extend. Never negative.
	ExtensionSeconds int
}

// Chunk is one sequential audio segment of a meeting recording. Audio and
// metadata are immutable after append; Transcript and TranscribedAt
// transition exactly once from unset to set, or stay unset on failure.
type Chunk struct {
	// ID is the unique chunk identifier (UUID).
	ID string

	// Sequence is the client-assigned sequence number, ≥ 1 and unique per
	// meeting. Listing order is recovered from it, not from arrival order.
	Sequence int

	// Audio is the stored audio payload.
	Audio []byte

	// DurationSeconds is the client-reported chunk duration. Always > 0.
	DurationSeconds float64

	// Transcript is the transcribed text, empty until transcription succeeds.
	Transcript string

	// TranscribedAt is when the transcript was set; nil while unset.
	TranscribedAt *time.Time

	CreatedAt time.Time
}

// Transcribed reports whether the chunk carries a transcript.
func (c Chunk) Transcribed() bool { return c.TranscribedAt != nil }

// TriggerKind classifies a coaching trigger. The set is closed.
type TriggerKind string

const (
	// TriggerGoalDeviation fires when discussion drifts from the plan's
	// intent or desired outcomes.
	TriggerGoalDeviation TriggerKind = "goal_deviation"

	// TriggerPerspectiveGap fires when only one or two voices dominate and
	// other perspectives are missing.
	TriggerPerspectiveGap TriggerKind = "perspective_gap"

	// TriggerComplexityMismatch fires when the group treats a simple matter
	// as complex or vice versa.
	TriggerComplexityMismatch TriggerKind = "complexity_mismatch"
)

// IsValid reports whether k is a recognised trigger kind.
func (k TriggerKind) IsValid() bool {
	switch k {
	case TriggerGoalDeviation, TriggerPerspectiveGap, TriggerComplexityMismatch:
		return true
	}
	return false
}

// Trigger is a candidate coaching signal produced by one analysis cycle.
// Triggers are ephemeral — they live only long enough to be considered by
// the coach and are not persisted as first-class records.
type Trigger struct {
	Kind TriggerKind

	// Confidence is the analyzer's confidence in [0, 1].
	Confidence float64

	// Rationale is a short explanation of why the trigger fired.
	Rationale string

	// Chunk is the sequence number of the chunk whose transcript caused the
	// trigger.
	Chunk int
}

// Intervention is a user-facing coaching prompt created from an accepted
// trigger. Suppressed duplicates are never materialised.
type Intervention struct {
	// ID is the unique intervention identifier (UUID).
	ID string

	// Kind mirrors the originating trigger's kind.
	Kind TriggerKind

	// Question is the open coaching question shown to participants. Set to a
	// deterministic fallback when generation fails.
	Question string

	// Note is an optional coaching note (e.g. the trigger rationale).
	Note string

	CreatedAt time.Time

	// Displayed records whether a client has shown this intervention.
	Displayed bool

	// DismissedAt is when a client dismissed the intervention; nil if never.
	DismissedAt *time.Time
}

// TranscriptSegment is one transcribed chunk in an analysis window,
// chronological by sequence number.
type TranscriptSegment struct {
	Sequence int
	Text     string
}
