package meeting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/stageleft/convoke/internal/bus"
	"github.com/stageleft/convoke/internal/observe"
	"github.com/stageleft/convoke/internal/plan"
	"github.com/stageleft/convoke/pkg/provider/stt"
)

// defaultWindowSize is the number of prior transcripts included in an
// analysis window alongside the newest one.
const defaultWindowSize = 3

// ErrInvalidArgument is returned for malformed operation parameters
// (non-positive sequence numbers, durations, or extension seconds).
var ErrInvalidArgument = errors.New("invalid argument")

// Analyzer inspects an analysis window against the meeting plan and returns
// candidate coaching triggers. Implementations fail open: an unavailable or
// malformed analysis yields an error that the coordinator absorbs.
type Analyzer interface {
	Analyze(ctx context.Context, p plan.Plan, window []TranscriptSegment) ([]Trigger, error)
}

// Coach converts an accepted trigger into an intervention, applying the
// suppression policy. A nil intervention with nil error means suppressed.
type Coach interface {
	Consider(ctx context.Context, m Meeting, t Trigger, window []TranscriptSegment) (*Intervention, error)
}

// Normalizer prepares an uploaded audio payload for storage and
// transcription. Failures are non-fatal: the coordinator falls back to the
// original bytes.
type Normalizer interface {
	Normalize(ctx context.Context, audio []byte) ([]byte, error)
}

// Corrector fixes misheard plan vocabulary (participant names, agenda
// topics) in a raw transcript. Best effort; must never fail.
type Corrector interface {
	Correct(text string, vocabulary []string) string
}

// ChunkIndexer adds a transcribed chunk to the semantic search index.
// Best effort; indexing failures never affect the pipeline.
type ChunkIndexer interface {
	IndexChunk(ctx context.Context, meetingID string, c Chunk) error
}

// CoordinatorConfig holds the collaborators and tuning knobs for a
// [Coordinator]. Store, Bus, and Transcriber are required; the remaining
// collaborators are optional and skipped when nil.
type CoordinatorConfig struct {
	Store       Store
	Bus         *bus.Bus
	Transcriber stt.Provider
	Analyzer    Analyzer
	Coach       Coach
	Normalizer  Normalizer
	Corrector   Corrector
	Indexer     ChunkIndexer
	Metrics     *observe.Metrics

	// Language is the transcription language code (e.g. "sv", "en").
	Language string

	// WindowSize is the number of prior transcripts in an analysis window.
	// Default: 3.
	WindowSize int

	// TranscribeTimeout bounds a single transcription call. Default: 60s.
	TranscribeTimeout time.Duration

	// AnalysisTimeout bounds the whole analyze-and-coach pass for one chunk,
	// covering the trigger analysis call and every question generation it
	// spawns. Default: 30s.
	AnalysisTimeout time.Duration
}

// Coordinator drives the per-meeting ingestion pipeline and owns the
// meeting lifecycle state machine (Preparing → Active → Ended).
//
// Meetings are independent units of concurrency: operations on different
// meetings never block each other, and chunks for one meeting may be
// ingested concurrently. Pipeline side effects (events, interventions) are
// emitted in completion order, which can differ from ingestion order;
// stored chunk listings are always sequence-ordered.
//
// All exported methods are safe for concurrent use.
type Coordinator struct {
	store       Store
	bus         *bus.Bus
	transcriber stt.Provider
	analyzer    Analyzer
	coach       Coach
	normalizer  Normalizer
	corrector   Corrector
	indexer     ChunkIndexer
	metrics     *observe.Metrics

	language          string
	windowSize        int
	transcribeTimeout time.Duration
	analysisTimeout   time.Duration

	// mu guards the per-meeting transition locks.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCoordinator creates a [Coordinator] from cfg. Zero-value tuning knobs
// are replaced with defaults.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = defaultWindowSize
	}
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = 60 * time.Second
	}
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = 30 * time.Second
	}
	return &Coordinator{
		store:             cfg.Store,
		bus:               cfg.Bus,
		transcriber:       cfg.Transcriber,
		analyzer:          cfg.Analyzer,
		coach:             cfg.Coach,
		normalizer:        cfg.Normalizer,
		corrector:         cfg.Corrector,
		indexer:           cfg.Indexer,
		metrics:           cfg.Metrics,
		language:          cfg.Language,
		windowSize:        cfg.WindowSize,
		transcribeTimeout: cfg.TranscribeTimeout,
		analysisTimeout:   cfg.AnalysisTimeout,
		locks:             make(map[string]*sync.Mutex),
	}
}

// CreateMeeting parses and validates the plan document and persists a new
// meeting in Preparing state. A plan that fails to parse surfaces a
// [*plan.ParseError] and no meeting is created.
func (c *Coordinator) CreateMeeting(ctx context.Context, planMarkdown string) (Meeting, error) {
	p, err := plan.Parse(planMarkdown)
	if err != nil {
		return Meeting{}, err
	}

	m := Meeting{
		ID:           uuid.NewString(),
		Plan:         p,
		PlanMarkdown: planMarkdown,
		Status:       StatusPreparing,
		CreatedAt:    time.Now().UTC(),
	}
	if err := c.store.CreateMeeting(ctx, m); err != nil {
		return Meeting{}, fmt.Errorf("coordinator: create meeting: %w", err)
	}

	slog.Info("meeting created", "meeting_id", m.ID, "total_minutes", p.TotalMinutes)
	return m, nil
}

// Start transitions a meeting from Preparing to Active, stamps StartedAt,
// and publishes MeetingStarted. Any other starting status fails with
// [ErrInvalidTransition] and leaves the meeting unchanged.
func (c *Coordinator) Start(ctx context.Context, meetingID string) (Meeting, error) {
	unlock := c.lockMeeting(meetingID)
	defer unlock()

	m, err := c.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return Meeting{}, err
	}
	if !m.Status.CanTransitionTo(StatusActive) {
		return Meeting{}, fmt.Errorf("start %s meeting: %w", m.Status, ErrInvalidTransition)
	}

	now := time.Now().UTC()
	m.Status = StatusActive
	m.StartedAt = &now
	if err := c.store.UpdateMeeting(ctx, m); err != nil {
		return Meeting{}, fmt.Errorf("coordinator: start meeting: %w", err)
	}

	if c.metrics != nil {
		c.metrics.ActiveMeetings.Add(ctx, 1)
	}
	c.bus.Publish(meetingID, bus.MeetingStarted{
		MeetingID:    meetingID,
		StartedAt:    now,
		TotalMinutes: m.Plan.TotalMinutes,
	})
	slog.Info("meeting started", "meeting_id", meetingID)
	return m, nil
}

// End transitions a meeting from Active to Ended, stamps EndedAt, and
// publishes MeetingEnded. Pipelines already running for accepted chunks
// continue to completion but their interventions are suppressed.
func (c *Coordinator) End(ctx context.Context, meetingID string) (Meeting, error) {
	unlock := c.lockMeeting(meetingID)
	defer unlock()

	m, err := c.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return Meeting{}, err
	}
	if !m.Status.CanTransitionTo(StatusEnded) {
		return Meeting{}, fmt.Errorf("end %s meeting: %w", m.Status, ErrInvalidTransition)
	}

	now := time.Now().UTC()
	m.Status = StatusEnded
	m.EndedAt = &now
	if err := c.store.UpdateMeeting(ctx, m); err != nil {
		return Meeting{}, fmt.Errorf("coordinator: end meeting: %w", err)
	}

	if c.metrics != nil {
		c.metrics.ActiveMeetings.Add(ctx, -1)
	}
	// Let the coach drop its per-meeting cooldown state.
	if f, ok := c.coach.(interface{ Forget(string) }); ok {
		f.Forget(meetingID)
	}
	c.bus.Publish(meetingID, bus.MeetingEnded{MeetingID: meetingID, EndedAt: now})
	slog.Info("meeting ended", "meeting_id", meetingID)
	return m, nil
}

// Extend adds seconds to an Active meeting's time budget and publishes
// MeetingExtended. seconds must be positive.
func (c *Coordinator) Extend(ctx context.Context, meetingID string, seconds int) (Meeting, error) {
	if seconds <= 0 {
		return Meeting{}, fmt.Errorf("extend by %d seconds: %w", seconds, ErrInvalidArgument)
	}

	unlock := c.lockMeeting(meetingID)
	defer unlock()

	m, err := c.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return Meeting{}, err
	}
	if m.Status != StatusActive {
		return Meeting{}, fmt.Errorf("extend %s meeting: %w", m.Status, ErrInvalidState)
	}

	m.ExtensionSeconds += seconds
	if err := c.store.UpdateMeeting(ctx, m); err != nil {
		return Meeting{}, fmt.Errorf("coordinator: extend meeting: %w", err)
	}

	c.bus.Publish(meetingID, bus.MeetingExtended{MeetingID: meetingID, Seconds: seconds})
	slog.Info("meeting extended", "meeting_id", meetingID, "seconds", seconds)
	return m, nil
}

// IngestChunk runs the full pipeline for one audio chunk:
// normalize → append → transcribe → correct → analyze → coach → notify.
//
// Structural errors (unknown meeting, inactive meeting, duplicate sequence)
// are returned to the caller. Transcription failure is absorbed: the chunk
// stays stored without a transcript, a TranscriptionFailed event is
// published, and IngestChunk returns the chunk with a nil error so that
// subsequent chunks keep flowing.
func (c *Coordinator) IngestChunk(ctx context.Context, meetingID string, sequence int, audio []byte, durationSeconds float64) (Chunk, error) {
	if sequence < 1 {
		return Chunk{}, fmt.Errorf("sequence number %d: %w", sequence, ErrInvalidArgument)
	}
	if durationSeconds <= 0 {
		return Chunk{}, fmt.Errorf("duration %.2fs: %w", durationSeconds, ErrInvalidArgument)
	}
	if len(audio) == 0 {
		return Chunk{}, fmt.Errorf("empty audio payload: %w", ErrInvalidArgument)
	}

	m, err := c.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return Chunk{}, err
	}
	if m.Status != StatusActive {
		return Chunk{}, fmt.Errorf("ingest chunk into %s meeting: %w", m.Status, ErrInvalidState)
	}

	// Normalization is best effort: a failed remux falls back to the
	// original payload rather than aborting the upload.
	stored := audio
	if c.normalizer != nil {
		normalized, err := c.normalizer.Normalize(ctx, audio)
		if err != nil {
			slog.Warn("chunk normalization failed, using original audio",
				"meeting_id", meetingID, "sequence", sequence, "err", err)
		} else {
			stored = normalized
		}
	}

	chunk := Chunk{
		ID:              uuid.NewString(),
		Sequence:        sequence,
		Audio:           stored,
		DurationSeconds: durationSeconds,
		CreatedAt:       time.Now().UTC(),
	}
	if err := c.store.AppendChunk(ctx, meetingID, chunk); err != nil {
		return Chunk{}, err
	}
	if c.metrics != nil {
		c.metrics.ChunksIngested.Add(ctx, 1)
	}

	c.bus.Publish(meetingID, bus.TranscriptionStarted{
		Sequence:        sequence,
		DurationSeconds: durationSeconds,
	})

	text, err := c.transcribe(ctx, m, chunk)
	if err != nil {
		// Non-fatal: the chunk keeps an unset transcript and the meeting
		// continues accepting chunks.
		slog.Warn("transcription failed",
			"meeting_id", meetingID, "sequence", sequence, "err", err)
		if c.metrics != nil {
			c.metrics.TranscriptionFailures.Add(ctx, 1)
		}
		c.bus.Publish(meetingID, bus.TranscriptionFailed{Sequence: sequence, Error: err.Error()})
		return chunk, nil
	}

	if c.corrector != nil {
		text = c.corrector.Correct(text, m.Plan.Vocabulary())
	}

	now := time.Now().UTC()
	if err := c.store.SetTranscript(ctx, meetingID, sequence, text, now); err != nil {
		return Chunk{}, fmt.Errorf("coordinator: set transcript: %w", err)
	}
	chunk.Transcript = text
	chunk.TranscribedAt = &now

	c.bus.Publish(meetingID, bus.TranscriptionCompleted{
		Sequence:        sequence,
		Text:            text,
		DurationSeconds: durationSeconds,
	})

	if c.indexer != nil {
		if err := c.indexer.IndexChunk(ctx, meetingID, chunk); err != nil {
			slog.Warn("chunk indexing failed",
				"meeting_id", meetingID, "sequence", sequence, "err", err)
		}
	}

	c.analyzeAndCoach(ctx, meetingID, sequence)
	return chunk, nil
}

// transcribe runs the shared transcriber against the chunk with the
// meeting's plan intent as a context prompt and the configured timeout.
func (c *Coordinator) transcribe(ctx context.Context, m Meeting, chunk Chunk) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, c.transcribeTimeout)
	defer cancel()

	start := time.Now()
	text, err := c.transcriber.Transcribe(tctx, stt.Request{
		Audio:         chunk.Audio,
		Language:      c.language,
		ContextPrompt: m.Plan.Intent,
	})
	if c.metrics != nil {
		c.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())
	}
	return text, err
}

// analyzeAndCoach runs the trigger analysis loop for the chunk at sequence.
// Every failure mode here fails open: analysis errors yield zero triggers,
// generation errors yield fallback interventions, and nothing is published
// once the meeting has ended.
func (c *Coordinator) analyzeAndCoach(ctx context.Context, meetingID string, sequence int) {
	if c.analyzer == nil {
		return
	}

	// Re-read status: the meeting may have ended while we transcribed.
	m, err := c.store.GetMeeting(ctx, meetingID)
	if err != nil || m.Status != StatusActive {
		return
	}

	window, err := c.analysisWindow(ctx, meetingID, sequence)
	if err != nil || len(window) == 0 {
		return
	}

	// One deadline spans the reasoning calls for this chunk: the trigger
	// analysis and every question generation it spawns. A hung model must
	// not pin the upload request.
	actx, cancel := context.WithTimeout(ctx, c.analysisTimeout)
	defer cancel()

	start := time.Now()
	triggers, err := c.analyzer.Analyze(actx, m.Plan, window)
	if c.metrics != nil {
		c.metrics.AnalysisDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		slog.Warn("trigger analysis unavailable",
			"meeting_id", meetingID, "sequence", sequence, "err", err)
		return
	}

	for _, t := range triggers {
		t.Chunk = sequence
		if c.metrics != nil {
			c.metrics.TriggersDetected.Add(ctx, 1,
				metric.WithAttributes(attribute.String("kind", string(t.Kind))))
		}

		if c.coach == nil {
			continue
		}
		iv, err := c.coach.Consider(actx, m, t, window)
		if err != nil {
			slog.Warn("coach error", "meeting_id", meetingID, "kind", t.Kind, "err", err)
			continue
		}
		if iv == nil {
			if c.metrics != nil {
				c.metrics.InterventionsSuppressed.Add(ctx, 1,
					metric.WithAttributes(attribute.String("kind", string(t.Kind))))
			}
			continue
		}

		// Re-check status right before publication: interventions for an
		// ended meeting are dropped, not delivered late.
		current, err := c.store.GetMeeting(ctx, meetingID)
		if err != nil || current.Status != StatusActive {
			slog.Debug("suppressing intervention for inactive meeting",
				"meeting_id", meetingID, "kind", t.Kind)
			return
		}

		if err := c.store.AddIntervention(ctx, meetingID, *iv); err != nil {
			slog.Warn("persist intervention failed",
				"meeting_id", meetingID, "kind", iv.Kind, "err", err)
		}
		if c.metrics != nil {
			c.metrics.InterventionsEmitted.Add(ctx, 1,
				metric.WithAttributes(attribute.String("kind", string(iv.Kind))))
		}

		c.bus.Publish(meetingID, bus.InterventionTriggered{
			TriggerKind: string(iv.Kind),
			Rationale:   iv.Note,
		})
		if iv.Question != "" {
			c.bus.Publish(meetingID, bus.InterventionQuestion{
				TriggerKind: string(iv.Kind),
				Question:    iv.Question,
			})
		}
		slog.Info("intervention emitted",
			"meeting_id", meetingID, "kind", iv.Kind, "chunk", sequence)
	}
}

// analysisWindow assembles the transcript window for the chunk at sequence:
// the chunk's own transcript plus up to windowSize immediately preceding
// transcripts, chronological by sequence number. Untranscribed chunks are
// skipped.
func (c *Coordinator) analysisWindow(ctx context.Context, meetingID string, sequence int) ([]TranscriptSegment, error) {
	chunks, err := c.store.ListChunks(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	var window []TranscriptSegment
	for _, ch := range chunks {
		if ch.Sequence > sequence || !ch.Transcribed() {
			continue
		}
		window = append(window, TranscriptSegment{Sequence: ch.Sequence, Text: ch.Transcript})
	}
	// Keep the newest transcript plus at most windowSize predecessors.
	if max := c.windowSize + 1; len(window) > max {
		window = window[len(window)-max:]
	}
	return window, nil
}

// lockMeeting returns an unlock function for the meeting's transition lock,
// creating it on first use. Locks are never removed; the per-meeting cost is
// one mutex.
func (c *Coordinator) lockMeeting(meetingID string) func() {
	c.mu.Lock()
	l, ok := c.locks[meetingID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[meetingID] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}
