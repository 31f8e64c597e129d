// Package postgres provides the PostgreSQL-backed [meeting.Store]. Meetings,
// chunks, and interventions live in their own tables; the parsed plan is
// stored as JSONB next to the original markdown so a meeting can be reloaded
// without reparsing.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stageleft/convoke/internal/meeting"
	"github.com/stageleft/convoke/internal/plan"
)

// Schema is the SQL DDL for the meeting tables. Execute it via
// [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS meetings (
    id                TEXT PRIMARY KEY,
    plan              JSONB NOT NULL,
    plan_markdown     TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL DEFAULT 'preparing',
    extension_seconds INTEGER NOT NULL DEFAULT 0,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    started_at        TIMESTAMPTZ,
    ended_at          TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_meetings_created ON meetings(created_at DESC);

CREATE TABLE IF NOT EXISTS meeting_chunks (
    id             TEXT PRIMARY KEY,
    meeting_id     TEXT NOT NULL REFERENCES meetings(id) ON DELETE CASCADE,
    sequence       INTEGER NOT NULL,
    audio          BYTEA NOT NULL,
    duration_secs  DOUBLE PRECISION NOT NULL,
    transcript     TEXT NOT NULL DEFAULT '',
    transcribed_at TIMESTAMPTZ,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (meeting_id, sequence)
);
CREATE INDEX IF NOT EXISTS idx_meeting_chunks_meeting ON meeting_chunks(meeting_id, sequence);

CREATE TABLE IF NOT EXISTS meeting_interventions (
    id           TEXT PRIMARY KEY,
    meeting_id   TEXT NOT NULL REFERENCES meetings(id) ON DELETE CASCADE,
    kind         TEXT NOT NULL,
    question     TEXT NOT NULL,
    note         TEXT NOT NULL DEFAULT '',
    displayed    BOOLEAN NOT NULL DEFAULT FALSE,
    dismissed_at TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_meeting_interventions_meeting ON meeting_interventions(meeting_id, created_at);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a [meeting.Store] backed by a PostgreSQL database.
type Store struct {
	db DB
}

var _ meeting.Store = (*Store)(nil)

// New creates a Store on the given connection or pool. The caller is
// responsible for calling [Store.Migrate] before issuing queries.
func New(db DB) *Store {
	return &Store{db: db}
}

// Migrate executes the [Schema] DDL, creating the meeting tables and indexes
// if they do not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// CreateMeeting persists a new meeting under the caller-supplied ID.
func (s *Store) CreateMeeting(ctx context.Context, m meeting.Meeting) error {
	planJSON, err := json.Marshal(m.Plan)
	if err != nil {
		return fmt.Errorf("postgres: marshal plan: %w", err)
	}

	const query = `
		INSERT INTO meetings (id, plan, plan_markdown, status, extension_seconds, created_at, started_at, ended_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = s.db.Exec(ctx, query,
		m.ID, planJSON, m.PlanMarkdown, string(m.Status),
		m.ExtensionSeconds, m.CreatedAt, m.StartedAt, m.EndedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("postgres: meeting %q already exists", m.ID)
		}
		return fmt.Errorf("postgres: create meeting: %w", err)
	}
	return nil
}

// GetMeeting returns the meeting with the given ID, or [meeting.ErrNotFound].
func (s *Store) GetMeeting(ctx context.Context, id string) (meeting.Meeting, error) {
	const query = `
		SELECT id, plan, plan_markdown, status, extension_seconds, created_at, started_at, ended_at
		FROM meetings
		WHERE id = $1`

	m, err := scanMeeting(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return meeting.Meeting{}, fmt.Errorf("postgres: meeting %q: %w", id, meeting.ErrNotFound)
		}
		return meeting.Meeting{}, fmt.Errorf("postgres: get meeting %q: %w", id, err)
	}
	return m, nil
}

// ListMeetings returns all meetings ordered by creation time, newest first.
func (s *Store) ListMeetings(ctx context.Context) ([]meeting.Meeting, error) {
	const query = `
		SELECT id, plan, plan_markdown, status, extension_seconds, created_at, started_at, ended_at
		FROM meetings
		ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list meetings: %w", err)
	}
	defer rows.Close()

	var out []meeting.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: list meetings scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list meetings: %w", err)
	}
	return out, nil
}

// UpdateMeeting persists status, timestamps, and extension changes. The plan
// columns are immutable after creation and deliberately not written here.
func (s *Store) UpdateMeeting(ctx context.Context, m meeting.Meeting) error {
	const query = `
		UPDATE meetings SET
			status = $2, extension_seconds = $3, started_at = $4, ended_at = $5
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query,
		m.ID, string(m.Status), m.ExtensionSeconds, m.StartedAt, m.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update meeting %q: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: meeting %q: %w", m.ID, meeting.ErrNotFound)
	}
	return nil
}

// AppendChunk stores a new audio chunk. The Active check and the insert are
// separate statements; the unique (meeting_id, sequence) constraint still
// catches duplicate sequences that race past the check.
func (s *Store) AppendChunk(ctx context.Context, meetingID string, c meeting.Chunk) error {
	status, err := s.meetingStatus(ctx, meetingID)
	if err != nil {
		return err
	}
	if status != meeting.StatusActive {
		return fmt.Errorf("postgres: append chunk to %s meeting %q: %w", status, meetingID, meeting.ErrInvalidState)
	}

	const query = `
		INSERT INTO meeting_chunks (id, meeting_id, sequence, audio, duration_secs, transcript, transcribed_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = s.db.Exec(ctx, query,
		c.ID, meetingID, c.Sequence, c.Audio, c.DurationSeconds,
		c.Transcript, c.TranscribedAt, c.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("postgres: meeting %q sequence %d: %w", meetingID, c.Sequence, meeting.ErrDuplicateChunk)
		}
		return fmt.Errorf("postgres: append chunk: %w", err)
	}
	return nil
}

// GetChunk returns one chunk by meeting and sequence number.
func (s *Store) GetChunk(ctx context.Context, meetingID string, sequence int) (meeting.Chunk, error) {
	const query = `
		SELECT id, sequence, audio, duration_secs, transcript, transcribed_at, created_at
		FROM meeting_chunks
		WHERE meeting_id = $1 AND sequence = $2`

	c, err := scanChunk(s.db.QueryRow(ctx, query, meetingID, sequence))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return meeting.Chunk{}, fmt.Errorf("postgres: meeting %q sequence %d: %w", meetingID, sequence, meeting.ErrNotFound)
		}
		return meeting.Chunk{}, fmt.Errorf("postgres: get chunk: %w", err)
	}
	return c, nil
}

// ListChunks returns the meeting's chunks sorted by sequence number.
func (s *Store) ListChunks(ctx context.Context, meetingID string) ([]meeting.Chunk, error) {
	if _, err := s.meetingStatus(ctx, meetingID); err != nil {
		return nil, err
	}

	const query = `
		SELECT id, sequence, audio, duration_secs, transcript, transcribed_at, created_at
		FROM meeting_chunks
		WHERE meeting_id = $1
		ORDER BY sequence`

	rows, err := s.db.Query(ctx, query, meetingID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list chunks: %w", err)
	}
	defer rows.Close()

	var out []meeting.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: list chunks scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list chunks: %w", err)
	}
	return out, nil
}

// SetTranscript records the transcript for a chunk. The WHERE clause keeps
// the transition one-way: a chunk with a transcript is never overwritten.
func (s *Store) SetTranscript(ctx context.Context, meetingID string, sequence int, text string, at time.Time) error {
	const query = `
		UPDATE meeting_chunks SET transcript = $3, transcribed_at = $4
		WHERE meeting_id = $1 AND sequence = $2 AND transcribed_at IS NULL`

	tag, err := s.db.Exec(ctx, query, meetingID, sequence, text, at)
	if err != nil {
		return fmt.Errorf("postgres: set transcript: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// No row updated: either the chunk does not exist or it already has a
	// transcript. Look it up to report the right error.
	if _, err := s.GetChunk(ctx, meetingID, sequence); err != nil {
		return err
	}
	return fmt.Errorf("postgres: chunk %d of meeting %q already transcribed: %w", sequence, meetingID, meeting.ErrInvalidState)
}

// AddIntervention persists an accepted intervention.
func (s *Store) AddIntervention(ctx context.Context, meetingID string, iv meeting.Intervention) error {
	if _, err := s.meetingStatus(ctx, meetingID); err != nil {
		return err
	}

	const query = `
		INSERT INTO meeting_interventions (id, meeting_id, kind, question, note, displayed, dismissed_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err := s.db.Exec(ctx, query,
		iv.ID, meetingID, string(iv.Kind), iv.Question, iv.Note,
		iv.Displayed, iv.DismissedAt, iv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: add intervention: %w", err)
	}
	return nil
}

// ListInterventions returns the meeting's interventions oldest first.
func (s *Store) ListInterventions(ctx context.Context, meetingID string) ([]meeting.Intervention, error) {
	if _, err := s.meetingStatus(ctx, meetingID); err != nil {
		return nil, err
	}

	const query = `
		SELECT id, kind, question, note, displayed, dismissed_at, created_at
		FROM meeting_interventions
		WHERE meeting_id = $1
		ORDER BY created_at`

	rows, err := s.db.Query(ctx, query, meetingID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list interventions: %w", err)
	}
	defer rows.Close()

	var out []meeting.Intervention
	for rows.Next() {
		var iv meeting.Intervention
		var kind string
		if err := rows.Scan(&iv.ID, &kind, &iv.Question, &iv.Note, &iv.Displayed, &iv.DismissedAt, &iv.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: list interventions scan: %w", err)
		}
		iv.Kind = meeting.TriggerKind(kind)
		out = append(out, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list interventions: %w", err)
	}
	return out, nil
}

// MarkInterventionDisplayed flips the displayed flag. Idempotent.
func (s *Store) MarkInterventionDisplayed(ctx context.Context, meetingID, interventionID string) error {
	const query = `
		UPDATE meeting_interventions SET displayed = TRUE
		WHERE meeting_id = $1 AND id = $2`

	tag, err := s.db.Exec(ctx, query, meetingID, interventionID)
	if err != nil {
		return fmt.Errorf("postgres: mark intervention displayed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: intervention %q of meeting %q: %w", interventionID, meetingID, meeting.ErrNotFound)
	}
	return nil
}

// DismissIntervention records the dismissal time. The WHERE clause keeps the
// transition one-way: an already-dismissed intervention is left unchanged.
func (s *Store) DismissIntervention(ctx context.Context, meetingID, interventionID string, at time.Time) error {
	const query = `
		UPDATE meeting_interventions SET dismissed_at = $3
		WHERE meeting_id = $1 AND id = $2 AND dismissed_at IS NULL`

	tag, err := s.db.Exec(ctx, query, meetingID, interventionID, at)
	if err != nil {
		return fmt.Errorf("postgres: dismiss intervention: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// No row updated: either the intervention does not exist or it is
	// already dismissed, which is a no-op.
	const exists = `SELECT 1 FROM meeting_interventions WHERE meeting_id = $1 AND id = $2`
	var one int
	if err := s.db.QueryRow(ctx, exists, meetingID, interventionID).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("postgres: intervention %q of meeting %q: %w", interventionID, meetingID, meeting.ErrNotFound)
		}
		return fmt.Errorf("postgres: dismiss intervention: %w", err)
	}
	return nil
}

// meetingStatus fetches just the status column, mapping a missing row to
// [meeting.ErrNotFound].
func (s *Store) meetingStatus(ctx context.Context, id string) (meeting.Status, error) {
	const query = `SELECT status FROM meetings WHERE id = $1`

	var status string
	if err := s.db.QueryRow(ctx, query, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("postgres: meeting %q: %w", id, meeting.ErrNotFound)
		}
		return "", fmt.Errorf("postgres: meeting status %q: %w", id, err)
	}
	return meeting.Status(status), nil
}

// scanMeeting reads one meetings row. Works for both pgx.Row and pgx.Rows.
func scanMeeting(row pgx.Row) (meeting.Meeting, error) {
	var (
		m        meeting.Meeting
		planJSON []byte
		status   string
	)
	err := row.Scan(&m.ID, &planJSON, &m.PlanMarkdown, &status,
		&m.ExtensionSeconds, &m.CreatedAt, &m.StartedAt, &m.EndedAt)
	if err != nil {
		return meeting.Meeting{}, err
	}
	m.Status = meeting.Status(status)

	var p plan.Plan
	if err := json.Unmarshal(planJSON, &p); err != nil {
		return meeting.Meeting{}, fmt.Errorf("unmarshal plan: %w", err)
	}
	m.Plan = p
	return m, nil
}

// scanChunk reads one meeting_chunks row.
func scanChunk(row pgx.Row) (meeting.Chunk, error) {
	var c meeting.Chunk
	err := row.Scan(&c.ID, &c.Sequence, &c.Audio, &c.DurationSeconds,
		&c.Transcript, &c.TranscribedAt, &c.CreatedAt)
	if err != nil {
		return meeting.Chunk{}, err
	}
	return c, nil
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
