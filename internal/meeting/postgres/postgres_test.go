package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stageleft/convoke/internal/meeting"
	"github.com/stageleft/convoke/internal/plan"
)

// ---------------------------------------------------------------------------
// Test helpers - mock DB types
// ---------------------------------------------------------------------------

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockRows implements pgx.Rows for testing.
type mockRows struct {
	data    [][]any
	idx     int
	err     error
	closed  bool
	scanErr error
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	return scanInto(r.data[r.idx-1], dest...)
}

// scanInto copies a mock row's values into scan destinations, covering the
// column types the meeting tables use.
func scanInto(row []any, dest ...any) error {
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *float64:
			*d = v.(float64)
		case *bool:
			*d = v.(bool)
		case *[]byte:
			if v == nil {
				*d = nil
			} else {
				*d = v.([]byte)
			}
		case *time.Time:
			*d = v.(time.Time)
		case **time.Time:
			if v == nil {
				*d = nil
			} else {
				*d = v.(*time.Time)
			}
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

// mockDB implements the DB interface for testing.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

// statusRow is a QueryRow func answering the meetingStatus lookup.
func statusRow(status string) func(ctx context.Context, sql string, args ...any) pgx.Row {
	return func(ctx context.Context, sql string, args ...any) pgx.Row {
		return &mockRow{scanFunc: func(dest ...any) error {
			return scanInto([]any{status}, dest...)
		}}
	}
}

func mustPlanJSON(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(plan.Plan{Intent: "Decide the launch date"})
	if err != nil {
		t.Fatalf("marshal plan: %v", err)
	}
	return b
}

// ---------------------------------------------------------------------------
// Meeting tests
// ---------------------------------------------------------------------------

func TestGetMeeting(t *testing.T) {
	t.Parallel()
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	started := created.Add(5 * time.Minute)
	planJSON := mustPlanJSON(t)

	db := &mockDB{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			if args[0] != "m-1" {
				t.Errorf("unexpected query arg %v", args[0])
			}
			return &mockRow{scanFunc: func(dest ...any) error {
				return scanInto([]any{"m-1", planJSON, "# Plan", "active", 300, created, &started, nil}, dest...)
			}}
		},
	}

	m, err := New(db).GetMeeting(context.Background(), "m-1")
	if err != nil {
		t.Fatalf("GetMeeting: %v", err)
	}
	if m.Status != meeting.StatusActive {
		t.Errorf("status = %q, want active", m.Status)
	}
	if m.Plan.Intent != "Decide the launch date" {
		t.Errorf("plan not restored: %+v", m.Plan)
	}
	if m.ExtensionSeconds != 300 {
		t.Errorf("extension = %d, want 300", m.ExtensionSeconds)
	}
	if m.StartedAt == nil || !m.StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", m.StartedAt, started)
	}
	if m.EndedAt != nil {
		t.Errorf("ended_at = %v, want nil", m.EndedAt)
	}
}

func TestGetMeeting_NotFound(t *testing.T) {
	t.Parallel()
	_, err := New(&mockDB{}).GetMeeting(context.Background(), "nope")
	if !errors.Is(err, meeting.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListMeetings_OrdersNewestFirst(t *testing.T) {
	t.Parallel()
	planJSON := mustPlanJSON(t)
	now := time.Now().UTC()

	db := &mockDB{
		queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			if !strings.Contains(sql, "ORDER BY created_at DESC") {
				t.Errorf("list query missing newest-first ordering:\n%s", sql)
			}
			return &mockRows{data: [][]any{
				{"m-2", planJSON, "", "preparing", 0, now, nil, nil},
				{"m-1", planJSON, "", "ended", 0, now.Add(-time.Hour), nil, nil},
			}}, nil
		},
	}

	ms, err := New(db).ListMeetings(context.Background())
	if err != nil {
		t.Fatalf("ListMeetings: %v", err)
	}
	if len(ms) != 2 || ms[0].ID != "m-2" || ms[1].ID != "m-1" {
		t.Errorf("unexpected order: %+v", ms)
	}
}

func TestUpdateMeeting_NotFound(t *testing.T) {
	t.Parallel()
	db := &mockDB{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
	}
	err := New(db).UpdateMeeting(context.Background(), meeting.Meeting{ID: "nope", Status: meeting.StatusEnded})
	if !errors.Is(err, meeting.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Chunk tests
// ---------------------------------------------------------------------------

func TestAppendChunk(t *testing.T) {
	t.Parallel()
	var gotInsert []any
	db := &mockDB{
		queryRowFunc: statusRow("active"),
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			gotInsert = args
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
	}

	c := meeting.Chunk{ID: "c-1", Sequence: 3, Audio: []byte{1, 2}, DurationSeconds: 2.5}
	if err := New(db).AppendChunk(context.Background(), "m-1", c); err != nil {
		t.Fatalf("AppendChunk: %v", err)
	}
	if len(gotInsert) != 8 || gotInsert[2] != 3 {
		t.Errorf("unexpected insert args: %v", gotInsert)
	}
}

func TestAppendChunk_RequiresActiveMeeting(t *testing.T) {
	t.Parallel()
	for _, status := range []string{"preparing", "ended"} {
		t.Run(status, func(t *testing.T) {
			db := &mockDB{queryRowFunc: statusRow(status)}
			err := New(db).AppendChunk(context.Background(), "m-1", meeting.Chunk{ID: "c-1", Sequence: 1})
			if !errors.Is(err, meeting.ErrInvalidState) {
				t.Fatalf("expected ErrInvalidState, got %v", err)
			}
		})
	}
}

func TestAppendChunk_DuplicateSequence(t *testing.T) {
	t.Parallel()
	db := &mockDB{
		queryRowFunc: statusRow("active"),
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"}
		},
	}
	err := New(db).AppendChunk(context.Background(), "m-1", meeting.Chunk{ID: "c-1", Sequence: 1})
	if !errors.Is(err, meeting.ErrDuplicateChunk) {
		t.Fatalf("expected ErrDuplicateChunk, got %v", err)
	}
}

func TestAppendChunk_UnknownMeeting(t *testing.T) {
	t.Parallel()
	err := New(&mockDB{}).AppendChunk(context.Background(), "nope", meeting.Chunk{ID: "c-1", Sequence: 1})
	if !errors.Is(err, meeting.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListChunks(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	db := &mockDB{
		queryRowFunc: statusRow("active"),
		queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			if !strings.Contains(sql, "ORDER BY sequence") {
				t.Errorf("chunk query missing sequence ordering:\n%s", sql)
			}
			return &mockRows{data: [][]any{
				{"c-1", 1, []byte{1}, 2.0, "hello", &now, now},
				{"c-2", 2, []byte{2}, 2.0, "", nil, now},
			}}, nil
		},
	}

	chunks, err := New(db).ListChunks(context.Background(), "m-1")
	if err != nil {
		t.Fatalf("ListChunks: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if !chunks[0].Transcribed() || chunks[0].Transcript != "hello" {
		t.Errorf("first chunk transcript not restored: %+v", chunks[0])
	}
	if chunks[1].Transcribed() {
		t.Errorf("second chunk should be untranscribed: %+v", chunks[1])
	}
}

func TestSetTranscript(t *testing.T) {
	t.Parallel()
	db := &mockDB{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			if !strings.Contains(sql, "transcribed_at IS NULL") {
				t.Errorf("update not guarded against overwrites:\n%s", sql)
			}
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}
	err := New(db).SetTranscript(context.Background(), "m-1", 1, "hello", time.Now())
	if err != nil {
		t.Fatalf("SetTranscript: %v", err)
	}
}

func TestSetTranscript_AlreadySet(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	db := &mockDB{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
		// The follow-up GetChunk finds the chunk, so the failure is an
		// already-transcribed chunk rather than a missing one.
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error {
				return scanInto([]any{"c-1", 1, []byte{1}, 2.0, "first", &now, now}, dest...)
			}}
		},
	}
	err := New(db).SetTranscript(context.Background(), "m-1", 1, "second", time.Now())
	if !errors.Is(err, meeting.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestSetTranscript_UnknownChunk(t *testing.T) {
	t.Parallel()
	db := &mockDB{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
	}
	err := New(db).SetTranscript(context.Background(), "m-1", 99, "text", time.Now())
	if !errors.Is(err, meeting.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Intervention tests
// ---------------------------------------------------------------------------

func TestListInterventions(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	db := &mockDB{
		queryRowFunc: statusRow("active"),
		queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			if !strings.Contains(sql, "ORDER BY created_at") {
				t.Errorf("intervention query missing oldest-first ordering:\n%s", sql)
			}
			return &mockRows{data: [][]any{
				{"i-1", "goal_deviation", "How does this relate to the goal?", "drifted", false, nil, now},
			}}, nil
		},
	}

	ivs, err := New(db).ListInterventions(context.Background(), "m-1")
	if err != nil {
		t.Fatalf("ListInterventions: %v", err)
	}
	if len(ivs) != 1 || ivs[0].Kind != meeting.TriggerGoalDeviation {
		t.Errorf("unexpected interventions: %+v", ivs)
	}
}

func TestAddIntervention_UnknownMeeting(t *testing.T) {
	t.Parallel()
	err := New(&mockDB{}).AddIntervention(context.Background(), "nope", meeting.Intervention{ID: "i-1"})
	if !errors.Is(err, meeting.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkInterventionDisplayed(t *testing.T) {
	t.Parallel()
	db := &mockDB{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			if !strings.Contains(sql, "displayed = TRUE") {
				t.Errorf("unexpected update:\n%s", sql)
			}
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}
	if err := New(db).MarkInterventionDisplayed(context.Background(), "m-1", "i-1"); err != nil {
		t.Fatalf("MarkInterventionDisplayed: %v", err)
	}
}

func TestMarkInterventionDisplayed_Unknown(t *testing.T) {
	t.Parallel()
	db := &mockDB{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
	}
	err := New(db).MarkInterventionDisplayed(context.Background(), "m-1", "nope")
	if !errors.Is(err, meeting.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDismissIntervention(t *testing.T) {
	t.Parallel()
	db := &mockDB{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			if !strings.Contains(sql, "dismissed_at IS NULL") {
				t.Errorf("update not guarded against re-dismissal:\n%s", sql)
			}
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}
	if err := New(db).DismissIntervention(context.Background(), "m-1", "i-1", time.Now()); err != nil {
		t.Fatalf("DismissIntervention: %v", err)
	}
}

func TestDismissIntervention_AlreadyDismissed(t *testing.T) {
	t.Parallel()
	db := &mockDB{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
		// The follow-up existence check finds the row, so the earlier
		// dismissal stands and the call is a no-op.
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error {
				return scanInto([]any{1}, dest...)
			}}
		},
	}
	if err := New(db).DismissIntervention(context.Background(), "m-1", "i-1", time.Now()); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestDismissIntervention_Unknown(t *testing.T) {
	t.Parallel()
	db := &mockDB{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
	}
	err := New(db).DismissIntervention(context.Background(), "m-1", "nope", time.Now())
	if !errors.Is(err, meeting.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
