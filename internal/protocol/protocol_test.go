package protocol

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stageleft/convoke/internal/meeting"
	"github.com/stageleft/convoke/internal/plan"
	llmmock "github.com/stageleft/convoke/pkg/provider/llm/mock"
)

func endedMeeting() meeting.Meeting {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(45 * time.Minute)
	return meeting.Meeting{
		ID:     "m-1",
		Status: meeting.StatusEnded,
		Plan: plan.Plan{
			Intent: "Decide the Q2 launch date",
		},
		StartedAt: &start,
		EndedAt:   &end,
	}
}

func testChunks() []meeting.Chunk {
	at := time.Now().UTC()
	return []meeting.Chunk{
		{Sequence: 1, Transcript: "Let's pick a launch date today.", TranscribedAt: &at},
		{Sequence: 2}, // transcription failed for this one
		{Sequence: 3, Transcript: "Agreed, April 14th it is.", TranscribedAt: &at},
	}
}

func TestGenerate_Summary(t *testing.T) {
	p := &llmmock.Provider{Responses: []string{
		`{"summary": "The team chose the Q2 launch date.", "decisions": ["Launch on April 14th"], "action_items": ["Erik drafts the announcement"]}`,
	}}
	g := NewGenerator(p)

	proto, err := g.Generate(context.Background(), endedMeeting(), testChunks(), nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if proto.SummaryDegraded {
		t.Error("summary marked degraded despite successful model call")
	}
	if proto.Summary != "The team chose the Q2 launch date." {
		t.Errorf("unexpected summary %q", proto.Summary)
	}
	if len(proto.Decisions) != 1 || proto.Decisions[0] != "Launch on April 14th" {
		t.Errorf("unexpected decisions %v", proto.Decisions)
	}
	if len(proto.ActionItems) != 1 {
		t.Errorf("unexpected action items %v", proto.ActionItems)
	}

	if len(proto.Transcript) != 3 {
		t.Fatalf("expected 3 transcript entries, got %d", len(proto.Transcript))
	}
	if !proto.Transcript[1].Missing {
		t.Error("untranscribed chunk not flagged as missing")
	}
	if proto.Transcript[2].Text != "Agreed, April 14th it is." {
		t.Errorf("unexpected transcript entry %q", proto.Transcript[2].Text)
	}

	req := p.LastRequest()
	if len(req.Messages) == 0 || !strings.Contains(req.Messages[0].Content, "Let's pick a launch date today.") {
		t.Error("summary prompt does not carry the transcript")
	}
}

func TestGenerate_JSONInProse(t *testing.T) {
	p := &llmmock.Provider{Responses: []string{
		"Here is the protocol:\n{\"summary\": \"Short meeting.\", \"decisions\": [], \"action_items\": []}\nDone.",
	}}
	proto, err := NewGenerator(p).Generate(context.Background(), endedMeeting(), testChunks(), nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if proto.Summary != "Short meeting." {
		t.Errorf("unexpected summary %q", proto.Summary)
	}
}

func TestGenerate_DegradesOnModelFailure(t *testing.T) {
	cases := []struct {
		name string
		p    *llmmock.Provider
	}{
		{"provider error", &llmmock.Provider{Err: errors.New("rate limited")}},
		{"garbage reply", &llmmock.Provider{Responses: []string{"no json here"}}},
		{"empty summary", &llmmock.Provider{Responses: []string{`{"summary": "  "}`}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			proto, err := NewGenerator(tc.p).Generate(context.Background(), endedMeeting(), testChunks(), nil)
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if !proto.SummaryDegraded {
				t.Fatal("expected degraded summary")
			}
			if !strings.Contains(proto.Summary, "2 of 3 recorded segments") {
				t.Errorf("digest missing coverage line: %q", proto.Summary)
			}
			if !strings.Contains(proto.Summary, "Decide the Q2 launch date") {
				t.Errorf("digest missing meeting intent: %q", proto.Summary)
			}
		})
	}
}

func TestGenerate_NilProvider(t *testing.T) {
	proto, err := NewGenerator(nil).Generate(context.Background(), endedMeeting(), testChunks(), nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !proto.SummaryDegraded {
		t.Error("nil provider should yield a degraded summary")
	}
}

func TestGenerate_RequiresEndedMeeting(t *testing.T) {
	m := endedMeeting()
	m.Status = meeting.StatusActive
	_, err := NewGenerator(&llmmock.Provider{}).Generate(context.Background(), m, nil, nil)
	if !errors.Is(err, meeting.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestGenerate_CarriesInterventions(t *testing.T) {
	ivs := []meeting.Intervention{{ID: "i-1", Kind: meeting.TriggerGoalDeviation, Question: "How does this relate to the launch date?"}}
	p := &llmmock.Provider{Responses: []string{`{"summary": "ok"}`}}
	proto, err := NewGenerator(p).Generate(context.Background(), endedMeeting(), testChunks(), ivs)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(proto.Interventions) != 1 || proto.Interventions[0].ID != "i-1" {
		t.Errorf("interventions not carried: %v", proto.Interventions)
	}
}
