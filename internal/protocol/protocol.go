// Package protocol produces the written meeting protocol after a meeting
// ends: a narrative summary, extracted decisions and action items, and the
// full ordered transcript.
//
// The summary half is LLM-assisted and fails open: when the model is
// unavailable the protocol degrades to a transcript-only document instead of
// failing the request.
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stageleft/convoke/internal/meeting"
	"github.com/stageleft/convoke/pkg/provider/llm"
)

// Protocol is the complete post-meeting document.
type Protocol struct {
	MeetingID   string    `json:"meeting_id"`
	GeneratedAt time.Time `json:"generated_at"`

	// Summary is the narrative overview. When SummaryDegraded is set, it is
	// a mechanical transcript digest instead of an LLM-written summary.
	Summary         string `json:"summary"`
	SummaryDegraded bool   `json:"summary_degraded"`

	Decisions   []string `json:"decisions"`
	ActionItems []string `json:"action_items"`

	// Transcript is the full meeting text in chunk order. Untranscribed
	// chunks appear as explicit gaps.
	Transcript []TranscriptEntry `json:"transcript"`

	// Interventions lists every coaching intervention that fired.
	Interventions []meeting.Intervention `json:"interventions"`
}

// TranscriptEntry is one chunk's contribution to the protocol transcript.
type TranscriptEntry struct {
	Sequence int    `json:"sequence_number"`
	Text     string `json:"text"`
	Missing  bool   `json:"missing,omitempty"`
}

// Generator builds protocols. Safe for concurrent use.
type Generator struct {
	llm llm.Provider
}

// NewGenerator returns a Generator. A nil provider is allowed and always
// produces degraded (transcript-only) summaries.
func NewGenerator(p llm.Provider) *Generator {
	return &Generator{llm: p}
}

// summaryResponse mirrors the JSON contract in summarySystemPrompt.
type summaryResponse struct {
	Summary     string   `json:"summary"`
	Decisions   []string `json:"decisions"`
	ActionItems []string `json:"action_items"`
}

const summarySystemPrompt = `You summarise finished working meetings. Given the meeting plan and the full transcript, respond with JSON only in this shape:
{"summary": "2-4 sentence narrative of what happened", "decisions": ["each explicit decision"], "action_items": ["each agreed follow-up with its owner if named"]}
Report only what the transcript supports. Empty arrays are valid.`

// Generate builds the protocol for an ended meeting. Meetings that have not
// ended yet fail with meeting.ErrInvalidState.
func (g *Generator) Generate(ctx context.Context, m meeting.Meeting, chunks []meeting.Chunk, interventions []meeting.Intervention) (*Protocol, error) {
	if m.Status != meeting.StatusEnded {
		return nil, fmt.Errorf("protocol for %s meeting: %w", m.Status, meeting.ErrInvalidState)
	}

	p := &Protocol{
		MeetingID:     m.ID,
		GeneratedAt:   time.Now().UTC(),
		Transcript:    buildTranscript(chunks),
		Interventions: interventions,
		Decisions:     []string{},
		ActionItems:   []string{},
	}

	text := transcriptText(p.Transcript)
	if summary, err := g.summarise(ctx, m, text); err != nil {
		slog.Warn("protocol summary degraded to transcript digest",
			"meeting_id", m.ID, "err", err)
		p.Summary = digest(m, p.Transcript)
		p.SummaryDegraded = true
	} else {
		p.Summary = summary.Summary
		if summary.Decisions != nil {
			p.Decisions = summary.Decisions
		}
		if summary.ActionItems != nil {
			p.ActionItems = summary.ActionItems
		}
	}

	return p, nil
}

// summarise runs the LLM summary pass.
func (g *Generator) summarise(ctx context.Context, m meeting.Meeting, transcript string) (*summaryResponse, error) {
	if g.llm == nil {
		return nil, fmt.Errorf("no summary model configured")
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("empty transcript")
	}

	resp, err := g.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarySystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "MEETING PLAN\n" + m.Plan.Summary() + "\n\nTRANSCRIPT\n" + transcript},
		},
		Temperature: 0.3,
		MaxTokens:   2048,
	})
	if err != nil {
		return nil, err
	}

	start := strings.Index(resp.Content, "{")
	end := strings.LastIndex(resp.Content, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in summary response")
	}
	var parsed summaryResponse
	if err := json.Unmarshal([]byte(resp.Content[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("decode summary response: %w", err)
	}
	if strings.TrimSpace(parsed.Summary) == "" {
		return nil, fmt.Errorf("summary response has no summary text")
	}
	return &parsed, nil
}

// buildTranscript renders chunks in sequence order, flagging gaps where a
// chunk was stored but never transcribed.
func buildTranscript(chunks []meeting.Chunk) []TranscriptEntry {
	entries := make([]TranscriptEntry, 0, len(chunks))
	for _, c := range chunks {
		if !c.Transcribed() {
			entries = append(entries, TranscriptEntry{Sequence: c.Sequence, Missing: true})
			continue
		}
		entries = append(entries, TranscriptEntry{Sequence: c.Sequence, Text: c.Transcript})
	}
	return entries
}

// transcriptText joins the transcribed entries for the summary prompt.
func transcriptText(entries []TranscriptEntry) string {
	var b strings.Builder
	for _, e := range entries {
		if e.Missing {
			continue
		}
		b.WriteString(e.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// digest is the degraded summary: meeting framing plus coverage numbers,
// with no model involved.
func digest(m meeting.Meeting, entries []TranscriptEntry) string {
	transcribed := 0
	for _, e := range entries {
		if !e.Missing {
			transcribed++
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Meeting %q", m.Plan.Intent)
	if m.StartedAt != nil && m.EndedAt != nil {
		fmt.Fprintf(&b, " ran from %s to %s",
			m.StartedAt.Format(time.RFC3339), m.EndedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, ". %d of %d recorded segments were transcribed. No model summary is available; see the transcript below.",
		transcribed, len(entries))
	return b.String()
}
