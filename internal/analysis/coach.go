package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stageleft/convoke/internal/meeting"
	"github.com/stageleft/convoke/pkg/provider/llm"
)

// defaultCooldown is the per-kind suppression window. A trigger kind that
// fired for a meeting stays silent for this long, preventing the coach from
// nagging about the same problem every chunk.
const defaultCooldown = 3 * time.Minute

// Compile-time assertion that Coach satisfies meeting.Coach.
var _ meeting.Coach = (*Coach)(nil)

// Coach converts accepted triggers into interventions with a GROW-style
// coaching question, enforcing the suppression cooldown. Safe for concurrent
// use.
type Coach struct {
	llm      llm.Provider
	cooldown time.Duration
	now      coachNow

	// mu guards lastFired: meeting ID -> trigger kind -> last emission.
	mu        sync.Mutex
	lastFired map[string]map[meeting.TriggerKind]time.Time
}

// CoachOption is a functional option for configuring a [Coach].
type CoachOption func(*Coach)

// WithCooldown sets the per-kind suppression window. Default: 3 minutes.
func WithCooldown(d time.Duration) CoachOption {
	return func(c *Coach) {
		if d > 0 {
			c.cooldown = d
		}
	}
}

// withClock overrides the time source. Test use only.
func withClock(now coachNow) CoachOption {
	return func(c *Coach) { c.now = now }
}

// NewCoach creates a [Coach] backed by the given LLM provider.
func NewCoach(p llm.Provider, opts ...CoachOption) *Coach {
	c := &Coach{
		llm:       p,
		cooldown:  defaultCooldown,
		now:       time.Now,
		lastFired: make(map[string]map[meeting.TriggerKind]time.Time),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Consider implements meeting.Coach. A nil intervention with nil error means
// the trigger was suppressed by the cooldown. Question generation failures
// degrade to a fixed fallback question rather than dropping the trigger.
func (c *Coach) Consider(ctx context.Context, m meeting.Meeting, t meeting.Trigger, window []meeting.TranscriptSegment) (*meeting.Intervention, error) {
	if !c.claim(m.ID, t.Kind) {
		return nil, nil
	}

	question, err := c.generate(ctx, m, t, window)
	if err != nil {
		slog.Warn("falling back to canned question",
			"meeting_id", m.ID, "kind", t.Kind,
			"err", fmt.Errorf("%w: %w", ErrGenerationFailed, err))
		question = fallbackQuestions[t.Kind]
	}

	return &meeting.Intervention{
		ID:        uuid.NewString(),
		Kind:      t.Kind,
		Question:  question,
		Note:      t.Rationale,
		CreatedAt: c.now().UTC(),
	}, nil
}

// SetCooldown updates the suppression window at runtime. Non-positive values
// are ignored.
func (c *Coach) SetCooldown(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cooldown = d
}

// Forget drops the cooldown state for a meeting. Called when a meeting ends
// so the map does not grow without bound.
func (c *Coach) Forget(meetingID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lastFired, meetingID)
}

// claim atomically checks the cooldown for (meetingID, kind) and, when
// clear, records the emission. Claiming up front keeps two concurrent
// pipelines from both passing the check.
func (c *Coach) claim(meetingID string, kind meeting.TriggerKind) bool {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	kinds, ok := c.lastFired[meetingID]
	if !ok {
		kinds = make(map[meeting.TriggerKind]time.Time)
		c.lastFired[meetingID] = kinds
	}
	if last, fired := kinds[kind]; fired && now.Sub(last) < c.cooldown {
		return false
	}
	kinds[kind] = now
	return true
}

// generate asks the model for a coaching question and tidies the reply.
func (c *Coach) generate(ctx context.Context, m meeting.Meeting, t meeting.Trigger, window []meeting.TranscriptSegment) (string, error) {
	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: questionSystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildQuestionPrompt(m.Plan, t, window)},
		},
		Temperature: 0.7,
		MaxTokens:   256,
	})
	if err != nil {
		return "", err
	}

	question := strings.TrimSpace(resp.Content)
	question = strings.Trim(question, `"`)
	if question == "" {
		return "", fmt.Errorf("model returned empty question")
	}
	return question, nil
}
