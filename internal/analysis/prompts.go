package analysis

import (
	"fmt"
	"strings"

	"github.com/stageleft/convoke/internal/meeting"
	"github.com/stageleft/convoke/internal/plan"
)

// analysisSystemPrompt frames the trigger-analysis task. The model must
// answer with bare JSON so extractJSON can recover it even when the model
// wraps it in prose.
const analysisSystemPrompt = `You are an observer of a live working meeting. You compare the latest discussion against the meeting plan and detect exactly three kinds of facilitation problems:

- "goal_deviation": the discussion has drifted away from the plan's intent or desired outcomes.
- "perspective_gap": a role or viewpoint named in the plan is missing from the discussion.
- "complexity_mismatch": the group treats a complex topic as simple, or a simple topic as complex.

Respond with JSON only, no markdown fences, in this shape:
{"triggers": [{"kind": "goal_deviation", "confidence": 0.8, "rationale": "one short sentence"}]}

Report a trigger only when you are reasonably confident. An empty triggers array is the correct answer for a healthy discussion. Never invent trigger kinds outside the three above.`

// buildAnalysisPrompt renders the plan context and the transcript window for
// one analysis call. The newest segment is marked because the model should
// weight it over the context segments.
func buildAnalysisPrompt(p plan.Plan, window []meeting.TranscriptSegment) string {
	var b strings.Builder

	b.WriteString("MEETING PLAN\n")
	b.WriteString(p.Summary())
	b.WriteString("\n\nRECENT DISCUSSION (oldest first)\n")

	for i, seg := range window {
		if i == len(window)-1 {
			fmt.Fprintf(&b, "[segment %d, newest] %s\n", seg.Sequence, seg.Text)
		} else {
			fmt.Fprintf(&b, "[segment %d] %s\n", seg.Sequence, seg.Text)
		}
	}

	b.WriteString("\nAnalyze the newest segment in the context of the ones before it.")
	return b.String()
}

// questionSystemPrompt frames GROW-style question generation. One question,
// no preamble; the facilitator reads it out loud verbatim.
const questionSystemPrompt = `You are a meeting coach. Given a facilitation problem detected in a live meeting, write ONE short open question the facilitator can ask the group right now to address it. Use the GROW coaching style: aim at goals, reality, options, or way forward. Do not mention that you are an AI or that a problem was detected. Respond with the question text only.`

// buildQuestionPrompt renders the trigger and discussion tail for question
// generation.
func buildQuestionPrompt(p plan.Plan, t meeting.Trigger, window []meeting.TranscriptSegment) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Problem kind: %s\nWhy it was detected: %s\n\n", t.Kind, t.Rationale)
	b.WriteString("Meeting intent: ")
	b.WriteString(p.Intent)
	b.WriteString("\n\nRecent discussion:\n")
	for _, seg := range window {
		b.WriteString(seg.Text)
		b.WriteString("\n")
	}
	b.WriteString("\nWrite the question.")
	return b.String()
}

// fallbackQuestions are used verbatim when question generation fails. They
// are generic on purpose: a bland question beats no intervention.
var fallbackQuestions = map[meeting.TriggerKind]string{
	meeting.TriggerGoalDeviation:      "How does what we are discussing right now connect to the outcome we agreed on?",
	meeting.TriggerPerspectiveGap:     "Whose perspective have we not heard yet on this?",
	meeting.TriggerComplexityMismatch: "Are we giving this topic the depth it actually needs?",
}
