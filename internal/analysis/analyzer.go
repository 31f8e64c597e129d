// Package analysis hosts the LLM-backed half of the coaching pipeline: the
// [Analyzer] that inspects transcript windows for facilitation problems and
// the [Coach] that turns accepted triggers into interventions.
//
// Both components fail open. An unreachable model, a malformed
// response, or a generation failure must never stall chunk ingestion; the
// worst outcome of an LLM problem is a missed or generic intervention.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/stageleft/convoke/internal/meeting"
	"github.com/stageleft/convoke/internal/plan"
	"github.com/stageleft/convoke/pkg/provider/llm"
)

var (
	// ErrAnalysisUnavailable wraps every failure to obtain a usable trigger
	// analysis, whether the model call failed or its answer was garbage.
	ErrAnalysisUnavailable = errors.New("trigger analysis unavailable")

	// ErrGenerationFailed wraps question-generation failures. The coach
	// substitutes a fallback question, so callers mostly see this in logs.
	ErrGenerationFailed = errors.New("question generation failed")
)

const (
	defaultMinConfidence = 0.6
	defaultAnalysisTemp  = 0.2
	defaultMaxTokens     = 1024
)

// Compile-time assertion that Analyzer satisfies meeting.Analyzer.
var _ meeting.Analyzer = (*Analyzer)(nil)

// Analyzer detects facilitation triggers in transcript windows using an LLM.
// Safe for concurrent use.
type Analyzer struct {
	llm llm.Provider

	// mu guards minConfidence, which can be retuned at runtime.
	mu            sync.RWMutex
	minConfidence float64
}

// AnalyzerOption is a functional option for configuring an [Analyzer].
type AnalyzerOption func(*Analyzer)

// WithMinConfidence sets the confidence floor below which reported triggers
// are discarded. Default: 0.6.
func WithMinConfidence(min float64) AnalyzerOption {
	return func(a *Analyzer) { a.minConfidence = min }
}

// NewAnalyzer creates an [Analyzer] backed by the given LLM provider.
func NewAnalyzer(p llm.Provider, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		llm:           p,
		minConfidence: defaultMinConfidence,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// SetMinConfidence updates the confidence floor at runtime. Values outside
// [0, 1] are ignored.
func (a *Analyzer) SetMinConfidence(min float64) {
	if min < 0 || min > 1 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.minConfidence = min
}

// confidenceFloor returns the current floor.
func (a *Analyzer) confidenceFloor() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.minConfidence
}

// analysisResponse mirrors the JSON contract in analysisSystemPrompt.
type analysisResponse struct {
	Triggers []struct {
		Kind       string  `json:"kind"`
		Confidence float64 `json:"confidence"`
		Rationale  string  `json:"rationale"`
	} `json:"triggers"`
}

// Analyze implements meeting.Analyzer. It returns the validated triggers the
// model reported for the window, or an error wrapping
// [ErrAnalysisUnavailable] when no usable analysis could be obtained.
func (a *Analyzer) Analyze(ctx context.Context, p plan.Plan, window []meeting.TranscriptSegment) ([]meeting.Trigger, error) {
	if len(window) == 0 {
		return nil, nil
	}
	floor := a.confidenceFloor()

	resp, err := a.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: analysisSystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildAnalysisPrompt(p, window)},
		},
		Temperature: defaultAnalysisTemp,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnalysisUnavailable, err)
	}

	parsed, err := parseAnalysis(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnalysisUnavailable, err)
	}

	var triggers []meeting.Trigger
	for _, t := range parsed.Triggers {
		kind := meeting.TriggerKind(t.Kind)
		switch {
		case !kind.IsValid():
			slog.Warn("analysis reported unknown trigger kind", "kind", t.Kind)
		case t.Confidence < 0 || t.Confidence > 1:
			slog.Warn("analysis reported out-of-range confidence",
				"kind", t.Kind, "confidence", t.Confidence)
		case strings.TrimSpace(t.Rationale) == "":
			slog.Warn("analysis reported trigger without rationale", "kind", t.Kind)
		case t.Confidence < floor:
			slog.Debug("trigger below confidence floor",
				"kind", t.Kind, "confidence", t.Confidence, "floor", floor)
		default:
			triggers = append(triggers, meeting.Trigger{
				Kind:       kind,
				Confidence: t.Confidence,
				Rationale:  strings.TrimSpace(t.Rationale),
			})
		}
	}
	return triggers, nil
}

// parseAnalysis extracts and decodes the JSON object from a model reply.
// Models occasionally wrap the object in prose or markdown fences, so the
// text between the first "{" and the last "}" is what gets decoded.
func parseAnalysis(content string) (*analysisResponse, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}
	var parsed analysisResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("decode analysis response: %w", err)
	}
	return &parsed, nil
}

// extractJSON returns the substring between the first "{" and the last "}".
func extractJSON(content string) (string, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON object in response %.80q", content)
	}
	return content[start : end+1], nil
}

// coachNow exists so tests can control the clock.
type coachNow func() time.Time
