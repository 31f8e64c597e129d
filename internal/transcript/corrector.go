// Package transcript fixes speech-to-text errors in plan vocabulary.
//
// Whisper routinely mangles proper nouns: participant names become common
// words and agenda topics drift. The [Corrector] realigns transcript tokens
// against the meeting plan's vocabulary (role holders and agenda topics)
// using the phonetic matcher, replacing misheard spans with their canonical
// spelling. It never touches words that do not resemble a vocabulary entry.
//
// Correction is purely in-process with no network calls, so it sits inline
// in the ingestion pipeline between transcription and storage.
package transcript

import (
	"strings"

	"github.com/stageleft/convoke/internal/transcript/phonetic"
)

// Correction records a single span substitution.
type Correction struct {
	// Original is the span as produced by the STT provider.
	Original string

	// Corrected is the canonical vocabulary entry that replaced it.
	Corrected string

	// Confidence is the match score in (0.0, 1.0].
	Confidence float64
}

// Corrector replaces misheard vocabulary in transcripts. Safe for concurrent
// use; the corrector is read-only after construction.
type Corrector struct {
	matcher *phonetic.Matcher
}

// New returns a Corrector. Options are forwarded to the underlying phonetic
// matcher.
func New(opts ...phonetic.Option) *Corrector {
	return &Corrector{matcher: phonetic.New(opts...)}
}

// Correct returns text with misheard vocabulary spans replaced by their
// canonical spelling. The signature matches what the ingestion pipeline
// expects; use [Corrector.CorrectDetailed] to also inspect the substitutions.
func (c *Corrector) Correct(text string, vocabulary []string) string {
	out, _ := c.CorrectDetailed(text, vocabulary)
	return out
}

// CorrectDetailed scans text left to right with n-gram windows up to the
// longest vocabulary entry, preferring the longest match at each position so
// multi-word topics win over partial single-word matches. Trailing
// punctuation on a window's last token is preserved across substitution.
func (c *Corrector) CorrectDetailed(text string, vocabulary []string) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 || len(vocabulary) == 0 {
		return text, nil
	}

	// Vocabulary entries are grouped by word count so an n-token window is
	// only ever compared against n-word entries. Otherwise a window that
	// shares a single word with a long topic name would swallow it whole.
	byWords := make(map[int][]string)
	maxWords := 1
	for _, v := range vocabulary {
		n := len(strings.Fields(v))
		if n == 0 {
			continue
		}
		byWords[n] = append(byWords[n], v)
		if n > maxWords {
			maxWords = n
		}
	}

	var (
		output      []string
		corrections []Correction
	)

	i := 0
	for i < len(tokens) {
		maxN := maxWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			candidates := byWords[n]
			if len(candidates) == 0 {
				continue
			}
			window := strings.Join(tokens[i:i+n], " ")
			bare, punct := splitTrailingPunct(window)

			entity, conf, ok := c.matcher.Match(bare, candidates)
			if !ok {
				continue
			}

			output = append(output, strings.Fields(entity+punct)...)
			if entity != bare {
				corrections = append(corrections, Correction{
					Original:   bare,
					Corrected:  entity,
					Confidence: conf,
				})
			}
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}

// splitTrailingPunct separates closing punctuation from a span so "Sofia?"
// matches the name and keeps its question mark.
func splitTrailingPunct(s string) (bare, punct string) {
	cut := len(s)
	for cut > 0 && strings.ContainsRune(".,!?;:)\"'", rune(s[cut-1])) {
		cut--
	}
	return s[:cut], s[cut:]
}
