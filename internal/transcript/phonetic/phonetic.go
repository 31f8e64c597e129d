// Package phonetic matches misheard transcript words against a meeting's
// known vocabulary (participant names, plan terms, project jargon).
//
// Speech-to-text models reliably garble proper nouns: "Priya" comes out as
// "pre a", "Keystone" as "key stone". The words it substitutes usually still
// sound like the original, so the matcher works in two stages:
//
//  1. Double Metaphone codes are computed for every token of the input and of
//     each vocabulary term. Terms sharing at least one code with the input are
//     phonetic candidates.
//
//  2. Candidates are ranked by Jaro-Winkler similarity on the original
//     strings (case-insensitive). The best candidate wins if it clears the
//     phonetic threshold (default 0.70). When stage 1 produces no candidate
//     at all, a stricter pure-similarity pass runs against every term with
//     the fuzzy threshold (default 0.85).
//
// Multi-word terms such as "Quarterly Budget Review" work because codes are
// computed per token and similarity considers full-string, concatenated, and
// pairwise-token comparisons.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score a phonetic
// candidate must reach to be accepted. Default 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for the
// no-phonetic-candidate fallback pass. Default 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher ranks vocabulary terms against a possibly-misheard word.
// It is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] with the default thresholds, adjusted by opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// codeSet is a set of Double Metaphone codes.
type codeSet map[string]struct{}

// encode returns the union of Double Metaphone codes across tokens. Codes
// that come back empty (very short words, no consonants) are dropped.
func encode(tokens []string) codeSet {
	set := make(codeSet, 2*len(tokens))
	for _, tok := range tokens {
		primary, secondary := matchr.DoubleMetaphone(tok)
		if primary != "" {
			set[primary] = struct{}{}
		}
		if secondary != "" {
			set[secondary] = struct{}{}
		}
	}
	return set
}

func (s codeSet) intersects(other codeSet) bool {
	if len(other) < len(s) {
		s, other = other, s
	}
	for code := range s {
		if _, ok := other[code]; ok {
			return true
		}
	}
	return false
}

// Match finds the vocabulary term most phonetically similar to word.
//
// word may be a single token or a space-separated n-gram. When matched is
// false, corrected is word unchanged and confidence is 0; otherwise
// confidence carries the winning Jaro-Winkler score.
func (m *Matcher) Match(word string, entities []string) (corrected string, confidence float64, matched bool) {
	input := strings.ToLower(strings.TrimSpace(word))
	if input == "" || len(entities) == 0 {
		return word, 0, false
	}
	inputTokens := strings.Fields(input)
	inputCodes := encode(inputTokens)

	var (
		bestTerm     string
		bestScore    float64
		bestPhonetic bool
	)
	for _, term := range entities {
		normalized := strings.ToLower(strings.TrimSpace(term))
		if normalized == "" {
			continue
		}
		termTokens := strings.Fields(normalized)

		score := similarity(inputTokens, termTokens, input, normalized)
		soundsAlike := inputCodes.intersects(encode(termTokens))

		switch {
		case soundsAlike && score >= m.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				bestTerm, bestScore, bestPhonetic = term, score, true
			}
		case !soundsAlike && !bestPhonetic:
			// Fuzzy fallback never displaces a phonetic winner.
			if score >= m.fuzzyThreshold && score > bestScore {
				bestTerm, bestScore = term, score
			}
		}
	}

	if bestTerm == "" {
		return word, 0, false
	}
	return bestTerm, bestScore, true
}

// similarity is the highest Jaro-Winkler score across three comparisons:
// the full strings ("pre a" vs "priya"), the strings with spaces stripped
// ("prea" vs "priya"), and — when one side is a single token — the best
// token pair. The pairwise pass is skipped for two multi-word strings,
// where any window sharing one common word with a term would outscore the
// honest full-string comparison.
func similarity(inputTokens, termTokens []string, input, term string) float64 {
	score := matchr.JaroWinkler(input, term, false)

	if len(inputTokens) > 1 || len(termTokens) > 1 {
		joined := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(termTokens, ""), false)
		score = max(score, joined)
	}

	if len(inputTokens) == 1 || len(termTokens) == 1 {
		for _, it := range inputTokens {
			for _, tt := range termTokens {
				score = max(score, matchr.JaroWinkler(it, tt, false))
			}
		}
	}
	return score
}
