// Package plan defines the structured meeting plan consumed by the analysis
// engine and the markdown parser that produces it.
//
// A [Plan] captures the six sections of an IDOARRT meeting brief — Intent,
// Desired Outcomes, Agenda, Roles, Rules, and Time — as an immutable value
// object. Plans are validated once at parse time; downstream consumers treat
// them as read-only for the lifetime of the meeting.
package plan

import (
	"fmt"
	"strings"
)

// AgendaItem is one agenda entry with its time allocation.
type AgendaItem struct {
	// Topic is the discussion topic.
	Topic string `json:"topic"`

	// Minutes is the time allocated to this topic.
	Minutes int `json:"minutes"`
}

// Role assigns a person to a named meeting role (e.g. "Facilitator: Anna").
type Role struct {
	// Name is the role label. Unique within a plan.
	Name string `json:"name"`

	// Person is the participant assigned to the role.
	Person string `json:"person"`
}

// Plan is a validated meeting plan. Construct one via [Parse]; do not mutate
// after construction — the analysis engine reads it concurrently.
type Plan struct {
	// Intent is the meeting's purpose statement.
	Intent string `json:"intent"`

	// Outcomes lists the desired outcomes in document order.
	Outcomes []string `json:"outcomes"`

	// Agenda lists the agenda items in document order.
	Agenda []AgendaItem `json:"agenda"`

	// Roles maps role names to participants, in document order.
	Roles []Role `json:"roles"`

	// Rules lists the agreed meeting rules in document order.
	Rules []string `json:"rules"`

	// TotalMinutes is the declared total meeting duration. Always > 0 and
	// always equal to the sum of the agenda allocations.
	TotalMinutes int `json:"total_minutes"`
}

// Validate checks the structural invariants of p. It returns a [*ParseError]
// listing every violation found, or nil when the plan is coherent.
func (p Plan) Validate() error {
	var errs []string

	if strings.TrimSpace(p.Intent) == "" {
		errs = append(errs, "intent must not be empty")
	}
	if len(p.Outcomes) == 0 {
		errs = append(errs, "at least one desired outcome is required")
	}
	if len(p.Agenda) == 0 {
		errs = append(errs, "at least one agenda item is required")
	}
	if len(p.Roles) == 0 {
		errs = append(errs, "at least one role is required")
	}
	seen := make(map[string]bool, len(p.Roles))
	for _, r := range p.Roles {
		if seen[r.Name] {
			errs = append(errs, fmt.Sprintf("duplicate role %q", r.Name))
		}
		seen[r.Name] = true
	}
	if len(p.Rules) == 0 {
		errs = append(errs, "at least one rule is required")
	}
	if p.TotalMinutes <= 0 {
		errs = append(errs, "total time must be positive")
	}

	if len(p.Agenda) > 0 && p.TotalMinutes > 0 {
		sum := 0
		for _, item := range p.Agenda {
			sum += item.Minutes
		}
		if sum != p.TotalMinutes {
			errs = append(errs, fmt.Sprintf(
				"agenda times (%d min) don't match total time (%d min)", sum, p.TotalMinutes))
		}
	}

	if len(errs) > 0 {
		return &ParseError{Problems: errs}
	}
	return nil
}

// Vocabulary returns the proper nouns and topic terms a transcript of this
// meeting is likely to contain: every participant name and every agenda topic.
// Used by the transcript corrector to fix misheard names.
func (p Plan) Vocabulary() []string {
	var terms []string
	for _, r := range p.Roles {
		if r.Person != "" {
			terms = append(terms, r.Person)
		}
	}
	for _, item := range p.Agenda {
		if item.Topic != "" {
			terms = append(terms, item.Topic)
		}
	}
	return terms
}

// Summary renders a compact plain-text summary of the plan's intent and
// outcomes for inclusion in analysis prompts.
func (p Plan) Summary() string {
	var b strings.Builder
	b.WriteString("Intent: ")
	b.WriteString(p.Intent)
	b.WriteString("\n\nDesired outcomes:\n")
	for _, o := range p.Outcomes {
		b.WriteString("- ")
		b.WriteString(o)
		b.WriteString("\n")
	}
	return b.String()
}

// ParseError reports one or more problems found while parsing or validating
// a plan document. Problems are human-readable, field-level messages.
type ParseError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if len(e.Problems) == 1 {
		return "plan: " + e.Problems[0]
	}
	return "plan: " + strings.Join(e.Problems, "; ")
}
