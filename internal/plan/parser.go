package plan

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// requiredSections are the top-level markdown headers a plan document must
// contain, in any order.
var requiredSections = []string{"Intent", "Desired Outcomes", "Agenda", "Roles", "Rules", "Time"}

var (
	headerRe      = regexp.MustCompile(`^#\s+(.+)$`)
	agendaRe      = regexp.MustCompile(`(?i)^\d+\.\s+(.+?)\s*\((\d+)\s*min\)$`)
	agendaBareRe  = regexp.MustCompile(`^\d+\.\s+(.+?)\s*\((\d+)\)$`)
	numberedRe    = regexp.MustCompile(`^\d+\.`)
	totalTimeRe   = regexp.MustCompile(`(?i)Total:\s*(\d+)\s*(?:minutes?|min)?`)
)

// Parse parses an IDOARRT markdown document into a validated [Plan].
//
// Expected document shape:
//
//	# Intent
//	Decide the Q3 roadmap.
//
//	# Desired Outcomes
//	- A prioritised feature list
//
//	# Agenda
//	1. Review proposals (15 min)
//	2. Prioritise (15 min)
//
//	# Roles
//	- Facilitator: Anna
//
//	# Rules
//	- One conversation at a time
//
//	# Time
//	Total: 30 minutes
//
// Parse returns a [*ParseError] describing every field-level problem found,
// including agenda allocations that do not sum to the declared total.
func Parse(markdown string) (Plan, error) {
	sections := splitSections(markdown)

	var missing []string
	for _, s := range requiredSections {
		if _, ok := sections[s]; !ok {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return Plan{}, &ParseError{Problems: []string{
			"missing required sections: " + strings.Join(missing, ", "),
		}}
	}

	var problems []string

	intent := strings.TrimSpace(sections["Intent"])
	if intent == "" {
		problems = append(problems, "intent must not be empty")
	}

	outcomes := parseBullets(sections["Desired Outcomes"])
	if len(outcomes) == 0 {
		problems = append(problems, "desired outcomes must have at least one item")
	}

	agenda, agendaProblems := parseAgenda(sections["Agenda"])
	problems = append(problems, agendaProblems...)

	roles := parseRoles(sections["Roles"])
	if len(roles) == 0 {
		problems = append(problems, "roles must have at least one role defined")
	}

	rules := parseBullets(sections["Rules"])
	if len(rules) == 0 {
		problems = append(problems, "rules must have at least one rule")
	}

	total, err := parseTotal(sections["Time"])
	if err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return Plan{}, &ParseError{Problems: problems}
	}

	p := Plan{
		Intent:       intent,
		Outcomes:     outcomes,
		Agenda:       agenda,
		Roles:        roles,
		Rules:        rules,
		TotalMinutes: total,
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// splitSections splits a markdown document into sections keyed by their
// top-level "# Header" text. Content before the first header is discarded.
func splitSections(markdown string) map[string]string {
	sections := make(map[string]string)
	var current string
	var content []string

	flush := func() {
		if current != "" {
			sections[current] = strings.TrimSpace(strings.Join(content, "\n"))
		}
	}

	for _, line := range strings.Split(markdown, "\n") {
		if m := headerRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			flush()
			current = m[1]
			content = content[:0]
			continue
		}
		if current != "" {
			content = append(content, line)
		}
	}
	flush()
	return sections
}

// parseBullets extracts "-" or "*" bullet items, trimmed, skipping empties.
func parseBullets(content string) []string {
	var items []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*") {
			if item := strings.TrimSpace(line[1:]); item != "" {
				items = append(items, item)
			}
		}
	}
	return items
}

// parseAgenda parses numbered agenda lines of the form "1. Topic (15 min)".
// The "min" suffix is optional. Numbered items without a time allocation are
// reported as problems rather than silently skipped.
func parseAgenda(content string) ([]AgendaItem, []string) {
	var items []AgendaItem
	var problems []string

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		m := agendaRe.FindStringSubmatch(line)
		if m == nil {
			m = agendaBareRe.FindStringSubmatch(line)
		}
		if m != nil {
			minutes, _ := strconv.Atoi(m[2])
			items = append(items, AgendaItem{Topic: strings.TrimSpace(m[1]), Minutes: minutes})
			continue
		}
		if numberedRe.MatchString(line) {
			problems = append(problems, fmt.Sprintf("agenda item missing time allocation: %s", line))
		}
	}

	if len(items) == 0 && len(problems) == 0 {
		problems = append(problems, "agenda must have at least one item")
	}
	return items, problems
}

// parseRoles parses bullet lines of the form "- Facilitator: Anna".
// Bullets without a colon are ignored.
func parseRoles(content string) []Role {
	var roles []Role
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "*") {
			continue
		}
		line = strings.TrimSpace(line[1:])
		name, person, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		roles = append(roles, Role{
			Name:   strings.TrimSpace(name),
			Person: strings.TrimSpace(person),
		})
	}
	return roles
}

// parseTotal extracts the declared total duration from the Time section.
func parseTotal(content string) (int, error) {
	m := totalTimeRe.FindStringSubmatch(content)
	if m == nil {
		return 0, fmt.Errorf("time section must contain 'Total: NN minutes'")
	}
	total, _ := strconv.Atoi(m[1])
	if total <= 0 {
		return 0, fmt.Errorf("total time must be positive")
	}
	return total, nil
}
