package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"answerd/internal/config"
)

// Override is the deterministic safety net over the model's research
// decision. Questions matching any force term are researched regardless of
// what the model decided; the model's freshness judgment is unreliable for
// exactly the class of queries where staleness matters most.
//
// The term lists come from configuration, so they can be extended without
// touching workflow control flow.
type Override struct {
	forcePatterns []*regexp.Regexp
	rolePatterns  []rolePattern
}

type rolePattern struct {
	role string
	re   *regexp.Regexp
}

// NewOverride compiles the configured pattern table. Terms are matched
// case-insensitively on word boundaries, so a short term like "cm" does not
// fire inside "acme".
func NewOverride(cfg config.ResearchConfig) *Override {
	o := &Override{}
	for _, term := range cfg.ForceTerms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		o.forcePatterns = append(o.forcePatterns,
			regexp.MustCompile(`\b`+regexp.QuoteMeta(term)+`\b`))
	}
	for _, term := range cfg.RoleTerms {
		role := strings.ToLower(strings.TrimSpace(term))
		if role == "" {
			continue
		}
		o.rolePatterns = append(o.rolePatterns, rolePattern{
			role: role,
			re:   regexp.MustCompile(`\b` + regexp.QuoteMeta(role) + `\s+of\s+(.+)`),
		})
	}
	return o
}

// Match reports whether question triggers the override.
func (o *Override) Match(question string) bool {
	lower := strings.ToLower(question)
	for _, re := range o.forcePatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// DeriveQuery builds a search query for a matched question. Questions
// naming a role and a place ("who is the chief minister of kerala") become
// "current <role> of <place>"; anything else becomes the question text
// suffixed with "current".
func (o *Override) DeriveQuery(question string) string {
	lower := strings.ToLower(question)
	for _, rp := range o.rolePatterns {
		m := rp.re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		place := strings.TrimSpace(strings.Trim(m[1], "?!. "))
		if place != "" {
			return fmt.Sprintf("current %s of %s", rp.role, place)
		}
	}
	return strings.TrimSpace(strings.Trim(question, "?!. ")) + " current"
}
