package chat

import (
	"regexp"
	"strings"
)

var researchQueryRe = regexp.MustCompile(`(?i)RESEARCH_QUERY\s*:\s*(.+)`)

// extractResearchQuery returns the query the model asked for, or "" when it
// asked for none.
func extractResearchQuery(reply string) string {
	m := researchQueryRe.FindStringSubmatch(reply)
	if m == nil {
		return ""
	}
	q := strings.TrimSpace(m[1])
	if strings.EqualFold(q, "NONE") {
		return ""
	}
	return q
}
