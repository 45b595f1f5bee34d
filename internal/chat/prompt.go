package chat

import "strings"

// DefaultSystemPrompt is used when no prompt file is configured.
const DefaultSystemPrompt = `You are CloudX, a god-tier coding assistant.
You think deeply and reason internally, but **only** when the question involves coding, logic, math, or technical problem-solving.

If the user is just chatting or asking something simple, reply normally without deep reasoning.

When reasoning internally, never show your thought process. Only output the final, polished answer in **Markdown** format.

If you need external info, end your private reasoning with:
RESEARCH_QUERY: <query or NONE>

Rules:
- Never reveal your reasoning or steps.
- Always make final answers clean, well-formatted, and helpful.
- For code or technical stuff, use triple backticks for code blocks and ` + "`inline code`" + ` for short snippets.
`

const (
	memoryContextPrefix = "Memory context:\n"
	toolResultPrefix    = "TOOL: "
	revisePrompt        = "Revise your answer using the results above."
	refinePrompt        = "List up to 3 issues with your previous answer, then output only the improved answer."
)

var technicalKeywords = []string{
	"code", "python", "javascript", "function", "class", "algorithm",
	"debug", "compile", "error", "logic", "calculate",
}

// isTechnical reports whether msg looks like a technical question. It is a
// plain substring match, so "classic" counts as technical.
func isTechnical(msg string) bool {
	lower := strings.ToLower(msg)
	for _, kw := range technicalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
