package evaluate

import (
	"fmt"
	"strings"

	"secq/internal/config"
)

// sourcePolicy returns the source-priority instructions for a mode.
func sourcePolicy(mode string) string {
	switch mode {
	case config.SourcesWebsite:
		return `# SOURCE INSTRUCTIONS
- Use ONLY the provided website content.
- Do not use or cite any local document.
- If no website content is relevant, answer exactly: not_found`
	case config.SourcesDocs:
		return `# SOURCE INSTRUCTIONS
- Use ONLY the provided local documents.
- If no document is relevant, answer exactly: not_found`
	default:
		return `# SOURCE PRIORITY
1. Check all website content first.
2. Consult local documents only when no website content is relevant.
3. Never combine information from different sources.
Website content takes precedence: if any of it is relevant, use it and ignore local documents.`
	}
}

const responseRules = `# RESPONSE RULES
- Base the answer on the single most relevant source.
- Say which part of that source supports the answer.
- One line only, no line breaks.
- Keep the reasoning to 40 words or fewer.
- For multi-part requirements, state which parts are covered.
- If no source is relevant, answer exactly: not_found

# RESPONSE FORMAT
[Compliant/Non-compliant/Partially Compliant] - [brief reasoning] (Reference: [source identifier], [section if applicable])`

func allowedList(allowed []string) string {
	if len(allowed) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, name := range allowed {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(name)
	}
	return b.String()
}

// BuildPrompt renders the first-pass prompt for one requirement.
func BuildPrompt(requirement, mode string, allowed []string) string {
	return fmt.Sprintf(`# TASK: EVALUATE THE REQUIREMENT AGAINST THE ATTACHED SOURCES
# ACTIVE SOURCES: %s

Requirement:
%q

%s

%s

Cite exactly one of these allowed sources:
%s`, strings.ToUpper(mode), requirement, sourcePolicy(mode), responseRules, allowedList(allowed))
}

// BuildReviewPrompt renders the deep-scan prompt used for escalated rows.
func BuildReviewPrompt(requirement, mode string, allowed []string, previous string) string {
	return fmt.Sprintf(`# TASK: SECOND REVIEW OF A LOW-CONFIDENCE ANSWER
# ACTIVE SOURCES: %s

Requirement:
%q

A first pass answered:
%q

Search every attached source exhaustively before answering. Read tables,
appendices and footnotes. Cite the specific section or page that
supports the answer. Answer not_found only if nothing in any source
addresses the requirement.

%s

%s

Cite exactly one of these allowed sources:
%s`, strings.ToUpper(mode), requirement, previous, sourcePolicy(mode), responseRules, allowedList(allowed))
}
