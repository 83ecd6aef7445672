package evaluate

import "strings"

// NotFound is the canonical answer when no source supports a verdict.
const NotFound = "not_found"

// ReviewedMarker is appended to second-pass answers.
const ReviewedMarker = " [REVIEWED]"

var notFoundIndicators = []string{
	"not_found",
	"insufficient information",
	"insufficient evidence",
	"cannot be found",
	"not found in the provided documents",
}

// DefaultReviewKeywords flag a first-pass answer for escalation.
var DefaultReviewKeywords = []string{
	"not_found", "uncertain", "partially", "i don't know", "i do not know", "don't know",
}

// Normalize maps empty or evidence-free answers to NotFound. When allowed
// is non-empty the answer must mention one of its identifiers.
func Normalize(raw string, allowed []string) string {
	text := strings.TrimSpace(raw)
	lower := strings.ToLower(text)
	if lower == "" {
		return NotFound
	}
	for _, ind := range notFoundIndicators {
		if strings.Contains(lower, ind) {
			return NotFound
		}
	}

	if len(allowed) > 0 {
		cited := false
		for _, name := range allowed {
			if name != "" && strings.Contains(lower, strings.ToLower(name)) {
				cited = true
				break
			}
		}
		if !cited {
			return NotFound
		}
	}
	return text
}

// NeedsReview reports whether statement contains an escalation keyword.
func NeedsReview(statement string, keywords []string) bool {
	lower := strings.ToLower(statement)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
