package evaluate

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultSimilarityThreshold is the minimum fuzzy ratio for a correction.
const DefaultSimilarityThreshold = 0.6

var (
	// A parenthesized or bracketed group.
	citationGroup = regexp.MustCompile(`[\(\[][^\)\]]*[\)\]]`)
	// The labelled identifier inside a group, up to a comma or the close.
	citationLabel = regexp.MustCompile(`(?i)\b(Reference|Source|Document|From)(\s*:\s*)([^,\)\]\n]+)`)
)

// CorrectCitations rewrites cited identifiers to their allowed spelling:
// exact match, then substring containment, then the best fuzzy match at
// or above threshold. Citations that match nothing are left unchanged.
func CorrectCitations(text string, allowed []string, threshold float64) string {
	if len(allowed) == 0 {
		return text
	}
	return citationGroup.ReplaceAllStringFunc(text, func(group string) string {
		return citationLabel.ReplaceAllStringFunc(group, func(label string) string {
			m := citationLabel.FindStringSubmatch(label)
			cited := strings.TrimSpace(m[3])
			fixed, ok := matchSource(cited, allowed, threshold)
			if !ok || fixed == cited {
				return label
			}
			return m[1] + m[2] + fixed
		})
	})
}

func matchSource(cited string, allowed []string, threshold float64) (string, bool) {
	c := strings.ToLower(cited)
	if c == "" {
		return "", false
	}

	for _, name := range allowed {
		if strings.ToLower(name) == c {
			return name, true
		}
	}

	if len(c) >= 3 {
		for _, name := range allowed {
			n := strings.ToLower(name)
			if strings.Contains(n, c) || strings.Contains(c, n) {
				return name, true
			}
		}
	}

	best, bestRatio := "", 0.0
	for _, name := range allowed {
		if r := similarity(c, strings.ToLower(name)); r > bestRatio {
			best, bestRatio = name, r
		}
	}
	if best != "" && bestRatio >= threshold {
		return best, true
	}
	return "", false
}

// similarity is the difflib ratio over characters.
func similarity(a, b string) float64 {
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}
