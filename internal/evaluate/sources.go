package evaluate

import (
	"path"
	"strings"

	"secq/internal/config"
	"secq/internal/evidence"
)

// NewAllowedSources builds the citable identifiers for a run: the display
// name of every active handle, then "Website: <url>" for configured sites
// not already present when the mode includes websites.
func NewAllowedSources(handles []evidence.Handle, websites []string, mode string) []string {
	var allowed []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		allowed = append(allowed, name)
	}

	for _, h := range handles {
		name := h.DisplayName
		if name == "" {
			name = path.Base(h.ID)
		}
		add(name)
	}

	if mode == config.SourcesBoth || mode == config.SourcesWebsite {
		joined := strings.Join(allowed, "\n")
		for _, u := range websites {
			if !strings.Contains(joined, u) {
				add("Website: " + u)
			}
		}
	}
	return allowed
}
