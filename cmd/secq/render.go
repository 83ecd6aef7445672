package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"secq/internal/pipeline"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f59e0b"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

func renderSummary(s *pipeline.Summary) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Run complete"))
	b.WriteByte('\n')

	row := func(label string, n int, style lipgloss.Style) {
		fmt.Fprintf(&b, "%-10s %s\n", label, style.Render(fmt.Sprint(n)))
	}
	row("eligible", s.Eligible, dimStyle)
	row("written", s.Written, okStyle)
	row("reviewed", s.Reviewed, warnStyle)
	row("not found", s.NotFound, warnStyle)
	row("errors", s.Errors, errStyle)

	if len(s.Sources) > 0 {
		b.WriteString(titleStyle.Render("Sources"))
		b.WriteByte('\n')
		for _, src := range s.Sources {
			b.WriteString("  - " + src + "\n")
		}
	}
	b.WriteString(dimStyle.Render("run " + s.RunID + " took " + s.Duration.Round(time.Millisecond).String()))
	return boxStyle.Render(b.String())
}
