package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	detailStyle = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("250"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
)

// renderResult writes the outcome of an operator command. In plain mode the
// output is one key=value line per detail, suitable for scripts.
func renderResult(w io.Writer, plain bool, title string, details []string, err error) {
	if plain {
		status := "ok"
		if err != nil {
			status = "error"
		}
		_, _ = fmt.Fprintf(w, "command=%q status=%s\n", title, status)
		for _, d := range details {
			_, _ = fmt.Fprintln(w, d)
		}
		if err != nil {
			_, _ = fmt.Fprintf(w, "error=%q\n", err.Error())
		}
		return
	}

	lines := []string{titleStyle.Render(title)}
	if err != nil {
		lines = append(lines, failStyle.Render("✗ "+err.Error()))
	} else {
		lines = append(lines, okStyle.Render("✓ done"))
	}
	for _, d := range details {
		lines = append(lines, detailStyle.Render(d))
	}
	_, _ = fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}
