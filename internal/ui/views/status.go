package views

import (
	"fmt"
	"strings"

	"github.com/Cyclone1070/triage/internal/ui/models"
	"github.com/charmbracelet/lipgloss"
)

// RenderStatus renders the status bar
func RenderStatus(s models.State) string {
	var icon string
	var style lipgloss.Style

	switch s.StatusPhase {
	case "thinking":
		icon = s.Spinner.View()
		style = StatusThinkingStyle
		dots := strings.Repeat(".", s.DotCount)
		return style.Render(fmt.Sprintf("%s Investigating (iteration %d)%s", icon, s.Iteration, dots))
	case "executing":
		icon = s.Spinner.View()
		style = StatusExecutingStyle
	case "retrying":
		icon = "↻"
		style = StatusRetryingStyle
	case "done":
		icon = "✔"
		style = StatusDoneStyle
	case "failed":
		icon = "✘"
		style = StatusFailedStyle
	default:
		style = StatusDefaultStyle
	}

	status := "Waiting"
	if s.StatusMessage != "" {
		status = fmt.Sprintf("%s %s", icon, s.StatusMessage)
	} else if icon != "" {
		status = icon
	}

	counts := StatusDefaultStyle.
		Foreground(lipgloss.Color("241")).
		Render(fmt.Sprintf("iterations %d · tool calls %d", s.Iteration, s.ToolCalls))

	return fmt.Sprintf("%s  %s", style.Render(status), counts)
}
