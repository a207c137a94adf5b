package views

import (
	"github.com/Cyclone1070/triage/internal/ui/models"
	"github.com/charmbracelet/lipgloss"
)

// RenderRoot renders the complete UI layout
func RenderRoot(s models.State) string {
	help := "ctrl+c abort"
	if s.Done {
		help = "↑/↓ scroll · q quit"
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		TitleStyle.Render(s.Title),
		RenderLog(s),
		RenderStatus(s),
		HelpStyle.Render(help),
	)
}
