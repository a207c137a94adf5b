package views

import "github.com/charmbracelet/lipgloss"

var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).Padding(0, 1)

	StatusDefaultStyle   = lipgloss.NewStyle().Padding(0, 1)
	StatusThinkingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Padding(0, 1)
	StatusExecutingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Padding(0, 1)
	StatusRetryingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Padding(0, 1)
	StatusDoneStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Padding(0, 1)
	StatusFailedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Padding(0, 1)

	ModelEntryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	ToolOKStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	ToolFailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	WarnStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	OutputStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingLeft(2)
	HelpStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1)
)
