// Package ui shows the progress of an investigation in the terminal.
package ui

import (
	"strings"

	"github.com/Cyclone1070/triage/internal/ui/models"
	"github.com/Cyclone1070/triage/internal/ui/services"
	"github.com/Cyclone1070/triage/internal/ui/views"
	"github.com/Cyclone1070/triage/internal/workflow"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// UI renders workflow events with Bubble Tea until the user quits.
type UI struct {
	program *tea.Program
}

// New creates a UI that consumes events. The producer must close events
// when it is done; the UI never writes to it.
func New(
	title string,
	events <-chan workflow.Event,
	renderer services.MarkdownRenderer,
	spinnerFactory SpinnerFactory,
	opts ...tea.ProgramOption,
) *UI {
	model := newBubbleTeaModel(title, events, renderer, spinnerFactory)
	return &UI{program: tea.NewProgram(model, opts...)}
}

// Run blocks until the user quits and returns the final state.
func (u *UI) Run() (models.State, error) {
	final, err := u.program.Run()
	if m, ok := final.(BubbleTeaModel); ok {
		return m.state, err
	}
	return models.State{}, err
}

// DefaultSpinner is the spinner used outside tests.
func DefaultSpinner() spinner.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = s.Style.Foreground(views.StatusThinkingStyle.GetForeground())
	return s
}

// RenderReport renders a finished report as terminal markdown, falling back
// to the plain text if rendering fails.
func RenderReport(report string, width int, renderer services.MarkdownRenderer) string {
	out, err := services.RenderMarkdown(report, width, renderer)
	if err != nil {
		return report
	}
	return strings.TrimRight(out, "\n") + "\n"
}
