package ui

import (
	"fmt"
	"time"

	"github.com/Cyclone1070/triage/internal/ui/models"
	"github.com/Cyclone1070/triage/internal/ui/services"
	"github.com/Cyclone1070/triage/internal/ui/views"
	"github.com/Cyclone1070/triage/internal/workflow"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// BubbleTeaModel implements tea.Model
type BubbleTeaModel struct {
	state models.State

	renderer services.MarkdownRenderer
	events   <-chan workflow.Event
}

// SpinnerFactory creates a new spinner
type SpinnerFactory func() spinner.Model

func newBubbleTeaModel(
	title string,
	events <-chan workflow.Event,
	renderer services.MarkdownRenderer,
	spinnerFactory SpinnerFactory,
) BubbleTeaModel {
	return BubbleTeaModel{
		state: models.State{
			Title:       title,
			Viewport:    viewport.New(80, 20),
			Spinner:     spinnerFactory(),
			StatusPhase: "thinking",
		},
		renderer: renderer,
		events:   events,
	}
}

// Internal messages
type tickMsg time.Time
type eventMsg struct{ event workflow.Event }
type eventsClosedMsg struct{}

// Init starts the spinner and the event listener
func (m BubbleTeaModel) Init() tea.Cmd {
	return tea.Batch(
		m.state.Spinner.Tick,
		tick(),
		listenForEvents(m.events),
	)
}

// Update handles messages
func (m BubbleTeaModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q", "esc", "enter":
			if m.state.Done {
				return m, tea.Quit
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.state.Width = msg.Width
		m.state.Height = msg.Height
		m.state.Viewport.Width = msg.Width
		m.state.Viewport.Height = max(msg.Height-4, 1) // title, status and help lines
		m.updateViewport()
		return m, nil

	case tickMsg:
		if m.state.Done {
			return m, nil
		}
		m.state.DotCount = (m.state.DotCount + 1) % 4
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.state.Spinner, cmd = m.state.Spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.apply(msg.event)
		m.updateViewport()
		return m, listenForEvents(m.events)

	case eventsClosedMsg:
		if !m.state.Done {
			m.state.Done = true
			m.state.Failed = true
			m.state.StatusPhase = "failed"
			m.state.StatusMessage = "Investigation ended without a report"
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.state.Viewport, cmd = m.state.Viewport.Update(msg)
	return m, cmd
}

// View renders the UI
func (m BubbleTeaModel) View() string {
	return views.RenderRoot(m.state)
}

// apply folds one workflow event into the state.
func (m *BubbleTeaModel) apply(e workflow.Event) {
	s := &m.state
	switch e := e.(type) {
	case workflow.ThinkingEvent:
		s.Iteration = e.Iteration
		s.StatusPhase = "thinking"
		s.StatusMessage = ""

	case workflow.RetryEvent:
		s.StatusPhase = "retrying"
		s.StatusMessage = fmt.Sprintf("Retrying model call in %s (attempt %d)", e.Wait, e.Attempt)
		s.Entries = append(s.Entries, models.Entry{
			Kind:  models.EntryRetry,
			Title: fmt.Sprintf("Model call failed (%s): %s", e.Class, e.Err),
		})

	case workflow.TextEvent:
		s.Entries = append(s.Entries, models.Entry{
			Kind:  models.EntryModel,
			Title: fmt.Sprintf("[%d] %s", e.Iteration, services.Headline(e.Text)),
		})

	case workflow.ToolStartEvent:
		s.PendingTool = services.FormatToolDescription(e.ToolName, e.Code)
		s.StatusPhase = "executing"
		s.StatusMessage = s.PendingTool

	case workflow.ToolEndEvent:
		s.ToolCalls++
		s.Entries = append(s.Entries, models.Entry{
			Kind:    models.EntryTool,
			Title:   fmt.Sprintf("%s (%.2fs)", s.PendingTool, e.ExecutionTime),
			Body:    e.Output,
			Success: e.Success,
		})
		s.PendingTool = ""
		s.StatusPhase = "thinking"
		s.StatusMessage = ""

	case workflow.MalformedDirectiveEvent:
		s.Entries = append(s.Entries, models.Entry{
			Kind:  models.EntryMalformed,
			Title: "Tool request had no code block; asked the model to resend",
		})

	case workflow.DoneEvent:
		s.Done = true
		s.Failed = e.Failed
		s.Report = e.Report
		s.Iteration = e.Iterations
		s.ToolCalls = e.ToolCalls
		if e.Failed {
			s.StatusPhase = "failed"
			s.StatusMessage = "Investigation failed"
		} else {
			s.StatusPhase = "done"
			s.StatusMessage = "Investigation complete"
		}
	}
}

func (m *BubbleTeaModel) updateViewport() {
	content := views.FormatLogContent(m.state, m.state.Width-4, m.renderer)
	m.state.Viewport.SetContent(content)
	if !m.state.Done {
		m.state.Viewport.GotoBottom()
	}
}

func listenForEvents(ch <-chan workflow.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: e}
	}
}

func tick() tea.Cmd {
	return tea.Tick(300*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
