// Package workflow defines the progress events an investigation emits.
package workflow

import "time"

// Event is the interface for all workflow events.
// UI handles events via type switch.
type Event interface {
	isEvent()
}

// ThinkingEvent is emitted before each model call.
type ThinkingEvent struct {
	Iteration int
}

func (ThinkingEvent) isEvent() {}

// RetryEvent is emitted when a failed model call will be retried.
type RetryEvent struct {
	Attempt int
	Wait    time.Duration
	Class   string
	Err     string
}

func (RetryEvent) isEvent() {}

// TextEvent is emitted when the model produces text output.
type TextEvent struct {
	Iteration int
	Text      string
}

func (TextEvent) isEvent() {}

// ToolStartEvent is emitted when a snippet is sent for execution.
type ToolStartEvent struct {
	ToolName string
	Code     string
}

func (ToolStartEvent) isEvent() {}

// ToolEndEvent is emitted when a snippet execution completes.
type ToolEndEvent struct {
	ToolName      string
	Success       bool
	Output        string
	ExecutionTime float64
}

func (ToolEndEvent) isEvent() {}

// MalformedDirectiveEvent is emitted when the model asks for a tool without a code block.
type MalformedDirectiveEvent struct {
	Iteration int
}

func (MalformedDirectiveEvent) isEvent() {}

// DoneEvent is emitted when the investigation completes.
type DoneEvent struct {
	Report     string
	Iterations int
	ToolCalls  int
	Failed     bool
}

func (DoneEvent) isEvent() {}
