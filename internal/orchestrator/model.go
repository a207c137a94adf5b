package orchestrator

import (
	"time"

	"github.com/Cyclone1070/triage/internal/sandbox"
)

// EntryKind identifies a ContextEntry variant.
type EntryKind string

const (
	EntryPrompt        EntryKind = "prompt"
	EntryModelResponse EntryKind = "model_response"
	EntryToolExecution EntryKind = "tool_execution"
)

// ContextEntry is one record in the audit trail of an investigation.
// Which fields are set depends on Kind.
type ContextEntry struct {
	Kind      EntryKind `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// prompt and model_response
	Content string `json:"content,omitempty"`
	// model_response only
	Iteration int `json:"iteration,omitempty"`

	// tool_execution only
	Input  string                    `json:"input,omitempty"`
	Output *sandbox.ExecutionOutcome `json:"output,omitempty"`
}

// ToolCallRecord is a truncated summary of one tool dispatch.
type ToolCallRecord struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// InvestigationResult is what one investigation produces.
type InvestigationResult struct {
	Report         string           `json:"report"`
	FullContext    []ContextEntry   `json:"full_context"`
	IterationCount int              `json:"iteration_count"`
	ToolCalls      []ToolCallRecord `json:"tool_calls"`

	// Outcome is "reported", "fallback" or "iteration_limit".
	Outcome string `json:"outcome"`
	// Err holds the fatal error behind a fallback report.
	Err error `json:"-"`
}

const (
	OutcomeReported       = "reported"
	OutcomeFallback       = "fallback"
	OutcomeIterationLimit = "iteration_limit"
)
