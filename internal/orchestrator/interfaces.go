package orchestrator

import (
	"context"

	"github.com/Cyclone1070/triage/internal/provider"
	"github.com/Cyclone1070/triage/internal/sandbox"
)

// llmProvider communicates with an LLM.
type llmProvider interface {
	// Generate sends the conversation and returns the assistant's reply text.
	Generate(ctx context.Context, messages []provider.Message, cfg provider.GenerateConfig) (string, error)
}

// codeRunner executes a snippet, in-process or remotely.
type codeRunner interface {
	// Run returns an error only when the snippet could not be delivered or
	// its outcome could not be read. Snippet failures live in the outcome.
	Run(ctx context.Context, code string) (sandbox.ExecutionOutcome, error)
}
