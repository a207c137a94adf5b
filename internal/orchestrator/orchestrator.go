// Package orchestrator runs the investigation loop: it alternates model turns
// with sandboxed tool executions until the model produces a report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Cyclone1070/triage/internal/config"
	"github.com/Cyclone1070/triage/internal/directive"
	"github.com/Cyclone1070/triage/internal/metrics"
	"github.com/Cyclone1070/triage/internal/provider"
	"github.com/Cyclone1070/triage/internal/retry"
	"github.com/Cyclone1070/triage/internal/sandbox"
	"github.com/Cyclone1070/triage/internal/workflow"
)

const (
	// DefaultReport is returned when the iteration ceiling is hit.
	DefaultReport = "Investigation completed but no analysis was generated."
	// FallbackMarker heads every report produced after a fatal failure.
	FallbackMarker = "Investigation Error"

	investigateFirstMessage = "Do not conclude yet. Investigate first: run at least one code snippet with the tool to gather live data, then write your analysis."
)

// Options tunes the loop.
type Options struct {
	MaxIterations   int
	Retry           retry.Policy
	Pacing          time.Duration
	RequireToolUse  bool
	ToolRecordLimit int
	ToolName        string
	Temperature     float32
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultConfig())
}

// OptionsFromConfig reads the orchestrator and provider sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxIterations:   cfg.Orchestrator.MaxIterations,
		Retry:           retry.Policy{MaxRetries: cfg.Orchestrator.MaxRetries},
		Pacing:          time.Duration(cfg.Orchestrator.PacingMs) * time.Millisecond,
		RequireToolUse:  cfg.Orchestrator.RequireToolUse,
		ToolRecordLimit: cfg.Orchestrator.ToolRecordLimit,
		ToolName:        cfg.Orchestrator.ToolName,
		Temperature:     cfg.Provider.Temperature,
	}
}

// Option configures optional collaborators.
type Option func(*Orchestrator)

// WithEvents streams progress events to ch. The orchestrator never closes ch.
func WithEvents(ch chan<- workflow.Event) Option {
	return func(o *Orchestrator) { o.events = ch }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSleeper replaces the clock used for backoff and pacing waits.
func WithSleeper(s retry.Sleeper) Option {
	return func(o *Orchestrator) { o.sleep = s }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator drives investigations. It holds no per-investigation state,
// so one value can run several investigations concurrently.
type Orchestrator struct {
	provider llmProvider
	runner   codeRunner
	parser   *directive.Parser
	opts     Options
	logger   *zap.Logger
	metrics  *metrics.Metrics
	events   chan<- workflow.Event
	sleep    retry.Sleeper
	now      func() time.Time
}

// New creates an Orchestrator.
func New(p llmProvider, r codeRunner, opts Options, logger *zap.Logger, options ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 100
	}
	if opts.ToolRecordLimit <= 0 {
		opts.ToolRecordLimit = 500
	}
	o := &Orchestrator{
		provider: p,
		runner:   r,
		parser:   directive.NewParser(opts.ToolName),
		opts:     opts,
		logger:   logger,
		sleep:    retry.Sleep,
		now:      time.Now,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// investigation is the state of one Investigate call.
type investigation struct {
	messages  []provider.Message
	entries   []ContextEntry
	toolCalls []ToolCallRecord
	iteration int
}

// Investigate runs the loop for prompt. It always returns a result: model
// failures produce a fallback report instead of an error.
func (o *Orchestrator) Investigate(ctx context.Context, prompt string) InvestigationResult {
	inv := &investigation{
		messages: []provider.Message{{Role: provider.RoleUser, Content: prompt}},
		entries:  []ContextEntry{{Kind: EntryPrompt, Timestamp: o.now(), Content: prompt}},
	}

	result := o.run(ctx, inv)
	result.FullContext = inv.entries
	result.IterationCount = inv.iteration
	result.ToolCalls = inv.toolCalls
	if result.ToolCalls == nil {
		result.ToolCalls = []ToolCallRecord{}
	}

	o.metrics.ObserveInvestigation(result.Outcome, result.IterationCount)
	o.logger.Info("investigation complete",
		zap.String("outcome", result.Outcome),
		zap.Int("iterations", result.IterationCount),
		zap.Int("tool_calls", len(result.ToolCalls)),
	)
	o.emit(workflow.DoneEvent{
		Report:     result.Report,
		Iterations: result.IterationCount,
		ToolCalls:  len(result.ToolCalls),
		Failed:     result.Outcome == OutcomeFallback,
	})
	return result
}

func (o *Orchestrator) run(ctx context.Context, inv *investigation) (result InvestigationResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("investigation panicked", zap.Any("panic", r))
			err := fmt.Errorf("internal error: %v", r)
			result = InvestigationResult{Report: FallbackReport(err), Outcome: OutcomeFallback, Err: err}
		}
	}()

	for inv.iteration < o.opts.MaxIterations {
		if err := ctx.Err(); err != nil {
			return o.fallback(err)
		}

		inv.iteration++
		o.emit(workflow.ThinkingEvent{Iteration: inv.iteration})

		text, err := o.generate(ctx, inv.messages)
		if err != nil {
			return o.fallback(err)
		}

		inv.messages = append(inv.messages, provider.Message{Role: provider.RoleAssistant, Content: text})
		inv.entries = append(inv.entries, ContextEntry{
			Kind:      EntryModelResponse,
			Timestamp: o.now(),
			Content:   text,
			Iteration: inv.iteration,
		})
		o.emit(workflow.TextEvent{Iteration: inv.iteration, Text: text})

		d := o.parser.Parse(text)
		switch {
		case !d.IsToolCall:
			if o.opts.RequireToolUse && inv.iteration == 1 && len(inv.toolCalls) == 0 {
				o.logger.Info("rejecting report written before any tool use")
				inv.messages = append(inv.messages, provider.Message{Role: provider.RoleUser, Content: investigateFirstMessage})
				continue
			}
			report := strings.TrimSpace(o.parser.StripTrailing(text))
			if report == "" {
				report = DefaultReport
			}
			return InvestigationResult{Report: report, Outcome: OutcomeReported}

		case d.Malformed():
			o.logger.Warn("tool directive without a code block", zap.Int("iteration", inv.iteration))
			o.emit(workflow.MalformedDirectiveEvent{Iteration: inv.iteration})
			inv.messages = append(inv.messages, provider.Message{Role: provider.RoleUser, Content: o.parser.CorrectiveMessage()})

		default:
			o.dispatch(ctx, inv, *d.Code)
			if err := o.sleep(ctx, o.opts.Pacing); err != nil {
				return o.fallback(err)
			}
		}
	}

	o.logger.Warn("iteration ceiling reached", zap.Int("max_iterations", o.opts.MaxIterations))
	return InvestigationResult{Report: DefaultReport, Outcome: OutcomeIterationLimit}
}

// generate calls the model, retrying transient failures per the retry policy.
func (o *Orchestrator) generate(ctx context.Context, messages []provider.Message) (string, error) {
	cfg := provider.GenerateConfig{Temperature: provider.Float32(o.opts.Temperature)}
	for attempt := 1; ; attempt++ {
		text, err := o.provider.Generate(ctx, messages, cfg)
		if err == nil {
			return text, nil
		}

		decision := o.opts.Retry.Decide(err, attempt)
		if !decision.Retry {
			if decision.Class != retry.ClassFatal {
				return "", fmt.Errorf("giving up after %d retries: %w", attempt-1, err)
			}
			return "", err
		}

		o.logger.Warn("model call failed, retrying",
			zap.String("class", decision.Class.String()),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", o.opts.Retry.MaxRetries),
			zap.Duration("wait", decision.Wait),
			zap.Error(err),
		)
		o.metrics.IncRetry(decision.Class.String())
		o.emit(workflow.RetryEvent{Attempt: attempt, Wait: decision.Wait, Class: decision.Class.String(), Err: err.Error()})

		if serr := o.sleep(ctx, decision.Wait); serr != nil {
			return "", errors.Join(err, serr)
		}
	}
}

// dispatch runs one snippet and feeds the outcome back to the model.
func (o *Orchestrator) dispatch(ctx context.Context, inv *investigation, code string) {
	o.emit(workflow.ToolStartEvent{ToolName: o.parser.ToolName(), Code: code})

	outcome, err := o.runner.Run(ctx, code)
	if err != nil {
		o.logger.Warn("tool execution failed", zap.Error(err))
		outcome = sandbox.ExecutionOutcome{Success: false, Stderr: "Tool execution failed: " + err.Error()}
	}
	output := outcome.CombinedOutput()

	inv.entries = append(inv.entries, ContextEntry{
		Kind:      EntryToolExecution,
		Timestamp: o.now(),
		Input:     code,
		Output:    &outcome,
	})
	inv.toolCalls = append(inv.toolCalls, ToolCallRecord{
		Input:  truncate(code, o.opts.ToolRecordLimit),
		Output: truncate(output, o.opts.ToolRecordLimit),
	})
	inv.messages = append(inv.messages, provider.Message{Role: provider.RoleUser, Content: toolResultMessage(outcome.Success, output)})

	o.metrics.IncToolCall(outcome.Success)
	o.emit(workflow.ToolEndEvent{
		ToolName:      o.parser.ToolName(),
		Success:       outcome.Success,
		Output:        output,
		ExecutionTime: outcome.ExecutionTime,
	})
}

func (o *Orchestrator) fallback(err error) InvestigationResult {
	o.logger.Error("investigation failed", zap.Error(err))
	return InvestigationResult{Report: FallbackReport(err), Outcome: OutcomeFallback, Err: err}
}

func (o *Orchestrator) emit(e workflow.Event) {
	if o.events != nil {
		o.events <- e
	}
}

// FallbackReport is the report returned when the model cannot be reached.
func FallbackReport(err error) string {
	return fmt.Sprintf(`%s
===================

An error occurred while invoking the model for investigation:
%v

Check the service logs for more details.

Troubleshooting steps:
1. Verify the API key environment variable is set and valid
2. Check that the configured model is available to your account
3. Ensure the sandbox endpoint is reachable if one is configured
`, FallbackMarker, err)
}

func toolResultMessage(success bool, output string) string {
	if strings.TrimSpace(output) == "" {
		output = "(no output)"
	}
	return fmt.Sprintf("Tool execution result:\nSuccess: %t\nOutput:\n%s", success, output)
}

// truncate caps s at limit runes.
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
