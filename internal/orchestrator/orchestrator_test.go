package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Cyclone1070/triage/internal/config"
	"github.com/Cyclone1070/triage/internal/metrics"
	"github.com/Cyclone1070/triage/internal/provider"
	"github.com/Cyclone1070/triage/internal/retry"
	"github.com/Cyclone1070/triage/internal/sandbox"
	"github.com/Cyclone1070/triage/internal/workflow"
)

type mockProvider struct {
	generateFunc func(ctx context.Context, messages []provider.Message, cfg provider.GenerateConfig) (string, error)
	calls        int
}

func (m *mockProvider) Generate(ctx context.Context, messages []provider.Message, cfg provider.GenerateConfig) (string, error) {
	m.calls++
	return m.generateFunc(ctx, messages, cfg)
}

type mockRunner struct {
	runFunc func(ctx context.Context, code string) (sandbox.ExecutionOutcome, error)
	codes   []string
}

func (m *mockRunner) Run(ctx context.Context, code string) (sandbox.ExecutionOutcome, error) {
	m.codes = append(m.codes, code)
	if m.runFunc != nil {
		return m.runFunc(ctx, code)
	}
	return sandbox.ExecutionOutcome{Success: true, Stdout: "ok\n"}, nil
}

// recordingSleeper records waits instead of sleeping.
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

// backoffWaits drops the zero-length pacing waits.
func (s *recordingSleeper) backoffWaits() []time.Duration {
	var out []time.Duration
	for _, w := range s.waits {
		if w > 0 {
			out = append(out, w)
		}
	}
	return out
}

func toolCall(code string) string {
	return "TOOL: python_executor\n```python\n" + code + "\n```"
}

func newTestOrchestrator(p llmProvider, r codeRunner, mutate func(*Options), options ...Option) (*Orchestrator, *recordingSleeper) {
	opts := DefaultOptions()
	opts.Pacing = 0
	if mutate != nil {
		mutate(&opts)
	}
	sleeper := &recordingSleeper{}
	options = append([]Option{WithSleeper(sleeper.Sleep)}, options...)
	return New(p, r, opts, zap.NewNop(), options...), sleeper
}

func TestInvestigate_NoToolUse(t *testing.T) {
	mp := &mockProvider{generateFunc: func(_ context.Context, messages []provider.Message, cfg provider.GenerateConfig) (string, error) {
		require.Len(t, messages, 1)
		assert.Equal(t, provider.RoleUser, messages[0].Role)
		assert.Equal(t, "investigate alarm X", messages[0].Content)
		require.NotNil(t, cfg.Temperature)
		return "## Root cause\nDisk full.", nil
	}}
	mr := &mockRunner{}
	o, _ := newTestOrchestrator(mp, mr, nil)

	res := o.Investigate(context.Background(), "investigate alarm X")

	assert.Equal(t, 1, res.IterationCount)
	assert.Empty(t, res.ToolCalls)
	assert.NotNil(t, res.ToolCalls)
	assert.Equal(t, "## Root cause\nDisk full.", res.Report)
	assert.Equal(t, OutcomeReported, res.Outcome)
	require.Len(t, res.FullContext, 2)
	assert.Equal(t, EntryPrompt, res.FullContext[0].Kind)
	assert.Equal(t, EntryModelResponse, res.FullContext[1].Kind)
	assert.Equal(t, 1, res.FullContext[1].Iteration)
	assert.Empty(t, mr.codes)
}

func TestInvestigate_OneToolRound(t *testing.T) {
	mp := &mockProvider{}
	mp.generateFunc = func(_ context.Context, messages []provider.Message, _ provider.GenerateConfig) (string, error) {
		if mp.calls == 1 {
			return toolCall("print(REGION)"), nil
		}
		require.Len(t, messages, 3)
		last := messages[2]
		assert.Equal(t, provider.RoleUser, last.Role)
		assert.Contains(t, last.Content, "Success: true")
		assert.Contains(t, last.Content, "us-east-1")
		return "Final analysis.", nil
	}
	mr := &mockRunner{runFunc: func(_ context.Context, code string) (sandbox.ExecutionOutcome, error) {
		return sandbox.ExecutionOutcome{Success: true, Stdout: "us-east-1\n"}, nil
	}}
	o, _ := newTestOrchestrator(mp, mr, nil)

	res := o.Investigate(context.Background(), "prompt")

	assert.Equal(t, 2, res.IterationCount)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "print(REGION)", res.ToolCalls[0].Input)
	assert.Equal(t, "us-east-1\n", res.ToolCalls[0].Output)
	assert.Equal(t, []string{"print(REGION)"}, mr.codes)

	require.Len(t, res.FullContext, 4)
	kinds := []EntryKind{}
	for _, e := range res.FullContext {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []EntryKind{EntryPrompt, EntryModelResponse, EntryToolExecution, EntryModelResponse}, kinds)
	assert.Equal(t, "print(REGION)", res.FullContext[2].Input)
	require.NotNil(t, res.FullContext[2].Output)
	assert.True(t, res.FullContext[2].Output.Success)
	assert.Equal(t, "Final analysis.", res.Report)
}

func TestInvestigate_FatalError(t *testing.T) {
	mp := &mockProvider{generateFunc: func(context.Context, []provider.Message, provider.GenerateConfig) (string, error) {
		return "", &provider.ProviderError{Code: provider.ErrorCodeAuth, Message: "ValidationException: bad model id"}
	}}
	o, sleeper := newTestOrchestrator(mp, &mockRunner{}, nil)

	res := o.Investigate(context.Background(), "prompt")

	assert.Equal(t, 1, mp.calls)
	assert.Equal(t, 1, res.IterationCount)
	assert.Contains(t, res.Report, FallbackMarker)
	assert.Contains(t, res.Report, "ValidationException: bad model id")
	assert.Equal(t, OutcomeFallback, res.Outcome)
	assert.Error(t, res.Err)
	assert.Empty(t, sleeper.waits)
	assert.Len(t, res.FullContext, 1)
}

func TestInvestigate_IterationCeiling(t *testing.T) {
	mp := &mockProvider{generateFunc: func(context.Context, []provider.Message, provider.GenerateConfig) (string, error) {
		return toolCall("result = 1"), nil
	}}
	mr := &mockRunner{}
	o, _ := newTestOrchestrator(mp, mr, nil)

	res := o.Investigate(context.Background(), "prompt")

	assert.Equal(t, 100, res.IterationCount)
	assert.Equal(t, 100, mp.calls)
	assert.Len(t, res.ToolCalls, 100)
	assert.Equal(t, DefaultReport, res.Report)
	assert.Equal(t, OutcomeIterationLimit, res.Outcome)
	assert.Len(t, res.FullContext, 1+2*100)
}

func TestInvestigate_RetriesThenSucceeds(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		failures  int
		wantWaits []time.Duration
	}{
		{
			name:      "throttle",
			err:       &provider.ProviderError{Code: provider.ErrorCodeRateLimit, Message: "slow down"},
			failures:  3,
			wantWaits: []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second},
		},
		{
			name:      "timeout",
			err:       errors.New("ReadTimeoutError: Read timeout on endpoint URL"),
			failures:  2,
			wantWaits: []time.Duration{5 * time.Second, 10 * time.Second},
		},
		{
			name:      "throttling text signal",
			err:       errors.New("An error occurred (ThrottlingException) when calling InvokeModel"),
			failures:  1,
			wantWaits: []time.Duration{2 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mp := &mockProvider{}
			mp.generateFunc = func(context.Context, []provider.Message, provider.GenerateConfig) (string, error) {
				if mp.calls <= tt.failures {
					return "", tt.err
				}
				return "done", nil
			}
			reg := prometheus.NewRegistry()
			m := metrics.New(reg)
			o, sleeper := newTestOrchestrator(mp, &mockRunner{}, nil, WithMetrics(m))

			res := o.Investigate(context.Background(), "prompt")

			assert.Equal(t, tt.failures+1, mp.calls)
			assert.Equal(t, tt.wantWaits, sleeper.backoffWaits())
			assert.Equal(t, 1, res.IterationCount, "retries do not count as iterations")
			assert.Equal(t, "done", res.Report)
			total := testutil.ToFloat64(m.LLMRetriesTotal.WithLabelValues("throttle")) +
				testutil.ToFloat64(m.LLMRetriesTotal.WithLabelValues("timeout"))
			assert.Equal(t, float64(tt.failures), total)
		})
	}
}

func TestInvestigate_RetriesExhausted(t *testing.T) {
	mp := &mockProvider{generateFunc: func(context.Context, []provider.Message, provider.GenerateConfig) (string, error) {
		return "", &provider.ProviderError{Code: provider.ErrorCodeQuota, Message: "quota exhausted"}
	}}
	o, sleeper := newTestOrchestrator(mp, &mockRunner{}, nil)

	res := o.Investigate(context.Background(), "prompt")

	assert.Equal(t, 4, mp.calls)
	assert.Len(t, sleeper.backoffWaits(), 3)
	assert.Contains(t, res.Report, FallbackMarker)
	assert.Contains(t, res.Report, "quota exhausted")
	assert.Equal(t, 1, res.IterationCount)
}

func TestInvestigate_MalformedDirective(t *testing.T) {
	mp := &mockProvider{}
	mp.generateFunc = func(_ context.Context, messages []provider.Message, _ provider.GenerateConfig) (string, error) {
		switch mp.calls {
		case 1:
			return "TOOL: python_executor\nI will check the logs now.", nil
		case 2:
			last := messages[len(messages)-1]
			assert.Equal(t, provider.RoleUser, last.Role)
			assert.Contains(t, last.Content, "TOOL: python_executor")
			return toolCall("print(1)"), nil
		default:
			return "Report.", nil
		}
	}
	mr := &mockRunner{}
	o, _ := newTestOrchestrator(mp, mr, nil)

	res := o.Investigate(context.Background(), "prompt")

	assert.Equal(t, 3, res.IterationCount)
	assert.Len(t, mr.codes, 1)
	assert.Len(t, res.ToolCalls, 1)
	// prompt, malformed response, tool response, tool execution, report
	assert.Len(t, res.FullContext, 5)
	assert.Equal(t, "Report.", res.Report)
}

func TestInvestigate_ToolTransportFailureIsFedBack(t *testing.T) {
	mp := &mockProvider{}
	mp.generateFunc = func(_ context.Context, messages []provider.Message, _ provider.GenerateConfig) (string, error) {
		if mp.calls == 1 {
			return toolCall("x = 1"), nil
		}
		last := messages[len(messages)-1].Content
		assert.Contains(t, last, "Success: false")
		assert.Contains(t, last, "Tool execution failed: sandbox returned HTTP 502")
		return "Could not gather data.", nil
	}
	mr := &mockRunner{runFunc: func(context.Context, string) (sandbox.ExecutionOutcome, error) {
		return sandbox.ExecutionOutcome{}, errors.New("sandbox returned HTTP 502")
	}}
	o, _ := newTestOrchestrator(mp, mr, nil)

	res := o.Investigate(context.Background(), "prompt")

	assert.Equal(t, OutcomeReported, res.Outcome)
	require.Len(t, res.ToolCalls, 1)
	assert.Contains(t, res.ToolCalls[0].Output, "Tool execution failed")
	assert.False(t, res.FullContext[2].Output.Success)
}

func TestInvestigate_StripsTrailingDirective(t *testing.T) {
	mp := &mockProvider{generateFunc: func(context.Context, []provider.Message, provider.GenerateConfig) (string, error) {
		return "# Report\n\n```\nkept block\n```\n\nTOOL: python_executor\n```python\nprint(1)\n```\nmore text", nil
	}}
	mr := &mockRunner{}
	o, _ := newTestOrchestrator(mp, mr, nil)

	res := o.Investigate(context.Background(), "prompt")

	assert.Equal(t, "# Report\n\n```\nkept block\n```", res.Report)
	assert.Empty(t, mr.codes)
}

func TestInvestigate_RequireToolUse(t *testing.T) {
	mp := &mockProvider{}
	mp.generateFunc = func(_ context.Context, messages []provider.Message, _ provider.GenerateConfig) (string, error) {
		switch mp.calls {
		case 1:
			return "Premature report.", nil
		case 2:
			assert.Equal(t, investigateFirstMessage, messages[len(messages)-1].Content)
			return toolCall("print(1)"), nil
		default:
			return "Real report.", nil
		}
	}
	mr := &mockRunner{}
	o, _ := newTestOrchestrator(mp, mr, func(opts *Options) { opts.RequireToolUse = true })

	res := o.Investigate(context.Background(), "prompt")

	assert.Equal(t, "Real report.", res.Report)
	assert.Equal(t, 3, res.IterationCount)
	assert.Len(t, mr.codes, 1)
}

func TestInvestigate_RequireToolUseOff(t *testing.T) {
	mp := &mockProvider{generateFunc: func(context.Context, []provider.Message, provider.GenerateConfig) (string, error) {
		return "Premature report.", nil
	}}
	o, _ := newTestOrchestrator(mp, &mockRunner{}, nil)

	res := o.Investigate(context.Background(), "prompt")

	assert.Equal(t, "Premature report.", res.Report)
	assert.Equal(t, 1, mp.calls)
}

func TestInvestigate_ToolRecordsTruncated(t *testing.T) {
	longCode := "x = \"" + strings.Repeat("a", 800) + "\""
	mp := &mockProvider{}
	mp.generateFunc = func(context.Context, []provider.Message, provider.GenerateConfig) (string, error) {
		if mp.calls == 1 {
			return toolCall(longCode), nil
		}
		return "done", nil
	}
	mr := &mockRunner{runFunc: func(context.Context, string) (sandbox.ExecutionOutcome, error) {
		return sandbox.ExecutionOutcome{Success: true, Stdout: strings.Repeat("b", 900)}, nil
	}}
	o, _ := newTestOrchestrator(mp, mr, nil)

	res := o.Investigate(context.Background(), "prompt")

	require.Len(t, res.ToolCalls, 1)
	assert.Len(t, res.ToolCalls[0].Input, 500)
	assert.Len(t, res.ToolCalls[0].Output, 500)
	// The full context keeps everything.
	assert.Equal(t, longCode, res.FullContext[2].Input)
	assert.Len(t, res.FullContext[2].Output.Stdout, 900)
}

func TestInvestigate_CancelledContext(t *testing.T) {
	mp := &mockProvider{generateFunc: func(context.Context, []provider.Message, provider.GenerateConfig) (string, error) {
		return "unused", nil
	}}
	o, _ := newTestOrchestrator(mp, &mockRunner{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := o.Investigate(ctx, "prompt")

	assert.Equal(t, 0, mp.calls)
	assert.Contains(t, res.Report, FallbackMarker)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestInvestigate_PanicBecomesFallback(t *testing.T) {
	mp := &mockProvider{generateFunc: func(context.Context, []provider.Message, provider.GenerateConfig) (string, error) {
		panic("unexpected response shape")
	}}
	o, _ := newTestOrchestrator(mp, &mockRunner{}, nil)

	var res InvestigationResult
	assert.NotPanics(t, func() { res = o.Investigate(context.Background(), "prompt") })
	assert.Contains(t, res.Report, FallbackMarker)
	assert.Contains(t, res.Report, "unexpected response shape")
}

func TestInvestigate_PacingBetweenToolRounds(t *testing.T) {
	mp := &mockProvider{}
	mp.generateFunc = func(context.Context, []provider.Message, provider.GenerateConfig) (string, error) {
		if mp.calls <= 2 {
			return toolCall("x = 1"), nil
		}
		return "done", nil
	}
	o, sleeper := newTestOrchestrator(mp, &mockRunner{}, func(opts *Options) { opts.Pacing = 500 * time.Millisecond })

	o.Investigate(context.Background(), "prompt")

	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, sleeper.waits)
}

func TestInvestigate_Events(t *testing.T) {
	mp := &mockProvider{}
	mp.generateFunc = func(context.Context, []provider.Message, provider.GenerateConfig) (string, error) {
		switch mp.calls {
		case 1:
			return "", &provider.ProviderError{Code: provider.ErrorCodeTimeout, Message: "slow"}
		case 2:
			return toolCall("print(1)"), nil
		default:
			return "Report.", nil
		}
	}
	events := make(chan workflow.Event, 20)
	o, _ := newTestOrchestrator(mp, &mockRunner{}, nil, WithEvents(events))

	o.Investigate(context.Background(), "prompt")
	close(events)

	var got []workflow.Event
	for e := range events {
		got = append(got, e)
	}
	require.Len(t, got, 8)
	assert.Equal(t, workflow.ThinkingEvent{Iteration: 1}, got[0])
	assert.IsType(t, workflow.RetryEvent{}, got[1])
	assert.Equal(t, workflow.TextEvent{Iteration: 1, Text: toolCall("print(1)")}, got[2])
	assert.Equal(t, workflow.ToolStartEvent{ToolName: "python_executor", Code: "print(1)"}, got[3])
	assert.IsType(t, workflow.ToolEndEvent{}, got[4])
	assert.Equal(t, workflow.ThinkingEvent{Iteration: 2}, got[5])
	assert.Equal(t, workflow.TextEvent{Iteration: 2, Text: "Report."}, got[6])
	assert.Equal(t, workflow.DoneEvent{Report: "Report.", Iterations: 2, ToolCalls: 1}, got[7])
}

func TestInvestigate_WithEngine(t *testing.T) {
	engine, err := sandbox.NewEngine(sandbox.Options{Region: "us-west-2"}, nil)
	require.NoError(t, err)

	mp := &mockProvider{}
	mp.generateFunc = func(_ context.Context, messages []provider.Message, _ provider.GenerateConfig) (string, error) {
		if mp.calls == 1 {
			return toolCall("import json\nresult = {\"region\": REGION}"), nil
		}
		last := messages[len(messages)-1].Content
		assert.Contains(t, last, "Removed 1 import statement(s)")
		assert.Contains(t, last, `"region": "us-west-2"`)
		return "Region confirmed.", nil
	}
	o, _ := newTestOrchestrator(mp, engine, nil)

	res := o.Investigate(context.Background(), "prompt")

	assert.Equal(t, "Region confirmed.", res.Report)
	require.NotNil(t, res.FullContext[2].Output)
	assert.True(t, res.FullContext[2].Output.Success)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Orchestrator.PacingMs = 250
	cfg.Orchestrator.MaxRetries = 5

	opts := OptionsFromConfig(cfg)

	assert.Equal(t, 100, opts.MaxIterations)
	assert.Equal(t, retry.Policy{MaxRetries: 5}, opts.Retry)
	assert.Equal(t, 250*time.Millisecond, opts.Pacing)
	assert.Equal(t, "python_executor", opts.ToolName)
	assert.InDelta(t, 0.2, opts.Temperature, 1e-6)
}

func TestFallbackReport(t *testing.T) {
	report := FallbackReport(errors.New("boom"))
	assert.True(t, strings.HasPrefix(report, FallbackMarker))
	assert.Contains(t, report, "boom")
}
