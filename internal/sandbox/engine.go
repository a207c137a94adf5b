// Package sandbox runs model-written snippets in a Starlark interpreter with
// an allow-listed namespace and bounded output, steps and time.
//
// Importing this package turns on the resolve.AllowSet, AllowGlobalReassign
// and AllowRecursion dialect flags for the whole process.
package sandbox

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.uber.org/zap"

	"github.com/Cyclone1070/triage/internal/config"
)

const snippetFilename = "snippet.star"

func init() {
	// Snippets are written like short Python scripts: top-level loops,
	// reassigned globals, recursion and sets all need to work.
	resolve.AllowSet = true
	resolve.AllowGlobalReassign = true
	resolve.AllowRecursion = true
}

// Options configures an Engine.
type Options struct {
	MaxOutputBytes    int
	MaxExecutionSteps uint64
	Timeout           time.Duration
	HTTPAllowedHosts  []string
	HTTPTimeout       time.Duration
	PrometheusURL     string
	Region            string
	// AWSEnabled binds the aws module, using the default credential chain.
	AWSEnabled  bool
	AWSEndpoint string
	// AWS overrides the clients behind the aws module and implies AWSEnabled.
	AWS *AWSClients

	// HTTPClient overrides the client used by the http module and the
	// Prometheus API. Tests point it at an httptest server.
	HTTPClient *http.Client
}

// OptionsFromConfig converts the sandbox config section into engine options.
func OptionsFromConfig(cfg config.SandboxConfig) Options {
	return Options{
		MaxOutputBytes:    cfg.MaxOutputBytes,
		MaxExecutionSteps: cfg.MaxExecutionSteps,
		Timeout:           time.Duration(cfg.TimeoutSecs) * time.Second,
		HTTPAllowedHosts:  cfg.HTTPAllowedHosts,
		HTTPTimeout:       time.Duration(cfg.HTTPTimeoutSecs) * time.Second,
		PrometheusURL:     cfg.PrometheusURL,
		Region:            cfg.Region,
		AWSEnabled:        cfg.AWSEnabled,
		AWSEndpoint:       cfg.AWSEndpoint,
	}
}

// Engine executes snippets. It keeps no state between calls, so one Engine
// can serve concurrent callers.
type Engine struct {
	opts       Options
	logger     *zap.Logger
	httpClient *http.Client
	promAPI    promv1.API
	aws        *AWSClients
}

// NewEngine creates an Engine. It fails only when the Prometheus URL cannot
// be turned into a client or the AWS configuration cannot be loaded.
func NewEngine(opts Options, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = 1024 * 1024
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.HTTPTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	e := &Engine{opts: opts, logger: logger, httpClient: client}

	if opts.PrometheusURL != "" {
		promClient, err := api.NewClient(api.Config{Address: opts.PrometheusURL, Client: client})
		if err != nil {
			return nil, fmt.Errorf("create prometheus client: %w", err)
		}
		e.promAPI = promv1.NewAPI(promClient)
	}

	switch {
	case opts.AWS != nil:
		e.aws = opts.AWS
	case opts.AWSEnabled:
		clients, err := LoadAWSClients(context.Background(), opts.Region, opts.AWSEndpoint)
		if err != nil {
			return nil, err
		}
		e.aws = clients
	}

	return e, nil
}

// Namespace returns the names a snippet would see, for diagnostics and prompts.
func (e *Engine) Namespace() Namespace {
	return e.buildNamespace()
}

// Run executes code and never returns an error. It lets the Engine stand in
// wherever a remote executor is expected.
func (e *Engine) Run(ctx context.Context, code string) (ExecutionOutcome, error) {
	return e.Execute(ctx, code), nil
}

// Execute strips imports from code, runs it in a fresh namespace and returns
// the captured output. Failures inside the snippet are reported through the
// outcome, never as a panic or error.
func (e *Engine) Execute(ctx context.Context, code string) ExecutionOutcome {
	cleaned, removed := StripImports(code)
	if len(removed) > 0 {
		e.logger.Debug("removed import statements", zap.Int("count", len(removed)))
	}

	start := time.Now()
	stdout := newCollector(e.opts.MaxOutputBytes)
	stderr := newCollector(e.opts.MaxOutputBytes)
	stdout.WriteString(ImportNotice(removed))

	ns := e.buildNamespace()
	result, err := e.exec(ctx, cleaned, ns, stdout, stderr)

	outcome := ExecutionOutcome{Success: err == nil, ImportsRemoved: len(removed)}
	if err == nil {
		serialized, serr := serializeResult(result)
		if serr != nil {
			err = serr
			outcome.Success = false
		} else {
			outcome.Result = serialized
		}
	}
	if err != nil {
		ce := classifyError(err)
		stderr.WriteString(formatStderr(ce, ns.Modules()))
		e.logger.Debug("snippet failed", zap.String("type", ce.Type), zap.String("message", ce.Message))
	}

	outcome.Stdout = stdout.String()
	outcome.Stderr = stderr.String()
	if stdout.Truncated() || stderr.Truncated() {
		outcome.Truncated = true
		e.logger.Debug("snippet output truncated", zap.Int("max_bytes", e.opts.MaxOutputBytes))
	}
	outcome.ExecutionTime = time.Since(start).Seconds()
	return outcome
}

// exec runs cleaned source and returns the final value of the result variable.
func (e *Engine) exec(ctx context.Context, src string, ns Namespace, stdout, stderr *collector) (result starlark.Value, err error) {
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	thread := &starlark.Thread{
		Name: "snippet",
		Print: func(_ *starlark.Thread, msg string) {
			stdout.WriteString(msg + "\n")
		},
	}
	thread.SetLocal(localContext, ctx)
	thread.SetLocal(localStderr, stderr)
	if e.opts.MaxExecutionSteps > 0 {
		thread.SetMaxExecutionSteps(e.opts.MaxExecutionSteps)
	}

	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(ctx.Err().Error())
	})
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("snippet panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = &CodeError{Type: "InternalError", Message: fmt.Sprint(r)}
		}
	}()

	globals, err := starlark.ExecFile(thread, snippetFilename, src, ns.predeclared())
	if err != nil {
		return nil, err
	}
	if v, ok := globals[ResultVariable]; ok {
		return v, nil
	}
	return starlark.None, nil
}
