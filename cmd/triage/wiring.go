package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Cyclone1070/triage/internal/dedup"
	"github.com/Cyclone1070/triage/internal/metrics"
	"github.com/Cyclone1070/triage/internal/notify"
	"github.com/Cyclone1070/triage/internal/orchestrator"
	"github.com/Cyclone1070/triage/internal/report"
	"github.com/Cyclone1070/triage/internal/sandbox"
	"github.com/Cyclone1070/triage/internal/sandbox/remote"
	"github.com/Cyclone1070/triage/internal/triage"
	"github.com/Cyclone1070/triage/internal/workflow"
)

// snippetRunner executes one snippet, locally or through a remote sandbox.
type snippetRunner interface {
	Run(ctx context.Context, code string) (sandbox.ExecutionOutcome, error)
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// pipeline is a fully wired triage service plus the resources it holds.
type pipeline struct {
	service *triage.Service
	engine  *sandbox.Engine
	closers []func() error
}

func (p *pipeline) Close() {
	for _, c := range p.closers {
		_ = c()
	}
}

// newEngine builds the in-process sandbox from configuration.
func (a *app) newEngine() (*sandbox.Engine, error) {
	return sandbox.NewEngine(sandbox.OptionsFromConfig(a.cfg.Sandbox), a.logger.Named("sandbox"))
}

// newRunner returns the remote client when a remote sandbox is configured,
// otherwise the local engine.
func (a *app) newRunner(engine *sandbox.Engine) snippetRunner {
	if a.cfg.Sandbox.RemoteURL != "" {
		// The remote side enforces its own timeout; leave room for the round trip.
		return remote.NewClient(a.cfg.Sandbox.RemoteURL, secs(a.cfg.Sandbox.TimeoutSecs+10), a.logger.Named("remote"))
	}
	return engine
}

// newPipeline wires provider, sandbox, orchestrator, dedup, reports and
// notification into a triage service. events may be nil.
func (a *app) newPipeline(ctx context.Context, m *metrics.Metrics, events chan<- workflow.Event) (*pipeline, error) {
	cfg := a.cfg

	llm, err := a.newProvider(ctx, cfg, a.logger)
	if err != nil {
		return nil, err
	}

	engine, err := a.newEngine()
	if err != nil {
		return nil, err
	}
	p := &pipeline{engine: engine}

	opts := []orchestrator.Option{orchestrator.WithMetrics(m)}
	if events != nil {
		opts = append(opts, orchestrator.WithEvents(events))
	}
	orch := orchestrator.New(llm, a.newRunner(engine), orchestrator.OptionsFromConfig(cfg), a.logger.Named("orchestrator"), opts...)

	var store triage.DedupStore
	if cfg.Dedup.Path != "" {
		d, err := dedup.Open(cfg.Dedup.Path, a.logger.Named("dedup"))
		if err != nil {
			return nil, fmt.Errorf("open dedup store: %w", err)
		}
		p.closers = append(p.closers, d.Close)
		if n, err := d.Purge(ctx, time.Now()); err != nil {
			a.logger.Warn("failed to purge expired dedup entries", zap.Error(err))
		} else if n > 0 {
			a.logger.Debug("purged expired dedup entries", zap.Int64("count", n))
		}
		store = d
	}

	var reports triage.ReportStore
	if cfg.Reports.Dir != "" {
		reports = report.NewOSStore(cfg.Reports.Dir, a.logger.Named("report"))
	}

	var pub triage.Publisher
	if cfg.Notify.WebhookURL != "" {
		pub = notify.NewWebhook(cfg.Notify.WebhookURL, secs(cfg.Notify.TimeoutSecs), a.logger.Named("notify"))
	}

	p.service = triage.NewService(orch, store, reports, pub, triage.Options{
		Window:   secs(cfg.Dedup.WindowHours * 3600),
		Region:   cfg.Triage.Region,
		Model:    cfg.Provider.Model,
		Modules:  engine.Namespace().Modules(),
		ToolName: cfg.Orchestrator.ToolName,
	}, a.logger.Named("triage"), m)
	return p, nil
}
