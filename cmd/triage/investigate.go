package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Cyclone1070/triage/internal/logging"
	"github.com/Cyclone1070/triage/internal/triage"
	"github.com/Cyclone1070/triage/internal/ui"
	"github.com/Cyclone1070/triage/internal/ui/services"
	"github.com/Cyclone1070/triage/internal/workflow"
)

const renderWidth = 100

func newInvestigateCmd(a *app) *cobra.Command {
	var (
		tui       bool
		render    bool
		asJSON    bool
		remoteURL string
	)

	cmd := &cobra.Command{
		Use:   "investigate [event.json...]",
		Short: "Investigate alarm events read from files or stdin",
		Long: "Investigate runs the full pipeline for each event: skip non-ALARM states and recent duplicates, " +
			"investigate, save the report and notify. With no arguments one event is read from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if remoteURL != "" {
				a.cfg.Sandbox.RemoteURL = remoteURL
			}
			events, err := a.readEvents(args)
			if err != nil {
				return err
			}
			if tui {
				if len(events) != 1 {
					return fmt.Errorf("--tui needs exactly one event, got %d", len(events))
				}
				return a.investigateTUI(cmd.Context(), events[0])
			}
			return a.investigateBatch(cmd.Context(), events, render, asJSON)
		},
	}

	cmd.Flags().BoolVar(&tui, "tui", false, "show live progress in a terminal UI")
	cmd.Flags().BoolVar(&render, "render", false, "render reports as terminal markdown")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print outcomes as JSON instead of reports")
	cmd.Flags().StringVar(&remoteURL, "remote", "", "base URL of a sandbox server to run snippets on")
	return cmd
}

func (a *app) readEvents(paths []string) ([]map[string]any, error) {
	if len(paths) == 0 {
		event, err := triage.ReadEvent(a.stdin)
		if err != nil {
			return nil, fmt.Errorf("stdin: %w", err)
		}
		return []map[string]any{event}, nil
	}

	events := make([]map[string]any, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		event, err := triage.ReadEvent(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		events = append(events, event)
	}
	return events, nil
}

func (a *app) investigateBatch(ctx context.Context, events []map[string]any, render, asJSON bool) error {
	p, err := a.newPipeline(ctx, nil, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	results := p.service.RunBatch(ctx, events, a.cfg.Triage.MaxConcurrency)

	var errs []error
	outcomes := make([]triage.Outcome, 0, len(results))
	for _, r := range results {
		outcomes = append(outcomes, r.Outcome)
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Outcome.Alarm, r.Err))
		}
	}

	if asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outcomes); err != nil {
			return err
		}
	} else {
		for _, out := range outcomes {
			a.printOutcome(out, render)
		}
	}
	return errors.Join(errs...)
}

func (a *app) printOutcome(out triage.Outcome, render bool) {
	fmt.Fprintf(a.stdout, "=== %s: %s ===\n", out.Alarm, out.Status)
	if out.Result == nil {
		if out.Message != "" {
			fmt.Fprintln(a.stdout, out.Message)
		}
		return
	}
	if render {
		fmt.Fprint(a.stdout, ui.RenderReport(out.Result.Report, renderWidth, services.GlamourRenderer{}))
	} else {
		fmt.Fprintln(a.stdout, out.Result.Report)
	}
	if out.ReportLocation != nil {
		fmt.Fprintf(a.stdout, "Report saved to %s\n", out.ReportLocation.JSON)
	}
}

// investigateTUI runs one event with the progress view attached.
func (a *app) investigateTUI(ctx context.Context, event map[string]any) error {
	// Log lines would corrupt the full-screen view.
	a.logger = logging.NewWithWriter(a.cfg.Logging, io.Discard)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan workflow.Event, 64)
	p, err := a.newPipeline(ctx, nil, events)
	if err != nil {
		return err
	}
	defer p.Close()

	title := "Alarm investigation"
	if alarm, err := triage.ParseAlarm(event, a.cfg.Triage.Region); err == nil {
		title = alarm.Name
	}

	type handled struct {
		out triage.Outcome
		err error
	}
	done := make(chan handled, 1)
	go func() {
		out, err := p.service.Handle(ctx, event)
		close(events)
		done <- handled{out, err}
	}()

	_, uiErr := ui.New(title, events, services.GlamourRenderer{}, ui.DefaultSpinner, tea.WithAltScreen(), tea.WithOutput(a.stdout)).Run()

	// The user may quit before the investigation ends; unblock the producer.
	cancel()
	for range events {
	}
	res := <-done

	a.printOutcome(res.out, true)
	return errors.Join(uiErr, res.err)
}
