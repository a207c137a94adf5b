package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Cyclone1070/triage/internal/metrics"
	"github.com/Cyclone1070/triage/internal/sandbox/server"
	"github.com/Cyclone1070/triage/internal/triage"
)

func newSandboxCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Run the snippet sandbox",
	}
	cmd.AddCommand(newSandboxServeCmd(a), newSandboxExecCmd(a))
	return cmd
}

func newSandboxServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve POST /invoke, /healthz and /metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.newEngine()
			if err != nil {
				return err
			}
			reg := newRegistry()
			srv := server.New(engine, a.logger.Named("server"), metrics.New(reg), reg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx, listenAddr(addr, a.cfg.Sandbox.ListenAddr))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func newSandboxExecCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exec [file]",
		Short: "Run one snippet from a file or stdin and print the outcome as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				code []byte
				err  error
			)
			if len(args) == 1 {
				code, err = os.ReadFile(args[0])
			} else {
				code, err = io.ReadAll(a.stdin)
			}
			if err != nil {
				return fmt.Errorf("read snippet: %w", err)
			}

			engine, err := a.newEngine()
			if err != nil {
				return err
			}
			outcome := engine.Execute(cmd.Context(), string(code))

			enc := json.NewEncoder(a.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(outcome)
		},
	}
}

// newServeCmd serves the sandbox and the alarm pipeline from one process.
func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive alarm events on POST /alarms and serve the sandbox alongside",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := newRegistry()
			m := metrics.New(reg)
			p, err := a.newPipeline(ctx, m, nil)
			if err != nil {
				return err
			}
			defer p.Close()

			srv := server.New(p.engine, a.logger.Named("server"), m, reg)
			triage.RegisterRoutes(srv.Router(), p.service)
			return srv.ListenAndServe(ctx, listenAddr(addr, a.cfg.Sandbox.ListenAddr))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func listenAddr(flag, configured string) string {
	if flag != "" {
		return flag
	}
	return configured
}
