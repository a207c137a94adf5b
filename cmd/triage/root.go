package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Cyclone1070/triage/internal/config"
	"github.com/Cyclone1070/triage/internal/logging"
	"github.com/Cyclone1070/triage/internal/provider"
	"github.com/Cyclone1070/triage/internal/provider/gemini"
)

// generator is the model surface the orchestrator needs.
type generator interface {
	Generate(ctx context.Context, messages []provider.Message, cfg provider.GenerateConfig) (string, error)
}

type app struct {
	configPath string
	logLevel   string

	loader *config.Loader
	cfg    *config.Config
	logger *zap.Logger

	newProvider func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (generator, error)

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	return newApp(in, out, errOut).rootCommand()
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	return &app{
		loader:      config.NewLoader(),
		newProvider: newGeminiProvider,
		stdin:       in,
		stdout:      out,
		stderr:      errOut,
	}
}

func (a *app) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "triage",
		Short: "Investigate monitoring alarms with an LLM and a code sandbox",
		Long: "triage runs an investigation loop for each alarm event: the model writes small snippets, " +
			"a sandbox executes them, and the final analysis is saved and sent to a webhook.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a config file (default ~/.config/triage/config.json)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	cmd.AddCommand(
		newInvestigateCmd(a),
		newServeCmd(a),
		newSandboxCmd(a),
	)
	cmd.SetIn(a.stdin)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	return cmd
}

// setup loads configuration and builds the logger.
func (a *app) setup() error {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = a.loader.LoadFile(a.configPath)
	} else {
		cfg, err = a.loader.Load()
	}
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg
	a.logger = logging.NewWithWriter(cfg.Logging, a.stderr)
	return nil
}

func newGeminiProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (generator, error) {
	apiKey := os.Getenv(cfg.Provider.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s environment variable is required", cfg.Provider.APIKeyEnv)
	}
	client, err := gemini.NewClientFromKey(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	p := gemini.New(client, cfg.Provider.Model, logger)
	return p.WithTimeout(secs(cfg.Provider.TimeoutSecs)), nil
}
