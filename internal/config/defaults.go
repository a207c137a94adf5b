package config

// Config holds all application configuration values.
// Defaults are set in DefaultConfig() and can be overridden via dotfile.
// NOTE: Values in config files override defaults, including explicit zero values.
// Missing keys are left at their default values.
type Config struct {
	Provider     ProviderConfig     `json:"provider"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Sandbox      SandboxConfig      `json:"sandbox"`
	Dedup        DedupConfig        `json:"dedup"`
	Reports      ReportsConfig      `json:"reports"`
	Notify       NotifyConfig       `json:"notify"`
	Triage       TriageConfig       `json:"triage"`
	Logging      LoggingConfig      `json:"logging"`
}

type ProviderConfig struct {
	Model       string  `json:"model"`        // Default: gemini-2.5-flash
	Temperature float32 `json:"temperature"`  // Default: 0.2
	APIKeyEnv   string  `json:"api_key_env"`  // Default: GEMINI_API_KEY
	TimeoutSecs int     `json:"timeout_secs"` // Default: 300
}

type OrchestratorConfig struct {
	MaxIterations   int    `json:"max_iterations"`    // Default: 100
	MaxRetries      int    `json:"max_retries"`       // Default: 3
	PacingMs        int    `json:"pacing_ms"`         // Default: 500
	RequireToolUse  bool   `json:"require_tool_use"`  // Default: false
	ToolRecordLimit int    `json:"tool_record_limit"` // Default: 500 (characters)
	ToolName        string `json:"tool_name"`         // Default: python_executor
}

type SandboxConfig struct {
	MaxOutputBytes    int      `json:"max_output_bytes"`    // Default: 1MB per stream
	MaxExecutionSteps uint64   `json:"max_execution_steps"` // Default: 50,000,000
	TimeoutSecs       int      `json:"timeout_secs"`        // Default: 60
	HTTPAllowedHosts  []string `json:"http_allowed_hosts"`  // Default: none (http module disabled)
	HTTPTimeoutSecs   int      `json:"http_timeout_secs"`   // Default: 10
	PrometheusURL     string   `json:"prometheus_url"`      // Default: "" (prometheus module disabled)
	AWSEnabled        bool     `json:"aws_enabled"`         // Default: false (aws module disabled)
	AWSEndpoint       string   `json:"aws_endpoint"`        // Overrides AWS service endpoints, e.g. a local emulator
	Region            string   `json:"region"`              // Exposed to snippets as REGION
	ListenAddr        string   `json:"listen_addr"`         // Default: :8080
	RemoteURL         string   `json:"remote_url"`          // Empty means execute in-process
}

type DedupConfig struct {
	Path        string `json:"path"`         // Default: dedup.db
	WindowHours int    `json:"window_hours"` // Default: 1
}

type ReportsConfig struct {
	Dir string `json:"dir"` // Default: current directory
}

type NotifyConfig struct {
	WebhookURL  string `json:"webhook_url"`  // Empty disables notification
	TimeoutSecs int    `json:"timeout_secs"` // Default: 10
}

type TriageConfig struct {
	MaxConcurrency int    `json:"max_concurrency"` // Default: 4
	Region         string `json:"region"`          // Default: us-east-1
}

type LoggingConfig struct {
	Level       string `json:"level"`       // Default: info
	Development bool   `json:"development"` // Default: false (JSON output)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Model:       "gemini-2.5-flash",
			Temperature: 0.2,
			APIKeyEnv:   "GEMINI_API_KEY",
			TimeoutSecs: 300,
		},
		Orchestrator: OrchestratorConfig{
			MaxIterations:   100,
			MaxRetries:      3,
			PacingMs:        500,
			ToolRecordLimit: 500,
			ToolName:        "python_executor",
		},
		Sandbox: SandboxConfig{
			MaxOutputBytes:    1024 * 1024,
			MaxExecutionSteps: 50_000_000,
			TimeoutSecs:       60,
			HTTPTimeoutSecs:   10,
			Region:            "us-east-1",
			ListenAddr:        ":8080",
		},
		Dedup: DedupConfig{
			Path:        "dedup.db",
			WindowHours: 1,
		},
		Reports: ReportsConfig{
			Dir: ".",
		},
		Notify: NotifyConfig{
			TimeoutSecs: 10,
		},
		Triage: TriageConfig{
			MaxConcurrency: 4,
			Region:         "us-east-1",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
