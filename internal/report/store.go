// Package report persists investigation results as files.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/Cyclone1070/triage/internal/orchestrator"
)

// Metadata identifies the alarm an investigation was run for.
type Metadata struct {
	InvestigationID string
	AlarmName       string
	AlarmState      string
	Region          string
	AccountID       string
	Model           string
	Event           map[string]any
}

// Locations are the paths of the artifacts written for one investigation.
type Locations struct {
	Report      string `json:"report"`
	FullContext string `json:"full_context"`
	JSON        string `json:"json"`
}

// document is the JSON artifact.
type document struct {
	InvestigationID        string                        `json:"investigation_id"`
	AlarmName              string                        `json:"alarm_name"`
	AlarmState             string                        `json:"alarm_state"`
	InvestigationTimestamp string                        `json:"investigation_timestamp"`
	Event                  map[string]any                `json:"event"`
	Analysis               string                        `json:"analysis"`
	IterationCount         int                           `json:"iteration_count"`
	ToolCalls              []orchestrator.ToolCallRecord `json:"tool_calls"`
	FullContext            []orchestrator.ContextEntry   `json:"full_context"`
	Metadata               map[string]string             `json:"metadata"`
}

// Store writes artifacts under a root directory of an afero filesystem.
type Store struct {
	fs     afero.Fs
	root   string
	logger *zap.Logger
	now    func() time.Time
}

// NewStore creates a store rooted at root.
func NewStore(fs afero.Fs, root string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{fs: fs, root: root, logger: logger, now: time.Now}
}

// NewOSStore stores reports on the local disk.
func NewOSStore(root string, logger *zap.Logger) *Store {
	return NewStore(afero.NewOsFs(), root, logger)
}

// Save writes the report text, the full context trace and a JSON document.
// Paths look like reports/2026/03/01/20260301_120000_UTC_<alarm>_report.txt.
func (s *Store) Save(ctx context.Context, result orchestrator.InvestigationResult, meta Metadata) (*Locations, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	dir := path.Join(s.root, "reports", now.Format("2006/01/02"))
	prefix := path.Join(dir, fmt.Sprintf("%s_%s", now.Format("20060102_150405_UTC"), CleanName(meta.AlarmName)))

	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}

	loc := &Locations{
		Report:      prefix + "_report.txt",
		FullContext: prefix + "_full_context.txt",
		JSON:        prefix + ".json",
	}

	doc := document{
		InvestigationID:        meta.InvestigationID,
		AlarmName:              meta.AlarmName,
		AlarmState:             meta.AlarmState,
		InvestigationTimestamp: now.Format(time.RFC3339),
		Event:                  meta.Event,
		Analysis:               result.Report,
		IterationCount:         result.IterationCount,
		ToolCalls:              result.ToolCalls,
		FullContext:            result.FullContext,
		Metadata: map[string]string{
			"model":      meta.Model,
			"region":     meta.Region,
			"account_id": orUnknown(meta.AccountID),
			"outcome":    result.Outcome,
		},
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	files := []struct {
		name string
		data []byte
	}{
		{loc.Report, []byte(result.Report)},
		{loc.FullContext, []byte(FormatContext(result))},
		{loc.JSON, data},
	}
	for _, f := range files {
		if err := afero.WriteFile(s.fs, f.name, f.data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.name, err)
		}
	}

	s.logger.Info("report saved", zap.String("path", loc.JSON))
	return loc, nil
}

// CleanName replaces every character outside [A-Za-z0-9_-] with '_'.
func CleanName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// FormatContext renders the audit trail as readable text.
func FormatContext(result orchestrator.InvestigationResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Investigation trace: %d iteration(s), %d tool call(s)\n", result.IterationCount, len(result.ToolCalls))

	for i, e := range result.FullContext {
		ts := e.Timestamp.UTC().Format(time.RFC3339)
		switch e.Kind {
		case orchestrator.EntryPrompt:
			fmt.Fprintf(&sb, "\n=== [%d] PROMPT (%s) ===\n%s\n", i+1, ts, e.Content)
		case orchestrator.EntryModelResponse:
			fmt.Fprintf(&sb, "\n=== [%d] MODEL RESPONSE, iteration %d (%s) ===\n%s\n", i+1, e.Iteration, ts, e.Content)
		case orchestrator.EntryToolExecution:
			fmt.Fprintf(&sb, "\n=== [%d] TOOL EXECUTION (%s) ===\n--- input ---\n%s\n", i+1, ts, e.Input)
			if e.Output != nil {
				fmt.Fprintf(&sb, "--- output (success: %t, %.3fs) ---\n%s\n", e.Output.Success, e.Output.ExecutionTime, e.Output.CombinedOutput())
			}
		}
	}
	return sb.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
