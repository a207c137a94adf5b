package sandbox

import "strings"

// ExecutionOutcome is the structured result of running one snippet.
type ExecutionOutcome struct {
	Success bool `json:"success"`
	// Result holds the serialised value of the designated variable, when set.
	Result        *string `json:"result"`
	Stdout        string  `json:"stdout"`
	Stderr        string  `json:"stderr"`
	ExecutionTime float64 `json:"execution_time"` // seconds
	// ImportsRemoved counts the import statements stripped before execution.
	ImportsRemoved int `json:"imports_removed,omitempty"`
	// Truncated is set when stdout or stderr hit the byte cap.
	Truncated bool `json:"truncated,omitempty"`
}

// CombinedOutput merges stdout, stderr and the result into a single text block:
// stdout first, then a "[STDERR]" section, then the result.
func (o ExecutionOutcome) CombinedOutput() string {
	var out string
	if o.Stdout != "" {
		out += o.Stdout
	}
	if o.Stderr != "" {
		if out != "" {
			out += "\n"
		}
		out += "[STDERR]\n" + o.Stderr
	}
	if o.Result != nil && *o.Result != "" {
		if out != "" && !strings.HasSuffix(out, "\n") {
			out += "\n"
		}
		out += *o.Result
	}
	return out
}
