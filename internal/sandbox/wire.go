package sandbox

// InvokeRequest is the body accepted by the remote execution endpoint.
type InvokeRequest struct {
	Command string `json:"command"`
}

// InvokeResponse wraps an outcome in a status envelope. Older deployments
// send Body as a JSON-encoded string instead of an object.
type InvokeResponse struct {
	StatusCode int        `json:"statusCode"`
	Body       InvokeBody `json:"body"`
}

// InvokeBody is the outcome plus the combined output text.
type InvokeBody struct {
	Success       bool    `json:"success"`
	Output        string  `json:"output"`
	Result        *string `json:"result,omitempty"`
	Stdout        string  `json:"stdout"`
	Stderr        string  `json:"stderr"`
	ExecutionTime float64 `json:"execution_time"`
	Truncated     bool    `json:"truncated,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// NewInvokeBody builds the response body for an outcome.
func NewInvokeBody(o ExecutionOutcome) InvokeBody {
	return InvokeBody{
		Success:       o.Success,
		Output:        o.CombinedOutput(),
		Result:        o.Result,
		Stdout:        o.Stdout,
		Stderr:        o.Stderr,
		ExecutionTime: o.ExecutionTime,
		Truncated:     o.Truncated,
	}
}

// Outcome converts a response body back into an ExecutionOutcome. Bodies from
// servers that only send "output" keep that text as stdout.
func (b InvokeBody) Outcome() ExecutionOutcome {
	o := ExecutionOutcome{
		Success:       b.Success,
		Result:        b.Result,
		Stdout:        b.Stdout,
		Stderr:        b.Stderr,
		ExecutionTime: b.ExecutionTime,
		Truncated:     b.Truncated,
	}
	if o.Stdout == "" && o.Stderr == "" && o.Result == nil {
		o.Stdout = b.Output
	}
	if b.Error != "" && o.Stderr == "" {
		o.Stderr = b.Error
	}
	return o
}
