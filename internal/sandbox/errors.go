package sandbox

import (
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// CodeError describes a snippet failure in the shape reported on stderr.
type CodeError struct {
	// Type is a short Python-style class name such as SyntaxError or KeyError.
	Type    string
	Message string
	// Backtrace is the interpreter call stack, when one is available.
	Backtrace string
	// Undefined is set when the failure is a reference to an unbound name.
	Undefined bool
	Err       error
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *CodeError) Unwrap() error {
	return e.Err
}

// classifyError converts an interpreter error into a CodeError.
func classifyError(err error) *CodeError {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce
	}

	var syntaxErr syntax.Error
	if errors.As(err, &syntaxErr) {
		return &CodeError{Type: "SyntaxError", Message: syntaxErr.Error(), Err: err}
	}

	var resolveErrs resolve.ErrorList
	if errors.As(err, &resolveErrs) {
		ce := &CodeError{Type: "ResolveError", Err: err}
		msgs := make([]string, 0, len(resolveErrs))
		for _, re := range resolveErrs {
			msgs = append(msgs, fmt.Sprintf("%s: %s", re.Pos, re.Msg))
			if strings.HasPrefix(re.Msg, "undefined:") {
				ce.Type = "NameError"
				ce.Undefined = true
			}
		}
		ce.Message = strings.Join(msgs, "; ")
		return ce
	}

	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return &CodeError{
			Type:      runtimeErrorType(evalErr.Msg),
			Message:   evalErr.Msg,
			Backtrace: evalErr.Backtrace(),
			Err:       err,
		}
	}

	return &CodeError{Type: "Error", Message: err.Error(), Err: err}
}

// runtimeErrorType maps interpreter messages onto familiar exception names.
func runtimeErrorType(msg string) string {
	switch {
	case strings.Contains(msg, "cancelled"):
		return "TimeoutError"
	case strings.HasPrefix(msg, "fail: "):
		return "Failure"
	case strings.Contains(msg, "not in dict") || strings.Contains(msg, "key ") && strings.Contains(msg, "not found"):
		return "KeyError"
	case strings.Contains(msg, "out of range"):
		return "IndexError"
	case strings.Contains(msg, "has no .") || strings.Contains(msg, "field or method"):
		return "AttributeError"
	case strings.Contains(msg, "division by zero") || strings.Contains(msg, "modulo by zero"):
		return "ZeroDivisionError"
	case strings.Contains(msg, "unsupported") || strings.Contains(msg, "got ") && strings.Contains(msg, "want "):
		return "TypeError"
	default:
		return "EvalError"
	}
}

// formatStderr renders the failure text appended to captured stderr.
func formatStderr(ce *CodeError, modules []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Error executing code: %s: %s\n", ce.Type, ce.Message)
	if ce.Backtrace != "" {
		sb.WriteString(ce.Backtrace)
		if !strings.HasSuffix(ce.Backtrace, "\n") {
			sb.WriteString("\n")
		}
	}
	if ce.Undefined {
		fmt.Fprintf(&sb, "Note: Modules are pre-imported; do not use import statements. Available: %s\n", strings.Join(modules, ", "))
	}
	return sb.String()
}
