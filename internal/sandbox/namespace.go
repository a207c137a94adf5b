package sandbox

import (
	"context"
	"sort"
	"strings"

	starlarkjson "go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// ResultVariable is the name snippets assign to return a value.
const ResultVariable = "result"

// Namespace is the allow-list of names visible to a snippet, beyond the
// Starlark universe (len, str, dict, sorted and friends). It controls what a
// snippet can reach; it is configuration, not a security boundary.
type Namespace map[string]starlark.Value

// Modules returns the sorted names of the pre-bound modules.
func (n Namespace) Modules() []string {
	var names []string
	for name, v := range n {
		if _, ok := v.(*starlarkstruct.Module); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (n Namespace) predeclared() starlark.StringDict {
	d := make(starlark.StringDict, len(n))
	for k, v := range n {
		d[k] = v
	}
	return d
}

// buildNamespace creates a fresh namespace for one execution.
func (e *Engine) buildNamespace() Namespace {
	ns := Namespace{
		"json":         starlarkjson.Module,
		"math":         starlarkmath.Module,
		"time":         starlarktime.Module,
		"re":           newReModule(),
		"base64":       newBase64Module(),
		"struct":       starlark.NewBuiltin("struct", starlarkstruct.Make),
		"eprint":       starlark.NewBuiltin("eprint", eprint),
		"REGION":       starlark.String(e.opts.Region),
		ResultVariable: starlark.None,
	}
	if len(e.opts.HTTPAllowedHosts) > 0 {
		ns["http"] = newHTTPModule(e.httpClient, e.opts.HTTPAllowedHosts)
	}
	if e.promAPI != nil {
		ns["prometheus"] = newPrometheusModule(e.promAPI)
	}
	if e.aws != nil {
		ns["aws"] = newAWSModule(e.aws)
	}
	return ns
}

// eprint is print() for stderr.
func eprint(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	sep := " "
	if err := starlark.UnpackArgs(b.Name(), nil, kwargs, "sep?", &sep); err != nil {
		return nil, err
	}
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, str(a))
	}
	if stderr := threadStderr(thread); stderr != nil {
		stderr.WriteString(strings.Join(parts, sep) + "\n")
	}
	return starlark.None, nil
}

const (
	localContext = "triage.context"
	localStderr  = "triage.stderr"
)

func threadContext(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(localContext).(context.Context); ok {
		return ctx
	}
	return context.Background()
}

func threadStderr(thread *starlark.Thread) *collector {
	c, _ := thread.Local(localStderr).(*collector)
	return c
}
