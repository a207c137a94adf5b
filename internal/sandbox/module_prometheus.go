package sandbox

import (
	"fmt"
	"time"

	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// prometheusModule runs PromQL queries against a configured server.
type prometheusModule struct {
	api promv1.API
}

func newPrometheusModule(api promv1.API) *starlarkstruct.Module {
	m := &prometheusModule{api: api}
	return &starlarkstruct.Module{
		Name: "prometheus",
		Members: starlark.StringDict{
			"query":       starlark.NewBuiltin("prometheus.query", m.query),
			"query_range": starlark.NewBuiltin("prometheus.query_range", m.queryRange),
		},
	}
}

func (m *prometheusModule) query(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var expr string
	var at starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "expr", &expr, "time?", &at); err != nil {
		return nil, err
	}
	ts := time.Now()
	if at != starlark.None {
		var err error
		if ts, err = asTime(at); err != nil {
			return nil, fmt.Errorf("%s: time: %v", b.Name(), err)
		}
	}

	val, warnings, err := m.api.Query(threadContext(thread), expr, ts)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", b.Name(), err)
	}
	reportWarnings(thread, b.Name(), warnings)
	return fromModelValue(val), nil
}

func (m *prometheusModule) queryRange(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var expr string
	var start, end, step starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "expr", &expr, "start", &start, "end", &end, "step", &step); err != nil {
		return nil, err
	}
	r := promv1.Range{}
	var err error
	if r.Start, err = asTime(start); err != nil {
		return nil, fmt.Errorf("%s: start: %v", b.Name(), err)
	}
	if r.End, err = asTime(end); err != nil {
		return nil, fmt.Errorf("%s: end: %v", b.Name(), err)
	}
	if r.Step, err = asDuration(step); err != nil {
		return nil, fmt.Errorf("%s: step: %v", b.Name(), err)
	}

	val, warnings, err := m.api.QueryRange(threadContext(thread), expr, r)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", b.Name(), err)
	}
	reportWarnings(thread, b.Name(), warnings)
	return fromModelValue(val), nil
}

func reportWarnings(thread *starlark.Thread, name string, warnings promv1.Warnings) {
	stderr := threadStderr(thread)
	if stderr == nil {
		return
	}
	for _, w := range warnings {
		stderr.WriteString(fmt.Sprintf("%s: warning: %s\n", name, w))
	}
}

// asTime accepts a time.time value, unix seconds, or an RFC 3339 string.
func asTime(v starlark.Value) (time.Time, error) {
	switch x := v.(type) {
	case starlarktime.Time:
		return time.Time(x), nil
	case starlark.Int, starlark.Float:
		f, _ := starlark.AsFloat(x)
		sec := int64(f)
		return time.Unix(sec, int64((f-float64(sec))*1e9)), nil
	case starlark.String:
		return time.Parse(time.RFC3339, string(x))
	default:
		return time.Time{}, fmt.Errorf("want time, number or string, got %s", v.Type())
	}
}

// asDuration accepts a time.duration value, seconds, or a duration string such as "1m".
func asDuration(v starlark.Value) (time.Duration, error) {
	switch x := v.(type) {
	case starlarktime.Duration:
		return time.Duration(x), nil
	case starlark.Int, starlark.Float:
		f, _ := starlark.AsFloat(x)
		return time.Duration(f * float64(time.Second)), nil
	case starlark.String:
		d, err := model.ParseDuration(string(x))
		return time.Duration(d), err
	default:
		return 0, fmt.Errorf("want duration, number or string, got %s", v.Type())
	}
}

func fromModelValue(v model.Value) starlark.Value {
	switch x := v.(type) {
	case model.Vector:
		out := make([]starlark.Value, 0, len(x))
		for _, s := range x {
			d := starlark.NewDict(3)
			_ = d.SetKey(starlark.String("metric"), metricDict(s.Metric))
			_ = d.SetKey(starlark.String("value"), starlark.Float(s.Value))
			_ = d.SetKey(starlark.String("timestamp"), starlark.Float(float64(s.Timestamp)/1000))
			out = append(out, d)
		}
		return starlark.NewList(out)
	case model.Matrix:
		out := make([]starlark.Value, 0, len(x))
		for _, stream := range x {
			values := make([]starlark.Value, 0, len(stream.Values))
			for _, p := range stream.Values {
				values = append(values, starlark.Tuple{starlark.Float(float64(p.Timestamp) / 1000), starlark.Float(p.Value)})
			}
			d := starlark.NewDict(2)
			_ = d.SetKey(starlark.String("metric"), metricDict(stream.Metric))
			_ = d.SetKey(starlark.String("values"), starlark.NewList(values))
			out = append(out, d)
		}
		return starlark.NewList(out)
	case *model.Scalar:
		return starlark.Float(x.Value)
	case *model.String:
		return starlark.String(x.Value)
	case nil:
		return starlark.None
	default:
		return starlark.String(v.String())
	}
}

func metricDict(m model.Metric) *starlark.Dict {
	labels := make(map[string]string, len(m))
	for k, v := range m {
		labels[string(k)] = string(v)
	}
	return toStarlark(labels).(*starlark.Dict)
}
