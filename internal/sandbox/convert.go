package sandbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// serializeResult renders the designated result variable.
// Dicts, lists and tuples become indented JSON with non-JSON values stringified;
// other values use their str() form. None and unset yield nil.
func serializeResult(v starlark.Value) (*string, error) {
	if v == nil || v == starlark.None {
		return nil, nil
	}

	switch v.(type) {
	case *starlark.Dict, *starlark.List, starlark.Tuple, *starlarkstruct.Struct:
		data, err := json.MarshalIndent(toJSONValue(v), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("serialize result: %w", err)
		}
		s := string(data)
		return &s, nil
	default:
		s := str(v)
		return &s, nil
	}
}

// str mirrors Starlark's str(): strings are unquoted, everything else uses String().
func str(v starlark.Value) string {
	if s, ok := starlark.AsString(v); ok {
		return s
	}
	return v.String()
}

// orderedObject keeps Starlark dict insertion order when marshalled.
type orderedObject []keyValue

type keyValue struct {
	Key   string
	Value any
}

func (o orderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		val, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// toJSONValue converts a Starlark value to something encoding/json can marshal.
func toJSONValue(v starlark.Value) any {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(x)
	case starlark.Int:
		if i, ok := x.Int64(); ok {
			return i
		}
		return json.Number(x.String())
	case starlark.Float:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return x.String()
		}
		return f
	case starlark.String:
		return string(x)
	case *starlark.Dict:
		out := make(orderedObject, 0, x.Len())
		for _, item := range x.Items() {
			out = append(out, keyValue{Key: str(item[0]), Value: toJSONValue(item[1])})
		}
		return out
	case *starlarkstruct.Struct:
		sd := make(starlark.StringDict)
		x.ToStringDict(sd)
		out := make(orderedObject, 0, len(sd))
		for _, name := range sd.Keys() {
			out = append(out, keyValue{Key: name, Value: toJSONValue(sd[name])})
		}
		return out
	case starlark.Indexable:
		out := make([]any, 0, x.Len())
		for i := 0; i < x.Len(); i++ {
			out = append(out, toJSONValue(x.Index(i)))
		}
		return out
	case *starlark.Set:
		out := make([]any, 0, x.Len())
		iter := x.Iterate()
		defer iter.Done()
		var elem starlark.Value
		for iter.Next(&elem) {
			out = append(out, toJSONValue(elem))
		}
		return out
	default:
		return str(v)
	}
}

// toStarlark converts decoded JSON-like Go values to Starlark values.
func toStarlark(v any) starlark.Value {
	switch x := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(x)
	case string:
		return starlark.String(x)
	case int:
		return starlark.MakeInt(x)
	case int64:
		return starlark.MakeInt64(x)
	case float64:
		return starlark.Float(x)
	case []any:
		elems := make([]starlark.Value, 0, len(x))
		for _, e := range x {
			elems = append(elems, toStarlark(e))
		}
		return starlark.NewList(elems)
	case map[string]string:
		d := starlark.NewDict(len(x))
		for _, k := range sortedKeys(x) {
			_ = d.SetKey(starlark.String(k), starlark.String(x[k]))
		}
		return d
	case map[string]any:
		d := starlark.NewDict(len(x))
		for _, k := range sortedKeys(x) {
			_ = d.SetKey(starlark.String(k), toStarlark(x[k]))
		}
		return d
	case starlark.Value:
		return x
	default:
		return starlark.String(fmt.Sprint(x))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
