package sandbox

import (
	"fmt"
	"regexp"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Flag values accepted by the re module, matching Python's constants.
const (
	reIgnoreCase = 2
	reMultiline  = 8
	reDotAll     = 16
)

var pythonBackref = regexp.MustCompile(`\\(\d+)|\\g<(\w+)>`)

func newReModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "re",
		Members: starlark.StringDict{
			"search":     starlark.NewBuiltin("re.search", reSearch),
			"match":      starlark.NewBuiltin("re.match", reMatch),
			"fullmatch":  starlark.NewBuiltin("re.fullmatch", reFullmatch),
			"findall":    starlark.NewBuiltin("re.findall", reFindall),
			"sub":        starlark.NewBuiltin("re.sub", reSub),
			"split":      starlark.NewBuiltin("re.split", reSplit),
			"escape":     starlark.NewBuiltin("re.escape", reEscape),
			"IGNORECASE": starlark.MakeInt(reIgnoreCase),
			"I":          starlark.MakeInt(reIgnoreCase),
			"MULTILINE":  starlark.MakeInt(reMultiline),
			"M":          starlark.MakeInt(reMultiline),
			"DOTALL":     starlark.MakeInt(reDotAll),
			"S":          starlark.MakeInt(reDotAll),
		},
	}
}

func compileRegexp(fnname, pattern string, flags int) (*regexp.Regexp, error) {
	var prefix string
	if flags&reIgnoreCase != 0 {
		prefix += "i"
	}
	if flags&reMultiline != 0 {
		prefix += "m"
	}
	if flags&reDotAll != 0 {
		prefix += "s"
	}
	if prefix != "" {
		pattern = "(?" + prefix + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", fnname, err)
	}
	return re, nil
}

func unpackPattern(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (*regexp.Regexp, string, error) {
	var pattern, s string
	flags := 0
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "pattern", &pattern, "string", &s, "flags?", &flags); err != nil {
		return nil, "", err
	}
	re, err := compileRegexp(b.Name(), pattern, flags)
	return re, s, err
}

func reSearch(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	re, s, err := unpackPattern(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	return newMatch(re, s, re.FindStringSubmatchIndex(s)), nil
}

func reMatch(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	re, s, err := unpackPattern(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	loc := re.FindStringSubmatchIndex(s)
	if loc == nil || loc[0] != 0 {
		anchored := regexp.MustCompile(`\A(?:` + re.String() + `)`)
		return newMatch(anchored, s, anchored.FindStringSubmatchIndex(s)), nil
	}
	return newMatch(re, s, loc), nil
}

func reFullmatch(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	re, s, err := unpackPattern(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	anchored := regexp.MustCompile(`\A(?:` + re.String() + `)\z`)
	return newMatch(anchored, s, anchored.FindStringSubmatchIndex(s)), nil
}

func reFindall(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	re, s, err := unpackPattern(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	var out []starlark.Value
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		switch len(m) {
		case 1:
			out = append(out, starlark.String(m[0]))
		case 2:
			out = append(out, starlark.String(m[1]))
		default:
			groups := make(starlark.Tuple, 0, len(m)-1)
			for _, g := range m[1:] {
				groups = append(groups, starlark.String(g))
			}
			out = append(out, groups)
		}
	}
	return starlark.NewList(out), nil
}

func reSub(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pattern, repl, s string
	count, flags := 0, 0
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "pattern", &pattern, "repl", &repl, "string", &s, "count?", &count, "flags?", &flags); err != nil {
		return nil, err
	}
	re, err := compileRegexp(b.Name(), pattern, flags)
	if err != nil {
		return nil, err
	}

	template := pythonBackref.ReplaceAllString(strings.ReplaceAll(repl, "$", "$$"), "$${$1$2}")

	n := -1
	if count > 0 {
		n = count
	}
	var sb strings.Builder
	last := 0
	for _, loc := range re.FindAllStringSubmatchIndex(s, n) {
		sb.WriteString(s[last:loc[0]])
		sb.Write(re.ExpandString(nil, template, s, loc))
		last = loc[1]
	}
	sb.WriteString(s[last:])
	return starlark.String(sb.String()), nil
}

func reSplit(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pattern, s string
	maxsplit, flags := 0, 0
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "pattern", &pattern, "string", &s, "maxsplit?", &maxsplit, "flags?", &flags); err != nil {
		return nil, err
	}
	re, err := compileRegexp(b.Name(), pattern, flags)
	if err != nil {
		return nil, err
	}
	n := -1
	if maxsplit > 0 {
		n = maxsplit + 1
	}
	parts := re.Split(s, n)
	out := make([]starlark.Value, 0, len(parts))
	for _, p := range parts {
		out = append(out, starlark.String(p))
	}
	return starlark.NewList(out), nil
}

func reEscape(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &s); err != nil {
		return nil, err
	}
	return starlark.String(regexp.QuoteMeta(s)), nil
}

// newMatch builds a match object, or None when loc is nil.
func newMatch(re *regexp.Regexp, s string, loc []int) starlark.Value {
	if loc == nil {
		return starlark.None
	}

	group := func(idx int) starlark.Value {
		if idx < 0 || 2*idx+1 >= len(loc) || loc[2*idx] < 0 {
			return starlark.None
		}
		return starlark.String(s[loc[2*idx]:loc[2*idx+1]])
	}
	groupIndex := func(v starlark.Value) (int, error) {
		switch x := v.(type) {
		case starlark.String:
			idx := re.SubexpIndex(string(x))
			if idx < 0 {
				return 0, fmt.Errorf("no such group: %s", x)
			}
			return idx, nil
		case starlark.Int:
			idx, ok := x.Int64()
			if !ok || idx < 0 || int(idx) > re.NumSubexp() {
				return 0, fmt.Errorf("no such group: %s", x)
			}
			return int(idx), nil
		default:
			return 0, fmt.Errorf("group index must be int or string, got %s", v.Type())
		}
	}

	groupFn := starlark.NewBuiltin("group", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(kwargs) > 0 {
			return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
		}
		if len(args) == 0 {
			return group(0), nil
		}
		vals := make(starlark.Tuple, 0, len(args))
		for _, a := range args {
			idx, err := groupIndex(a)
			if err != nil {
				return nil, err
			}
			vals = append(vals, group(idx))
		}
		if len(vals) == 1 {
			return vals[0], nil
		}
		return vals, nil
	})
	groupsFn := starlark.NewBuiltin("groups", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		vals := make(starlark.Tuple, 0, re.NumSubexp())
		for i := 1; i <= re.NumSubexp(); i++ {
			vals = append(vals, group(i))
		}
		return vals, nil
	})
	groupdictFn := starlark.NewBuiltin("groupdict", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		d := starlark.NewDict(re.NumSubexp())
		for i, name := range re.SubexpNames() {
			if name == "" {
				continue
			}
			if err := d.SetKey(starlark.String(name), group(i)); err != nil {
				return nil, err
			}
		}
		return d, nil
	})

	return starlarkstruct.FromStringDict(starlark.String("match"), starlark.StringDict{
		"group":     groupFn,
		"groups":    groupsFn,
		"groupdict": groupdictFn,
		"start":     starlark.MakeInt(loc[0]),
		"end":       starlark.MakeInt(loc[1]),
		"string":    starlark.String(s),
	})
}
