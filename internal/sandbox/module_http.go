package sandbox

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	starlarkjson "go.starlark.net/lib/json"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

const maxHTTPBody = 4 << 20

// httpModule exposes read-only GET requests to an allow-listed set of hosts.
type httpModule struct {
	client  *http.Client
	allowed []string
}

func newHTTPModule(client *http.Client, allowed []string) *starlarkstruct.Module {
	m := &httpModule{client: client, allowed: allowed}
	return &starlarkstruct.Module{
		Name: "http",
		Members: starlark.StringDict{
			"get": starlark.NewBuiltin("http.get", m.get),
		},
	}
}

// hostAllowed matches exact hosts, or any subdomain for entries starting with a dot.
func (m *httpModule) hostAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, a := range m.allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == host || (strings.HasPrefix(a, ".") && strings.HasSuffix(host, a)) {
			return true
		}
	}
	return false
}

func (m *httpModule) get(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var rawURL string
	var headers, params *starlark.Dict
	timeout := 0.0
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "url", &rawURL, "headers?", &headers, "params?", &params, "timeout?", &timeout); err != nil {
		return nil, err
	}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%s: invalid url %q", b.Name(), rawURL)
	}
	if !m.hostAllowed(u.Hostname()) {
		return nil, fmt.Errorf("%s: host %q is not in the allow-list", b.Name(), u.Hostname())
	}
	if params != nil {
		q := u.Query()
		for _, item := range params.Items() {
			q.Set(str(item[0]), str(item[1]))
		}
		u.RawQuery = q.Encode()
	}

	ctx := threadContext(thread)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeout*float64(time.Second)))
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", b.Name(), err)
	}
	if headers != nil {
		for _, item := range headers.Items() {
			req.Header.Set(str(item[0]), str(item[1]))
		}
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", b.Name(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %v", b.Name(), err)
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	text := starlark.String(body)
	jsonFn := starlark.NewBuiltin("json", func(thread *starlark.Thread, _ *starlark.Builtin, _ starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
		return starlark.Call(thread, starlarkjson.Module.Members["decode"], starlark.Tuple{text}, nil)
	})

	return starlarkstruct.FromStringDict(starlark.String("response"), starlark.StringDict{
		"status_code": starlark.MakeInt(resp.StatusCode),
		"ok":          starlark.Bool(resp.StatusCode >= 200 && resp.StatusCode < 300),
		"text":        text,
		"headers":     toStarlark(respHeaders),
		"url":         starlark.String(u.String()),
		"json":        jsonFn,
	}), nil
}
