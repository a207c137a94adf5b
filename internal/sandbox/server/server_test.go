package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Cyclone1070/triage/internal/metrics"
	"github.com/Cyclone1070/triage/internal/sandbox"
)

type mockExecutor struct {
	executeFunc func(ctx context.Context, code string) sandbox.ExecutionOutcome
}

func (m *mockExecutor) Execute(ctx context.Context, code string) sandbox.ExecutionOutcome {
	return m.executeFunc(ctx, code)
}

func newTestServer(t *testing.T, exec Executor) (*Server, *metrics.Metrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	return New(exec, zap.NewNop(), m, reg), m
}

func TestInvoke_Success(t *testing.T) {
	var gotCode string
	result := `{"a": 1}`
	srv, m := newTestServer(t, &mockExecutor{executeFunc: func(_ context.Context, code string) sandbox.ExecutionOutcome {
		gotCode = code
		return sandbox.ExecutionOutcome{Success: true, Stdout: "hi\n", Result: &result, ExecutionTime: 0.5, ImportsRemoved: 1}
	}})

	req := httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(`{"command": "print(1)"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "print(1)", gotCode)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var resp sandbox.InvokeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 200, resp.StatusCode)
	assert.True(t, resp.Body.Success)
	assert.Equal(t, "hi\n{\"a\": 1}", resp.Body.Output)
	require.NotNil(t, resp.Body.Result)
	assert.Equal(t, result, *resp.Body.Result)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SandboxExecutionsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SandboxImportsStrippedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestTotal.WithLabelValues("POST", "/invoke", "200")))
}

func TestInvoke_KeepsCallerRequestID(t *testing.T) {
	srv, _ := newTestServer(t, &mockExecutor{executeFunc: func(context.Context, string) sandbox.ExecutionOutcome {
		return sandbox.ExecutionOutcome{Success: true}
	}})

	req := httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(`{"command": "x = 1"}`))
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestInvoke_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t, &mockExecutor{executeFunc: func(context.Context, string) sandbox.ExecutionOutcome {
		t.Fatal("executor must not be called")
		return sandbox.ExecutionOutcome{}
	}})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{"command":`, "invalid JSON"},
		{"missing command", `{}`, "No command provided"},
		{"empty command", `{"command": ""}`, "No command provided"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var resp sandbox.InvokeResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.False(t, resp.Body.Success)
			assert.Contains(t, resp.Body.Error, tt.want)
		})
	}
}

func TestInvoke_WrongMethod(t *testing.T) {
	srv, _ := newTestServer(t, &mockExecutor{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoke", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, &mockExecutor{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "healthy"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "triage_http_requests_total")
}

func TestInvoke_WithRealEngine(t *testing.T) {
	engine, err := sandbox.NewEngine(sandbox.Options{Region: "us-east-1"}, zap.NewNop())
	require.NoError(t, err)
	srv, _ := newTestServer(t, engine)

	body := `{"command": "import json\nresult = {\"region\": REGION}"}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp sandbox.InvokeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Body.Success, resp.Body.Stderr)
	assert.Contains(t, resp.Body.Stdout, "Removed 1 import statement(s)")
	require.NotNil(t, resp.Body.Result)
	assert.JSONEq(t, `{"region": "us-east-1"}`, *resp.Body.Result)
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	srv, _ := newTestServer(t, &mockExecutor{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()

	assert.NoError(t, <-done)
}
