package config

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockFileSystem implements FileSystem for testing.
type MockFileSystem struct {
	HomeDir     string
	HomeDirErr  error
	Files       map[string][]byte
	ReadFileErr error
}

func (m *MockFileSystem) UserHomeDir() (string, error) {
	return m.HomeDir, m.HomeDirErr
}

func (m *MockFileSystem) ReadFile(path string) ([]byte, error) {
	if m.ReadFileErr != nil {
		return nil, m.ReadFileErr
	}
	data, ok := m.Files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

const dotfile = "/home/user/.config/triage/config.json"

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	fs := &MockFileSystem{HomeDir: "/home/user", Files: map[string][]byte{}}

	cfg, err := NewLoaderWithFS(fs).Load()

	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 100, cfg.Orchestrator.MaxIterations)
	assert.Equal(t, 3, cfg.Orchestrator.MaxRetries)
	assert.Equal(t, 500, cfg.Orchestrator.PacingMs)
	assert.Equal(t, "python_executor", cfg.Orchestrator.ToolName)
}

func TestLoad_PartialOverride_KeepsOtherDefaults(t *testing.T) {
	fs := &MockFileSystem{
		HomeDir: "/home/user",
		Files: map[string][]byte{
			dotfile: []byte(`{"orchestrator": {"max_iterations": 10}, "sandbox": {"http_allowed_hosts": ["api.example.com"]}}`),
		},
	}

	cfg, err := NewLoaderWithFS(fs).Load()

	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Orchestrator.MaxIterations)
	assert.Equal(t, 3, cfg.Orchestrator.MaxRetries)
	assert.Equal(t, []string{"api.example.com"}, cfg.Sandbox.HTTPAllowedHosts)
	assert.Equal(t, 1024*1024, cfg.Sandbox.MaxOutputBytes)
}

func TestLoad_ExplicitZeroOverridesDefault(t *testing.T) {
	fs := &MockFileSystem{
		HomeDir: "/home/user",
		Files:   map[string][]byte{dotfile: []byte(`{"orchestrator": {"pacing_ms": 0}}`)},
	}

	cfg, err := NewLoaderWithFS(fs).Load()

	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Orchestrator.PacingMs)
}

func TestLoad_HomeDirError_ReturnsDefaults(t *testing.T) {
	fs := &MockFileSystem{HomeDirErr: errors.New("no home")}

	cfg, err := NewLoaderWithFS(fs).Load()

	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_MalformedJSON_ReturnsError(t *testing.T) {
	fs := &MockFileSystem{
		HomeDir: "/home/user",
		Files:   map[string][]byte{dotfile: []byte(`{"orchestrator": `)},
	}

	_, err := NewLoaderWithFS(fs).Load()

	assert.ErrorContains(t, err, "parse config")
}

func TestLoad_PermissionError_ReturnsError(t *testing.T) {
	fs := &MockFileSystem{HomeDir: "/home/user", ReadFileErr: os.ErrPermission}

	_, err := NewLoaderWithFS(fs).Load()

	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestLoad_InvalidValues_FailValidation(t *testing.T) {
	fs := &MockFileSystem{
		HomeDir: "/home/user",
		Files:   map[string][]byte{dotfile: []byte(`{"orchestrator": {"max_iterations": 0}}`)},
	}

	_, err := NewLoaderWithFS(fs).Load()

	assert.ErrorContains(t, err, "orchestrator.max_iterations must be >= 1")
}

func TestLoadFile_MissingFileIsError(t *testing.T) {
	fs := &MockFileSystem{Files: map[string][]byte{}}

	_, err := NewLoaderWithFS(fs).LoadFile("/etc/triage.json")

	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadFile_ExplicitPath(t *testing.T) {
	fs := &MockFileSystem{
		Files: map[string][]byte{"/etc/triage.json": []byte(`{"notify": {"webhook_url": "https://hooks.example.com/x"}}`)},
	}

	cfg, err := NewLoaderWithFS(fs).LoadFile("/etc/triage.json")

	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/x", cfg.Notify.WebhookURL)
}
