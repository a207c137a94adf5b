//go:build integration

package gemini

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Cyclone1070/triage/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiProvider_RealAPI_Generate(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set, skipping real API test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := NewClientFromKey(ctx, apiKey)
	require.NoError(t, err)

	p := New(client, os.Getenv("GEMINI_MODEL"), nil)
	text, err := p.Generate(ctx, []provider.Message{
		{Role: provider.RoleUser, Content: "Reply with the single word: pong"},
	}, provider.GenerateConfig{Temperature: provider.Float32(0)})

	require.NoError(t, err)
	assert.Contains(t, text, "pong")
}
