package gemini

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Cyclone1070/triage/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestGenerate_TextResponse(t *testing.T) {
	var gotModel string
	var gotContents []*genai.Content
	var gotConfig *genai.GenerateContentConfig
	mockClient := &MockGeminiClient{
		GenerateContentFunc: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			gotModel, gotContents, gotConfig = model, contents, config
			return textResponse("Root cause: ", "disk full"), nil
		},
	}
	p := New(mockClient, "gemini-test", nil)

	text, err := p.Generate(context.Background(), []provider.Message{
		{Role: provider.RoleUser, Content: "investigate"},
		{Role: provider.RoleAssistant, Content: "TOOL: python_executor"},
		{Role: provider.RoleUser, Content: "result"},
	}, provider.GenerateConfig{Temperature: provider.Float32(0.2)})

	require.NoError(t, err)
	assert.Equal(t, "Root cause: disk full", text)
	assert.Equal(t, "gemini-test", gotModel)
	require.Len(t, gotContents, 3)
	assert.Equal(t, "user", gotContents[0].Role)
	assert.Equal(t, "model", gotContents[1].Role)
	require.NotNil(t, gotConfig.Temperature)
	assert.InDelta(t, 0.2, *gotConfig.Temperature, 0.0001)
	assert.Len(t, gotConfig.SafetySettings, 4)
}

func TestGenerate_DefaultModel(t *testing.T) {
	p := New(&MockGeminiClient{}, "", nil)
	assert.Equal(t, DefaultModel, p.Model())
}

func TestGenerate_SkipsThoughtParts(t *testing.T) {
	mockClient := &MockGeminiClient{
		GenerateContentFunc: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			resp := textResponse("thinking...", "answer")
			resp.Candidates[0].Content.Parts[0].Thought = true
			return resp, nil
		},
	}

	text, err := New(mockClient, "m", nil).Generate(context.Background(), []provider.Message{{Role: provider.RoleUser, Content: "x"}}, provider.GenerateConfig{})

	require.NoError(t, err)
	assert.Equal(t, "answer", text)
}

func TestGenerate_NoCandidates(t *testing.T) {
	mockClient := &MockGeminiClient{
		GenerateContentFunc: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return &genai.GenerateContentResponse{}, nil
		},
	}

	_, err := New(mockClient, "m", nil).Generate(context.Background(), nil, provider.GenerateConfig{})

	assert.ErrorIs(t, err, provider.ErrEmptyResponse)
}

func TestGenerate_SafetyBlock(t *testing.T) {
	mockClient := &MockGeminiClient{
		GenerateContentFunc: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
			}, nil
		},
	}

	_, err := New(mockClient, "m", nil).Generate(context.Background(), nil, provider.GenerateConfig{})

	assert.ErrorIs(t, err, provider.ErrContentBlocked)
}

func TestMapGeminiError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want provider.ErrorCode
	}{
		{"rate limit", genai.APIError{Code: 429, Message: "Too many requests"}, provider.ErrorCodeRateLimit},
		{"quota", genai.APIError{Code: 429, Message: "You exceeded your current quota"}, provider.ErrorCodeQuota},
		{"auth", genai.APIError{Code: 403, Message: "denied"}, provider.ErrorCodeAuth},
		{"gateway timeout", genai.APIError{Code: 504, Message: "deadline"}, provider.ErrorCodeTimeout},
		{"unavailable", genai.APIError{Code: 503, Message: "overloaded"}, provider.ErrorCodeUnavailable},
		{"bad request", genai.APIError{Code: 400, Message: "bad"}, provider.ErrorCodeInvalidRequest},
		{"deadline", context.DeadlineExceeded, provider.ErrorCodeTimeout},
		{"other", errors.New("connection reset"), provider.ErrorCodeNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, provider.CodeOf(mapGeminiError(tt.err)))
		})
	}
}

func TestMapGeminiError_CancelPassesThrough(t *testing.T) {
	err := mapGeminiError(context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, provider.ErrorCode(""), provider.CodeOf(err))
}

func TestToGeminiContents_SkipsEmpty(t *testing.T) {
	contents := toGeminiContents([]provider.Message{
		{Role: provider.RoleUser, Content: "a"},
		{Role: provider.RoleAssistant, Content: ""},
	})
	assert.Len(t, contents, 1)
}

func TestGenerate_WithTimeout(t *testing.T) {
	mockClient := &MockGeminiClient{
		GenerateContentFunc: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	p := New(mockClient, "", nil).WithTimeout(10 * time.Millisecond)

	_, err := p.Generate(context.Background(), []provider.Message{{Role: provider.RoleUser, Content: "hi"}}, provider.GenerateConfig{})

	require.Error(t, err)
	assert.Equal(t, provider.ErrorCodeTimeout, provider.CodeOf(err))
}
