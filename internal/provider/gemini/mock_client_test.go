package gemini

import (
	"context"
	"errors"

	"google.golang.org/genai"
)

// MockGeminiClient is a mock implementation of GeminiClient for testing.
type MockGeminiClient struct {
	GenerateContentFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenerateContent calls the mock function if set, otherwise returns an error.
func (m *MockGeminiClient) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if m.GenerateContentFunc != nil {
		return m.GenerateContentFunc(ctx, model, contents, config)
	}
	return nil, errors.New("GenerateContentFunc not set")
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	gp := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		gp = append(gp, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content:      &genai.Content{Role: "model", Parts: gp},
				FinishReason: genai.FinishReasonStop,
			},
		},
	}
}
