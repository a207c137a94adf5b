package gemini

import (
	"context"

	"google.golang.org/genai"
)

// GeminiClient defines the subset of the Gemini API the provider needs.
// This abstraction allows for easier testing.
type GeminiClient interface {
	// GenerateContent sends a request to the Gemini API and returns the response
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// RealGeminiClient wraps the official SDK client to satisfy GeminiClient.
type RealGeminiClient struct {
	client *genai.Client
}

// NewRealGeminiClient creates a new RealGeminiClient from an SDK client.
func NewRealGeminiClient(client *genai.Client) *RealGeminiClient {
	return &RealGeminiClient{client: client}
}

func (c *RealGeminiClient) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return c.client.Models.GenerateContent(ctx, model, contents, config)
}

// NewClientFromKey builds a RealGeminiClient against the Gemini developer API.
func NewClientFromKey(ctx context.Context, apiKey string) (*RealGeminiClient, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return NewRealGeminiClient(c), nil
}
