package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/Cyclone1070/triage/internal/provider"
	"google.golang.org/genai"
)

// toGeminiContents converts the conversation to Gemini Content format.
// Empty messages are skipped; Gemini rejects parts with no data.
func toGeminiContents(messages []provider.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		role := "user"
		if msg.Role == provider.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
		})
	}
	return contents
}

func toGeminiConfig(cfg provider.GenerateConfig) *genai.GenerateContentConfig {
	out := &genai.GenerateContentConfig{
		SafetySettings: defaultSafetySettings(),
	}
	if cfg.Temperature != nil {
		out.Temperature = cfg.Temperature
	}
	if cfg.MaxOutputTokens != nil {
		out.MaxOutputTokens = *cfg.MaxOutputTokens
	}
	return out
}

// defaultSafetySettings disables blocking; alarm payloads and shell output
// regularly trip the default filters.
func defaultSafetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHateSpeech,
		genai.HarmCategoryDangerousContent,
		genai.HarmCategoryHarassment,
		genai.HarmCategorySexuallyExplicit,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, &genai.SafetySetting{Category: c, Threshold: genai.HarmBlockThresholdOff})
	}
	return settings
}

// responseText joins the text parts of the first candidate, skipping thoughts.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", &provider.ProviderError{Code: provider.ErrorCodeEmptyResponse, Message: "no candidates in response"}
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", &provider.ProviderError{Code: provider.ErrorCodeContentBlocked, Message: "content blocked by safety filters"}
	}
	if candidate.Content == nil {
		return "", nil
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

// mapGeminiError maps Gemini API errors to provider errors.
func mapGeminiError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &provider.ProviderError{Code: provider.ErrorCodeTimeout, Message: "request deadline exceeded", Underlying: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &provider.ProviderError{Code: provider.ErrorCodeTimeout, Message: "network timeout", Underlying: err}
	}

	apiErr, ok := asAPIError(err)
	if !ok {
		return &provider.ProviderError{Code: provider.ErrorCodeNetwork, Message: "network error", Underlying: err}
	}

	switch apiErr.Code {
	case 401, 403:
		return &provider.ProviderError{Code: provider.ErrorCodeAuth, Message: "authentication failed", Underlying: err}
	case 408, 504:
		return &provider.ProviderError{Code: provider.ErrorCodeTimeout, Message: "request timeout", Underlying: err}
	case 429:
		if strings.Contains(strings.ToLower(apiErr.Message), "quota") {
			return &provider.ProviderError{Code: provider.ErrorCodeQuota, Message: "quota exceeded", Underlying: err}
		}
		return &provider.ProviderError{Code: provider.ErrorCodeRateLimit, Message: "rate limit exceeded", Underlying: err}
	case 400:
		return &provider.ProviderError{Code: provider.ErrorCodeInvalidRequest, Message: fmt.Sprintf("invalid request: %s", apiErr.Message), Underlying: err}
	case 500, 502, 503:
		return &provider.ProviderError{Code: provider.ErrorCodeUnavailable, Message: "service unavailable", Underlying: err}
	default:
		return &provider.ProviderError{Code: provider.ErrorCodeNetwork, Message: fmt.Sprintf("API error: %s", apiErr.Message), Underlying: err}
	}
}

func asAPIError(err error) (genai.APIError, bool) {
	var byValue genai.APIError
	if errors.As(err, &byValue) {
		return byValue, true
	}
	var byPointer *genai.APIError
	if errors.As(err, &byPointer) && byPointer != nil {
		return *byPointer, true
	}
	return genai.APIError{}, false
}
