package gemini

import (
	"context"
	"time"

	"github.com/Cyclone1070/triage/internal/provider"
	"go.uber.org/zap"
)

// DefaultModel is used when the configuration leaves the model empty.
const DefaultModel = "gemini-2.5-flash"

// GeminiProvider implements provider.Provider for Google Gemini.
type GeminiProvider struct {
	client    GeminiClient
	modelName string
	timeout   time.Duration
	logger    *zap.Logger
}

// New creates a new GeminiProvider with the specified client and model.
func New(client GeminiClient, modelName string, logger *zap.Logger) *GeminiProvider {
	if modelName == "" {
		modelName = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiProvider{
		client:    client,
		modelName: modelName,
		logger:    logger.Named("gemini"),
	}
}

// Model returns the model name requests are sent to.
func (p *GeminiProvider) Model() string {
	return p.modelName
}

// WithTimeout bounds each Generate call. Zero means no bound.
func (p *GeminiProvider) WithTimeout(d time.Duration) *GeminiProvider {
	p.timeout = d
	return p
}

// Generate sends the conversation to Gemini and returns the reply text.
func (p *GeminiProvider) Generate(ctx context.Context, messages []provider.Message, cfg provider.GenerateConfig) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	contents := toGeminiContents(messages)

	start := time.Now()
	resp, err := p.client.GenerateContent(ctx, p.modelName, contents, toGeminiConfig(cfg))
	if err != nil {
		mapped := mapGeminiError(err)
		p.logger.Debug("generate failed", zap.Error(mapped), zap.Duration("elapsed", time.Since(start)))
		return "", mapped
	}

	text, err := responseText(resp)
	if err != nil {
		return "", err
	}

	p.logger.Debug("generate complete",
		zap.Int("messages", len(messages)),
		zap.Int("response_chars", len(text)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return text, nil
}
