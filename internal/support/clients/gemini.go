package clients

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/genai"
)

var ErrProviderDisabled = errors.New("generative provider is not configured")

// GeminiClient wraps the genai SDK. Without an API key it stays disabled and
// every call fails with ErrProviderDisabled.
type GeminiClient struct {
	logger    *slog.Logger
	client    *genai.Client
	isEnabled bool
}

func NewGeminiClient(ctx context.Context, logger *slog.Logger, apiKey string) *GeminiClient {
	if apiKey == "" {
		logger.Warn("Gemini client is disabled due to missing API key")
		return &GeminiClient{logger: logger}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		logger.Error("Failed to create Gemini client, support replies will fall back", "error", err)
		return &GeminiClient{logger: logger}
	}

	logger.Info("Gemini client initialized")
	return &GeminiClient{
		logger:    logger,
		client:    client,
		isEnabled: true,
	}
}

func (c *GeminiClient) IsEnabled() bool {
	return c.isEnabled
}

func (c *GeminiClient) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if !c.isEnabled {
		return nil, ErrProviderDisabled
	}

	c.logger.DebugContext(ctx, "Calling Gemini", "model", model)
	return c.client.Models.GenerateContent(ctx, model, contents, config)
}
