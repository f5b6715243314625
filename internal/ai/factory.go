package ai

import (
	"fmt"

	"go.uber.org/zap"
)

// NewAIClient создает chat completions клиент на основе конфигурации
func NewAIClient(cfg *AIConfig, logger *zap.Logger) (AIClient, error) {
	switch cfg.Provider {
	case "deepseek":
		return NewDeepSeekClient(cfg.DeepSeek.APIKey, cfg.DeepSeek.BaseURL, cfg.Model, logger), nil
	case "openrouter":
		return NewOpenRouterClient(cfg.OpenRouter.APIKey, cfg.OpenRouter.SiteURL, cfg.OpenRouter.SiteName, cfg.Model, logger), nil
	default:
		return nil, fmt.Errorf("неподдерживаемый AI провайдер: %s. Поддерживаются: 'deepseek', 'openrouter'", cfg.Provider)
	}
}

// NewAssistant создает ассистента для выбранного провайдера.
// Для openai используется Assistants API, для остальных треды эмулируются в памяти.
func NewAssistant(cfg *AIConfig, logger *zap.Logger) (Assistant, error) {
	if cfg.Provider == "openai" {
		return NewAssistantClient(cfg.OpenAI, logger), nil
	}

	client, err := NewAIClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	return NewChatAssistant(client, GenerationOptions{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}, logger), nil
}
