package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ChatClient клиент для OpenAI-совместимого /chat/completions API.
// Используется для DeepSeek и OpenRouter.
type ChatClient struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	headers    map[string]string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDeepSeekClient создает новый клиент DeepSeek
func NewDeepSeekClient(apiKey, baseURL, model string, logger *zap.Logger) *ChatClient {
	if baseURL == "" {
		baseURL = "https://api.deepseek.com/v1"
	}
	if model == "" {
		model = "deepseek-chat"
	}

	return &ChatClient{
		name:    "DeepSeek",
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
		logger: logger,
	}
}

// NewOpenRouterClient создает новый клиент OpenRouter
func NewOpenRouterClient(apiKey, siteURL, siteName, model string, logger *zap.Logger) *ChatClient {
	if model == "" {
		model = "deepseek/deepseek-r1-0528:free"
	}

	// Опциональные заголовки для рейтинга на openrouter.ai
	headers := map[string]string{}
	if siteURL != "" {
		headers["HTTP-Referer"] = siteURL
	}
	if siteName != "" {
		headers["X-Title"] = siteName
	}

	return &ChatClient{
		name:    "OpenRouter",
		baseURL: "https://openrouter.ai/api/v1",
		apiKey:  apiKey,
		model:   model,
		headers: headers,
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
		logger: logger,
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// GenerateResponse генерирует ответ через /chat/completions
func (c *ChatClient) GenerateResponse(ctx context.Context, messages []Message, options GenerationOptions) (*Response, error) {
	request := chatRequest{
		Model:    c.model,
		Messages: messages,
	}
	if options.Temperature > 0 {
		request.Temperature = &options.Temperature
	}
	if options.MaxTokens > 0 {
		request.MaxTokens = &options.MaxTokens
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации запроса: %w", err)
	}

	c.logger.Debug("отправляем запрос к AI",
		zap.String("provider", c.name),
		zap.String("model", c.model),
		zap.Int("messages_count", len(messages)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания HTTP запроса: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка отправки запроса к %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("ошибка API провайдера",
			zap.String("provider", c.name),
			zap.Int("status_code", resp.StatusCode),
			zap.String("response_body", string(body)))

		var apiErr apiError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("ошибка %s API: %s", c.name, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("ошибка %s API (статус %d): %s", c.name, resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("ошибка парсинга ответа: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("нет вариантов ответа от %s", c.name)
	}

	choice := chatResp.Choices[0]

	c.logger.Debug("получен ответ от AI",
		zap.String("provider", c.name),
		zap.String("model", chatResp.Model),
		zap.Int("total_tokens", chatResp.Usage.TotalTokens),
		zap.Duration("duration", time.Since(start)),
		zap.String("finish_reason", choice.FinishReason))

	return &Response{
		Content:      choice.Message.Content,
		Model:        chatResp.Model,
		Usage:        chatResp.Usage,
		FinishReason: choice.FinishReason,
		Provider:     strings.ToLower(c.name),
	}, nil
}

// GetName возвращает название провайдера
func (c *ChatClient) GetName() string {
	return c.name
}
