package ai

import (
	"context"
	"errors"
	"time"
)

// ErrThreadNotFound тред ассистента больше не существует у провайдера
var ErrThreadNotFound = errors.New("тред ассистента не найден")

// Message представляет сообщение для AI
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response представляет ответ от AI
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	Usage        Usage  `json:"usage"`
	FinishReason string `json:"finish_reason"`
	Provider     string `json:"provider"`
}

// Usage представляет статистику использования токенов
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerationOptions опции для генерации ответа
type GenerationOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// AIClient интерфейс для работы с chat completions провайдерами
type AIClient interface {
	// GenerateResponse генерирует ответ на основе сообщений
	GenerateResponse(ctx context.Context, messages []Message, options GenerationOptions) (*Response, error)

	// GetName возвращает название провайдера
	GetName() string
}

// Assistant ведет диалог с ассистентом внутри треда.
// Один тред соответствует одному диалогу с пользователем.
type Assistant interface {
	// CreateThread создает новый тред и возвращает его идентификатор
	CreateThread(ctx context.Context) (string, error)

	// Ask отправляет сообщение в тред и дожидается ответа ассистента
	Ask(ctx context.Context, threadID, prompt string) (string, error)

	// Name возвращает название провайдера
	Name() string
}

// AIConfig содержит конфигурацию для AI клиентов
type AIConfig struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
	OpenAI      OpenAIConfig
	DeepSeek    DeepSeekConfig
	OpenRouter  OpenRouterConfig
}

// OpenAIConfig конфигурация ассистента OpenAI
type OpenAIConfig struct {
	APIKey       string
	AssistantID  string
	BaseURL      string
	PollInterval time.Duration
}

// DeepSeekConfig конфигурация DeepSeek
type DeepSeekConfig struct {
	APIKey  string
	BaseURL string
}

// OpenRouterConfig конфигурация OpenRouter
type OpenRouterConfig struct {
	APIKey   string
	SiteURL  string
	SiteName string
}

// TutorInstructions возвращает системные инструкции преподавателя.
// Для OpenAI они задаются при создании ассистента, для остальных
// провайдеров добавляются первым сообщением в каждый запрос.
func TutorInstructions() string {
	return `You are a professional English language teacher working with Russian-speaking students.
You create placement tests, analyze test results, design personal learning plans and prepare lessons.
Explanations for the student are written in Russian, English examples stay in English.
When a request asks for JSON, answer with valid JSON only, without any extra text.`
}
