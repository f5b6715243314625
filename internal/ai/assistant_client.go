package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Статусы запуска ассистента
const (
	RunStatusQueued         = "queued"
	RunStatusInProgress     = "in_progress"
	RunStatusCompleted      = "completed"
	RunStatusFailed         = "failed"
	RunStatusCancelled      = "cancelled"
	RunStatusCancelling     = "cancelling"
	RunStatusExpired        = "expired"
	RunStatusIncomplete     = "incomplete"
	RunStatusRequiresAction = "requires_action"
)

// AssistantClient клиент для OpenAI Assistants API (threads, runs, messages)
type AssistantClient struct {
	apiKey       string
	assistantID  string
	baseURL      string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewAssistantClient создает клиент ассистента OpenAI
func NewAssistantClient(cfg OpenAIConfig, logger *zap.Logger) *AssistantClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	return &AssistantClient{
		apiKey:       cfg.APIKey,
		assistantID:  cfg.AssistantID,
		baseURL:      baseURL,
		pollInterval: pollInterval,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

type threadObject struct {
	ID string `json:"id"`
}

type runObject struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

type messageObject struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text struct {
			Value string `json:"value"`
		} `json:"text"`
	} `json:"content"`
}

type messageList struct {
	Data []messageObject `json:"data"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// CreateThread создает новый тред
func (c *AssistantClient) CreateThread(ctx context.Context) (string, error) {
	var thread threadObject
	if err := c.do(ctx, http.MethodPost, "/threads", map[string]any{}, &thread); err != nil {
		return "", fmt.Errorf("ошибка создания треда: %w", err)
	}
	if thread.ID == "" {
		return "", fmt.Errorf("пустой идентификатор треда")
	}

	c.logger.Debug("создан тред ассистента", zap.String("thread_id", thread.ID))
	return thread.ID, nil
}

// Ask добавляет сообщение в тред, запускает ассистента и ждет завершения запуска.
// Ожидание прерывается только отменой контекста.
func (c *AssistantClient) Ask(ctx context.Context, threadID, prompt string) (string, error) {
	if threadID == "" {
		return "", fmt.Errorf("не указан тред")
	}

	msgBody := map[string]string{"role": "user", "content": prompt}
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/messages", msgBody, nil); err != nil {
		return "", fmt.Errorf("ошибка отправки сообщения: %w", err)
	}

	var run runObject
	runBody := map[string]string{"assistant_id": c.assistantID}
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/runs", runBody, &run); err != nil {
		return "", fmt.Errorf("ошибка запуска ассистента: %w", err)
	}

	start := time.Now()
	run, err := c.waitRun(ctx, threadID, run)
	if err != nil {
		return "", err
	}

	c.logger.Debug("запуск ассистента завершен",
		zap.String("thread_id", threadID),
		zap.String("run_id", run.ID),
		zap.String("status", run.Status),
		zap.Duration("duration", time.Since(start)))

	if run.Status != RunStatusCompleted {
		if run.LastError != nil && run.LastError.Message != "" {
			return "", fmt.Errorf("запуск ассистента завершился со статусом %s: %s", run.Status, run.LastError.Message)
		}
		return "", fmt.Errorf("запуск ассистента завершился со статусом %s", run.Status)
	}

	return c.latestMessage(ctx, threadID)
}

// Name возвращает название провайдера
func (c *AssistantClient) Name() string {
	return "OpenAI Assistant"
}

// waitRun опрашивает статус запуска с фиксированным интервалом до терминального состояния
func (c *AssistantClient) waitRun(ctx context.Context, threadID string, run runObject) (runObject, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for !IsTerminalRunStatus(run.Status) {
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}

		var next runObject
		if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+run.ID, nil, &next); err != nil {
			return run, fmt.Errorf("ошибка получения статуса запуска: %w", err)
		}
		if next.ID == "" {
			next.ID = run.ID
		}
		run = next
	}

	return run, nil
}

// latestMessage возвращает текст последнего сообщения в треде
func (c *AssistantClient) latestMessage(ctx context.Context, threadID string) (string, error) {
	query := url.Values{}
	query.Set("limit", "1")
	query.Set("order", "desc")

	var list messageList
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/messages?"+query.Encode(), nil, &list); err != nil {
		return "", fmt.Errorf("ошибка получения сообщений: %w", err)
	}
	if len(list.Data) == 0 {
		return "", fmt.Errorf("в треде нет сообщений")
	}

	msg := list.Data[0]
	if msg.Role != "assistant" {
		return "", fmt.Errorf("последнее сообщение не от ассистента: %s", msg.Role)
	}

	var b strings.Builder
	for _, part := range msg.Content {
		if part.Type != "text" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(part.Text.Value)
	}

	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("пустой ответ ассистента")
	}
	return b.String(), nil
}

// do выполняет запрос к API и декодирует ответ в out (если out не nil)
func (c *AssistantClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ошибка сериализации запроса: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("ошибка создания HTTP запроса: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка отправки запроса: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("ошибка OpenAI API",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(respBody)))

		message := string(respBody)
		var apiErr apiError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			message = apiErr.Error.Message
		}
		if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(path, "/threads/") {
			return fmt.Errorf("%w: %s", ErrThreadNotFound, message)
		}
		return fmt.Errorf("ошибка OpenAI API (статус %d): %s", resp.StatusCode, message)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("ошибка парсинга ответа: %w", err)
	}
	return nil
}

// IsTerminalRunStatus проверяет, что запуск больше не изменит статус
func IsTerminalRunStatus(status string) bool {
	switch status {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled,
		RunStatusExpired, RunStatusIncomplete, RunStatusRequiresAction:
		return true
	default:
		return false
	}
}
