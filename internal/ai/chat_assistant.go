package ai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// maxThreadMessages сколько последних сообщений треда уходит в запрос
	maxThreadMessages = 10
	// threadTTL после этого времени без активности тред удаляется
	threadTTL = 24 * time.Hour
)

// chatThread история сообщений одного треда
type chatThread struct {
	messages     []Message
	lastActivity time.Time
}

func (t *chatThread) isStale(now time.Time) bool {
	return now.Sub(t.lastActivity) > threadTTL
}

// ChatAssistant реализует Assistant поверх chat completions API.
// Треды хранятся в памяти процесса.
type ChatAssistant struct {
	client  AIClient
	options GenerationOptions
	logger  *zap.Logger

	mu      sync.Mutex
	threads map[string]*chatThread
	now     func() time.Time
}

// NewChatAssistant создает ассистента поверх AI клиента
func NewChatAssistant(client AIClient, options GenerationOptions, logger *zap.Logger) *ChatAssistant {
	return &ChatAssistant{
		client:  client,
		options: options,
		logger:  logger,
		threads: make(map[string]*chatThread),
		now:     time.Now,
	}
}

// CreateThread создает новый тред и удаляет устаревшие
func (a *ChatAssistant) CreateThread(_ context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	for id, t := range a.threads {
		if t.isStale(now) {
			delete(a.threads, id)
		}
	}

	id := "thread_" + uuid.NewString()
	a.threads[id] = &chatThread{lastActivity: now}
	return id, nil
}

// Ask отправляет системные инструкции, хвост истории треда и новое сообщение.
// Неизвестный тред (после перезапуска или очистки) начинается заново с пустой историей.
func (a *ChatAssistant) Ask(ctx context.Context, threadID, prompt string) (string, error) {
	if threadID == "" {
		return "", fmt.Errorf("не указан тред")
	}

	a.mu.Lock()
	thread, ok := a.threads[threadID]
	if !ok {
		a.logger.Warn("тред не найден, история начата заново", zap.String("thread_id", threadID))
		thread = &chatThread{lastActivity: a.now()}
		a.threads[threadID] = thread
	}

	history := thread.messages
	if len(history) > maxThreadMessages {
		history = history[len(history)-maxThreadMessages:]
	}

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: "system", Content: TutorInstructions()})
	messages = append(messages, history...)
	messages = append(messages, Message{Role: "user", Content: prompt})
	a.mu.Unlock()

	resp, err := a.client.GenerateResponse(ctx, messages, a.options)
	if err != nil {
		return "", fmt.Errorf("ошибка генерации ответа: %w", err)
	}
	if resp.Content == "" {
		return "", fmt.Errorf("пустой ответ от %s", a.client.GetName())
	}

	a.mu.Lock()
	if thread, ok := a.threads[threadID]; ok {
		thread.messages = append(thread.messages,
			Message{Role: "user", Content: prompt},
			Message{Role: "assistant", Content: resp.Content})
		if len(thread.messages) > maxThreadMessages {
			thread.messages = append([]Message(nil), thread.messages[len(thread.messages)-maxThreadMessages:]...)
		}
		thread.lastActivity = a.now()
	}
	a.mu.Unlock()

	a.logger.Debug("получен ответ ассистента",
		zap.String("thread_id", threadID),
		zap.String("provider", a.client.GetName()),
		zap.Int("tokens", resp.Usage.TotalTokens))

	return resp.Content, nil
}

// Name возвращает название провайдера
func (a *ChatAssistant) Name() string {
	return a.client.GetName()
}
