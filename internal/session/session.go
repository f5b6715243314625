package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Vada521/englishai/pkg/models"
)

// Stage этап диалога с пользователем
type Stage string

const (
	StageNew               Stage = ""
	StageRegistrationName  Stage = "registration_name"
	StageRegistrationPhone Stage = "registration_phone"
	StageMenu              Stage = "menu"
	StageTest              Stage = "test"
	StagePlanGeneration    Stage = "plan_generation"
	StageLearning          Stage = "learning"
	StageExercise          Stage = "exercise"
)

// Session состояние диалога одного чата между сообщениями
type Session struct {
	ChatID    int64                `json:"chat_id"`
	Stage     Stage                `json:"stage"`
	Name      string               `json:"name,omitempty"` // имя до завершения регистрации
	ThreadID  string               `json:"thread_id,omitempty"`
	Test      *TestSession         `json:"test,omitempty"`
	Analysis  *models.TestAnalysis `json:"analysis,omitempty"`
	Lesson    *LessonState         `json:"lesson,omitempty"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// New создает пустую сессию чата
func New(chatID int64) *Session {
	return &Session{ChatID: chatID, Stage: StageNew}
}

// Reset возвращает сессию в меню, сохраняя тред ассистента
func (s *Session) Reset() {
	s.Stage = StageMenu
	s.Name = ""
	s.Test = nil
	s.Lesson = nil
}

// LessonState текущий урок и позиция в упражнениях
type LessonState struct {
	PlanID     int64          `json:"plan_id"`
	TopicIndex int            `json:"topic_index"`
	Topic      models.Topic   `json:"topic"`
	Lesson     *models.Lesson `json:"lesson"`
}

// TestSession тест уровня в процессе прохождения
type TestSession struct {
	Questions []models.TestQuestion `json:"questions"`
	Current   int                   `json:"current"`
	Answers   []models.TestAnswer   `json:"answers"`
	StartedAt time.Time             `json:"started_at"`
}

// NewTestSession создает тест из вопросов
func NewTestSession(questions []models.TestQuestion) *TestSession {
	return &TestSession{
		Questions: questions,
		Answers:   make([]models.TestAnswer, 0, len(questions)),
		StartedAt: time.Now(),
	}
}

// CurrentQuestion возвращает текущий вопрос
func (t *TestSession) CurrentQuestion() (models.TestQuestion, bool) {
	if t == nil || t.Current >= len(t.Questions) {
		return models.TestQuestion{}, false
	}
	return t.Questions[t.Current], true
}

// Answer записывает ответ буквой a, b или c на текущий вопрос и переходит к следующему
func (t *TestSession) Answer(letter string) error {
	q, ok := t.CurrentQuestion()
	if !ok {
		return fmt.Errorf("тест уже завершен")
	}

	letter = strings.ToLower(strings.TrimSpace(letter))
	if len(letter) != 1 || letter[0] < 'a' {
		return fmt.Errorf("некорректный вариант ответа: %q", letter)
	}
	idx := int(letter[0] - 'a')
	if idx >= len(q.Options) {
		return fmt.Errorf("некорректный вариант ответа: %q", letter)
	}

	t.Answers = append(t.Answers, models.TestAnswer{
		Question: q.Question,
		Answer:   q.Options[idx],
	})
	t.Current++
	return nil
}

// Done проверяет, что ответы даны на все вопросы
func (t *TestSession) Done() bool {
	return t != nil && t.Current >= len(t.Questions)
}

// Total количество вопросов в тесте
func (t *TestSession) Total() int {
	if t == nil {
		return 0
	}
	return len(t.Questions)
}

// Store хранилище сессий чатов
type Store interface {
	// Get возвращает сессию чата или новую пустую, если ее нет
	Get(ctx context.Context, chatID int64) (*Session, error)
	// Save сохраняет сессию
	Save(ctx context.Context, s *Session) error
	// Delete удаляет сессию
	Delete(ctx context.Context, chatID int64) error
}
