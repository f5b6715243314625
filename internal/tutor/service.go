package tutor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Vada521/englishai/internal/ai"
	"github.com/Vada521/englishai/internal/metrics"
	"github.com/Vada521/englishai/pkg/models"

	"go.uber.org/zap"
)

const (
	// QuestionsCount количество вопросов в тесте уровня
	QuestionsCount = 10
	// OptionsCount количество вариантов ответа у вопроса
	OptionsCount = 3
)

// Виды запросов к ассистенту (метка в метриках)
const (
	KindQuestions = "questions"
	KindAnalysis  = "analysis"
	KindPlan      = "plan"
	KindLesson    = "lesson"
)

var levelRegex = regexp.MustCompile(`(?i)\b([ABC][12])\b`)
var numberRegex = regexp.MustCompile(`\d+`)

// Service готовит учебный контент через ассистента
type Service struct {
	assistant ai.Assistant
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewService создает новый сервис контента
func NewService(assistant ai.Assistant, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		assistant: assistant,
		metrics:   m,
		logger:    logger,
	}
}

// NewThread создает тред ассистента для нового диалога
func (s *Service) NewThread(ctx context.Context) (string, error) {
	threadID, err := s.assistant.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("ошибка создания треда: %w", err)
	}
	return threadID, nil
}

func (s *Service) ask(ctx context.Context, kind, threadID, prompt string) (string, error) {
	done := s.metrics.TrackAIRequest(kind)
	reply, err := s.assistant.Ask(ctx, threadID, prompt)
	done(err == nil)
	if err != nil {
		return "", fmt.Errorf("ошибка запроса к ассистенту (%s): %w", kind, err)
	}
	return reply, nil
}

// GenerateTestQuestions запрашивает вопросы теста. Если ассистент недоступен
// или вернул меньше 10 корректных вопросов, возвращается встроенный набор.
func (s *Service) GenerateTestQuestions(ctx context.Context, threadID string) []models.TestQuestion {
	reply, err := s.ask(ctx, KindQuestions, threadID, questionsPrompt())
	if err != nil {
		s.logger.Error("ошибка генерации вопросов теста", zap.Error(err))
		s.metrics.RecordFallback(KindQuestions)
		return DefaultQuestions()
	}

	questions, err := parseQuestions(reply)
	if err != nil {
		s.logger.Warn("не удалось разобрать вопросы теста", zap.Error(err), zap.String("reply", truncateForLog(reply)))
		s.metrics.RecordFallback(KindQuestions)
		return DefaultQuestions()
	}

	valid := ValidQuestions(questions)
	if len(valid) < QuestionsCount {
		s.logger.Warn("недостаточно корректных вопросов, используем встроенные",
			zap.Int("received", len(questions)),
			zap.Int("valid", len(valid)))
		s.metrics.RecordFallback(KindQuestions)
		return DefaultQuestions()
	}

	return valid[:QuestionsCount]
}

func parseQuestions(reply string) ([]models.TestQuestion, error) {
	raw := ai.ExtractJSON(reply)

	var questions []models.TestQuestion
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &questions); err != nil {
			return nil, fmt.Errorf("ошибка парсинга вопросов: %w", err)
		}
		return questions, nil
	}

	var wrapped struct {
		Questions []models.TestQuestion `json:"questions"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
		return nil, fmt.Errorf("ошибка парсинга вопросов: %w", err)
	}
	return wrapped.Questions, nil
}

// ValidQuestions оставляет вопросы с текстом и ровно тремя непустыми вариантами
func ValidQuestions(questions []models.TestQuestion) []models.TestQuestion {
	valid := make([]models.TestQuestion, 0, len(questions))
	for _, q := range questions {
		q.Question = strings.TrimSpace(q.Question)
		if q.Question == "" || len(q.Options) != OptionsCount {
			continue
		}

		options := make([]string, 0, OptionsCount)
		for _, opt := range q.Options {
			if opt = strings.TrimSpace(opt); opt != "" {
				options = append(options, opt)
			}
		}
		if len(options) == OptionsCount {
			q.Options = options
			valid = append(valid, q)
		}
	}
	return valid
}

type rawAnalysis struct {
	CorrectAnswers  json.RawMessage `json:"correct_answers"`
	Level           string          `json:"level"`
	Explanation     models.FlexText `json:"explanation"`
	Strengths       models.FlexText `json:"strengths"`
	Weaknesses      models.FlexText `json:"weaknesses"`
	Recommendations models.FlexText `json:"recommendations"`
}

// AnalyzeTest отправляет ответы ученика на анализ и возвращает уровень
func (s *Service) AnalyzeTest(ctx context.Context, threadID string, answers []models.TestAnswer) (*models.TestAnalysis, error) {
	reply, err := s.ask(ctx, KindAnalysis, threadID, analysisPrompt(answers))
	if err != nil {
		return nil, err
	}

	analysis, err := parseAnalysis(reply, len(answers))
	if err != nil {
		s.logger.Warn("не удалось разобрать анализ теста", zap.Error(err), zap.String("reply", truncateForLog(reply)))
		return nil, err
	}

	s.logger.Info("тест проанализирован",
		zap.String("level", string(analysis.Level)),
		zap.Int("correct", analysis.CorrectAnswers),
		zap.Int("total", analysis.Total))

	return analysis, nil
}

func parseAnalysis(reply string, total int) (*models.TestAnalysis, error) {
	var raw rawAnalysis
	if err := ai.DecodeJSON(reply, &raw); err != nil {
		return nil, err
	}

	correct, hasCorrect := parseCount(raw.CorrectAnswers)
	level, hasLevel := NormalizeLevel(raw.Level)

	if !hasCorrect && !hasLevel {
		return nil, fmt.Errorf("в анализе нет ни уровня, ни количества правильных ответов")
	}

	if correct < 0 {
		correct = 0
	}
	if total > 0 && correct > total {
		correct = total
	}
	if !hasLevel {
		level = LevelFromCorrect(correct)
	}

	return &models.TestAnalysis{
		CorrectAnswers:  correct,
		Total:           total,
		Level:           level,
		Explanation:     strings.TrimSpace(raw.Explanation.Join("\n")),
		Strengths:       raw.Strengths,
		Weaknesses:      raw.Weaknesses,
		Recommendations: raw.Recommendations,
	}, nil
}

// parseCount понимает 7, "7" и "7/10"
func parseCount(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int(n), true
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return 0, false
	}
	m := numberRegex.FindString(text)
	if m == "" {
		return 0, false
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return v, true
}

// NormalizeLevel находит код уровня в строке вида "B1 (Intermediate)". C2 приводится к C1.
func NormalizeLevel(text string) (models.Level, bool) {
	for _, m := range levelRegex.FindAllStringSubmatch(text, -1) {
		code := strings.ToUpper(m[1])
		if code == "C2" {
			return models.LevelC1, true
		}
		if level, ok := models.ParseLevel(code); ok {
			return level, true
		}
	}
	return "", false
}

// GeneratePlan запрашивает учебный план. При любой ошибке возвращается
// базовый план, поэтому результат всегда не nil.
func (s *Service) GeneratePlan(ctx context.Context, threadID string, analysis *models.TestAnalysis) *models.LearningPlan {
	level := models.LevelA1
	var strengths, weaknesses []string
	if analysis != nil {
		if analysis.Level.IsValid() {
			level = analysis.Level
		}
		strengths = analysis.Strengths
		weaknesses = analysis.Weaknesses
	}

	reply, err := s.ask(ctx, KindPlan, threadID, planPrompt(level, strengths, weaknesses))
	if err != nil {
		s.logger.Error("ошибка генерации учебного плана", zap.Error(err))
		return s.fallbackPlan(level)
	}

	plan, err := parsePlan(reply, level)
	if err != nil {
		s.logger.Warn("не удалось разобрать учебный план", zap.Error(err), zap.String("reply", truncateForLog(reply)))
		return s.fallbackPlan(level)
	}

	s.metrics.RecordPlanGenerated("ai")
	return plan
}

func (s *Service) fallbackPlan(level models.Level) *models.LearningPlan {
	s.metrics.RecordFallback(KindPlan)
	s.metrics.RecordPlanGenerated("fallback")
	return DefaultPlan(level)
}

func parsePlan(reply string, level models.Level) (*models.LearningPlan, error) {
	var raw struct {
		CurrentLevel string         `json:"current_level"`
		TargetLevel  string         `json:"target_level"`
		Topics       []models.Topic `json:"topics"`
	}
	if err := ai.DecodeJSON(reply, &raw); err != nil {
		return nil, err
	}

	topics := make([]models.Topic, 0, len(raw.Topics))
	for _, t := range raw.Topics {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			continue
		}
		t.Completed = false
		topics = append(topics, t)
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("в плане нет тем")
	}

	target, ok := NormalizeLevel(raw.TargetLevel)
	if !ok {
		target = level.Next()
	}

	return &models.LearningPlan{
		CurrentLevel: level,
		TargetLevel:  target,
		Topics:       topics,
	}, nil
}

// GenerateLesson запрашивает материал урока по теме
func (s *Service) GenerateLesson(ctx context.Context, threadID string, level models.Level, topic models.Topic) (*models.Lesson, error) {
	reply, err := s.ask(ctx, KindLesson, threadID, lessonPrompt(level, topic))
	if err != nil {
		return nil, err
	}

	lesson, err := parseLesson(reply)
	if err != nil {
		s.logger.Warn("не удалось разобрать урок", zap.Error(err), zap.String("topic", topic.Name), zap.String("reply", truncateForLog(reply)))
		return nil, err
	}
	return lesson, nil
}

func parseLesson(reply string) (*models.Lesson, error) {
	var lesson models.Lesson
	if err := ai.DecodeJSON(reply, &lesson); err != nil {
		return nil, err
	}

	lesson.Theory = strings.TrimSpace(lesson.Theory)
	if lesson.Theory == "" {
		return nil, fmt.Errorf("в уроке нет теории")
	}

	exercises := lesson.Exercises[:0]
	for _, ex := range lesson.Exercises {
		if strings.TrimSpace(ex.Question) != "" {
			exercises = append(exercises, ex)
		}
	}
	lesson.Exercises = exercises

	quiz := lesson.Quiz[:0]
	for _, q := range lesson.Quiz {
		if strings.TrimSpace(q.Question) != "" && len(q.Options) == OptionsCount {
			quiz = append(quiz, q)
		}
	}
	lesson.Quiz = quiz

	return &lesson, nil
}

func truncateForLog(s string) string {
	const limit = 500
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
