package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/Vada521/englishai/internal/store"
	"github.com/Vada521/englishai/pkg/models"

	"go.uber.org/zap"
)

const (
	maxNameLength = 64
	historyLimit  = 5
)

var (
	// ErrInvalidName имя пустое или слишком длинное
	ErrInvalidName = errors.New("некорректное имя")
	// ErrInvalidPhone номер телефона не похож на телефон
	ErrInvalidPhone = errors.New("некорректный номер телефона")
	// ErrNoPlan у пользователя нет учебного плана
	ErrNoPlan = errors.New("учебный план не найден")
	// ErrStalePlan план уже заменен новым
	ErrStalePlan = errors.New("учебный план устарел")
)

// Service представляет сервис для работы с пользователями
type Service struct {
	store  store.Store
	logger *zap.Logger
}

// NewService создает новый сервис пользователей
func NewService(store store.Store, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Touch создает пользователя при первом обращении и обновляет данные профиля Telegram
func (s *Service) Touch(ctx context.Context, telegramID int64, username, firstName, lastName string) (*models.User, error) {
	user := &models.User{
		TelegramID: telegramID,
		Username:   username,
		FirstName:  firstName,
		LastName:   lastName,
	}
	if err := s.store.User().Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("ошибка сохранения пользователя: %w", err)
	}
	return user, nil
}

// Get получает пользователя по Telegram ID
func (s *Service) Get(ctx context.Context, telegramID int64) (*models.User, error) {
	user, err := s.store.User().GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return user, nil
}

// IsRegistered проверяет, указал ли пользователь имя и телефон
func (s *Service) IsRegistered(ctx context.Context, telegramID int64) (bool, error) {
	user, err := s.store.User().GetByTelegramID(ctx, telegramID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return user.IsRegistered(), nil
}

// NormalizeName проверяет имя, введенное при регистрации
func NormalizeName(name string) (string, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" || strings.HasPrefix(name, "/") || utf8.RuneCountInString(name) > maxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

// NormalizePhone оставляет в номере цифры и ведущий плюс.
// Допускаются пробелы, скобки и дефисы, цифр должно быть от 5 до 15.
func NormalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)

	var b strings.Builder
	digits := 0
	for i, r := range phone {
		switch {
		case unicode.IsDigit(r) && r < utf8.RuneSelf:
			b.WriteRune(r)
			digits++
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", ErrInvalidPhone
		}
	}

	if digits < 5 || digits > 15 {
		return "", ErrInvalidPhone
	}
	return b.String(), nil
}

// Register сохраняет имя и телефон пользователя
func (s *Service) Register(ctx context.Context, telegramID int64, name, phone string) error {
	name, err := NormalizeName(name)
	if err != nil {
		return err
	}
	phone, err = NormalizePhone(phone)
	if err != nil {
		return err
	}

	if err := s.store.User().Register(ctx, telegramID, name, phone); err != nil {
		return fmt.Errorf("ошибка регистрации: %w", err)
	}

	s.logger.Info("регистрация завершена", zap.Int64("telegram_id", telegramID))
	return nil
}

// SaveTestResult сохраняет уровень и результат теста, а также запись в истории
func (s *Service) SaveTestResult(ctx context.Context, telegramID int64, analysis *models.TestAnalysis) error {
	user, err := s.store.User().GetByTelegramID(ctx, telegramID)
	if err != nil {
		return fmt.Errorf("ошибка получения пользователя: %w", err)
	}

	if err := s.store.User().UpdateTestResult(ctx, telegramID, analysis.Level, analysis.CorrectAnswers); err != nil {
		return fmt.Errorf("ошибка сохранения результата теста: %w", err)
	}

	result := &models.TestResult{
		UserID:      telegramID,
		Score:       analysis.CorrectAnswers,
		Total:       analysis.Total,
		LevelBefore: user.Level,
		LevelAfter:  analysis.Level,
	}
	if err := s.store.TestResult().Create(ctx, result); err != nil {
		s.logger.Warn("не удалось сохранить историю теста", zap.Int64("telegram_id", telegramID), zap.Error(err))
	}

	s.logger.Info("результат теста сохранен",
		zap.Int64("telegram_id", telegramID),
		zap.String("level_before", string(user.Level)),
		zap.String("level_after", string(analysis.Level)),
		zap.Int("score", analysis.CorrectAnswers))
	return nil
}

// SetLevel устанавливает уровень, выбранный пользователем вручную
func (s *Service) SetLevel(ctx context.Context, telegramID int64, level models.Level) error {
	if !level.IsValid() {
		return fmt.Errorf("некорректный уровень: %s", level)
	}
	if err := s.store.User().UpdateLevel(ctx, telegramID, level); err != nil {
		return fmt.Errorf("ошибка обновления уровня: %w", err)
	}
	return nil
}

// SavePlan сохраняет новый учебный план. Старые планы остаются в истории.
func (s *Service) SavePlan(ctx context.Context, telegramID int64, plan *models.LearningPlan) error {
	plan.UserID = telegramID
	if err := s.store.Plan().Create(ctx, plan); err != nil {
		return fmt.Errorf("ошибка сохранения учебного плана: %w", err)
	}
	return nil
}

// ActivePlan возвращает последний учебный план пользователя
func (s *Service) ActivePlan(ctx context.Context, telegramID int64) (*models.LearningPlan, error) {
	plan, err := s.store.Plan().GetLatest(ctx, telegramID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoPlan
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения учебного плана: %w", err)
	}
	return plan, nil
}

// CompleteTopic отмечает тему активного плана пройденной.
// Возвращает обновленный план. Повторная отметка ничего не меняет.
// Если planID не совпадает с активным планом, возвращается ErrStalePlan.
func (s *Service) CompleteTopic(ctx context.Context, telegramID, planID int64, index int) (*models.LearningPlan, error) {
	plan, err := s.ActivePlan(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if plan.ID != planID {
		return nil, fmt.Errorf("%w: план %d, активный %d", ErrStalePlan, planID, plan.ID)
	}
	if index < 0 || index >= len(plan.Topics) {
		return nil, fmt.Errorf("тема %d отсутствует в плане %d", index, plan.ID)
	}
	if plan.Topics[index].Completed {
		return plan, nil
	}

	plan.Topics[index].Completed = true
	if err := s.store.Plan().UpdateTopics(ctx, plan); err != nil {
		return nil, fmt.Errorf("ошибка отметки темы: %w", err)
	}

	done, total := plan.Progress()
	s.logger.Info("тема пройдена",
		zap.Int64("telegram_id", telegramID),
		zap.Int64("plan_id", plan.ID),
		zap.Int("topic", index),
		zap.Int("done", done),
		zap.Int("total", total))
	return plan, nil
}

// Profile собирает данные для экрана профиля
func (s *Service) Profile(ctx context.Context, telegramID int64) (*models.Profile, error) {
	user, err := s.Get(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	profile := &models.Profile{User: user}

	plan, err := s.ActivePlan(ctx, telegramID)
	switch {
	case errors.Is(err, ErrNoPlan):
	case err != nil:
		return nil, err
	default:
		profile.Plan = plan
	}

	if profile.Results, err = s.RecentResults(ctx, telegramID); err != nil {
		return nil, err
	}
	return profile, nil
}

// RecentResults возвращает последние результаты тестов
func (s *Service) RecentResults(ctx context.Context, telegramID int64) ([]models.TestResult, error) {
	results, err := s.store.TestResult().ListByUser(ctx, telegramID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории тестов: %w", err)
	}
	return results, nil
}

// Delete удаляет все данные пользователя. Отсутствие пользователя не считается ошибкой.
func (s *Service) Delete(ctx context.Context, telegramID int64) error {
	err := s.store.User().Delete(ctx, telegramID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("ошибка удаления пользователя: %w", err)
	}
	s.logger.Info("данные пользователя удалены", zap.Int64("telegram_id", telegramID))
	return nil
}

// InactiveUsers возвращает пользователей, последняя активность которых в [now-after-window, now-after)
func (s *Service) InactiveUsers(ctx context.Context, now time.Time, after, window time.Duration) ([]*models.User, error) {
	to := now.Add(-after)
	users, err := s.store.User().GetInactive(ctx, to.Add(-window), to)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения неактивных пользователей: %w", err)
	}
	return users, nil
}
