package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Vada521/englishai/internal/config"
	"github.com/Vada521/englishai/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrNotFound запись не найдена
var ErrNotFound = errors.New("запись не найдена")

// Store представляет интерфейс для работы с базой данных
type Store interface {
	User() UserRepository
	Plan() PlanRepository
	TestResult() TestResultRepository
	DB() *pgxpool.Pool
	Ping(ctx context.Context) error
	Close() error
}

// store реализует интерфейс Store
type store struct {
	db         *pgxpool.Pool
	logger     *zap.Logger
	user       UserRepository
	plan       PlanRepository
	testResult TestResultRepository
}

// UserRepository интерфейс для работы с пользователями
type UserRepository interface {
	Upsert(ctx context.Context, user *models.User) error
	Register(ctx context.Context, telegramID int64, name, phone string) error
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	UpdateTestResult(ctx context.Context, telegramID int64, level models.Level, score int) error
	UpdateLevel(ctx context.Context, telegramID int64, level models.Level) error
	Touch(ctx context.Context, telegramID int64) error
	Delete(ctx context.Context, telegramID int64) error
	GetInactive(ctx context.Context, from, to time.Time) ([]*models.User, error)
}

// PlanRepository интерфейс для работы с учебными планами
type PlanRepository interface {
	Create(ctx context.Context, plan *models.LearningPlan) error
	GetLatest(ctx context.Context, userID int64) (*models.LearningPlan, error)
	UpdateTopics(ctx context.Context, plan *models.LearningPlan) error
	CountSuperseded(ctx context.Context, userID int64, keep int) (int64, error)
	DeleteSuperseded(ctx context.Context, userID int64, keep int) (int64, error)
}

// TestResultRepository интерфейс для работы с историей тестов
type TestResultRepository interface {
	Create(ctx context.Context, result *models.TestResult) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]models.TestResult, error)
}

// NewStore создает новое подключение к базе данных
func NewStore(cfg *config.Config, logger *zap.Logger) (Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	// Настройка пула
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка проверки подключения к базе данных: %w", err)
	}

	logger.Info("успешное подключение к базе данных PostgreSQL")

	return newStore(db, logger), nil
}

func newStore(db *pgxpool.Pool, logger *zap.Logger) *store {
	return &store{
		db:         db,
		logger:     logger,
		user:       NewUserRepository(db, logger),
		plan:       NewPlanRepository(db, logger),
		testResult: NewTestResultRepository(db, logger),
	}
}

// User возвращает репозиторий пользователей
func (s *store) User() UserRepository {
	return s.user
}

// Plan возвращает репозиторий учебных планов
func (s *store) Plan() PlanRepository {
	return s.plan
}

// TestResult возвращает репозиторий истории тестов
func (s *store) TestResult() TestResultRepository {
	return s.testResult
}

// DB возвращает подключение к базе данных
func (s *store) DB() *pgxpool.Pool {
	return s.db
}

// Ping проверяет доступность базы данных
func (s *store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close закрывает подключение к базе данных
func (s *store) Close() error {
	s.logger.Info("закрытие подключения к базе данных")
	s.db.Close()
	return nil
}

// userRepository реализует UserRepository
type userRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewUserRepository создает новый репозиторий пользователей
func NewUserRepository(db *pgxpool.Pool, logger *zap.Logger) UserRepository {
	return &userRepository{
		db:     db,
		logger: logger,
	}
}

const userColumns = `telegram_id, username, first_name, last_name, display_name, phone, level, test_score,
		       has_completed_test, learning_plan, last_activity, created_at, updated_at`

// Upsert создает пользователя при первом обращении или обновляет данные профиля Telegram.
// Поля регистрации, уровень и план не затрагиваются. В user возвращается актуальная строка.
func (r *userRepository) Upsert(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (telegram_id, username, first_name, last_name, last_activity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5, $5)
		ON CONFLICT (telegram_id) DO UPDATE
		SET username = EXCLUDED.username,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    last_activity = EXCLUDED.last_activity,
		    updated_at = EXCLUDED.updated_at
		RETURNING ` + userColumns

	row := r.db.QueryRow(ctx, query, user.TelegramID, user.Username, user.FirstName, user.LastName, time.Now())
	saved, err := scanUser(row)
	if err != nil {
		return fmt.Errorf("ошибка сохранения пользователя: %w", err)
	}

	*user = *saved
	return nil
}

// Register сохраняет имя и телефон, указанные при регистрации
func (r *userRepository) Register(ctx context.Context, telegramID int64, name, phone string) error {
	query := `
		UPDATE users
		SET display_name = $2, phone = $3, last_activity = $4, updated_at = $4
		WHERE telegram_id = $1`

	result, err := r.db.Exec(ctx, query, telegramID, name, phone, time.Now())
	if err != nil {
		return fmt.Errorf("ошибка регистрации пользователя: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("пользователь с ID %d не найден: %w", telegramID, ErrNotFound)
	}

	r.logger.Info("пользователь зарегистрирован", zap.Int64("telegram_id", telegramID))
	return nil
}

// GetByTelegramID получает пользователя по Telegram ID
func (r *userRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, telegramID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("пользователь с ID %d не найден: %w", telegramID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пользователя по Telegram ID: %w", err)
	}
	return user, nil
}

// UpdateTestResult сохраняет уровень и результат последнего теста
func (r *userRepository) UpdateTestResult(ctx context.Context, telegramID int64, level models.Level, score int) error {
	query := `
		UPDATE users
		SET level = $2, test_score = $3, has_completed_test = TRUE, last_activity = $4, updated_at = $4
		WHERE telegram_id = $1`

	result, err := r.db.Exec(ctx, query, telegramID, string(level), score, time.Now())
	if err != nil {
		return fmt.Errorf("ошибка сохранения результата теста: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("пользователь с ID %d не найден: %w", telegramID, ErrNotFound)
	}

	r.logger.Info("результат теста сохранен",
		zap.Int64("telegram_id", telegramID),
		zap.String("level", string(level)),
		zap.Int("score", score))
	return nil
}

// UpdateLevel обновляет уровень пользователя
func (r *userRepository) UpdateLevel(ctx context.Context, telegramID int64, level models.Level) error {
	query := `UPDATE users SET level = $2, last_activity = $3, updated_at = $3 WHERE telegram_id = $1`

	result, err := r.db.Exec(ctx, query, telegramID, string(level), time.Now())
	if err != nil {
		return fmt.Errorf("ошибка обновления уровня пользователя: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("пользователь с ID %d не найден: %w", telegramID, ErrNotFound)
	}
	return nil
}

// Touch обновляет время последней активности
func (r *userRepository) Touch(ctx context.Context, telegramID int64) error {
	query := `UPDATE users SET last_activity = $2 WHERE telegram_id = $1`

	result, err := r.db.Exec(ctx, query, telegramID, time.Now())
	if err != nil {
		return fmt.Errorf("ошибка обновления времени активности: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("пользователь с ID %d не найден: %w", telegramID, ErrNotFound)
	}
	return nil
}

// Delete удаляет пользователя вместе с планами и историей тестов
func (r *userRepository) Delete(ctx context.Context, telegramID int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM users WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return fmt.Errorf("ошибка удаления пользователя: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("пользователь с ID %d не найден: %w", telegramID, ErrNotFound)
	}

	r.logger.Info("пользователь удален", zap.Int64("telegram_id", telegramID))
	return nil
}

// GetInactive возвращает прошедших тест пользователей, последняя активность которых в [from, to)
func (r *userRepository) GetInactive(ctx context.Context, from, to time.Time) ([]*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE has_completed_test = TRUE
		  AND last_activity >= $1
		  AND last_activity < $2
		ORDER BY last_activity`

	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения неактивных пользователей: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации по пользователям: %w", err)
	}

	return users, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		user  models.User
		level *string
		plan  []byte
	)

	err := row.Scan(
		&user.TelegramID, &user.Username, &user.FirstName, &user.LastName, &user.Name, &user.Phone,
		&level, &user.TestScore, &user.HasCompletedTest, &plan,
		&user.LastActivity, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if level != nil {
		user.Level = models.Level(*level)
	}
	if user.LearningPlan, err = decodePlan(plan); err != nil {
		return nil, err
	}
	return &user, nil
}

// decodePlan разбирает сериализованный план, NULL дает nil
func decodePlan(raw []byte) (*models.LearningPlan, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var plan models.LearningPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("ошибка разбора учебного плана: %w", err)
	}
	return &plan, nil
}
