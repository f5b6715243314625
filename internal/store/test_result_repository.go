package store

import (
	"context"
	"fmt"

	"github.com/Vada521/englishai/pkg/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// testResultRepository реализует TestResultRepository
type testResultRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewTestResultRepository создает новый репозиторий истории тестов
func NewTestResultRepository(db *pgxpool.Pool, logger *zap.Logger) TestResultRepository {
	return &testResultRepository{
		db:     db,
		logger: logger,
	}
}

// Create добавляет запись о пройденном тесте
func (r *testResultRepository) Create(ctx context.Context, result *models.TestResult) error {
	query := `
		INSERT INTO test_results (user_id, score, total, level_before, level_after)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	var before *string
	if result.LevelBefore.IsValid() {
		lb := string(result.LevelBefore)
		before = &lb
	}

	err := r.db.QueryRow(ctx, query,
		result.UserID, result.Score, result.Total, before, string(result.LevelAfter),
	).Scan(&result.ID, &result.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения результата теста: %w", err)
	}
	return nil
}

// ListByUser возвращает последние результаты тестов пользователя, новые первыми
func (r *testResultRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.TestResult, error) {
	query := `
		SELECT id, user_id, score, total, level_before, level_after, created_at
		FROM test_results
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории тестов: %w", err)
	}
	defer rows.Close()

	var results []models.TestResult
	for rows.Next() {
		var (
			res    models.TestResult
			before *string
			after  string
		)
		if err := rows.Scan(&res.ID, &res.UserID, &res.Score, &res.Total, &before, &after, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования результата теста: %w", err)
		}
		if before != nil {
			res.LevelBefore = models.Level(*before)
		}
		res.LevelAfter = models.Level(after)
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации по результатам тестов: %w", err)
	}

	return results, nil
}
