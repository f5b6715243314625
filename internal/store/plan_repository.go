package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Vada521/englishai/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// planRepository реализует PlanRepository
type planRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPlanRepository создает новый репозиторий учебных планов
func NewPlanRepository(db *pgxpool.Pool, logger *zap.Logger) PlanRepository {
	return &planRepository{
		db:     db,
		logger: logger,
	}
}

// Create добавляет новую строку плана и копирует план в users.learning_plan одним запросом.
// Предыдущие планы пользователя не изменяются.
func (r *planRepository) Create(ctx context.Context, plan *models.LearningPlan) error {
	topics, err := json.Marshal(plan.Topics)
	if err != nil {
		return fmt.Errorf("ошибка сериализации тем: %w", err)
	}
	mirror, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("ошибка сериализации плана: %w", err)
	}

	query := `
		WITH inserted AS (
			INSERT INTO learning_plans (user_id, current_level, target_level, topics, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at
		), mirrored AS (
			UPDATE users
			SET learning_plan = jsonb_set($6::jsonb, '{id}', to_jsonb((SELECT id FROM inserted))),
			    updated_at = $5
			WHERE telegram_id = $1
		)
		SELECT id, created_at FROM inserted`

	err = r.db.QueryRow(ctx, query,
		plan.UserID, string(plan.CurrentLevel), string(plan.TargetLevel), topics, time.Now(), mirror,
	).Scan(&plan.ID, &plan.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения учебного плана: %w", err)
	}

	r.logger.Info("учебный план сохранен",
		zap.Int64("plan_id", plan.ID),
		zap.Int64("user_id", plan.UserID),
		zap.Int("topics", len(plan.Topics)))
	return nil
}

// GetLatest возвращает последний план пользователя
func (r *planRepository) GetLatest(ctx context.Context, userID int64) (*models.LearningPlan, error) {
	query := `
		SELECT id, user_id, current_level, target_level, topics, created_at
		FROM learning_plans
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	var (
		plan          models.LearningPlan
		current, next string
		topics        []byte
	)
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&plan.ID, &plan.UserID, &current, &next, &topics, &plan.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("учебный план пользователя %d не найден: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения учебного плана: %w", err)
	}

	plan.CurrentLevel = models.Level(current)
	plan.TargetLevel = models.Level(next)
	if err := json.Unmarshal(topics, &plan.Topics); err != nil {
		return nil, fmt.Errorf("ошибка разбора тем плана %d: %w", plan.ID, err)
	}
	return &plan, nil
}

// UpdateTopics сохраняет отметки о прохождении тем в строке плана и в users.learning_plan
func (r *planRepository) UpdateTopics(ctx context.Context, plan *models.LearningPlan) error {
	topics, err := json.Marshal(plan.Topics)
	if err != nil {
		return fmt.Errorf("ошибка сериализации тем: %w", err)
	}
	mirror, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("ошибка сериализации плана: %w", err)
	}

	query := `
		WITH updated AS (
			UPDATE learning_plans SET topics = $3
			WHERE id = $1 AND user_id = $2
			RETURNING id
		)
		UPDATE users
		SET learning_plan = $4, last_activity = $5, updated_at = $5
		WHERE telegram_id = $2 AND EXISTS (SELECT 1 FROM updated)`

	result, err := r.db.Exec(ctx, query, plan.ID, plan.UserID, topics, mirror, time.Now())
	if err != nil {
		return fmt.Errorf("ошибка обновления тем плана: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("учебный план %d не найден: %w", plan.ID, ErrNotFound)
	}
	return nil
}

const rankedPlans = `
		WITH ranked AS (
			SELECT id, ROW_NUMBER() OVER (PARTITION BY user_id ORDER BY created_at DESC, id DESC) AS rn
			FROM learning_plans
			WHERE $1::bigint = 0 OR user_id = $1::bigint
		)`

// CountSuperseded считает планы, которые старше keep последних. userID 0 означает всех пользователей.
func (r *planRepository) CountSuperseded(ctx context.Context, userID int64, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("нужно сохранить хотя бы один план, получено %d", keep)
	}

	var count int64
	query := rankedPlans + ` SELECT COUNT(*) FROM ranked WHERE rn > $2`
	if err := r.db.QueryRow(ctx, query, userID, int64(keep)).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчета устаревших планов: %w", err)
	}
	return count, nil
}

// DeleteSuperseded удаляет планы, которые старше keep последних
func (r *planRepository) DeleteSuperseded(ctx context.Context, userID int64, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("нужно сохранить хотя бы один план, получено %d", keep)
	}

	query := rankedPlans + `
		DELETE FROM learning_plans
		WHERE id IN (SELECT id FROM ranked WHERE rn > $2)`

	result, err := r.db.Exec(ctx, query, userID, int64(keep))
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления устаревших планов: %w", err)
	}

	r.logger.Info("устаревшие планы удалены",
		zap.Int64("user_id", userID),
		zap.Int("keep", keep),
		zap.Int64("deleted", result.RowsAffected()))
	return result.RowsAffected(), nil
}
