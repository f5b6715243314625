package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/Vada521/englishai/internal/config"
	"github.com/Vada521/englishai/internal/store"

	"go.uber.org/zap"
)

func main() {
	var (
		keepCount = flag.Int("keep", 1, "Количество последних учебных планов для сохранения на пользователя")
		userID    = flag.Int64("user", 0, "ID пользователя для очистки (0 = все пользователи)")
		dryRun    = flag.Bool("dry-run", false, "Показать что будет удалено без фактического удаления")
	)
	flag.Parse()

	// Инициализация логгера
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Ошибка инициализации логгера:", err)
	}
	defer logger.Sync()

	if *keepCount < 1 {
		logger.Fatal("Нужно сохранить хотя бы один план", zap.Int("keep", *keepCount))
	}

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	// Подключение к базе данных
	db, err := store.NewStore(cfg, logger)
	if err != nil {
		logger.Fatal("Ошибка подключения к базе данных", zap.Error(err))
	}
	defer db.Close()

	if err := cleanupPlans(context.Background(), db, *userID, *keepCount, *dryRun, logger); err != nil {
		logger.Fatal("Ошибка очистки учебных планов", zap.Error(err))
	}

	logger.Info("Очистка учебных планов завершена успешно")
}

// cleanupPlans удаляет устаревшие учебные планы, оставляя keepCount последних на пользователя
func cleanupPlans(ctx context.Context, db store.Store, userID int64, keepCount int, dryRun bool, logger *zap.Logger) error {
	if userID > 0 {
		// Проверяем существование пользователя
		user, err := db.User().GetByTelegramID(ctx, userID)
		if err != nil {
			return fmt.Errorf("пользователь не найден: %w", err)
		}
		logger.Info("Очистка планов пользователя",
			zap.Int64("user_id", userID),
			zap.String("username", user.Username))
	}

	superseded, err := db.Plan().CountSuperseded(ctx, userID, keepCount)
	if err != nil {
		return fmt.Errorf("ошибка подсчета устаревших планов: %w", err)
	}

	if superseded == 0 {
		logger.Info("Нет планов для удаления",
			zap.Int64("user_id", userID),
			zap.Int("keep_count", keepCount))
		return nil
	}

	if dryRun {
		logger.Info("DRY RUN: Будет удалено планов",
			zap.Int64("user_id", userID),
			zap.Int64("to_delete", superseded),
			zap.Int("keep_count", keepCount))
		return nil
	}

	deleted, err := db.Plan().DeleteSuperseded(ctx, userID, keepCount)
	if err != nil {
		return fmt.Errorf("ошибка удаления устаревших планов: %w", err)
	}

	logger.Info("Удалены устаревшие учебные планы",
		zap.Int64("user_id", userID),
		zap.Int64("deleted_count", deleted),
		zap.Int("keep_count", keepCount))
	return nil
}
