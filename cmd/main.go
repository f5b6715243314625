package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Vada521/englishai/internal/ai"
	"github.com/Vada521/englishai/internal/bot"
	"github.com/Vada521/englishai/internal/config"
	"github.com/Vada521/englishai/internal/metrics"
	"github.com/Vada521/englishai/internal/migrations"
	"github.com/Vada521/englishai/internal/scheduler"
	"github.com/Vada521/englishai/internal/session"
	"github.com/Vada521/englishai/internal/store"
	"github.com/Vada521/englishai/internal/tutor"
	"github.com/Vada521/englishai/internal/user"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера
	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Printf("Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("запуск бота English Tutor", zap.String("env", cfg.App.Env))

	// Применение миграций
	if err := migrations.RunMigrations(cfg, logger); err != nil {
		logger.Fatal("ошибка применения миграций", zap.Error(err))
	}

	// Инициализация базы данных
	db, err := store.NewStore(cfg, logger)
	if err != nil {
		logger.Fatal("ошибка инициализации базы данных", zap.Error(err))
	}
	defer db.Close()

	// Метрики
	metricsSystem := metrics.New(logger, prometheus.DefaultRegisterer)

	// Инициализация AI ассистента
	logger.Info("конфигурация AI",
		zap.String("provider", cfg.AI.Provider),
		zap.String("model", cfg.AI.Model))

	assistant, err := ai.NewAssistant(&ai.AIConfig{
		Provider:    cfg.AI.Provider,
		Model:       cfg.AI.Model,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
		OpenAI: ai.OpenAIConfig{
			APIKey:       cfg.AI.OpenAI.APIKey,
			AssistantID:  cfg.AI.OpenAI.AssistantID,
			BaseURL:      cfg.AI.OpenAI.BaseURL,
			PollInterval: cfg.AI.OpenAI.PollInterval,
		},
		DeepSeek: ai.DeepSeekConfig{
			APIKey:  cfg.AI.DeepSeek.APIKey,
			BaseURL: cfg.AI.DeepSeek.BaseURL,
		},
		OpenRouter: ai.OpenRouterConfig{
			APIKey:   cfg.AI.OpenRouter.APIKey,
			SiteURL:  cfg.AI.OpenRouter.SiteURL,
			SiteName: cfg.AI.OpenRouter.SiteName,
		},
	}, logger)
	if err != nil {
		logger.Fatal("ошибка создания AI ассистента", zap.Error(err))
	}
	tutorService := tutor.NewService(assistant, metricsSystem, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Хранилище сессий
	checks := map[string]metrics.HealthChecker{"postgres": db}
	var sessions session.Store
	switch cfg.Session.Store {
	case "redis":
		redisStore, err := session.NewRedisStore(ctx, session.RedisOptions{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
			TTL:      cfg.Session.TTL,
		}, logger)
		if err != nil {
			logger.Fatal("ошибка подключения к Redis", zap.Error(err))
		}
		defer redisStore.Close()
		sessions = redisStore
		checks["redis"] = redisStore
	default:
		sessions = session.NewMemoryStore(cfg.Session.TTL)
	}
	logger.Info("хранилище сессий", zap.String("store", cfg.Session.Store))

	userService := user.NewService(db, logger)

	// Инициализация Telegram бота
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Fatal("ошибка инициализации Telegram бота", zap.Error(err))
	}

	botInfo, err := botAPI.GetMe()
	if err != nil {
		logger.Fatal("ошибка получения информации о боте", zap.Error(err))
	}

	logger.Info("Telegram бот инициализирован",
		zap.String("username", botInfo.UserName),
		zap.Int64("id", botInfo.ID))

	handler := bot.NewHandler(botAPI, userService, tutorService, sessions, metricsSystem, cfg.Telegram.RateLimitPerMin, logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return handleUpdates(ctx, botAPI, cfg.Telegram.UpdateTimeout, handler, logger)
	})

	g.Go(func() error {
		metricsHandler := metrics.NewHandler(prometheus.DefaultGatherer, checks, logger)
		return startMetricsServer(ctx, cfg.App.Port, metricsHandler, logger)
	})

	if cfg.Reminder.Enabled {
		taskScheduler := scheduler.NewScheduler(logger)
		taskScheduler.AddJob(scheduler.NewReminderJob(userService, botAPI, cfg.Reminder.After, cfg.Reminder.Interval, logger))

		g.Go(func() error {
			return taskScheduler.Start(ctx, cfg.Reminder.Interval)
		})
	}

	logger.Info("приложение запущено и готово к работе",
		zap.String("address", fmt.Sprintf("http://localhost:%d", cfg.App.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("приложение остановлено с ошибкой", zap.Error(err))
		return
	}
	logger.Info("приложение завершено")
}

// initLogger инициализирует логгер
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	if cfg.App.IsProduction() {
		config = zap.NewProductionConfig()
	}
	config.Level = cfg.App.GetLogLevel()
	config.OutputPaths = []string{"stdout", "logs/app.log"}
	config.ErrorOutputPaths = []string{"stderr", "logs/error.log"}

	// Создаем директорию для логов если её нет
	if err := os.MkdirAll("logs", 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории логов: %w", err)
	}

	return config.Build()
}

// handleUpdates читает обновления long polling и обрабатывает каждое в своей горутине
func handleUpdates(ctx context.Context, botAPI *tgbotapi.BotAPI, timeout int, handler *bot.Handler, logger *zap.Logger) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = timeout

	updates := botAPI.GetUpdatesChan(updateConfig)
	defer botAPI.StopReceivingUpdates()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return errors.New("канал обновлений закрыт")
			}
			// Пропускаем пустые обновления
			if update.Message == nil && update.CallbackQuery == nil {
				continue
			}

			go func(update tgbotapi.Update) {
				if err := handler.HandleUpdate(ctx, update); err != nil {
					var chatID int64
					if chat := update.FromChat(); chat != nil {
						chatID = chat.ID
					}
					logger.Error("ошибка обработки обновления",
						zap.Int64("chat_id", chatID),
						zap.Error(err))
				}
			}(update)

		case <-ctx.Done():
			logger.Info("остановка обработки обновлений")
			return nil
		}
	}
}

// startMetricsServer запускает HTTP сервер для метрик и проверки здоровья
func startMetricsServer(ctx context.Context, port int, handler *metrics.Handler, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler.MetricsHandler())
	mux.HandleFunc("/health", handler.HealthHandler)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP сервер метрик запущен", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP сервера метрик: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ошибка при остановке HTTP сервера метрик", zap.Error(err))
	}

	logger.Info("HTTP сервер метрик остановлен")
	return nil
}
