package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config содержит все конфигурационные параметры приложения
type Config struct {
	Telegram TelegramConfig
	AI       AIConfig
	Database DatabaseConfig
	Session  SessionConfig
	Reminder ReminderConfig
	App      AppConfig
}

// TelegramConfig содержит настройки Telegram бота
type TelegramConfig struct {
	BotToken        string
	UpdateTimeout   int
	RateLimitPerMin int
}

// AIConfig содержит настройки AI провайдеров
type AIConfig struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
	OpenAI      OpenAIConfig
	DeepSeek    DeepSeekConfig
	OpenRouter  OpenRouterConfig
}

// OpenAIConfig настройки ассистента OpenAI (threads/runs API)
type OpenAIConfig struct {
	APIKey       string
	AssistantID  string
	BaseURL      string
	PollInterval time.Duration
}

type DeepSeekConfig struct {
	APIKey  string
	BaseURL string
}

type OpenRouterConfig struct {
	APIKey   string
	SiteURL  string
	SiteName string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// SessionConfig содержит настройки хранилища диалогов
type SessionConfig struct {
	Store         string // memory или redis
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// ReminderConfig настройки напоминаний неактивным пользователям
type ReminderConfig struct {
	Enabled  bool
	After    time.Duration
	Interval time.Duration
}

type AppConfig struct {
	Env      string
	LogLevel string
	Port     int
}

// Load загружает конфигурацию из переменных окружения и .env
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Telegram
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.Telegram.UpdateTimeout = getEnvIntDefault("TELEGRAM_UPDATE_TIMEOUT", 60)
	cfg.Telegram.RateLimitPerMin = getEnvIntDefault("RATE_LIMIT_PER_MINUTE", 30)

	// AI
	cfg.AI.Provider = getEnvDefault("AI_PROVIDER", "openai")
	cfg.AI.Model = getEnvDefault("AI_MODEL", "deepseek-chat")
	cfg.AI.MaxTokens = getEnvIntDefault("AI_MAX_TOKENS", 2000)
	cfg.AI.Temperature = getEnvFloatDefault("AI_TEMPERATURE", 0.7)
	cfg.AI.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.AI.OpenAI.AssistantID = os.Getenv("ASSISTANT_ID")
	cfg.AI.OpenAI.BaseURL = getEnvDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	cfg.AI.OpenAI.PollInterval = getEnvDurationDefault("AI_POLL_INTERVAL", time.Second)
	cfg.AI.DeepSeek.APIKey = os.Getenv("DEEPSEEK_API_KEY")
	cfg.AI.DeepSeek.BaseURL = getEnvDefault("DEEPSEEK_BASE_URL", "https://api.deepseek.com/v1")
	cfg.AI.OpenRouter.APIKey = os.Getenv("OPENROUTER_API_KEY")
	cfg.AI.OpenRouter.SiteURL = os.Getenv("OPENROUTER_SITE_URL")
	cfg.AI.OpenRouter.SiteName = getEnvDefault("OPENROUTER_SITE_NAME", "English Tutor Bot")

	// Database
	cfg.Database.Host = getEnvDefault("DB_HOST", "localhost")
	cfg.Database.Port = getEnvIntDefault("DB_PORT", 5432)
	cfg.Database.User = os.Getenv("DB_USER")
	cfg.Database.Password = os.Getenv("DB_PASSWORD")
	cfg.Database.Name = os.Getenv("DB_NAME")
	cfg.Database.SSLMode = getEnvDefault("DB_SSL_MODE", "disable")

	// Session
	cfg.Session.Store = getEnvDefault("SESSION_STORE", "memory")
	cfg.Session.TTL = getEnvDurationDefault("SESSION_TTL", 24*time.Hour)
	cfg.Session.RedisAddr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Session.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.Session.RedisDB = getEnvIntDefault("REDIS_DB", 0)

	// Reminder
	cfg.Reminder.Enabled = getEnvBoolDefault("REMINDER_ENABLED", true)
	cfg.Reminder.After = getEnvDurationDefault("REMINDER_AFTER", 48*time.Hour)
	cfg.Reminder.Interval = getEnvDurationDefault("REMINDER_INTERVAL", time.Hour)

	// App
	cfg.App.Env = getEnvDefault("APP_ENV", "development")
	cfg.App.LogLevel = getEnvDefault("LOG_LEVEL", "info")
	cfg.App.Port = getEnvIntDefault("APP_PORT", 8080)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("ошибка валидации конфигурации: %w", err)
	}

	return cfg, nil
}

func getEnvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvFloatDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// validateConfig проверяет корректность конфигурации
func validateConfig(config *Config) error {
	if config.Telegram.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN не установлен")
	}

	switch config.AI.Provider {
	case "openai":
		if config.AI.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY не установлен")
		}
		if config.AI.OpenAI.AssistantID == "" {
			return fmt.Errorf("ASSISTANT_ID не установлен")
		}
	case "deepseek":
		if config.AI.DeepSeek.APIKey == "" {
			return fmt.Errorf("DEEPSEEK_API_KEY не установлен")
		}
	case "openrouter":
		if config.AI.OpenRouter.APIKey == "" {
			return fmt.Errorf("OPENROUTER_API_KEY не установлен")
		}
	default:
		return fmt.Errorf("поддерживаются только AI_PROVIDER: openai, deepseek, openrouter")
	}

	if config.Database.Host == "" {
		return fmt.Errorf("DB_HOST не установлен")
	}
	if config.Database.User == "" {
		return fmt.Errorf("DB_USER не установлен")
	}
	if config.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD не установлен")
	}
	if config.Database.Name == "" {
		return fmt.Errorf("DB_NAME не установлен")
	}

	switch config.Session.Store {
	case "memory":
	case "redis":
		if config.Session.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR не установлен")
		}
	default:
		return fmt.Errorf("поддерживаются только SESSION_STORE: memory, redis")
	}

	return nil
}

// GetDSN возвращает строку подключения к базе данных
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// IsDevelopment проверяет, запущено ли приложение в режиме разработки
func (c *AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction проверяет, запущено ли приложение в продакшн режиме
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// GetLogLevel возвращает уровень логирования в формате zap
func (c *AppConfig) GetLogLevel() zap.AtomicLevel {
	switch c.LogLevel {
	case "debug":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}
