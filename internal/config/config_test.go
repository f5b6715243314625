package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Устанавливаем переменные окружения для теста
	t.Setenv("TELEGRAM_BOT_TOKEN", "test_token")
	t.Setenv("AI_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "test_openai_key")
	t.Setenv("ASSISTANT_ID", "asst_test")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "test_user")
	t.Setenv("DB_PASSWORD", "test_password")
	t.Setenv("DB_NAME", "test_db")
	t.Setenv("AI_POLL_INTERVAL", "500ms")
	t.Setenv("SESSION_STORE", "memory")

	cfg, err := Load()

	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "test_token", cfg.Telegram.BotToken)
	assert.Equal(t, "test_openai_key", cfg.AI.OpenAI.APIKey)
	assert.Equal(t, "asst_test", cfg.AI.OpenAI.AssistantID)
	assert.Equal(t, 500*time.Millisecond, cfg.AI.OpenAI.PollInterval)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "test_user", cfg.Database.User)
	assert.Equal(t, "test_password", cfg.Database.Password)
	assert.Equal(t, "test_db", cfg.Database.Name)

	// Проверяем значения по умолчанию
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, "https://api.openai.com/v1", cfg.AI.OpenAI.BaseURL)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "memory", cfg.Session.Store)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 30, cfg.Telegram.RateLimitPerMin)
	assert.Equal(t, 48*time.Hour, cfg.Reminder.After)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, 8080, cfg.App.Port)
}

func TestLoadConfig_MissingAssistant(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "test_token")
	t.Setenv("AI_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "test_openai_key")
	t.Setenv("ASSISTANT_ID", "")
	t.Setenv("DB_USER", "test_user")
	t.Setenv("DB_PASSWORD", "test_password")
	t.Setenv("DB_NAME", "test_db")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ASSISTANT_ID")
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "test_user",
		Password: "test_password",
		Name:     "test_db",
		SSLMode:  "disable",
	}

	dsn := cfg.GetDSN()
	expected := "host=localhost port=5432 user=test_user password=test_password dbname=test_db sslmode=disable"
	assert.Equal(t, expected, dsn)
}

func TestAppConfigMethods(t *testing.T) {
	cfg := &AppConfig{
		Env:      "development",
		LogLevel: "debug",
	}

	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "debug", cfg.GetLogLevel().String())

	cfg.Env = "production"
	cfg.LogLevel = "unknown"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "info", cfg.GetLogLevel().String())
}

func TestGetEnvDurationDefault(t *testing.T) {
	t.Setenv("TEST_DURATION", "2m")
	assert.Equal(t, 2*time.Minute, getEnvDurationDefault("TEST_DURATION", time.Second))

	t.Setenv("TEST_DURATION", "abc")
	assert.Equal(t, time.Second, getEnvDurationDefault("TEST_DURATION", time.Second))

	t.Setenv("TEST_DURATION", "-1s")
	assert.Equal(t, time.Second, getEnvDurationDefault("TEST_DURATION", time.Second))
}

func TestValidateConfig(t *testing.T) {
	// Тест с пустыми обязательными полями
	cfg := &Config{}
	err := validateConfig(cfg)
	assert.Error(t, err)

	// Тест с корректной конфигурацией
	cfg = &Config{
		Telegram: TelegramConfig{
			BotToken: "test_token",
		},
		AI: AIConfig{
			Provider: "openrouter",
			OpenRouter: OpenRouterConfig{
				APIKey: "test_key",
			},
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			User:     "test_user",
			Password: "test_password",
			Name:     "test_db",
		},
		Session: SessionConfig{Store: "memory"},
	}
	err = validateConfig(cfg)
	assert.NoError(t, err)

	cfg.Session.Store = "etcd"
	assert.Error(t, validateConfig(cfg))

	cfg.Session.Store = "redis"
	cfg.Session.RedisAddr = "localhost:6379"
	assert.NoError(t, validateConfig(cfg))

	cfg.AI.Provider = "gigachat"
	assert.Error(t, validateConfig(cfg))
}
