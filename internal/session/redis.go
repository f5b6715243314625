package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "englishai:session:"

// RedisStore хранит сессии в redis в виде JSON с TTL
type RedisStore struct {
	rdb    *goredis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// RedisOptions параметры подключения к redis
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisStore подключается к redis и проверяет соединение
func NewRedisStore(ctx context.Context, opts RedisOptions, logger *zap.Logger) (*RedisStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ошибка подключения к redis: %w", err)
	}

	logger.Info("подключение к redis установлено", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))

	return &RedisStore{
		rdb:    rdb,
		ttl:    opts.TTL,
		logger: logger,
	}, nil
}

func redisKey(chatID int64) string {
	return redisKeyPrefix + strconv.FormatInt(chatID, 10)
}

// Get возвращает сессию чата
func (r *RedisStore) Get(ctx context.Context, chatID int64) (*Session, error) {
	raw, err := r.rdb.Get(ctx, redisKey(chatID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return New(chatID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения сессии из redis: %w", err)
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		r.logger.Warn("поврежденная сессия в redis, начинаем заново", zap.Int64("chat_id", chatID), zap.Error(err))
		return New(chatID), nil
	}
	return &s, nil
}

// Save сохраняет сессию чата
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	s.UpdatedAt = time.Now()
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("ошибка сериализации сессии: %w", err)
	}

	if err := r.rdb.Set(ctx, redisKey(s.ChatID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("ошибка сохранения сессии в redis: %w", err)
	}
	return nil
}

// Delete удаляет сессию чата
func (r *RedisStore) Delete(ctx context.Context, chatID int64) error {
	if err := r.rdb.Del(ctx, redisKey(chatID)).Err(); err != nil {
		return fmt.Errorf("ошибка удаления сессии из redis: %w", err)
	}
	return nil
}

// Ping проверяет доступность redis
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close закрывает соединение с redis
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
