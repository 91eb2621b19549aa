package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "clinic:"

// RedisStorage хранит ключи в Redis с общим префиксом.
type RedisStorage struct {
	db *redis.Client
}

// NewRedisStorage подключается к Redis и проверяет соединение.
func NewRedisStorage(ctx context.Context, addr, password string, db int) (*RedisStorage, error) {
	const op = "storage.NewRedisStorage"

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisStorage{db: client}, nil
}

// Client возвращает подключение к Redis для повторного использования (например, кэшем).
func (r *RedisStorage) Client() *redis.Client {
	return r.db
}

// Get возвращает значение по ключу.
func (r *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	const op = "storage.RedisStorage.Get"

	val, err := r.db.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	return val, true, nil
}

// Set сохраняет значение без срока жизни.
func (r *RedisStorage) Set(ctx context.Context, key, value string) error {
	const op = "storage.RedisStorage.Set"

	if err := r.db.Set(ctx, redisKeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Delete удаляет ключ.
func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	const op = "storage.RedisStorage.Delete"

	if err := r.db.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close закрывает соединение с Redis.
func (r *RedisStorage) Close() error {
	return r.db.Close()
}
