// Package storage содержит долговременное клиентское хранилище ключ-значение.
package storage

import (
	"context"
	"sync"
)

// Ключи хранилища, используемые клиентским слоем.
const (
	KeyLocale         = "locale"
	KeyTheme          = "theme"
	KeyAuthToken      = "auth_token"
	KeyTokenType      = "token_type"
	KeyUser           = "user"
	KeyTokenExpiresAt = "token_expires_at"
)

// Storage описывает контракт долговременного хранилища.
// Отсутствие ключа не является ошибкой: Get возвращает ok == false.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// MemoryStorage хранит значения в памяти процесса.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStorage создаёт пустое хранилище в памяти.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]string)}
}

// Get возвращает значение по ключу.
func (m *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	return v, ok, nil
}

// Set сохраняет значение по ключу.
func (m *MemoryStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = value
	return nil
}

// Delete удаляет ключ.
func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}
