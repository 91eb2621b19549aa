// Package preference реализует хранилища пользовательских настроек (язык, тема)
// с сохранением в долговременное клиентское хранилище.
package preference

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/clinic-portal/internal/model"
	"github.com/mmeshcher/clinic-portal/internal/storage"
)

// ErrInvalidValue возвращается при попытке установить недопустимое значение.
var ErrInvalidValue = errors.New("invalid preference value")

// Store хранит одно перечислимое значение и сохраняет его при изменении.
type Store[T ~string] struct {
	mu        sync.RWMutex
	key       string
	value     T
	def       T
	allowed   []T
	storage   storage.Storage
	logger    *zap.Logger
	listeners []func(T)
}

// NewStore создаёт хранилище настройки с ключом key и значением по умолчанию def.
func NewStore[T ~string](st storage.Storage, logger *zap.Logger, key string, def T, allowed []T) *Store[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store[T]{
		key:     key,
		value:   def,
		def:     def,
		allowed: allowed,
		storage: st,
		logger:  logger,
	}
}

// Init восстанавливает значение из хранилища. Любая ошибка приводит к значению по умолчанию.
func (s *Store[T]) Init(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = s.def

	raw, ok, err := s.storage.Get(ctx, s.key)
	if err != nil {
		s.logger.Warn("read preference error", zap.String("key", s.key), zap.Error(err))
		return
	}
	if !ok {
		return
	}

	v, ok := s.decode(raw)
	if !ok {
		s.logger.Warn("malformed preference, using default", zap.String("key", s.key))
		return
	}
	s.value = v
}

// decode принимает JSON-строку или значение без кавычек, сохранённое старыми версиями.
func (s *Store[T]) decode(raw string) (T, bool) {
	var str string
	if err := json.Unmarshal([]byte(raw), &str); err != nil {
		str = strings.TrimSpace(raw)
		if strings.ContainsAny(str, `"{}[]`) {
			return s.def, false
		}
	}

	v := T(str)
	if !s.valid(v) {
		return s.def, false
	}
	return v, true
}

// Get возвращает текущее значение.
func (s *Store[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.value
}

// Set устанавливает значение и сохраняет его. Ошибка записи не возвращается, только логируется.
func (s *Store[T]) Set(ctx context.Context, v T) error {
	if !s.valid(v) {
		return ErrInvalidValue
	}

	s.mu.Lock()
	changed := s.value != v
	s.value = v
	s.persist(ctx, v)
	listeners := append([]func(T){}, s.listeners...)
	s.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(v)
		}
	}
	return nil
}

// Subscribe регистрирует обработчик изменения значения.
func (s *Store[T]) Subscribe(fn func(T)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, fn)
}

func (s *Store[T]) persist(ctx context.Context, v T) {
	raw, err := json.Marshal(string(v))
	if err != nil {
		return
	}
	if err := s.storage.Set(ctx, s.key, string(raw)); err != nil {
		s.logger.Warn("persist preference error", zap.String("key", s.key), zap.Error(err))
	}
}

func (s *Store[T]) valid(v T) bool {
	for _, a := range s.allowed {
		if a == v {
			return true
		}
	}
	return false
}

// LocaleStore хранит язык интерфейса.
type LocaleStore struct {
	*Store[model.Locale]
}

// NewLocaleStore создаёт хранилище языка с языком по умолчанию ru.
func NewLocaleStore(st storage.Storage, logger *zap.Logger) *LocaleStore {
	return &LocaleStore{
		Store: NewStore(st, logger, storage.KeyLocale, model.DefaultLocale, model.Locales),
	}
}

// Locale возвращает текущий язык.
func (l *LocaleStore) Locale() model.Locale {
	return l.Get()
}

// Toggle переключает язык между ru и uz и возвращает новое значение.
func (l *LocaleStore) Toggle(ctx context.Context) model.Locale {
	next := model.LocaleRu
	if l.Get() == model.LocaleRu {
		next = model.LocaleUz
	}
	_ = l.Set(ctx, next)
	return next
}

// ThemeStore хранит тему оформления.
type ThemeStore struct {
	*Store[model.Theme]
}

// NewThemeStore создаёт хранилище темы со светлой темой по умолчанию.
func NewThemeStore(st storage.Storage, logger *zap.Logger) *ThemeStore {
	return &ThemeStore{
		Store: NewStore(st, logger, storage.KeyTheme, model.DefaultTheme, model.Themes),
	}
}
