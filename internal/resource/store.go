// Package resource реализует обобщённое хранилище постраничной удалённой коллекции
// с состояниями загрузки, ошибкой и производными выборками.
package resource

import (
	"context"
	"fmt"
	"maps"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/clinic-portal/internal/apiclient"
	"github.com/mmeshcher/clinic-portal/internal/model"
)

// Query описывает параметры запроса одной страницы.
type Query struct {
	Page    int
	Filters map[string]string
	Locale  model.Locale
}

// Values возвращает параметры строки запроса.
func (q Query) Values() url.Values {
	v := url.Values{}
	for k, val := range q.Filters {
		if val != "" {
			v.Set(k, val)
		}
	}
	if q.Page > 0 {
		v.Set("page", fmt.Sprint(q.Page))
	}
	return v
}

// Fetcher загружает одну страницу коллекции.
type Fetcher[T any] func(ctx context.Context, q Query) (model.Page[T], error)

// Cache хранит загруженные страницы.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Config содержит параметры хранилища коллекции.
type Config[T any] struct {
	Name    string
	Fetcher Fetcher[T]
	Locale  apiclient.LocaleSource
	Logger  *zap.Logger

	// Key задаёт идентичность элемента для удаления дублей при догрузке. Необязателен.
	Key func(T) string

	Cache    Cache
	CacheTTL time.Duration
}

type loadMode int

const (
	modeReplace loadMode = iota
	modeAppend
)

// Store зеркалирует постраничную коллекцию API в состоянии клиента.
// Каждый запуск загрузки получает номер поколения; ответы старых поколений отбрасываются.
type Store[T any] struct {
	cfg    Config[T]
	logger *zap.Logger

	rootCtx context.Context
	stop    context.CancelFunc
	bg      sync.WaitGroup

	mu       sync.Mutex
	state    model.CollectionState[T]
	page     int
	filters  map[string]string
	gen      uint64
	inflight context.CancelFunc
	used     bool
	closed   bool

	// cached содержит ключи страниц, записанных этим хранилищем в Cache.
	cached map[string]struct{}
}

// NewStore создаёт хранилище в состоянии idle.
func NewStore[T any](cfg Config[T]) *Store[T] {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Store[T]{
		cfg:     cfg,
		logger:  logger.With(zap.String("resource", cfg.Name)),
		rootCtx: ctx,
		stop:    cancel,
		state:   idleState[T](),
		page:    1,
		cached:  make(map[string]struct{}),
	}
}

func idleState[T any]() model.CollectionState[T] {
	return model.CollectionState[T]{
		Items:  []T{},
		Status: model.StatusIdle,
	}
}

// Name возвращает имя коллекции.
func (s *Store[T]) Name() string {
	return s.cfg.Name
}

// Close отменяет фоновые загрузки и дожидается их завершения.
func (s *Store[T]) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.stop()
	s.bg.Wait()
}

// Fetch загружает текущую страницу с заменой списка.
func (s *Store[T]) Fetch(ctx context.Context) model.CollectionState[T] {
	return s.load(ctx, modeReplace)
}

// LoadMore догружает следующую страницу в конец списка.
// Если страниц больше нет, состояние не меняется.
func (s *Store[T]) LoadMore(ctx context.Context) model.CollectionState[T] {
	return s.load(ctx, modeAppend)
}

func (s *Store[T]) load(ctx context.Context, mode loadMode) model.CollectionState[T] {
	s.mu.Lock()

	page := s.page
	if mode == modeAppend {
		if s.state.CurrentPage == 0 {
			mode = modeReplace
		} else if s.state.CurrentPage >= s.state.TotalPages {
			snap := s.snapshotLocked()
			s.mu.Unlock()
			return snap
		} else {
			page = s.state.CurrentPage + 1
		}
	}

	if s.inflight != nil {
		s.inflight()
	}
	s.gen++
	gen := s.gen

	reqCtx, cancel := context.WithCancel(ctx)
	s.inflight = cancel
	s.used = true
	s.state.Loading = true
	s.state.Status = model.StatusLoading

	q := Query{
		Page:    page,
		Filters: maps.Clone(s.filters),
		Locale:  s.currentLocale(),
	}
	s.mu.Unlock()

	result, err := s.get(reqCtx, q)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		s.logger.Debug("discard stale response", zap.Uint64("gen", gen), zap.Int("page", page))
		return s.snapshotLocked()
	}

	s.inflight = nil
	s.state.Loading = false

	if err != nil {
		s.logger.Error("fetch collection error", zap.Error(err), zap.Int("page", page))
		s.state.Error = err.Error()
		s.state.Status = model.StatusErrored
		return s.snapshotLocked()
	}

	s.apply(mode, page, result)
	return s.snapshotLocked()
}

func (s *Store[T]) apply(mode loadMode, requested int, result model.Page[T]) {
	switch mode {
	case modeAppend:
		s.state.Items = s.merge(s.state.Items, result.Items)
	default:
		s.state.Items = append([]T{}, result.Items...)
	}

	current := result.CurrentPage
	if current <= 0 {
		current = requested
	}
	total := result.TotalPages
	if total < current {
		total = current
	}

	s.state.CurrentPage = current
	s.state.TotalPages = total
	s.page = current
	s.state.Error = ""
	s.state.Status = model.StatusLoaded
}

func (s *Store[T]) merge(existing, incoming []T) []T {
	out := append([]T{}, existing...)
	if s.cfg.Key == nil {
		return append(out, incoming...)
	}

	seen := make(map[string]struct{}, len(existing))
	for _, it := range existing {
		seen[s.cfg.Key(it)] = struct{}{}
	}
	for _, it := range incoming {
		k := s.cfg.Key(it)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

func (s *Store[T]) get(ctx context.Context, q Query) (model.Page[T], error) {
	key := s.cacheKey(q)

	if s.cfg.Cache != nil {
		var cached model.Page[T]
		found, err := s.cfg.Cache.Get(ctx, key, &cached)
		if err != nil {
			s.logger.Warn("page cache read error", zap.String("key", key), zap.Error(err))
		} else if found {
			return cached, nil
		}
	}

	result, err := s.cfg.Fetcher(ctx, q)
	if err != nil {
		return model.Page[T]{}, err
	}

	if s.cfg.Cache != nil {
		if err := s.cfg.Cache.Set(ctx, key, result, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("page cache write error", zap.String("key", key), zap.Error(err))
		} else {
			s.mu.Lock()
			s.cached[key] = struct{}{}
			s.mu.Unlock()
		}
	}

	return result, nil
}

func (s *Store[T]) cacheKey(q Query) string {
	filters := url.Values{}
	for k, v := range q.Filters {
		filters.Set(k, v)
	}
	return fmt.Sprintf("%s:%s:%d:%s", s.cfg.Name, q.Locale, q.Page, filters.Encode())
}

func (s *Store[T]) currentLocale() model.Locale {
	if s.cfg.Locale == nil {
		return model.DefaultLocale
	}
	return s.cfg.Locale.Locale()
}

// SetPage задаёт страницу для следующего Fetch.
func (s *Store[T]) SetPage(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n < 1 {
		n = 1
	}
	if s.state.TotalPages > 0 && n > s.state.TotalPages {
		n = s.state.TotalPages
	}
	s.page = n
}

// SetFilters заменяет фильтры. Изменение фильтров сбрасывает список и страницу.
func (s *Store[T]) SetFilters(filters map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maps.Equal(s.filters, filters) {
		return
	}

	s.invalidateLocked()
	s.filters = maps.Clone(filters)
	s.state = idleState[T]()
	s.page = 1
}

// Filters возвращает копию текущих фильтров.
func (s *Store[T]) Filters() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return maps.Clone(s.filters)
}

// Reset возвращает хранилище в idle: пустой список, без ошибки, без фильтров.
// Страницы, записанные хранилищем в кэш, удаляются, и следующая загрузка идёт в API.
func (s *Store[T]) Reset() {
	s.mu.Lock()
	s.invalidateLocked()
	s.state = idleState[T]()
	s.page = 1
	s.filters = nil
	s.used = false

	keys := make([]string, 0, len(s.cached))
	for k := range s.cached {
		keys = append(keys, k)
	}
	clear(s.cached)
	s.mu.Unlock()

	if s.cfg.Cache == nil {
		return
	}
	for _, k := range keys {
		if err := s.cfg.Cache.Invalidate(s.rootCtx, k); err != nil {
			s.logger.Warn("page cache invalidate error", zap.String("key", k), zap.Error(err))
		}
	}
}

func (s *Store[T]) invalidateLocked() {
	s.gen++
	if s.inflight != nil {
		s.inflight()
		s.inflight = nil
	}
}

// OnLocaleChange сбрасывает данные, загруженные на прежнем языке, и перезагружает коллекцию в фоне.
// Хранилище, которое ещё не использовалось или уже закрыто, не загружается.
func (s *Store[T]) OnLocaleChange(_ model.Locale) {
	s.mu.Lock()
	if !s.used || s.closed {
		s.mu.Unlock()
		return
	}

	s.invalidateLocked()
	s.state = idleState[T]()
	s.page = 1
	s.bg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.bg.Done()
		s.Fetch(s.rootCtx)
	}()
}

// State возвращает снимок состояния.
func (s *Store[T]) State() model.CollectionState[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}

func (s *Store[T]) snapshotLocked() model.CollectionState[T] {
	snap := s.state
	snap.Items = append([]T{}, s.state.Items...)
	return snap
}
