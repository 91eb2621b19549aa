// Package session реализует хранилище сессии пациента: вход по одноразовому коду,
// профиль и выход.
package session

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/clinic-portal/internal/apiclient"
	"github.com/mmeshcher/clinic-portal/internal/model"
	"github.com/mmeshcher/clinic-portal/internal/storage"
)

// Пути API, используемые хранилищем сессии.
const (
	PathSendOTP   = "/auth/send-otp/"
	PathVerifyOTP = "/auth/verify-otp/"
	PathUser      = "/auth/user/"
	PathLogout    = "/auth/logout/"
)

// API описывает подмножество HTTP-клиента, нужное хранилищу сессии.
type API interface {
	Get(ctx context.Context, path string, out any, opts ...apiclient.RequestOption) error
	Post(ctx context.Context, path string, body, out any, opts ...apiclient.RequestOption) error
	Put(ctx context.Context, path string, body, out any, opts ...apiclient.RequestOption) error
}

// Navigator выполняет переход на клиентский маршрут.
type Navigator interface {
	Navigate(ctx context.Context, route string)
}

// NavigatorFunc адаптирует функцию к интерфейсу Navigator.
type NavigatorFunc func(ctx context.Context, route string)

// Navigate вызывает f(ctx, route).
func (f NavigatorFunc) Navigate(ctx context.Context, route string) {
	f(ctx, route)
}

// Routes содержит маршруты для перенаправлений.
type Routes struct {
	Login   string
	Account string
}

// DefaultRoutes возвращает маршруты по умолчанию.
func DefaultRoutes() Routes {
	return Routes{Login: "/login", Account: "/account"}
}

// Store хранит сессию пациента. Все изменяющие операции выполняются последовательно.
type Store struct {
	api     API
	storage storage.Storage
	locale  apiclient.LocaleSource
	nav     Navigator
	routes  Routes
	logger  *zap.Logger
	now     func() time.Time

	// opMu упорядочивает вход, выход и обновление профиля.
	opMu sync.Mutex

	mu      sync.RWMutex
	session model.Session
	errMsg  string
}

// NewStore создаёт хранилище сессии.
func NewStore(api API, st storage.Storage, locale apiclient.LocaleSource, nav Navigator, routes Routes, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if nav == nil {
		nav = NavigatorFunc(func(context.Context, string) {})
	}
	return &Store{
		api:     api,
		storage: st,
		locale:  locale,
		nav:     nav,
		routes:  routes,
		logger:  logger,
		now:     time.Now,
	}
}

// Init восстанавливает сессию из хранилища. Повреждённые поля считаются отсутствующими.
func (s *Store) Init(ctx context.Context) {
	var sess model.Session

	sess.Token = s.read(ctx, storage.KeyAuthToken)
	sess.TokenType = s.read(ctx, storage.KeyTokenType)

	if raw := s.read(ctx, storage.KeyUser); raw != "" {
		var u model.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			s.logger.Warn("malformed cached user, ignoring", zap.Error(err))
		} else {
			sess.User = &u
		}
	}

	if raw := s.read(ctx, storage.KeyTokenExpiresAt); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			sess.ExpiresAt = &t
		} else {
			s.logger.Warn("malformed token expiry, ignoring", zap.Error(err))
		}
	}

	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
}

func (s *Store) read(ctx context.Context, key string) string {
	v, ok, err := s.storage.Get(ctx, key)
	if err != nil {
		s.logger.Warn("read session key error", zap.String("key", key), zap.Error(err))
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

// IsAuthenticated проверяет наличие непросроченного токена. Сетевых вызовов нет.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.session.Authenticated(s.now())
}

// Credentials реализует apiclient.TokenSource.
func (s *Store) Credentials() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.session.TokenType, s.session.Token
}

// Session возвращает копию текущей сессии.
func (s *Store) Session() model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess := s.session
	if sess.User != nil {
		u := *sess.User
		sess.User = &u
	}
	return sess
}

// Error возвращает последнее локализованное сообщение об ошибке входа.
func (s *Store) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.errMsg
}

func (s *Store) setError(key messageKey) {
	locale := model.DefaultLocale
	if s.locale != nil {
		locale = s.locale.Locale()
	}

	s.mu.Lock()
	s.errMsg = localize(key, locale)
	s.mu.Unlock()
}

func (s *Store) clearError() {
	s.mu.Lock()
	s.errMsg = ""
	s.mu.Unlock()
}

type sendOTPRequest struct {
	Phone string `json:"phone"`
}

// SendOTP запрашивает отправку одноразового кода на телефон.
func (s *Store) SendOTP(ctx context.Context, phone string) bool {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		s.setError(msgPhoneRequired)
		return false
	}

	if err := s.api.Post(ctx, PathSendOTP, sendOTPRequest{Phone: phone}, nil); err != nil {
		s.logger.Error("send otp error", zap.Error(err))
		s.setError(msgSendFailed)
		return false
	}

	s.clearError()
	return true
}

type verifyOTPRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type verifyOTPResponse struct {
	AccessToken string      `json:"access_token"`
	Token       string      `json:"token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int64       `json:"expires_in"`
	User        *model.User `json:"user"`
}

// VerifyOTP проверяет код, сохраняет сессию и переходит в личный кабинет.
// При ошибке сохранённые поля сессии не меняются.
func (s *Store) VerifyOTP(ctx context.Context, phone, code string) bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	var resp verifyOTPResponse
	err := s.api.Post(ctx, PathVerifyOTP, verifyOTPRequest{
		Phone: strings.TrimSpace(phone),
		Code:  strings.TrimSpace(code),
	}, &resp)
	if err != nil {
		s.logger.Error("verify otp error", zap.Error(err))
		if apiclient.IsStatus(err, http.StatusBadRequest) ||
			apiclient.IsStatus(err, http.StatusUnauthorized) ||
			apiclient.IsStatus(err, http.StatusUnprocessableEntity) {
			s.setError(msgInvalidCode)
		} else {
			s.setError(msgVerifyFailed)
		}
		return false
	}

	token := resp.AccessToken
	if token == "" {
		token = resp.Token
	}
	if token == "" {
		s.logger.Error("verify otp error: empty token in response")
		s.setError(msgVerifyFailed)
		return false
	}

	tokenType := resp.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	sess := model.Session{
		Token:     token,
		TokenType: tokenType,
		User:      resp.User,
		ExpiresAt: s.expiry(token, resp.ExpiresIn),
	}

	s.persist(ctx, sess)

	s.mu.Lock()
	s.session = sess
	s.errMsg = ""
	s.mu.Unlock()

	s.nav.Navigate(ctx, s.routes.Account)
	return true
}

// expiry берёт срок из expires_in, иначе из claim exp JWT-токена. Непрозрачный токен срока не имеет.
func (s *Store) expiry(token string, expiresIn int64) *time.Time {
	if expiresIn > 0 {
		t := s.now().Add(time.Duration(expiresIn) * time.Second).UTC()
		return &t
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	t := claims.ExpiresAt.Time.UTC()
	return &t
}

func (s *Store) persist(ctx context.Context, sess model.Session) {
	write := func(key, value string) {
		if err := s.storage.Set(ctx, key, value); err != nil {
			s.logger.Warn("persist session key error", zap.String("key", key), zap.Error(err))
		}
	}
	remove := func(key string) {
		if err := s.storage.Delete(ctx, key); err != nil {
			s.logger.Warn("delete session key error", zap.String("key", key), zap.Error(err))
		}
	}

	write(storage.KeyTokenType, sess.TokenType)

	if sess.User != nil {
		raw, err := json.Marshal(sess.User)
		if err == nil {
			write(storage.KeyUser, string(raw))
		}
	} else {
		remove(storage.KeyUser)
	}

	if sess.ExpiresAt != nil {
		write(storage.KeyTokenExpiresAt, sess.ExpiresAt.Format(time.RFC3339))
	} else {
		remove(storage.KeyTokenExpiresAt)
	}

	write(storage.KeyAuthToken, sess.Token)
}

// GetUserProfile запрашивает профиль. Без токена запрос не выполняется.
// Любая ошибка логируется и приводит к nil. Ответ, пришедший после смены
// сессии (повторный вход или выход), к новой сессии не применяется.
func (s *Store) GetUserProfile(ctx context.Context) *model.User {
	if !s.IsAuthenticated() {
		return nil
	}
	_, token := s.Credentials()

	var u model.User
	if err := s.api.Get(ctx, PathUser, &u, apiclient.WithAuth()); err != nil {
		s.logger.Error("get user profile error", zap.Error(err))
		if apiclient.IsStatus(err, http.StatusUnauthorized) {
			s.opMu.Lock()
			if _, current := s.Credentials(); current == token {
				s.clear(ctx)
			} else {
				s.logger.Info("stale unauthorized response ignored")
			}
			s.opMu.Unlock()
		}
		return nil
	}

	s.opMu.Lock()
	cached := s.cacheUser(ctx, &u, token)
	s.opMu.Unlock()
	if !cached {
		return nil
	}

	res := u
	return &res
}

// UpdateUserProfile отправляет изменения профиля.
func (s *Store) UpdateUserProfile(ctx context.Context, data model.User) bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.IsAuthenticated() {
		return false
	}
	_, token := s.Credentials()

	var updated model.User
	if err := s.api.Put(ctx, PathUser, data, &updated, apiclient.WithAuth()); err != nil {
		s.logger.Error("update user profile error", zap.Error(err))
		return false
	}

	if updated == (model.User{}) {
		updated = data
	}
	return s.cacheUser(ctx, &updated, token)
}

// cacheUser сохраняет профиль, только если активна сессия с токеном token.
func (s *Store) cacheUser(ctx context.Context, u *model.User, token string) bool {
	raw, err := json.Marshal(u)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.Token == "" || s.session.Token != token {
		return false
	}
	cp := *u
	s.session.User = &cp

	if err := s.storage.Set(ctx, storage.KeyUser, string(raw)); err != nil {
		s.logger.Warn("persist session key error", zap.String("key", storage.KeyUser), zap.Error(err))
	}
	return true
}

// Logout уведомляет API о выходе (ошибка игнорируется), очищает сессию и переходит на страницу входа.
func (s *Store) Logout(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if _, token := s.Credentials(); token != "" {
		if err := s.api.Post(ctx, PathLogout, nil, nil, apiclient.WithAuth()); err != nil {
			s.logger.Warn("logout request error", zap.Error(err))
		}
	}

	s.clear(ctx)
	s.nav.Navigate(ctx, s.routes.Login)
}

// clear удаляет все поля сессии. Вызывается под opMu.
func (s *Store) clear(ctx context.Context) {
	for _, key := range []string{
		storage.KeyAuthToken,
		storage.KeyTokenType,
		storage.KeyUser,
		storage.KeyTokenExpiresAt,
	} {
		if err := s.storage.Delete(ctx, key); err != nil {
			s.logger.Warn("delete session key error", zap.String("key", key), zap.Error(err))
		}
	}

	s.mu.Lock()
	s.session = model.Session{}
	s.mu.Unlock()
}
