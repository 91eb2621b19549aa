// Package handler содержит HTTP-обработчики BFF портала клиники.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/clinic-portal/internal/catalog"
	"github.com/mmeshcher/clinic-portal/internal/form"
	"github.com/mmeshcher/clinic-portal/internal/model"
	"github.com/mmeshcher/clinic-portal/internal/preference"
	"github.com/mmeshcher/clinic-portal/internal/session"
)

// LocaleService определяет контракт хранилища языка.
type LocaleService interface {
	Get() model.Locale
	Set(ctx context.Context, v model.Locale) error
	Toggle(ctx context.Context) model.Locale
}

// ThemeService определяет контракт хранилища темы.
type ThemeService interface {
	Get() model.Theme
	Set(ctx context.Context, v model.Theme) error
}

// SessionService определяет контракт хранилища сессии.
type SessionService interface {
	IsAuthenticated() bool
	Session() model.Session
	Error() string
	SendOTP(ctx context.Context, phone string) bool
	VerifyOTP(ctx context.Context, phone, code string) bool
	Logout(ctx context.Context)
	GetUserProfile(ctx context.Context) *model.User
	UpdateUserProfile(ctx context.Context, data model.User) bool
}

// FormService отправляет заявки.
type FormService interface {
	Send(ctx context.Context, fields form.Fields, pageURL string) error
}

// Middleware оборачивает http.Handler.
type Middleware func(http.Handler) http.Handler

// Deps содержит зависимости обработчиков.
type Deps struct {
	Locale  LocaleService
	Theme   ThemeService
	Session SessionService
	Catalog *catalog.Catalog
	Forms   FormService
	Routes  session.Routes

	// Guard закрывает раздел личного кабинета.
	Guard Middleware
	// FormLimit ограничивает частоту отправки заявок.
	FormLimit Middleware

	Logger *zap.Logger
}

// Handler реализует HTTP-обработчики BFF.
type Handler struct {
	locale    LocaleService
	theme     ThemeService
	session   SessionService
	catalog   *catalog.Catalog
	forms     FormService
	routes    session.Routes
	guard     Middleware
	formLimit Middleware
	logger    *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Routes == (session.Routes{}) {
		d.Routes = session.DefaultRoutes()
	}
	passthrough := func(next http.Handler) http.Handler { return next }
	if d.Guard == nil {
		d.Guard = passthrough
	}
	if d.FormLimit == nil {
		d.FormLimit = passthrough
	}

	return &Handler{
		locale:    d.Locale,
		theme:     d.Theme,
		session:   d.Session,
		catalog:   d.Catalog,
		forms:     d.Forms,
		routes:    d.Routes,
		guard:     d.Guard,
		formLimit: d.FormLimit,
		logger:    d.Logger,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	h.writeJSON(w, status, errorResponse{Error: msg})
}

type errorResponse struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}

type preferencesPayload struct {
	Locale model.Locale `json:"locale,omitempty"`
	Theme  model.Theme  `json:"theme,omitempty"`
}

func (h *Handler) preferences() preferencesPayload {
	return preferencesPayload{Locale: h.locale.Get(), Theme: h.theme.Get()}
}

// GetPreferences возвращает язык и тему.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.preferences())
}

// UpdatePreferences меняет язык и (или) тему.
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "")
		return
	}

	if req.Locale != "" {
		l, ok := model.ParseLocale(string(req.Locale))
		if !ok {
			h.writeError(w, http.StatusBadRequest, "unsupported locale")
			return
		}
		req.Locale = l
	}
	if req.Theme != "" && !req.Theme.Valid() {
		h.writeError(w, http.StatusBadRequest, "unsupported theme")
		return
	}

	if req.Locale != "" {
		if err := h.locale.Set(r.Context(), req.Locale); err != nil {
			h.preferenceError(w, err)
			return
		}
	}
	if req.Theme != "" {
		if err := h.theme.Set(r.Context(), req.Theme); err != nil {
			h.preferenceError(w, err)
			return
		}
	}

	h.writeJSON(w, http.StatusOK, h.preferences())
}

func (h *Handler) preferenceError(w http.ResponseWriter, err error) {
	if errors.Is(err, preference.ErrInvalidValue) {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error("update preferences error", zap.Error(err))
	h.writeError(w, http.StatusInternalServerError, "")
}

// ToggleLocale переключает язык ru/uz.
func (h *Handler) ToggleLocale(w http.ResponseWriter, r *http.Request) {
	h.locale.Toggle(r.Context())
	h.writeJSON(w, http.StatusOK, h.preferences())
}

type sendOTPRequest struct {
	Phone string `json:"phone"`
}

type authResponse struct {
	OK       bool        `json:"ok"`
	User     *model.User `json:"user,omitempty"`
	Redirect string      `json:"redirect,omitempty"`
}

// SendOTP запрашивает одноразовый код.
func (h *Handler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "")
		return
	}

	if !h.session.SendOTP(r.Context(), req.Phone) {
		h.writeError(w, http.StatusUnprocessableEntity, h.session.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, authResponse{OK: true})
}

type verifyOTPRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// VerifyOTP подтверждает код и открывает сессию.
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "")
		return
	}

	if !h.session.VerifyOTP(r.Context(), req.Phone, req.Code) {
		h.writeError(w, http.StatusUnauthorized, h.session.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, authResponse{
		OK:       true,
		User:     h.session.Session().User,
		Redirect: redirectFrom(r.Context()),
	})
}

// Logout закрывает сессию.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.session.Logout(r.Context())

	h.writeJSON(w, http.StatusOK, authResponse{
		OK:       true,
		Redirect: redirectFrom(r.Context()),
	})
}

// GetProfile возвращает профиль пациента.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	u := h.session.GetUserProfile(r.Context())
	if u == nil {
		h.profileUnavailable(w)
		return
	}

	h.writeJSON(w, http.StatusOK, u)
}

// UpdateProfile сохраняет изменения профиля.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req model.User
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "")
		return
	}

	if !h.session.UpdateUserProfile(r.Context(), req) {
		h.profileUnavailable(w)
		return
	}

	h.writeJSON(w, http.StatusOK, h.session.Session().User)
}

// profileUnavailable отвечает 401 с переходом на вход, если сессия потеряна, иначе 502.
func (h *Handler) profileUnavailable(w http.ResponseWriter) {
	if !h.session.IsAuthenticated() {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{
			Error:    http.StatusText(http.StatusUnauthorized),
			Redirect: h.routes.Login,
		})
		return
	}
	h.writeError(w, http.StatusBadGateway, "")
}
