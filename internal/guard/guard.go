// Package guard закрывает раздел личного кабинета от неавторизованных пациентов.
package guard

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/clinic-portal/internal/session"
)

const defaultInterval = time.Minute

// Checker сообщает, авторизован ли пациент.
type Checker interface {
	IsAuthenticated() bool
}

// Guard проверяет авторизацию при входе в защищённый раздел и периодически после него.
type Guard struct {
	checker  Checker
	nav      session.Navigator
	login    string
	interval time.Duration
	logger   *zap.Logger
}

// New создаёт Guard. Пустой маршрут входа заменяется маршрутом по умолчанию.
func New(checker Checker, nav session.Navigator, login string, interval time.Duration, logger *zap.Logger) *Guard {
	if login == "" {
		login = session.DefaultRoutes().Login
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if nav == nil {
		nav = session.NavigatorFunc(func(context.Context, string) {})
	}
	return &Guard{
		checker:  checker,
		nav:      nav,
		login:    login,
		interval: interval,
		logger:   logger,
	}
}

// Middleware пропускает запрос только авторизованному пациенту. Иначе браузер
// перенаправляется на страницу входа, а JSON-клиент получает 401 с адресом перехода.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.checker.IsAuthenticated() {
			next.ServeHTTP(w, r)
			return
		}

		if wantsJSON(r) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"redirect": g.login})
			return
		}

		http.Redirect(w, r, g.login, http.StatusSeeOther)
	})
}

// Watch перепроверяет авторизацию каждые interval до отмены ctx. При потере
// авторизации переход на страницу входа выполняется один раз.
func (g *Guard) Watch(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	authed := g.checker.IsAuthenticated()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := g.checker.IsAuthenticated()
			if authed && !now {
				g.logger.Info("session lost, redirecting to login", zap.String("route", g.login))
				g.nav.Navigate(ctx, g.login)
			}
			authed = now
		}
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
