package handler

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/clinic-portal/internal/session"
)

type redirectKey struct{}

type redirect struct {
	mu    sync.Mutex
	route string
}

func (r *redirect) set(route string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.route = route
}

func (r *redirect) get() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.route
}

// bindNavigation кладёт в контекст запроса приёмник переходов, которые
// запрашивают хранилища во время обработки.
func bindNavigation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), redirectKey{}, &redirect{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func redirectFrom(ctx context.Context) string {
	if rec, ok := ctx.Value(redirectKey{}).(*redirect); ok {
		return rec.get()
	}
	return ""
}

// Navigator возвращает навигатор для хранилищ. Внутри HTTP-запроса переход
// попадает в ответ полем redirect, вне запроса только пишется в журнал.
func Navigator(logger *zap.Logger) session.Navigator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return session.NavigatorFunc(func(ctx context.Context, route string) {
		if rec, ok := ctx.Value(redirectKey{}).(*redirect); ok {
			rec.set(route)
			return
		}
		logger.Info("navigate outside request", zap.String("route", route))
	})
}
