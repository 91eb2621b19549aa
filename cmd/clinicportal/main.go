// Package main запускает BFF портала клиники.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/clinic-portal/internal/apiclient"
	"github.com/mmeshcher/clinic-portal/internal/cache"
	"github.com/mmeshcher/clinic-portal/internal/catalog"
	"github.com/mmeshcher/clinic-portal/internal/config"
	"github.com/mmeshcher/clinic-portal/internal/form"
	"github.com/mmeshcher/clinic-portal/internal/guard"
	"github.com/mmeshcher/clinic-portal/internal/handler"
	"github.com/mmeshcher/clinic-portal/internal/middleware"
	"github.com/mmeshcher/clinic-portal/internal/preference"
	"github.com/mmeshcher/clinic-portal/internal/resource"
	"github.com/mmeshcher/clinic-portal/internal/session"
	"github.com/mmeshcher/clinic-portal/internal/storage"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var redisStorage *storage.RedisStorage
	if cfg.RedisAddr != "" {
		redisStorage, err = storage.NewRedisStorage(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}
		defer redisStorage.Close()
	}

	var st storage.Storage
	switch {
	case cfg.DatabaseURI != "":
		pg, err := storage.NewPostgresStorage(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		defer pg.Close()
		st = pg
	case redisStorage != nil:
		st = redisStorage
	default:
		fs, err := storage.NewFileStorage(cfg.StoragePath)
		if err != nil {
			sugar.Fatalw("storage initialization error", "error", err.Error(), "path", cfg.StoragePath)
		}
		st = fs
	}

	locale := preference.NewLocaleStore(st, logger)
	locale.Init(ctx)
	theme := preference.NewThemeStore(st, logger)
	theme.Init(ctx)

	client := apiclient.NewClient(cfg.APIBaseURL, cfg.APITimeout, locale)

	routes := session.Routes{Login: cfg.LoginRoute, Account: cfg.AccountRoute}
	nav := handler.Navigator(logger)

	sess := session.NewStore(client, st, locale, nav, routes, logger)
	sess.Init(ctx)
	client.SetTokenSource(sess)

	var pageCache resource.Cache
	if redisStorage != nil {
		pageCache = cache.New(redisStorage.Client())
	}

	cat := catalog.New(client, catalog.Options{
		Locale:   locale,
		Cache:    pageCache,
		CacheTTL: cfg.CacheTTL,
		Logger:   logger,
	})
	defer cat.Close()
	locale.Subscribe(cat.OnLocaleChange)

	forms := form.NewPipeline(client, logger)
	g := guard.New(sess, nav, routes.Login, cfg.GuardInterval, logger)
	limiter := middleware.NewRateLimiter(cfg.FormRateLimit, cfg.FormBurst, logger)

	h := handler.NewHandler(handler.Deps{
		Locale:    locale,
		Theme:     theme,
		Session:   sess,
		Catalog:   cat,
		Forms:     forms,
		Routes:    routes,
		Guard:     g.Middleware,
		FormLimit: limiter.Handler,
		Logger:    logger,
	})

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: h.SetupRouter(),
	}

	eg, ctx := errgroup.WithContext(ctx)

	// Фоновая перепроверка сессии
	eg.Go(func() error {
		g.Watch(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	eg.Go(func() error {
		sugar.Infow("starting clinic portal", "addr", cfg.RunAddress, "api", cfg.APIBaseURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	eg.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := eg.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
