// Package config содержит логику чтения конфигурации портала клиники.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Значения по умолчанию.
const (
	DefaultRunAddress    = "localhost:8080"
	DefaultStoragePath   = "clinicportal.json"
	DefaultAPITimeout    = 10 * time.Second
	DefaultGuardInterval = time.Minute
	DefaultCacheTTL      = 5 * time.Minute
	DefaultLoginRoute    = "/login"
	DefaultAccountRoute  = "/account"
	DefaultFormRateLimit = 1.0
	DefaultFormBurst     = 5
)

// Config содержит параметры конфигурации портала.
type Config struct {
	RunAddress    string        `env:"RUN_ADDRESS"`
	APIBaseURL    string        `env:"API_BASE_URL"`
	StoragePath   string        `env:"STORAGE_PATH"`
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB"`
	DatabaseURI   string        `env:"DATABASE_URI"`
	APITimeout    time.Duration `env:"API_TIMEOUT" envDefault:"10s"`
	GuardInterval time.Duration `env:"GUARD_INTERVAL" envDefault:"1m"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	LoginRoute    string        `env:"LOGIN_ROUTE" envDefault:"/login"`
	AccountRoute  string        `env:"ACCOUNT_ROUTE" envDefault:"/account"`
	FormRateLimit float64       `env:"FORM_RATE_LIMIT" envDefault:"1"`
	FormBurst     int           `env:"FORM_BURST" envDefault:"5"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envAPIBaseURL := cfg.APIBaseURL
	envStoragePath := cfg.StoragePath
	envRedisAddr := cfg.RedisAddr
	envDatabaseURI := cfg.DatabaseURI

	flag.StringVar(&cfg.RunAddress, "a", DefaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.APIBaseURL, "u", "", "clinic API base URL")
	flag.StringVar(&cfg.StoragePath, "s", DefaultStoragePath, "path to client storage file")
	flag.StringVar(&cfg.RedisAddr, "r", "", "redis address")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envAPIBaseURL != "" {
		cfg.APIBaseURL = envAPIBaseURL
	}
	if envStoragePath != "" {
		cfg.StoragePath = envStoragePath
	}
	if envRedisAddr != "" {
		cfg.RedisAddr = envRedisAddr
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = DefaultRunAddress
	}
	if cfg.StoragePath == "" {
		cfg.StoragePath = DefaultStoragePath
	}
	if cfg.APITimeout <= 0 {
		cfg.APITimeout = DefaultAPITimeout
	}
	if cfg.GuardInterval <= 0 {
		cfg.GuardInterval = DefaultGuardInterval
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.LoginRoute == "" {
		cfg.LoginRoute = DefaultLoginRoute
	}
	if cfg.AccountRoute == "" {
		cfg.AccountRoute = DefaultAccountRoute
	}
	if cfg.FormRateLimit <= 0 {
		cfg.FormRateLimit = DefaultFormRateLimit
	}
	if cfg.FormBurst <= 0 {
		cfg.FormBurst = DefaultFormBurst
	}

	return cfg, nil
}
