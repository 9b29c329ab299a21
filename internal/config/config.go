// Package config содержит логику чтения конфигурации бота.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator"

	"github.com/mmeshcher/orderbot/internal/pricing"
	"github.com/mmeshcher/orderbot/internal/ratesource"
)

// Config содержит параметры конфигурации бота.
type Config struct {
	RunAddress    string `env:"RUN_ADDRESS" validate:"required"`
	DatabaseURI   string `env:"DATABASE_URI"`
	RateSourceURL string `env:"RATE_SOURCE_URL" validate:"required"`

	RateCurrency        string        `env:"RATE_CURRENCY" envDefault:"CNY" validate:"len=3"`
	RateRefreshInterval time.Duration `env:"RATE_REFRESH_INTERVAL" envDefault:"1m" validate:"gt=0"`
	RateRetryDelay      time.Duration `env:"RATE_RETRY_DELAY" envDefault:"5s" validate:"gt=0"`

	BotToken       string `env:"BOT_TOKEN" validate:"required"`
	BotAPIURL      string `env:"BOT_API_URL" envDefault:"https://api.telegram.org" validate:"required"`
	BotUsername    string `env:"BOT_USERNAME"`
	BotPolling     bool   `env:"BOT_POLLING" envDefault:"true"`
	WebhookSecret  string `env:"WEBHOOK_SECRET"`
	OperatorChatID int64  `env:"OPERATOR_CHAT_ID" validate:"required"`
	ManagerURL     string `env:"MANAGER_URL"`
	LinkPhotoURL   string `env:"LINK_PHOTO_URL"`
	PricePhotoURL  string `env:"PRICE_PHOTO_URL"`
	SendRateLimit  int    `env:"SEND_RATE_LIMIT" envDefault:"25" validate:"gte=0"`

	AdminIDs     []int64 `env:"ADMIN_IDS" envSeparator:","`
	RedisAddress string  `env:"REDIS_ADDRESS"`
	LogLevel     string  `env:"LOG_LEVEL" envDefault:"info"`

	PriceMarkup        float64 `env:"PRICE_MARKUP" envDefault:"1.05" validate:"gt=0"`
	PriceServiceMarkup float64 `env:"PRICE_SERVICE_MARKUP" envDefault:"1.05" validate:"gt=0"`
	PriceSurcharge     float64 `env:"PRICE_SURCHARGE" envDefault:"1000" validate:"gte=0"`
	BonusRate          float64 `env:"BONUS_RATE" envDefault:"0.05" validate:"gte=0"`
	BonusShare         float64 `env:"BONUS_SHARE" envDefault:"0.2" validate:"gte=0,lte=1"`
}

// Pricing возвращает параметры расчёта цен.
func (c *Config) Pricing() pricing.Config {
	return pricing.Config{
		Markup:        c.PriceMarkup,
		ServiceMarkup: c.PriceServiceMarkup,
		Surcharge:     c.PriceSurcharge,
		BonusRate:     c.BonusRate,
		BonusShare:    c.BonusShare,
	}
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRateSourceURL := cfg.RateSourceURL

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory storage when empty")
	flag.StringVar(&cfg.RateSourceURL, "r", ratesource.DefaultURL, "exchange rate source URL")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRateSourceURL != "" {
		cfg.RateSourceURL = envRateSourceURL
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}
