// Package main запускает бота для оформления заказов.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/orderbot/internal/bot"
	"github.com/mmeshcher/orderbot/internal/cart"
	"github.com/mmeshcher/orderbot/internal/config"
	"github.com/mmeshcher/orderbot/internal/conversation"
	"github.com/mmeshcher/orderbot/internal/handler"
	"github.com/mmeshcher/orderbot/internal/logger"
	"github.com/mmeshcher/orderbot/internal/middleware"
	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/pricing"
	"github.com/mmeshcher/orderbot/internal/rate"
	"github.com/mmeshcher/orderbot/internal/ratesource"
	"github.com/mmeshcher/orderbot/internal/repository"
	"github.com/mmeshcher/orderbot/internal/service"
	"github.com/mmeshcher/orderbot/internal/telegram"
)

type repo interface {
	service.Repository
	cart.Store
	SetRole(ctx context.Context, id int64, role model.Role) error
}

func main() {
	// .env необязателен
	_ = godotenv.Load()

	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewZapLog(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	sugar := log.Sugar()

	if err := run(cfg, log); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	sugar := log.Sugar()

	store, err := openRepository(cfg, log)
	if err != nil {
		return err
	}

	if err := promoteAdmins(store, cfg.AdminIDs, log); err != nil {
		_ = store.Close()
		return err
	}

	states, closeStates, err := openConversationStore(cfg, log)
	if err != nil {
		_ = store.Close()
		return err
	}
	defer closeStates()

	rates := rate.NewCache(
		ratesource.NewClient(cfg.RateSourceURL, cfg.RateCurrency),
		log,
		cfg.RateRefreshInterval,
		cfg.RateRetryDelay,
	)

	tg := telegram.NewClient(cfg.BotAPIURL, cfg.BotToken, cfg.SendRateLimit, log)

	svc := service.NewService(
		store,
		cart.NewLedger(store),
		rates,
		pricing.New(cfg.Pricing()),
		tg,
		cfg.OperatorChatID,
		log,
	)
	defer svc.Close()

	dispatcher := bot.NewDispatcher(
		svc,
		conversation.NewEngine(states, log),
		tg,
		bot.Options{
			BotUsername:   cfg.BotUsername,
			ManagerURL:    cfg.ManagerURL,
			LinkPhotoURL:  cfg.LinkPhotoURL,
			PricePhotoURL: cfg.PricePhotoURL,
		},
		log,
	)

	h := handler.NewHandler(dispatcher, rates, log, middleware.NewSecretToken(cfg.WebhookSecret))

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера: до получения курса /healthz отвечает 503
	g.Go(func() error {
		sugar.Infow("starting orderbot server", "addr", cfg.RunAddress, "polling", cfg.BotPolling)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Курс нужен до первого расчёта, поэтому события начинаем принимать только после него
	g.Go(func() error {
		if err := rates.Init(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("rate init: %w", err)
		}

		g.Go(func() error {
			rates.Run(ctx)
			return nil
		})

		if cfg.BotPolling {
			g.Go(func() error {
				return telegram.NewPoller(tg, dispatcher, log).Run(ctx)
			})
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
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

	return g.Wait()
}

func openRepository(cfg *config.Config, log *zap.Logger) (repo, error) {
	if cfg.DatabaseURI == "" {
		log.Warn("DATABASE_URI is empty, using in-memory storage")
		return repository.NewMemoryRepository(), nil
	}

	r, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		return nil, fmt.Errorf("database initialization error: %w", err)
	}
	return r, nil
}

func promoteAdmins(store repo, ids []int64, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, id := range ids {
		if _, _, err := store.EnsureUser(ctx, id, nil); err != nil {
			return fmt.Errorf("ensure admin %d: %w", id, err)
		}
		if err := store.SetRole(ctx, id, model.RoleAdmin); err != nil {
			return fmt.Errorf("promote admin %d: %w", id, err)
		}
		log.Info("admin role granted", zap.Int64("userID", id))
	}
	return nil
}

func openConversationStore(cfg *config.Config, log *zap.Logger) (conversation.Store, func(), error) {
	if cfg.RedisAddress == "" {
		return conversation.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info("conversation states are stored in redis", zap.String("addr", cfg.RedisAddress))

	return conversation.NewRedisStore(client), func() { _ = client.Close() }, nil
}
