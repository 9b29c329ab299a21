// Package rate хранит актуальный курс иностранной валюты и периодически обновляет его.
package rate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/metrics"
)

// Source описывает удалённый источник курса.
type Source interface {
	FetchRate(ctx context.Context) (float64, error)
}

type snapshot struct {
	value     float64
	updatedAt time.Time
}

// Cache владеет последним успешно полученным курсом. Единственный писатель
// заменяет снимок атомарно, читатели никогда не видят частично записанное значение.
type Cache struct {
	source     Source
	logger     *zap.Logger
	interval   time.Duration
	retryDelay time.Duration

	current atomic.Pointer[snapshot]
}

// NewCache создаёт кэш курса. interval задаёт период обновления,
// retryDelay - паузу между попытками первичной загрузки.
func NewCache(source Source, logger *zap.Logger, interval, retryDelay time.Duration) *Cache {
	return &Cache{
		source:     source,
		logger:     logger,
		interval:   interval,
		retryDelay: retryDelay,
	}
}

// Init блокируется до первого успешного получения курса, повторяя запрос
// с фиксированной паузой. Возвращает ошибку только при отмене контекста.
func (c *Cache) Init(ctx context.Context) error {
	policy := retrypolicy.NewBuilder[float64]().
		WithDelay(c.retryDelay).
		WithMaxRetries(-1).
		Build()

	value, err := failsafe.With[float64](policy).WithContext(ctx).Get(func() (float64, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		return fmt.Errorf("initial rate fetch: %w", err)
	}

	c.store(value)
	c.logger.Info("exchange rate initialized", zap.Float64("rate", value))
	return nil
}

// Refresh делает одну попытку обновить курс. При ошибке прежнее значение остаётся в силе.
func (c *Cache) Refresh(ctx context.Context) error {
	value, err := c.fetch(ctx)
	if err != nil {
		return err
	}

	c.store(value)
	c.logger.Debug("exchange rate refreshed", zap.Float64("rate", value))
	return nil
}

// Run обновляет курс с заданным интервалом до отмены контекста.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.Refresh(ctx)
		}
	}
}

// Current возвращает последний известный курс. Вызов до Init - ошибка программы.
func (c *Cache) Current() float64 {
	s := c.current.Load()
	if s == nil {
		panic("rate: Current called before Init")
	}
	return s.value
}

// Ready сообщает, получен ли курс хотя бы один раз.
func (c *Cache) Ready() bool {
	return c.current.Load() != nil
}

// UpdatedAt возвращает время последнего успешного обновления.
func (c *Cache) UpdatedAt() time.Time {
	s := c.current.Load()
	if s == nil {
		return time.Time{}
	}
	return s.updatedAt
}

func (c *Cache) fetch(ctx context.Context) (float64, error) {
	value, err := c.source.FetchRate(ctx)
	if err != nil {
		metrics.RateRefreshFailures.Inc()
		c.logger.Warn("exchange rate fetch failed", zap.Error(err))
		return 0, err
	}
	if value <= 0 {
		metrics.RateRefreshFailures.Inc()
		c.logger.Warn("exchange rate rejected", zap.Float64("rate", value))
		return 0, fmt.Errorf("non-positive rate %v", value)
	}
	return value, nil
}

func (c *Cache) store(value float64) {
	c.current.Store(&snapshot{value: value, updatedAt: time.Now()})
	metrics.ExchangeRate.Set(value)
}
