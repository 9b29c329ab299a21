package telegram

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/model"
)

// Handler обрабатывает событие бота.
type Handler interface {
	Handle(ctx context.Context, ev model.Event) error
}

// Poller получает обновления через long polling и передаёт их обработчику по одному.
type Poller struct {
	client     *Client
	handler    Handler
	logger     *zap.Logger
	timeout    int
	retryDelay time.Duration
}

// NewPoller создаёт цикл опроса.
func NewPoller(client *Client, handler Handler, logger *zap.Logger) *Poller {
	return &Poller{
		client:     client,
		handler:    handler,
		logger:     logger,
		timeout:    30,
		retryDelay: 3 * time.Second,
	}
}

// Run опрашивает Bot API до отмены контекста.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.client.DeleteWebhook(ctx); err != nil {
		p.logger.Warn("delete webhook failed", zap.Error(err))
	}

	var offset int64
	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := p.client.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Warn("get updates failed", zap.Error(err))

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.retryDelay):
			}
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1

			ev, ok := u.Event()
			if !ok {
				continue
			}
			if err := p.handler.Handle(ctx, ev); err != nil {
				p.logger.Error("handle update failed", zap.Int64("updateID", u.UpdateID), zap.Error(err))
			}
		}
	}
}
