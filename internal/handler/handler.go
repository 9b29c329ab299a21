// Package handler содержит HTTP-обработчики бота: вебхук, проверку готовности и метрики.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/middleware"
	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/telegram"
)

// Dispatcher обрабатывает события бота.
type Dispatcher interface {
	Handle(ctx context.Context, ev model.Event) error
}

// Readiness сообщает, готов ли сервис обслуживать запросы.
type Readiness interface {
	Ready() bool
	UpdatedAt() time.Time
}

// Handler реализует HTTP-обработчики бота.
type Handler struct {
	dispatcher Dispatcher
	ready      Readiness
	logger     *zap.Logger
	secret     *middleware.SecretToken
	validate   *validator.Validate
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(d Dispatcher, ready Readiness, logger *zap.Logger, secret *middleware.SecretToken) *Handler {
	return &Handler{
		dispatcher: d,
		ready:      ready,
		logger:     logger,
		secret:     secret,
		validate:   validator.New(),
	}
}

// Webhook принимает обновление Bot API. Любое разобранное обновление подтверждается
// ответом 200, иначе платформа будет присылать его повторно. До получения курса
// обновления не принимаются.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Ready() {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	var upd telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(upd); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ev, ok := upd.Event()
	if ok {
		if err := h.dispatcher.Handle(r.Context(), ev); err != nil {
			h.logger.Error("handle update error", zap.Int64("updateID", upd.UpdateID), zap.Error(err))
		}
	}

	w.WriteHeader(http.StatusOK)
}

// Healthz отвечает 200 после первой загрузки курса и 503 до неё.
// В теле ответа указано время последнего обновления курса.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Ready() {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\nrate updated at " + h.ready.UpdatedAt().UTC().Format(time.RFC3339) + "\n"))
}
