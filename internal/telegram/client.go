// Package telegram содержит клиент Bot API и цикл long polling.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mmeshcher/orderbot/internal/model"
)

// DefaultAPIURL - адрес Bot API.
const DefaultAPIURL = "https://api.telegram.org"

// APIError - ответ Bot API с ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// Client вызывает методы Bot API. Исходящие вызовы ограничены по частоте.
type Client struct {
	token   string
	http    *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient создаёт клиент. perSecond <= 0 снимает ограничение частоты.
func NewClient(apiURL, token string, perSecond int, logger *zap.Logger) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	}

	return &Client{
		token: token,
		http: resty.New().
			SetBaseURL(strings.TrimRight(apiURL, "/") + "/bot" + token).
			SetTimeout(60 * time.Second),
		limiter: limiter,
		logger:  logger,
	}
}

func (c *Client) call(ctx context.Context, method string, payload any, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post("/" + method)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, c.redact(err))
	}

	var out apiResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return fmt.Errorf("telegram %s: decode response (status %d): %w", method, resp.StatusCode(), err)
	}
	if !out.OK {
		return &APIError{Method: method, Code: out.ErrorCode, Description: out.Description}
	}

	if result != nil {
		if err := json.Unmarshal(out.Result, result); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

// redact убирает из ошибки адрес запроса: в нём содержится токен бота.
func (c *Client) redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	if c.token != "" && strings.Contains(err.Error(), c.token) {
		return errors.New(strings.ReplaceAll(err.Error(), c.token, "<token>"))
	}
	return err
}

type sendRequest struct {
	ChatID      int64  `json:"chat_id"`
	Text        string `json:"text,omitempty"`
	Photo       string `json:"photo,omitempty"`
	Caption     string `json:"caption,omitempty"`
	ReplyMarkup any    `json:"reply_markup,omitempty"`
}

// Send отправляет текст или фото с подписью.
func (c *Client) Send(ctx context.Context, chatID int64, msg model.Message) error {
	req := sendRequest{ChatID: chatID, ReplyMarkup: replyMarkup(msg)}

	method := "sendMessage"
	if msg.Photo != "" {
		method = "sendPhoto"
		req.Photo = msg.Photo
		req.Caption = msg.Text
	} else {
		req.Text = msg.Text
	}

	return c.call(ctx, method, req, nil)
}

// ClearButtons убирает inline-кнопки у отправленного сообщения.
func (c *Client) ClearButtons(ctx context.Context, chatID, messageID int64) error {
	req := struct {
		ChatID      int64                `json:"chat_id"`
		MessageID   int64                `json:"message_id"`
		ReplyMarkup inlineKeyboardMarkup `json:"reply_markup"`
	}{
		ChatID:      chatID,
		MessageID:   messageID,
		ReplyMarkup: inlineKeyboardMarkup{InlineKeyboard: [][]inlineButton{}},
	}
	return c.call(ctx, "editMessageReplyMarkup", req, nil)
}

// Ack подтверждает нажатие кнопки, чтобы клиент перестал показывать ожидание.
func (c *Client) Ack(ctx context.Context, callbackID string) error {
	req := struct {
		CallbackQueryID string `json:"callback_query_id"`
	}{CallbackQueryID: callbackID}
	return c.call(ctx, "answerCallbackQuery", req, nil)
}

// GetUpdates запрашивает обновления начиная с offset, ожидая до timeout секунд.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	req := struct {
		Offset         int64    `json:"offset,omitempty"`
		Timeout        int      `json:"timeout"`
		AllowedUpdates []string `json:"allowed_updates"`
	}{
		Offset:         offset,
		Timeout:        timeout,
		AllowedUpdates: []string{"message", "callback_query"},
	}

	var updates []Update
	if err := c.call(ctx, "getUpdates", req, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// DeleteWebhook отключает вебхук, иначе getUpdates отвечает ошибкой.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", struct{}{}, nil)
}
