package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/model"
)

type call struct {
	path string
	body map[string]any
}

// fakeAPI записывает вызовы и отвечает заданным телом.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []call
	respond func(path string) string
}

func (f *fakeAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		var body map[string]any
		if len(raw) > 0 {
			assert.NoError(t, json.Unmarshal(raw, &body))
		}

		f.mu.Lock()
		f.calls = append(f.calls, call{path: r.URL.Path, body: body})
		f.mu.Unlock()

		resp := `{"ok":true,"result":true}`
		if f.respond != nil {
			resp = f.respond(r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, resp)
	}
}

func (f *fakeAPI) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	ts := httptest.NewServer(api.handler(t))
	t.Cleanup(ts.Close)
	return NewClient(ts.URL, "TOKEN", 0, zap.NewNop())
}

func TestSend_TextWithInlineButtons(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	err := c.Send(context.Background(), 42, model.Message{
		Text: "Корзина",
		Buttons: [][]model.Button{
			{{Label: "Удалить", Action: "delete_order 7"}},
			{{Label: "Менеджер", URL: "https://t.me/manager"}},
		},
	})
	require.NoError(t, err)

	calls := api.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "/botTOKEN/sendMessage", calls[0].path)
	assert.Equal(t, float64(42), calls[0].body["chat_id"])
	assert.Equal(t, "Корзина", calls[0].body["text"])

	markup := calls[0].body["reply_markup"].(map[string]any)
	rows := markup["inline_keyboard"].([]any)
	require.Len(t, rows, 2)
	first := rows[0].([]any)[0].(map[string]any)
	assert.Equal(t, "delete_order 7", first["callback_data"])
	second := rows[1].([]any)[0].(map[string]any)
	assert.Equal(t, "https://t.me/manager", second["url"])
	assert.NotContains(t, second, "callback_data")
}

func TestSend_PhotoWithCaptionAndKeyboard(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	err := c.Send(context.Background(), 1, model.Message{
		Text:     "Отправьте ссылку",
		Photo:    "https://img/link.png",
		Keyboard: [][]string{{"Отмена"}},
	})
	require.NoError(t, err)

	calls := api.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "/botTOKEN/sendPhoto", calls[0].path)
	assert.Equal(t, "https://img/link.png", calls[0].body["photo"])
	assert.Equal(t, "Отправьте ссылку", calls[0].body["caption"])
	assert.NotContains(t, calls[0].body, "text")

	markup := calls[0].body["reply_markup"].(map[string]any)
	assert.Equal(t, true, markup["resize_keyboard"])
	assert.Len(t, markup["keyboard"].([]any), 1)
}

func TestSend_RemoveKeyboardAndPlain(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)
	ctx := context.Background()

	require.NoError(t, c.Send(ctx, 1, model.Message{Text: "готово", RemoveKeyboard: true}))
	require.NoError(t, c.Send(ctx, 1, model.Message{Text: "просто текст"}))

	calls := api.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, map[string]any{"remove_keyboard": true}, calls[0].body["reply_markup"])
	assert.NotContains(t, calls[1].body, "reply_markup")
}

func TestClearButtonsAndAck(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)
	ctx := context.Background()

	require.NoError(t, c.ClearButtons(ctx, -100, 55))
	require.NoError(t, c.Ack(ctx, "cb-1"))

	calls := api.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, "/botTOKEN/editMessageReplyMarkup", calls[0].path)
	assert.Equal(t, float64(55), calls[0].body["message_id"])
	assert.Equal(t, map[string]any{"inline_keyboard": []any{}}, calls[0].body["reply_markup"])
	assert.Equal(t, "/botTOKEN/answerCallbackQuery", calls[1].path)
	assert.Equal(t, "cb-1", calls[1].body["callback_query_id"])
}

func TestCall_APIError(t *testing.T) {
	api := &fakeAPI{respond: func(string) string {
		return `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`
	}}
	c := newTestClient(t, api)

	err := c.Send(context.Background(), 1, model.Message{Text: "hi"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.Code)
	assert.Equal(t, "sendMessage", apiErr.Method)
}

func TestCall_UndecodableBody(t *testing.T) {
	api := &fakeAPI{respond: func(string) string { return "<html>bad gateway</html>" }}
	c := newTestClient(t, api)

	err := c.Ack(context.Background(), "x")
	require.Error(t, err)
}

func TestCall_TransportErrorHidesToken(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	c := NewClient(addr, "123456:SECRET-TOKEN", 0, zap.NewNop())

	err := c.Send(context.Background(), 42, model.Message{Text: "привет"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET-TOKEN")
	assert.Contains(t, err.Error(), "telegram sendMessage")

	_, err = c.GetUpdates(context.Background(), 0, 0)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET-TOKEN")
}

func TestCall_CanceledContextStaysDetectable(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Send(ctx, 42, model.Message{Text: "привет"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, err.Error(), "TOKEN")
}

func TestGetUpdates(t *testing.T) {
	api := &fakeAPI{respond: func(string) string {
		return `{"ok":true,"result":[
			{"update_id":10,"message":{"message_id":1,"from":{"id":5,"username":"ivan"},"chat":{"id":5},"text":"/start 77"}},
			{"update_id":11,"callback_query":{"id":"cb","from":{"id":5},"message":{"message_id":2,"chat":{"id":5}},"data":"cart"}}
		]}`
	}}
	c := newTestClient(t, api)

	updates, err := c.GetUpdates(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, updates, 2)

	calls := api.recorded()
	assert.Equal(t, float64(10), calls[0].body["offset"])

	ev, ok := updates[0].Event()
	require.True(t, ok)
	assert.Equal(t, model.Event{UserID: 5, ChatID: 5, Username: "ivan", Text: "/start 77", MessageID: 1}, ev)

	ev, ok = updates[1].Event()
	require.True(t, ok)
	assert.True(t, ev.IsCallback())
	assert.Equal(t, "cart", ev.Action)
	assert.Equal(t, int64(2), ev.MessageID)
}

func TestUpdate_EventWithoutSender(t *testing.T) {
	_, ok := Update{UpdateID: 1, Message: &Message{Chat: Chat{ID: 1}, Text: "channel post"}}.Event()
	assert.False(t, ok)

	_, ok = Update{UpdateID: 2}.Event()
	assert.False(t, ok)
}

func TestClient_RateLimited(t *testing.T) {
	api := &fakeAPI{}
	ts := httptest.NewServer(api.handler(t))
	defer ts.Close()

	c := NewClient(ts.URL, "TOKEN", 1, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, c.Ack(ctx, "a"))
	// второй вызов должен ждать токен дольше дедлайна
	require.Error(t, c.Ack(ctx, "b"))
	assert.Len(t, api.recorded(), 1)
}

type recordingHandler struct {
	mu     sync.Mutex
	events []model.Event
}

func (h *recordingHandler) Handle(ctx context.Context, ev model.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func TestPoller_DeliversAndAdvancesOffset(t *testing.T) {
	var (
		mu      sync.Mutex
		offsets []float64
	)
	api := &fakeAPI{}
	api.respond = func(path string) string {
		if path != "/botTOKEN/getUpdates" {
			return `{"ok":true,"result":true}`
		}
		mu.Lock()
		defer mu.Unlock()
		n := len(offsets)
		offsets = append(offsets, 0)
		if n == 0 {
			return `{"ok":true,"result":[{"update_id":100,"message":{"message_id":1,"from":{"id":5},"chat":{"id":5},"text":"menu"}}]}`
		}
		return `{"ok":true,"result":[]}`
	}
	c := newTestClient(t, api)
	h := &recordingHandler{}
	p := NewPoller(c, h, zap.NewNop())
	p.timeout = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return h.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		for _, c := range api.recorded() {
			if c.path == "/botTOKEN/getUpdates" && c.body["offset"] == float64(101) {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("poller did not stop")
	}
}
