package telegram

import (
	"github.com/mmeshcher/orderbot/internal/model"
)

// Update - входящее обновление Bot API. Обрабатываются только сообщения и нажатия кнопок.
type Update struct {
	UpdateID      int64          `json:"update_id" validate:"required"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// User описывает отправителя.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// Chat описывает чат.
type Chat struct {
	ID int64 `json:"id"`
}

// Message описывает сообщение.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text,omitempty"`
}

// CallbackQuery описывает нажатие inline-кнопки.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// Event переводит обновление в событие бота. false для обновлений без отправителя.
func (u Update) Event() (model.Event, bool) {
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		ev := model.Event{
			UserID:     cq.From.ID,
			ChatID:     cq.From.ID,
			Username:   cq.From.Username,
			Action:     cq.Data,
			CallbackID: cq.ID,
		}
		if cq.Message != nil {
			ev.ChatID = cq.Message.Chat.ID
			ev.MessageID = cq.Message.MessageID
		}
		return ev, true
	case u.Message != nil && u.Message.From != nil:
		m := u.Message
		return model.Event{
			UserID:    m.From.ID,
			ChatID:    m.Chat.ID,
			Username:  m.From.Username,
			Text:      m.Text,
			MessageID: m.MessageID,
		}, true
	default:
		return model.Event{}, false
	}
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

type inlineKeyboardMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type keyboardButton struct {
	Text string `json:"text"`
}

type replyKeyboardMarkup struct {
	Keyboard       [][]keyboardButton `json:"keyboard"`
	ResizeKeyboard bool               `json:"resize_keyboard"`
}

type replyKeyboardRemove struct {
	RemoveKeyboard bool `json:"remove_keyboard"`
}

// replyMarkup выбирает разметку сообщения: inline-кнопки важнее клавиатуры.
func replyMarkup(msg model.Message) any {
	switch {
	case len(msg.Buttons) > 0:
		rows := make([][]inlineButton, 0, len(msg.Buttons))
		for _, row := range msg.Buttons {
			r := make([]inlineButton, 0, len(row))
			for _, b := range row {
				r = append(r, inlineButton{Text: b.Label, CallbackData: b.Action, URL: b.URL})
			}
			rows = append(rows, r)
		}
		return inlineKeyboardMarkup{InlineKeyboard: rows}
	case len(msg.Keyboard) > 0:
		rows := make([][]keyboardButton, 0, len(msg.Keyboard))
		for _, row := range msg.Keyboard {
			r := make([]keyboardButton, 0, len(row))
			for _, label := range row {
				r = append(r, keyboardButton{Text: label})
			}
			rows = append(rows, r)
		}
		return replyKeyboardMarkup{Keyboard: rows, ResizeKeyboard: true}
	case msg.RemoveKeyboard:
		return replyKeyboardRemove{RemoveKeyboard: true}
	default:
		return nil
	}
}
