package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mmeshcher/orderbot/internal/conversation"
	"github.com/mmeshcher/orderbot/internal/intent"
	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/validation"
)

const (
	menuLabel   = "Меню"
	cancelLabel = "Отмена"
)

var categoryLabels = map[model.Category]string{
	model.CategorySneakers: "Кроссовки",
	model.CategoryBoots:    "Обувь",
	model.CategoryTop:      "Верх",
	model.CategoryBottom:   "Низ",
	model.CategoryTech:     "Техника",
	model.CategoryOneSize:  "Аксессуары",
}

func button(label string, in intent.Intent) model.Button {
	return model.Button{Label: label, Action: in.Token()}
}

func (d *Dispatcher) menuMessage(text string) model.Message {
	rows := [][]model.Button{
		{button("Оформить заказ", intent.Intent{Kind: intent.CreateOrder})},
		{
			button("Корзина", intent.Intent{Kind: intent.ShowCart}),
			button("Профиль", intent.Intent{Kind: intent.Profile}),
		},
		{button("Регистрация", intent.Intent{Kind: intent.Register})},
	}
	if d.opts.ManagerURL != "" {
		rows = append(rows, []model.Button{{Label: "Связаться с менеджером", URL: d.opts.ManagerURL}})
	}
	return model.Message{Text: text, Buttons: rows}
}

func categoriesMessage() model.Message {
	rows := make([][]model.Button, 0, len(model.Categories)/2+2)
	for i := 0; i < len(model.Categories); i += 2 {
		row := []model.Button{}
		for _, c := range model.Categories[i:min(i+2, len(model.Categories))] {
			row = append(row, button(categoryLabels[c], intent.Intent{Kind: intent.ChooseCategory, Category: c}))
		}
		rows = append(rows, row)
	}
	rows = append(rows, []model.Button{button(cancelLabel, intent.Intent{Kind: intent.Cancel})})
	return model.Message{Text: "Выберите категорию товара:", Buttons: rows}
}

func (d *Dispatcher) stepMessage(res conversation.Result) model.Message {
	counter := fmt.Sprintf("(%d/%d) ", res.Position, res.Total)
	cancelOnly := [][]string{{cancelLabel}}

	switch res.Field {
	case conversation.FieldName:
		return model.Message{
			Text:     counter + "Введите ФИО получателя.",
			Keyboard: [][]string{{conversation.SkipReply}, {cancelLabel}},
		}
	case conversation.FieldPhone:
		return model.Message{Text: counter + "Введите номер телефона.", Keyboard: cancelOnly}
	case conversation.FieldAddress:
		return model.Message{Text: counter + "Введите адрес доставки.", Keyboard: cancelOnly}
	case conversation.FieldLink:
		return model.Message{
			Text:     counter + "Отправьте ссылку на товар.",
			Photo:    d.opts.LinkPhotoURL,
			Keyboard: cancelOnly,
		}
	case conversation.FieldSize:
		return model.Message{Text: counter + "Укажите размер.", Keyboard: cancelOnly}
	case conversation.FieldPrice:
		return model.Message{
			Text:     counter + "Укажите цену в юанях целым числом.",
			Photo:    d.opts.PricePhotoURL,
			Keyboard: cancelOnly,
		}
	default:
		return model.Message{Text: "Подтвердите заказ.", Keyboard: confirmKeyboard()}
	}
}

func confirmKeyboard() [][]string {
	return [][]string{{conversation.ConfirmReply, conversation.BackReply}}
}

func confirmationMessage(summary model.OrderSummary) model.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Позиций в заказе: %d\n", len(summary.Items))
	fmt.Fprintf(&b, "Сумма к оплате: %d ₽\n", summary.Total)
	b.WriteString("Подтвердите заказ или вернитесь назад.")
	return model.Message{Text: b.String(), Keyboard: confirmKeyboard()}
}

func cartItemMessage(pi model.PricedItem) model.Message {
	return model.Message{
		Text: fmt.Sprintf("%s\nРазмер: %s\nЦена: %d ¥ (%d ₽)", pi.Item.Link, pi.Item.Size, pi.Item.Price, pi.Quote.Local),
		Buttons: [][]model.Button{
			{button("Удалить", intent.Intent{Kind: intent.DeleteItem, ItemID: pi.Item.ID})},
		},
	}
}

func cartTotalMessage(summary model.OrderSummary) model.Message {
	return model.Message{
		Text: fmt.Sprintf("Итого: %d ₽ по курсу %.4f", summary.Total, summary.Rate),
		Buttons: [][]model.Button{
			{button("Оформить", intent.Intent{Kind: intent.ConfirmOrder})},
			{button("Добавить товар", intent.Intent{Kind: intent.CreateOrder})},
			{button("Очистить корзину", intent.Intent{Kind: intent.ClearCart})},
		},
	}
}

func emptyCartMessage() model.Message {
	return model.Message{
		Text:    "Корзина пуста.",
		Buttons: [][]model.Button{{button("Добавить товар", intent.Intent{Kind: intent.CreateOrder})}},
	}
}

func registerFirstMessage() model.Message {
	return model.Message{
		Text:    "Чтобы оформить заказ, заполните данные для доставки.",
		Buttons: [][]model.Button{{button("Регистрация", intent.Intent{Kind: intent.Register})}},
	}
}

func (d *Dispatcher) profileMessage(u model.User) model.Message {
	var b strings.Builder
	if u.Profile.Complete() {
		fmt.Fprintf(&b, "ФИО: %s\nТелефон: %s\nАдрес: %s\n", u.Profile.FullName, u.Profile.Phone, u.Profile.Address)
	} else {
		b.WriteString("Профиль не заполнен.\n")
	}
	fmt.Fprintf(&b, "Бонусный баланс: %d ₽", u.Balance)
	if d.opts.BotUsername != "" {
		fmt.Fprintf(&b, "\nВаша ссылка для друзей: https://t.me/%s?start=%d", d.opts.BotUsername, u.ID)
	}

	rows := [][]model.Button{{button("Изменить профиль", intent.Intent{Kind: intent.Register})}}
	if u.Balance > 0 {
		rows = append(rows, []model.Button{button("Вывести бонусы", intent.Intent{Kind: intent.RequestWithdraw})})
	}
	rows = append(rows, []model.Button{button(menuLabel, intent.Intent{Kind: intent.Menu})})
	return model.Message{Text: b.String(), Buttons: rows}
}

func rejectionText(err error) string {
	switch {
	case errors.Is(err, validation.ErrNotPositiveInteger):
		return "Цена должна быть целым положительным числом, например 1500."
	case errors.Is(err, validation.ErrPriceTooLarge):
		return fmt.Sprintf("Цена слишком большая: не больше %d.", validation.MaxPrice)
	case errors.Is(err, validation.ErrUnexpectedReply):
		return fmt.Sprintf("Выберите «%s» или «%s».", conversation.ConfirmReply, conversation.BackReply)
	default:
		return "Ответ не может быть пустым."
	}
}

func plain(s string) model.Message {
	return model.Message{Text: s}
}
