package service

import (
	"fmt"
	"strings"

	"github.com/mmeshcher/orderbot/internal/intent"
	"github.com/mmeshcher/orderbot/internal/model"
)

func orderHeaderMessage(summary model.OrderSummary, buyer model.User) model.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Новый заказ %s\n", summary.Reference)
	fmt.Fprintf(&b, "Покупатель: %d\n", buyer.ID)
	fmt.Fprintf(&b, "ФИО: %s\n", buyer.Profile.FullName)
	fmt.Fprintf(&b, "Телефон: %s\n", buyer.Profile.Phone)
	fmt.Fprintf(&b, "Адрес: %s\n", buyer.Profile.Address)
	fmt.Fprintf(&b, "Позиций: %d", len(summary.Items))
	return model.Message{Text: b.String()}
}

func orderItemMessage(pi model.PricedItem, inviterID *int64) model.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Товар: %s\n", pi.Item.Link)
	fmt.Fprintf(&b, "Размер: %s\n", pi.Item.Size)
	fmt.Fprintf(&b, "Цена: %d ¥\n", pi.Item.Price)
	fmt.Fprintf(&b, "К оплате: %d ₽\n", pi.Quote.Local)
	fmt.Fprintf(&b, "Себестоимость: %d ₽\n", pi.Quote.Cost)
	fmt.Fprintf(&b, "Прибыль: %d ₽", pi.Quote.Profit)

	msg := model.Message{}
	if inviterID != nil && pi.Quote.Bonus > 0 {
		fmt.Fprintf(&b, "\nБонус пригласившему (%d): %d ₽", *inviterID, pi.Quote.Bonus)
		grant := intent.Intent{Kind: intent.GiveBonus, UserID: *inviterID, Amount: pi.Quote.Bonus}
		msg.Buttons = [][]model.Button{{{Label: "Начислить бонус", Action: grant.Token()}}}
	}
	msg.Text = b.String()
	return msg
}

func orderTotalMessage(summary model.OrderSummary) model.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Итого по заказу %s: %d ₽\n", summary.Reference, summary.Total)
	fmt.Fprintf(&b, "Прибыль: %d ₽\n", summary.Profit)
	if summary.Bonus > 0 {
		fmt.Fprintf(&b, "Бонусы: %d ₽\n", summary.Bonus)
	}
	fmt.Fprintf(&b, "Курс: %.4f", summary.Rate)
	return model.Message{Text: b.String()}
}

func orderConfirmedMessage(summary model.OrderSummary) model.Message {
	return model.Message{
		Text: fmt.Sprintf("Заказ %s оформлен.\nСумма к оплате: %d ₽\nМенеджер свяжется с вами для оплаты.",
			summary.Reference, summary.Total),
		RemoveKeyboard: true,
	}
}

func bonusGrantedMessage(amount, balance int64) model.Message {
	return model.Message{
		Text: fmt.Sprintf("Вам начислен бонус %d ₽ за заказ приглашённого друга.\nБаланс: %d ₽", amount, balance),
	}
}

func withdrawRequestMessage(u model.User) model.Message {
	paid := intent.Intent{Kind: intent.Withdraw, UserID: u.ID}
	return model.Message{
		Text: fmt.Sprintf("Запрос на вывод бонусов\nПользователь: %d\nФИО: %s\nТелефон: %s\nСумма: %d ₽",
			u.ID, u.Profile.FullName, u.Profile.Phone, u.Balance),
		Buttons: [][]model.Button{{{Label: "Выплачено", Action: paid.Token()}}},
	}
}

func withdrawDoneMessage(amount int64) model.Message {
	return model.Message{Text: fmt.Sprintf("Бонусы в размере %d ₽ выплачены.", amount)}
}
