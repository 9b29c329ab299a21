// Package bot маршрутизирует входящие события: команды, нажатия кнопок и ответы в формах.
package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/conversation"
	"github.com/mmeshcher/orderbot/internal/intent"
	"github.com/mmeshcher/orderbot/internal/metrics"
	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/repository"
	"github.com/mmeshcher/orderbot/internal/service"
)

// Service описывает бизнес-операции, которые вызывает бот.
type Service interface {
	EnsureUser(ctx context.Context, id int64, inviterID *int64) (model.User, bool, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	SaveProfile(ctx context.Context, id int64, p model.Profile) error
	AddToCart(ctx context.Context, buyerID int64, link, size string, price int64) (int64, error)
	Cart(ctx context.Context, buyerID int64) (model.OrderSummary, error)
	DeleteItem(ctx context.Context, buyerID, itemID int64) error
	ClearCart(ctx context.Context, buyerID int64) error
	CanConfirm(ctx context.Context, buyerID int64) error
	Settle(ctx context.Context, buyerID int64) (model.OrderSummary, error)
	GrantBonus(ctx context.Context, inviterID, amount int64) (int64, error)
	RequestWithdraw(ctx context.Context, userID int64) (int64, error)
	Withdraw(ctx context.Context, userID int64) (int64, error)
	OperatorChatID() int64
}

// Transport отправляет ответы пользователю.
type Transport interface {
	Send(ctx context.Context, chatID int64, msg model.Message) error
	ClearButtons(ctx context.Context, chatID, messageID int64) error
	Ack(ctx context.Context, callbackID string) error
}

// Options содержит необязательные настройки оформления.
type Options struct {
	BotUsername   string
	ManagerURL    string
	LinkPhotoURL  string
	PricePhotoURL string
}

// Dispatcher обрабатывает события. События одного пользователя обрабатываются по очереди.
type Dispatcher struct {
	svc    Service
	forms  *conversation.Engine
	out    Transport
	opts   Options
	logger *zap.Logger
	locks  *userLocks
}

// NewDispatcher создаёт диспетчер и регистрирует действия завершения форм.
func NewDispatcher(svc Service, forms *conversation.Engine, out Transport, opts Options, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		svc:    svc,
		forms:  forms,
		out:    out,
		opts:   opts,
		logger: logger,
		locks:  newUserLocks(),
	}

	forms.OnComplete(conversation.FormRegistration, d.completeRegistration)
	forms.OnComplete(conversation.FormProduct, d.completeProduct)
	forms.OnComplete(conversation.FormConfirmation, d.completeConfirmation)

	return d
}

// Handle обрабатывает одно событие. Пользователь создаётся до любого ответа.
// Возвращаемая ошибка уже показана пользователю и нужна только для журнала.
func (d *Dispatcher) Handle(ctx context.Context, ev model.Event) error {
	unlock := d.locks.Lock(ev.UserID)
	defer unlock()

	if ev.IsCallback() {
		metrics.Events.WithLabelValues("callback").Inc()
		if err := d.out.Ack(ctx, ev.CallbackID); err != nil {
			d.logger.Warn("callback ack failed", zap.Int64("userID", ev.UserID), zap.Error(err))
		}
	} else {
		metrics.Events.WithLabelValues("message").Inc()
	}

	u, _, err := d.svc.EnsureUser(ctx, ev.UserID, startPayload(ev.Text))
	if err != nil {
		return d.fail(ctx, ev, err)
	}
	if u.Blocked() {
		d.logger.Debug("event from blocked user suppressed", zap.Int64("userID", ev.UserID))
		return nil
	}

	if ev.IsCallback() {
		err = d.handleAction(ctx, ev, u)
	} else {
		err = d.handleText(ctx, ev, u)
	}
	if err != nil {
		return d.fail(ctx, ev, err)
	}
	return nil
}

func (d *Dispatcher) handleText(ctx context.Context, ev model.Event, u model.User) error {
	input := strings.TrimSpace(ev.Text)

	switch {
	case isCommand(input, "/start"), isCommand(input, "/menu"), input == menuLabel:
		return d.dispatch(ctx, ev, u, intent.Intent{Kind: intent.Menu})
	case isCommand(input, "/cart"):
		return d.dispatch(ctx, ev, u, intent.Intent{Kind: intent.ShowCart})
	case isCommand(input, "/profile"):
		return d.dispatch(ctx, ev, u, intent.Intent{Kind: intent.Profile})
	case isCommand(input, "/cancel"), input == cancelLabel:
		return d.dispatch(ctx, ev, u, intent.Intent{Kind: intent.Cancel})
	}

	res, err := d.forms.Handle(ctx, ev.UserID, ev.Text)
	if errors.Is(err, conversation.ErrNoActiveForm) {
		// в группах, включая чат оператора, посторонний текст не наш
		if !ev.Private() || ev.ChatID == d.svc.OperatorChatID() {
			return nil
		}
		return d.send(ctx, ev.ChatID, d.menuMessage("Выберите действие в меню."))
	}
	if err != nil {
		return err
	}
	return d.answer(ctx, ev, res)
}

func (d *Dispatcher) handleAction(ctx context.Context, ev model.Event, u model.User) error {
	in, err := intent.Parse(ev.Action)
	if err != nil {
		d.logger.Warn("unknown action", zap.Int64("userID", ev.UserID), zap.String("action", ev.Action), zap.Error(err))
		return nil
	}
	return d.dispatch(ctx, ev, u, in)
}

func (d *Dispatcher) dispatch(ctx context.Context, ev model.Event, u model.User, in intent.Intent) error {
	if in.Kind.Operator() && !d.isOperator(ev, u) {
		d.logger.Warn("operator action rejected", zap.Int64("userID", ev.UserID), zap.String("action", in.Token()))
		return nil
	}

	switch in.Kind {
	case intent.Menu:
		if err := d.forms.Cancel(ctx, ev.UserID); err != nil {
			return err
		}
		return d.send(ctx, ev.ChatID, d.menuMessage("Здравствуйте! Я помогу оформить заказ."))

	case intent.Register:
		return d.start(ctx, ev, conversation.FormRegistration, "")

	case intent.CreateOrder:
		if err := d.forms.Cancel(ctx, ev.UserID); err != nil {
			return err
		}
		return d.send(ctx, ev.ChatID, categoriesMessage())

	case intent.ChooseCategory:
		return d.start(ctx, ev, conversation.FormProduct, in.Category)

	case intent.Cancel:
		if err := d.forms.Cancel(ctx, ev.UserID); err != nil {
			return err
		}
		if err := d.send(ctx, ev.ChatID, model.Message{Text: "Действие отменено.", RemoveKeyboard: true}); err != nil {
			return err
		}
		return d.send(ctx, ev.ChatID, d.menuMessage("Выберите действие в меню."))

	case intent.ShowCart:
		return d.showCart(ctx, ev)

	case intent.DeleteItem:
		if err := d.svc.DeleteItem(ctx, ev.UserID, in.ItemID); err != nil {
			return err
		}
		d.clearButtons(ctx, ev)
		return d.send(ctx, ev.ChatID, plain("Товар удалён из корзины."))

	case intent.ClearCart:
		if err := d.svc.ClearCart(ctx, ev.UserID); err != nil {
			return err
		}
		d.clearButtons(ctx, ev)
		return d.send(ctx, ev.ChatID, emptyCartMessage())

	case intent.ConfirmOrder:
		if err := d.svc.CanConfirm(ctx, ev.UserID); err != nil {
			return err
		}
		summary, err := d.svc.Cart(ctx, ev.UserID)
		if err != nil {
			return err
		}
		if _, err := d.forms.Start(ctx, ev.UserID, conversation.FormConfirmation, ""); err != nil {
			return err
		}
		return d.send(ctx, ev.ChatID, confirmationMessage(summary))

	case intent.Profile:
		return d.send(ctx, ev.ChatID, d.profileMessage(u))

	case intent.RequestWithdraw:
		amount, err := d.svc.RequestWithdraw(ctx, ev.UserID)
		if errors.Is(err, service.ErrEmptyBalance) {
			return d.send(ctx, ev.ChatID, plain("На бонусном балансе пока ничего нет."))
		}
		if err != nil {
			return err
		}
		return d.send(ctx, ev.ChatID, plain("Запрос на вывод "+strconv.FormatInt(amount, 10)+" ₽ отправлен менеджеру."))

	case intent.Withdraw:
		d.clearButtons(ctx, ev)
		paid, err := d.svc.Withdraw(ctx, in.UserID)
		if err != nil {
			return err
		}
		return d.send(ctx, ev.ChatID, plain("Выплата "+strconv.FormatInt(paid, 10)+" ₽ отмечена."))

	case intent.GiveBonus:
		d.clearButtons(ctx, ev)
		if _, err := d.svc.GrantBonus(ctx, in.UserID, in.Amount); err != nil {
			return err
		}
		return d.send(ctx, ev.ChatID, plain("Бонус "+strconv.FormatInt(in.Amount, 10)+" ₽ начислен."))
	}

	return nil
}

func (d *Dispatcher) start(ctx context.Context, ev model.Event, form conversation.FormKind, category model.Category) error {
	res, err := d.forms.Start(ctx, ev.UserID, form, category)
	if err != nil {
		return err
	}
	return d.send(ctx, ev.ChatID, d.stepMessage(res))
}

func (d *Dispatcher) answer(ctx context.Context, ev model.Event, res conversation.Result) error {
	switch res.Status {
	case conversation.Advanced:
		return d.send(ctx, ev.ChatID, d.stepMessage(res))

	case conversation.Rejected:
		if err := d.send(ctx, ev.ChatID, plain(rejectionText(res.Err))); err != nil {
			return err
		}
		return d.send(ctx, ev.ChatID, d.stepMessage(res))

	case conversation.Completed:
		switch res.Form {
		case conversation.FormRegistration:
			if err := d.send(ctx, ev.ChatID, model.Message{Text: "Данные сохранены.", RemoveKeyboard: true}); err != nil {
				return err
			}
			return d.send(ctx, ev.ChatID, d.menuMessage("Теперь можно оформить заказ."))
		case conversation.FormProduct:
			if err := d.send(ctx, ev.ChatID, model.Message{Text: "Товар добавлен в корзину.", RemoveKeyboard: true}); err != nil {
				return err
			}
			return d.send(ctx, ev.ChatID, model.Message{
				Text: "Что дальше?",
				Buttons: [][]model.Button{
					{button("Добавить ещё", intent.Intent{Kind: intent.CreateOrder})},
					{button("Корзина", intent.Intent{Kind: intent.ShowCart})},
				},
			})
		default:
			return d.send(ctx, ev.ChatID, d.menuMessage("Спасибо за заказ!"))
		}

	case conversation.Aborted:
		if err := d.send(ctx, ev.ChatID, model.Message{Text: "Хорошо, вернёмся к этому позже.", RemoveKeyboard: true}); err != nil {
			return err
		}
		if res.Form == conversation.FormConfirmation {
			return d.showCart(ctx, ev)
		}
		return d.send(ctx, ev.ChatID, d.menuMessage("Выберите действие в меню."))
	}

	return nil
}

func (d *Dispatcher) showCart(ctx context.Context, ev model.Event) error {
	summary, err := d.svc.Cart(ctx, ev.UserID)
	if err != nil {
		return err
	}
	if len(summary.Items) == 0 {
		return d.send(ctx, ev.ChatID, emptyCartMessage())
	}

	for _, pi := range summary.Items {
		if err := d.send(ctx, ev.ChatID, cartItemMessage(pi)); err != nil {
			return err
		}
	}
	return d.send(ctx, ev.ChatID, cartTotalMessage(summary))
}

func (d *Dispatcher) completeRegistration(ctx context.Context, userID int64, st conversation.State) error {
	return d.svc.SaveProfile(ctx, userID, model.Profile{
		FullName: st.Fields[conversation.FieldName],
		Phone:    st.Fields[conversation.FieldPhone],
		Address:  st.Fields[conversation.FieldAddress],
	})
}

func (d *Dispatcher) completeProduct(ctx context.Context, userID int64, st conversation.State) error {
	price, err := strconv.ParseInt(st.Fields[conversation.FieldPrice], 10, 64)
	if err != nil {
		return err
	}
	_, err = d.svc.AddToCart(ctx, userID, st.Fields[conversation.FieldLink], st.Fields[conversation.FieldSize], price)
	return err
}

func (d *Dispatcher) completeConfirmation(ctx context.Context, userID int64, _ conversation.State) error {
	_, err := d.svc.Settle(ctx, userID)
	return err
}

func (d *Dispatcher) isOperator(ev model.Event, u model.User) bool {
	return ev.ChatID == d.svc.OperatorChatID() || u.Role == model.RoleAdmin
}

// fail превращает ошибку в сообщение пользователю. Незаполненный профиль и пустая
// корзина сбрасывают форму, остальные ошибки оставляют её как есть.
func (d *Dispatcher) fail(ctx context.Context, ev model.Event, err error) error {
	var reply model.Message
	resetForm := false
	switch {
	case errors.Is(err, service.ErrProfileIncomplete):
		reply = registerFirstMessage()
		resetForm = true
	case errors.Is(err, service.ErrEmptyCart):
		reply = emptyCartMessage()
		resetForm = true
	case errors.Is(err, repository.ErrUserNotFound):
		reply = plain("Пользователь не найден.")
	default:
		d.logger.Error("event handling failed",
			zap.Int64("userID", ev.UserID),
			zap.String("action", ev.Action),
			zap.Error(err),
		)
		if sendErr := d.out.Send(ctx, ev.ChatID, plain("Что-то пошло не так. Попробуйте ещё раз.")); sendErr != nil {
			d.logger.Warn("failure notice not delivered", zap.Error(sendErr))
		}
		return err
	}

	if !resetForm {
		return d.send(ctx, ev.ChatID, reply)
	}

	if cancelErr := d.forms.Cancel(ctx, ev.UserID); cancelErr != nil {
		d.logger.Warn("form reset failed", zap.Int64("userID", ev.UserID), zap.Error(cancelErr))
	}
	reply.RemoveKeyboard = len(reply.Buttons) == 0
	return d.send(ctx, ev.ChatID, reply)
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, msg model.Message) error {
	return d.out.Send(ctx, chatID, msg)
}

func (d *Dispatcher) clearButtons(ctx context.Context, ev model.Event) {
	if ev.MessageID == 0 {
		return
	}
	if err := d.out.ClearButtons(ctx, ev.ChatID, ev.MessageID); err != nil {
		d.logger.Warn("clear buttons failed", zap.Int64("messageID", ev.MessageID), zap.Error(err))
	}
}

func isCommand(input, command string) bool {
	first, _, _ := strings.Cut(input, " ")
	name, _, _ := strings.Cut(first, "@")
	return name == command
}

// startPayload извлекает пригласившего из "/start <id>".
func startPayload(input string) *int64 {
	input = strings.TrimSpace(input)
	if !isCommand(input, "/start") {
		return nil
	}
	fields := strings.Fields(input)
	if len(fields) != 2 {
		return nil
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}
