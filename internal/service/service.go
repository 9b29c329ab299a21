// Package service реализует бизнес-логику бота: корзину, оформление заказа,
// реферальные бонусы и вывод бонусов.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/cart"
	"github.com/mmeshcher/orderbot/internal/metrics"
	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/pricing"
	"github.com/mmeshcher/orderbot/internal/repository"
)

var (
	// ErrProfileIncomplete возвращается, если покупатель не заполнил профиль.
	ErrProfileIncomplete = errors.New("profile incomplete")
	// ErrEmptyCart возвращается при попытке оформить пустую корзину.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidAmount возвращается для неположительной суммы бонуса.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrEmptyBalance возвращается при запросе вывода с нулевого баланса.
	ErrEmptyBalance = errors.New("balance is empty")
	// ErrSelfInvite сообщает о попытке пригласить самого себя. Наружу не возвращается.
	ErrSelfInvite = errors.New("user cannot invite themselves")
)

// Repository описывает контракт доступа к пользователям, используемый сервисом.
type Repository interface {
	Close() error
	EnsureUser(ctx context.Context, id int64, inviterID *int64) (model.User, bool, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	UpdateProfile(ctx context.Context, id int64, p model.Profile) error
	AddBonus(ctx context.Context, id int64, amount int64) (int64, error)
	ResetBalance(ctx context.Context, id int64) (int64, error)
}

// Messenger отправляет сообщения в чат.
type Messenger interface {
	Send(ctx context.Context, chatID int64, msg model.Message) error
}

// RateReader отдаёт текущий курс.
type RateReader interface {
	Current() float64
}

// Service содержит бизнес-логику оформления заказов.
type Service struct {
	repo       Repository
	cart       *cart.Ledger
	rates      RateReader
	calc       *pricing.Calculator
	messenger  Messenger
	operatorID int64
	logger     *zap.Logger
}

// NewService создаёт сервис. operatorChatID - чат, куда уходят заказы и запросы на выплату.
func NewService(
	repo Repository,
	ledger *cart.Ledger,
	rates RateReader,
	calc *pricing.Calculator,
	messenger Messenger,
	operatorChatID int64,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:       repo,
		cart:       ledger,
		rates:      rates,
		calc:       calc,
		messenger:  messenger,
		operatorID: operatorChatID,
		logger:     logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// OperatorChatID возвращает чат оператора.
func (s *Service) OperatorChatID() int64 {
	return s.operatorID
}

// EnsureUser создаёт пользователя при первом обращении. Приглашение самого себя
// и приглашение от неизвестного пользователя игнорируются.
func (s *Service) EnsureUser(ctx context.Context, id int64, inviterID *int64) (model.User, bool, error) {
	if inviterID != nil && *inviterID == id {
		s.logger.Debug("ignoring invite", zap.Int64("userID", id), zap.Error(ErrSelfInvite))
		inviterID = nil
	}
	if inviterID != nil {
		_, err := s.repo.GetUser(ctx, *inviterID)
		switch {
		case errors.Is(err, repository.ErrUserNotFound):
			s.logger.Debug("ignoring invite from unknown user", zap.Int64("userID", id), zap.Int64("inviterID", *inviterID))
			inviterID = nil
		case err != nil:
			return model.User{}, false, fmt.Errorf("get inviter: %w", err)
		}
	}

	u, created, err := s.repo.EnsureUser(ctx, id, inviterID)
	if err != nil {
		return model.User{}, false, fmt.Errorf("ensure user: %w", err)
	}
	if created {
		s.logger.Info("user created", zap.Int64("userID", id), zap.Bool("invited", u.HasInviter()))
	}
	return u, created, nil
}

// GetUser возвращает пользователя.
func (s *Service) GetUser(ctx context.Context, id int64) (model.User, error) {
	return s.repo.GetUser(ctx, id)
}

// SaveProfile записывает профиль, собранный формой регистрации.
func (s *Service) SaveProfile(ctx context.Context, id int64, p model.Profile) error {
	if err := s.repo.UpdateProfile(ctx, id, p); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// AddToCart добавляет товар в корзину покупателя.
func (s *Service) AddToCart(ctx context.Context, buyerID int64, link, size string, price int64) (int64, error) {
	return s.cart.Add(ctx, buyerID, link, size, price)
}

// Cart возвращает корзину с ценами по текущему курсу.
func (s *Service) Cart(ctx context.Context, buyerID int64) (model.OrderSummary, error) {
	items, err := s.cart.ListByBuyer(ctx, buyerID)
	if err != nil {
		return model.OrderSummary{}, err
	}

	summary := s.calc.Summarize(items, s.rates.Current(), false)
	summary.BuyerID = buyerID
	return summary, nil
}

// DeleteItem удаляет позицию из корзины. Повторное удаление не ошибка.
func (s *Service) DeleteItem(ctx context.Context, buyerID, itemID int64) error {
	return s.cart.Remove(ctx, buyerID, itemID)
}

// ClearCart удаляет все позиции из корзины покупателя.
func (s *Service) ClearCart(ctx context.Context, buyerID int64) error {
	return s.cart.RemoveAll(ctx, buyerID)
}

// CanConfirm проверяет, можно ли начать подтверждение заказа.
func (s *Service) CanConfirm(ctx context.Context, buyerID int64) error {
	u, err := s.repo.GetUser(ctx, buyerID)
	if err != nil {
		return fmt.Errorf("get buyer: %w", err)
	}
	if !u.Profile.Complete() {
		return ErrProfileIncomplete
	}

	items, err := s.cart.ListByBuyer(ctx, buyerID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return ErrEmptyCart
	}
	return nil
}

// Settle оформляет корзину покупателя: уведомляет оператора о каждой позиции,
// удаляет позиции из корзины и сообщает покупателю итог. Ошибки доставки
// уведомлений не прерывают оформление.
func (s *Service) Settle(ctx context.Context, buyerID int64) (model.OrderSummary, error) {
	buyer, err := s.repo.GetUser(ctx, buyerID)
	if err != nil {
		return model.OrderSummary{}, fmt.Errorf("get buyer: %w", err)
	}
	if !buyer.Profile.Complete() {
		return model.OrderSummary{}, ErrProfileIncomplete
	}

	items, err := s.cart.ListByBuyer(ctx, buyerID)
	if err != nil {
		return model.OrderSummary{}, err
	}
	if len(items) == 0 {
		return model.OrderSummary{}, ErrEmptyCart
	}

	summary := s.calc.Summarize(items, s.rates.Current(), buyer.HasInviter())
	summary.Reference = uuid.NewString()
	summary.BuyerID = buyerID

	log := s.logger.With(zap.Int64("userID", buyerID), zap.String("reference", summary.Reference))

	s.notify(ctx, log, "operator", s.operatorID, orderHeaderMessage(summary, buyer))

	for _, pi := range summary.Items {
		s.notify(ctx, log.With(zap.Int64("itemID", pi.Item.ID)), "operator", s.operatorID, orderItemMessage(pi, buyer.InviterID))

		if err := s.cart.Remove(ctx, buyerID, pi.Item.ID); err != nil {
			return model.OrderSummary{}, err
		}
	}

	s.notify(ctx, log, "operator", s.operatorID, orderTotalMessage(summary))
	s.notify(ctx, log, "buyer", buyerID, orderConfirmedMessage(summary))

	metrics.Settlements.Inc()
	metrics.SettledItems.Add(float64(len(summary.Items)))
	log.Info("order settled",
		zap.Int("items", len(summary.Items)),
		zap.Int64("total", summary.Total),
		zap.Float64("rate", summary.Rate),
	)

	return summary, nil
}

// GrantBonus начисляет пригласившему бонус за позицию заказа и уведомляет его.
func (s *Service) GrantBonus(ctx context.Context, inviterID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	balance, err := s.repo.AddBonus(ctx, inviterID, amount)
	if err != nil {
		return 0, fmt.Errorf("grant bonus: %w", err)
	}

	log := s.logger.With(zap.Int64("userID", inviterID))
	log.Info("bonus granted", zap.Int64("amount", amount), zap.Int64("balance", balance))
	s.notify(ctx, log, "inviter", inviterID, bonusGrantedMessage(amount, balance))

	return balance, nil
}

// RequestWithdraw передаёт оператору запрос на выплату всего баланса.
func (s *Service) RequestWithdraw(ctx context.Context, userID int64) (int64, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("get user: %w", err)
	}
	if u.Balance <= 0 {
		return 0, ErrEmptyBalance
	}

	log := s.logger.With(zap.Int64("userID", userID))
	log.Info("withdraw requested", zap.Int64("balance", u.Balance))
	s.notify(ctx, log, "operator", s.operatorID, withdrawRequestMessage(u))

	return u.Balance, nil
}

// Withdraw обнуляет баланс после выплаты и уведомляет пользователя.
func (s *Service) Withdraw(ctx context.Context, userID int64) (int64, error) {
	paid, err := s.repo.ResetBalance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("withdraw: %w", err)
	}

	log := s.logger.With(zap.Int64("userID", userID))
	log.Info("balance withdrawn", zap.Int64("amount", paid))
	if paid > 0 {
		s.notify(ctx, log, "user", userID, withdrawDoneMessage(paid))
	}

	return paid, nil
}

// notify отправляет сообщение, не прерывая вызывающего при ошибке.
func (s *Service) notify(ctx context.Context, log *zap.Logger, recipient string, chatID int64, msg model.Message) {
	if err := s.messenger.Send(ctx, chatID, msg); err != nil {
		metrics.NotifyFailures.WithLabelValues(recipient).Inc()
		log.Warn("notification failed", zap.String("recipient", recipient), zap.Error(err))
	}
}
