// Package cart ведёт корзины покупателей: позиции, ожидающие оформления заказа.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/validation"
)

// ErrInvalidItem возвращается для позиции без ссылки или с ценой вне допустимого диапазона.
var ErrInvalidItem = errors.New("invalid cart item")

// Store описывает хранилище позиций корзины. Все операции ограничены одним покупателем.
type Store interface {
	AddCartItem(ctx context.Context, item model.CartItem) (int64, error)
	ListCartItems(ctx context.Context, buyerID int64) ([]model.CartItem, error)
	DeleteCartItem(ctx context.Context, buyerID, itemID int64) error
	DeleteCartItems(ctx context.Context, buyerID int64) error
}

// Ledger проверяет инварианты позиций и делегирует хранение Store.
type Ledger struct {
	store Store
}

// NewLedger создаёт корзину поверх хранилища.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Add добавляет позицию и возвращает её идентификатор. Пустой размер заменяется на "one size".
func (l *Ledger) Add(ctx context.Context, buyerID int64, link, size string, price int64) (int64, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return 0, fmt.Errorf("%w: empty link", ErrInvalidItem)
	}
	if price <= 0 || price > validation.MaxPrice {
		return 0, fmt.Errorf("%w: price %d", ErrInvalidItem, price)
	}

	size = strings.TrimSpace(size)
	if size == "" {
		size = model.SizeOneSize
	}

	id, err := l.store.AddCartItem(ctx, model.CartItem{
		BuyerID: buyerID,
		Link:    link,
		Size:    size,
		Price:   price,
	})
	if err != nil {
		return 0, fmt.Errorf("add cart item: %w", err)
	}
	return id, nil
}

// ListByBuyer возвращает позиции покупателя в порядке добавления.
func (l *Ledger) ListByBuyer(ctx context.Context, buyerID int64) ([]model.CartItem, error) {
	items, err := l.store.ListCartItems(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	return items, nil
}

// Remove удаляет позицию. Повторное удаление не считается ошибкой.
func (l *Ledger) Remove(ctx context.Context, buyerID, itemID int64) error {
	if err := l.store.DeleteCartItem(ctx, buyerID, itemID); err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	return nil
}

// RemoveAll очищает корзину покупателя.
func (l *Ledger) RemoveAll(ctx context.Context, buyerID int64) error {
	if err := l.store.DeleteCartItems(ctx, buyerID); err != nil {
		return fmt.Errorf("remove cart items: %w", err)
	}
	return nil
}
