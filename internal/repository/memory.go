package repository

import (
	"context"
	"sync"

	"github.com/mmeshcher/orderbot/internal/model"
)

// MemoryRepository хранит пользователей и корзины в памяти процесса.
// Используется, когда DATABASE_URI не задан, и в тестах.
type MemoryRepository struct {
	mu     sync.Mutex
	users  map[int64]model.User
	items  []model.CartItem
	nextID int64
}

// NewMemoryRepository создаёт пустое in-memory хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[int64]model.User)}
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error { return nil }

// EnsureUser создаёт пользователя, если его ещё нет.
func (r *MemoryRepository) EnsureUser(ctx context.Context, id int64, inviterID *int64) (model.User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[id]; ok {
		return u, false, nil
	}

	u := model.User{ID: id, Role: model.RoleUser}
	if inviterID != nil {
		inviter := *inviterID
		u.InviterID = &inviter
	}
	r.users[id] = u
	return u, true, nil
}

// GetUser возвращает пользователя по идентификатору.
func (r *MemoryRepository) GetUser(ctx context.Context, id int64) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return u, nil
}

// SetRole меняет роль пользователя.
func (r *MemoryRepository) SetRole(ctx context.Context, id int64, role model.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Role = role
	r.users[id] = u
	return nil
}

// UpdateProfile записывает все поля профиля.
func (r *MemoryRepository) UpdateProfile(ctx context.Context, id int64, p model.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Profile = p
	r.users[id] = u
	return nil
}

// AddBonus увеличивает баланс пользователя.
func (r *MemoryRepository) AddBonus(ctx context.Context, id int64, amount int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return 0, ErrUserNotFound
	}
	u.Balance += amount
	r.users[id] = u
	return u.Balance, nil
}

// ResetBalance обнуляет баланс и возвращает прежнее значение.
func (r *MemoryRepository) ResetBalance(ctx context.Context, id int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return 0, ErrUserNotFound
	}
	previous := u.Balance
	u.Balance = 0
	r.users[id] = u
	return previous, nil
}

// AddCartItem сохраняет позицию корзины.
func (r *MemoryRepository) AddCartItem(ctx context.Context, item model.CartItem) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	item.ID = r.nextID
	r.items = append(r.items, item)
	return item.ID, nil
}

// ListCartItems возвращает позиции покупателя в порядке добавления.
func (r *MemoryRepository) ListCartItems(ctx context.Context, buyerID int64) ([]model.CartItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.CartItem
	for _, it := range r.items {
		if it.BuyerID == buyerID {
			res = append(res, it)
		}
	}
	return res, nil
}

// DeleteCartItem удаляет позицию покупателя, если она есть.
func (r *MemoryRepository) DeleteCartItem(ctx context.Context, buyerID, itemID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = filterItems(r.items, func(it model.CartItem) bool {
		return it.ID == itemID && it.BuyerID == buyerID
	})
	return nil
}

// DeleteCartItems очищает корзину покупателя.
func (r *MemoryRepository) DeleteCartItems(ctx context.Context, buyerID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = filterItems(r.items, func(it model.CartItem) bool {
		return it.BuyerID == buyerID
	})
	return nil
}

func filterItems(items []model.CartItem, drop func(model.CartItem) bool) []model.CartItem {
	kept := items[:0]
	for _, it := range items {
		if !drop(it) {
			kept = append(kept, it)
		}
	}
	return kept
}
