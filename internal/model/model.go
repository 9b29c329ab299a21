// Package model содержит доменные сущности бота-помощника по заказам.
package model

import "strings"

// Role описывает роль пользователя.
type Role string

const (
	RoleUser    Role = "user"
	RoleAdmin   Role = "admin"
	RoleBlocked Role = "blocked"
)

// Profile содержит данные доставки, собранные формой регистрации.
type Profile struct {
	FullName string
	Phone    string
	Address  string
}

// Complete сообщает, заполнены ли все поля профиля.
func (p Profile) Complete() bool {
	return strings.TrimSpace(p.FullName) != "" &&
		strings.TrimSpace(p.Phone) != "" &&
		strings.TrimSpace(p.Address) != ""
}

// User представляет пользователя чат-платформы.
type User struct {
	ID        int64
	Role      Role
	Profile   Profile
	Balance   int64
	InviterID *int64
}

// Blocked сообщает, заблокирован ли пользователь.
func (u User) Blocked() bool {
	return u.Role == RoleBlocked
}

// HasInviter сообщает, пришёл ли пользователь по реферальной ссылке.
func (u User) HasInviter() bool {
	return u.InviterID != nil
}

// SizeOneSize используется для товаров без размерной сетки.
const SizeOneSize = "one size"

// CartItem описывает позицию корзины, ожидающую оформления заказа.
type CartItem struct {
	ID      int64
	BuyerID int64
	Link    string
	Size    string
	// Price хранится в целых единицах иностранной валюты.
	Price int64
}

// Category описывает категорию товара, выбранную при добавлении в корзину.
type Category string

const (
	CategorySneakers Category = "sneakers"
	CategoryBoots    Category = "boots"
	CategoryTop      Category = "top"
	CategoryBottom   Category = "bottom"
	CategoryTech     Category = "tech"
	CategoryOneSize  Category = "onesize"
)

// Categories перечисляет категории в порядке показа в меню.
var Categories = []Category{
	CategorySneakers,
	CategoryBoots,
	CategoryTop,
	CategoryBottom,
	CategoryTech,
	CategoryOneSize,
}

// Valid сообщает, известна ли категория.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Sizeless сообщает, что у категории нет размерной сетки.
func (c Category) Sizeless() bool {
	return c == CategoryTech || c == CategoryOneSize
}
