package model

// Quote содержит расчёт одной позиции в локальной валюте.
type Quote struct {
	Local  int64
	Cost   int64
	Profit int64
	Bonus  int64
}

// PricedItem связывает позицию корзины с её расчётом.
type PricedItem struct {
	Item  CartItem
	Quote Quote
}

// OrderSummary описывает оформленный заказ. Не сохраняется, вычисляется при оформлении.
type OrderSummary struct {
	Reference string
	BuyerID   int64
	Rate      float64
	Items     []PricedItem
	Total     int64
	Profit    int64
	Bonus     int64
}
