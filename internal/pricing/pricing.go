// Package pricing переводит цену товара из иностранной валюты в локальную
// и считает реферальный бонус.
package pricing

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/orderbot/internal/model"
)

// Config содержит коэффициенты ценообразования.
type Config struct {
	Markup        float64
	ServiceMarkup float64
	Surcharge     float64
	BonusRate     float64
	BonusShare    float64
}

// DefaultConfig возвращает коэффициенты, с которыми работает магазин.
func DefaultConfig() Config {
	return Config{
		Markup:        1.05,
		ServiceMarkup: 1.05,
		Surcharge:     1000,
		BonusRate:     0.05,
		BonusShare:    0.2,
	}
}

// Calculator выполняет расчёты в десятичной арифметике, чтобы результат
// не зависел от погрешностей float64. Округление банковское.
type Calculator struct {
	markup        decimal.Decimal
	serviceMarkup decimal.Decimal
	surcharge     decimal.Decimal
	bonusRate     decimal.Decimal
	bonusShare    decimal.Decimal
}

// New создаёт калькулятор с указанными коэффициентами.
func New(cfg Config) *Calculator {
	return &Calculator{
		markup:        decimal.NewFromFloat(cfg.Markup),
		serviceMarkup: decimal.NewFromFloat(cfg.ServiceMarkup),
		surcharge:     decimal.NewFromFloat(cfg.Surcharge),
		bonusRate:     decimal.NewFromFloat(cfg.BonusRate),
		bonusShare:    decimal.NewFromFloat(cfg.BonusShare),
	}
}

// LocalPrice возвращает round(markup * serviceMarkup * price * rate + surcharge).
func (c *Calculator) LocalPrice(price int64, rate float64) int64 {
	v := c.markup.Mul(c.serviceMarkup).Mul(converted(price, rate)).Add(c.surcharge)
	return round(v)
}

// Bonus возвращает round(markup * bonusRate * price * rate * bonusShare).
func (c *Calculator) Bonus(price int64, rate float64) int64 {
	v := c.markup.Mul(c.bonusRate).Mul(converted(price, rate)).Mul(c.bonusShare)
	return round(v)
}

// Cost возвращает стоимость товара в локальной валюте без наценок.
func (c *Calculator) Cost(price int64, rate float64) int64 {
	return round(converted(price, rate))
}

// Quote считает позицию. Бонус учитывается, только если у покупателя есть пригласивший.
func (c *Calculator) Quote(price int64, rate float64, withBonus bool) model.Quote {
	q := model.Quote{
		Local: c.LocalPrice(price, rate),
		Cost:  c.Cost(price, rate),
	}
	if withBonus {
		q.Bonus = c.Bonus(price, rate)
	}
	q.Profit = q.Local - q.Cost - q.Bonus
	return q
}

// Summarize считает все позиции заказа и итоговые суммы.
func (c *Calculator) Summarize(items []model.CartItem, rate float64, withBonus bool) model.OrderSummary {
	summary := model.OrderSummary{
		Rate:  rate,
		Items: make([]model.PricedItem, 0, len(items)),
	}

	for _, item := range items {
		q := c.Quote(item.Price, rate, withBonus)
		summary.Items = append(summary.Items, model.PricedItem{Item: item, Quote: q})
		summary.Total += q.Local
		summary.Profit += q.Profit
		summary.Bonus += q.Bonus
	}

	return summary
}

func converted(price int64, rate float64) decimal.Decimal {
	return decimal.NewFromInt(price).Mul(decimal.NewFromFloat(rate))
}

var (
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
	minInt64 = decimal.NewFromInt(math.MinInt64)
)

// round насыщает результат на границах int64: IntPart молча переполняется.
func round(v decimal.Decimal) int64 {
	v = v.RoundBank(0)
	switch {
	case v.GreaterThan(maxInt64):
		return math.MaxInt64
	case v.LessThan(minInt64):
		return math.MinInt64
	}
	return v.IntPart()
}
