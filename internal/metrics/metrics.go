// Package metrics содержит Prometheus-метрики сервиса.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExchangeRate хранит последний успешно полученный курс.
	ExchangeRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orderbot_exchange_rate",
		Help: "Last successfully fetched exchange rate.",
	})

	// RateRefreshFailures считает неудачные обновления курса.
	RateRefreshFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orderbot_rate_refresh_failures_total",
		Help: "Number of failed exchange rate refreshes.",
	})

	// Settlements считает оформленные заказы.
	Settlements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orderbot_settlements_total",
		Help: "Number of settled orders.",
	})

	// SettledItems считает позиции оформленных заказов.
	SettledItems = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orderbot_settled_items_total",
		Help: "Number of cart items settled into orders.",
	})

	// NotifyFailures считает неотправленные уведомления по типу получателя.
	NotifyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderbot_notify_failures_total",
		Help: "Number of notifications that could not be delivered.",
	}, []string{"recipient"})

	// Events считает входящие события по типу.
	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderbot_events_total",
		Help: "Number of inbound chat events.",
	}, []string{"kind"})
)
