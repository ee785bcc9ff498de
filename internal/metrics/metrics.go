// Package metrics exposes the bot's Prometheus counters on the default registry.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "carwash_bot"

var (
	Registrations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Accounts created through self-registration.",
	})
	Provisions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provisions_total",
		Help:      "Accounts created by the administrator.",
	})
	Extensions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subscription_extensions_total",
		Help:      "Subscription extensions by period in months.",
	}, []string{"months"})
	Cancellations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subscription_cancellations_total",
		Help:      "Subscription cancellations.",
	})
	Updates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "updates_total",
		Help:      "Telegram updates processed, by kind.",
	}, []string{"kind"})
	HandlerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "handler_errors_total",
		Help:      "Updates whose handling failed.",
	})
	RemindersSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reminders_sent_total",
		Help:      "Subscription expiry reminders delivered.",
	})
)

func ObserveExtension(months int) {
	Extensions.WithLabelValues(strconv.Itoa(months)).Inc()
}
