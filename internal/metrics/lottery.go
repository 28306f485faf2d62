// Package metrics registers the Prometheus collectors of the engine.  All
// collectors are created with promauto on the default registry, which is
// served by promhttp at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkoutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_checkout_total",
			Help: "Checkout attempts by result",
		},
		[]string{"result"},
	)

	checkoutDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lottery_checkout_duration_ms",
			Help:    "Checkout duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"result"},
	)

	ticketsReserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lottery_tickets_reserved_total",
		Help: "Tickets moved from AVAILABLE to RESERVED",
	})

	orderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_order_transitions_total",
			Help: "Order transitions out of PENDING by target status and result",
		},
		[]string{"status", "result"},
	)

	reaperSweeps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lottery_reaper_sweeps_total",
		Help: "Expiry sweeps run",
	})

	reaperFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lottery_reaper_failures_total",
		Help: "Orders the reaper failed to expire",
	})

	reaperDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lottery_reaper_sweep_duration_ms",
		Help:    "Expiry sweep duration in milliseconds",
		Buckets: prometheus.ExponentialBuckets(5, 2, 12),
	})

	drawTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_draw_total",
			Help: "Draws recorded by result",
		},
		[]string{"result"},
	)

	prizeTickets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_prize_tickets_total",
			Help: "Sold tickets classified by prize tier",
		},
		[]string{"tier"},
	)

	outboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_outbox_publish_total",
			Help: "Outbox publish attempts by topic and result",
		},
		[]string{"topic", "result"},
	)

	consumedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_consumed_messages_total",
			Help: "Broker messages consumed by queue and outcome",
		},
		[]string{"queue", "outcome"},
	)
)

// RecordCheckout records one checkout call.  result is "success",
// "unavailable", "invalid", "round_closed" or "error".
func RecordCheckout(result string, tickets int, started time.Time) {
	checkoutTotal.WithLabelValues(result).Inc()
	checkoutDuration.WithLabelValues(result).Observe(float64(time.Since(started).Milliseconds()))
	if result == "success" {
		ticketsReserved.Add(float64(tickets))
	}
}

// RecordOrderTransition records an attempt to move an order to status.
func RecordOrderTransition(status, result string) {
	orderTransitions.WithLabelValues(status, result).Inc()
}

// RecordSweep records one reaper sweep and the orders it failed on.
func RecordSweep(failures int, started time.Time) {
	reaperSweeps.Inc()
	reaperFailures.Add(float64(failures))
	reaperDuration.Observe(float64(time.Since(started).Milliseconds()))
}

// RecordDraw records a draw and the tier of every classified ticket.
func RecordDraw(result string, tiers map[string]int) {
	drawTotal.WithLabelValues(result).Inc()
	for tier, n := range tiers {
		prizeTickets.WithLabelValues(tier).Add(float64(n))
	}
}

// RecordOutboxPublish records one outbox publish attempt.
func RecordOutboxPublish(topic string, ok bool) {
	res := "success"
	if !ok {
		res = "fail"
	}
	outboxPublished.WithLabelValues(topic, res).Inc()
}

// RecordConsumed records how a broker message was settled.
func RecordConsumed(queue, outcome string) {
	consumedMessages.WithLabelValues(queue, outcome).Inc()
}
