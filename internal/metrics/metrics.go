// Package metrics exposes prometheus instrumentation for the trading
// pipeline and the HTTP server that serves it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quant_events_dispatched_total",
			Help: "Events fanned out by the bus, by event type.",
		},
		[]string{"type"},
	)

	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quant_events_dropped_total",
			Help: "Events lost to full queues, by event type and subscriber.",
		},
		[]string{"type", "subscriber"},
	)

	DispatchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quant_dispatch_errors_total",
			Help: "Handler errors and panics, by subscriber.",
		},
		[]string{"subscriber"},
	)

	HandlerLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quant_handler_latency_seconds",
			Help:    "Event handler execution time, by subscriber.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subscriber"},
	)

	SignalsGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quant_signals_generated_total",
			Help: "Strategy signals seen on the bus.",
		},
	)

	SignalsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quant_signals_rejected_total",
			Help: "Signals the portfolio refused, by reason.",
		},
		[]string{"reason"},
	)

	OrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quant_orders_placed_total",
			Help: "Orders the portfolio emitted, by side.",
		},
		[]string{"side"},
	)

	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quant_orders_submitted_total",
			Help: "Orders accepted by the execution handler, by side.",
		},
		[]string{"side"},
	)

	OrdersFilled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quant_orders_filled_total",
			Help: "Orders filled, by side.",
		},
		[]string{"side"},
	)

	OrdersCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quant_orders_cancelled_total",
			Help: "Orders cancelled before fill.",
		},
	)

	OrdersRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quant_orders_rejected_total",
			Help: "Orders refused by the live order gates.",
		},
	)

	FillsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quant_fills_applied_total",
			Help: "Fills applied to the account book, by side.",
		},
		[]string{"side"},
	)

	EquityCurrent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quant_equity",
			Help: "Account equity marked at the latest closes.",
		},
	)

	EquityHighWater = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quant_equity_high_water",
			Help: "Session equity high-water mark.",
		},
	)

	DrawdownCurrent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quant_drawdown",
			Help: "Fractional drawdown off the high-water mark.",
		},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quant_positions_open",
			Help: "Open position count.",
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quant_event_queue_depth",
			Help: "Events accepted by the bus but not yet handled.",
		},
	)

	HeartbeatTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quant_heartbeat_timestamp_seconds",
			Help: "Unix time of the last liveness tick.",
		},
	)

	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quant_build_info",
			Help: "Build metadata, value fixed at 1.",
		},
		[]string{"version", "commit", "date"},
	)
)

func init() {
	prometheus.MustRegister(
		EventsDispatched,
		EventsDropped,
		DispatchErrors,
		HandlerLatencySeconds,
		SignalsGenerated,
		SignalsRejected,
		OrdersPlaced,
		OrdersSubmitted,
		OrdersFilled,
		OrdersCancelled,
		OrdersRejected,
		FillsApplied,
		EquityCurrent,
		EquityHighWater,
		DrawdownCurrent,
		PositionsOpen,
		QueueDepth,
		HeartbeatTimestamp,
		BuildInfo,
	)
}

// SetBuildInfo pins the build metadata series.
func SetBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
}
