package metrics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Will-Grindelwald/quant-trading/internal/event"
)

// Recorder adapts the pipeline's metric hooks onto the prometheus
// collectors. One stateless value serves the bus, the portfolio, the
// execution handler, and the live engine; a nil hook anywhere in the
// pipeline is a no-op, so the recorder is only wired where metrics are
// enabled.
type Recorder struct{}

// NewRecorder creates a recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// EventDispatched counts one fanned-out event. Signal events additionally
// feed the signals-generated counter.
func (r *Recorder) EventDispatched(eventType string) {
	EventsDispatched.WithLabelValues(eventType).Inc()
	if eventType == string(event.TypeSignal) {
		SignalsGenerated.Inc()
	}
}

// EventDropped counts an event lost to a full queue.
func (r *Recorder) EventDropped(eventType, subscriber string) {
	EventsDropped.WithLabelValues(eventType, subscriber).Inc()
}

// DispatchError counts a handler error or panic.
func (r *Recorder) DispatchError(subscriber string) {
	DispatchErrors.WithLabelValues(subscriber).Inc()
}

// HandlerLatency observes one handler execution.
func (r *Recorder) HandlerLatency(subscriber string, d time.Duration) {
	HandlerLatencySeconds.WithLabelValues(subscriber).Observe(d.Seconds())
}

// SignalRejected counts a portfolio rejection by reason.
func (r *Recorder) SignalRejected(reason string) {
	SignalsRejected.WithLabelValues(reason).Inc()
}

// OrderPlaced counts an order emitted by the portfolio.
func (r *Recorder) OrderPlaced(side string) {
	OrdersPlaced.WithLabelValues(side).Inc()
}

// FillApplied counts a fill applied to the account book.
func (r *Recorder) FillApplied(side string) {
	FillsApplied.WithLabelValues(side).Inc()
}

// OrderSubmitted counts an order accepted by the execution handler.
func (r *Recorder) OrderSubmitted(side string) {
	OrdersSubmitted.WithLabelValues(side).Inc()
}

// OrderFilled counts a filled order.
func (r *Recorder) OrderFilled(side string) {
	OrdersFilled.WithLabelValues(side).Inc()
}

// OrderCancelled counts a cancellation.
func (r *Recorder) OrderCancelled() {
	OrdersCancelled.Inc()
}

// OrderRejected counts an order refused by the live gates.
func (r *Recorder) OrderRejected() {
	OrdersRejected.Inc()
}

// EquityUpdated sets the equity gauges.
func (r *Recorder) EquityUpdated(equity, highWater, drawdown decimal.Decimal) {
	EquityCurrent.Set(equity.InexactFloat64())
	EquityHighWater.Set(highWater.InexactFloat64())
	DrawdownCurrent.Set(drawdown.InexactFloat64())
}

// PositionsUpdated sets the open-position gauge.
func (r *Recorder) PositionsUpdated(count int) {
	PositionsOpen.Set(float64(count))
}

// QueueDepthUpdated sets the bus backlog gauge.
func (r *Recorder) QueueDepthUpdated(depth int64) {
	QueueDepth.Set(float64(depth))
}

// Heartbeat stamps the liveness gauge with the current time.
func (r *Recorder) Heartbeat() {
	HeartbeatTimestamp.Set(float64(time.Now().Unix()))
}
