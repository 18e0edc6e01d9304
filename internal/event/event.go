// Package event implements the framework's event bus and timer service:
// typed events, a central bounded queue drained by one dispatcher, and
// per-subscriber bounded queues each drained by a dedicated worker.
package event

import (
	"time"

	"github.com/Will-Grindelwald/quant-trading/internal/types"
)

// Type identifies an event kind for subscription filtering.
type Type string

const (
	TypeMarket Type = "market"
	TypeSignal Type = "signal"
	TypeOrder  Type = "order"
	TypeFill   Type = "fill"
	TypeTimer  Type = "timer"
)

// Event is the value passed through the bus. Payloads are value types;
// subscribers never share mutable state through an event.
type Event interface {
	Type() Type
	Time() time.Time
}

// MarketEvent carries one bar for one symbol.
type MarketEvent struct {
	Symbol string
	Bar    types.Bar
}

func (e MarketEvent) Type() Type      { return TypeMarket }
func (e MarketEvent) Time() time.Time { return e.Bar.Timestamp }

// SignalEvent carries a strategy signal.
type SignalEvent struct {
	Signal types.Signal
}

func (e SignalEvent) Type() Type      { return TypeSignal }
func (e SignalEvent) Time() time.Time { return e.Signal.Timestamp }

// OrderEvent hands an order to execution. The order is owned by the account
// book; execution writes status transitions, nothing else mutates it.
type OrderEvent struct {
	Order *types.Order
}

func (e OrderEvent) Type() Type      { return TypeOrder }
func (e OrderEvent) Time() time.Time { return e.Order.CreatedTime }

// FillEvent reports an execution back to the portfolio.
type FillEvent struct {
	Fill types.Fill
}

func (e FillEvent) Type() Type      { return TypeFill }
func (e FillEvent) Time() time.Time { return e.Fill.Timestamp }

// TimerEvent is published by timer callbacks that want bus fan-out.
type TimerEvent struct {
	TimerID   string
	Interval  time.Duration
	Timestamp time.Time
}

func (e TimerEvent) Type() Type      { return TypeTimer }
func (e TimerEvent) Time() time.Time { return e.Timestamp }
