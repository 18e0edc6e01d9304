// Package types defines the domain entities shared across the trading framework.
package types

// Direction represents the intent of a signal.
type Direction int

const (
	DirectionHold Direction = iota
	DirectionBuy
	DirectionSell
)

func (d Direction) String() string {
	switch d {
	case DirectionBuy:
		return "BUY"
	case DirectionSell:
		return "SELL"
	default:
		return "HOLD"
	}
}

// Side represents the side of an order.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideSell {
		return "SELL"
	}
	return "BUY"
}

// SideFromDirection maps a tradable signal direction to an order side.
// HOLD has no side; callers must filter it out first.
func SideFromDirection(d Direction) Side {
	if d == DirectionSell {
		return SideSell
	}
	return SideBuy
}

// OrderType represents how an order is priced.
type OrderType int

const (
	OrderTypeLimit OrderType = iota
	OrderTypeMarket
)

func (t OrderType) String() string {
	if t == OrderTypeMarket {
		return "MARKET"
	}
	return "LIMIT"
}

// OrderStatus represents the state of an order.
type OrderStatus int

const (
	OrderPending OrderStatus = iota
	OrderSubmitted
	OrderPartiallyFilled
	OrderFilled
	OrderCancelled
	OrderRejected
)

func (s OrderStatus) String() string {
	switch s {
	case OrderPending:
		return "PENDING"
	case OrderSubmitted:
		return "SUBMITTED"
	case OrderPartiallyFilled:
		return "PARTIALLY_FILLED"
	case OrderFilled:
		return "FILLED"
	case OrderCancelled:
		return "CANCELLED"
	case OrderRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// IsFinal returns true if the order is in a terminal state.
func (s OrderStatus) IsFinal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected:
		return true
	default:
		return false
	}
}

// IsActive returns true while the order can still receive fills or be cancelled.
func (s OrderStatus) IsActive() bool {
	return s == OrderSubmitted || s == OrderPartiallyFilled
}

// Frequency represents bar periodicity.
type Frequency string

const (
	FrequencyHour Frequency = "1h"
	FrequencyDay  Frequency = "1d"
	FrequencyWeek Frequency = "1w"
)

// Valid reports whether the frequency is one of the supported values.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyHour, FrequencyDay, FrequencyWeek:
		return true
	default:
		return false
	}
}

// StrategyKind classifies a strategy by which symbols it watches.
type StrategyKind int

const (
	// KindEntry strategies scan the configured universe minus symbols the
	// strategy already holds.
	KindEntry StrategyKind = iota
	// KindExit strategies watch only symbols held by the strategy itself.
	KindExit
	// KindUniversalStop strategies watch every symbol held in the account.
	KindUniversalStop
)

func (k StrategyKind) String() string {
	switch k {
	case KindEntry:
		return "entry"
	case KindExit:
		return "exit"
	case KindUniversalStop:
		return "stop"
	default:
		return "unknown"
	}
}

// ParseStrategyKind converts a config string into a StrategyKind.
func ParseStrategyKind(s string) (StrategyKind, bool) {
	switch s {
	case "entry":
		return KindEntry, true
	case "exit":
		return KindExit, true
	case "stop", "universal_stop":
		return KindUniversalStop, true
	default:
		return KindEntry, false
	}
}
