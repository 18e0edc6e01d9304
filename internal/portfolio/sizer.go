package portfolio

import (
	"github.com/shopspring/decimal"
)

// lotSize is the A-share board lot; order quantities are whole multiples.
const lotSize = 100

// SizeMethod selects how a BUY signal is turned into a notional amount.
type SizeMethod string

const (
	SizeFixedAmount        SizeMethod = "fixed_amount"
	SizePercentOfPortfolio SizeMethod = "percent_of_portfolio"
	SizeSignalStrength     SizeMethod = "signal_strength"
)

// Sizer converts signals into lot-rounded order quantities.
type Sizer struct {
	method         SizeMethod
	defaultSize    decimal.Decimal
	maxPositionPct decimal.Decimal
}

// NewSizer builds a sizer. Unknown methods fall back to fixed_amount.
func NewSizer(method SizeMethod, defaultSize, maxPositionPct decimal.Decimal) *Sizer {
	return &Sizer{
		method:         method,
		defaultSize:    defaultSize,
		maxPositionPct: maxPositionPct,
	}
}

// Amount returns the target notional before lot rounding.
func (s *Sizer) Amount(strength, totalValue decimal.Decimal) decimal.Decimal {
	switch s.method {
	case SizePercentOfPortfolio:
		return totalValue.Mul(s.maxPositionPct)
	case SizeSignalStrength:
		return s.defaultSize.Mul(strength)
	default:
		return s.defaultSize
	}
}

// Quantity rounds amount down to whole lots at price. Zero means the amount
// buys less than one lot and the signal must be rejected.
func (s *Sizer) Quantity(amount, price decimal.Decimal) int64 {
	if !price.IsPositive() || !amount.IsPositive() {
		return 0
	}
	shares := amount.Div(price).IntPart()
	shares -= shares % lotSize
	if shares < lotSize {
		return 0
	}
	return shares
}
