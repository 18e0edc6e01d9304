package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the net holding for one symbol. Quantity is signed; the
// framework trades long-only but the cost-basis math handles both signs.
type Position struct {
	Symbol     string
	Quantity   int64
	AvgPrice   decimal.Decimal
	StrategyID string
	UpdateTime time.Time
}

// ApplyDelta adjusts the position by deltaQty shares executed at price and
// updates the cost basis:
//
//   - same-sign add (or opening from zero): volume-weighted average, taken
//     as an absolute value so the formula holds for short inventory too;
//   - sign flip: basis resets to the fill price;
//   - reduction toward zero: basis unchanged.
func (p *Position) ApplyDelta(deltaQty int64, price decimal.Decimal, ts time.Time) {
	oldQty := p.Quantity
	newQty := oldQty + deltaQty

	sameSign := (oldQty >= 0 && deltaQty > 0) || (oldQty <= 0 && deltaQty < 0)
	switch {
	case sameSign && newQty != 0:
		oldAmt := p.AvgPrice.Mul(decimal.NewFromInt(oldQty))
		addAmt := price.Mul(decimal.NewFromInt(deltaQty))
		p.AvgPrice = oldAmt.Add(addAmt).Abs().Div(decimal.NewFromInt(newQty).Abs())
	case newQty*oldQty < 0:
		p.AvgPrice = price
	}

	p.Quantity = newQty
	p.UpdateTime = ts
}

// IsEmpty reports whether the position has no shares.
func (p *Position) IsEmpty() bool {
	return p.Quantity == 0
}

// MarketValue returns quantity*price at the given mark.
func (p *Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(p.Quantity))
}

// UnrealizedPnL returns (price-avg)*quantity at the given mark.
func (p *Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return price.Sub(p.AvgPrice).Mul(decimal.NewFromInt(p.Quantity))
}
