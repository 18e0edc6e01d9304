package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Fill is the execution of all or part of an order. Immutable.
type Fill struct {
	ID         string
	OrderID    string
	Symbol     string
	Side       Side
	Quantity   int64
	Price      decimal.Decimal
	Commission decimal.Decimal
	Timestamp  time.Time
	StrategyID string
}

// NewFill validates and constructs a Fill with a fresh id.
func NewFill(orderID, symbol string, side Side, quantity int64, price, commission decimal.Decimal, ts time.Time, strategyID string) (Fill, error) {
	if quantity <= 0 {
		return Fill{}, fmt.Errorf("%w: fill quantity %d", ErrOverFill, quantity)
	}
	if !price.IsPositive() {
		return Fill{}, fmt.Errorf("%w: fill price %s", ErrInvalidBar, price)
	}
	if commission.IsNegative() {
		return Fill{}, fmt.Errorf("%w: negative commission %s", ErrInvalidBar, commission)
	}
	return Fill{
		ID:         uuid.NewString(),
		OrderID:    orderID,
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		Commission: commission,
		Timestamp:  ts,
		StrategyID: strategyID,
	}, nil
}

// Amount returns quantity*price before commission.
func (f Fill) Amount() decimal.Decimal {
	return f.Price.Mul(decimal.NewFromInt(f.Quantity))
}

// NetAmount is the cash impact of the fill: quantity*price+commission for a
// BUY (cash out), quantity*price-commission for a SELL (cash in).
func (f Fill) NetAmount() decimal.Decimal {
	if f.Side == SideBuy {
		return f.Amount().Add(f.Commission)
	}
	return f.Amount().Sub(f.Commission)
}
