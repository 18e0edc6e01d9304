package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeStatus marks whether a trade's open leg has been matched by a close.
type TradeStatus int

const (
	TradeOpen TradeStatus = iota
	TradeClosed
)

func (s TradeStatus) String() string {
	if s == TradeClosed {
		return "CLOSED"
	}
	return "OPEN"
}

// Trade is a matched open/close pair for one (symbol, strategy), the unit of
// realized pnl accounting.
type Trade struct {
	ID         string
	Symbol     string
	StrategyID string
	Status     TradeStatus

	BuyFillID  string
	BuyTime    time.Time
	BuyPrice   decimal.Decimal
	BuyQty     int64
	SellFillID string
	SellTime   time.Time
	SellPrice  decimal.Decimal
	SellQty    int64

	TotalCommission decimal.Decimal
	RealizedPnL     decimal.Decimal
}

// NewTradeFromBuy opens a trade from the buy-side fill.
func NewTradeFromBuy(f Fill) *Trade {
	return &Trade{
		ID:              uuid.NewString(),
		Symbol:          f.Symbol,
		StrategyID:      f.StrategyID,
		Status:          TradeOpen,
		BuyFillID:       f.ID,
		BuyTime:         f.Timestamp,
		BuyPrice:        f.Price,
		BuyQty:          f.Quantity,
		TotalCommission: f.Commission,
	}
}

// Close matches the sell-side fill against the open leg and realizes pnl:
// (sell-buy)*min(buyQty, sellQty) - total commission.
func (t *Trade) Close(f Fill) error {
	if t.Status == TradeClosed {
		return fmt.Errorf("%w: trade %s", ErrTradeClosed, t.ID)
	}
	if f.Symbol != t.Symbol {
		return fmt.Errorf("%w: trade %s has %s, fill has %s", ErrSymbolMismatch, t.ID, t.Symbol, f.Symbol)
	}
	t.SellFillID = f.ID
	t.SellTime = f.Timestamp
	t.SellPrice = f.Price
	t.SellQty = f.Quantity
	t.TotalCommission = t.TotalCommission.Add(f.Commission)

	matched := t.BuyQty
	if f.Quantity < matched {
		matched = f.Quantity
	}
	t.RealizedPnL = t.SellPrice.Sub(t.BuyPrice).
		Mul(decimal.NewFromInt(matched)).
		Sub(t.TotalCommission)
	t.Status = TradeClosed
	return nil
}

// IsWinning reports whether a closed trade realized a profit.
func (t *Trade) IsWinning() bool {
	return t.Status == TradeClosed && t.RealizedPnL.IsPositive()
}

// HoldingPeriod returns the open-to-close duration, zero while open.
func (t *Trade) HoldingPeriod() time.Duration {
	if t.Status != TradeClosed {
		return 0
	}
	return t.SellTime.Sub(t.BuyTime)
}
