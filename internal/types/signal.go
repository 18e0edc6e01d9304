package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Signal is a strategy's directional intent for one symbol.
// The reason string should be detailed enough for manual replay.
type Signal struct {
	ID         string
	StrategyID string
	Symbol     string
	Direction  Direction
	// Strength is the strategy's confidence in [0,1]. Sizing may scale by it.
	Strength  decimal.Decimal
	Timestamp time.Time
	// Price is the reference price at decision time; orders are priced off it.
	Price  decimal.Decimal
	Reason string
}

// NewSignal constructs a Signal with a fresh id and validates it.
func NewSignal(strategyID, symbol string, direction Direction, strength decimal.Decimal, ts time.Time, price decimal.Decimal, reason string) (Signal, error) {
	s := Signal{
		ID:         uuid.NewString(),
		StrategyID: strategyID,
		Symbol:     symbol,
		Direction:  direction,
		Strength:   strength,
		Timestamp:  ts,
		Price:      price,
		Reason:     reason,
	}
	if err := s.Validate(); err != nil {
		return Signal{}, err
	}
	return s, nil
}

// Validate checks the field invariants: non-empty symbol, strength in [0,1],
// positive price.
func (s Signal) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidSignal)
	}
	if s.StrategyID == "" {
		return fmt.Errorf("%w: empty strategy id", ErrInvalidSignal)
	}
	if s.Strength.IsNegative() || s.Strength.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: strength %s outside [0,1]", ErrInvalidSignal, s.Strength)
	}
	if !s.Price.IsPositive() {
		return fmt.Errorf("%w: price %s", ErrInvalidSignal, s.Price)
	}
	return nil
}
