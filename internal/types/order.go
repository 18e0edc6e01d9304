package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is a sized trading decision handed to execution.
//
// Status machine:
//
//	PENDING -> SUBMITTED -> (PARTIALLY_FILLED)* -> FILLED | CANCELLED | REJECTED
//
// Terminal states reject further fills and cancels.
type Order struct {
	ID         string
	Symbol     string
	Side       Side
	Type       OrderType
	Quantity   int64
	Price      decimal.Decimal
	StrategyID string

	Status        OrderStatus
	CreatedTime   time.Time
	SubmittedTime time.Time
	FilledTime    time.Time

	FilledQuantity int64
	// FilledAmount accumulates quantity*price over fills, before commission.
	FilledAmount decimal.Decimal

	RejectReason string
}

// NewLimitOrder constructs a PENDING limit order with a generated id.
func NewLimitOrder(symbol string, side Side, quantity int64, price decimal.Decimal, strategyID string, ts time.Time) (*Order, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrInvalidSignal)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity %d", ErrLotTooSmall, quantity)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: price %s", ErrInvalidBar, price)
	}
	return &Order{
		ID:          generateOrderID(ts),
		Symbol:      symbol,
		Side:        side,
		Type:        OrderTypeLimit,
		Quantity:    quantity,
		Price:       price,
		StrategyID:  strategyID,
		Status:      OrderPending,
		CreatedTime: ts,
	}, nil
}

// generateOrderID creates a unique, time-prefixed order id.
func generateOrderID(ts time.Time) string {
	return fmt.Sprintf("%s-%s", ts.Format("20060102-150405"), uuid.New().String()[:8])
}

// Submit transitions PENDING -> SUBMITTED and stamps the submit time.
func (o *Order) Submit(ts time.Time) error {
	if o.Status != OrderPending {
		return fmt.Errorf("%w: %s -> SUBMITTED", ErrInvalidTransition, o.Status)
	}
	o.Status = OrderSubmitted
	o.SubmittedTime = ts
	return nil
}

// Cancel transitions an active order to CANCELLED.
func (o *Order) Cancel() error {
	if o.Status.IsFinal() {
		return fmt.Errorf("%w: %s", ErrOrderFinal, o.Status)
	}
	if !o.Status.IsActive() {
		return fmt.Errorf("%w: %s -> CANCELLED", ErrInvalidTransition, o.Status)
	}
	o.Status = OrderCancelled
	return nil
}

// Reject moves a non-terminal order to REJECTED with a reason.
func (o *Order) Reject(reason string) error {
	if o.Status.IsFinal() {
		return fmt.Errorf("%w: %s", ErrOrderFinal, o.Status)
	}
	o.Status = OrderRejected
	o.RejectReason = reason
	return nil
}

// ApplyFill records an execution against the order and advances its status.
// The fill quantity must not exceed the remaining quantity.
func (o *Order) ApplyFill(quantity int64, price decimal.Decimal, ts time.Time) error {
	if o.Status.IsFinal() {
		return fmt.Errorf("%w: %s", ErrOrderFinal, o.Status)
	}
	if !o.Status.IsActive() {
		return fmt.Errorf("%w: fill in %s", ErrInvalidTransition, o.Status)
	}
	if quantity <= 0 || quantity > o.Remaining() {
		return fmt.Errorf("%w: fill %d, remaining %d", ErrOverFill, quantity, o.Remaining())
	}
	o.FilledQuantity += quantity
	o.FilledAmount = o.FilledAmount.Add(price.Mul(decimal.NewFromInt(quantity)))
	if o.FilledQuantity == o.Quantity {
		o.Status = OrderFilled
		o.FilledTime = ts
	} else {
		o.Status = OrderPartiallyFilled
	}
	return nil
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() int64 {
	return o.Quantity - o.FilledQuantity
}

// AvgFilledPrice derives the volume-weighted fill price, zero before any fill.
func (o *Order) AvgFilledPrice() decimal.Decimal {
	if o.FilledQuantity == 0 {
		return decimal.Zero
	}
	return o.FilledAmount.Div(decimal.NewFromInt(o.FilledQuantity))
}

// Notional returns quantity*price at the order's limit price.
func (o *Order) Notional() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(o.Quantity))
}
