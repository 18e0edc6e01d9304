// Package execution is the broker side of the bus: it consumes ORDER events,
// advances each order through its status machine, and reports executions back
// as FILL events.
package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Will-Grindelwald/quant-trading/internal/types"
)

// Handler is the execution contract shared by the simulated and live paths.
// Implementations also subscribe to ORDER events, so Submit is usually driven
// by the bus rather than called directly.
type Handler interface {
	// Submit walks the order to SUBMITTED and runs the fill model.
	Submit(ctx context.Context, order *types.Order) error

	// Cancel withdraws an active order. Only SUBMITTED and PARTIALLY_FILLED
	// orders can be cancelled; terminal orders return ErrOrderFinal.
	Cancel(ctx context.Context, orderID string) error

	// Status reports the status of an order still in the active map.
	Status(orderID string) (types.OrderStatus, bool)

	// ActiveOrders lists orders awaiting fills.
	ActiveOrders() []*types.Order
}

// Config holds the simulated fill model parameters.
type Config struct {
	// Slippage is the maximum adverse price drift per fill; the drift is
	// drawn uniformly from [0, Slippage] and signed against the order.
	Slippage       decimal.Decimal
	CommissionRate decimal.Decimal
	MinCommission  decimal.Decimal
	// ExecutionDelay paces fills for live simulation. Zero fills synchronously.
	ExecutionDelay time.Duration
	// Seed fixes the slippage RNG; zero seeds from the wall clock.
	Seed int64
}

// DefaultConfig returns the standard A-share cost model: 0.1% slippage,
// 0.03% commission with a 5 yuan minimum, synchronous fills.
func DefaultConfig() Config {
	return Config{
		Slippage:       decimal.RequireFromString("0.001"),
		CommissionRate: decimal.RequireFromString("0.0003"),
		MinCommission:  decimal.RequireFromString("5"),
		ExecutionDelay: 0,
	}
}

// Recorder receives execution metrics. A nil recorder disables recording.
type Recorder interface {
	OrderSubmitted(side string)
	OrderFilled(side string)
	OrderCancelled()
	OrderRejected()
}
