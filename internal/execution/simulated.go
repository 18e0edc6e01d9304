package execution

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Will-Grindelwald/quant-trading/internal/event"
	"github.com/Will-Grindelwald/quant-trading/internal/types"
)

// Simulated fills whole orders at an adversely slipped price. Timestamps come
// from the order, not the wall clock, so backtest fills land on the simulated
// day that produced them.
type Simulated struct {
	cfg    Config
	bus    *event.Bus
	logger *slog.Logger
	rec    Recorder

	mu     sync.Mutex
	rng    *rand.Rand
	active map[string]*types.Order
}

// NewSimulated builds the simulated handler and subscribes it to ORDER events.
func NewSimulated(cfg Config, bus *event.Bus, logger *slog.Logger, rec Recorder) (*Simulated, error) {
	s := newSimulated(cfg, bus, logger, rec)
	if bus != nil {
		if err := bus.Subscribe(event.TypeOrder, "execution", s.handleEvent); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// newSimulated builds the fill model without bus wiring; the live handler
// wraps it behind its own subscription.
func newSimulated(cfg Config, bus *event.Bus, logger *slog.Logger, rec Recorder) *Simulated {
	if logger == nil {
		logger = slog.Default()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulated{
		cfg:    cfg,
		bus:    bus,
		logger: logger,
		rec:    rec,
		rng:    rand.New(rand.NewSource(seed)),
		active: make(map[string]*types.Order),
	}
}

func (s *Simulated) handleEvent(ctx context.Context, ev event.Event) error {
	oe, ok := ev.(event.OrderEvent)
	if !ok {
		return nil
	}
	return s.Submit(ctx, oe.Order)
}

// Submit stamps the order SUBMITTED, holds it for the configured delay, then
// fills the whole remaining quantity.
func (s *Simulated) Submit(ctx context.Context, order *types.Order) error {
	if err := order.Submit(order.CreatedTime); err != nil {
		return fmt.Errorf("submit order %s: %w", order.ID, err)
	}
	s.mu.Lock()
	s.active[order.ID] = order
	s.mu.Unlock()

	if s.rec != nil {
		s.rec.OrderSubmitted(order.Side.String())
	}
	s.logger.Debug("order submitted",
		"order", order.ID,
		"symbol", order.Symbol,
		"side", order.Side.String(),
		"quantity", order.Quantity,
		"price", order.Price)

	if s.cfg.ExecutionDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.ExecutionDelay):
		}
	}
	return s.fill(order)
}

// fill executes the remaining quantity, removes the order from the active
// map, and publishes the FILL event.
func (s *Simulated) fill(order *types.Order) error {
	price := s.fillPrice(order)
	qty := order.Remaining()
	commission := s.commission(qty, price)

	f, err := types.NewFill(order.ID, order.Symbol, order.Side, qty, price, commission, order.SubmittedTime, order.StrategyID)
	if err != nil {
		return fmt.Errorf("fill order %s: %w", order.ID, err)
	}
	if err := order.ApplyFill(qty, price, f.Timestamp); err != nil {
		return fmt.Errorf("fill order %s: %w", order.ID, err)
	}

	s.mu.Lock()
	delete(s.active, order.ID)
	s.mu.Unlock()

	if s.bus == nil || !s.bus.Publish(event.FillEvent{Fill: f}) {
		return fmt.Errorf("publish fill for order %s: %w", order.ID, types.ErrBusClosed)
	}

	if s.rec != nil {
		s.rec.OrderFilled(order.Side.String())
	}
	s.logger.Info("order filled",
		"order", order.ID,
		"symbol", order.Symbol,
		"side", order.Side.String(),
		"quantity", qty,
		"price", price,
		"commission", commission)
	return nil
}

// fillPrice slips the limit price against the order: buys fill above, sells
// below, drift uniform in [0, slippage], rounded to fen.
func (s *Simulated) fillPrice(order *types.Order) decimal.Decimal {
	s.mu.Lock()
	u := s.rng.Float64()
	s.mu.Unlock()

	drift := s.cfg.Slippage.Mul(decimal.NewFromFloat(u))
	if order.Side == types.SideSell {
		drift = drift.Neg()
	}
	return order.Price.Mul(decimal.NewFromInt(1).Add(drift)).Round(2)
}

// commission charges the configured rate with a floor.
func (s *Simulated) commission(qty int64, price decimal.Decimal) decimal.Decimal {
	c := price.Mul(decimal.NewFromInt(qty)).Mul(s.cfg.CommissionRate)
	if c.LessThan(s.cfg.MinCommission) {
		return s.cfg.MinCommission
	}
	return c
}

// Cancel withdraws an order still waiting for its fill.
func (s *Simulated) Cancel(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.active[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrOrderNotFound, orderID)
	}
	if err := order.Cancel(); err != nil {
		return err
	}
	delete(s.active, orderID)

	if s.rec != nil {
		s.rec.OrderCancelled()
	}
	s.logger.Info("order cancelled", "order", orderID, "symbol", order.Symbol)
	return nil
}

// Status reports the status of an active order.
func (s *Simulated) Status(orderID string) (types.OrderStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.active[orderID]
	if !ok {
		return 0, false
	}
	return order.Status, true
}

// ActiveOrders lists orders awaiting fills.
func (s *Simulated) ActiveOrders() []*types.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Order, 0, len(s.active))
	for _, o := range s.active {
		out = append(out, o)
	}
	return out
}
