package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Will-Grindelwald/quant-trading/internal/event"
	"github.com/Will-Grindelwald/quant-trading/internal/types"
)

// LiveConfig holds the pre-submit gates of the live path.
type LiveConfig struct {
	MaxOrderValue  decimal.Decimal
	MaxDailyOrders int
}

// DefaultLiveConfig returns the standard live gates: one million yuan per
// order, one hundred orders per day.
func DefaultLiveConfig() LiveConfig {
	return LiveConfig{
		MaxOrderValue:  decimal.RequireFromString("1000000"),
		MaxDailyOrders: 100,
	}
}

// Live is the live-trading handler: the simulated fill model behind value and
// rate gates. A broker integration would replace the fill model; the gates,
// bookkeeping, and bus wiring stay.
type Live struct {
	cfg    LiveConfig
	sim    *Simulated
	logger *slog.Logger

	// now is the gate clock; tests pin it to exercise the daily rollover.
	now func() time.Time

	mu         sync.Mutex
	dailyCount int
	countDate  time.Time
	rejectHook func(*types.Order)
}

// NewLive builds the live handler and subscribes it to ORDER events.
func NewLive(cfg LiveConfig, fillCfg Config, bus *event.Bus, logger *slog.Logger, rec Recorder) (*Live, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Live{
		cfg:    cfg,
		sim:    newSimulated(fillCfg, bus, logger, rec),
		logger: logger,
		now:    time.Now,
	}
	if bus != nil {
		if err := bus.Subscribe(event.TypeOrder, "execution", l.handleEvent); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// handleEvent submits bus orders. Gate rejections are logged and counted, not
// surfaced as handler errors; only fill-model failures propagate.
func (l *Live) handleEvent(ctx context.Context, ev event.Event) error {
	oe, ok := ev.(event.OrderEvent)
	if !ok {
		return nil
	}
	err := l.Submit(ctx, oe.Order)
	if errors.Is(err, types.ErrOrderValueLimit) || errors.Is(err, types.ErrDailyOrderLimit) {
		return nil
	}
	return err
}

// OnReject registers a callback invoked after a gate marks an order
// REJECTED. The live engine hooks this to raise operator alerts.
func (l *Live) OnReject(hook func(*types.Order)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rejectHook = hook
}

// Submit runs the pre-submit gates, then hands the order to the fill model.
// Gated orders are marked REJECTED and the gate error returned.
func (l *Live) Submit(ctx context.Context, order *types.Order) error {
	if err := l.gate(order); err != nil {
		_ = order.Reject(err.Error())
		if l.sim.rec != nil {
			l.sim.rec.OrderRejected()
		}
		l.logger.Warn("order rejected",
			"order", order.ID,
			"symbol", order.Symbol,
			"notional", order.Notional(),
			"error", err)
		l.mu.Lock()
		hook := l.rejectHook
		l.mu.Unlock()
		if hook != nil {
			hook(order)
		}
		return err
	}
	return l.sim.Submit(ctx, order)
}

// gate enforces the per-order value cap and the daily order budget. The
// budget resets when the gate clock crosses a calendar day.
func (l *Live) gate(order *types.Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if !today.Equal(l.countDate) {
		l.dailyCount = 0
		l.countDate = today
	}

	if order.Notional().GreaterThan(l.cfg.MaxOrderValue) {
		return fmt.Errorf("%w: %s > %s", types.ErrOrderValueLimit, order.Notional(), l.cfg.MaxOrderValue)
	}
	if l.dailyCount >= l.cfg.MaxDailyOrders {
		return fmt.Errorf("%w: %d today", types.ErrDailyOrderLimit, l.dailyCount)
	}
	l.dailyCount++
	return nil
}

// Cancel withdraws an active order.
func (l *Live) Cancel(ctx context.Context, orderID string) error {
	return l.sim.Cancel(ctx, orderID)
}

// Status reports the status of an active order.
func (l *Live) Status(orderID string) (types.OrderStatus, bool) {
	return l.sim.Status(orderID)
}

// ActiveOrders lists orders awaiting fills.
func (l *Live) ActiveOrders() []*types.Order {
	return l.sim.ActiveOrders()
}
