// Package portfolio turns strategy signals into orders and settles execution
// fills against the account. The manager registers on the bus as a single
// subscriber for both SIGNAL and FILL events, so every account mutation runs
// on one worker goroutine in arrival order.
package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Will-Grindelwald/quant-trading/internal/event"
	"github.com/Will-Grindelwald/quant-trading/internal/types"
	"github.com/shopspring/decimal"
)

// Rejection reasons, used as log fields and metric labels.
const (
	RejectInvalidSignal    = "invalid_signal"
	RejectDuplicate        = "duplicate"
	RejectAlreadyHeld      = "already_held"
	RejectBelowMinAmount   = "below_min_amount"
	RejectInsufficientCash = "insufficient_cash"
	RejectPositionCap      = "position_cap"
	RejectExposureCap      = "exposure_cap"
	RejectNoPosition       = "no_position"
	RejectLotTooSmall      = "lot_too_small"
	RejectFreezeFailed     = "freeze_failed"
	RejectBusUnavailable   = "bus_unavailable"
)

// dedupMaxEntries bounds the recent-signals map. Past the bound, expired
// entries are pruned; if still over, the map is cleared outright.
const dedupMaxEntries = 1000

// commissionSlack is the headroom reserved over order notional for
// commission and adverse slippage when freezing cash.
var commissionSlack = decimal.RequireFromString("0.001")

// Config holds the portfolio manager's risk and sizing parameters.
type Config struct {
	MaxPositionPct      decimal.Decimal // single position cap, share of total value
	MaxTotalPositionPct decimal.Decimal // total exposure cap, share of total value
	MinOrderAmount      decimal.Decimal
	SizeMethod          SizeMethod
	DefaultPositionSize decimal.Decimal
	// SignalCooldown is the window within which a repeated
	// (strategy, symbol, direction) signal is dropped as a duplicate.
	SignalCooldown time.Duration
}

// DefaultConfig returns the standard A-share risk parameters.
func DefaultConfig() Config {
	return Config{
		MaxPositionPct:      decimal.RequireFromString("0.05"),
		MaxTotalPositionPct: decimal.RequireFromString("0.95"),
		MinOrderAmount:      decimal.RequireFromString("1000"),
		SizeMethod:          SizeFixedAmount,
		DefaultPositionSize: decimal.RequireFromString("10000"),
		SignalCooldown:      5 * time.Minute,
	}
}

// Recorder receives portfolio metrics. A nil recorder disables recording.
type Recorder interface {
	SignalRejected(reason string)
	OrderPlaced(side string)
	FillApplied(side string)
}

// Manager is the single authority over the account book. It gates and sizes
// signals into limit orders, and applies fills.
type Manager struct {
	cfg     Config
	account *types.Account
	bus     *event.Bus
	sizer   *Sizer
	logger  *slog.Logger
	rec     Recorder

	// lastEmit tracks the last order emission per strategy|symbol|direction.
	// Touched only from the bus worker.
	lastEmit map[string]time.Time

	// mu guards the mark prices and rejection tally, which Stats reads
	// concurrently with the worker.
	mu         sync.RWMutex
	lastPrices map[string]decimal.Decimal
	rejections map[string]int
}

// NewManager builds a portfolio manager and registers it on the bus under
// one shared subscriber for SIGNAL and FILL.
func NewManager(cfg Config, account *types.Account, bus *event.Bus, logger *slog.Logger, rec Recorder) (*Manager, error) {
	if account == nil {
		return nil, fmt.Errorf("%w: nil account", types.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:        cfg,
		account:    account,
		bus:        bus,
		sizer:      NewSizer(cfg.SizeMethod, cfg.DefaultPositionSize, cfg.MaxPositionPct),
		logger:     logger,
		rec:        rec,
		lastEmit:   make(map[string]time.Time),
		lastPrices: make(map[string]decimal.Decimal),
		rejections: make(map[string]int),
	}
	if bus != nil {
		evTypes := []event.Type{event.TypeSignal, event.TypeFill}
		if err := bus.SubscribeMulti(evTypes, "portfolio", m.handleEvent); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Account exposes the underlying book for result aggregation.
func (m *Manager) Account() *types.Account { return m.account }

// Position implements strategy.PositionReader.
func (m *Manager) Position(symbol string) (types.Position, bool) {
	return m.account.Position(symbol)
}

// Positions implements strategy.PositionReader.
func (m *Manager) Positions() map[string]types.Position {
	return m.account.Positions()
}

func (m *Manager) handleEvent(_ context.Context, ev event.Event) error {
	switch e := ev.(type) {
	case event.SignalEvent:
		return m.onSignal(e.Signal)
	case event.FillEvent:
		return m.onFill(e.Fill)
	default:
		return nil
	}
}

// onSignal runs the gate pipeline: validate, dedup, risk checks, sizing,
// cash freeze, order emission. Every drop is tallied with a reason; only an
// emitted order records the signal for dedup, so a rejected signal may retry.
func (m *Manager) onSignal(sig types.Signal) error {
	if err := sig.Validate(); err != nil {
		m.reject(slog.LevelWarn, sig, RejectInvalidSignal, "error", err)
		return nil
	}
	if sig.Direction == types.DirectionHold {
		return nil
	}
	if m.isDuplicate(sig) {
		m.reject(slog.LevelDebug, sig, RejectDuplicate,
			"cooldown", m.cfg.SignalCooldown)
		return nil
	}

	switch sig.Direction {
	case types.DirectionBuy:
		m.buyOrder(sig)
	case types.DirectionSell:
		m.sellOrder(sig)
	}
	return nil
}

// buyOrder applies the BUY gates in order: not already held, notional above
// the minimum, cash with commission headroom, single-position cap, total
// exposure cap, at least one lot.
func (m *Manager) buyOrder(sig types.Signal) {
	if m.account.HasPosition(sig.Symbol) {
		m.reject(slog.LevelDebug, sig, RejectAlreadyHeld)
		return
	}

	prices := m.markPrices(sig)
	totalValue := m.account.TotalValue(prices)
	amount := m.sizer.Amount(sig.Strength, totalValue)

	if amount.LessThan(m.cfg.MinOrderAmount) {
		m.reject(slog.LevelDebug, sig, RejectBelowMinAmount,
			"amount", amount, "min", m.cfg.MinOrderAmount)
		return
	}
	need := amount.Mul(decimal.NewFromInt(1).Add(commissionSlack))
	if m.account.AvailableCash().LessThan(need) {
		m.reject(slog.LevelWarn, sig, RejectInsufficientCash,
			"need", need, "available", m.account.AvailableCash())
		return
	}
	if amount.GreaterThan(totalValue.Mul(m.cfg.MaxPositionPct)) {
		m.reject(slog.LevelWarn, sig, RejectPositionCap,
			"amount", amount, "cap", totalValue.Mul(m.cfg.MaxPositionPct))
		return
	}
	posValue := m.account.PositionValue(prices)
	if posValue.Add(amount).GreaterThan(totalValue.Mul(m.cfg.MaxTotalPositionPct)) {
		m.reject(slog.LevelWarn, sig, RejectExposureCap,
			"exposure", posValue.Add(amount),
			"cap", totalValue.Mul(m.cfg.MaxTotalPositionPct))
		return
	}

	qty := m.sizer.Quantity(amount, sig.Price)
	if qty == 0 {
		m.reject(slog.LevelDebug, sig, RejectLotTooSmall,
			"amount", amount, "price", sig.Price)
		return
	}

	order, err := types.NewLimitOrder(sig.Symbol, types.SideBuy, qty, sig.Price, sig.StrategyID, sig.Timestamp)
	if err != nil {
		m.reject(slog.LevelWarn, sig, RejectInvalidSignal, "error", err)
		return
	}
	freeze := order.Notional().Mul(decimal.NewFromInt(1).Add(commissionSlack))
	if err := m.account.FreezeCash(freeze); err != nil {
		m.reject(slog.LevelWarn, sig, RejectFreezeFailed, "error", err)
		return
	}

	m.emit(sig, order, freeze)
}

// sellOrder emits a whole-position SELL. Position scaling is not supported;
// exits and stops always flatten the symbol.
func (m *Manager) sellOrder(sig types.Signal) {
	pos, ok := m.account.Position(sig.Symbol)
	if !ok {
		m.reject(slog.LevelDebug, sig, RejectNoPosition)
		return
	}

	order, err := types.NewLimitOrder(sig.Symbol, types.SideSell, pos.Quantity, sig.Price, sig.StrategyID, sig.Timestamp)
	if err != nil {
		m.reject(slog.LevelWarn, sig, RejectInvalidSignal, "error", err)
		return
	}

	m.emit(sig, order, decimal.Zero)
}

// emit records the order in the book and publishes it. A full bus queue
// rolls back: the reserve is released and the order marked REJECTED.
func (m *Manager) emit(sig types.Signal, order *types.Order, frozen decimal.Decimal) {
	m.account.AddOrder(order)
	if m.bus == nil || !m.bus.Publish(event.OrderEvent{Order: order}) {
		if frozen.IsPositive() {
			m.account.UnfreezeCash(frozen)
		}
		_ = order.Reject("bus unavailable")
		m.reject(slog.LevelWarn, sig, RejectBusUnavailable, "order", order.ID)
		return
	}

	m.markEmitted(sig)
	if m.rec != nil {
		m.rec.OrderPlaced(order.Side.String())
	}
	m.logger.Info("order placed",
		"order", order.ID,
		"strategy", sig.StrategyID,
		"symbol", order.Symbol,
		"side", order.Side.String(),
		"quantity", order.Quantity,
		"price", order.Price,
		"reason", sig.Reason)
}

// Release returns the reserve held for a BUY order that will never fill,
// typically one rejected downstream by the execution gates. SELL orders hold
// no reserve.
func (m *Manager) Release(order *types.Order) {
	if order == nil || order.Side != types.SideBuy {
		return
	}
	freeze := order.Notional().Mul(decimal.NewFromInt(1).Add(commissionSlack))
	m.account.UnfreezeCash(freeze)
	m.logger.Debug("reserve released", "order", order.ID, "amount", freeze)
}

// onFill settles an execution: cost basis, cash, commission, trade matching.
// A BUY releases the reserve made at emission; the release is the filled
// amount plus commission, so slipped fills never leave cash double-counted.
func (m *Manager) onFill(fill types.Fill) error {
	if err := m.account.ApplyFill(fill); err != nil {
		return fmt.Errorf("apply fill %s: %w", fill.ID, err)
	}
	if fill.Side == types.SideBuy {
		m.account.UnfreezeCash(fill.Amount().Add(fill.Commission))
	}
	m.trackPrice(fill.Symbol, fill.Price)

	if m.rec != nil {
		m.rec.FillApplied(fill.Side.String())
	}
	m.logger.Info("fill applied",
		"fill", fill.ID,
		"order", fill.OrderID,
		"symbol", fill.Symbol,
		"side", fill.Side.String(),
		"quantity", fill.Quantity,
		"price", fill.Price,
		"commission", fill.Commission,
		"cash", m.account.Cash())
	return nil
}

func dedupKey(sig types.Signal) string {
	return sig.StrategyID + "|" + sig.Symbol + "|" + sig.Direction.String()
}

// isDuplicate reports whether an order for this (strategy, symbol, direction)
// was emitted within the cooldown window. The signal timestamp is the clock,
// so backtests dedup in simulated time.
func (m *Manager) isDuplicate(sig types.Signal) bool {
	last, ok := m.lastEmit[dedupKey(sig)]
	if !ok {
		return false
	}
	return sig.Timestamp.Sub(last) < m.cfg.SignalCooldown
}

// markEmitted records the emission time and keeps the map bounded: prune
// expired entries first, clear everything if still over the bound.
func (m *Manager) markEmitted(sig types.Signal) {
	m.lastEmit[dedupKey(sig)] = sig.Timestamp
	if len(m.lastEmit) <= dedupMaxEntries {
		return
	}
	for key, ts := range m.lastEmit {
		if sig.Timestamp.Sub(ts) >= m.cfg.SignalCooldown {
			delete(m.lastEmit, key)
		}
	}
	if len(m.lastEmit) > dedupMaxEntries {
		m.lastEmit = make(map[string]time.Time)
	}
}

// markPrices refreshes the mark for the signal's symbol and returns the
// last-known price map used to value the account. Held symbols that never
// traded fall back to average cost inside the account.
func (m *Manager) markPrices(sig types.Signal) map[string]decimal.Decimal {
	m.trackPrice(sig.Symbol, sig.Price)
	m.mu.RLock()
	defer m.mu.RUnlock()
	prices := make(map[string]decimal.Decimal, len(m.lastPrices))
	for sym, p := range m.lastPrices {
		prices[sym] = p
	}
	return prices
}

func (m *Manager) trackPrice(symbol string, price decimal.Decimal) {
	if !price.IsPositive() {
		return
	}
	m.mu.Lock()
	m.lastPrices[symbol] = price
	m.mu.Unlock()
}

func (m *Manager) reject(level slog.Level, sig types.Signal, reason string, args ...any) {
	m.mu.Lock()
	m.rejections[reason]++
	m.mu.Unlock()
	if m.rec != nil {
		m.rec.SignalRejected(reason)
	}
	fields := append([]any{
		"reason", reason,
		"strategy", sig.StrategyID,
		"symbol", sig.Symbol,
		"direction", sig.Direction.String(),
	}, args...)
	m.logger.Log(context.Background(), level, "signal rejected", fields...)
}

// Stats is a point-in-time view of the book for reporting.
type Stats struct {
	AccountID       string
	TotalValue      decimal.Decimal
	Cash            decimal.Decimal
	FrozenCash      decimal.Decimal
	PositionValue   decimal.Decimal
	PositionCount   int
	Leverage        decimal.Decimal
	TotalCommission decimal.Decimal
	RealizedPnL     decimal.Decimal
	UnrealizedPnL   decimal.Decimal
	Rejections      map[string]int
}

// Stats values the account at the last-known prices.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	prices := make(map[string]decimal.Decimal, len(m.lastPrices))
	for sym, p := range m.lastPrices {
		prices[sym] = p
	}
	rejections := make(map[string]int, len(m.rejections))
	for reason, n := range m.rejections {
		rejections[reason] = n
	}
	m.mu.RUnlock()

	posValue := m.account.PositionValue(prices)
	totalValue := m.account.Cash().Add(posValue)
	leverage := decimal.Zero
	if totalValue.IsPositive() {
		leverage = posValue.Div(totalValue)
	}
	return Stats{
		AccountID:       m.account.ID,
		TotalValue:      totalValue,
		Cash:            m.account.Cash(),
		FrozenCash:      m.account.FrozenCash(),
		PositionValue:   posValue,
		PositionCount:   m.account.PositionCount(),
		Leverage:        leverage,
		TotalCommission: m.account.TotalCommission(),
		RealizedPnL:     m.account.RealizedPnL(),
		UnrealizedPnL:   m.account.UnrealizedPnL(prices),
		Rejections:      rejections,
	}
}
