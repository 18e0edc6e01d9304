// Package strategy hosts the trading strategies and their runtime: the
// Strategy contract, the shared BaseStrategy plumbing, and the Manager that
// routes MARKET events from the bus into each strategy and publishes the
// resulting signals back.
package strategy

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Will-Grindelwald/quant-trading/internal/event"
	"github.com/Will-Grindelwald/quant-trading/internal/types"
	"github.com/shopspring/decimal"
)

// Strategy is one configured trading algorithm. Strategies turn market bars
// into signals; they never size orders or touch the account book.
type Strategy interface {
	// ID returns the unique instance id (registry key).
	ID() string

	// Name returns the algorithm name, e.g. "ma_cross".
	Name() string

	// Kind selects the watch-set policy: ENTRY, EXIT or UNIVERSAL_STOP.
	Kind() types.StrategyKind

	// WatchSymbols returns the symbols this strategy wants bars for,
	// recomputed on every event since holdings shift beneath it.
	WatchSymbols() map[string]struct{}

	// OnMarket processes one bar and returns zero or more signals.
	OnMarket(ctx context.Context, ev event.MarketEvent) []types.Signal

	// Activate and Deactivate toggle signal generation without removing
	// the bus handler.
	Activate()
	Deactivate()
	IsActive() bool

	// Reset clears per-run state so the instance can serve another run.
	Reset()
}

// PositionReader is the read-only slice of the account that strategies use
// for watch sets and exit math. The strategy never mutates positions.
type PositionReader interface {
	Position(symbol string) (types.Position, bool)
	Positions() map[string]types.Position
}

// BarProvider serves historical bars to strategies that recompute
// indicators from the data layer instead of streaming their own.
type BarProvider interface {
	LatestBars(symbols []string, freq types.Frequency, count int) map[string][]types.Bar
}

// BaseStrategy carries the state every strategy shares: instance identity,
// the configured universe, the position view, the active flag and the
// last-update stamp. Concrete strategies embed it and implement OnMarket.
type BaseStrategy struct {
	inst      types.StrategyInstance
	positions PositionReader
	logger    *slog.Logger

	active atomic.Bool

	mu         sync.RWMutex
	universe   map[string]struct{}
	lastUpdate time.Time
}

// NewBase builds the shared strategy core. The universe comes from the
// instance's "universe" option; entry strategies without one watch nothing
// until SetUniverse is called.
func NewBase(inst types.StrategyInstance, positions PositionReader, logger *slog.Logger) *BaseStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	b := &BaseStrategy{
		inst:      inst,
		positions: positions,
		logger:    logger,
		universe:  make(map[string]struct{}),
	}
	for _, sym := range inst.ConfigStringSlice("universe") {
		b.universe[sym] = struct{}{}
	}
	b.active.Store(inst.Enabled)
	return b
}

// ID returns the instance id.
func (b *BaseStrategy) ID() string { return b.inst.StrategyID }

// Name returns the algorithm name.
func (b *BaseStrategy) Name() string { return b.inst.Name }

// Kind returns the configured strategy kind.
func (b *BaseStrategy) Kind() types.StrategyKind { return b.inst.Kind }

// Instance returns the originating configuration.
func (b *BaseStrategy) Instance() types.StrategyInstance { return b.inst }

// IsActive reports whether the strategy is generating signals.
func (b *BaseStrategy) IsActive() bool { return b.active.Load() }

// Activate enables signal generation.
func (b *BaseStrategy) Activate() {
	if b.active.CompareAndSwap(false, true) {
		b.logger.Info("strategy activated", "strategy", b.ID())
	}
}

// Deactivate disables signal generation; the bus handler stays registered.
func (b *BaseStrategy) Deactivate() {
	if b.active.CompareAndSwap(true, false) {
		b.logger.Info("strategy deactivated", "strategy", b.ID())
	}
}

// Reset clears the last-update stamp. Strategies with indicator state
// override this and call down.
func (b *BaseStrategy) Reset() {
	b.mu.Lock()
	b.lastUpdate = time.Time{}
	b.mu.Unlock()
}

// SetUniverse replaces the configured universe, e.g. after loading the
// default pool from the business store.
func (b *BaseStrategy) SetUniverse(symbols []string) {
	set := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		set[sym] = struct{}{}
	}
	b.mu.Lock()
	b.universe = set
	b.mu.Unlock()
	b.logger.Info("universe updated", "strategy", b.ID(), "symbols", len(symbols))
}

// Universe returns the configured symbols, sorted.
func (b *BaseStrategy) Universe() []string {
	b.mu.RLock()
	out := make([]string, 0, len(b.universe))
	for sym := range b.universe {
		out = append(out, sym)
	}
	b.mu.RUnlock()
	sort.Strings(out)
	return out
}

// WatchSymbols applies the per-kind policy. ENTRY watches the configured
// universe minus its own holdings, EXIT only its own holdings, and
// UNIVERSAL_STOP every symbol held in the account.
func (b *BaseStrategy) WatchSymbols() map[string]struct{} {
	switch b.Kind() {
	case types.KindEntry:
		held := b.heldByStrategy()
		b.mu.RLock()
		defer b.mu.RUnlock()
		out := make(map[string]struct{}, len(b.universe))
		for sym := range b.universe {
			if _, ok := held[sym]; !ok {
				out[sym] = struct{}{}
			}
		}
		return out
	case types.KindExit:
		return b.heldByStrategy()
	case types.KindUniversalStop:
		out := make(map[string]struct{})
		if b.positions == nil {
			return out
		}
		for sym := range b.positions.Positions() {
			out[sym] = struct{}{}
		}
		return out
	default:
		return map[string]struct{}{}
	}
}

// LastUpdate returns when the strategy last processed a bar.
func (b *BaseStrategy) LastUpdate() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate
}

func (b *BaseStrategy) touch(ts time.Time) {
	b.mu.Lock()
	b.lastUpdate = ts
	b.mu.Unlock()
}

// heldByStrategy returns the symbols whose position was opened by this
// strategy instance.
func (b *BaseStrategy) heldByStrategy() map[string]struct{} {
	out := make(map[string]struct{})
	if b.positions == nil {
		return out
	}
	for sym, pos := range b.positions.Positions() {
		if pos.StrategyID == b.ID() {
			out[sym] = struct{}{}
		}
	}
	return out
}

// position looks up the account position for symbol.
func (b *BaseStrategy) position(symbol string) (types.Position, bool) {
	if b.positions == nil {
		return types.Position{}, false
	}
	return b.positions.Position(symbol)
}

// newSignal builds a validated signal priced off the event's close.
func (b *BaseStrategy) newSignal(ev event.MarketEvent, dir types.Direction, strength decimal.Decimal, reason string) (types.Signal, bool) {
	sig, err := types.NewSignal(b.ID(), ev.Symbol, dir, strength, ev.Bar.Timestamp, ev.Bar.Close, reason)
	if err != nil {
		b.logger.Warn("signal construction failed",
			"strategy", b.ID(), "symbol", ev.Symbol, "error", err)
		return types.Signal{}, false
	}
	return sig, true
}

// pct renders a ratio as a fixed two-decimal percentage for signal reasons.
func pct(v decimal.Decimal) string {
	return v.Mul(hundredPct).StringFixed(2) + "%"
}

var hundredPct = decimal.NewFromInt(100)
