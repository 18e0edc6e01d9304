package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Will-Grindelwald/quant-trading/internal/event"
	"github.com/Will-Grindelwald/quant-trading/internal/types"
	"github.com/shopspring/decimal"
)

var (
	defaultUniversalStopPct = decimal.RequireFromString("0.08")
	forcedStopStrength      = decimal.NewFromInt(1)
)

// UniversalStop is the account-wide forced stop. It watches every held
// symbol regardless of which strategy opened the position and sells once
// the loss breaches the configured threshold. The kind is always
// UNIVERSAL_STOP whatever the instance says.
type UniversalStop struct {
	*BaseStrategy
	stopPct decimal.Decimal
}

// NewUniversalStop builds a forced-stop instance. Options: universal_stop_pct.
func NewUniversalStop(inst types.StrategyInstance, positions PositionReader, logger *slog.Logger) *UniversalStop {
	inst.Kind = types.KindUniversalStop
	return &UniversalStop{
		BaseStrategy: NewBase(inst, positions, logger),
		stopPct:      inst.ConfigDecimal("universal_stop_pct", defaultUniversalStopPct),
	}
}

// OnMarket sells the position once its loss breaches the threshold.
func (s *UniversalStop) OnMarket(ctx context.Context, ev event.MarketEvent) []types.Signal {
	if sig, ok := forcedStopSignal(s.BaseStrategy, ev, s.stopPct); ok {
		return []types.Signal{sig}
	}
	return nil
}

// forcedStopSignal emits a full-strength SELL when the position's pnl is at
// or below -stopPct. Shared with MA-cross instances configured as stops.
func forcedStopSignal(b *BaseStrategy, ev event.MarketEvent, stopPct decimal.Decimal) (types.Signal, bool) {
	pos, ok := b.position(ev.Symbol)
	if !ok || pos.Quantity == 0 || !pos.AvgPrice.IsPositive() {
		return types.Signal{}, false
	}
	pnl := ev.Bar.Close.Sub(pos.AvgPrice).Div(pos.AvgPrice)
	if pnl.GreaterThan(stopPct.Neg()) {
		return types.Signal{}, false
	}
	reason := fmt.Sprintf("forced stop: pnl %s breached -%s, cost %s, close %s",
		pct(pnl), pct(stopPct), pos.AvgPrice.StringFixed(2), ev.Bar.Close.StringFixed(2))
	return b.newSignal(ev, types.DirectionSell, forcedStopStrength, reason)
}
