package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Will-Grindelwald/quant-trading/internal/event"
	"github.com/Will-Grindelwald/quant-trading/internal/types"
	"github.com/shopspring/decimal"
)

// maWindowSlack is how many extra bars beyond the long window are fetched,
// covering short gaps in the series.
const maWindowSlack = 5

var (
	goldenCrossStrength = decimal.RequireFromString("0.8")
	stopLossStrength    = decimal.NewFromInt(1)
	takeProfitStrength  = decimal.RequireFromString("0.9")
	deathCrossStrength  = decimal.RequireFromString("0.7")
)

// MACrossConfig holds the tunables for the moving-average crossover family.
type MACrossConfig struct {
	ShortWindow      int
	LongWindow       int
	StopLossPct      decimal.Decimal
	TakeProfitPct    decimal.Decimal
	UniversalStopPct decimal.Decimal
	Frequency        types.Frequency
}

// DefaultMACrossConfig returns the classic 5/20 daily setup.
func DefaultMACrossConfig() MACrossConfig {
	return MACrossConfig{
		ShortWindow:      5,
		LongWindow:       20,
		StopLossPct:      decimal.RequireFromString("0.05"),
		TakeProfitPct:    decimal.RequireFromString("0.10"),
		UniversalStopPct: defaultUniversalStopPct,
		Frequency:        types.FrequencyDay,
	}
}

// MACross is the dual moving-average crossover strategy. One instance serves
// one kind: ENTRY buys golden crosses, EXIT sells on stop-loss, take-profit
// or a death cross while in profit, and UNIVERSAL_STOP force-sells any
// holding past the account-wide loss threshold.
type MACross struct {
	*BaseStrategy
	cfg  MACrossConfig
	bars BarProvider
}

// NewMACross builds an MA-crossover instance. Options: short_window,
// long_window, stop_loss_pct, take_profit_pct, universal_stop_pct,
// frequency, universe.
func NewMACross(inst types.StrategyInstance, positions PositionReader, bars BarProvider, logger *slog.Logger) *MACross {
	cfg := DefaultMACrossConfig()
	cfg.ShortWindow = inst.ConfigInt("short_window", cfg.ShortWindow)
	cfg.LongWindow = inst.ConfigInt("long_window", cfg.LongWindow)
	cfg.StopLossPct = inst.ConfigDecimal("stop_loss_pct", cfg.StopLossPct)
	cfg.TakeProfitPct = inst.ConfigDecimal("take_profit_pct", cfg.TakeProfitPct)
	cfg.UniversalStopPct = inst.ConfigDecimal("universal_stop_pct", cfg.UniversalStopPct)
	cfg.Frequency = types.Frequency(inst.ConfigString("frequency", string(cfg.Frequency)))
	return &MACross{
		BaseStrategy: NewBase(inst, positions, logger),
		cfg:          cfg,
		bars:         bars,
	}
}

// OnMarket dispatches the bar to the branch matching the configured kind.
func (s *MACross) OnMarket(ctx context.Context, ev event.MarketEvent) []types.Signal {
	var sig types.Signal
	var ok bool
	switch s.Kind() {
	case types.KindEntry:
		sig, ok = s.entrySignal(ev)
	case types.KindExit:
		sig, ok = s.exitSignal(ev)
	case types.KindUniversalStop:
		sig, ok = forcedStopSignal(s.BaseStrategy, ev, s.cfg.UniversalStopPct)
	}
	if !ok {
		return nil
	}
	return []types.Signal{sig}
}

// entrySignal buys a golden cross: the short MA crossing above the long MA
// with the close above the short MA.
func (s *MACross) entrySignal(ev event.MarketEvent) (types.Signal, bool) {
	bars := s.history(ev.Symbol)
	if len(bars) < s.cfg.LongWindow {
		return types.Signal{}, false
	}

	shortMA, ok1 := closeMA(bars, s.cfg.ShortWindow)
	longMA, ok2 := closeMA(bars, s.cfg.LongWindow)
	prevShort, ok3 := closeMA(bars[:len(bars)-1], s.cfg.ShortWindow)
	prevLong, ok4 := closeMA(bars[:len(bars)-1], s.cfg.LongWindow)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return types.Signal{}, false
	}

	close := ev.Bar.Close
	if prevShort.LessThanOrEqual(prevLong) && shortMA.GreaterThan(longMA) && close.GreaterThan(shortMA) {
		reason := fmt.Sprintf("golden cross: short ma %s above long ma %s, close %s",
			shortMA.StringFixed(2), longMA.StringFixed(2), close.StringFixed(2))
		return s.newSignal(ev, types.DirectionBuy, goldenCrossStrength, reason)
	}
	return types.Signal{}, false
}

// exitSignal sells on stop-loss, take-profit, or a death cross while the
// position is still profitable, in that order.
func (s *MACross) exitSignal(ev event.MarketEvent) (types.Signal, bool) {
	pos, ok := s.position(ev.Symbol)
	if !ok || pos.Quantity == 0 || !pos.AvgPrice.IsPositive() {
		return types.Signal{}, false
	}

	close := ev.Bar.Close
	pnl := close.Sub(pos.AvgPrice).Div(pos.AvgPrice)

	if pnl.LessThanOrEqual(s.cfg.StopLossPct.Neg()) {
		reason := fmt.Sprintf("stop loss: pnl %s, cost %s, close %s",
			pct(pnl), pos.AvgPrice.StringFixed(2), close.StringFixed(2))
		return s.newSignal(ev, types.DirectionSell, stopLossStrength, reason)
	}
	if pnl.GreaterThanOrEqual(s.cfg.TakeProfitPct) {
		reason := fmt.Sprintf("take profit: pnl %s, cost %s, close %s",
			pct(pnl), pos.AvgPrice.StringFixed(2), close.StringFixed(2))
		return s.newSignal(ev, types.DirectionSell, takeProfitStrength, reason)
	}

	bars := s.history(ev.Symbol)
	if len(bars) < s.cfg.LongWindow {
		return types.Signal{}, false
	}
	shortMA, ok1 := closeMA(bars, s.cfg.ShortWindow)
	longMA, ok2 := closeMA(bars, s.cfg.LongWindow)
	prevShort, ok3 := closeMA(bars[:len(bars)-1], s.cfg.ShortWindow)
	prevLong, ok4 := closeMA(bars[:len(bars)-1], s.cfg.LongWindow)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return types.Signal{}, false
	}

	if prevShort.GreaterThanOrEqual(prevLong) && shortMA.LessThan(longMA) && pnl.IsPositive() {
		reason := fmt.Sprintf("death cross exit: pnl %s still positive, short ma %s below long ma %s",
			pct(pnl), shortMA.StringFixed(2), longMA.StringFixed(2))
		return s.newSignal(ev, types.DirectionSell, deathCrossStrength, reason)
	}
	return types.Signal{}, false
}

// history fetches the long window plus slack from the data layer.
func (s *MACross) history(symbol string) []types.Bar {
	if s.bars == nil {
		return nil
	}
	got := s.bars.LatestBars([]string{symbol}, s.cfg.Frequency, s.cfg.LongWindow+maWindowSlack)
	return got[symbol]
}

// closeMA averages the last window closes; false until enough bars.
func closeMA(bars []types.Bar, window int) (decimal.Decimal, bool) {
	if window <= 0 || len(bars) < window {
		return decimal.Decimal{}, false
	}
	sum := decimal.Zero
	for _, b := range bars[len(bars)-window:] {
		sum = sum.Add(b.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(window))), true
}
