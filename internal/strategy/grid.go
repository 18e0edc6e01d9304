package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Will-Grindelwald/quant-trading/internal/event"
	"github.com/Will-Grindelwald/quant-trading/internal/types"
	"github.com/shopspring/decimal"
)

// GridConfig holds the tunables for the pullback grid entry.
type GridConfig struct {
	SpacingPct  decimal.Decimal // distance between grid levels as a fraction of price
	MaxLevels   int             // deepest level the grid buys at
	Lookback    int             // bars for the swing high/low window
	MinRangePct decimal.Decimal // minimum swing range vs price, below it the grid idles
}

// DefaultGridConfig returns a 2% grid five levels deep over a 20-bar swing.
func DefaultGridConfig() GridConfig {
	return GridConfig{
		SpacingPct:  decimal.RequireFromString("0.02"),
		MaxLevels:   5,
		Lookback:    20,
		MinRangePct: decimal.RequireFromString("0.05"),
	}
}

type gridState struct {
	highs []decimal.Decimal
	lows  []decimal.Decimal
	// lastLevel is the deepest grid level already bought; 0 means flat.
	lastLevel int
}

func (st *gridState) push(bar types.Bar, lookback int) {
	st.highs = append(st.highs, bar.High)
	st.lows = append(st.lows, bar.Low)
	if len(st.highs) > lookback {
		st.highs = st.highs[1:]
		st.lows = st.lows[1:]
	}
}

// Grid is an ENTRY strategy buying pullbacks at fixed percentage intervals
// below the rolling swing high. Each level fires once; deeper levels carry
// more strength since the discount is larger. The ladder resets when price
// recovers to the middle of the swing range.
type Grid struct {
	*BaseStrategy
	cfg    GridConfig
	states map[string]*gridState
}

// NewGrid builds a grid instance. Options: grid_spacing_pct, max_levels,
// lookback, min_range_pct, universe.
func NewGrid(inst types.StrategyInstance, positions PositionReader, logger *slog.Logger) *Grid {
	inst.Kind = types.KindEntry
	cfg := DefaultGridConfig()
	cfg.SpacingPct = inst.ConfigDecimal("grid_spacing_pct", cfg.SpacingPct)
	cfg.MaxLevels = inst.ConfigInt("max_levels", cfg.MaxLevels)
	cfg.Lookback = inst.ConfigInt("lookback", cfg.Lookback)
	cfg.MinRangePct = inst.ConfigDecimal("min_range_pct", cfg.MinRangePct)
	return &Grid{
		BaseStrategy: NewBase(inst, positions, logger),
		cfg:          cfg,
		states:       make(map[string]*gridState),
	}
}

// OnMarket rolls the bar into the swing window and buys when the close has
// stepped down to a deeper grid level.
func (s *Grid) OnMarket(ctx context.Context, ev event.MarketEvent) []types.Signal {
	st := s.state(ev.Symbol)
	bar := ev.Bar
	st.push(bar, s.cfg.Lookback)
	if len(st.highs) < s.cfg.Lookback {
		return nil
	}

	swingHigh := highest(st.highs)
	swingLow := lowest(st.lows)
	swingRange := swingHigh.Sub(swingLow)
	if !bar.Close.IsPositive() || swingRange.Div(bar.Close).LessThan(s.cfg.MinRangePct) {
		return nil
	}

	spacing := bar.Close.Mul(s.cfg.SpacingPct)
	if !spacing.IsPositive() {
		return nil
	}

	var signals []types.Signal
	drop := swingHigh.Sub(bar.Close)
	level := int(drop.Div(spacing).IntPart())
	if level >= 1 && level > st.lastLevel && level <= s.cfg.MaxLevels {
		strength := decimal.NewFromInt(int64(level)).Div(decimal.NewFromInt(int64(s.cfg.MaxLevels)))
		reason := fmt.Sprintf("grid level %d: close %s is %s below swing high %s",
			level, bar.Close.StringFixed(2), pct(drop.Div(swingHigh)), swingHigh.StringFixed(2))
		if sig, ok := s.newSignal(ev, types.DirectionBuy, strength, reason); ok {
			signals = append(signals, sig)
			st.lastLevel = level
		}
	}

	// Reset the ladder once price is back near the middle of the swing.
	mid := swingLow.Add(swingRange.Div(decimal.NewFromInt(2)))
	if bar.Close.Sub(mid).Abs().LessThan(spacing) {
		st.lastLevel = 0
	}

	return signals
}

// Reset drops all per-symbol swing windows.
func (s *Grid) Reset() {
	s.BaseStrategy.Reset()
	s.states = make(map[string]*gridState)
}

func (s *Grid) state(symbol string) *gridState {
	st, ok := s.states[symbol]
	if !ok {
		st = &gridState{
			highs: make([]decimal.Decimal, 0, s.cfg.Lookback),
			lows:  make([]decimal.Decimal, 0, s.cfg.Lookback),
		}
		s.states[symbol] = st
	}
	return st
}
