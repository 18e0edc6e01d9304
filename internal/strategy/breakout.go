package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Will-Grindelwald/quant-trading/internal/event"
	"github.com/Will-Grindelwald/quant-trading/internal/types"
	"github.com/Will-Grindelwald/quant-trading/pkg/indicator"
	"github.com/shopspring/decimal"
)

var breakoutStrength = decimal.RequireFromString("0.8")

// BreakoutConfig holds the tunables for the range breakout entry.
type BreakoutConfig struct {
	Lookback   int             // bars in the reference range
	ATRPeriod  int             // true-range smoothing period
	ATRBuffer  decimal.Decimal // close must clear the range high by this many ATRs
	VolumeMult decimal.Decimal // volume confirmation vs the window average
}

// DefaultBreakoutConfig returns the 20-day range with a quarter-ATR buffer.
func DefaultBreakoutConfig() BreakoutConfig {
	return BreakoutConfig{
		Lookback:   20,
		ATRPeriod:  14,
		ATRBuffer:  decimal.RequireFromString("0.25"),
		VolumeMult: decimal.RequireFromString("1.5"),
	}
}

// breakoutState is the per-symbol rolling window: the highs and volumes of
// the prior Lookback bars plus a streaming ATR over the same history.
type breakoutState struct {
	highs   []decimal.Decimal
	volumes []int64
	atr     *indicator.ATR
	// armed gates refires: cleared on a signal, set again once the close
	// pulls back to or below the range high.
	armed bool
}

func (st *breakoutState) push(bar types.Bar, lookback int) {
	st.highs = append(st.highs, bar.High)
	st.volumes = append(st.volumes, bar.Volume)
	if len(st.highs) > lookback {
		st.highs = st.highs[1:]
		st.volumes = st.volumes[1:]
	}
	st.atr.Update(bar.High, bar.Low, bar.Close)
}

// Breakout is an ENTRY strategy buying range breaks: the close must clear
// the highest high of the prior Lookback bars by ATRBuffer ATRs on at least
// VolumeMult times the average volume. One signal per break; the state
// re-arms when price pulls back inside the range.
type Breakout struct {
	*BaseStrategy
	cfg    BreakoutConfig
	states map[string]*breakoutState
}

// NewBreakout builds a breakout instance. Options: lookback, atr_period,
// atr_buffer, volume_mult, universe.
func NewBreakout(inst types.StrategyInstance, positions PositionReader, logger *slog.Logger) *Breakout {
	inst.Kind = types.KindEntry
	cfg := DefaultBreakoutConfig()
	cfg.Lookback = inst.ConfigInt("lookback", cfg.Lookback)
	cfg.ATRPeriod = inst.ConfigInt("atr_period", cfg.ATRPeriod)
	cfg.ATRBuffer = inst.ConfigDecimal("atr_buffer", cfg.ATRBuffer)
	cfg.VolumeMult = inst.ConfigDecimal("volume_mult", cfg.VolumeMult)
	return &Breakout{
		BaseStrategy: NewBase(inst, positions, logger),
		cfg:          cfg,
		states:       make(map[string]*breakoutState),
	}
}

// OnMarket checks the bar against the prior range, then rolls the bar into
// the window for the next check.
func (s *Breakout) OnMarket(ctx context.Context, ev event.MarketEvent) []types.Signal {
	st := s.state(ev.Symbol)
	bar := ev.Bar

	var signals []types.Signal
	if len(st.highs) >= s.cfg.Lookback && st.atr.Ready() {
		rangeHigh := highest(st.highs)
		switch {
		case bar.Close.LessThanOrEqual(rangeHigh):
			st.armed = true
		case st.armed:
			trigger := rangeHigh.Add(st.atr.Current().Mul(s.cfg.ATRBuffer))
			if bar.Close.GreaterThan(trigger) && s.volumeConfirmed(st, bar.Volume) {
				reason := fmt.Sprintf("breakout: close %s above %d-bar high %s with %s atr buffer",
					bar.Close.StringFixed(2), s.cfg.Lookback, rangeHigh.StringFixed(2),
					s.cfg.ATRBuffer.String())
				if sig, ok := s.newSignal(ev, types.DirectionBuy, breakoutStrength, reason); ok {
					signals = append(signals, sig)
					st.armed = false
				}
			}
		}
	}

	st.push(bar, s.cfg.Lookback)
	return signals
}

// Reset drops all per-symbol windows.
func (s *Breakout) Reset() {
	s.BaseStrategy.Reset()
	s.states = make(map[string]*breakoutState)
}

func (s *Breakout) state(symbol string) *breakoutState {
	st, ok := s.states[symbol]
	if !ok {
		st = &breakoutState{
			highs:   make([]decimal.Decimal, 0, s.cfg.Lookback),
			volumes: make([]int64, 0, s.cfg.Lookback),
			atr:     indicator.NewATR(s.cfg.ATRPeriod),
			armed:   true,
		}
		s.states[symbol] = st
	}
	return st
}

func (s *Breakout) volumeConfirmed(st *breakoutState, volume int64) bool {
	avg := avgVolume(st.volumes)
	if !avg.IsPositive() {
		return false
	}
	return decimal.NewFromInt(volume).GreaterThanOrEqual(avg.Mul(s.cfg.VolumeMult))
}

// highest returns the largest value in the slice, zero when empty.
func highest(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	high := values[0]
	for _, v := range values[1:] {
		if v.GreaterThan(high) {
			high = v
		}
	}
	return high
}

// lowest returns the smallest value in the slice, zero when empty.
func lowest(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	low := values[0]
	for _, v := range values[1:] {
		if v.LessThan(low) {
			low = v
		}
	}
	return low
}

func avgVolume(volumes []int64) decimal.Decimal {
	if len(volumes) == 0 {
		return decimal.Zero
	}
	var sum int64
	for _, v := range volumes {
		sum += v
	}
	return decimal.NewFromInt(sum).Div(decimal.NewFromInt(int64(len(volumes))))
}
