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

var meanRevertStrength = decimal.RequireFromString("0.6")

// MeanRevertConfig holds the tunables for the oversold reversion entry.
type MeanRevertConfig struct {
	BollPeriod  int
	BollWidth   int64
	RSIPeriod   int
	RSIOversold decimal.Decimal
}

// DefaultMeanRevertConfig returns the standard 20/2 bands with RSI14 < 30.
func DefaultMeanRevertConfig() MeanRevertConfig {
	return MeanRevertConfig{
		BollPeriod:  20,
		BollWidth:   2,
		RSIPeriod:   14,
		RSIOversold: decimal.NewFromInt(30),
	}
}

type meanRevertState struct {
	boll *indicator.BOLL
	rsi  *indicator.RSI
	// signalled suppresses refires while the close stays under the band.
	signalled bool
}

// MeanRevert is an ENTRY strategy buying oversold dips: the close falls
// below the lower Bollinger band while RSI confirms the move is stretched.
// Bands and RSI are evaluated from the bars before the current one, the
// same way a chart reader compares today's close against yesterday's bands.
type MeanRevert struct {
	*BaseStrategy
	cfg    MeanRevertConfig
	states map[string]*meanRevertState
}

// NewMeanRevert builds a mean-reversion instance. Options: boll_period,
// boll_width, rsi_period, rsi_oversold, universe.
func NewMeanRevert(inst types.StrategyInstance, positions PositionReader, logger *slog.Logger) *MeanRevert {
	inst.Kind = types.KindEntry
	cfg := DefaultMeanRevertConfig()
	cfg.BollPeriod = inst.ConfigInt("boll_period", cfg.BollPeriod)
	cfg.BollWidth = int64(inst.ConfigInt("boll_width", int(cfg.BollWidth)))
	cfg.RSIPeriod = inst.ConfigInt("rsi_period", cfg.RSIPeriod)
	cfg.RSIOversold = inst.ConfigDecimal("rsi_oversold", cfg.RSIOversold)
	return &MeanRevert{
		BaseStrategy: NewBase(inst, positions, logger),
		cfg:          cfg,
		states:       make(map[string]*meanRevertState),
	}
}

// OnMarket compares the close against the bands of the prior window, then
// rolls the close into the indicators.
func (s *MeanRevert) OnMarket(ctx context.Context, ev event.MarketEvent) []types.Signal {
	st := s.state(ev.Symbol)
	close := ev.Bar.Close

	prevReady := st.boll.Ready() && st.rsi.Ready()
	prevBands := st.boll.Current()
	prevRSI := st.rsi.Current()

	st.boll.Update(close)
	st.rsi.Update(close)

	if !prevReady {
		return nil
	}
	if close.GreaterThanOrEqual(prevBands.Lower) {
		// Back inside the band: re-arm for the next excursion.
		st.signalled = false
		return nil
	}
	if st.signalled || prevRSI.GreaterThanOrEqual(s.cfg.RSIOversold) {
		return nil
	}

	reason := fmt.Sprintf("mean revert: close %s below lower band %s, rsi %s",
		close.StringFixed(2), prevBands.Lower.StringFixed(2), prevRSI.StringFixed(2))
	sig, ok := s.newSignal(ev, types.DirectionBuy, meanRevertStrength, reason)
	if !ok {
		return nil
	}
	st.signalled = true
	return []types.Signal{sig}
}

// Reset drops all per-symbol indicator state.
func (s *MeanRevert) Reset() {
	s.BaseStrategy.Reset()
	s.states = make(map[string]*meanRevertState)
}

func (s *MeanRevert) state(symbol string) *meanRevertState {
	st, ok := s.states[symbol]
	if !ok {
		st = &meanRevertState{
			boll: indicator.NewBOLL(s.cfg.BollPeriod, s.cfg.BollWidth),
			rsi:  indicator.NewRSI(s.cfg.RSIPeriod),
		}
		s.states[symbol] = st
	}
	return st
}
