package strategy

import (
	"fmt"
	"log/slog"

	"github.com/Will-Grindelwald/quant-trading/internal/types"
)

// Deps are the shared services a strategy receives at construction.
type Deps struct {
	Positions PositionReader
	Bars      BarProvider
	Logger    *slog.Logger
}

// Build constructs a strategy from its configured algorithm name.
func Build(inst types.StrategyInstance, deps Deps) (Strategy, error) {
	switch inst.Name {
	case "ma_cross":
		return NewMACross(inst, deps.Positions, deps.Bars, deps.Logger), nil
	case "universal_stop":
		return NewUniversalStop(inst, deps.Positions, deps.Logger), nil
	case "breakout":
		return NewBreakout(inst, deps.Positions, deps.Logger), nil
	case "mean_revert":
		return NewMeanRevert(inst, deps.Positions, deps.Logger), nil
	case "grid":
		return NewGrid(inst, deps.Positions, deps.Logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", types.ErrInvalidConfig, inst.Name)
	}
}
