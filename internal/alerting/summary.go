package alerting

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailySummary is the end-of-day report sent after the afternoon session
// closes.
type DailySummary struct {
	Date           time.Time
	StartingEquity decimal.Decimal
	EndingEquity   decimal.Decimal
	HighWaterMark  decimal.Decimal
	TotalPL        decimal.Decimal
	ReturnPct      decimal.Decimal
	Drawdown       decimal.Decimal
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
	WinRate        decimal.Decimal
	Commission     decimal.Decimal
	OpenPositions  int
}

// pct returns part/whole as a percentage, zero when whole is zero.
func pct(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100))
}

// NewDailySummary derives the report figures from the day's raw numbers.
// ReturnPct, Drawdown and WinRate come out as percentages; drawdown is
// clamped at zero when equity sits on a new high.
func NewDailySummary(
	date time.Time,
	startEquity, endEquity, highWater decimal.Decimal,
	totalTrades, winningTrades, losingTrades int,
	commission decimal.Decimal,
	openPositions int,
) DailySummary {
	totalPL := endEquity.Sub(startEquity)

	drawdown := pct(highWater.Sub(endEquity), highWater)
	if drawdown.IsNegative() {
		drawdown = decimal.Zero
	}

	winRate := pct(
		decimal.NewFromInt(int64(winningTrades)),
		decimal.NewFromInt(int64(totalTrades)),
	)

	return DailySummary{
		Date:           date,
		StartingEquity: startEquity,
		EndingEquity:   endEquity,
		HighWaterMark:  highWater,
		TotalPL:        totalPL,
		ReturnPct:      pct(totalPL, startEquity),
		Drawdown:       drawdown,
		TotalTrades:    totalTrades,
		WinningTrades:  winningTrades,
		LosingTrades:   losingTrades,
		WinRate:        winRate,
		Commission:     commission,
		OpenPositions:  openPositions,
	}
}
