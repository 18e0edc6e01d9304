package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// BacktestRecord summarizes one finished backtest run for persistence.
type BacktestRecord struct {
	ID             string
	Start          time.Time
	End            time.Time
	InitialCapital decimal.Decimal
	FinalValue     decimal.Decimal
	TotalReturn    decimal.Decimal
	MaxDrawdown    decimal.Decimal
	WinRate        decimal.Decimal
	TotalTrades    int
	CreatedTime    time.Time
}
