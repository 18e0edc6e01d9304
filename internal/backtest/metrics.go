package backtest

import (
	"math"

	"github.com/Will-Grindelwald/quant-trading/internal/types"
	"github.com/shopspring/decimal"
)

// Metrics computes performance ratios over a finished run. Only closed
// trades enter the trade-based figures; open positions have no realized pnl
// to score.
type Metrics struct {
	trades       []types.Trade
	equityCurve  []EquityPoint
	riskFreeRate decimal.Decimal // annualized, e.g. 0.02 for 2%
}

// NewMetrics creates a metrics calculator for the result.
func NewMetrics(result *Result, riskFreeRate decimal.Decimal) *Metrics {
	closed := make([]types.Trade, 0, len(result.Trades))
	for _, t := range result.Trades {
		if t.Status == types.TradeClosed {
			closed = append(closed, t)
		}
	}
	return &Metrics{
		trades:       closed,
		equityCurve:  result.EquityCurve,
		riskFreeRate: riskFreeRate,
	}
}

// SharpeRatio calculates the annualized Sharpe ratio from daily returns:
// (mean_return - daily_risk_free) / std_dev * sqrt(252).
func (m *Metrics) SharpeRatio() decimal.Decimal {
	returns := m.dailyReturns()
	if len(returns) < 2 {
		return decimal.Zero
	}

	meanReturn := mean(returns)
	stdDev := standardDeviation(returns)
	if stdDev.IsZero() {
		return decimal.Zero
	}

	dailyRf := m.riskFreeRate.Div(tradingDaysPerYear)
	excessReturn := meanReturn.Sub(dailyRf)
	return excessReturn.Div(stdDev).Mul(sqrtTradingDays)
}

// SortinoRatio is the Sharpe variant using downside deviation only.
func (m *Metrics) SortinoRatio() decimal.Decimal {
	returns := m.dailyReturns()
	if len(returns) < 2 {
		return decimal.Zero
	}

	meanReturn := mean(returns)
	downsideDev := downsideDeviation(returns, decimal.Zero)
	if downsideDev.IsZero() {
		return decimal.Zero
	}

	dailyRf := m.riskFreeRate.Div(tradingDaysPerYear)
	excessReturn := meanReturn.Sub(dailyRf)
	return excessReturn.Div(downsideDev).Mul(sqrtTradingDays)
}

// MaxDrawdown returns the maximum drawdown below the running high-water
// mark, as a ratio.
func (m *Metrics) MaxDrawdown() decimal.Decimal {
	if len(m.equityCurve) == 0 {
		return decimal.Zero
	}

	hwm := m.equityCurve[0].Equity
	maxDD := decimal.Zero
	for _, point := range m.equityCurve {
		if point.Equity.GreaterThan(hwm) {
			hwm = point.Equity
		}
		if hwm.IsPositive() {
			dd := hwm.Sub(point.Equity).Div(hwm)
			if dd.GreaterThan(maxDD) {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// CalmarRatio is the annualized return over the maximum drawdown.
func (m *Metrics) CalmarRatio() decimal.Decimal {
	maxDD := m.MaxDrawdown()
	if maxDD.IsZero() {
		return decimal.Zero
	}
	return m.AnnualizedReturn().Div(maxDD)
}

// AnnualizedReturn scales the curve's total return to a calendar year.
// Windows under a few days return the raw total return unscaled.
func (m *Metrics) AnnualizedReturn() decimal.Decimal {
	if len(m.equityCurve) < 2 {
		return decimal.Zero
	}

	first := m.equityCurve[0]
	last := m.equityCurve[len(m.equityCurve)-1]
	if first.Equity.IsZero() {
		return decimal.Zero
	}
	totalReturn := last.Equity.Sub(first.Equity).Div(first.Equity)

	days := last.Timestamp.Sub(first.Timestamp).Hours() / 24
	if days <= 0 {
		return totalReturn
	}
	years := days / 365
	if years < 0.01 {
		return totalReturn
	}

	annualized := math.Pow(1+totalReturn.InexactFloat64(), 1/years) - 1
	return decimal.NewFromFloat(annualized)
}

// WinRate returns the share of closed trades with positive realized pnl.
func (m *Metrics) WinRate() decimal.Decimal {
	if len(m.trades) == 0 {
		return decimal.Zero
	}
	wins := 0
	for _, trade := range m.trades {
		if trade.RealizedPnL.IsPositive() {
			wins++
		}
	}
	return decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(m.trades))))
}

// ProfitFactor is gross profit over gross loss; zero when nothing was lost.
func (m *Metrics) ProfitFactor() decimal.Decimal {
	grossProfit := decimal.Zero
	grossLoss := decimal.Zero
	for _, trade := range m.trades {
		if trade.RealizedPnL.IsPositive() {
			grossProfit = grossProfit.Add(trade.RealizedPnL)
		} else {
			grossLoss = grossLoss.Add(trade.RealizedPnL.Abs())
		}
	}
	if grossLoss.IsZero() {
		return decimal.Zero
	}
	return grossProfit.Div(grossLoss)
}

// AverageWin returns the mean realized pnl of winning trades.
func (m *Metrics) AverageWin() decimal.Decimal {
	totalWin := decimal.Zero
	winCount := 0
	for _, trade := range m.trades {
		if trade.RealizedPnL.IsPositive() {
			totalWin = totalWin.Add(trade.RealizedPnL)
			winCount++
		}
	}
	if winCount == 0 {
		return decimal.Zero
	}
	return totalWin.Div(decimal.NewFromInt(int64(winCount)))
}

// AverageLoss returns the mean realized pnl of losing trades, negative.
func (m *Metrics) AverageLoss() decimal.Decimal {
	totalLoss := decimal.Zero
	lossCount := 0
	for _, trade := range m.trades {
		if trade.RealizedPnL.IsNegative() {
			totalLoss = totalLoss.Add(trade.RealizedPnL)
			lossCount++
		}
	}
	if lossCount == 0 {
		return decimal.Zero
	}
	return totalLoss.Div(decimal.NewFromInt(int64(lossCount)))
}

// Expectancy is the expected realized pnl per trade:
// win_rate * avg_win + (1 - win_rate) * avg_loss.
func (m *Metrics) Expectancy() decimal.Decimal {
	winRate := m.WinRate()
	avgWin := m.AverageWin()
	avgLoss := m.AverageLoss()
	return winRate.Mul(avgWin).Add(decimal.NewFromInt(1).Sub(winRate).Mul(avgLoss))
}

// dailyReturns computes per-point returns from the equity curve.
func (m *Metrics) dailyReturns() []decimal.Decimal {
	if len(m.equityCurve) < 2 {
		return nil
	}
	returns := make([]decimal.Decimal, 0, len(m.equityCurve)-1)
	for i := 1; i < len(m.equityCurve); i++ {
		prev := m.equityCurve[i-1].Equity
		curr := m.equityCurve[i].Equity
		if prev.IsZero() {
			continue
		}
		returns = append(returns, curr.Sub(prev).Div(prev))
	}
	return returns
}

var (
	tradingDaysPerYear = decimal.NewFromInt(252)
	sqrtTradingDays    = decimal.NewFromFloat(math.Sqrt(252))
)

func mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

func standardDeviation(values []decimal.Decimal) decimal.Decimal {
	if len(values) < 2 {
		return decimal.Zero
	}
	m := mean(values)
	sumSquares := decimal.Zero
	for _, v := range values {
		diff := v.Sub(m)
		sumSquares = sumSquares.Add(diff.Mul(diff))
	}
	variance := sumSquares.Div(decimal.NewFromInt(int64(len(values) - 1)))

	f := variance.InexactFloat64()
	if f < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(math.Sqrt(f))
}

// downsideDeviation is the standard deviation of returns below target.
func downsideDeviation(returns []decimal.Decimal, target decimal.Decimal) decimal.Decimal {
	negative := make([]decimal.Decimal, 0)
	for _, r := range returns {
		if r.LessThan(target) {
			negative = append(negative, r)
		}
	}
	if len(negative) < 2 {
		return decimal.Zero
	}
	return standardDeviation(negative)
}
