package indicator

import (
	"github.com/shopspring/decimal"
)

// MACDValue is one MACD observation. Histogram uses the A-share
// convention (DIF - DEA) * 2.
type MACDValue struct {
	DIF       decimal.Decimal
	DEA       decimal.Decimal
	Histogram decimal.Decimal
}

// MACD is the moving average convergence divergence indicator:
// DIF = EMA(fast) - EMA(slow), DEA = EMA(signal) of DIF.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
}

// NewMACD creates a MACD calculator. The common parameterization is
// NewMACD(12, 26, 9).
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) *MACD {
	return &MACD{
		fast:   NewEMA(fastPeriod),
		slow:   NewEMA(slowPeriod),
		signal: NewEMA(signalPeriod),
	}
}

// Update adds a closing price and returns the current MACD, zeros until
// the slow and signal lines are both warmed up.
func (m *MACD) Update(close decimal.Decimal) MACDValue {
	m.fast.Update(close)
	m.slow.Update(close)
	dif := m.fast.raw().Sub(m.slow.raw())
	m.signal.Update(dif)
	return m.Current()
}

// Current returns the MACD without adding data.
func (m *MACD) Current() MACDValue {
	if !m.Ready() {
		return MACDValue{}
	}
	dif := m.fast.raw().Sub(m.slow.raw())
	dea := m.signal.raw()
	return MACDValue{
		DIF:       dif,
		DEA:       dea,
		Histogram: dif.Sub(dea).Mul(decimal.NewFromInt(2)),
	}
}

// Ready reports whether the slow and signal lines have warmed up.
func (m *MACD) Ready() bool {
	return m.slow.Ready() && m.signal.Ready()
}

// Reset clears all data.
func (m *MACD) Reset() {
	m.fast.Reset()
	m.slow.Reset()
	m.signal.Reset()
}
