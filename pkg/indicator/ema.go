package indicator

import (
	"github.com/shopspring/decimal"
)

// EMA is an exponential moving average with multiplier 2/(period+1),
// seeded from the first value.
type EMA struct {
	period int
	alpha  decimal.Decimal
	value  decimal.Decimal
	seen   int
}

// NewEMA creates an EMA calculator. Periods below 1 are clamped to 1.
func NewEMA(period int) *EMA {
	if period < 1 {
		period = 1
	}
	alpha := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(period) + 1))
	return &EMA{period: period, alpha: alpha}
}

// Update adds a value and returns the current EMA, zero until a full
// period of data has been seen.
func (e *EMA) Update(value decimal.Decimal) decimal.Decimal {
	if e.seen == 0 {
		e.value = value
	} else {
		e.value = value.Sub(e.value).Mul(e.alpha).Add(e.value)
	}
	e.seen++
	return e.Current()
}

// Current returns the EMA without adding data.
func (e *EMA) Current() decimal.Decimal {
	if !e.Ready() {
		return decimal.Zero
	}
	return e.value
}

// raw returns the running EMA before the warmup gate, for composites that
// chain EMAs.
func (e *EMA) raw() decimal.Decimal {
	return e.value
}

// Ready reports whether a full period of data has been seen.
func (e *EMA) Ready() bool {
	return e.seen >= e.period
}

// Period returns the configured period.
func (e *EMA) Period() int {
	return e.period
}

// Reset clears all data.
func (e *EMA) Reset() {
	e.value = decimal.Zero
	e.seen = 0
}
