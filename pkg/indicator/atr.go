package indicator

import (
	"github.com/shopspring/decimal"
)

// ATR is the average true range over a fixed period, where
// TR = max(high-low, |high-prevClose|, |low-prevClose|).
type ATR struct {
	win       *window
	prevClose decimal.Decimal
	seen      int
}

// NewATR creates an ATR calculator. Periods below 1 are clamped to 1.
func NewATR(period int) *ATR {
	return &ATR{win: newWindow(period)}
}

// Update feeds one bar and returns the current ATR, zero until the window
// is full. The first bar's true range is high-low.
func (a *ATR) Update(high, low, close decimal.Decimal) decimal.Decimal {
	tr := high.Sub(low)
	if a.seen > 0 {
		hpc := high.Sub(a.prevClose).Abs()
		lpc := low.Sub(a.prevClose).Abs()
		tr = maxDecimal(tr, maxDecimal(hpc, lpc))
	}
	a.prevClose = close
	a.seen++

	a.win.push(tr)
	return a.Current()
}

// Current returns the ATR without adding data.
func (a *ATR) Current() decimal.Decimal {
	if !a.win.full() {
		return decimal.Zero
	}
	return a.win.mean()
}

// Ready reports whether a full period of data has been seen.
func (a *ATR) Ready() bool {
	return a.win.full()
}

// Period returns the configured period.
func (a *ATR) Period() int {
	return a.win.size
}

// Reset clears all data.
func (a *ATR) Reset() {
	a.win.reset()
	a.prevClose = decimal.Zero
	a.seen = 0
}
