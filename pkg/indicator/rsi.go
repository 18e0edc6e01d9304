package indicator

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RSI is the relative strength index over simple rolling averages of gains
// and losses: RSI = 100 - 100/(1+RS), RS = avg gain / avg loss.
type RSI struct {
	gains     *window
	losses    *window
	prevClose decimal.Decimal
	seen      int
}

// NewRSI creates an RSI calculator. The common period is 14. The window
// counts price changes, so period+1 closes are needed before Ready.
func NewRSI(period int) *RSI {
	return &RSI{
		gains:  newWindow(period),
		losses: newWindow(period),
	}
}

// Update adds a closing price and returns the current RSI, zero until
// ready. A window with no losses reads 100, no gains reads 0, flat reads 50.
func (r *RSI) Update(close decimal.Decimal) decimal.Decimal {
	if r.seen > 0 {
		delta := close.Sub(r.prevClose)
		if delta.IsPositive() {
			r.gains.push(delta)
			r.losses.push(decimal.Zero)
		} else {
			r.gains.push(decimal.Zero)
			r.losses.push(delta.Neg())
		}
	}
	r.prevClose = close
	r.seen++
	return r.Current()
}

// Current returns the RSI without adding data.
func (r *RSI) Current() decimal.Decimal {
	if !r.Ready() {
		return decimal.Zero
	}
	avgGain := r.gains.mean()
	avgLoss := r.losses.mean()

	switch {
	case avgLoss.IsZero() && avgGain.IsZero():
		return decimal.NewFromInt(50)
	case avgLoss.IsZero():
		return hundred
	}
	rs := avgGain.Div(avgLoss)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
}

// Ready reports whether a full period of price changes has been seen.
func (r *RSI) Ready() bool {
	return r.gains.full()
}

// Period returns the configured period.
func (r *RSI) Period() int {
	return r.gains.size
}

// Reset clears all data.
func (r *RSI) Reset() {
	r.gains.reset()
	r.losses.reset()
	r.prevClose = decimal.Zero
	r.seen = 0
}
