package indicator

import (
	"github.com/shopspring/decimal"
)

// Bands is one Bollinger observation.
type Bands struct {
	Upper  decimal.Decimal
	Middle decimal.Decimal
	Lower  decimal.Decimal
}

// BOLL computes Bollinger bands: middle = SMA(period), upper/lower =
// middle +/- width * rolling sample deviation.
type BOLL struct {
	std   *StdDev
	width decimal.Decimal
}

// NewBOLL creates a Bollinger calculator. The common parameterization is
// NewBOLL(20, 2).
func NewBOLL(period int, width int64) *BOLL {
	return &BOLL{
		std:   NewStdDev(period),
		width: decimal.NewFromInt(width),
	}
}

// Update adds a closing price and returns the current bands, zeros until
// the window is full.
func (b *BOLL) Update(close decimal.Decimal) Bands {
	b.std.Update(close)
	return b.Current()
}

// Current returns the bands without adding data.
func (b *BOLL) Current() Bands {
	if !b.Ready() {
		return Bands{}
	}
	mid := b.std.Mean()
	spread := b.std.Current().Mul(b.width)
	return Bands{
		Upper:  mid.Add(spread),
		Middle: mid,
		Lower:  mid.Sub(spread),
	}
}

// Ready reports whether a full period of data has been seen.
func (b *BOLL) Ready() bool {
	return b.std.Ready()
}

// Period returns the configured period.
func (b *BOLL) Period() int {
	return b.std.Period()
}

// Reset clears all data.
func (b *BOLL) Reset() {
	b.std.Reset()
}
