package indicator

import (
	"github.com/shopspring/decimal"
)

// StdDev is a rolling sample standard deviation (n-1 in the denominator),
// matching how the Bollinger band width is computed.
type StdDev struct {
	win *window
}

// NewStdDev creates a StdDev calculator. Periods below 2 are clamped to 2.
func NewStdDev(period int) *StdDev {
	if period < 2 {
		period = 2
	}
	return &StdDev{win: newWindow(period)}
}

// Update adds a value and returns the current deviation, zero until the
// window is full.
func (s *StdDev) Update(value decimal.Decimal) decimal.Decimal {
	s.win.push(value)
	return s.Current()
}

// Current returns the deviation without adding data.
func (s *StdDev) Current() decimal.Decimal {
	if !s.win.full() {
		return decimal.Zero
	}

	mean := s.win.mean()
	var sumSquares decimal.Decimal
	for _, v := range s.win.values {
		diff := v.Sub(mean)
		sumSquares = sumSquares.Add(diff.Mul(diff))
	}
	variance := sumSquares.Div(decimal.NewFromInt(int64(s.win.count() - 1)))
	return sqrt(variance)
}

// Mean returns the rolling mean over the same window.
func (s *StdDev) Mean() decimal.Decimal {
	if !s.win.full() {
		return decimal.Zero
	}
	return s.win.mean()
}

// Ready reports whether a full period of data has been seen.
func (s *StdDev) Ready() bool {
	return s.win.full()
}

// Period returns the configured period.
func (s *StdDev) Period() int {
	return s.win.size
}

// Reset clears all data.
func (s *StdDev) Reset() {
	s.win.reset()
}
