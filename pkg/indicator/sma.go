package indicator

import (
	"github.com/shopspring/decimal"
)

// SMA is a simple moving average over a fixed period.
type SMA struct {
	win *window
}

// NewSMA creates an SMA calculator. Periods below 1 are clamped to 1.
func NewSMA(period int) *SMA {
	return &SMA{win: newWindow(period)}
}

// Update adds a value and returns the current average, zero until the
// window is full.
func (s *SMA) Update(value decimal.Decimal) decimal.Decimal {
	s.win.push(value)
	return s.Current()
}

// Current returns the average without adding data.
func (s *SMA) Current() decimal.Decimal {
	if !s.win.full() {
		return decimal.Zero
	}
	return s.win.mean()
}

// Ready reports whether a full period of data has been seen.
func (s *SMA) Ready() bool {
	return s.win.full()
}

// Period returns the configured period.
func (s *SMA) Period() int {
	return s.win.size
}

// Count returns the number of values currently held.
func (s *SMA) Count() int {
	return s.win.count()
}

// Reset clears all data.
func (s *SMA) Reset() {
	s.win.reset()
}
