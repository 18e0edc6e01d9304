package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLC observation for a symbol at a given frequency.
// Bars are immutable after construction; NewBar enforces the price invariants.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Frequency Frequency

	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
	Amount decimal.Decimal
	// Turnover is the free-float turnover rate for the period, as a ratio.
	Turnover decimal.Decimal

	// Optional precomputed indicators. Nil when the upstream store did not
	// carry them; the data layer may backfill via pkg/indicator.
	MA5       *decimal.Decimal
	MA20      *decimal.Decimal
	MA60      *decimal.Decimal
	MACDDIF   *decimal.Decimal
	MACDDEA   *decimal.Decimal
	MACDHist  *decimal.Decimal
	RSI14     *decimal.Decimal
	BollUpper *decimal.Decimal
	BollLower *decimal.Decimal

	IsST       bool
	IsNewStock bool
}

// NewBar validates and constructs a Bar.
func NewBar(symbol string, ts time.Time, freq Frequency, open, high, low, close decimal.Decimal, volume int64, amount decimal.Decimal) (Bar, error) {
	b := Bar{
		Symbol:    symbol,
		Timestamp: ts,
		Frequency: freq,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
		Amount:    amount,
	}
	if err := b.validate(); err != nil {
		return Bar{}, err
	}
	return b, nil
}

func (b Bar) validate() error {
	if b.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidBar)
	}
	if !b.Frequency.Valid() {
		return fmt.Errorf("%w: frequency %q", ErrInvalidBar, b.Frequency)
	}
	if b.High.LessThan(decimal.Max(b.Open, b.Close)) {
		return fmt.Errorf("%w: high %s below open/close", ErrInvalidBar, b.High)
	}
	if b.Low.GreaterThan(decimal.Min(b.Open, b.Close)) {
		return fmt.Errorf("%w: low %s above open/close", ErrInvalidBar, b.Low)
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w: negative volume %d", ErrInvalidBar, b.Volume)
	}
	if b.Amount.IsNegative() {
		return fmt.Errorf("%w: negative amount %s", ErrInvalidBar, b.Amount)
	}
	return nil
}

// IsBullish reports whether the bar closed above its open.
func (b Bar) IsBullish() bool {
	return b.Close.GreaterThan(b.Open)
}

// BodySize returns the absolute open-to-close range.
func (b Bar) BodySize() decimal.Decimal {
	return b.Close.Sub(b.Open).Abs()
}

// ChangePct returns (close-open)/open, or zero when open is zero.
func (b Bar) ChangePct() decimal.Decimal {
	if b.Open.IsZero() {
		return decimal.Zero
	}
	return b.Close.Sub(b.Open).Div(b.Open)
}

// Date returns the bar timestamp truncated to its calendar day.
func (b Bar) Date() time.Time {
	y, m, d := b.Timestamp.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, b.Timestamp.Location())
}
