package types

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Account is the book of record: cash, frozen cash, positions, orders, fills
// and matched trades. All mutation goes through FreezeCash/UnfreezeCash/
// AddOrder/ApplyFill, which the portfolio manager calls from its single
// worker. The internal mutex exists for concurrent read-only snapshots
// (strategy position queries, stats endpoints), not to serialize writers.
type Account struct {
	mu sync.RWMutex

	ID             string
	InitialCapital decimal.Decimal

	cash       decimal.Decimal
	frozenCash decimal.Decimal
	positions  map[string]*Position

	orders map[string]*Order
	fills  []Fill
	trades []*Trade
	// openTrades indexes open trades by symbol|strategy, earliest first.
	openTrades map[string][]*Trade

	totalCommission  decimal.Decimal
	totalRealizedPnL decimal.Decimal
}

// NewAccount creates an account funded with initialCapital.
func NewAccount(id string, initialCapital decimal.Decimal) (*Account, error) {
	if !initialCapital.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCapital, initialCapital)
	}
	return &Account{
		ID:             id,
		InitialCapital: initialCapital,
		cash:           initialCapital,
		positions:      make(map[string]*Position),
		orders:         make(map[string]*Order),
		openTrades:     make(map[string][]*Trade),
	}, nil
}

func tradeKey(symbol, strategyID string) string {
	return symbol + "|" + strategyID
}

// Cash returns the gross cash balance.
func (a *Account) Cash() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cash
}

// FrozenCash returns the currently reserved cash.
func (a *Account) FrozenCash() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.frozenCash
}

// AvailableCash returns cash minus frozen cash.
func (a *Account) AvailableCash() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cash.Sub(a.frozenCash)
}

// FreezeCash reserves amount against future order settlement.
func (a *Account) FreezeCash(amount decimal.Decimal) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount %s", ErrFreezeFailed, amount)
	}
	if a.cash.Sub(a.frozenCash).LessThan(amount) {
		return fmt.Errorf("%w: need %s, available %s", ErrFreezeFailed, amount, a.cash.Sub(a.frozenCash))
	}
	a.frozenCash = a.frozenCash.Add(amount)
	return nil
}

// UnfreezeCash releases up to amount of reserved cash; over-release clamps
// to zero rather than erroring, since fills settle at a slipped price.
func (a *Account) UnfreezeCash(amount decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frozenCash = a.frozenCash.Sub(amount)
	if a.frozenCash.IsNegative() {
		a.frozenCash = decimal.Zero
	}
}

// AddOrder records an order in the book.
func (a *Account) AddOrder(o *Order) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.orders[o.ID] = o
}

// Order returns the order with the given id.
func (a *Account) Order(id string) (*Order, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	o, ok := a.orders[id]
	return o, ok
}

// OrderCount returns the number of recorded orders.
func (a *Account) OrderCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.orders)
}

// ApplyFill settles an execution against the book: position cost basis,
// cash, commission tally, the fill log, and trade open/close matching.
func (a *Account) ApplyFill(f Fill) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	deltaQty := f.Quantity
	if f.Side == SideSell {
		deltaQty = -f.Quantity
	}

	pos, ok := a.positions[f.Symbol]
	if !ok {
		pos = &Position{Symbol: f.Symbol, StrategyID: f.StrategyID}
		a.positions[f.Symbol] = pos
	}
	pos.ApplyDelta(deltaQty, f.Price, f.Timestamp)
	if pos.IsEmpty() {
		delete(a.positions, f.Symbol)
	}

	if f.Side == SideBuy {
		a.cash = a.cash.Sub(f.NetAmount())
	} else {
		a.cash = a.cash.Add(f.NetAmount())
	}
	a.totalCommission = a.totalCommission.Add(f.Commission)
	a.fills = append(a.fills, f)

	a.matchTrade(f)
	return nil
}

// matchTrade opens a trade on BUY when none is open for (symbol, strategy),
// and closes the earliest open trade on SELL. A SELL with no open trade
// under its own strategy falls back to the earliest open trade for the
// symbol, so forced stops realize pnl against the entry that opened it.
func (a *Account) matchTrade(f Fill) {
	key := tradeKey(f.Symbol, f.StrategyID)
	if f.Side == SideBuy {
		if len(a.openTrades[key]) == 0 {
			t := NewTradeFromBuy(f)
			a.trades = append(a.trades, t)
			a.openTrades[key] = append(a.openTrades[key], t)
		}
		return
	}

	open := a.openTrades[key]
	if len(open) == 0 {
		key = a.anyOpenTradeKey(f.Symbol)
		if key == "" {
			return
		}
		open = a.openTrades[key]
	}
	t := open[0]
	if err := t.Close(f); err != nil {
		return
	}
	a.openTrades[key] = open[1:]
	if len(a.openTrades[key]) == 0 {
		delete(a.openTrades, key)
	}
	a.totalRealizedPnL = a.totalRealizedPnL.Add(t.RealizedPnL)
}

func (a *Account) anyOpenTradeKey(symbol string) string {
	var earliest *Trade
	var earliestKey string
	for key, open := range a.openTrades {
		if len(open) == 0 || open[0].Symbol != symbol {
			continue
		}
		if earliest == nil || open[0].BuyTime.Before(earliest.BuyTime) {
			earliest = open[0]
			earliestKey = key
		}
	}
	return earliestKey
}

// Position returns a copy of the position for symbol.
func (a *Account) Position(symbol string) (Position, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Positions returns a copy of all open positions.
func (a *Account) Positions() map[string]Position {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]Position, len(a.positions))
	for sym, p := range a.positions {
		out[sym] = *p
	}
	return out
}

// PositionCount returns the number of open positions.
func (a *Account) PositionCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.positions)
}

// HasPosition reports whether symbol is currently held.
func (a *Account) HasPosition(symbol string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.positions[symbol]
	return ok
}

// PositionValue marks all positions at the given prices, falling back to
// each position's average cost when no price is known.
func (a *Account) PositionValue(prices map[string]decimal.Decimal) decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.positionValueLocked(prices)
}

func (a *Account) positionValueLocked(prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for sym, p := range a.positions {
		price, ok := prices[sym]
		if !ok {
			price = p.AvgPrice
		}
		total = total.Add(p.MarketValue(price))
	}
	return total
}

// TotalValue returns cash plus the marked value of all positions.
func (a *Account) TotalValue(prices map[string]decimal.Decimal) decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cash.Add(a.positionValueLocked(prices))
}

// UnrealizedPnL sums (mark-avg)*qty over open positions.
func (a *Account) UnrealizedPnL(prices map[string]decimal.Decimal) decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	total := decimal.Zero
	for sym, p := range a.positions {
		price, ok := prices[sym]
		if !ok {
			price = p.AvgPrice
		}
		total = total.Add(p.UnrealizedPnL(price))
	}
	return total
}

// Fills returns a copy of the fill log in arrival order.
func (a *Account) Fills() []Fill {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Fill, len(a.fills))
	copy(out, a.fills)
	return out
}

// Trades returns a copy of all trades, open and closed.
func (a *Account) Trades() []Trade {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Trade, 0, len(a.trades))
	for _, t := range a.trades {
		out = append(out, *t)
	}
	return out
}

// TotalCommission returns the cumulative commission paid.
func (a *Account) TotalCommission() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.totalCommission
}

// RealizedPnL returns the cumulative realized pnl over closed trades.
func (a *Account) RealizedPnL() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.totalRealizedPnL
}

// Snapshot is a point-in-time copy of the account's value fields.
type Snapshot struct {
	Timestamp       time.Time
	Cash            decimal.Decimal
	FrozenCash      decimal.Decimal
	PositionValue   decimal.Decimal
	TotalValue      decimal.Decimal
	PositionCount   int
	TotalCommission decimal.Decimal
	RealizedPnL     decimal.Decimal
	UnrealizedPnL   decimal.Decimal
}

// Snapshot captures the account state marked at the given prices.
func (a *Account) Snapshot(ts time.Time, prices map[string]decimal.Decimal) Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	posValue := a.positionValueLocked(prices)
	unrealized := decimal.Zero
	for sym, p := range a.positions {
		price, ok := prices[sym]
		if !ok {
			price = p.AvgPrice
		}
		unrealized = unrealized.Add(p.UnrealizedPnL(price))
	}
	return Snapshot{
		Timestamp:       ts,
		Cash:            a.cash,
		FrozenCash:      a.frozenCash,
		PositionValue:   posValue,
		TotalValue:      a.cash.Add(posValue),
		PositionCount:   len(a.positions),
		TotalCommission: a.totalCommission,
		RealizedPnL:     a.totalRealizedPnL,
		UnrealizedPnL:   unrealized,
	}
}
