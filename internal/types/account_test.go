package types

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var acctTime = time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

func newTestAccount(t *testing.T) *Account {
	t.Helper()
	a, err := NewAccount("test", d("1000000"))
	if err != nil {
		t.Fatalf("NewAccount() error = %v", err)
	}
	return a
}

func mustFill(t *testing.T, side Side, qty int64, price, commission string, strategyID string) Fill {
	t.Helper()
	f, err := NewFill("ord-"+strategyID, "600000", side, qty, d(price), d(commission), acctTime, strategyID)
	if err != nil {
		t.Fatalf("NewFill() error = %v", err)
	}
	return f
}

// TestNewAccount tests construction checks.
func TestNewAccount(t *testing.T) {
	a := newTestAccount(t)
	if !a.Cash().Equal(d("1000000")) {
		t.Errorf("Cash() = %s, want 1000000", a.Cash())
	}
	if _, err := NewAccount("bad", decimal.Zero); !errors.Is(err, ErrInvalidCapital) {
		t.Errorf("NewAccount(0) error = %v, want ErrInvalidCapital", err)
	}
	if _, err := NewAccount("bad", d("-1")); err == nil {
		t.Error("NewAccount(-1) should fail")
	}
}

// TestAccount_FreezeUnfreeze tests cash reservation rules.
func TestAccount_FreezeUnfreeze(t *testing.T) {
	a := newTestAccount(t)

	if err := a.FreezeCash(d("600000")); err != nil {
		t.Fatalf("FreezeCash() error = %v", err)
	}
	if !a.AvailableCash().Equal(d("400000")) {
		t.Errorf("AvailableCash() = %s, want 400000", a.AvailableCash())
	}

	// Cannot freeze more than available.
	if err := a.FreezeCash(d("400001")); !errors.Is(err, ErrFreezeFailed) {
		t.Errorf("over-freeze error = %v, want ErrFreezeFailed", err)
	}
	// Zero and negative amounts are invalid.
	if err := a.FreezeCash(decimal.Zero); !errors.Is(err, ErrFreezeFailed) {
		t.Errorf("zero freeze error = %v, want ErrFreezeFailed", err)
	}

	// Unfreeze clamps at zero.
	a.UnfreezeCash(d("700000"))
	if !a.FrozenCash().IsZero() {
		t.Errorf("FrozenCash() = %s, want 0", a.FrozenCash())
	}
	if !a.AvailableCash().Equal(d("1000000")) {
		t.Errorf("AvailableCash() = %s, want 1000000", a.AvailableCash())
	}
}

// TestAccount_ApplyFill_Buy tests the BUY settlement path.
func TestAccount_ApplyFill_Buy(t *testing.T) {
	a := newTestAccount(t)
	fill := mustFill(t, SideBuy, 1000, "10.50", "5.00", "s1")

	if err := a.ApplyFill(fill); err != nil {
		t.Fatalf("ApplyFill() error = %v", err)
	}

	pos, ok := a.Position("600000")
	if !ok {
		t.Fatal("position should exist after buy fill")
	}
	if pos.Quantity != 1000 || !pos.AvgPrice.Equal(d("10.50")) {
		t.Errorf("position = %d @ %s, want 1000 @ 10.50", pos.Quantity, pos.AvgPrice)
	}

	// 1000000 - (1000*10.50 + 5) = 989495
	if !a.Cash().Equal(d("989495.00")) {
		t.Errorf("Cash() = %s, want 989495.00", a.Cash())
	}
	if !a.TotalCommission().Equal(d("5.00")) {
		t.Errorf("TotalCommission() = %s, want 5.00", a.TotalCommission())
	}
	if len(a.Fills()) != 1 {
		t.Errorf("fill log length = %d, want 1", len(a.Fills()))
	}
}

// TestAccount_ApplyFill_RoundTrip tests a buy-sell round trip: position
// removed, trade closed, realized pnl tallied, value equation holds.
func TestAccount_ApplyFill_RoundTrip(t *testing.T) {
	a := newTestAccount(t)

	if err := a.ApplyFill(mustFill(t, SideBuy, 1000, "10.00", "5.00", "s1")); err != nil {
		t.Fatalf("buy ApplyFill() error = %v", err)
	}
	if err := a.ApplyFill(mustFill(t, SideSell, 1000, "10.50", "5.00", "s1")); err != nil {
		t.Fatalf("sell ApplyFill() error = %v", err)
	}

	if a.PositionCount() != 0 {
		t.Errorf("PositionCount() = %d, want 0 after full close", a.PositionCount())
	}

	trades := a.Trades()
	if len(trades) != 1 {
		t.Fatalf("trade count = %d, want 1", len(trades))
	}
	if trades[0].Status != TradeClosed {
		t.Errorf("trade status = %s, want CLOSED", trades[0].Status)
	}
	// (10.50-10.00)*1000 - 10 = 490
	if !a.RealizedPnL().Equal(d("490.00")) {
		t.Errorf("RealizedPnL() = %s, want 490.00", a.RealizedPnL())
	}

	// cash = initial - (10000+5) + (10500-5) = 1000490
	if !a.Cash().Equal(d("1000490.00")) {
		t.Errorf("Cash() = %s, want 1000490.00", a.Cash())
	}

	// With no positions: cash == initial + realized pnl.
	want := a.InitialCapital.Add(a.RealizedPnL()).Sub(decimal.Zero)
	if !a.Cash().Equal(want) {
		t.Errorf("value equation broken: cash %s, initial+realized %s", a.Cash(), want)
	}
}

// TestAccount_ValueEquation tests that cash + marked positions equals
// initial capital + realized + unrealized pnl through full round trips
// (the shape the pipeline produces: one open per symbol, full-quantity
// closes). Commission-free fills keep the equation exact.
func TestAccount_ValueEquation(t *testing.T) {
	a := newTestAccount(t)

	seq := []struct {
		symbol string
		side   Side
		qty    int64
		price  string
	}{
		{"600000", SideBuy, 1000, "10.00"},
		{"600519", SideBuy, 200, "150.00"},
		{"600000", SideSell, 1000, "10.80"},
		{"000001", SideBuy, 2000, "8.00"},
	}
	for _, s := range seq {
		f, err := NewFill("ord", s.symbol, s.side, s.qty, d(s.price), decimal.Zero, acctTime, "s1")
		if err != nil {
			t.Fatalf("NewFill() error = %v", err)
		}
		if err := a.ApplyFill(f); err != nil {
			t.Fatalf("ApplyFill() error = %v", err)
		}
	}

	prices := map[string]decimal.Decimal{
		"600519": d("155.00"),
		"000001": d("7.50"),
	}
	lhs := a.TotalValue(prices)
	rhs := a.InitialCapital.Add(a.RealizedPnL()).Add(a.UnrealizedPnL(prices))
	if !lhs.Equal(rhs) {
		t.Errorf("value equation: total %s, want initial+realized+unrealized %s", lhs, rhs)
	}
	// (10.80-10.00)*1000 = 800
	if !a.RealizedPnL().Equal(d("800.00")) {
		t.Errorf("RealizedPnL() = %s, want 800.00", a.RealizedPnL())
	}
}

// TestAccount_PartialClose tests that reductions keep the position open.
func TestAccount_PartialClose(t *testing.T) {
	a := newTestAccount(t)

	if err := a.ApplyFill(mustFill(t, SideBuy, 1000, "10.00", "5.00", "s1")); err != nil {
		t.Fatalf("ApplyFill() error = %v", err)
	}
	if err := a.ApplyFill(mustFill(t, SideSell, 400, "11.00", "5.00", "s1")); err != nil {
		t.Fatalf("ApplyFill() error = %v", err)
	}

	pos, ok := a.Position("600000")
	if !ok {
		t.Fatal("position should survive partial close")
	}
	if pos.Quantity != 600 {
		t.Errorf("Quantity = %d, want 600", pos.Quantity)
	}
	if !pos.AvgPrice.Equal(d("10.00")) {
		t.Errorf("AvgPrice = %s, want 10.00 (unchanged on reduction)", pos.AvgPrice)
	}
}

// TestAccount_StopSellClosesForeignTrade tests the fallback: a SELL from a
// different strategy (forced stop) still closes the symbol's open trade.
func TestAccount_StopSellClosesForeignTrade(t *testing.T) {
	a := newTestAccount(t)

	if err := a.ApplyFill(mustFill(t, SideBuy, 1000, "10.00", "5.00", "entry_1")); err != nil {
		t.Fatalf("ApplyFill() error = %v", err)
	}
	if err := a.ApplyFill(mustFill(t, SideSell, 1000, "9.00", "5.00", "universal_stop")); err != nil {
		t.Fatalf("ApplyFill() error = %v", err)
	}

	trades := a.Trades()
	if len(trades) != 1 {
		t.Fatalf("trade count = %d, want 1", len(trades))
	}
	if trades[0].Status != TradeClosed {
		t.Errorf("trade status = %s, want CLOSED", trades[0].Status)
	}
	// (9-10)*1000 - 10 = -1010
	if !a.RealizedPnL().Equal(d("-1010.00")) {
		t.Errorf("RealizedPnL() = %s, want -1010.00", a.RealizedPnL())
	}
}

// TestAccount_TotalValueFallback tests avg-cost fallback pricing.
func TestAccount_TotalValueFallback(t *testing.T) {
	a := newTestAccount(t)
	if err := a.ApplyFill(mustFill(t, SideBuy, 1000, "10.00", "0", "s1")); err != nil {
		t.Fatalf("ApplyFill() error = %v", err)
	}

	// No mark price known: fall back to avg cost, so total == initial.
	if got := a.TotalValue(nil); !got.Equal(d("1000000")) {
		t.Errorf("TotalValue(nil) = %s, want 1000000", got)
	}
	// With a mark price the position revalues.
	prices := map[string]decimal.Decimal{"600000": d("11.00")}
	if got := a.TotalValue(prices); !got.Equal(d("1001000")) {
		t.Errorf("TotalValue() = %s, want 1001000", got)
	}
}

// TestAccount_Snapshot tests the point-in-time copy.
func TestAccount_Snapshot(t *testing.T) {
	a := newTestAccount(t)
	if err := a.ApplyFill(mustFill(t, SideBuy, 1000, "10.00", "5.00", "s1")); err != nil {
		t.Fatalf("ApplyFill() error = %v", err)
	}
	if err := a.FreezeCash(d("1000")); err != nil {
		t.Fatalf("FreezeCash() error = %v", err)
	}

	snap := a.Snapshot(acctTime, map[string]decimal.Decimal{"600000": d("10.50")})
	if !snap.PositionValue.Equal(d("10500")) {
		t.Errorf("snapshot PositionValue = %s, want 10500", snap.PositionValue)
	}
	if !snap.UnrealizedPnL.Equal(d("500")) {
		t.Errorf("snapshot UnrealizedPnL = %s, want 500", snap.UnrealizedPnL)
	}
	if snap.PositionCount != 1 {
		t.Errorf("snapshot PositionCount = %d, want 1", snap.PositionCount)
	}
	if !snap.FrozenCash.Equal(d("1000")) {
		t.Errorf("snapshot FrozenCash = %s, want 1000", snap.FrozenCash)
	}
	if !snap.TotalValue.Equal(snap.Cash.Add(snap.PositionValue)) {
		t.Error("snapshot TotalValue should equal cash + position value")
	}
}

// TestAccount_SnapshotJSONRoundTrip tests that a snapshot survives JSON
// encoding with its value fields intact, so persisted or shipped snapshots
// report the same figures they were taken with.
func TestAccount_SnapshotJSONRoundTrip(t *testing.T) {
	a := newTestAccount(t)
	if err := a.ApplyFill(mustFill(t, SideBuy, 1000, "10.00", "5.00", "s1")); err != nil {
		t.Fatalf("ApplyFill() error = %v", err)
	}

	snap := a.Snapshot(acctTime, map[string]decimal.Decimal{"600000": d("10.50")})
	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got Snapshot
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if !got.Timestamp.Equal(snap.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, snap.Timestamp)
	}
	pairs := []struct {
		name      string
		got, want decimal.Decimal
	}{
		{"Cash", got.Cash, snap.Cash},
		{"FrozenCash", got.FrozenCash, snap.FrozenCash},
		{"PositionValue", got.PositionValue, snap.PositionValue},
		{"TotalValue", got.TotalValue, snap.TotalValue},
		{"TotalCommission", got.TotalCommission, snap.TotalCommission},
		{"RealizedPnL", got.RealizedPnL, snap.RealizedPnL},
		{"UnrealizedPnL", got.UnrealizedPnL, snap.UnrealizedPnL},
	}
	for _, p := range pairs {
		if !p.got.Equal(p.want) {
			t.Errorf("%s = %s, want %s", p.name, p.got, p.want)
		}
	}
	if got.PositionCount != snap.PositionCount {
		t.Errorf("PositionCount = %d, want %d", got.PositionCount, snap.PositionCount)
	}
}
