package types

import (
	"fmt"
	"sync"
	"testing"
)

// TestAccount_ConcurrentFreezeUnfreeze tests that parallel reserve/release
// cycles leave the book balanced: no lost updates, frozen back to zero.
func TestAccount_ConcurrentFreezeUnfreeze(t *testing.T) {
	a := newTestAccount(t)

	var wg sync.WaitGroup
	numGoroutines := 50
	cyclesPerGoroutine := 100
	amount := d("100")

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < cyclesPerGoroutine; j++ {
				if err := a.FreezeCash(amount); err != nil {
					continue
				}
				a.UnfreezeCash(amount)
			}
		}()
	}
	wg.Wait()

	if !a.FrozenCash().IsZero() {
		t.Errorf("FrozenCash() = %s, want 0 after all cycles released", a.FrozenCash())
	}
	if !a.Cash().Equal(d("1000000")) {
		t.Errorf("Cash() = %s, want 1000000 (freeze must not touch cash)", a.Cash())
	}
	if !a.AvailableCash().Equal(a.Cash()) {
		t.Errorf("AvailableCash() = %s, want %s", a.AvailableCash(), a.Cash())
	}
}

// TestAccount_SnapshotDuringFills tests snapshot consistency while the fill
// worker is writing: every snapshot must satisfy the book's value equation
// even when taken mid round trip.
func TestAccount_SnapshotDuringFills(t *testing.T) {
	a := newTestAccount(t)

	buy := mustFill(t, SideBuy, 100, "10.00", "0", "s1")
	sell := mustFill(t, SideSell, 100, "10.00", "0", "s1")

	done := make(chan struct{})
	var wg sync.WaitGroup

	// Single writer, as the portfolio manager's worker would be.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < 2000; i++ {
			if err := a.ApplyFill(buy); err != nil {
				t.Errorf("ApplyFill(buy) error = %v", err)
				return
			}
			if err := a.ApplyFill(sell); err != nil {
				t.Errorf("ApplyFill(sell) error = %v", err)
				return
			}
		}
	}()

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := a.Snapshot(acctTime, nil)
				if !snap.TotalValue.Equal(snap.Cash.Add(snap.PositionValue)) {
					t.Errorf("torn snapshot: total %s, cash %s + positions %s",
						snap.TotalValue, snap.Cash, snap.PositionValue)
					return
				}
				if snap.FrozenCash.IsNegative() {
					t.Errorf("torn snapshot: negative frozen cash %s", snap.FrozenCash)
					return
				}
				if snap.PositionCount > 1 {
					t.Errorf("torn snapshot: %d positions for a single symbol", snap.PositionCount)
					return
				}
				a.Positions()
				a.Fills()
			}
		}()
	}
	wg.Wait()

	// Round trips at a flat price with zero commission conserve cash.
	if !a.Cash().Equal(d("1000000")) {
		t.Errorf("Cash() = %s, want 1000000 after flat round trips", a.Cash())
	}
	if a.PositionCount() != 0 {
		t.Errorf("PositionCount() = %d, want 0", a.PositionCount())
	}
}

// TestAccount_ConcurrentOrderBook tests order registration and lookup from
// many goroutines.
func TestAccount_ConcurrentOrderBook(t *testing.T) {
	a := newTestAccount(t)

	var wg sync.WaitGroup
	numGoroutines := 20
	ordersPerGoroutine := 50

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < ordersPerGoroutine; j++ {
				o, err := NewLimitOrder("600000", SideBuy, 100, d("10.00"), fmt.Sprintf("g%d", id), acctTime)
				if err != nil {
					t.Errorf("NewLimitOrder() error = %v", err)
					return
				}
				a.AddOrder(o)
				if _, ok := a.Order(o.ID); !ok {
					t.Errorf("order %s not found after AddOrder", o.ID)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	if got, want := a.OrderCount(), numGoroutines*ordersPerGoroutine; got != want {
		t.Errorf("OrderCount() = %d, want %d", got, want)
	}
}
