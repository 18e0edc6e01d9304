package types

import (
	"errors"
	"testing"
	"time"
)

var fillTime = time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

// TestPosition_ApplyDelta tests the cost-basis rule over the three cases:
// same-sign add, reduction, and sign flip.
func TestPosition_ApplyDelta(t *testing.T) {
	tests := []struct {
		name     string
		startQty int64
		startAvg string
		deltaQty int64
		price    string
		wantQty  int64
		wantAvg  string
	}{
		{"open from zero", 0, "0", 1000, "10.00", 1000, "10.00"},
		{"same-sign add", 1000, "10.00", 1000, "12.00", 2000, "11.00"},
		{"weighted add", 1000, "10.00", 500, "13.00", 1500, "11.00"},
		{"partial reduction keeps avg", 1000, "10.00", -400, "12.00", 600, "10.00"},
		{"full close", 1000, "10.00", -1000, "12.00", 0, "10.00"},
		{"sign flip resets avg", 1000, "10.00", -1500, "12.00", -500, "12.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Position{Symbol: "600000", Quantity: tt.startQty, AvgPrice: d(tt.startAvg)}
			p.ApplyDelta(tt.deltaQty, d(tt.price), fillTime)

			if p.Quantity != tt.wantQty {
				t.Errorf("Quantity = %d, want %d", p.Quantity, tt.wantQty)
			}
			if !p.AvgPrice.Equal(d(tt.wantAvg)) {
				t.Errorf("AvgPrice = %s, want %s", p.AvgPrice, tt.wantAvg)
			}
		})
	}
}

// TestPosition_BuyThenBuyAverage tests that repeated same-sign buys
// produce sum(q*p)/sum(q).
func TestPosition_BuyThenBuyAverage(t *testing.T) {
	p := &Position{Symbol: "600000"}
	p.ApplyDelta(300, d("10.00"), fillTime)
	p.ApplyDelta(200, d("10.50"), fillTime)
	p.ApplyDelta(500, d("11.00"), fillTime)

	// (300*10 + 200*10.5 + 500*11) / 1000 = 10.6
	if !p.AvgPrice.Equal(d("10.6")) {
		t.Errorf("AvgPrice = %s, want 10.6", p.AvgPrice)
	}
	if p.Quantity != 1000 {
		t.Errorf("Quantity = %d, want 1000", p.Quantity)
	}
}

// TestPosition_Valuation tests market value and unrealized pnl.
func TestPosition_Valuation(t *testing.T) {
	p := &Position{Symbol: "600000", Quantity: 1000, AvgPrice: d("10.00")}

	if got := p.MarketValue(d("10.50")); !got.Equal(d("10500")) {
		t.Errorf("MarketValue() = %s, want 10500", got)
	}
	if got := p.UnrealizedPnL(d("10.50")); !got.Equal(d("500")) {
		t.Errorf("UnrealizedPnL() = %s, want 500", got)
	}
	if got := p.UnrealizedPnL(d("9.50")); !got.Equal(d("-500")) {
		t.Errorf("UnrealizedPnL() = %s, want -500", got)
	}
}

// TestTrade_OpenClose tests the realized pnl formula.
func TestTrade_OpenClose(t *testing.T) {
	buy, err := NewFill("ord-1", "600000", SideBuy, 1000, d("10.00"), d("5.00"), fillTime, "s1")
	if err != nil {
		t.Fatalf("NewFill() error = %v", err)
	}
	trade := NewTradeFromBuy(buy)

	if trade.Status != TradeOpen {
		t.Errorf("new trade status = %s, want OPEN", trade.Status)
	}
	if !trade.TotalCommission.Equal(d("5.00")) {
		t.Errorf("TotalCommission = %s, want 5.00", trade.TotalCommission)
	}

	sell, err := NewFill("ord-2", "600000", SideSell, 1000, d("10.50"), d("5.00"), fillTime.Add(24*time.Hour), "s1")
	if err != nil {
		t.Fatalf("NewFill() error = %v", err)
	}
	if err := trade.Close(sell); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// (10.50-10.00)*1000 - 10.00 commission = 490
	if !trade.RealizedPnL.Equal(d("490.00")) {
		t.Errorf("RealizedPnL = %s, want 490.00", trade.RealizedPnL)
	}
	if trade.Status != TradeClosed {
		t.Errorf("trade status = %s, want CLOSED", trade.Status)
	}
	if !trade.IsWinning() {
		t.Error("profitable closed trade should be winning")
	}
	if got := trade.HoldingPeriod(); got != 24*time.Hour {
		t.Errorf("HoldingPeriod() = %v, want 24h", got)
	}
}

// TestTrade_PartialQuantityClose tests min(buyQty, sellQty) matching.
func TestTrade_PartialQuantityClose(t *testing.T) {
	buy, _ := NewFill("ord-1", "600000", SideBuy, 1000, d("10.00"), d("5.00"), fillTime, "s1")
	trade := NewTradeFromBuy(buy)

	sell, _ := NewFill("ord-2", "600000", SideSell, 400, d("11.00"), d("5.00"), fillTime, "s1")
	if err := trade.Close(sell); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// (11-10)*min(1000,400) - 10 = 390
	if !trade.RealizedPnL.Equal(d("390.00")) {
		t.Errorf("RealizedPnL = %s, want 390.00", trade.RealizedPnL)
	}
}

// TestTrade_CloseErrors tests double close and symbol mismatch.
func TestTrade_CloseErrors(t *testing.T) {
	buy, _ := NewFill("ord-1", "600000", SideBuy, 1000, d("10.00"), d("5.00"), fillTime, "s1")
	trade := NewTradeFromBuy(buy)

	wrong, _ := NewFill("ord-2", "600519", SideSell, 1000, d("11.00"), d("5.00"), fillTime, "s1")
	if err := trade.Close(wrong); !errors.Is(err, ErrSymbolMismatch) {
		t.Errorf("Close with wrong symbol error = %v, want ErrSymbolMismatch", err)
	}

	sell, _ := NewFill("ord-3", "600000", SideSell, 1000, d("11.00"), d("5.00"), fillTime, "s1")
	if err := trade.Close(sell); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := trade.Close(sell); !errors.Is(err, ErrTradeClosed) {
		t.Errorf("second Close error = %v, want ErrTradeClosed", err)
	}
}
