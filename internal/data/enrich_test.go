package data

import (
	"fmt"
	"testing"

	"github.com/Will-Grindelwald/quant-trading/internal/types"
	"github.com/shopspring/decimal"
)

func constantSeries(t *testing.T, n int, close string) []types.Bar {
	t.Helper()
	bars := make([]types.Bar, 0, n)
	for i := 0; i < n; i++ {
		date := fmt.Sprintf("2023-%02d-%02d", 1+i/28, 1+i%28)
		bars = append(bars, dailyBar(t, "600000", date, close))
	}
	return bars
}

func TestEnrichSeries_FillsWhenReady(t *testing.T) {
	bars := constantSeries(t, 30, "10")
	enrichSeries(bars)

	ten := decimal.NewFromInt(10)

	if bars[3].MA5 != nil {
		t.Error("MA5 should stay nil before 5 bars")
	}
	if bars[4].MA5 == nil || !bars[4].MA5.Equal(ten) {
		t.Errorf("MA5 at bar 5 = %v, want 10", bars[4].MA5)
	}
	if bars[19].MA20 == nil || !bars[19].MA20.Equal(ten) {
		t.Errorf("MA20 at bar 20 = %v, want 10", bars[19].MA20)
	}
	if bars[29].MA60 != nil {
		t.Error("MA60 should stay nil with only 30 bars")
	}

	// Constant closes: bands collapse onto the price, RSI reads neutral,
	// MACD is flat.
	if bars[19].BollUpper == nil || !bars[19].BollUpper.Equal(ten) {
		t.Errorf("BollUpper at bar 20 = %v, want 10", bars[19].BollUpper)
	}
	if bars[19].BollLower == nil || !bars[19].BollLower.Equal(ten) {
		t.Errorf("BollLower at bar 20 = %v, want 10", bars[19].BollLower)
	}
	if bars[14].RSI14 == nil || !bars[14].RSI14.Equal(decimal.NewFromInt(50)) {
		t.Errorf("RSI14 at bar 15 = %v, want 50", bars[14].RSI14)
	}
	if bars[13].RSI14 != nil {
		t.Error("RSI14 should stay nil before 14 deltas")
	}
	if bars[25].MACDDIF == nil || !bars[25].MACDDIF.IsZero() {
		t.Errorf("MACD DIF at bar 26 = %v, want 0", bars[25].MACDDIF)
	}
	if bars[25].MACDHist == nil || !bars[25].MACDHist.IsZero() {
		t.Errorf("MACD histogram at bar 26 = %v, want 0", bars[25].MACDHist)
	}
}

func TestEnrichSeries_KeepsExistingValues(t *testing.T) {
	bars := constantSeries(t, 6, "10")
	precomputed := decimal.RequireFromString("9.99")
	bars[5].MA5 = &precomputed

	enrichSeries(bars)

	if !bars[5].MA5.Equal(precomputed) {
		t.Errorf("precomputed MA5 overwritten: %s", bars[5].MA5)
	}
	if bars[4].MA5 == nil {
		t.Error("missing MA5 should be filled")
	}
}
