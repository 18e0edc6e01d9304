package strategy

import (
	"context"
	"strings"
	"testing"

	"github.com/Will-Grindelwald/quant-trading/internal/types"
	"github.com/shopspring/decimal"
)

func exitMACross(t *testing.T, avgPrice string) *MACross {
	t.Helper()
	positions := stubPositions{
		"600000": holding("600000", "exit-1", 1000, avgPrice),
	}
	inst := instance(t, "exit-1", "ma_cross", types.KindExit, map[string]any{
		"short_window":    2,
		"long_window":     3,
		"stop_loss_pct":   "0.05",
		"take_profit_pct": "0.10",
	})
	return NewMACross(inst, positions, stubBars{}, nil)
}

// The short MA crossing above the long MA with the close above the short MA
// is a golden cross and buys at 0.8 strength.
func TestMACross_GoldenCrossBuys(t *testing.T) {
	history := goldenCrossHistory(t, "600000")
	s := entryMACross(t, "entry-1", history)

	got := s.OnMarket(context.Background(), market(history[3]))
	if len(got) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(got))
	}
	sig := got[0]
	if sig.Direction != types.DirectionBuy {
		t.Errorf("Direction = %v, want BUY", sig.Direction)
	}
	if !sig.Strength.Equal(decimal.RequireFromString("0.8")) {
		t.Errorf("Strength = %s, want 0.8", sig.Strength)
	}
	if !sig.Price.Equal(decimal.RequireFromString("40")) {
		t.Errorf("Price = %s, want 40", sig.Price)
	}
	if !strings.Contains(sig.Reason, "golden cross") {
		t.Errorf("Reason = %q, want golden cross", sig.Reason)
	}
}

// MAs that stay on the same side of each other never signal.
func TestMACross_NoCrossNoSignal(t *testing.T) {
	history := []types.Bar{
		flatQuote(t, "600000", 0, "30"),
		flatQuote(t, "600000", 1, "20"),
		flatQuote(t, "600000", 2, "10"),
		flatQuote(t, "600000", 3, "24"),
	}
	s := entryMACross(t, "entry-1", history)

	if got := s.OnMarket(context.Background(), market(history[3])); got != nil {
		t.Fatalf("expected no signal, got %v", got)
	}
}

// Entry stays quiet until a full long window of history exists.
func TestMACross_NeedsLongWindow(t *testing.T) {
	history := []types.Bar{
		flatQuote(t, "600000", 0, "10"),
		flatQuote(t, "600000", 1, "40"),
	}
	s := entryMACross(t, "entry-1", history)

	if got := s.OnMarket(context.Background(), market(history[1])); got != nil {
		t.Fatalf("expected no signal with short history, got %v", got)
	}
}

// A loss at or past the stop threshold sells at full strength.
func TestMACross_StopLoss(t *testing.T) {
	s := exitMACross(t, "10")

	tests := []struct {
		name  string
		close string
		want  bool
	}{
		{"past threshold", "9.40", true},
		{"exactly at threshold", "9.50", true},
		{"above threshold", "9.60", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.OnMarket(context.Background(), market(flatQuote(t, "600000", 10, tt.close)))
			if fired := len(got) == 1; fired != tt.want {
				t.Fatalf("close %s: fired = %v, want %v", tt.close, fired, tt.want)
			}
			if !tt.want {
				return
			}
			sig := got[0]
			if sig.Direction != types.DirectionSell {
				t.Errorf("Direction = %v, want SELL", sig.Direction)
			}
			if !sig.Strength.Equal(decimal.NewFromInt(1)) {
				t.Errorf("Strength = %s, want 1", sig.Strength)
			}
			if !strings.Contains(sig.Reason, "stop loss") {
				t.Errorf("Reason = %q, want stop loss", sig.Reason)
			}
		})
	}
}

// A gain at or past the take-profit threshold sells at 0.9 strength.
func TestMACross_TakeProfit(t *testing.T) {
	s := exitMACross(t, "10")

	got := s.OnMarket(context.Background(), market(flatQuote(t, "600000", 10, "11.01")))
	if len(got) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(got))
	}
	sig := got[0]
	if sig.Direction != types.DirectionSell {
		t.Errorf("Direction = %v, want SELL", sig.Direction)
	}
	if !sig.Strength.Equal(decimal.RequireFromString("0.9")) {
		t.Errorf("Strength = %s, want 0.9", sig.Strength)
	}
	if !strings.Contains(sig.Reason, "take profit") {
		t.Errorf("Reason = %q, want take profit", sig.Reason)
	}
}

// A death cross while the position is still profitable locks in the gain;
// a losing position is left to the stop-loss branch instead.
func TestMACross_DeathCross(t *testing.T) {
	positions := stubPositions{
		"600000": holding("600000", "exit-1", 1000, "10"),
	}
	inst := instance(t, "exit-1", "ma_cross", types.KindExit, map[string]any{
		"short_window":    2,
		"long_window":     3,
		"stop_loss_pct":   "0.05",
		"take_profit_pct": "0.10",
	})

	// In profit: cost 10, close 10.20, short MA dropping below long MA.
	history := []types.Bar{
		flatQuote(t, "600000", 0, "30"),
		flatQuote(t, "600000", 1, "40"),
		flatQuote(t, "600000", 2, "50"),
		flatQuote(t, "600000", 3, "10.20"),
	}
	s := NewMACross(inst, positions, stubBars{"600000": history}, nil)
	got := s.OnMarket(context.Background(), market(history[3]))
	if len(got) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(got))
	}
	sig := got[0]
	if sig.Direction != types.DirectionSell {
		t.Errorf("Direction = %v, want SELL", sig.Direction)
	}
	if !sig.Strength.Equal(decimal.RequireFromString("0.7")) {
		t.Errorf("Strength = %s, want 0.7", sig.Strength)
	}
	if !strings.Contains(sig.Reason, "death cross") {
		t.Errorf("Reason = %q, want death cross", sig.Reason)
	}

	// Same cross while under water: no signal, the stop owns that exit.
	losing := []types.Bar{
		flatQuote(t, "600000", 0, "30"),
		flatQuote(t, "600000", 1, "40"),
		flatQuote(t, "600000", 2, "50"),
		flatQuote(t, "600000", 3, "9.60"),
	}
	s = NewMACross(inst, positions, stubBars{"600000": losing}, nil)
	if got := s.OnMarket(context.Background(), market(losing[3])); got != nil {
		t.Fatalf("expected no signal for losing death cross, got %v", got)
	}
}

// Exit logic needs a live position to act on.
func TestMACross_ExitWithoutPosition(t *testing.T) {
	inst := instance(t, "exit-1", "ma_cross", types.KindExit, nil)
	s := NewMACross(inst, stubPositions{}, stubBars{}, nil)

	if got := s.OnMarket(context.Background(), market(flatQuote(t, "600000", 10, "9.40"))); got != nil {
		t.Fatalf("expected no signal without a position, got %v", got)
	}
}

// Configured as UNIVERSAL_STOP, the instance force-sells any holding past
// the account-wide loss threshold, whoever opened it.
func TestMACross_ForcedStopKind(t *testing.T) {
	positions := stubPositions{
		"600000": holding("600000", "other", 1000, "10"),
	}
	inst := instance(t, "guard", "ma_cross", types.KindUniversalStop, nil)
	s := NewMACross(inst, positions, stubBars{}, nil)

	got := s.OnMarket(context.Background(), market(flatQuote(t, "600000", 10, "9.15")))
	if len(got) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(got))
	}
	sig := got[0]
	if sig.Direction != types.DirectionSell {
		t.Errorf("Direction = %v, want SELL", sig.Direction)
	}
	if !sig.Strength.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Strength = %s, want 1", sig.Strength)
	}

	// Loss inside the threshold holds.
	if got := s.OnMarket(context.Background(), market(flatQuote(t, "600000", 11, "9.30"))); got != nil {
		t.Fatalf("expected no signal above threshold, got %v", got)
	}
}
