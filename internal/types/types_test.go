package types

import (
	"testing"
)

// TestDirection_String tests direction string conversion.
func TestDirection_String(t *testing.T) {
	tests := []struct {
		direction Direction
		want      string
	}{
		{DirectionBuy, "BUY"},
		{DirectionSell, "SELL"},
		{DirectionHold, "HOLD"},
		{Direction(99), "HOLD"}, // Unknown defaults to HOLD
	}

	for _, tt := range tests {
		got := tt.direction.String()
		if got != tt.want {
			t.Errorf("Direction(%d).String() = %s, want %s", tt.direction, got, tt.want)
		}
	}
}

// TestSideFromDirection tests direction to side mapping.
func TestSideFromDirection(t *testing.T) {
	if got := SideFromDirection(DirectionBuy); got != SideBuy {
		t.Errorf("SideFromDirection(BUY) = %s, want BUY", got)
	}
	if got := SideFromDirection(DirectionSell); got != SideSell {
		t.Errorf("SideFromDirection(SELL) = %s, want SELL", got)
	}
}

// TestOrderStatus_String tests status string conversion.
func TestOrderStatus_String(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   string
	}{
		{OrderPending, "PENDING"},
		{OrderSubmitted, "SUBMITTED"},
		{OrderPartiallyFilled, "PARTIALLY_FILLED"},
		{OrderFilled, "FILLED"},
		{OrderCancelled, "CANCELLED"},
		{OrderRejected, "REJECTED"},
		{OrderStatus(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.status.String()
		if got != tt.want {
			t.Errorf("OrderStatus(%d).String() = %s, want %s", tt.status, got, tt.want)
		}
	}
}

// TestOrderStatus_IsFinal tests terminal state check.
func TestOrderStatus_IsFinal(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   bool
	}{
		{OrderPending, false},
		{OrderSubmitted, false},
		{OrderPartiallyFilled, false},
		{OrderFilled, true},
		{OrderCancelled, true},
		{OrderRejected, true},
	}

	for _, tt := range tests {
		got := tt.status.IsFinal()
		if got != tt.want {
			t.Errorf("OrderStatus(%s).IsFinal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

// TestOrderStatus_IsActive tests fillable state check.
func TestOrderStatus_IsActive(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   bool
	}{
		{OrderPending, false},
		{OrderSubmitted, true},
		{OrderPartiallyFilled, true},
		{OrderFilled, false},
		{OrderCancelled, false},
		{OrderRejected, false},
	}

	for _, tt := range tests {
		got := tt.status.IsActive()
		if got != tt.want {
			t.Errorf("OrderStatus(%s).IsActive() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

// TestFrequency_Valid tests frequency validation.
func TestFrequency_Valid(t *testing.T) {
	tests := []struct {
		freq Frequency
		want bool
	}{
		{FrequencyHour, true},
		{FrequencyDay, true},
		{FrequencyWeek, true},
		{Frequency("5m"), false},
		{Frequency(""), false},
	}

	for _, tt := range tests {
		if got := tt.freq.Valid(); got != tt.want {
			t.Errorf("Frequency(%q).Valid() = %v, want %v", tt.freq, got, tt.want)
		}
	}
}

// TestParseStrategyKind tests kind parsing from config strings.
func TestParseStrategyKind(t *testing.T) {
	tests := []struct {
		in     string
		want   StrategyKind
		wantOK bool
	}{
		{"entry", KindEntry, true},
		{"exit", KindExit, true},
		{"stop", KindUniversalStop, true},
		{"universal_stop", KindUniversalStop, true},
		{"momentum", KindEntry, false},
	}

	for _, tt := range tests {
		got, ok := ParseStrategyKind(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseStrategyKind(%q) = (%s, %v), want (%s, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

// TestStrategyKind_String tests kind string conversion.
func TestStrategyKind_String(t *testing.T) {
	tests := []struct {
		kind StrategyKind
		want string
	}{
		{KindEntry, "entry"},
		{KindExit, "exit"},
		{KindUniversalStop, "stop"},
		{StrategyKind(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("StrategyKind(%d).String() = %s, want %s", tt.kind, got, tt.want)
		}
	}
}

// TestUniverse tests set semantics and ordering.
func TestUniverse(t *testing.T) {
	u := NewUniverse("default", "600519", "600000", "000001")

	if u.Len() != 3 {
		t.Errorf("Len() = %d, want 3", u.Len())
	}
	if !u.Contains("600000") {
		t.Error("universe should contain 600000")
	}

	got := u.Symbols()
	want := []string{"000001", "600000", "600519"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Symbols() = %v, want %v", got, want)
		}
	}

	u.Remove("600519", monday)
	if u.Contains("600519") {
		t.Error("removed symbol should be gone")
	}
	u.Add("601318", monday)
	if !u.Contains("601318") {
		t.Error("added symbol should be present")
	}

	u.SetSymbols([]string{"600036"}, monday)
	if u.Len() != 1 || !u.Contains("600036") {
		t.Errorf("SetSymbols() left %v", u.Symbols())
	}
}

// TestStrategyInstance tests construction and config getters.
func TestStrategyInstance(t *testing.T) {
	si, err := NewStrategyInstance("ma_cross_1", "MA Crossover", KindEntry, map[string]any{
		"short_window": 5,
		"long_window":  float64(20),
		"stop_loss":    "0.05",
		"mode":         "strict",
	})
	if err != nil {
		t.Fatalf("NewStrategyInstance() error = %v", err)
	}
	if !si.Enabled {
		t.Error("new instance should be enabled")
	}

	if got := si.ConfigInt("short_window", 0); got != 5 {
		t.Errorf("ConfigInt(short_window) = %d, want 5", got)
	}
	if got := si.ConfigInt("long_window", 0); got != 20 {
		t.Errorf("ConfigInt(long_window) = %d, want 20", got)
	}
	if got := si.ConfigInt("missing", 60); got != 60 {
		t.Errorf("ConfigInt(missing) = %d, want default 60", got)
	}
	if got := si.ConfigDecimal("stop_loss", d("0")); !got.Equal(d("0.05")) {
		t.Errorf("ConfigDecimal(stop_loss) = %s, want 0.05", got)
	}
	if got := si.ConfigString("mode", ""); got != "strict" {
		t.Errorf("ConfigString(mode) = %s, want strict", got)
	}

	if _, err := NewStrategyInstance("", "X", KindEntry, nil); err == nil {
		t.Error("empty strategy id should fail")
	}
	if _, err := NewStrategyInstance("x", "", KindEntry, nil); err == nil {
		t.Error("empty strategy name should fail")
	}
}
