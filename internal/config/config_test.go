package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Will-Grindelwald/quant-trading/internal/portfolio"
	"github.com/Will-Grindelwald/quant-trading/internal/types"
)

func TestLoadFromBytes_Valid(t *testing.T) {
	yaml := `
env: backtest
log_level: debug
log_format: json
data_root: /var/lib/quant/bars
initial_capital: 1000000

event_bus:
  central_queue_size: 5000
  subscriber_queue_size: 500

execution:
  slippage: 0.001
  commission_rate: 0.0003
  min_commission: 5
  execution_delay_seconds: 0
  max_order_value: 500000
  max_daily_orders: 50
  seed: 42

portfolio:
  max_position_pct: 0.05
  max_total_position_pct: 0.95
  min_order_amount: 1000
  position_size_method: fixed_amount
  default_position_size: 10000
  signal_cooldown_seconds: 300

backtest:
  start_date: "2024-03-04"
  end_date: "2024-03-08"
  symbols: ["600000", "000001"]

strategies:
  - strategy_id: ma-entry
    name: ma_cross
    kind: entry
    enabled: true
    options:
      short_window: 5
      long_window: 20
`

	cfg, err := LoadFromBytes([]byte(yaml))
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}

	if cfg.Env != EnvBacktest {
		t.Errorf("Env = %s, want backtest", cfg.Env)
	}
	if cfg.InitialCapital != 1000000 {
		t.Errorf("InitialCapital = %f, want 1000000", cfg.InitialCapital)
	}
	if cfg.Execution.Slippage != 0.001 {
		t.Errorf("Slippage = %f, want 0.001", cfg.Execution.Slippage)
	}
	if cfg.Execution.Seed != 42 {
		t.Errorf("Seed = %d, want 42", cfg.Execution.Seed)
	}
	if cfg.Portfolio.PositionSizeMethod != "fixed_amount" {
		t.Errorf("PositionSizeMethod = %s, want fixed_amount", cfg.Portfolio.PositionSizeMethod)
	}
	if len(cfg.Backtest.Symbols) != 2 {
		t.Errorf("Symbols = %v, want 2 entries", cfg.Backtest.Symbols)
	}
	if len(cfg.Strategies) != 1 || cfg.Strategies[0].StrategyID != "ma-entry" {
		t.Errorf("Strategies = %+v, want one ma-entry", cfg.Strategies)
	}
}

func TestLoadFromBytes_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "negative capital",
			yaml: `
initial_capital: -1000
backtest:
  start_date: "2024-03-04"
  end_date: "2024-03-08"
  symbols: ["600000"]
`,
			wantErr: "initial_capital must be positive",
		},
		{
			name: "slippage too high",
			yaml: `
initial_capital: 1000000
execution:
  slippage: 0.1
backtest:
  start_date: "2024-03-04"
  end_date: "2024-03-08"
  symbols: ["600000"]
`,
			wantErr: "execution.slippage must be between 0 and 0.05",
		},
		{
			name: "commission rate too high",
			yaml: `
initial_capital: 1000000
execution:
  commission_rate: 0.02
backtest:
  start_date: "2024-03-04"
  end_date: "2024-03-08"
  symbols: ["600000"]
`,
			wantErr: "execution.commission_rate must be between 0 and 0.01",
		},
		{
			name: "position cap over one",
			yaml: `
initial_capital: 1000000
portfolio:
  max_position_pct: 1.5
backtest:
  start_date: "2024-03-04"
  end_date: "2024-03-08"
  symbols: ["600000"]
`,
			wantErr: "portfolio.max_position_pct must be between 0 and 1",
		},
		{
			name: "unknown size method",
			yaml: `
initial_capital: 1000000
portfolio:
  position_size_method: martingale
backtest:
  start_date: "2024-03-04"
  end_date: "2024-03-08"
  symbols: ["600000"]
`,
			wantErr: "position_size_method 'martingale' is not supported",
		},
		{
			name: "unknown env",
			yaml: `
env: paper
initial_capital: 1000000
`,
			wantErr: "env 'paper' must be 'backtest' or 'live_trading'",
		},
		{
			name: "missing dates",
			yaml: `
initial_capital: 1000000
backtest:
  symbols: ["600000"]
`,
			wantErr: "backtest.start_date and backtest.end_date are required",
		},
		{
			name: "end before start",
			yaml: `
initial_capital: 1000000
backtest:
  start_date: "2024-03-08"
  end_date: "2024-03-04"
  symbols: ["600000"]
`,
			wantErr: "backtest.end_date is before backtest.start_date",
		},
		{
			name: "no universe",
			yaml: `
initial_capital: 1000000
backtest:
  start_date: "2024-03-04"
  end_date: "2024-03-08"
`,
			wantErr: "backtest.universe_name or backtest.symbols is required",
		},
		{
			name: "named universe without store",
			yaml: `
initial_capital: 1000000
backtest:
  start_date: "2024-03-04"
  end_date: "2024-03-08"
  universe_name: csi300
`,
			wantErr: "backtest.universe_name needs business_db_path",
		},
		{
			name: "telegram token without chat",
			yaml: `
initial_capital: 1000000
backtest:
  start_date: "2024-03-04"
  end_date: "2024-03-08"
  symbols: ["600000"]
alerting:
  telegram_bot_token: "123:abc"
`,
			wantErr: "must be set together",
		},
		{
			name: "duplicate strategy id",
			yaml: `
initial_capital: 1000000
backtest:
  start_date: "2024-03-04"
  end_date: "2024-03-08"
  symbols: ["600000"]
strategies:
  - strategy_id: s1
    name: ma_cross
    kind: entry
  - strategy_id: s1
    name: breakout
    kind: entry
`,
			wantErr: "strategy_id 's1' is duplicated",
		},
		{
			name: "unknown strategy kind",
			yaml: `
initial_capital: 1000000
backtest:
  start_date: "2024-03-04"
  end_date: "2024-03-08"
  symbols: ["600000"]
strategies:
  - strategy_id: s1
    name: ma_cross
    kind: momentum
`,
			wantErr: "kind 'momentum' must be entry, exit or stop",
		},
		{
			name: "unknown log level",
			yaml: `
log_level: verbose
initial_capital: 1000000
backtest:
  start_date: "2024-03-04"
  end_date: "2024-03-08"
  symbols: ["600000"]
`,
			wantErr: "log_level 'verbose'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, types.ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want to contain %q", err, tt.wantErr)
			}
		})
	}
}

// TestValidate_Defaults tests that omitted operational knobs fall back to
// their defaults instead of failing validation.
func TestValidate_Defaults(t *testing.T) {
	cfg := &Config{
		Env:            EnvLiveTrading,
		InitialCapital: 1000000,
		Live:           LiveConfig{Symbols: []string{"600000"}},
		Metrics:        MetricsConfig{Enabled: true},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %s, want text", cfg.LogFormat)
	}
	if cfg.Live.RefreshIntervalSeconds != 3600 {
		t.Errorf("RefreshIntervalSeconds = %d, want 3600", cfg.Live.RefreshIntervalSeconds)
	}
	if cfg.Live.HeartbeatIntervalSeconds != 60 {
		t.Errorf("HeartbeatIntervalSeconds = %d, want 60", cfg.Live.HeartbeatIntervalSeconds)
	}
	if cfg.Metrics.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %s, want :9090", cfg.Metrics.ListenAddr)
	}

	empty := &Config{InitialCapital: 1, Backtest: BacktestConfig{
		StartDate: "2024-01-01", EndDate: "2024-01-31", Symbols: []string{"600000"},
	}}
	if err := empty.Validate(); err != nil {
		t.Fatalf("Validate minimal: %v", err)
	}
	if empty.Env != EnvBacktest {
		t.Errorf("Env = %s, want backtest default", empty.Env)
	}
}

func TestConfig_ToPortfolioConfig(t *testing.T) {
	cfg := &Config{
		Portfolio: PortfolioConfig{
			MaxPositionPct:        0.10,
			MaxTotalPositionPct:   0.80,
			MinOrderAmount:        2000,
			PositionSizeMethod:    "percent_of_portfolio",
			DefaultPositionSize:   50000,
			SignalCooldownSeconds: 600,
		},
	}

	pc := cfg.ToPortfolioConfig()
	if !pc.MaxPositionPct.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("MaxPositionPct = %s, want 0.1", pc.MaxPositionPct)
	}
	if pc.SizeMethod != portfolio.SizePercentOfPortfolio {
		t.Errorf("SizeMethod = %s, want percent_of_portfolio", pc.SizeMethod)
	}
	if pc.SignalCooldown != 10*time.Minute {
		t.Errorf("SignalCooldown = %v, want 10m", pc.SignalCooldown)
	}

	// Zero knobs keep the component defaults.
	defaults := (&Config{}).ToPortfolioConfig()
	want := portfolio.DefaultConfig()
	if !defaults.MaxPositionPct.Equal(want.MaxPositionPct) {
		t.Errorf("default MaxPositionPct = %s, want %s", defaults.MaxPositionPct, want.MaxPositionPct)
	}
	if defaults.SizeMethod != want.SizeMethod {
		t.Errorf("default SizeMethod = %s, want %s", defaults.SizeMethod, want.SizeMethod)
	}
}

func TestConfig_ToExecutionConfig(t *testing.T) {
	cfg := &Config{
		Execution: ExecutionConfig{
			Slippage:              0.002,
			CommissionRate:        0.0005,
			MinCommission:         5,
			ExecutionDelaySeconds: 2,
			MaxOrderValue:         500000,
			MaxDailyOrders:        50,
			Seed:                  7,
		},
	}

	ec := cfg.ToExecutionConfig()
	if !ec.Slippage.Equal(decimal.RequireFromString("0.002")) {
		t.Errorf("Slippage = %s, want 0.002", ec.Slippage)
	}
	if ec.ExecutionDelay != 2*time.Second {
		t.Errorf("ExecutionDelay = %v, want 2s", ec.ExecutionDelay)
	}
	if ec.Seed != 7 {
		t.Errorf("Seed = %d, want 7", ec.Seed)
	}

	gates := cfg.ToLiveGateConfig()
	if !gates.MaxOrderValue.Equal(decimal.RequireFromString("500000")) {
		t.Errorf("MaxOrderValue = %s, want 500000", gates.MaxOrderValue)
	}
	if gates.MaxDailyOrders != 50 {
		t.Errorf("MaxDailyOrders = %d, want 50", gates.MaxDailyOrders)
	}

	// Zero caps take the gate defaults.
	open := (&Config{}).ToLiveGateConfig()
	if !open.MaxOrderValue.Equal(decimal.RequireFromString("1000000")) {
		t.Errorf("default MaxOrderValue = %s, want 1000000", open.MaxOrderValue)
	}
	if open.MaxDailyOrders != 100 {
		t.Errorf("default MaxDailyOrders = %d, want 100", open.MaxDailyOrders)
	}
}

func TestConfig_ToEngineConfig(t *testing.T) {
	cfg := &Config{
		InitialCapital: 500000,
		Live: LiveConfig{
			RefreshIntervalSeconds:   900,
			HeartbeatIntervalSeconds: 30,
			DrawdownAlertPct:         0.15,
		},
	}

	ec := cfg.ToEngineConfig()
	if !ec.InitialCapital.Equal(decimal.RequireFromString("500000")) {
		t.Errorf("InitialCapital = %s, want 500000", ec.InitialCapital)
	}
	if ec.RefreshInterval != 15*time.Minute {
		t.Errorf("RefreshInterval = %v, want 15m", ec.RefreshInterval)
	}
	if ec.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 30s", ec.HeartbeatInterval)
	}
	if !ec.DrawdownAlert.Equal(decimal.RequireFromString("0.15")) {
		t.Errorf("DrawdownAlert = %s, want 0.15", ec.DrawdownAlert)
	}
}

func TestConfig_BacktestWindow(t *testing.T) {
	cfg := &Config{Backtest: BacktestConfig{StartDate: "2024-03-04", EndDate: "2024-03-08"}}
	start, end, err := cfg.BacktestWindow()
	if err != nil {
		t.Fatalf("BacktestWindow: %v", err)
	}
	if start.Format("2006-01-02") != "2024-03-04" || end.Format("2006-01-02") != "2024-03-08" {
		t.Errorf("window = %s..%s, want 2024-03-04..2024-03-08",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	bad := &Config{Backtest: BacktestConfig{StartDate: "03/04/2024", EndDate: "2024-03-08"}}
	if _, _, err := bad.BacktestWindow(); !errors.Is(err, types.ErrInvalidRange) {
		t.Errorf("malformed date error = %v, want ErrInvalidRange", err)
	}
}

func TestConfig_Instances(t *testing.T) {
	cfg := &Config{Strategies: []StrategyConfig{
		{StrategyID: "s1", Name: "ma_cross", Kind: "entry", Enabled: true,
			Options: map[string]any{"short_window": 5}},
		{StrategyID: "s2", Name: "universal_stop", Kind: "stop", Enabled: true},
		{StrategyID: "s3", Name: "breakout", Kind: "entry", Enabled: false},
	}}

	instances, err := cfg.Instances()
	if err != nil {
		t.Fatalf("Instances: %v", err)
	}
	if len(instances) != 2 {
		t.Fatalf("len = %d, want 2 (disabled skipped)", len(instances))
	}
	if instances[0].Kind != types.KindEntry || instances[1].Kind != types.KindUniversalStop {
		t.Errorf("kinds = %s/%s, want entry/stop", instances[0].Kind, instances[1].Kind)
	}
	if got := instances[0].ConfigInt("short_window", 0); got != 5 {
		t.Errorf("short_window = %d, want 5", got)
	}
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yaml := `
initial_capital: 2000000
backtest:
  start_date: "2024-01-01"
  end_date: "2024-06-30"
  symbols: ["600000"]
`
	if err := os.WriteFile(configPath, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.InitialCapital != 2000000 {
		t.Errorf("InitialCapital = %f, want 2000000", cfg.InitialCapital)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("QT_TEST_BOT_TOKEN", "my-secret-token")

	yaml := `
initial_capital: 1000000
backtest:
  start_date: "2024-03-04"
  end_date: "2024-03-08"
  symbols: ["600000"]
alerting:
  telegram_bot_token: "${QT_TEST_BOT_TOKEN}"
  telegram_chat_id: "12345"
`
	cfg, err := LoadFromBytes([]byte(yaml))
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	if cfg.Alerting.TelegramBotToken != "my-secret-token" {
		t.Errorf("TelegramBotToken = %s, want my-secret-token", cfg.Alerting.TelegramBotToken)
	}
	if !cfg.TelegramEnabled() {
		t.Error("TelegramEnabled = false, want true")
	}
}

func TestConfig_SlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"error", "ERROR"},
		{"", "INFO"},
	}
	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.level}
		if got := cfg.SlogLevel().String(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %s, want %s", tt.level, got, tt.want)
		}
	}
}
