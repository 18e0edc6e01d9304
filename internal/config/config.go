// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/Will-Grindelwald/quant-trading/internal/backtest"
	"github.com/Will-Grindelwald/quant-trading/internal/engine"
	"github.com/Will-Grindelwald/quant-trading/internal/event"
	"github.com/Will-Grindelwald/quant-trading/internal/execution"
	"github.com/Will-Grindelwald/quant-trading/internal/portfolio"
	"github.com/Will-Grindelwald/quant-trading/internal/types"
)

// Recognized env values.
const (
	EnvBacktest    = "backtest"
	EnvLiveTrading = "live_trading"
)

const dateLayout = "2006-01-02"

// Config represents the full application configuration.
type Config struct {
	Env            string  `yaml:"env"`
	LogLevel       string  `yaml:"log_level"`
	LogFormat      string  `yaml:"log_format"`
	DataRoot       string  `yaml:"data_root"`
	BusinessDBPath string  `yaml:"business_db_path"`
	InitialCapital float64 `yaml:"initial_capital"`

	EventBus   EventBusConfig   `yaml:"event_bus"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Portfolio  PortfolioConfig  `yaml:"portfolio"`
	Backtest   BacktestConfig   `yaml:"backtest"`
	Live       LiveConfig       `yaml:"live"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Alerting   AlertingConfig   `yaml:"alerting"`
	Strategies []StrategyConfig `yaml:"strategies"`
}

// EventBusConfig holds the bus queue sizes. Zero values take the bus defaults.
type EventBusConfig struct {
	CentralQueueSize    int `yaml:"central_queue_size"`
	SubscriberQueueSize int `yaml:"subscriber_queue_size"`
}

// ExecutionConfig holds the fill model and live gate settings.
type ExecutionConfig struct {
	Slippage              float64 `yaml:"slippage"`
	CommissionRate        float64 `yaml:"commission_rate"`
	MinCommission         float64 `yaml:"min_commission"`
	ExecutionDelaySeconds int     `yaml:"execution_delay_seconds"`
	MaxOrderValue         float64 `yaml:"max_order_value"`
	MaxDailyOrders        int     `yaml:"max_daily_orders"`
	// Seed fixes the slippage RNG for reproducible runs; zero seeds from
	// the wall clock.
	Seed int64 `yaml:"seed"`
}

// PortfolioConfig holds the risk and sizing settings.
type PortfolioConfig struct {
	MaxPositionPct        float64 `yaml:"max_position_pct"`
	MaxTotalPositionPct   float64 `yaml:"max_total_position_pct"`
	MinOrderAmount        float64 `yaml:"min_order_amount"`
	PositionSizeMethod    string  `yaml:"position_size_method"`
	DefaultPositionSize   float64 `yaml:"default_position_size"`
	SignalCooldownSeconds int     `yaml:"signal_cooldown_seconds"`
}

// BacktestConfig holds the backtest window and universe selection.
type BacktestConfig struct {
	StartDate    string   `yaml:"start_date"`
	EndDate      string   `yaml:"end_date"`
	UniverseName string   `yaml:"universe_name"`
	Symbols      []string `yaml:"symbols"`
	RiskFreeRate float64  `yaml:"risk_free_rate"`
}

// LiveConfig holds the live-session timer settings and universe selection.
type LiveConfig struct {
	RefreshIntervalSeconds   int      `yaml:"refresh_interval_seconds"`
	HeartbeatIntervalSeconds int      `yaml:"heartbeat_interval_seconds"`
	DrawdownAlertPct         float64  `yaml:"drawdown_alert_pct"`
	UniverseName             string   `yaml:"universe_name"`
	Symbols                  []string `yaml:"symbols"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// AlertingConfig holds alerting settings. Telegram is enabled when both the
// token and the chat id are set.
type AlertingConfig struct {
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
}

// StrategyConfig holds a single strategy instance configuration.
type StrategyConfig struct {
	StrategyID string         `yaml:"strategy_id"`
	Name       string         `yaml:"name"`
	Kind       string         `yaml:"kind"`
	Enabled    bool           `yaml:"enabled"`
	Options    map[string]any `yaml:"options"`
}

// Load loads configuration from a YAML file. A .env file in the working
// directory is picked up first so credential references expand from it.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes. Environment variables in
// the document are expanded before parsing.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks ranges, fills operational defaults, and joins every
// violation into one error so operators fix the file in a single pass.
func (c *Config) Validate() error {
	var errs []string

	switch c.Env {
	case "":
		c.Env = EnvBacktest
	case EnvBacktest, EnvLiveTrading:
	default:
		errs = append(errs, fmt.Sprintf("env '%s' must be 'backtest' or 'live_trading'", c.Env))
	}

	switch c.LogLevel {
	case "":
		c.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log_level '%s' must be debug, info, warn or error", c.LogLevel))
	}
	switch c.LogFormat {
	case "":
		c.LogFormat = "text"
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log_format '%s' must be text or json", c.LogFormat))
	}

	if c.InitialCapital <= 0 {
		errs = append(errs, "initial_capital must be positive")
	}

	if c.EventBus.CentralQueueSize < 0 {
		errs = append(errs, "event_bus.central_queue_size must not be negative")
	}
	if c.EventBus.SubscriberQueueSize < 0 {
		errs = append(errs, "event_bus.subscriber_queue_size must not be negative")
	}

	// Execution ranges.
	if c.Execution.Slippage < 0 || c.Execution.Slippage > 0.05 {
		errs = append(errs, "execution.slippage must be between 0 and 0.05")
	}
	if c.Execution.CommissionRate < 0 || c.Execution.CommissionRate > 0.01 {
		errs = append(errs, "execution.commission_rate must be between 0 and 0.01")
	}
	if c.Execution.MinCommission < 0 {
		errs = append(errs, "execution.min_commission must not be negative")
	}
	if c.Execution.ExecutionDelaySeconds < 0 {
		errs = append(errs, "execution.execution_delay_seconds must not be negative")
	}
	if c.Execution.MaxOrderValue < 0 {
		errs = append(errs, "execution.max_order_value must not be negative")
	}
	if c.Execution.MaxDailyOrders < 0 {
		errs = append(errs, "execution.max_daily_orders must not be negative")
	}

	// Portfolio ranges. Zero means "take the component default" for the
	// knobs whose valid range excludes zero.
	if c.Portfolio.MaxPositionPct < 0 || c.Portfolio.MaxPositionPct > 1 {
		errs = append(errs, "portfolio.max_position_pct must be between 0 and 1")
	}
	if c.Portfolio.MaxTotalPositionPct < 0 || c.Portfolio.MaxTotalPositionPct > 1 {
		errs = append(errs, "portfolio.max_total_position_pct must be between 0 and 1")
	}
	if c.Portfolio.MinOrderAmount < 0 {
		errs = append(errs, "portfolio.min_order_amount must not be negative")
	}
	switch c.Portfolio.PositionSizeMethod {
	case "", string(portfolio.SizeFixedAmount), string(portfolio.SizePercentOfPortfolio), string(portfolio.SizeSignalStrength):
	default:
		errs = append(errs, fmt.Sprintf("portfolio.position_size_method '%s' is not supported", c.Portfolio.PositionSizeMethod))
	}
	if c.Portfolio.DefaultPositionSize < 0 {
		errs = append(errs, "portfolio.default_position_size must be positive")
	}
	if c.Portfolio.SignalCooldownSeconds < 0 {
		errs = append(errs, "portfolio.signal_cooldown_seconds must not be negative")
	}

	if c.Env == EnvBacktest {
		errs = append(errs, c.validateBacktest()...)
	}
	if c.Env == EnvLiveTrading {
		errs = append(errs, c.validateLive()...)
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}

	if (c.Alerting.TelegramBotToken == "") != (c.Alerting.TelegramChatID == "") {
		errs = append(errs, "alerting.telegram_bot_token and alerting.telegram_chat_id must be set together")
	}

	seen := make(map[string]bool, len(c.Strategies))
	for i, s := range c.Strategies {
		if s.StrategyID == "" {
			errs = append(errs, fmt.Sprintf("strategies[%d].strategy_id is required", i))
		} else if seen[s.StrategyID] {
			errs = append(errs, fmt.Sprintf("strategies[%d].strategy_id '%s' is duplicated", i, s.StrategyID))
		}
		seen[s.StrategyID] = true
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("strategies[%d].name is required", i))
		}
		if _, ok := types.ParseStrategyKind(s.Kind); !ok {
			errs = append(errs, fmt.Sprintf("strategies[%d].kind '%s' must be entry, exit or stop", i, s.Kind))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", types.ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateBacktest() []string {
	var errs []string
	if c.Backtest.StartDate == "" || c.Backtest.EndDate == "" {
		errs = append(errs, "backtest.start_date and backtest.end_date are required")
	} else {
		start, err1 := time.Parse(dateLayout, c.Backtest.StartDate)
		end, err2 := time.Parse(dateLayout, c.Backtest.EndDate)
		if err1 != nil {
			errs = append(errs, fmt.Sprintf("backtest.start_date '%s' is not YYYY-MM-DD", c.Backtest.StartDate))
		}
		if err2 != nil {
			errs = append(errs, fmt.Sprintf("backtest.end_date '%s' is not YYYY-MM-DD", c.Backtest.EndDate))
		}
		if err1 == nil && err2 == nil && end.Before(start) {
			errs = append(errs, "backtest.end_date is before backtest.start_date")
		}
	}
	if c.Backtest.RiskFreeRate < 0 || c.Backtest.RiskFreeRate > 1 {
		errs = append(errs, "backtest.risk_free_rate must be between 0 and 1")
	}
	errs = append(errs, c.validateUniverse("backtest", c.Backtest.UniverseName, c.Backtest.Symbols)...)
	return errs
}

func (c *Config) validateLive() []string {
	var errs []string
	if c.Live.RefreshIntervalSeconds == 0 {
		c.Live.RefreshIntervalSeconds = 3600
	}
	if c.Live.HeartbeatIntervalSeconds == 0 {
		c.Live.HeartbeatIntervalSeconds = 60
	}
	if c.Live.RefreshIntervalSeconds < 0 {
		errs = append(errs, "live.refresh_interval_seconds must be positive")
	}
	if c.Live.HeartbeatIntervalSeconds < 0 {
		errs = append(errs, "live.heartbeat_interval_seconds must be positive")
	}
	if c.Live.DrawdownAlertPct < 0 || c.Live.DrawdownAlertPct >= 1 {
		errs = append(errs, "live.drawdown_alert_pct must be between 0 and 1")
	}
	errs = append(errs, c.validateUniverse("live", c.Live.UniverseName, c.Live.Symbols)...)
	return errs
}

func (c *Config) validateUniverse(section, name string, symbols []string) []string {
	var errs []string
	if name == "" && len(symbols) == 0 {
		errs = append(errs, fmt.Sprintf("%s.universe_name or %s.symbols is required", section, section))
	}
	if name != "" && c.BusinessDBPath == "" {
		errs = append(errs, fmt.Sprintf("%s.universe_name needs business_db_path to resolve it", section))
	}
	return errs
}

// InitialCapitalDecimal returns the starting capital as a decimal.
func (c *Config) InitialCapitalDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.InitialCapital)
}

// SlogLevel maps log_level onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RefreshInterval returns the live kline pull spacing.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Live.RefreshIntervalSeconds) * time.Second
}

// HeartbeatInterval returns the live equity mark spacing.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Live.HeartbeatIntervalSeconds) * time.Second
}

// BacktestWindow returns the parsed backtest date range.
func (c *Config) BacktestWindow() (start, end time.Time, err error) {
	start, err = time.Parse(dateLayout, c.Backtest.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: backtest.start_date: %s", types.ErrInvalidRange, c.Backtest.StartDate)
	}
	end, err = time.Parse(dateLayout, c.Backtest.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: backtest.end_date: %s", types.ErrInvalidRange, c.Backtest.EndDate)
	}
	return start, end, nil
}

// Universe returns the configured symbol list for the active env. An empty
// list means the universe must be resolved by name from the business store.
func (c *Config) Universe() []string {
	if c.Env == EnvLiveTrading {
		return c.Live.Symbols
	}
	return c.Backtest.Symbols
}

// UniverseName returns the named universe for the active env.
func (c *Config) UniverseName() string {
	if c.Env == EnvLiveTrading {
		return c.Live.UniverseName
	}
	return c.Backtest.UniverseName
}

// TelegramEnabled reports whether a telegram channel is fully configured.
func (c *Config) TelegramEnabled() bool {
	return c.Alerting.TelegramBotToken != "" && c.Alerting.TelegramChatID != ""
}

// ToBusConfig converts to event.Config.
func (c *Config) ToBusConfig() event.Config {
	return event.Config{
		CentralQueueSize:    c.EventBus.CentralQueueSize,
		SubscriberQueueSize: c.EventBus.SubscriberQueueSize,
	}
}

// ToExecutionConfig converts to the simulated fill model's execution.Config.
func (c *Config) ToExecutionConfig() execution.Config {
	return execution.Config{
		Slippage:       decimal.NewFromFloat(c.Execution.Slippage),
		CommissionRate: decimal.NewFromFloat(c.Execution.CommissionRate),
		MinCommission:  decimal.NewFromFloat(c.Execution.MinCommission),
		ExecutionDelay: time.Duration(c.Execution.ExecutionDelaySeconds) * time.Second,
		Seed:           c.Execution.Seed,
	}
}

// ToLiveGateConfig converts to the live execution gates. Zero caps take the
// gate defaults.
func (c *Config) ToLiveGateConfig() execution.LiveConfig {
	gates := execution.DefaultLiveConfig()
	if c.Execution.MaxOrderValue > 0 {
		gates.MaxOrderValue = decimal.NewFromFloat(c.Execution.MaxOrderValue)
	}
	if c.Execution.MaxDailyOrders > 0 {
		gates.MaxDailyOrders = c.Execution.MaxDailyOrders
	}
	return gates
}

// ToPortfolioConfig converts to portfolio.Config. Zero knobs take the
// portfolio defaults.
func (c *Config) ToPortfolioConfig() portfolio.Config {
	pc := portfolio.DefaultConfig()
	if c.Portfolio.MaxPositionPct > 0 {
		pc.MaxPositionPct = decimal.NewFromFloat(c.Portfolio.MaxPositionPct)
	}
	if c.Portfolio.MaxTotalPositionPct > 0 {
		pc.MaxTotalPositionPct = decimal.NewFromFloat(c.Portfolio.MaxTotalPositionPct)
	}
	if c.Portfolio.MinOrderAmount > 0 {
		pc.MinOrderAmount = decimal.NewFromFloat(c.Portfolio.MinOrderAmount)
	}
	if c.Portfolio.PositionSizeMethod != "" {
		pc.SizeMethod = portfolio.SizeMethod(c.Portfolio.PositionSizeMethod)
	}
	if c.Portfolio.DefaultPositionSize > 0 {
		pc.DefaultPositionSize = decimal.NewFromFloat(c.Portfolio.DefaultPositionSize)
	}
	if c.Portfolio.SignalCooldownSeconds > 0 {
		pc.SignalCooldown = time.Duration(c.Portfolio.SignalCooldownSeconds) * time.Second
	}
	return pc
}

// ToBacktestConfig converts to backtest.Config.
func (c *Config) ToBacktestConfig() backtest.Config {
	bc := backtest.DefaultConfig()
	bc.InitialCapital = c.InitialCapitalDecimal()
	if c.Backtest.RiskFreeRate > 0 {
		bc.RiskFreeRate = decimal.NewFromFloat(c.Backtest.RiskFreeRate)
	}
	bc.Bus = c.ToBusConfig()
	bc.Portfolio = c.ToPortfolioConfig()
	bc.Execution = c.ToExecutionConfig()
	return bc
}

// ToEngineConfig converts to the live engine.Config.
func (c *Config) ToEngineConfig() engine.Config {
	ec := engine.DefaultConfig()
	ec.InitialCapital = c.InitialCapitalDecimal()
	if c.Live.RefreshIntervalSeconds > 0 {
		ec.RefreshInterval = c.RefreshInterval()
	}
	if c.Live.HeartbeatIntervalSeconds > 0 {
		ec.HeartbeatInterval = c.HeartbeatInterval()
	}
	if c.Live.DrawdownAlertPct > 0 {
		ec.DrawdownAlert = decimal.NewFromFloat(c.Live.DrawdownAlertPct)
	}
	ec.Bus = c.ToBusConfig()
	ec.Portfolio = c.ToPortfolioConfig()
	ec.Execution = c.ToExecutionConfig()
	ec.Live = c.ToLiveGateConfig()
	return ec
}

// Instances builds the enabled strategy instances.
func (c *Config) Instances() ([]types.StrategyInstance, error) {
	out := make([]types.StrategyInstance, 0, len(c.Strategies))
	for _, s := range c.Strategies {
		if !s.Enabled {
			continue
		}
		kind, _ := types.ParseStrategyKind(s.Kind)
		inst, err := types.NewStrategyInstance(s.StrategyID, s.Name, kind, s.Options)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}
