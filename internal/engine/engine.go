// Package engine runs the live-trading simulation. It wires the same bus,
// portfolio, execution and strategy components as a backtest, then drives
// them with wall-clock timers instead of a bar replay: a market refresh that
// pulls fresh klines and publishes them, a heartbeat that marks equity, and
// an end-of-day summary after the afternoon session closes.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/Will-Grindelwald/quant-trading/internal/alerting"
	"github.com/Will-Grindelwald/quant-trading/internal/data"
	"github.com/Will-Grindelwald/quant-trading/internal/event"
	"github.com/Will-Grindelwald/quant-trading/internal/execution"
	"github.com/Will-Grindelwald/quant-trading/internal/portfolio"
	"github.com/Will-Grindelwald/quant-trading/internal/strategy"
	"github.com/Will-Grindelwald/quant-trading/internal/types"
)

// Timer ids.
const (
	timerRefresh   = "market-refresh"
	timerHeartbeat = "heartbeat"
	timerSummary   = "daily-summary"
)

const (
	// refreshStartDelay postpones the first kline pull so the bus and
	// strategies settle first.
	refreshStartDelay = 10 * time.Second
	// summaryCheckInterval is how often the end-of-day check runs.
	summaryCheckInterval = time.Minute
	// staleAfterFailures is the consecutive refresh failure count that
	// raises the data-stale alert.
	staleAfterFailures = 3
)

// Config holds the knobs for one live session.
type Config struct {
	InitialCapital decimal.Decimal
	// RefreshInterval spaces the kline pulls.
	RefreshInterval time.Duration
	// HeartbeatInterval spaces the equity marks.
	HeartbeatInterval time.Duration
	// DrawdownAlert is the drawdown ratio below the high-water mark that
	// raises an operator alert. Zero disables the check.
	DrawdownAlert decimal.Decimal

	Bus       event.Config
	Portfolio portfolio.Config
	Execution execution.Config
	Live      execution.LiveConfig
}

// DefaultConfig returns a one-million account refreshing hourly, marking
// equity every minute and alerting at a 10% drawdown.
func DefaultConfig() Config {
	return Config{
		InitialCapital:    decimal.NewFromInt(1000000),
		RefreshInterval:   time.Hour,
		HeartbeatInterval: time.Minute,
		DrawdownAlert:     decimal.RequireFromString("0.10"),
		Portfolio:         portfolio.DefaultConfig(),
		Execution:         execution.DefaultConfig(),
		Live:              execution.DefaultLiveConfig(),
	}
}

// GaugeRecorder receives the heartbeat marks. Nil recorders are skipped.
type GaugeRecorder interface {
	EquityUpdated(equity, highWater, drawdown decimal.Decimal)
	PositionsUpdated(count int)
}

// SummarySender receives the end-of-day report. The Telegram alerter
// implements it; when unset the report goes out as a plain alert.
type SummarySender interface {
	SendDailySummary(ctx context.Context, summary alerting.DailySummary) error
}

// Deps are the externally provided services for an engine. Store and Source
// are required; everything else may be left nil.
type Deps struct {
	Store    *data.BarStore
	Source   data.Source
	Calendar *types.Calendar
	Logger   *slog.Logger

	// Universes and UniverseName flow into the data handler so callers can
	// resolve the session universe by name; the symbol list passed to
	// Setup drives the engine itself.
	Universes    data.UniverseLoader
	UniverseName string

	// Limiter throttles source calls; nil gets the handler default.
	Limiter *rate.Limiter

	Alerter   alerting.Alerter
	Summaries SummarySender
	Gauges    GaugeRecorder

	// Metrics hooks handed to the wired components; nil hooks are no-ops.
	BusRecorder       event.Recorder
	PortfolioRecorder portfolio.Recorder
	ExecutionRecorder execution.Recorder
}

// Engine is the live trading loop. Setup builds a fresh component set and
// its timers; Start spins them up and Stop tears them down in reverse.
type Engine struct {
	cfg    Config
	deps   Deps
	cal    *types.Calendar
	logger *slog.Logger

	// now is the engine clock; tests pin it.
	now func() time.Time

	universe   []string
	bus        *event.Bus
	handler    *data.LiveHandler
	account    *types.Account
	portfolio  *portfolio.Manager
	execution  *execution.Live
	strategies *strategy.Manager
	timers     *event.TimerManager

	mu      sync.Mutex
	running bool
	runCtx  context.Context
	cancel  context.CancelFunc

	lastStamp map[string]time.Time
	lastClose map[string]decimal.Decimal
	highWater decimal.Decimal
	ddAlerted bool

	refreshFails int

	baselineDate       time.Time
	baselineEquity     decimal.Decimal
	baselineCommission decimal.Decimal
	baselineClosed     int
	baselineWinning    int
	baselineLosing     int
	lastSummary        time.Time
}

// New creates an engine over the given dependencies. Call Setup before
// Start.
func New(cfg Config, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cal := deps.Calendar
	if cal == nil {
		cal = types.NewCalendar()
	}
	return &Engine{
		cfg:    cfg,
		deps:   deps,
		cal:    cal,
		logger: logger,
		now:    time.Now,
	}
}

// Setup builds a fresh component set: bus, live data handler, account,
// portfolio manager, gated execution, one strategy per instance config and
// the three session timers. Calling Setup again prepares another session
// from scratch; nothing carries over.
func (e *Engine) Setup(universe []string, instances []types.StrategyInstance) error {
	if e.deps.Store == nil {
		return fmt.Errorf("%w: nil bar store", types.ErrInvalidConfig)
	}
	if e.deps.Source == nil {
		return fmt.Errorf("%w: nil market data source", types.ErrInvalidConfig)
	}
	if e.cfg.RefreshInterval <= 0 || e.cfg.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: refresh and heartbeat intervals must be positive", types.ErrInvalidConfig)
	}
	if len(universe) == 0 {
		return fmt.Errorf("%w: empty universe", types.ErrInvalidConfig)
	}
	if len(instances) == 0 {
		return fmt.Errorf("%w: at least one strategy required", types.ErrInvalidConfig)
	}

	bus := event.New(e.cfg.Bus, e.logger, e.deps.BusRecorder)
	handler := data.NewLiveHandler(e.deps.Store, e.cal, e.deps.Universes, e.deps.UniverseName,
		e.deps.Source, e.deps.Limiter, e.logger)

	account, err := types.NewAccount("live", e.cfg.InitialCapital)
	if err != nil {
		return err
	}
	pm, err := portfolio.NewManager(e.cfg.Portfolio, account, bus, e.logger, e.deps.PortfolioRecorder)
	if err != nil {
		return fmt.Errorf("portfolio manager: %w", err)
	}
	exec, err := execution.NewLive(e.cfg.Live, e.cfg.Execution, bus, e.logger, e.deps.ExecutionRecorder)
	if err != nil {
		return fmt.Errorf("execution handler: %w", err)
	}
	exec.OnReject(func(o *types.Order) {
		pm.Release(o)
		e.alert(e.runContext(), alerting.EventOrderRejected, "order rejected",
			"order", o.ID,
			"symbol", o.Symbol,
			"side", o.Side.String(),
			"quantity", o.Quantity,
			"reason", o.RejectReason)
	})

	strategies := strategy.NewManager(bus, e.logger)
	strategyDeps := strategy.Deps{Positions: pm, Bars: handler, Logger: e.logger}
	for _, inst := range instances {
		s, err := strategy.Build(inst, strategyDeps)
		if err != nil {
			return err
		}
		seedUniverse(s, universe)
		if err := strategies.Register(s); err != nil {
			return err
		}
	}

	if err := bus.Subscribe(event.TypeFill, "engine-alerts", e.onFill); err != nil {
		return err
	}

	timers := event.NewTimerManager(e.logger)
	if _, err := timers.Create(timerRefresh, e.cfg.RefreshInterval, e.refreshMarket, true, refreshStartDelay); err != nil {
		return err
	}
	if _, err := timers.Create(timerHeartbeat, e.cfg.HeartbeatInterval, e.heartbeat, true, 0); err != nil {
		return err
	}
	if _, err := timers.Create(timerSummary, summaryCheckInterval, e.dailySummary, true, 0); err != nil {
		return err
	}

	e.mu.Lock()
	e.universe = universe
	e.bus = bus
	e.handler = handler
	e.account = account
	e.portfolio = pm
	e.execution = exec
	e.strategies = strategies
	e.timers = timers
	e.runCtx = context.Background()
	e.cancel = nil
	e.lastStamp = make(map[string]time.Time, len(universe))
	e.lastClose = make(map[string]decimal.Decimal, len(universe))
	e.highWater = e.cfg.InitialCapital
	e.ddAlerted = false
	e.refreshFails = 0
	e.baselineDate = time.Time{}
	e.lastSummary = time.Time{}
	e.mu.Unlock()

	e.logger.Info("live engine ready",
		"symbols", len(universe), "strategies", strategies.Len(),
		"refresh", e.cfg.RefreshInterval, "heartbeat", e.cfg.HeartbeatInterval,
		"capital", e.cfg.InitialCapital)
	return nil
}

// Start spins up the bus, the strategies and the timers. The context bounds
// the session: cancelling it stops in-flight refreshes, but Stop still must
// be called to tear the components down.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.bus == nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: engine not set up", types.ErrInvalidConfig)
	}
	if e.running {
		e.mu.Unlock()
		return types.ErrAlreadyRunning
	}
	e.runCtx, e.cancel = context.WithCancel(ctx)
	e.running = true
	e.mu.Unlock()

	e.bus.Start()
	e.strategies.StartAll()
	e.timers.StartAll()

	e.logger.Info("live engine started",
		"symbols", len(e.universe), "strategies", e.strategies.Len(),
		"capital", e.cfg.InitialCapital)
	e.alert(e.runContext(), alerting.EventEngineStarted, "live engine started",
		"symbols", len(e.universe), "strategies", e.strategies.Len())
	return nil
}

// Stop tears the session down in reverse start order. Stopping an engine
// that is not running is a no-op.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.timers.StopAll()
	e.strategies.StopAll()
	e.bus.Stop()

	e.logger.Info("live engine stopped")
	e.alert(context.Background(), alerting.EventEngineStopped, "live engine stopped")
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Account exposes the book for inspection.
func (e *Engine) Account() *types.Account { return e.account }

// Stats is a point-in-time snapshot of the session for status displays.
type Stats struct {
	Running      bool
	ActiveOrders int
	Portfolio    portfolio.Stats
	Strategies   strategy.Stats
	Bus          event.Stats
	Timers       []string
}

// Statistics snapshots the session. Before Setup it returns the zero value.
func (e *Engine) Statistics() Stats {
	e.mu.Lock()
	running := e.running
	ready := e.bus != nil
	e.mu.Unlock()
	if !ready {
		return Stats{}
	}
	return Stats{
		Running:      running,
		ActiveOrders: len(e.execution.ActiveOrders()),
		Portfolio:    e.portfolio.Stats(),
		Strategies:   e.strategies.Statistics(),
		Bus:          e.bus.Stats(),
		Timers:       e.timers.Running(),
	}
}

// onFill raises the order-filled alert for every fill on the bus.
func (e *Engine) onFill(ctx context.Context, ev event.Event) error {
	fe, ok := ev.(event.FillEvent)
	if !ok {
		return nil
	}
	e.alert(ctx, alerting.EventOrderFilled, "order filled",
		"symbol", fe.Fill.Symbol,
		"side", fe.Fill.Side.String(),
		"quantity", fe.Fill.Quantity,
		"price", fe.Fill.Price,
		"strategy", fe.Fill.StrategyID)
	return nil
}

// refreshMarket pulls fresh klines and publishes a MARKET event for every
// universe symbol whose bar advanced since the last publish. Outside trading
// hours the pull is skipped entirely.
func (e *Engine) refreshMarket() {
	now := e.now()
	if !e.cal.IsTradingTime(now) {
		e.logger.Debug("refresh skipped outside trading hours", "time", now.Format("2006-01-02 15:04"))
		return
	}

	ctx := e.runContext()
	count, err := e.handler.Refresh(ctx, e.universe, types.FrequencyDay)
	if err != nil {
		e.refreshFailed(ctx, err)
		return
	}
	e.refreshRecovered()

	published := 0
	for _, symbol := range e.universe {
		bar, ok := e.handler.LatestBar(symbol, types.FrequencyDay)
		if !ok || !e.fresh(symbol, bar) {
			continue
		}
		if e.bus.Publish(event.MarketEvent{Symbol: symbol, Bar: bar}) {
			published++
		}
	}
	e.logger.Debug("market refreshed", "bars", count, "published", published)
}

// fresh reports whether the bar advances the symbol's last published state:
// a newer timestamp, or a changed close on the same timestamp while the
// day's bar is still forming. Fresh bars are recorded as published.
func (e *Engine) fresh(symbol string, bar types.Bar) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	stamp, seen := e.lastStamp[symbol]
	if seen && !bar.Timestamp.After(stamp) {
		if bar.Timestamp.Equal(stamp) && !bar.Close.Equal(e.lastClose[symbol]) {
			e.lastClose[symbol] = bar.Close
			return true
		}
		return false
	}
	e.lastStamp[symbol] = bar.Timestamp
	e.lastClose[symbol] = bar.Close
	return true
}

// refreshFailed counts consecutive failures and raises the data-stale alert
// once per streak.
func (e *Engine) refreshFailed(ctx context.Context, err error) {
	e.mu.Lock()
	e.refreshFails++
	fails := e.refreshFails
	e.mu.Unlock()

	e.logger.Warn("market refresh failed", "attempt", fails, "error", err)
	if fails == staleAfterFailures {
		e.alert(ctx, alerting.EventDataStale, "market data stale",
			"failures", fails, "error", err.Error())
	}
}

func (e *Engine) refreshRecovered() {
	e.mu.Lock()
	fails := e.refreshFails
	e.refreshFails = 0
	e.mu.Unlock()

	if fails >= staleAfterFailures {
		e.logger.Info("market refresh recovered", "failures", fails)
	}
}

// heartbeat marks the account at the last published closes, tracks the
// high-water mark and raises the drawdown alert when the configured
// threshold is crossed. The mark also goes to the gauges and out on the bus
// as a TIMER event.
func (e *Engine) heartbeat() {
	now := e.now()
	e.ensureDayBaseline(now)

	prices := e.marks()
	equity := e.account.TotalValue(prices)

	e.mu.Lock()
	if equity.GreaterThan(e.highWater) {
		e.highWater = equity
	}
	highWater := e.highWater
	drawdown := decimal.Zero
	if highWater.IsPositive() {
		drawdown = highWater.Sub(equity).Div(highWater)
	}
	crossed := false
	if e.cfg.DrawdownAlert.IsPositive() {
		if drawdown.GreaterThanOrEqual(e.cfg.DrawdownAlert) {
			if !e.ddAlerted {
				e.ddAlerted = true
				crossed = true
			}
		} else {
			e.ddAlerted = false
		}
	}
	e.mu.Unlock()

	positions := e.account.PositionCount()
	if e.deps.Gauges != nil {
		e.deps.Gauges.EquityUpdated(equity, highWater, drawdown)
		e.deps.Gauges.PositionsUpdated(positions)
	}
	if crossed {
		e.alert(e.runContext(), alerting.EventDrawdownAlert, "drawdown threshold breached",
			"equity", equity,
			"high_water", highWater,
			"drawdown", drawdown,
			"threshold", e.cfg.DrawdownAlert)
	}

	e.bus.Publish(event.TimerEvent{TimerID: timerHeartbeat, Interval: e.cfg.HeartbeatInterval, Timestamp: now})
	e.logger.Debug("heartbeat", "equity", equity, "drawdown", drawdown, "positions", positions)
}

// dailySummary sends the end-of-day report once per trading day, after the
// last session closes.
func (e *Engine) dailySummary() {
	now := e.now()
	if !e.cal.IsTradingDay(now) {
		return
	}
	if len(e.cal.Sessions) > 0 {
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		sessionEnd := midnight.Add(e.cal.Sessions[len(e.cal.Sessions)-1].End)
		if now.Before(sessionEnd) {
			return
		}
	}

	e.mu.Lock()
	sent := sameDay(e.lastSummary, now)
	if !sent {
		e.lastSummary = now
	}
	e.mu.Unlock()
	if sent {
		return
	}

	e.ensureDayBaseline(now)
	summary := e.buildSummary(now)
	ctx := e.runContext()

	if e.deps.Summaries != nil {
		if err := e.deps.Summaries.SendDailySummary(ctx, summary); err != nil {
			e.logger.Warn("daily summary delivery failed", "error", err)
		}
		return
	}
	e.alert(ctx, alerting.EventDailySummary, "daily summary",
		"date", summary.Date.Format("2006-01-02"),
		"equity", summary.EndingEquity,
		"pnl", summary.TotalPL,
		"return_pct", summary.ReturnPct,
		"trades", summary.TotalTrades,
		"win_rate_pct", summary.WinRate,
		"commission", summary.Commission,
		"positions", summary.OpenPositions)
}

// buildSummary assembles the day's report as deltas against the morning
// baseline.
func (e *Engine) buildSummary(now time.Time) alerting.DailySummary {
	prices := e.marks()
	equity := e.account.TotalValue(prices)
	closed, winning, losing := tradeCounts(e.account.Trades())
	commission := e.account.TotalCommission()
	positions := e.account.PositionCount()

	e.mu.Lock()
	defer e.mu.Unlock()
	return alerting.NewDailySummary(
		time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()),
		e.baselineEquity,
		equity,
		e.highWater,
		closed-e.baselineClosed,
		winning-e.baselineWinning,
		losing-e.baselineLosing,
		commission.Sub(e.baselineCommission),
		positions,
	)
}

// ensureDayBaseline captures the day's opening numbers on the first tick of
// a new calendar day, so the end-of-day summary reports deltas.
func (e *Engine) ensureDayBaseline(now time.Time) {
	prices := e.marks()
	equity := e.account.TotalValue(prices)
	closed, winning, losing := tradeCounts(e.account.Trades())
	commission := e.account.TotalCommission()

	e.mu.Lock()
	defer e.mu.Unlock()
	if sameDay(e.baselineDate, now) {
		return
	}
	e.baselineDate = now
	e.baselineEquity = equity
	e.baselineCommission = commission
	e.baselineClosed = closed
	e.baselineWinning = winning
	e.baselineLosing = losing
}

// marks returns a copy of the last published closes.
func (e *Engine) marks() map[string]decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	prices := make(map[string]decimal.Decimal, len(e.lastClose))
	for s, p := range e.lastClose {
		prices[s] = p
	}
	return prices
}

// runContext returns the session context, Background before Start.
func (e *Engine) runContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runCtx != nil {
		return e.runCtx
	}
	return context.Background()
}

// alert delivers an operator alert at the event's default severity,
// warn-logging delivery failures. No alerter configured means no-op.
func (e *Engine) alert(ctx context.Context, ev alerting.AlertEvent, msg string, fields ...any) {
	if e.deps.Alerter == nil {
		return
	}
	if err := e.deps.Alerter.Alert(ctx, alerting.EventSeverity(ev), msg, fields...); err != nil {
		e.logger.Warn("alert delivery failed", "event", string(ev), "error", err)
	}
}

// seedUniverse hands the session universe to strategies that did not
// configure their own. Exit and stop kinds derive watch sets from holdings,
// so the seed is inert for them.
func seedUniverse(s strategy.Strategy, universe []string) {
	type universeSetter interface {
		Universe() []string
		SetUniverse([]string)
	}
	if us, ok := s.(universeSetter); ok && len(us.Universe()) == 0 {
		us.SetUniverse(universe)
	}
}

// tradeCounts tallies closed trades and their win/loss split.
func tradeCounts(trades []types.Trade) (closed, winning, losing int) {
	for _, t := range trades {
		if t.Status != types.TradeClosed {
			continue
		}
		closed++
		if t.RealizedPnL.IsPositive() {
			winning++
		} else if t.RealizedPnL.IsNegative() {
			losing++
		}
	}
	return closed, winning, losing
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
