// Package backtest drives event-driven backtests. The engine replays daily
// bars through the bus so strategies, portfolio and execution react exactly
// as they would in live simulation, then reports the run as closed trades
// plus a daily equity curve.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Will-Grindelwald/quant-trading/internal/data"
	"github.com/Will-Grindelwald/quant-trading/internal/event"
	"github.com/Will-Grindelwald/quant-trading/internal/execution"
	"github.com/Will-Grindelwald/quant-trading/internal/portfolio"
	"github.com/Will-Grindelwald/quant-trading/internal/strategy"
	"github.com/Will-Grindelwald/quant-trading/internal/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// progressLogEvery spaces the progress log lines, in trading days.
const progressLogEvery = 10

// Config holds the knobs for one backtest run.
type Config struct {
	InitialCapital decimal.Decimal
	// RiskFreeRate is the annualized rate used for the Sharpe ratio.
	RiskFreeRate decimal.Decimal

	Bus       event.Config
	Portfolio portfolio.Config
	Execution execution.Config
}

// DefaultConfig returns a one-million account over the standard component
// defaults. Callers wanting reproducible fills should set Execution.Seed.
func DefaultConfig() Config {
	return Config{
		InitialCapital: decimal.NewFromInt(1000000),
		RiskFreeRate:   decimal.RequireFromString("0.02"),
		Portfolio:      portfolio.DefaultConfig(),
		Execution:      execution.DefaultConfig(),
	}
}

// RecordStore persists finished runs. A nil store skips persistence.
type RecordStore interface {
	SaveBacktestRecord(ctx context.Context, rec types.BacktestRecord) error
	SaveTrades(ctx context.Context, backtestID string, trades []types.Trade) error
}

// Deps are the externally provided services for an engine. Store is
// required; everything else may be left nil.
type Deps struct {
	Store    *data.BarStore
	Calendar *types.Calendar
	Logger   *slog.Logger

	// Records persists the run summary and trades after Run when set.
	Records RecordStore

	// Metrics hooks handed to the wired components; nil hooks are no-ops.
	BusRecorder       event.Recorder
	PortfolioRecorder portfolio.Recorder
	ExecutionRecorder execution.Recorder
}

// ProgressUpdate reports the state of a running backtest after one trading
// day, for progress bars and periodic logging.
type ProgressUpdate struct {
	Day       int
	TotalDays int
	Date      time.Time
	Equity    decimal.Decimal
	Trades    int
	WinRate   decimal.Decimal
}

// ProgressCallback receives a ProgressUpdate after every trading day.
type ProgressCallback func(ProgressUpdate)

// EquityPoint is the account value at one trading day's close.
type EquityPoint struct {
	Timestamp time.Time
	Equity    decimal.Decimal
	Drawdown  decimal.Decimal // ratio below the running high-water mark
}

// Result holds the outcome of one backtest run. Trade counts and the win
// rate cover closed trades; Trades also carries positions still open at the
// end of the window.
type Result struct {
	Start          time.Time
	End            time.Time
	InitialCapital decimal.Decimal
	FinalValue     decimal.Decimal
	TotalReturn    decimal.Decimal // ratio, 0.15 = 15%
	MaxDrawdown    decimal.Decimal // ratio below the high-water mark
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
	WinRate        decimal.Decimal
	ProfitFactor   decimal.Decimal // gross profit / gross loss
	SharpeRatio    decimal.Decimal

	TotalCommission decimal.Decimal
	RealizedPnL     decimal.Decimal

	Trades      []types.Trade
	EquityCurve []EquityPoint

	Portfolio  portfolio.Stats
	Strategies strategy.Stats
	Bus        event.Stats
}

// Engine wires a full trading pipeline around a preloaded bar store and
// replays a date range through it, one trading day at a time. Setup builds a
// fresh component set; Run drives it and collects the Result.
type Engine struct {
	cfg    Config
	store  *data.BarStore
	cal    *types.Calendar
	logger *slog.Logger
	deps   Deps

	start    time.Time
	end      time.Time
	universe []string

	bus        *event.Bus
	handler    *data.BacktestHandler
	account    *types.Account
	portfolio  *portfolio.Manager
	execution  *execution.Simulated
	strategies *strategy.Manager

	lastClose   map[string]decimal.Decimal
	equityCurve []EquityPoint
	highWater   decimal.Decimal

	progressCb ProgressCallback
	result     *Result
}

// New creates an engine over the given store. Call Setup before Run.
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
		store:  deps.Store,
		cal:    cal,
		logger: logger,
		deps:   deps,
	}
}

// SetProgressCallback registers a callback invoked after every trading day.
func (e *Engine) SetProgressCallback(cb ProgressCallback) {
	e.progressCb = cb
}

// Setup validates the run window and builds a fresh component set: bus, data
// handler, account, portfolio manager, simulated execution and one strategy
// per instance config. Calling Setup again after Run returns prepares another
// run from scratch; nothing carries over.
func (e *Engine) Setup(start, end time.Time, universe []string, instances []types.StrategyInstance) error {
	if e.store == nil {
		return fmt.Errorf("%w: nil bar store", types.ErrInvalidConfig)
	}
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end dates required", types.ErrInvalidRange)
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: start %s not before end %s",
			types.ErrInvalidRange, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	if len(instances) == 0 {
		return fmt.Errorf("%w: at least one strategy required", types.ErrInvalidConfig)
	}

	bus := event.New(e.cfg.Bus, e.logger, e.deps.BusRecorder)
	handler := data.NewBacktestHandler(e.store, e.cal, nil, "", e.logger)

	account, err := types.NewAccount("backtest", e.cfg.InitialCapital)
	if err != nil {
		return err
	}
	pm, err := portfolio.NewManager(e.cfg.Portfolio, account, bus, e.logger, e.deps.PortfolioRecorder)
	if err != nil {
		return fmt.Errorf("portfolio manager: %w", err)
	}
	exec, err := execution.NewSimulated(e.cfg.Execution, bus, e.logger, e.deps.ExecutionRecorder)
	if err != nil {
		return fmt.Errorf("execution handler: %w", err)
	}

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

	e.start, e.end, e.universe = start, end, universe
	e.bus = bus
	e.handler = handler
	e.account = account
	e.portfolio = pm
	e.execution = exec
	e.strategies = strategies
	e.lastClose = make(map[string]decimal.Decimal, len(universe))
	e.equityCurve = nil
	e.highWater = e.cfg.InitialCapital
	e.result = nil

	e.logger.Info("backtest ready",
		"start", start.Format("2006-01-02"), "end", end.Format("2006-01-02"),
		"symbols", len(universe), "strategies", strategies.Len(),
		"capital", e.cfg.InitialCapital)
	return nil
}

// Run replays the configured window through the pipeline. For each trading
// day it advances the data cursor, publishes one MARKET event per universe
// symbol carrying that day's bar, and waits for the bus to quiesce so the
// whole signal, order and fill chain settles before the day's equity is
// marked. Cancellation is honored between days.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if e.bus == nil {
		return nil, fmt.Errorf("%w: engine not set up", types.ErrInvalidConfig)
	}

	days := e.cal.TradingDaysBetween(e.start, e.end)
	if len(days) == 0 {
		e.logger.Warn("no trading days in range",
			"start", e.start.Format("2006-01-02"), "end", e.end.Format("2006-01-02"))
	}

	e.bus.Start()
	e.strategies.StartAll()
	started := time.Now()
	e.logger.Info("backtest started", "days", len(days))

	var runErr error
loop:
	for i, day := range days {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		default:
		}

		e.handler.SetCurrentTime(day)
		published := e.publishDay(day)
		if err := e.bus.Quiesce(ctx); err != nil {
			runErr = err
			break loop
		}

		equity := e.recordEquity(day)
		e.reportProgress(i+1, len(days), day, equity)
		e.logger.Debug("trading day replayed",
			"date", day.Format("2006-01-02"), "bars", published, "equity", equity)
	}

	e.strategies.StopAll()
	e.bus.Stop()

	if runErr != nil {
		e.logger.Warn("backtest aborted", "error", runErr, "elapsed", time.Since(started))
		return nil, runErr
	}

	e.result = e.buildResult()
	e.logger.Info("backtest finished",
		"days", len(days), "elapsed", time.Since(started),
		"final_value", e.result.FinalValue, "return", e.result.TotalReturn,
		"trades", e.result.TotalTrades)

	if e.deps.Records != nil {
		if err := e.persist(ctx, e.result); err != nil {
			e.logger.Warn("backtest record not persisted", "error", err)
		}
	}
	return e.result, nil
}

// Results returns the result of the last completed run, nil before Run.
func (e *Engine) Results() *Result { return e.result }

// Account exposes the book for inspection after a run.
func (e *Engine) Account() *types.Account { return e.account }

// publishDay emits one MARKET event per universe symbol whose latest daily
// bar falls on the given trading day. Symbols without a fresh bar, suspended
// or not yet listed, are skipped.
func (e *Engine) publishDay(day time.Time) int {
	published := 0
	for _, symbol := range e.universe {
		bar, ok := e.handler.LatestBar(symbol, types.FrequencyDay)
		if !ok || !sameDay(bar.Timestamp, day) {
			continue
		}
		e.lastClose[symbol] = bar.Close
		if e.bus.Publish(event.MarketEvent{Symbol: symbol, Bar: bar}) {
			published++
		}
	}
	return published
}

// recordEquity marks the account at the latest closes and appends the day's
// equity point, tracking the running high-water mark for drawdown.
func (e *Engine) recordEquity(day time.Time) decimal.Decimal {
	equity := e.account.TotalValue(e.lastClose)
	if equity.GreaterThan(e.highWater) {
		e.highWater = equity
	}
	drawdown := decimal.Zero
	if e.highWater.IsPositive() {
		drawdown = e.highWater.Sub(equity).Div(e.highWater)
	}
	e.equityCurve = append(e.equityCurve, EquityPoint{
		Timestamp: day,
		Equity:    equity,
		Drawdown:  drawdown,
	})
	return equity
}

func (e *Engine) reportProgress(day, total int, date time.Time, equity decimal.Decimal) {
	closed, winning, _ := tradeCounts(e.account.Trades())
	if e.progressCb != nil {
		e.progressCb(ProgressUpdate{
			Day:       day,
			TotalDays: total,
			Date:      date,
			Equity:    equity,
			Trades:    closed,
			WinRate:   ratio(winning, closed),
		})
	}
	if day%progressLogEvery == 0 || day == total {
		e.logger.Info("backtest progress",
			"day", day, "days", total, "date", date.Format("2006-01-02"),
			"equity", equity, "trades", closed)
	}
}

// buildResult assembles the Result from the settled account and the curve.
func (e *Engine) buildResult() *Result {
	trades := e.account.Trades()
	closed, winning, losing := tradeCounts(trades)

	grossProfit, grossLoss := decimal.Zero, decimal.Zero
	for _, t := range trades {
		if t.Status != types.TradeClosed {
			continue
		}
		if t.RealizedPnL.IsPositive() {
			grossProfit = grossProfit.Add(t.RealizedPnL)
		} else if t.RealizedPnL.IsNegative() {
			grossLoss = grossLoss.Add(t.RealizedPnL.Abs())
		}
	}
	profitFactor := decimal.Zero
	if grossLoss.IsPositive() {
		profitFactor = grossProfit.Div(grossLoss)
	}

	finalValue := e.account.TotalValue(e.lastClose)
	totalReturn := decimal.Zero
	if e.cfg.InitialCapital.IsPositive() {
		totalReturn = finalValue.Sub(e.cfg.InitialCapital).Div(e.cfg.InitialCapital)
	}

	res := &Result{
		Start:           e.start,
		End:             e.end,
		InitialCapital:  e.cfg.InitialCapital,
		FinalValue:      finalValue,
		TotalReturn:     totalReturn,
		TotalTrades:     closed,
		WinningTrades:   winning,
		LosingTrades:    losing,
		WinRate:         ratio(winning, closed),
		ProfitFactor:    profitFactor,
		TotalCommission: e.account.TotalCommission(),
		RealizedPnL:     e.account.RealizedPnL(),
		Trades:          trades,
		EquityCurve:     e.equityCurve,
		Portfolio:       e.portfolio.Stats(),
		Strategies:      e.strategies.Statistics(),
		Bus:             e.bus.Stats(),
	}

	m := NewMetrics(res, e.cfg.RiskFreeRate)
	res.MaxDrawdown = m.MaxDrawdown()
	res.SharpeRatio = m.SharpeRatio()
	return res
}

// persist writes the run summary and its trades to the record store.
func (e *Engine) persist(ctx context.Context, res *Result) error {
	rec := types.BacktestRecord{
		ID:             uuid.NewString(),
		Start:          res.Start,
		End:            res.End,
		InitialCapital: res.InitialCapital,
		FinalValue:     res.FinalValue,
		TotalReturn:    res.TotalReturn,
		MaxDrawdown:    res.MaxDrawdown,
		WinRate:        res.WinRate,
		TotalTrades:    res.TotalTrades,
		CreatedTime:    time.Now(),
	}
	if err := e.deps.Records.SaveBacktestRecord(ctx, rec); err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	if err := e.deps.Records.SaveTrades(ctx, rec.ID, res.Trades); err != nil {
		return fmt.Errorf("save trades: %w", err)
	}
	e.logger.Info("backtest persisted", "record", rec.ID, "trades", len(res.Trades))
	return nil
}

// seedUniverse hands the run universe to strategies that did not configure
// their own. Exit and stop kinds derive watch sets from holdings, so the
// seed is inert for them.
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

func ratio(num, den int) decimal.Decimal {
	if den == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(num)).Div(decimal.NewFromInt(int64(den)))
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
