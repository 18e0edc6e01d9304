// Package main is the quant trading command line: backtests, live simulation
// sessions and configuration validation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Will-Grindelwald/quant-trading/internal/alerting"
	"github.com/Will-Grindelwald/quant-trading/internal/backtest"
	"github.com/Will-Grindelwald/quant-trading/internal/config"
	"github.com/Will-Grindelwald/quant-trading/internal/data"
	"github.com/Will-Grindelwald/quant-trading/internal/engine"
	"github.com/Will-Grindelwald/quant-trading/internal/metrics"
	"github.com/Will-Grindelwald/quant-trading/internal/persistence"
	"github.com/Will-Grindelwald/quant-trading/internal/types"
	"github.com/Will-Grindelwald/quant-trading/internal/ui"
)

// Version information (set by build flags).
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// statsPollInterval spaces the bus backlog and liveness gauge updates.
const statsPollInterval = 15 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		cmdVersion()
	case "help", "-h", "--help":
		printUsage()
	case "backtest":
		cmdBacktest(os.Args[2:])
	case "run":
		cmdRun(os.Args[2:])
	case "validate":
		cmdValidate(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Quant Trading - Event-Driven A-Share Backtesting and Live Simulation

Usage:
  quant <command> [options]

Commands:
  backtest   Replay a date range and report performance
  run        Start a live trading simulation session
  validate   Validate a configuration file
  version    Show version information
  help       Show this help message

Examples:
  quant backtest --config config.yaml
  quant backtest --config config.yaml --trades
  quant run --config config.yaml
  quant validate --config config.yaml

Use "quant <command> --help" for more information about a command.`)
}

func cmdVersion() {
	fmt.Printf("quant version %s\n", Version)
	fmt.Printf("  Build time: %s\n", BuildTime)
	fmt.Printf("  Git commit: %s\n", GitCommit)
}

func cmdValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	enabled := 0
	for _, s := range cfg.Strategies {
		if s.Enabled {
			enabled++
		}
	}

	fmt.Println("Configuration is valid!")
	fmt.Printf("  Env:             %s\n", cfg.Env)
	fmt.Printf("  Initial capital: ¥%.2f\n", cfg.InitialCapital)
	if name := cfg.UniverseName(); name != "" {
		fmt.Printf("  Universe:        %q from %s\n", name, cfg.BusinessDBPath)
	} else {
		fmt.Printf("  Universe:        %d symbols\n", len(cfg.Universe()))
	}
	fmt.Printf("  Strategies:      %d enabled\n", enabled)
	fmt.Printf("  Telegram:        %v\n", cfg.TelegramEnabled())
	if cfg.Metrics.Enabled {
		fmt.Printf("  Metrics:         %s\n", cfg.Metrics.ListenAddr)
	} else {
		fmt.Println("  Metrics:         disabled")
	}
}

func cmdBacktest(args []string) {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	showTrades := fs.Bool("trades", false, "Print the closed trade list")
	verbose := fs.Bool("verbose", false, "Verbose output")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Env != config.EnvBacktest {
		fmt.Fprintf(os.Stderr, "Error: config env is %q, the backtest command needs %q\n",
			cfg.Env, config.EnvBacktest)
		os.Exit(1)
	}

	logger := newLogger(cfg, *verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openBusinessStore(cfg)
	if err != nil {
		logger.Error("business store open failed", "path", cfg.BusinessDBPath, "error", err)
		os.Exit(1)
	}
	if store != nil {
		defer store.Close()
	}

	universe, err := resolveUniverse(ctx, cfg, store)
	if err != nil {
		logger.Error("universe resolution failed", "error", err)
		os.Exit(1)
	}

	start, end, err := cfg.BacktestWindow()
	if err != nil {
		logger.Error("bad backtest window", "error", err)
		os.Exit(1)
	}

	bars := data.NewBarStore(logger)
	loaded, err := bars.Preload(ctx, cfg.DataRoot, universe, types.FrequencyDay, start, end)
	if err != nil {
		logger.Error("bar preload failed", "root", cfg.DataRoot, "error", err)
		os.Exit(1)
	}
	if loaded == 0 {
		logger.Error("no bars in window", "root", cfg.DataRoot,
			"start", cfg.Backtest.StartDate, "end", cfg.Backtest.EndDate)
		os.Exit(1)
	}

	instances, err := cfg.Instances()
	if err != nil {
		logger.Error("bad strategy config", "error", err)
		os.Exit(1)
	}

	deps := backtest.Deps{
		Store:    bars,
		Calendar: loadCalendar(ctx, store, logger),
		Logger:   logger,
	}
	if store != nil {
		deps.Records = store
	}

	eng := backtest.New(cfg.ToBacktestConfig(), deps)
	if err := eng.Setup(start, end, universe, instances); err != nil {
		logger.Error("backtest setup failed", "error", err)
		os.Exit(1)
	}

	renderer := ui.NewRenderer(cfg.InitialCapitalDecimal())
	eng.SetProgressCallback(renderer.Observe)

	logger.Info("starting backtest",
		"start", cfg.Backtest.StartDate, "end", cfg.Backtest.EndDate,
		"symbols", len(universe), "strategies", len(instances), "bars", loaded)

	renderer.Start()
	result, err := eng.Run(ctx)
	renderer.Stop()
	if err != nil {
		logger.Error("backtest failed", "error", err)
		os.Exit(1)
	}

	printResult(result)
	if *showTrades {
		printTrades(result.Trades)
	}
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Env != config.EnvLiveTrading {
		fmt.Fprintf(os.Stderr, "Error: config env is %q, the run command needs %q\n",
			cfg.Env, config.EnvLiveTrading)
		os.Exit(1)
	}

	logger := newLogger(cfg, false)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openBusinessStore(cfg)
	if err != nil {
		logger.Error("business store open failed", "path", cfg.BusinessDBPath, "error", err)
		os.Exit(1)
	}
	if store != nil {
		defer store.Close()
	}

	universe, err := resolveUniverse(ctx, cfg, store)
	if err != nil {
		logger.Error("universe resolution failed", "error", err)
		os.Exit(1)
	}

	instances, err := cfg.Instances()
	if err != nil {
		logger.Error("bad strategy config", "error", err)
		os.Exit(1)
	}

	bars := data.NewBarStore(logger)
	source := data.NewCSVSource(cfg.DataRoot, logger)

	// Warm the store with recent history so indicator windows are full from
	// the first refresh.
	now := time.Now()
	if _, err := bars.Preload(ctx, cfg.DataRoot, universe, types.FrequencyDay, now.AddDate(0, -6, 0), now); err != nil {
		logger.Warn("history warmup failed", "error", err)
	}

	alerters := []alerting.Alerter{alerting.NewConsoleAlerter(logger)}
	var summaries engine.SummarySender
	if cfg.TelegramEnabled() {
		tg := alerting.NewTelegramAlerter(alerting.TelegramConfig{
			BotToken: cfg.Alerting.TelegramBotToken,
			ChatID:   cfg.Alerting.TelegramChatID,
		})
		alerters = append(alerters, tg)
		summaries = tg
	}

	rec := metrics.NewRecorder()
	metrics.SetBuildInfo(Version, GitCommit, BuildTime)

	deps := engine.Deps{
		Store:             bars,
		Source:            source,
		Calendar:          loadCalendar(ctx, store, logger),
		Logger:            logger,
		UniverseName:      cfg.UniverseName(),
		Alerter:           alerting.NewMultiAlerter(logger, alerters...),
		Summaries:         summaries,
		Gauges:            rec,
		BusRecorder:       rec,
		PortfolioRecorder: rec,
		ExecutionRecorder: rec,
	}
	if store != nil {
		deps.Universes = store
	}

	eng := engine.New(cfg.ToEngineConfig(), deps)
	if err := eng.Setup(universe, instances); err != nil {
		logger.Error("engine setup failed", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(metrics.ServerConfig{ListenAddr: cfg.Metrics.ListenAddr}, logger)
		srv.RegisterHealthCheck("engine", func() error {
			if !eng.IsRunning() {
				return errors.New("engine not running")
			}
			return nil
		})
		if store != nil {
			srv.RegisterHealthCheck("business-store", func() error {
				return store.Ping(context.Background())
			})
		}
		g.Go(func() error { return srv.Run(gctx) })
	}

	// Surface the bus backlog and process liveness between engine heartbeats.
	g.Go(func() error {
		ticker := time.NewTicker(statsPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				rec.QueueDepthUpdated(eng.Statistics().Bus.Pending)
				rec.Heartbeat()
			}
		}
	})

	if err := eng.Start(ctx); err != nil {
		logger.Error("engine start failed", "error", err)
		os.Exit(1)
	}

	logger.Info("live session running",
		"version", Version, "symbols", len(universe), "strategies", len(instances))

	<-ctx.Done()
	logger.Info("shutdown signal received")

	if err := eng.Stop(); err != nil {
		logger.Error("engine stop failed", "error", err)
	}
	if err := g.Wait(); err != nil {
		logger.Error("background worker failed", "error", err)
	}
	logger.Info("shutdown complete")
}

// newLogger builds the process logger. Logs go to stderr so terminal frames
// and result tables own stdout.
func newLogger(cfg *config.Config, verbose bool) *slog.Logger {
	level := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openBusinessStore opens the sqlite business store when configured. Both
// returns are nil when no path is set.
func openBusinessStore(cfg *config.Config) (*persistence.Store, error) {
	if cfg.BusinessDBPath == "" {
		return nil, nil
	}
	return persistence.NewStore(cfg.BusinessDBPath)
}

// resolveUniverse returns the inline symbol list or loads the named universe
// from the business store.
func resolveUniverse(ctx context.Context, cfg *config.Config, store *persistence.Store) ([]string, error) {
	if symbols := cfg.Universe(); len(symbols) > 0 {
		return symbols, nil
	}
	name := cfg.UniverseName()
	if store == nil {
		return nil, fmt.Errorf("universe %q needs business_db_path", name)
	}
	symbols, err := store.LoadUniverse(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load universe %q: %w", name, err)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("universe %q is empty", name)
	}
	return symbols, nil
}

// loadCalendar pulls the A-share calendar from the business store, falling
// back to the plain weekday rule when no store is configured.
func loadCalendar(ctx context.Context, store *persistence.Store, logger *slog.Logger) *types.Calendar {
	if store == nil {
		return types.NewCalendar()
	}
	cal, err := store.LoadCalendar(ctx, "A_SHARE")
	if err != nil {
		logger.Warn("calendar load failed, using weekday rule", "error", err)
		return types.NewCalendar()
	}
	return cal
}

func printResult(result *backtest.Result) {
	fmt.Println("\nBacktest results")

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Metric", "Value")
	table.Append("Window", fmt.Sprintf("%s .. %s",
		result.Start.Format("2006-01-02"), result.End.Format("2006-01-02")))
	table.Append("Initial capital", "¥"+result.InitialCapital.StringFixed(2))
	table.Append("Final value", "¥"+result.FinalValue.StringFixed(2))
	table.Append("Total return", pct(result.TotalReturn))
	table.Append("Max drawdown", pct(result.MaxDrawdown))
	table.Append("Sharpe ratio", result.SharpeRatio.StringFixed(2))
	table.Append("Closed trades", fmt.Sprintf("%d (%dW / %dL)",
		result.TotalTrades, result.WinningTrades, result.LosingTrades))
	table.Append("Win rate", pct(result.WinRate))
	table.Append("Profit factor", result.ProfitFactor.StringFixed(2))
	table.Append("Commission", "¥"+result.TotalCommission.StringFixed(2))
	table.Append("Realized PnL", "¥"+result.RealizedPnL.StringFixed(2))
	table.Render()
}

func printTrades(trades []types.Trade) {
	closed := make([]types.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Status == types.TradeClosed {
			closed = append(closed, t)
		}
	}
	if len(closed) == 0 {
		fmt.Println("\nNo closed trades.")
		return
	}

	fmt.Println("\nClosed trades")
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Symbol", "Strategy", "Bought", "Buy", "Sold", "Sell", "Qty", "PnL")
	for _, t := range closed {
		table.Append(
			t.Symbol,
			t.StrategyID,
			t.BuyTime.Format("2006-01-02"),
			t.BuyPrice.StringFixed(2),
			t.SellTime.Format("2006-01-02"),
			t.SellPrice.StringFixed(2),
			fmt.Sprintf("%d", t.BuyQty),
			t.RealizedPnL.StringFixed(2),
		)
	}
	table.Render()
}

func pct(ratio decimal.Decimal) string {
	return ratio.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}
