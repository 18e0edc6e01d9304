// Package persistence provides the SQLite business store: universe
// membership, the trading calendar, stock reference data, strategy
// configurations, and backtest results.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Will-Grindelwald/quant-trading/internal/types"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const dateLayout = "2006-01-02"

// Store is the SQLite-backed business store. It satisfies the narrow
// read interfaces the pipeline consumes (data.UniverseLoader,
// backtest.RecordStore).
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the business database at path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}

	if err := s.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Migrate creates missing tables and indexes. Safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS universe (
			name TEXT NOT NULL,
			symbol TEXT NOT NULL,
			update_time DATETIME NOT NULL,
			PRIMARY KEY (name, symbol)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_universe_name ON universe(name)`,

		`CREATE TABLE IF NOT EXISTS calendar (
			date TEXT PRIMARY KEY,
			is_trading_day INTEGER NOT NULL,
			market TEXT NOT NULL DEFAULT 'A_SHARE'
		)`,

		`CREATE TABLE IF NOT EXISTS stock_info (
			symbol TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			sector TEXT,
			industry TEXT,
			list_date TEXT,
			update_time DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS strategy_configs (
			strategy_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			config_json TEXT NOT NULL DEFAULT '{}',
			enabled INTEGER NOT NULL DEFAULT 1,
			update_time DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS backtest_records (
			id TEXT PRIMARY KEY,
			start_date DATETIME NOT NULL,
			end_date DATETIME NOT NULL,
			initial_capital TEXT NOT NULL,
			final_value TEXT NOT NULL,
			total_return TEXT NOT NULL,
			max_drawdown TEXT NOT NULL,
			win_rate TEXT NOT NULL,
			total_trades INTEGER NOT NULL DEFAULT 0,
			created_time DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_backtest_created ON backtest_records(created_time)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			backtest_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			strategy_id TEXT,
			status TEXT NOT NULL,
			buy_fill_id TEXT,
			buy_time DATETIME NOT NULL,
			buy_price TEXT NOT NULL DEFAULT '0',
			buy_qty INTEGER NOT NULL DEFAULT 0,
			sell_fill_id TEXT,
			sell_time DATETIME,
			sell_price TEXT NOT NULL DEFAULT '0',
			sell_qty INTEGER NOT NULL DEFAULT 0,
			commission TEXT NOT NULL DEFAULT '0',
			realized_pnl TEXT NOT NULL DEFAULT '0'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_backtest ON trades(backtest_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// SaveUniverse replaces the membership of the named universe.
func (s *Store) SaveUniverse(ctx context.Context, name string, symbols []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM universe WHERE name = ?`, name); err != nil {
		return fmt.Errorf("clear universe: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO universe (name, symbol, update_time) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, symbol := range symbols {
		if _, err := stmt.ExecContext(ctx, name, symbol, now); err != nil {
			return fmt.Errorf("insert symbol %s: %w", symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// LoadUniverse returns the named universe's symbols in sorted order. An
// unknown universe loads as an empty list.
func (s *Store) LoadUniverse(ctx context.Context, name string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol FROM universe WHERE name = ? ORDER BY symbol`, name)
	if err != nil {
		return nil, fmt.Errorf("query universe: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		symbols = append(symbols, symbol)
	}

	return symbols, rows.Err()
}

// CalendarDay is one persisted calendar row.
type CalendarDay struct {
	Date         time.Time
	IsTradingDay bool
}

// SaveCalendar upserts calendar days for a market.
func (s *Store) SaveCalendar(ctx context.Context, market string, days []CalendarDay) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO calendar (date, is_trading_day, market) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, day := range days {
		date := day.Date.Format(dateLayout)
		if _, err := stmt.ExecContext(ctx, date, boolToInt(day.IsTradingDay), market); err != nil {
			return fmt.Errorf("insert day %s: %w", date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// LoadCalendar rebuilds the market's calendar from persisted rows: every
// day stored as non-trading becomes a holiday. Weekends are non-trading
// whether or not a row exists for them.
func (s *Store) LoadCalendar(ctx context.Context, market string) (*types.Calendar, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date FROM calendar WHERE market = ? AND is_trading_day = 0`, market)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cal := types.NewCalendar()
	cal.Market = market
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		d, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", date, err)
		}
		cal.AddHoliday(d)
	}

	return cal, rows.Err()
}

// StockInfo is reference data for one listed symbol. UpdateTime is
// stamped at save time.
type StockInfo struct {
	Symbol     string
	Name       string
	Sector     string
	Industry   string
	ListDate   time.Time
	UpdateTime time.Time
}

// SaveStockInfos upserts reference rows keyed by symbol.
func (s *Store) SaveStockInfos(ctx context.Context, infos []StockInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO stock_info (symbol, name, sector, industry, list_date, update_time)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, info := range infos {
		var listDate any
		if !info.ListDate.IsZero() {
			listDate = info.ListDate.Format(dateLayout)
		}
		if _, err := stmt.ExecContext(ctx, info.Symbol, info.Name, info.Sector, info.Industry, listDate, now); err != nil {
			return fmt.Errorf("insert stock %s: %w", info.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// LoadStockInfo returns reference data for a symbol, nil when unknown.
func (s *Store) LoadStockInfo(ctx context.Context, symbol string) (*StockInfo, error) {
	query := `SELECT symbol, name, sector, industry, list_date, update_time
		FROM stock_info WHERE symbol = ?`

	var info StockInfo
	var sector, industry, listDate sql.NullString

	err := s.db.QueryRowContext(ctx, query, symbol).Scan(
		&info.Symbol,
		&info.Name,
		&sector,
		&industry,
		&listDate,
		&info.UpdateTime,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query stock info: %w", err)
	}

	info.Sector = sector.String
	info.Industry = industry.String
	if listDate.Valid {
		d, err := time.Parse(dateLayout, listDate.String)
		if err != nil {
			return nil, fmt.Errorf("parse list date %q: %w", listDate.String, err)
		}
		info.ListDate = d
	}

	return &info, nil
}

// SaveStrategyConfigs upserts strategy rows keyed by strategy id.
func (s *Store) SaveStrategyConfigs(ctx context.Context, instances []types.StrategyInstance) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO strategy_configs (strategy_id, name, kind, config_json, enabled, update_time)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, inst := range instances {
		cfg := inst.Config
		if cfg == nil {
			cfg = map[string]any{}
		}
		encoded, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encode config %s: %w", inst.StrategyID, err)
		}
		if _, err := stmt.ExecContext(ctx, inst.StrategyID, inst.Name, inst.Kind.String(), string(encoded), boolToInt(inst.Enabled), now); err != nil {
			return fmt.Errorf("insert strategy %s: %w", inst.StrategyID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// LoadStrategyConfigs returns all stored strategies ordered by id.
func (s *Store) LoadStrategyConfigs(ctx context.Context) ([]types.StrategyInstance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT strategy_id, name, kind, config_json, enabled FROM strategy_configs ORDER BY strategy_id`)
	if err != nil {
		return nil, fmt.Errorf("query strategy configs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var instances []types.StrategyInstance
	for rows.Next() {
		var id, name, kindStr, configJSON string
		var enabled int

		if err := rows.Scan(&id, &name, &kindStr, &configJSON, &enabled); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		kind, ok := types.ParseStrategyKind(kindStr)
		if !ok {
			return nil, fmt.Errorf("%w: unknown strategy kind %q", types.ErrInvalidConfig, kindStr)
		}

		var cfg map[string]any
		if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", id, err)
		}

		inst, err := types.NewStrategyInstance(id, name, kind, cfg)
		if err != nil {
			return nil, err
		}
		inst.Enabled = enabled != 0
		instances = append(instances, inst)
	}

	return instances, rows.Err()
}

// SaveBacktestRecord upserts one backtest result row.
func (s *Store) SaveBacktestRecord(ctx context.Context, rec types.BacktestRecord) error {
	query := `INSERT OR REPLACE INTO backtest_records
		(id, start_date, end_date, initial_capital, final_value, total_return, max_drawdown, win_rate, total_trades, created_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	created := rec.CreatedTime
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Start,
		rec.End,
		rec.InitialCapital.String(),
		rec.FinalValue.String(),
		rec.TotalReturn.String(),
		rec.MaxDrawdown.String(),
		rec.WinRate.String(),
		rec.TotalTrades,
		created,
	)
	if err != nil {
		return fmt.Errorf("insert backtest record: %w", err)
	}

	return nil
}

// LoadBacktestRecords returns the most recent backtest records, newest
// first. A non-positive limit defaults to 20.
func (s *Store) LoadBacktestRecords(ctx context.Context, limit int) ([]types.BacktestRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, start_date, end_date, initial_capital, final_value, total_return, max_drawdown, win_rate, total_trades, created_time
		FROM backtest_records ORDER BY created_time DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query backtest records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []types.BacktestRecord
	for rows.Next() {
		var rec types.BacktestRecord
		var capital, final, ret, dd, winRate string

		if err := rows.Scan(&rec.ID, &rec.Start, &rec.End, &capital, &final, &ret, &dd, &winRate, &rec.TotalTrades, &rec.CreatedTime); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		rec.InitialCapital, _ = decimal.NewFromString(capital)
		rec.FinalValue, _ = decimal.NewFromString(final)
		rec.TotalReturn, _ = decimal.NewFromString(ret)
		rec.MaxDrawdown, _ = decimal.NewFromString(dd)
		rec.WinRate, _ = decimal.NewFromString(winRate)

		records = append(records, rec)
	}

	return records, rows.Err()
}

// SaveTrades stores the trades produced by one backtest run.
func (s *Store) SaveTrades(ctx context.Context, backtestID string, trades []types.Trade) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO trades
		(id, backtest_id, symbol, strategy_id, status, buy_fill_id, buy_time, buy_price, buy_qty, sell_fill_id, sell_time, sell_price, sell_qty, commission, realized_pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, t := range trades {
		var sellTime any
		if !t.SellTime.IsZero() {
			sellTime = t.SellTime
		}
		_, err := stmt.ExecContext(ctx,
			t.ID,
			backtestID,
			t.Symbol,
			t.StrategyID,
			t.Status.String(),
			t.BuyFillID,
			t.BuyTime,
			t.BuyPrice.String(),
			t.BuyQty,
			t.SellFillID,
			sellTime,
			t.SellPrice.String(),
			t.SellQty,
			t.TotalCommission.String(),
			t.RealizedPnL.String(),
		)
		if err != nil {
			return fmt.Errorf("insert trade %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// LoadTrades returns all trades recorded for a backtest, oldest buy first.
func (s *Store) LoadTrades(ctx context.Context, backtestID string) ([]types.Trade, error) {
	query := `SELECT id, symbol, strategy_id, status, buy_fill_id, buy_time, buy_price, buy_qty, sell_fill_id, sell_time, sell_price, sell_qty, commission, realized_pnl
		FROM trades WHERE backtest_id = ? ORDER BY buy_time`

	rows, err := s.db.QueryContext(ctx, query, backtestID)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanTrades(rows)
}

func scanTrades(rows *sql.Rows) ([]types.Trade, error) {
	var trades []types.Trade
	for rows.Next() {
		var t types.Trade
		var status string
		var strategyID, buyFillID, sellFillID sql.NullString
		var sellTime sql.NullTime
		var buyPrice, sellPrice, commission, pnl string

		if err := rows.Scan(&t.ID, &t.Symbol, &strategyID, &status, &buyFillID, &t.BuyTime, &buyPrice, &t.BuyQty, &sellFillID, &sellTime, &sellPrice, &t.SellQty, &commission, &pnl); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		t.StrategyID = strategyID.String
		t.BuyFillID = buyFillID.String
		t.SellFillID = sellFillID.String
		if sellTime.Valid {
			t.SellTime = sellTime.Time
		}
		if status == types.TradeClosed.String() {
			t.Status = types.TradeClosed
		}
		t.BuyPrice, _ = decimal.NewFromString(buyPrice)
		t.SellPrice, _ = decimal.NewFromString(sellPrice)
		t.TotalCommission, _ = decimal.NewFromString(commission)
		t.RealizedPnL, _ = decimal.NewFromString(pnl)

		trades = append(trades, t)
	}

	return trades, rows.Err()
}

// Ping verifies the database handle, for health probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
