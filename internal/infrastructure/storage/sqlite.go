package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vforex/quantpilot/internal/domain"
)

// SQLiteStore persists the trade journal and the runtime settings. It
// implements domain.TradeJournal and domain.SettingsRepository.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			requested_price REAL NOT NULL,
			stop_loss REAL NOT NULL,
			take_profit REAL NOT NULL,
			status TEXT NOT NULL,
			filled_price REAL NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			filled_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol);`,
		`CREATE TABLE IF NOT EXISTS closed_positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			realized_pnl REAL NOT NULL,
			reason TEXT NOT NULL,
			opened_at DATETIME NOT NULL,
			closed_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_closed_positions_symbol ON closed_positions(symbol);`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			bars INTEGER NOT NULL,
			total_trades INTEGER NOT NULL,
			win_rate REAL NOT NULL,
			total_pnl REAL NOT NULL,
			max_drawdown_percent REAL NOT NULL,
			sharpe REAL NOT NULL,
			sortino REAL NOT NULL,
			profit_factor REAL NOT NULL,
			created_at DATETIME NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// TradeJournal implementation

func (s *SQLiteStore) SaveOrder(ctx context.Context, order *domain.Order) error {
	query := `INSERT INTO orders (id, symbol, side, quantity, requested_price, stop_loss, take_profit, status, filled_price, created_at, filled_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET
			  status=excluded.status,
			  filled_price=excluded.filled_price,
			  filled_at=excluded.filled_at`
	_, err := s.db.ExecContext(ctx, query,
		order.ID, order.Symbol, order.Side, order.Quantity, order.RequestedPrice,
		order.StopLoss, order.TakeProfit, order.Status, order.FilledPrice,
		order.CreatedAt, order.FilledAt)
	return err
}

func (s *SQLiteStore) ListOrders(ctx context.Context, limit int) ([]*domain.Order, error) {
	query := `SELECT id, symbol, side, quantity, requested_price, stop_loss, take_profit, status, filled_price, created_at, filled_at
			  FROM orders ORDER BY rowid DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.Symbol, &o.Side, &o.Quantity, &o.RequestedPrice,
			&o.StopLoss, &o.TakeProfit, &o.Status, &o.FilledPrice, &o.CreatedAt, &o.FilledAt); err != nil {
			return nil, err
		}
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}

func (s *SQLiteStore) SaveClosedPosition(ctx context.Context, pos *domain.ClosedPosition) error {
	query := `INSERT INTO closed_positions (symbol, side, quantity, entry_price, exit_price, realized_pnl, reason, opened_at, closed_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := s.db.ExecContext(ctx, query,
		pos.Symbol, pos.Side, pos.Quantity, pos.EntryPrice, pos.ExitPrice,
		pos.RealizedPnL, pos.Reason, pos.OpenedAt, pos.ClosedAt)
	if err != nil {
		return err
	}
	if id, err := result.LastInsertId(); err == nil {
		pos.ID = id
	}
	return nil
}

func (s *SQLiteStore) ListClosedPositions(ctx context.Context, limit int) ([]*domain.ClosedPosition, error) {
	query := `SELECT id, symbol, side, quantity, entry_price, exit_price, realized_pnl, reason, opened_at, closed_at
			  FROM closed_positions ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*domain.ClosedPosition
	for rows.Next() {
		var p domain.ClosedPosition
		if err := rows.Scan(&p.ID, &p.Symbol, &p.Side, &p.Quantity, &p.EntryPrice,
			&p.ExitPrice, &p.RealizedPnL, &p.Reason, &p.OpenedAt, &p.ClosedAt); err != nil {
			return nil, err
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}

func (s *SQLiteStore) SaveBacktestRun(ctx context.Context, run *domain.BacktestRun) error {
	query := `INSERT INTO backtest_runs (symbol, timeframe, bars, total_trades, win_rate, total_pnl, max_drawdown_percent, sharpe, sortino, profit_factor, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := s.db.ExecContext(ctx, query,
		run.Symbol, run.Timeframe, run.Bars, run.TotalTrades, run.WinRate,
		run.TotalPnL, run.MaxDrawdownPercent, run.SharpeRatio, run.SortinoRatio,
		run.ProfitFactor, run.CreatedAt)
	if err != nil {
		return err
	}
	if id, err := result.LastInsertId(); err == nil {
		run.ID = id
	}
	return nil
}

func (s *SQLiteStore) ListBacktestRuns(ctx context.Context, limit int) ([]*domain.BacktestRun, error) {
	query := `SELECT id, symbol, timeframe, bars, total_trades, win_rate, total_pnl, max_drawdown_percent, sharpe, sortino, profit_factor, created_at
			  FROM backtest_runs ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.BacktestRun
	for rows.Next() {
		var r domain.BacktestRun
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Timeframe, &r.Bars, &r.TotalTrades,
			&r.WinRate, &r.TotalPnL, &r.MaxDrawdownPercent, &r.SharpeRatio, &r.SortinoRatio,
			&r.ProfitFactor, &r.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// SettingsRepository implementation

func (s *SQLiteStore) LoadSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

func (s *SQLiteStore) SaveSetting(ctx context.Context, key, value string) error {
	query := `INSERT INTO settings (key, value, updated_at)
			  VALUES (?, ?, ?)
			  ON CONFLICT(key) DO UPDATE SET
			  value=excluded.value,
			  updated_at=excluded.updated_at`
	_, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC())
	return err
}
