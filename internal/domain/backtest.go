package domain

import "time"

// BacktestTrade is a closed trade produced by the replay engine. Immutable
// once the exit fields are set.
type BacktestTrade struct {
	Direction  Direction `json:"direction"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Size       float64   `json:"size"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	PnL        float64   `json:"pnl"`
	PnLPips    float64   `json:"pnl_pips"`
}

type BacktestResult struct {
	TotalTrades        int             `json:"total_trades"`
	WinningTrades      int             `json:"winning_trades"`
	LosingTrades       int             `json:"losing_trades"`
	WinRate            float64         `json:"win_rate"`
	TotalPnL           float64         `json:"total_pnl"`
	MaxDrawdown        float64         `json:"max_drawdown"`
	MaxDrawdownPercent float64         `json:"max_drawdown_percent"`
	SharpeRatio        float64         `json:"sharpe_ratio"`
	SortinoRatio       float64         `json:"sortino_ratio"`
	ProfitFactor       float64         `json:"profit_factor"`
	AvgWin             float64         `json:"avg_win"`
	AvgLoss            float64         `json:"avg_loss"`
	LargestWin         float64         `json:"largest_win"`
	LargestLoss        float64         `json:"largest_loss"`
	AvgTradeDuration   float64         `json:"avg_trade_duration"`
	FinalCapital       float64         `json:"final_capital"`
	Trades             []BacktestTrade `json:"trades"`
	EquityCurve        []float64       `json:"equity_curve"`
}

// BacktestRun is the persisted summary of one replay.
type BacktestRun struct {
	ID                 int64     `json:"id"`
	Symbol             string    `json:"symbol"`
	Timeframe          string    `json:"timeframe"`
	Bars               int       `json:"bars"`
	TotalTrades        int       `json:"total_trades"`
	WinRate            float64   `json:"win_rate"`
	TotalPnL           float64   `json:"total_pnl"`
	MaxDrawdownPercent float64   `json:"max_drawdown_percent"`
	SharpeRatio        float64   `json:"sharpe_ratio"`
	SortinoRatio       float64   `json:"sortino_ratio"`
	ProfitFactor       float64   `json:"profit_factor"`
	CreatedAt          time.Time `json:"created_at"`
}
