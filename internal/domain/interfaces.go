package domain

import (
	"context"
	"time"
)

// MarketDataGateway defines the interface for the market data bridge.
type MarketDataGateway interface {
	GetTick(ctx context.Context, symbol string) (*Tick, error)
	GetCandles(ctx context.Context, symbol, timeframe string, count int) ([]Candle, error)
	GetAccount(ctx context.Context) (*AccountState, error)
	IsConnected() bool
	OnTick(callback func(tick *Tick))
	Subscribe(symbols []string) error
}

// ExecutionGateway routes orders to a live trading backend. The paper engine
// never touches it.
type ExecutionGateway interface {
	PlaceMarketOrder(ctx context.Context, order *Order) (*Order, error)
}

// AdvisoryService is an external second opinion on a generated signal.
type AdvisoryService interface {
	IsReady(ctx context.Context) bool
	Validate(ctx context.Context, signal *Signal) (*AdvisorVerdict, error)
}

// ProbabilityEstimator scores the win probability of a candidate trade from
// a feature vector.
type ProbabilityEstimator interface {
	Predict(ctx context.Context, symbol string, features []float64) (float64, error)
}

// NewsCalendar reports whether upcoming high impact events block trading a
// currency pair.
type NewsCalendar interface {
	CheckStop(ctx context.Context, symbol string, bufferMinutes int) (*NewsVerdict, error)
}

// Notification event types emitted by the trader.
const (
	EventTradingEngaged = "TRADING_ENGAGED"
	EventTradingStopped = "TRADING_STOPPED"
	EventTradingHalted  = "TRADING_HALTED"
	EventTradingResumed = "TRADING_RESUMED"
	EventTradeExecuted  = "TRADE_EXECUTED"
	EventTradeClosed    = "TRADE_CLOSED"
	EventNewsBlock      = "NEWS_BLOCK"
)

// NotificationChannel pushes trade events to an external channel. Delivery
// is best effort and never blocks the trading path.
type NotificationChannel interface {
	Notify(eventType string, payload map[string]interface{})
}

// SettingsRepository defines storage operations for runtime settings.
type SettingsRepository interface {
	LoadSettings(ctx context.Context) (map[string]string, error)
	SaveSetting(ctx context.Context, key, value string) error
}

// TradeJournal defines storage operations for orders, closed positions and
// backtest runs.
type TradeJournal interface {
	SaveOrder(ctx context.Context, order *Order) error
	ListOrders(ctx context.Context, limit int) ([]*Order, error)
	SaveClosedPosition(ctx context.Context, pos *ClosedPosition) error
	ListClosedPositions(ctx context.Context, limit int) ([]*ClosedPosition, error)
	SaveBacktestRun(ctx context.Context, run *BacktestRun) error
	ListBacktestRuns(ctx context.Context, limit int) ([]*BacktestRun, error)
}

// Clock abstracts wall clock time for services that schedule or timestamp
// work, so tests can pin it.
type Clock func() time.Time
