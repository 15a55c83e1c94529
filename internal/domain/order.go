package domain

import "time"

type OrderStatus string

const (
	OrderPending  OrderStatus = "PENDING"
	OrderFilled   OrderStatus = "FILLED"
	OrderRejected OrderStatus = "REJECTED"
)

// Order is created once and moves from PENDING to exactly one terminal state.
type Order struct {
	ID             string      `json:"id"`
	Symbol         string      `json:"symbol"`
	Side           Direction   `json:"side"`
	Quantity       float64     `json:"quantity"`
	RequestedPrice float64     `json:"requested_price"`
	StopLoss       float64     `json:"stop_loss"`
	TakeProfit     float64     `json:"take_profit"`
	Status         OrderStatus `json:"status"`
	FilledPrice    float64     `json:"filled_price"`
	CreatedAt      time.Time   `json:"created_at"`
	FilledAt       time.Time   `json:"filled_at"`
}

// Position is the single open exposure for a symbol. Repeat fills merge into
// it: quantity summed, entry price averaged.
type Position struct {
	Symbol        string    `json:"symbol"`
	Side          Direction `json:"side"`
	Quantity      float64   `json:"quantity"`
	EntryPrice    float64   `json:"entry_price"`
	CurrentPrice  float64   `json:"current_price"`
	StopLoss      float64   `json:"stop_loss"`
	TakeProfit    float64   `json:"take_profit"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	RealizedPnL   float64   `json:"realized_pnl"`
	OpenedAt      time.Time `json:"opened_at"`
}

// Close reasons recorded on a ClosedPosition.
const (
	CloseReasonStopLoss   = "SL"
	CloseReasonTakeProfit = "TP"
	CloseReasonManual     = "MANUAL"
)

// AccountSummary is a rounded snapshot of the trading account.
type AccountSummary struct {
	Balance       float64 `json:"balance"`
	Equity        float64 `json:"equity"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	OpenPositions int     `json:"open_positions"`
	TotalTrades   int     `json:"total_trades"`
	Mode          string  `json:"mode"`
}

// ClosedPosition is the journal record written when a position is destroyed.
type ClosedPosition struct {
	ID          int64     `json:"id"`
	Symbol      string    `json:"symbol"`
	Side        Direction `json:"side"`
	Quantity    float64   `json:"quantity"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	RealizedPnL float64   `json:"realized_pnl"`
	Reason      string    `json:"reason"`
	OpenedAt    time.Time `json:"opened_at"`
	ClosedAt    time.Time `json:"closed_at"`
}
