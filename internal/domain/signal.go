package domain

import "time"

type Direction string

const (
	DirectionBuy     Direction = "BUY"
	DirectionSell    Direction = "SELL"
	DirectionNeutral Direction = "NEUTRAL"
)

type Regime string

const (
	RegimeTrendingStrong Regime = "TRENDING_STRONG"
	RegimeTrendingWeak   Regime = "TRENDING_WEAK"
	RegimeRanging        Regime = "RANGING"
	RegimeVolatile       Regime = "VOLATILE"
	RegimeBreakout       Regime = "BREAKOUT"
)

// Signal is a scored directional trade proposal. For BUY the price levels
// satisfy StopLoss < EntryPrice < TakeProfit1 <= TakeProfit2 <= TakeProfit3;
// for SELL the ordering is inverted.
type Signal struct {
	Symbol      string    `json:"symbol"`
	Direction   Direction `json:"direction"`
	Confidence  float64   `json:"confidence"`
	EntryPrice  float64   `json:"entry_price"`
	StopLoss    float64   `json:"stop_loss"`
	TakeProfit1 float64   `json:"take_profit_1"`
	TakeProfit2 float64   `json:"take_profit_2"`
	TakeProfit3 float64   `json:"take_profit_3"`
	RiskReward  float64   `json:"risk_reward"`
	Strategy    string    `json:"strategy"`
	Regime      Regime    `json:"regime"`
	Reasoning   []string  `json:"reasoning"`
	CreatedAt   time.Time `json:"created_at"`
}

// ValidationResult records the outcome of a single pipeline stage.
type ValidationResult struct {
	Stage  string `json:"stage"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

// AdvisorVerdict is the advisory service's answer for a proposed signal.
type AdvisorVerdict struct {
	Decision   Direction `json:"decision"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason"`
}

type NewsEvent struct {
	Title   string `json:"title"`
	Country string `json:"country"`
	Date    string `json:"date"`
	Impact  string `json:"impact"`
}

// NewsVerdict reports whether trading should pause around calendar events.
type NewsVerdict struct {
	Stop   bool        `json:"stop"`
	Reason string      `json:"reason"`
	Events []NewsEvent `json:"events"`
}
