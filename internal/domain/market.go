package domain

type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Tick is a transient quote snapshot. Never persisted.
type Tick struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
	Volume float64 `json:"volume"`
	Time   int64   `json:"time"`
}

func (t *Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// AccountState mirrors the broker account. When Connected is false the
// financial fields are zero and must not be used for sizing.
type AccountState struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
	Leverage   int     `json:"leverage"`
	Currency   string  `json:"currency"`
	Connected  bool    `json:"connected"`
}

// DrawdownPercent is (balance - equity) / balance * 100, floored at 0.
func (a *AccountState) DrawdownPercent() float64 {
	if a.Balance <= 0 {
		return 0
	}
	dd := (a.Balance - a.Equity) / a.Balance * 100
	if dd < 0 {
		return 0
	}
	return dd
}
