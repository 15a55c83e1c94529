package domain

import "strings"

type Instrument struct {
	Symbol   string  `json:"symbol"`
	Base     string  `json:"base"`
	Quote    string  `json:"quote"`
	MinLot   float64 `json:"min_lot"`
	MaxLot   float64 `json:"max_lot"`
	LotStep  float64 `json:"lot_step"`
	PipSize  float64 `json:"pip_size"`
	Digits   int     `json:"digits"`
}

var instruments = map[string]Instrument{
	"EURUSD": {Symbol: "EURUSD", Base: "EUR", Quote: "USD", MinLot: 0.01, MaxLot: 100, LotStep: 0.01, PipSize: 0.0001, Digits: 5},
	"GBPUSD": {Symbol: "GBPUSD", Base: "GBP", Quote: "USD", MinLot: 0.01, MaxLot: 100, LotStep: 0.01, PipSize: 0.0001, Digits: 5},
	"USDJPY": {Symbol: "USDJPY", Base: "USD", Quote: "JPY", MinLot: 0.01, MaxLot: 100, LotStep: 0.01, PipSize: 0.01, Digits: 3},
	"AUDUSD": {Symbol: "AUDUSD", Base: "AUD", Quote: "USD", MinLot: 0.01, MaxLot: 100, LotStep: 0.01, PipSize: 0.0001, Digits: 5},
	"NZDUSD": {Symbol: "NZDUSD", Base: "NZD", Quote: "USD", MinLot: 0.01, MaxLot: 100, LotStep: 0.01, PipSize: 0.0001, Digits: 5},
	"USDCAD": {Symbol: "USDCAD", Base: "USD", Quote: "CAD", MinLot: 0.01, MaxLot: 100, LotStep: 0.01, PipSize: 0.0001, Digits: 5},
	"USDCHF": {Symbol: "USDCHF", Base: "USD", Quote: "CHF", MinLot: 0.01, MaxLot: 100, LotStep: 0.01, PipSize: 0.0001, Digits: 5},
	"XAUUSD": {Symbol: "XAUUSD", Base: "XAU", Quote: "USD", MinLot: 0.01, MaxLot: 50, LotStep: 0.01, PipSize: 0.01, Digits: 2},
	"BTCUSD": {Symbol: "BTCUSD", Base: "BTC", Quote: "USD", MinLot: 0.01, MaxLot: 10, LotStep: 0.01, PipSize: 1.0, Digits: 2},
}

// InstrumentFor returns the contract metadata for a symbol. Unknown symbols
// get a generic 5-digit forex profile derived from the symbol name, so the
// trader keeps working when the gateway offers pairs outside the known set.
func InstrumentFor(symbol string) Instrument {
	if ins, ok := instruments[symbol]; ok {
		return ins
	}
	ins := Instrument{
		Symbol:  symbol,
		MinLot:  0.01,
		MaxLot:  100,
		LotStep: 0.01,
		PipSize: 0.0001,
		Digits:  5,
	}
	if len(symbol) == 6 {
		ins.Base = strings.ToUpper(symbol[:3])
		ins.Quote = strings.ToUpper(symbol[3:])
	}
	return ins
}
