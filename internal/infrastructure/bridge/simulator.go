package bridge

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/vforex/quantpilot/internal/domain"
	"go.uber.org/zap"
)

// Candle patterns the simulator can inject into the next history fetch.
const (
	PatternBullishEngulfing  = "BULLISH_ENGULFING"
	PatternBearishDivergence = "BEARISH_DIVERGENCE"
)

const (
	streamInterval = 500 * time.Millisecond
	demoBalance    = 10000.0
)

// basePrices anchor each simulated series near a plausible market level.
var basePrices = map[string]float64{
	"EURUSD": 1.0850, "GBPUSD": 1.2650, "USDJPY": 148.50,
	"AUDUSD": 0.6550, "NZDUSD": 0.6150, "USDCAD": 1.3550,
	"USDCHF": 0.8850, "XAUUSD": 2050.00, "BTCUSD": 100000.00,
}

var tfMinutes = map[string]int{
	"M1": 1, "M5": 5, "M15": 15, "M30": 30, "H1": 60, "H4": 240, "D1": 1440,
}

// Simulator fabricates market data for demo and scenario runs. It fills the
// same gateway contract as the live bridge client so the rest of the stack
// cannot tell them apart. It is never engaged implicitly: the caller
// constructs it on an explicit flag.
type Simulator struct {
	logger *zap.Logger

	mu         sync.Mutex
	rng        *rand.Rand
	lastPrices map[string]float64
	overrides  map[string]string
	callbacks  []func(tick *domain.Tick)
	symbols    []string
	running    bool
	stopChan   chan struct{}

	timeNow func() time.Time
}

func NewSimulator(seed int64, logger *zap.Logger) *Simulator {
	return &Simulator{
		logger:     logger,
		rng:        rand.New(rand.NewSource(seed)),
		lastPrices: make(map[string]float64),
		overrides:  make(map[string]string),
		timeNow:    time.Now,
	}
}

func basePrice(symbol string) float64 {
	if base, ok := basePrices[symbol]; ok {
		return base
	}
	return 1.0
}

func (s *Simulator) GetTick(ctx context.Context, symbol string) (*domain.Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextTick(symbol), nil
}

// nextTick advances the symbol's random walk one step. Caller holds s.mu.
func (s *Simulator) nextTick(symbol string) *domain.Tick {
	last, ok := s.lastPrices[symbol]
	if !ok {
		last = basePrice(symbol)
	}
	price := last + s.rng.NormFloat64()*last*0.0001
	s.lastPrices[symbol] = price

	spread := price * 0.00005
	return &domain.Tick{
		Symbol: symbol,
		Bid:    price - spread/2,
		Ask:    price + spread/2,
		Last:   price,
		Volume: float64(int(s.rng.ExpFloat64() * 1000)),
		Time:   s.timeNow().Unix(),
	}
}

func (s *Simulator) GetCandles(ctx context.Context, symbol, timeframe string, count int) ([]domain.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pattern, ok := s.overrides[symbol]; ok {
		delete(s.overrides, symbol)
		s.logger.Info("injecting candle pattern",
			zap.String("symbol", symbol),
			zap.String("pattern", pattern))
		return s.patternCandles(symbol, timeframe, count, pattern), nil
	}
	return s.randomCandles(symbol, timeframe, count), nil
}

// randomCandles walks a slow sine trend with gaussian noise around the
// symbol's base price.
func (s *Simulator) randomCandles(symbol, timeframe string, count int) []domain.Candle {
	minutes, ok := tfMinutes[timeframe]
	if !ok {
		minutes = 5
	}
	base := basePrice(symbol)
	volatility := base * 0.002
	start := s.timeNow().Add(-time.Duration(minutes*count) * time.Minute)

	candles := make([]domain.Candle, 0, count)
	price := base
	for i := 0; i < count; i++ {
		trend := math.Sin(float64(i)/50) * volatility * 0.5
		noise := s.rng.NormFloat64() * volatility

		open := price
		closePrice := open + trend + noise
		high := math.Max(open, closePrice) + math.Abs(s.rng.NormFloat64()*volatility*0.3)
		low := math.Min(open, closePrice) - math.Abs(s.rng.NormFloat64()*volatility*0.3)

		candles = append(candles, domain.Candle{
			Time:   start.Add(time.Duration(minutes*i) * time.Minute).Unix(),
			Open:   round5(open),
			High:   round5(high),
			Low:    round5(low),
			Close:  round5(closePrice),
			Volume: float64(int(s.rng.ExpFloat64() * 5000)),
		})
		price = closePrice
	}
	return candles
}

// patternCandles renders a mostly flat series that ends in the requested
// technical pattern, for deterministic scenario tests.
func (s *Simulator) patternCandles(symbol, timeframe string, count int, pattern string) []domain.Candle {
	interval := int64(300)
	if timeframe == "M1" {
		interval = 60
	}
	now := s.timeNow().Unix()

	price := 100.0
	switch symbol {
	case "EURUSD":
		price = 1.0850
	case "BTCUSD":
		price = 100000.00
	}

	candles := make([]domain.Candle, 0, count)
	for i := 0; i < count; i++ {
		t := now - int64(count-i)*interval

		var open, high, low, closePrice float64
		switch {
		case pattern == PatternBullishEngulfing && i == count-2:
			// Small bearish bar ahead of the engulfing bar.
			open, high, low, closePrice = price, price+0.0005, price-0.0010, price-0.0008
		case pattern == PatternBullishEngulfing && i == count-1:
			// Wide bullish body swallowing the previous bar.
			open, high, low, closePrice = price-0.0009, price+0.0020, price-0.0010, price+0.0018
		case pattern == PatternBullishEngulfing && i > count-5:
			open, closePrice = price, price+0.0001
			high, low = open+0.0002, closePrice-0.0002
		case pattern == PatternBearishDivergence && i > count-10:
			price += 0.0010
			open, high, low, closePrice = price, price+0.0005, price-0.0002, price+0.0003
		default:
			price += s.rng.NormFloat64() * 0.0001
			open, high, low, closePrice = price, price+0.0002, price-0.0002, price+0.0001
		}

		candles = append(candles, domain.Candle{
			Time:   t,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: 100,
		})
		price = closePrice
	}
	return candles
}

// InjectPattern queues a synthetic pattern for the symbol's next candle
// fetch. One shot: the fetch consumes the override.
func (s *Simulator) InjectPattern(symbol, pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[symbol] = pattern
	s.logger.Info("pattern queued",
		zap.String("symbol", symbol),
		zap.String("pattern", pattern))
}

// GetAccount reports a flat demo account. Paper execution keeps its own
// books, the simulated account only has to satisfy sizing.
func (s *Simulator) GetAccount(ctx context.Context) (*domain.AccountState, error) {
	return &domain.AccountState{
		Balance:    demoBalance,
		Equity:     demoBalance,
		FreeMargin: demoBalance,
		Leverage:   100,
		Currency:   "USD",
		Connected:  true,
	}, nil
}

func (s *Simulator) IsConnected() bool {
	return true
}

// Mode reports SIMULATED, always.
func (s *Simulator) Mode() string {
	return ModeSimulated
}

func (s *Simulator) OnTick(callback func(tick *domain.Tick)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, callback)
}

// Subscribe starts the streaming loop for the given symbols. Repeat calls
// replace the symbol set.
func (s *Simulator) Subscribe(symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.symbols = make([]string, len(symbols))
	copy(s.symbols, symbols)

	if s.running || len(s.symbols) == 0 {
		return nil
	}
	s.running = true
	s.stopChan = make(chan struct{})
	go s.stream(s.stopChan)
	return nil
}

// Stop halts the streaming loop. Tick and candle fetches keep working.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopChan)
}

func (s *Simulator) stream(stop chan struct{}) {
	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			symbols := make([]string, len(s.symbols))
			copy(symbols, s.symbols)
			callbacks := make([]func(tick *domain.Tick), len(s.callbacks))
			copy(callbacks, s.callbacks)
			s.mu.Unlock()

			for _, symbol := range symbols {
				s.mu.Lock()
				tick := s.nextTick(symbol)
				s.mu.Unlock()

				for _, cb := range callbacks {
					cb(tick)
				}
			}
		case <-stop:
			return
		}
	}
}

func round5(v float64) float64 {
	return math.Round(v*100000) / 100000
}
