package usecase

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vforex/quantpilot/internal/domain"
)

// minSignalHistory is the smallest candle window the ensemble scorer will
// accept. The 200 period EMA still reads meaningfully at 100 bars.
const minSignalHistory = 100

// Display names for the score families, in scoring order.
var strategyNames = []string{
	"Cortex Trend Guard",
	"Oversold Mean Revert",
	"MACD Divergence Hunter",
	"Price Action Scalper",
	"Smart Money Flow",
}

// Extra names mixed in when conviction is high.
var strongStrategyNames = []string{
	"Fibonacci Retrace Alpha",
	"Harmonic Bat Pattern",
	"Volvo Breakout",
}

// SignalBundle carries a generated signal together with the regime metrics
// it was scored under, so downstream stages never recompute them.
type SignalBundle struct {
	Signal  *domain.Signal
	Reading RegimeReading
}

// SignalGenerator scores a candle window across trend, momentum, mean
// reversion and candlestick factors and folds the result into one signal.
type SignalGenerator struct {
	regime  *RegimeDetector
	logger  *zap.Logger
	mu      sync.Mutex
	rng     *rand.Rand
	timeNow func() time.Time
}

func NewSignalGenerator(regime *RegimeDetector, rng *rand.Rand, logger *zap.Logger) *SignalGenerator {
	return &SignalGenerator{
		regime:  regime,
		logger:  logger,
		rng:     rng,
		timeNow: time.Now,
	}
}

// Generate runs the ensemble over the candle window. It returns a NEUTRAL
// signal when the combined score stays under cfg.SignalThreshold and an
// error only when the window is too short to score at all.
//
// With cfg.ConfidenceJitter off no random draws happen for confidence or
// price levels, so identical inputs produce identical signals.
func (g *SignalGenerator) Generate(symbol string, candles []domain.Candle, cfg domain.Settings) (*SignalBundle, error) {
	if len(candles) < minSignalHistory {
		return nil, fmt.Errorf("%s: %w: have %d candles, need %d",
			symbol, domain.ErrInsufficientHistory, len(candles), minSignalHistory)
	}

	s := extractSeries(candles)
	price := lastValue(s.close)
	reading := g.regime.Detect(candles)

	reasoning := []string{"Regime: " + string(reading.Regime)}

	ema20 := EMA(s.close, 20)
	ema50 := EMA(s.close, 50)
	ema200 := EMA(s.close, 200)

	trendScore := 0
	if lastValue(ema20) > lastValue(ema50) && lastValue(ema50) > lastValue(ema200) {
		trendScore = 2
		reasoning = append(reasoning, "Strong Uptrend (EMA 20 > 50 > 200)")
	} else if lastValue(ema20) < lastValue(ema50) && lastValue(ema50) < lastValue(ema200) {
		trendScore = -2
		reasoning = append(reasoning, "Strong Downtrend (EMA 20 < 50 < 200)")
	}

	vwap := VWAP(s.high, s.low, s.close, s.volume)
	vwapScore := 0
	if price > lastValue(vwap) {
		vwapScore = 1
		reasoning = append(reasoning, "Price above VWAP (Bullish Bias)")
	} else {
		vwapScore = -1
		reasoning = append(reasoning, "Price below VWAP (Bearish Bias)")
	}

	rsi := RSI(s.close, 14)
	rsiCurrent := lastValue(rsi)
	rsiScore := 0
	if rsiCurrent < 30 {
		rsiScore = 1
		reasoning = append(reasoning, fmt.Sprintf("RSI Oversold (%.1f)", rsiCurrent))
	} else if rsiCurrent > 70 {
		rsiScore = -1
		reasoning = append(reasoning, fmt.Sprintf("RSI Overbought (%.1f)", rsiCurrent))
	}

	macdLine, signalLine, hist := MACD(s.close, 12, 26, 9)
	macdScore := 0
	if lastValue(macdLine) > lastValue(signalLine) && hist[len(hist)-1] > hist[len(hist)-2] {
		macdScore = 1
		reasoning = append(reasoning, "MACD Bullish Crossover")
	} else if lastValue(macdLine) < lastValue(signalLine) && hist[len(hist)-1] < hist[len(hist)-2] {
		macdScore = -1
		reasoning = append(reasoning, "MACD Bearish Crossover")
	}

	bbUpper, _, bbLower := Bollinger(s.close, 20, 2)
	bbScore := 0
	if price < lastValue(bbLower) {
		bbScore = 1
		reasoning = append(reasoning, "Price below Lower BB (Mean Reversion Buy)")
	} else if price > lastValue(bbUpper) {
		bbScore = -1
		reasoning = append(reasoning, "Price above Upper BB (Mean Reversion Sell)")
	}

	n := len(candles)
	patternScore := 0
	if s.close[n-1] > s.open[n-1] && s.close[n-2] < s.open[n-2] &&
		s.close[n-1] > s.open[n-2] && s.open[n-1] < s.close[n-2] {
		patternScore += 3
		reasoning = append(reasoning, "Bullish Engulfing Pattern")
	}
	if s.close[n-1] < s.open[n-1] && s.close[n-2] > s.open[n-2] &&
		s.close[n-1] < s.open[n-2] && s.open[n-1] > s.close[n-2] {
		patternScore -= 3
		reasoning = append(reasoning, "Bearish Engulfing Pattern")
	}
	body := math.Abs(s.close[n-1] - s.open[n-1])
	wickLower := math.Min(s.close[n-1], s.open[n-1]) - s.low[n-1]
	wickUpper := s.high[n-1] - math.Max(s.close[n-1], s.open[n-1])
	if wickLower > 2*body && wickUpper < body {
		patternScore++
		reasoning = append(reasoning, "Bullish Pinbar/Hammer")
	}
	if wickUpper > 2*body && wickLower < body {
		patternScore--
		reasoning = append(reasoning, "Bearish Shooting Star")
	}

	total := trendScore + vwapScore + rsiScore + macdScore + bbScore + patternScore
	g.logger.Debug("ensemble scores",
		zap.String("symbol", symbol),
		zap.Int("trend", trendScore),
		zap.Int("vwap", vwapScore),
		zap.Int("rsi", rsiScore),
		zap.Int("macd", macdScore),
		zap.Int("bb", bbScore),
		zap.Int("pattern", patternScore),
		zap.Int("total", total))

	if math.Abs(float64(total)) < cfg.SignalThreshold {
		reasoning = append(reasoning, fmt.Sprintf("Weak signal (%d) - no trade", absInt(total)))
		return &SignalBundle{
			Signal: &domain.Signal{
				Symbol:    symbol,
				Direction: domain.DirectionNeutral,
				Regime:    reading.Regime,
				Reasoning: reasoning,
				CreatedAt: g.timeNow(),
			},
			Reading: reading,
		}, nil
	}

	direction := domain.DirectionBuy
	if total < 0 {
		direction = domain.DirectionSell
	}

	rawConfidence := math.Min(math.Abs(float64(total))/5, 1.0)
	confidence := rawConfidence
	entropy := 1.0
	if cfg.ConfidenceJitter {
		confidence = rawConfidence * g.uniform(0.95, 1.05)
		entropy = g.uniform(0.98, 1.02)
	}
	confidence = math.Round(confidence*100) / 100
	if confidence > 1 {
		confidence = 1
	}

	atr := ATR(s.high, s.low, s.close, 14)
	atrCurrent := lastValue(atr)

	var slMult float64
	switch reading.Regime {
	case domain.RegimeTrendingStrong:
		slMult = 1.5
	case domain.RegimeTrendingWeak:
		slMult = 2.0
	case domain.RegimeBreakout:
		slMult = 2.5
	default:
		slMult = 1.5
	}
	tp2Mult := slMult * cfg.TargetRiskReward
	tp1Mult := tp2Mult * 0.75
	tp3Mult := tp2Mult * 1.5

	var stopLoss, tp1, tp2, tp3 float64
	if direction == domain.DirectionBuy {
		stopLoss = price - atrCurrent*slMult*entropy
		tp1 = price + atrCurrent*tp1Mult*entropy
		tp2 = price + atrCurrent*tp2Mult*entropy
		tp3 = price + atrCurrent*tp3Mult*entropy
	} else {
		stopLoss = price + atrCurrent*slMult*entropy
		tp1 = price - atrCurrent*tp1Mult*entropy
		tp2 = price - atrCurrent*tp2Mult*entropy
		tp3 = price - atrCurrent*tp3Mult*entropy
	}

	risk := math.Abs(price - stopLoss)
	reward := math.Abs(tp2 - price)
	riskReward := 0.0
	if risk > 0 {
		riskReward = reward / risk
	}
	reasoning = append(reasoning, fmt.Sprintf("Risk:Reward = 1:%.2f", riskReward))

	var active []string
	if trendScore != 0 {
		active = append(active, strategyNames[0])
	}
	if rsiScore != 0 {
		active = append(active, strategyNames[1])
	}
	if macdScore != 0 {
		active = append(active, strategyNames[2])
	}
	if bbScore != 0 {
		active = append(active, strategyNames[3])
	}
	if vwapScore != 0 {
		active = append(active, strategyNames[4])
	}
	if confidence > 0.8 {
		active = append(active, strongStrategyNames...)
	}
	strategy := strategyNames[0]
	if len(active) > 0 {
		strategy = active[g.intn(len(active))]
	}
	reasoning = append(reasoning, "Strat: "+strategy)

	signal := &domain.Signal{
		Symbol:      symbol,
		Direction:   direction,
		Confidence:  confidence,
		EntryPrice:  price,
		StopLoss:    stopLoss,
		TakeProfit1: tp1,
		TakeProfit2: tp2,
		TakeProfit3: tp3,
		RiskReward:  riskReward,
		Strategy:    strategy,
		Regime:      reading.Regime,
		Reasoning:   reasoning,
		CreatedAt:   g.timeNow(),
	}
	g.logger.Info("signal generated",
		zap.String("symbol", symbol),
		zap.String("direction", string(direction)),
		zap.Float64("confidence", confidence),
		zap.Float64("risk_reward", riskReward),
		zap.String("regime", string(reading.Regime)),
		zap.String("strategy", strategy))

	return &SignalBundle{Signal: signal, Reading: reading}, nil
}

func (g *SignalGenerator) uniform(lo, hi float64) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return lo + g.rng.Float64()*(hi-lo)
}

func (g *SignalGenerator) intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Intn(n)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
