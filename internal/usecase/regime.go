package usecase

import (
	"math"

	"github.com/vforex/quantpilot/internal/domain"
)

// regimeLookback is how many recent bars anchor the "normal" volatility and
// band width that current readings are compared against.
const regimeLookback = 50

type candleSeries struct {
	open   []float64
	high   []float64
	low    []float64
	close  []float64
	volume []float64
}

func extractSeries(candles []domain.Candle) candleSeries {
	n := len(candles)
	s := candleSeries{
		open:   make([]float64, n),
		high:   make([]float64, n),
		low:    make([]float64, n),
		close:  make([]float64, n),
		volume: make([]float64, n),
	}
	for i, c := range candles {
		s.open[i] = c.Open
		s.high[i] = c.High
		s.low[i] = c.Low
		s.close[i] = c.Close
		s.volume[i] = c.Volume
	}
	return s
}

// RegimeReading is one regime classification plus the raw metrics behind
// it. The metrics feed the probability model features.
type RegimeReading struct {
	Regime       domain.Regime
	TrendPercent float64
	ATRRatio     float64
	BBWidthRatio float64
}

type RegimeDetector struct{}

func NewRegimeDetector() *RegimeDetector {
	return &RegimeDetector{}
}

// Detect classifies the market regime from ATR expansion, Bollinger band
// width and EMA separation. Volatility expansion is checked first so a
// violent market never reads as a clean trend.
func (d *RegimeDetector) Detect(candles []domain.Candle) RegimeReading {
	if len(candles) == 0 {
		return RegimeReading{Regime: domain.RegimeRanging}
	}
	s := extractSeries(candles)

	ema20 := EMA(s.close, 20)
	ema50 := EMA(s.close, 50)

	atr := ATR(s.high, s.low, s.close, 14)
	atrCurrent := lastValue(atr)
	atrAvg := windowMean(atr, regimeLookback)

	upper, middle, lower := Bollinger(s.close, 20, 2)
	bbWidth := 0.0
	if m := lastValue(middle); m != 0 {
		bbWidth = (lastValue(upper) - lastValue(lower)) / m
	}
	widths := make([]float64, len(s.close))
	for i := range widths {
		widths[i] = (upper[i] - lower[i]) / middle[i]
	}
	bbAvgWidth := windowMean(widths, regimeLookback)

	trendPct := (lastValue(ema20) - lastValue(ema50)) / lastValue(s.close) * 100

	reading := RegimeReading{
		TrendPercent: trendPct,
		ATRRatio:     atrCurrent / atrAvg,
		BBWidthRatio: bbWidth / bbAvgWidth,
	}

	switch {
	case atrCurrent > atrAvg*1.2 && bbWidth > bbAvgWidth*1.1:
		reading.Regime = domain.RegimeVolatile
	case math.Abs(trendPct) > 0.5 && atrCurrent > atrAvg:
		reading.Regime = domain.RegimeBreakout
	case math.Abs(trendPct) > 0.5:
		reading.Regime = domain.RegimeTrendingStrong
	case math.Abs(trendPct) > 0.3:
		reading.Regime = domain.RegimeTrendingWeak
	default:
		reading.Regime = domain.RegimeRanging
	}
	return reading
}
