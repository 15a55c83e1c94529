package usecase

import (
	"time"

	"github.com/vforex/quantpilot/internal/domain"
)

// BuildFeatures assembles the probability model input from recent candles.
// Volatility is the sample standard deviation of close-to-close percent
// changes, in percent.
func BuildFeatures(candles []domain.Candle, reading RegimeReading, now time.Time) []float64 {
	s := extractSeries(candles)

	var changes []float64
	for i := 1; i < len(s.close); i++ {
		if s.close[i-1] != 0 {
			changes = append(changes, s.close[i]/s.close[i-1]-1)
		}
	}
	volatility := sampleStdDev(changes) * 100

	return []float64{
		domain.FeatureHour:         float64(now.Hour()),
		domain.FeatureVolatility:   volatility,
		domain.FeatureRSI:          lastValue(RSI(s.close, 14)),
		domain.FeatureTrendPercent: reading.TrendPercent,
		domain.FeatureATRRatio:     reading.ATRRatio,
		domain.FeatureBBWidthRatio: reading.BBWidthRatio,
	}
}
