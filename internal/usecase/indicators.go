package usecase

import "math"

// All series functions return a slice aligned index-for-index with the
// input. Warm-up slots hold NaN so callers can tell "not yet defined" from
// a real zero.

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// EMA returns the exponential moving average seeded with the first value.
func EMA(values []float64, period int) []float64 {
	n := len(values)
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	alpha := 2.0 / (float64(period) + 1.0)
	out[0] = values[0]
	for i := 1; i < n; i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// SMA returns the simple moving average over a sliding window.
func SMA(values []float64, period int) []float64 {
	n := len(values)
	out := nanSeries(n)
	if period <= 0 || n < period {
		return out
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += values[i]
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// RSI returns the Wilder relative strength index. The first defined value
// sits at index period. A window without losses reads exactly 100.
func RSI(values []float64, period int) []float64 {
	n := len(values)
	out := nanSeries(n)
	if n <= period {
		return out
	}
	gains := make([]float64, n-1)
	losses := make([]float64, n-1)
	for i := 1; i < n; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gains[i-1] = d
		} else {
			losses[i-1] = -d
		}
	}
	var avgGain, avgLoss float64
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)
	for i := period + 1; i < n; i++ {
		avgGain = (avgGain*float64(period-1) + gains[i-1]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i-1]) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// ATR returns Wilder's average true range. True range needs a previous
// close, so the first defined value sits at index period.
func ATR(high, low, close []float64, period int) []float64 {
	n := len(close)
	out := nanSeries(n)
	if n <= period {
		return out
	}
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		hl := high[i] - low[i]
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	var sum float64
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	out[period] = sum / float64(period)
	for i := period + 1; i < n; i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}

// MACD returns the MACD line, its signal line and the histogram.
func MACD(values []float64, fast, slow, signal int) (macd, signalLine, hist []float64) {
	n := len(values)
	if n == 0 {
		return nil, nil, nil
	}
	emaFast := EMA(values, fast)
	emaSlow := EMA(values, slow)
	macd = make([]float64, n)
	for i := range macd {
		macd[i] = emaFast[i] - emaSlow[i]
	}
	signalLine = EMA(macd, signal)
	hist = make([]float64, n)
	for i := range hist {
		hist[i] = macd[i] - signalLine[i]
	}
	return macd, signalLine, hist
}

// Bollinger returns the upper, middle and lower bands. The middle band is an
// SMA and the envelope is width sample standard deviations around it.
func Bollinger(values []float64, period int, width float64) (upper, middle, lower []float64) {
	n := len(values)
	middle = SMA(values, period)
	upper = nanSeries(n)
	lower = nanSeries(n)
	if period < 2 || n < period {
		return upper, middle, lower
	}
	for i := period - 1; i < n; i++ {
		var varSum float64
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - middle[i]
			varSum += d * d
		}
		sd := math.Sqrt(varSum / float64(period-1))
		upper[i] = middle[i] + width*sd
		lower[i] = middle[i] - width*sd
	}
	return upper, middle, lower
}

// VWAP returns the cumulative volume weighted average price over the whole
// series. Slots before any volume has printed hold NaN.
func VWAP(high, low, close, volume []float64) []float64 {
	n := len(close)
	out := nanSeries(n)
	var cumPV, cumVol float64
	for i := 0; i < n; i++ {
		tp := (high[i] + low[i] + close[i]) / 3
		cumPV += tp * volume[i]
		cumVol += volume[i]
		if cumVol > 0 {
			out[i] = cumPV / cumVol
		}
	}
	return out
}

// FibonacciLevels returns retracement prices between a swing high and low,
// keyed by ratio.
func FibonacciLevels(high, low float64) map[string]float64 {
	diff := high - low
	return map[string]float64{
		"0.0":   high,
		"0.236": high - diff*0.236,
		"0.382": high - diff*0.382,
		"0.5":   high - diff*0.5,
		"0.618": high - diff*0.618,
		"0.786": high - diff*0.786,
		"1.0":   low,
	}
}

// PivotPoints returns classic floor trader pivots from the previous bar.
func PivotPoints(high, low, close float64) map[string]float64 {
	p := (high + low + close) / 3
	return map[string]float64{
		"pivot": p,
		"r1":    2*p - low,
		"s1":    2*p - high,
		"r2":    p + (high - low),
		"s2":    p - (high - low),
		"r3":    high + 2*(p-low),
		"s3":    low - 2*(high-p),
	}
}

// windowMean averages the last count slots of a series, or the whole series
// when shorter. NaN slots poison the mean, which keeps regime comparisons
// conservative on thin history.
func windowMean(values []float64, count int) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	start := n - count
	if start < 0 {
		start = 0
	}
	var sum float64
	for _, v := range values[start:] {
		sum += v
	}
	return sum / float64(n-start)
}

// lastValue returns the final element of a series, or NaN when empty.
func lastValue(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}

// sampleStdDev returns the sample standard deviation, or 0 for fewer than
// two values.
func sampleStdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)
	var varSum float64
	for _, v := range values {
		d := v - mean
		varSum += d * d
	}
	return math.Sqrt(varSum / float64(n-1))
}
