// Package market provides candle data types, technical indicators, and the
// trend/volatility/sentiment analysis used to classify market regime.
package market

import (
	"math"
	"sort"
	"time"
)

// Candle is a single OHLCV bar. Immutable once recorded.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Closes extracts the close series from candles.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// ============================================================================
// Indicators
//
// All functions return slices aligned with the input: entries are nil until
// enough data exists to compute the value. Callers must check for nil before
// dereferencing.
// ============================================================================

func fptr(v float64) *float64 { return &v }

// SMA computes the simple moving average.
func SMA(prices []float64, period int) []*float64 {
	result := make([]*float64, len(prices))
	if period <= 0 {
		return result
	}
	for i := period - 1; i < len(prices); i++ {
		sum := 0.0
		for _, p := range prices[i-period+1 : i+1] {
			sum += p
		}
		result[i] = fptr(sum / float64(period))
	}
	return result
}

// EMA computes the exponential moving average, seeded with SMA(period).
func EMA(prices []float64, period int) []*float64 {
	result := make([]*float64, len(prices))
	if period <= 0 || len(prices) < period {
		return result
	}
	multiplier := 2.0 / float64(period+1)

	seed := 0.0
	for _, p := range prices[:period] {
		seed += p
	}
	seed /= float64(period)
	result[period-1] = fptr(seed)

	prev := seed
	for i := period; i < len(prices); i++ {
		v := (prices[i]-prev)*multiplier + prev
		result[i] = fptr(v)
		prev = v
	}
	return result
}

// RSI computes the relative strength index with Wilder smoothing.
// The seed is the simple mean of the first period gains/losses; a zero
// average loss yields RSI 100.
func RSI(prices []float64, period int) []*float64 {
	result := make([]*float64, len(prices))
	if period <= 0 || len(prices) < period+1 {
		return result
	}

	changes := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		changes[i-1] = prices[i] - prices[i-1]
	}

	gains := make([]float64, len(changes))
	losses := make([]float64, len(changes))
	for i, c := range changes {
		if c > 0 {
			gains[i] = c
		} else {
			losses[i] = -c
		}
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	result[period] = fptr(rsiValue(avgGain, avgLoss))

	for i := period; i < len(changes); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		result[i+1] = fptr(rsiValue(avgGain, avgLoss))
	}
	return result
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACDResult holds the three aligned MACD series.
type MACDResult struct {
	MACD      []*float64
	Signal    []*float64
	Histogram []*float64
}

// MACD computes EMA(fast)−EMA(slow) with a signal EMA over the valid
// sub-range only, re-aligned to the input.
func MACD(prices []float64, fast, slow, signal int) MACDResult {
	emaFast := EMA(prices, fast)
	emaSlow := EMA(prices, slow)

	macdLine := make([]*float64, len(prices))
	for i := range prices {
		if emaFast[i] != nil && emaSlow[i] != nil {
			macdLine[i] = fptr(*emaFast[i] - *emaSlow[i])
		}
	}

	signalLine := make([]*float64, len(prices))
	var macdValues []float64
	startIdx := -1
	for i, v := range macdLine {
		if v != nil {
			if startIdx < 0 {
				startIdx = i
			}
			macdValues = append(macdValues, *v)
		}
	}
	if len(macdValues) >= signal && startIdx >= 0 {
		emaSignal := EMA(macdValues, signal)
		for i, v := range emaSignal {
			if v != nil {
				signalLine[startIdx+i] = v
			}
		}
	}

	histogram := make([]*float64, len(prices))
	for i := range prices {
		if macdLine[i] != nil && signalLine[i] != nil {
			histogram[i] = fptr(*macdLine[i] - *signalLine[i])
		}
	}

	return MACDResult{MACD: macdLine, Signal: signalLine, Histogram: histogram}
}

// BollingerResult holds the three aligned band series.
type BollingerResult struct {
	Upper  []*float64
	Middle []*float64
	Lower  []*float64
}

// Bollinger computes bands at middle ± k·population-stdev over the window.
func Bollinger(prices []float64, period int, k float64) BollingerResult {
	middle := SMA(prices, period)
	upper := make([]*float64, len(prices))
	lower := make([]*float64, len(prices))

	for i := period - 1; i < len(prices); i++ {
		window := prices[i-period+1 : i+1]
		mean := 0.0
		for _, p := range window {
			mean += p
		}
		mean /= float64(period)
		variance := 0.0
		for _, p := range window {
			variance += (p - mean) * (p - mean)
		}
		variance /= float64(period)
		std := math.Sqrt(variance)

		upper[i] = fptr(*middle[i] + k*std)
		lower[i] = fptr(*middle[i] - k*std)
	}

	return BollingerResult{Upper: upper, Middle: middle, Lower: lower}
}

// ATR computes the average true range with Wilder smoothing.
// TR = max(high−low, |high−prevClose|, |low−prevClose|); the seed is the
// simple mean of the first period true ranges.
func ATR(candles []Candle, period int) []*float64 {
	result := make([]*float64, len(candles))
	if period <= 0 || len(candles) < 2 {
		return result
	}

	tr := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close
		tr[i] = math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
	}

	if len(candles) < period+1 {
		return result
	}

	seed := 0.0
	for i := 1; i <= period; i++ {
		seed += tr[i]
	}
	seed /= float64(period)
	result[period] = fptr(seed)

	prev := seed
	for i := period + 1; i < len(candles); i++ {
		v := (prev*float64(period-1) + tr[i]) / float64(period)
		result[i] = fptr(v)
		prev = v
	}
	return result
}

// SupportResistance finds support and resistance levels from 5-point local
// extrema over the lookback window, falling back to the global min/max when
// no local extrema exist. Support is sorted ascending, resistance descending.
func SupportResistance(candles []Candle, lookback int) (support, resistance []float64) {
	if len(candles) < lookback {
		return nil, nil
	}

	recent := candles[len(candles)-lookback:]
	highs := make([]float64, len(recent))
	lows := make([]float64, len(recent))
	for i, c := range recent {
		highs[i] = c.High
		lows[i] = c.Low
	}

	for i := 2; i < len(highs)-2; i++ {
		if highs[i] > highs[i-1] && highs[i] > highs[i-2] &&
			highs[i] > highs[i+1] && highs[i] > highs[i+2] {
			resistance = append(resistance, highs[i])
		}
		if lows[i] < lows[i-1] && lows[i] < lows[i-2] &&
			lows[i] < lows[i+1] && lows[i] < lows[i+2] {
			support = append(support, lows[i])
		}
	}

	if len(resistance) == 0 {
		resistance = []float64{maxOf(highs)}
	}
	if len(support) == 0 {
		support = []float64{minOf(lows)}
	}

	support = dedupSorted(support, false)
	resistance = dedupSorted(resistance, true)
	return support, resistance
}

func dedupSorted(values []float64, desc bool) []float64 {
	seen := make(map[float64]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	if desc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
