package market

import "math"

// VolatilityLevel bands annualized volatility into five levels.
type VolatilityLevel int

const (
	VolVeryLow VolatilityLevel = iota
	VolLow
	VolNormal
	VolHigh
	VolExtreme
)

func (l VolatilityLevel) String() string {
	switch l {
	case VolVeryLow:
		return "very_low"
	case VolLow:
		return "low"
	case VolNormal:
		return "normal"
	case VolHigh:
		return "high"
	case VolExtreme:
		return "extreme"
	}
	return "unknown"
}

// RangeStats describes the recent price range.
type RangeStats struct {
	Highest         float64
	Lowest          float64
	Range           float64
	RangePercent    float64
	CurrentPosition float64 // 0-100, where current price sits in the range
	Valid           bool
}

// SpacingSuggestion is the ATR-derived grid spacing recommendation.
type SpacingSuggestion struct {
	Min        float64
	Max        float64
	PercentMin float64
	PercentMax float64
	GridsMin   int
	GridsMax   int
	Valid      bool
}

// SpikeResult reports abnormal volatility expansion.
type SpikeResult struct {
	Detected      bool
	CurrentATR    float64
	HistoricalATR float64
	Ratio         float64
}

// VolatilityResult is the combined volatility assessment.
type VolatilityResult struct {
	ATRPercent   float64
	HistVol      float64 // annualized historical volatility, percent
	Score        int     // 0-100, higher is more volatile
	Level        VolatilityLevel
	Range        RangeStats
	Spike        SpikeResult
	Spacing      SpacingSuggestion
	GridSuitable bool
	Valid        bool
}

// VolatilityAnalyzer derives volatility level, score, spike detection and
// grid spacing suggestions from candles.
type VolatilityAnalyzer struct {
	SpikeThreshold float64 // current/historical ATR ratio that flags a spike
}

// NewVolatilityAnalyzer creates an analyzer with the default spike threshold.
func NewVolatilityAnalyzer() *VolatilityAnalyzer {
	return &VolatilityAnalyzer{SpikeThreshold: 2.0}
}

// HistoricalVolatility computes annualized volatility from the population
// stdev of log returns over the last period samples. Returns nil when there
// is not enough data.
func (a *VolatilityAnalyzer) HistoricalVolatility(closes []float64, period int) *float64 {
	if len(closes) < period+1 {
		return nil
	}

	var logReturns []float64
	for i := 1; i < len(closes); i++ {
		if closes[i] > 0 && closes[i-1] > 0 {
			logReturns = append(logReturns, math.Log(closes[i]/closes[i-1]))
		}
	}
	if len(logReturns) < period {
		return nil
	}

	recent := logReturns[len(logReturns)-period:]
	mean := 0.0
	for _, r := range recent {
		mean += r
	}
	mean /= float64(len(recent))
	variance := 0.0
	for _, r := range recent {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(recent))

	annualized := math.Sqrt(variance) * math.Sqrt(365) * 100
	return fptr(annualized)
}

// ATRPercent computes ATR as a percentage of the current close.
func (a *VolatilityAnalyzer) ATRPercent(candles []Candle, period int) *float64 {
	if len(candles) < period+1 {
		return nil
	}
	atr := ATR(candles, period)
	last := atr[len(atr)-1]
	if last == nil {
		return nil
	}
	price := candles[len(candles)-1].Close
	return fptr(*last / price * 100)
}

// RangePercent computes the high/low range over the last period candles.
func (a *VolatilityAnalyzer) RangePercent(candles []Candle, period int) RangeStats {
	if len(candles) < period {
		return RangeStats{}
	}

	recent := candles[len(candles)-period:]
	highest := recent[0].High
	lowest := recent[0].Low
	sum := 0.0
	for _, c := range recent {
		if c.High > highest {
			highest = c.High
		}
		if c.Low < lowest {
			lowest = c.Low
		}
		sum += c.Close
	}
	avg := sum / float64(len(recent))
	current := recent[len(recent)-1].Close
	rng := highest - lowest

	position := 50.0
	if rng > 0 {
		position = (current - lowest) / rng * 100
	}

	return RangeStats{
		Highest:         highest,
		Lowest:          lowest,
		Range:           rng,
		RangePercent:    rng / avg * 100,
		CurrentPosition: position,
		Valid:           true,
	}
}

// LevelFor maps an annualized volatility percentage to a level.
func (a *VolatilityAnalyzer) LevelFor(volatilityPercent float64) VolatilityLevel {
	switch {
	case volatilityPercent < 20:
		return VolVeryLow
	case volatilityPercent < 40:
		return VolLow
	case volatilityPercent < 80:
		return VolNormal
	case volatilityPercent < 120:
		return VolHigh
	default:
		return VolExtreme
	}
}

// SuggestSpacing recommends grid spacing of 0.8x to 1.5x the ATR in price
// terms, and a grid count from the range divided by spacing, clamped to
// [3, 30].
func (a *VolatilityAnalyzer) SuggestSpacing(candles []Candle) SpacingSuggestion {
	if len(candles) < 20 {
		return SpacingSuggestion{}
	}

	atrPct := a.ATRPercent(candles, 14)
	if atrPct == nil {
		return SpacingSuggestion{}
	}

	price := candles[len(candles)-1].Close
	rangeInfo := a.RangePercent(candles, 20)

	spacingMin := price * *atrPct / 100 * 0.8
	spacingMax := price * *atrPct / 100 * 1.5

	gridsMin, gridsMax := 5, 20
	if rangeInfo.Valid && rangeInfo.Range > 0 {
		gridsMin = int(rangeInfo.Range / spacingMax)
		gridsMax = int(rangeInfo.Range / spacingMin)
	}
	if gridsMin < 3 {
		gridsMin = 3
	}
	if gridsMax > 30 {
		gridsMax = 30
	}

	return SpacingSuggestion{
		Min:        spacingMin,
		Max:        spacingMax,
		PercentMin: spacingMin / price * 100,
		PercentMax: spacingMax / price * 100,
		GridsMin:   gridsMin,
		GridsMax:   gridsMax,
		Valid:      true,
	}
}

// DetectSpike compares the current ATR against the mean of the ATR history
// excluding the last 5 samples.
func (a *VolatilityAnalyzer) DetectSpike(candles []Candle) SpikeResult {
	if len(candles) < 30 {
		return SpikeResult{}
	}

	atr := ATR(candles, 14)
	var valid []float64
	for _, v := range atr {
		if v != nil {
			valid = append(valid, *v)
		}
	}
	if len(valid) < 10 {
		return SpikeResult{}
	}

	current := valid[len(valid)-1]
	historical := valid[:len(valid)-5]
	sum := 0.0
	for _, v := range historical {
		sum += v
	}
	avg := sum / float64(len(historical))

	ratio := 1.0
	if avg > 0 {
		ratio = current / avg
	}

	return SpikeResult{
		Detected:      ratio > a.SpikeThreshold,
		CurrentATR:    current,
		HistoricalATR: avg,
		Ratio:         ratio,
	}
}

// Assess runs the full volatility analysis. The score starts at 50 and is
// adjusted by the ATR percentage and spike detection; scores above 80 mark
// the market as unsuitable for grid trading.
func (a *VolatilityAnalyzer) Assess(candles []Candle) VolatilityResult {
	if len(candles) < 30 {
		return VolatilityResult{Score: 50, Level: VolNormal, GridSuitable: true}
	}

	closes := Closes(candles)

	result := VolatilityResult{Valid: true}
	if v := a.ATRPercent(candles, 14); v != nil {
		result.ATRPercent = *v
	}
	if v := a.HistoricalVolatility(closes, 20); v != nil {
		result.HistVol = *v
	}
	result.Range = a.RangePercent(candles, 20)
	result.Spike = a.DetectSpike(candles)
	result.Spacing = a.SuggestSpacing(candles)

	if result.HistVol > 0 {
		result.Level = a.LevelFor(result.HistVol)
	} else {
		result.Level = a.LevelFor(result.ATRPercent * 10)
	}

	score := 50
	switch {
	case result.ATRPercent > 0 && result.ATRPercent < 1:
		score -= 20
	case result.ATRPercent > 0 && result.ATRPercent < 2:
		score -= 10
	case result.ATRPercent > 5:
		score += 20
	case result.ATRPercent > 3:
		score += 10
	}
	if result.Spike.Detected {
		score += 30
	}
	result.Score = score

	result.GridSuitable = score <= 80
	return result
}
