package market

// TrendType classifies the market direction.
type TrendType int

const (
	TrendStrongUp TrendType = iota
	TrendUp
	TrendSideways
	TrendDown
	TrendStrongDown
)

// trendPriority is the tie-break order when vote totals are equal.
var trendPriority = []TrendType{TrendStrongUp, TrendUp, TrendSideways, TrendDown, TrendStrongDown}

func (t TrendType) String() string {
	switch t {
	case TrendStrongUp:
		return "strong_up"
	case TrendUp:
		return "up"
	case TrendSideways:
		return "sideways"
	case TrendDown:
		return "down"
	case TrendStrongDown:
		return "strong_down"
	}
	return "unknown"
}

// RSISignal bands the RSI reading.
type RSISignal string

const (
	RSIStrongSell     RSISignal = "strong_sell"
	RSISell           RSISignal = "sell"
	RSINeutralBullish RSISignal = "neutral_bullish"
	RSINeutral        RSISignal = "neutral"
	RSINeutralBearish RSISignal = "neutral_bearish"
	RSIBuy            RSISignal = "buy"
	RSIStrongBuy      RSISignal = "strong_buy"
	RSIUnknown        RSISignal = "unknown"
)

// BollingerSignal bands the price position inside the Bollinger channel.
type BollingerSignal string

const (
	BBOverbought  BollingerSignal = "overbought"
	BBHigh        BollingerSignal = "high"
	BBAboveMiddle BollingerSignal = "above_middle"
	BBMiddle      BollingerSignal = "middle"
	BBBelowMiddle BollingerSignal = "below_middle"
	BBLow         BollingerSignal = "low"
	BBOversold    BollingerSignal = "oversold"
	BBUnknown     BollingerSignal = "unknown"
)

// TrendWeights is the vote weight table for the combined classifier.
// Injectable so tests can isolate a single signal.
type TrendWeights struct {
	MA        float64
	MACD      float64
	RSI       float64
	Bollinger float64
}

// DefaultTrendWeights matches the production vote split.
func DefaultTrendWeights() TrendWeights {
	return TrendWeights{MA: 40, MACD: 30, RSI: 15, Bollinger: 15}
}

// MATrend is the moving-average sub-analysis.
type MATrend struct {
	Trend        TrendType
	Strength     float64
	Price        float64
	MA20         float64
	MA50         float64
	PriceVsMA20  float64 // percent deviation
	PriceVsMA50  float64
	Valid        bool
}

// MACDTrend is the MACD sub-analysis.
type MACDTrend struct {
	Trend         TrendType
	Strength      float64
	MACD          float64
	Signal        float64
	Histogram     float64
	HistogramUp   bool
	Valid         bool
}

// RSIReading is the RSI sub-analysis.
type RSIReading struct {
	RSI    float64
	Signal RSISignal
	Valid  bool
}

// BollingerPosition is the Bollinger sub-analysis.
type BollingerPosition struct {
	Position  float64 // 0-100 inside the channel
	Signal    BollingerSignal
	Upper     float64
	Middle    float64
	Lower     float64
	Bandwidth float64 // channel width as percent of middle
	Valid     bool
}

// TrendResult is the combined classification.
type TrendResult struct {
	Trend      TrendType
	Confidence float64
	MA         MATrend
	MACD       MACDTrend
	RSI        RSIReading
	Bollinger  BollingerPosition
}

// TrendAnalyzer combines MA ordering, MACD, RSI, and Bollinger position
// into a weighted trend vote.
type TrendAnalyzer struct {
	weights TrendWeights
}

// NewTrendAnalyzer creates an analyzer with the given weight table.
func NewTrendAnalyzer(weights TrendWeights) *TrendAnalyzer {
	return &TrendAnalyzer{weights: weights}
}

// AnalyzeMA classifies by MA ordering: price > MA20 > MA50 is up, the
// inverse is down, anything else sideways. Deviations beyond 5%/3% upgrade
// to the strong variant.
func (a *TrendAnalyzer) AnalyzeMA(closes []float64) MATrend {
	if len(closes) < 50 {
		return MATrend{Trend: TrendSideways}
	}

	price := closes[len(closes)-1]
	ma20 := *SMA(closes, 20)[len(closes)-1]
	ma50 := *SMA(closes, 50)[len(closes)-1]

	priceVsMA20 := (price - ma20) / ma20 * 100
	priceVsMA50 := (price - ma50) / ma50 * 100
	ma20VsMA50 := (ma20 - ma50) / ma50 * 100

	result := MATrend{
		Price:       price,
		MA20:        ma20,
		MA50:        ma50,
		PriceVsMA20: priceVsMA20,
		PriceVsMA50: priceVsMA50,
		Valid:       true,
	}

	switch {
	case price > ma20 && ma20 > ma50:
		if priceVsMA20 > 5 && ma20VsMA50 > 3 {
			result.Trend = TrendStrongUp
			result.Strength = minFloat(100, 60+priceVsMA20)
		} else {
			result.Trend = TrendUp
			result.Strength = 60
		}
	case price < ma20 && ma20 < ma50:
		if priceVsMA20 < -5 && ma20VsMA50 < -3 {
			result.Trend = TrendStrongDown
			result.Strength = minFloat(100, 60-priceVsMA20)
		} else {
			result.Trend = TrendDown
			result.Strength = 60
		}
	default:
		result.Trend = TrendSideways
		result.Strength = 30 + absFloat(priceVsMA20)
	}
	return result
}

// AnalyzeMACD classifies by MACD sign and histogram direction over the
// last bars.
func (a *TrendAnalyzer) AnalyzeMACD(closes []float64) MACDTrend {
	if len(closes) < 35 {
		return MACDTrend{Trend: TrendSideways}
	}

	macd := MACD(closes, 12, 26, 9)
	last := len(closes) - 1
	if macd.MACD[last] == nil || macd.Signal[last] == nil {
		return MACDTrend{Trend: TrendSideways}
	}

	m := *macd.MACD[last]
	s := *macd.Signal[last]
	var h float64
	if macd.Histogram[last] != nil {
		h = *macd.Histogram[last]
	}

	var recentHist []float64
	for _, v := range macd.Histogram[maxInt(0, len(closes)-5):] {
		if v != nil {
			recentHist = append(recentHist, *v)
		}
	}
	histUp := len(recentHist) >= 2 && recentHist[len(recentHist)-1] > recentHist[len(recentHist)-2]

	result := MACDTrend{MACD: m, Signal: s, Histogram: h, HistogramUp: histUp, Valid: true}

	switch {
	case m > 0 && m > s:
		if h > 0 && histUp {
			result.Trend = TrendStrongUp
			result.Strength = 80
		} else {
			result.Trend = TrendUp
			result.Strength = 60
		}
	case m < 0 && m < s:
		if h < 0 && !histUp {
			result.Trend = TrendStrongDown
			result.Strength = 80
		} else {
			result.Trend = TrendDown
			result.Strength = 60
		}
	default:
		result.Trend = TrendSideways
		result.Strength = 40
	}
	return result
}

// AnalyzeRSI bands the latest RSI(14) reading into seven signals.
func (a *TrendAnalyzer) AnalyzeRSI(closes []float64) RSIReading {
	if len(closes) < 20 {
		return RSIReading{Signal: RSIUnknown}
	}

	values := RSI(closes, 14)
	last := values[len(values)-1]
	if last == nil {
		return RSIReading{Signal: RSIUnknown}
	}

	rsi := *last
	reading := RSIReading{RSI: rsi, Valid: true}
	switch {
	case rsi > 80:
		reading.Signal = RSIStrongSell
	case rsi > 70:
		reading.Signal = RSISell
	case rsi > 60:
		reading.Signal = RSINeutralBullish
	case rsi > 40:
		reading.Signal = RSINeutral
	case rsi > 30:
		reading.Signal = RSINeutralBearish
	case rsi > 20:
		reading.Signal = RSIBuy
	default:
		reading.Signal = RSIStrongBuy
	}
	return reading
}

// AnalyzeBollinger bands the price position inside the channel (0 at the
// lower band, 100 at the upper) into seven signals.
func (a *TrendAnalyzer) AnalyzeBollinger(closes []float64) BollingerPosition {
	if len(closes) < 25 {
		return BollingerPosition{Signal: BBUnknown}
	}

	bb := Bollinger(closes, 20, 2)
	last := len(closes) - 1
	if bb.Upper[last] == nil {
		return BollingerPosition{Signal: BBUnknown}
	}

	upper := *bb.Upper[last]
	middle := *bb.Middle[last]
	lower := *bb.Lower[last]
	price := closes[last]

	width := upper - lower
	position := 50.0
	if width > 0 {
		position = (price - lower) / width * 100
	}

	result := BollingerPosition{
		Position:  position,
		Upper:     upper,
		Middle:    middle,
		Lower:     lower,
		Bandwidth: width / middle * 100,
		Valid:     true,
	}

	switch {
	case position > 95:
		result.Signal = BBOverbought
	case position > 80:
		result.Signal = BBHigh
	case position > 55:
		result.Signal = BBAboveMiddle
	case position > 45:
		result.Signal = BBMiddle
	case position > 20:
		result.Signal = BBBelowMiddle
	case position > 5:
		result.Signal = BBLow
	default:
		result.Signal = BBOversold
	}
	return result
}

// Classify runs all sub-analyses and combines them with the weight table.
// Insufficient data yields a sideways trend with zero confidence.
func (a *TrendAnalyzer) Classify(candles []Candle) TrendResult {
	if len(candles) < 50 {
		return TrendResult{Trend: TrendSideways, Confidence: 0}
	}

	closes := Closes(candles)
	ma := a.AnalyzeMA(closes)
	macd := a.AnalyzeMACD(closes)
	rsi := a.AnalyzeRSI(closes)
	bb := a.AnalyzeBollinger(closes)

	scores := map[TrendType]float64{}

	if ma.Valid {
		scores[ma.Trend] += a.weights.MA
	}
	if macd.Valid {
		scores[macd.Trend] += a.weights.MACD
	}

	switch rsi.Signal {
	case RSIStrongBuy, RSIBuy:
		scores[TrendUp] += a.weights.RSI
	case RSIStrongSell, RSISell:
		scores[TrendDown] += a.weights.RSI
	default:
		scores[TrendSideways] += a.weights.RSI
	}

	switch bb.Signal {
	case BBOverbought, BBHigh:
		scores[TrendUp] += a.weights.Bollinger * 2 / 3
		scores[TrendSideways] += a.weights.Bollinger * 1 / 3
	case BBOversold, BBLow:
		scores[TrendDown] += a.weights.Bollinger * 2 / 3
		scores[TrendSideways] += a.weights.Bollinger * 1 / 3
	default:
		scores[TrendSideways] += a.weights.Bollinger
	}

	final := TrendSideways
	best := -1.0
	for _, t := range trendPriority {
		if scores[t] > best {
			best = scores[t]
			final = t
		}
	}

	return TrendResult{
		Trend:      final,
		Confidence: best,
		MA:         ma,
		MACD:       macd,
		RSI:        rsi,
		Bollinger:  bb,
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
